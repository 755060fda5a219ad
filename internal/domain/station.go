package domain

import "time"

// StationLink pairs a station identifier with its latest and history feed URLs.
// Location is never empty: rows whose identifier cannot be extracted are
// dropped during discovery.
type StationLink struct {
	Location   string `json:"location"`
	LatestURL  string `json:"latest_url"`
	HistoryURL string `json:"history_url"`
}

// HistoryURLs returns the history URL of each link, preserving order.
func HistoryURLs(links []StationLink) []string {
	urls := make([]string, len(links))
	for i, l := range links {
		urls[i] = l.HistoryURL
	}
	return urls
}

// Outcome classifies what happened to a single snapshot fetch.
type Outcome string

const (
	// OutcomeSaved means the payload was written to storage.
	OutcomeSaved Outcome = "saved"
	// OutcomeSkipped means the endpoint answered with a non-2xx status and
	// nothing was written. It is not counted as a failure.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed means the fetch, identifier extraction, or write failed.
	OutcomeFailed Outcome = "failed"
)

// Snapshot records one fetch of a history feed.
type Snapshot struct {
	SourceURL  string    `json:"source_url"`
	StationID  string    `json:"station_id,omitempty"`
	Path       string    `json:"path,omitempty"`
	StatusCode int       `json:"status_code"`
	Size       int       `json:"size"`
	FetchedAt  time.Time `json:"fetched_at"`
	Outcome    Outcome   `json:"outcome"`
}

// ItemResult is the per-URL entry of a RunSummary.
type ItemResult struct {
	URL      string
	Outcome  Outcome
	Snapshot Snapshot
	Err      error
}

// RunSummary aggregates one pipeline run.
// Attempted == Succeeded + Skipped + Failed.
type RunSummary struct {
	Discovered int
	Attempted  int
	Succeeded  int
	Skipped    int
	Failed     int
	Items      []ItemResult
	StartedAt  time.Time
	Duration   time.Duration
}

// Record adds an item result to the summary counters.
func (s *RunSummary) Record(r ItemResult) {
	s.Attempted++
	switch r.Outcome {
	case OutcomeSaved:
		s.Succeeded++
	case OutcomeSkipped:
		s.Skipped++
	default:
		s.Failed++
	}
	s.Items = append(s.Items, r)
}
