package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/station-snapshot-collector/internal/domain"
	"github.com/couchcryptid/station-snapshot-collector/internal/observability"
)

// Discoverer produces the station links to collect in one run.
type Discoverer interface {
	Discover(ctx context.Context) ([]domain.StationLink, error)
}

// SnapshotFetcher downloads and stores one history feed.
type SnapshotFetcher interface {
	FetchAndSave(ctx context.Context, url string) (domain.Snapshot, error)
}

// Pipeline runs discovery followed by one fetch per discovered station.
type Pipeline struct {
	discoverer Discoverer
	fetcher    SnapshotFetcher
	logger     *slog.Logger
	metrics    *observability.Metrics
	workers    int

	ready   atomic.Bool
	lastRun atomic.Pointer[domain.RunSummary]
	// mu serialises runs so a slow run never overlaps the next trigger.
	mu sync.Mutex
}

// New creates a Pipeline. workers bounds concurrent fetches; 1 processes
// stations sequentially in discovery order.
func New(d Discoverer, f SnapshotFetcher, logger *slog.Logger, metrics *observability.Metrics, workers int) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		discoverer: d,
		fetcher:    f,
		logger:     logger,
		metrics:    metrics,
		workers:    workers,
	}
}

// CheckReadiness returns nil once a run has completed discovery successfully.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no successful collection run yet")
	}
	return nil
}

// LastRun returns the summary of the most recent run, if any.
func (p *Pipeline) LastRun() (domain.RunSummary, bool) {
	s := p.lastRun.Load()
	if s == nil {
		return domain.RunSummary{}, false
	}
	return *s, true
}

// Run performs one collection run. If discovery fails the run ends at once
// with an empty summary and the discovery error. Otherwise every station is
// attempted, failures are recorded per item, and the returned error is nil.
func (p *Pipeline) Run(ctx context.Context) (domain.RunSummary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	summary := domain.RunSummary{StartedAt: start.UTC()}

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	links, err := p.discoverer.Discover(ctx)
	if err != nil {
		p.metrics.RunsTotal.WithLabelValues("discovery_failed").Inc()
		p.logger.Error("discovery failed, nothing to fetch", "error", err)
		summary.Duration = time.Since(start)
		p.lastRun.Store(&summary)
		return summary, err
	}

	summary.Discovered = len(links)
	p.metrics.StationsDiscovered.Set(float64(len(links)))

	for _, r := range p.fetchAll(ctx, domain.HistoryURLs(links)) {
		summary.Record(r)
	}
	summary.Duration = time.Since(start)

	p.metrics.RunsTotal.WithLabelValues("ok").Inc()
	p.metrics.RunDuration.Observe(summary.Duration.Seconds())
	p.metrics.LastSuccess.SetToCurrentTime()
	p.ready.Store(true)
	p.lastRun.Store(&summary)

	p.logger.Info("collection run finished",
		"discovered", summary.Discovered,
		"attempted", summary.Attempted,
		"saved", summary.Succeeded,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"duration", summary.Duration,
	)
	return summary, nil
}

// fetchAll fetches every URL with at most p.workers in flight and returns the
// results of the attempted items in input order. Items not yet started when
// ctx is cancelled are not attempted.
func (p *Pipeline) fetchAll(ctx context.Context, urls []string) []domain.ItemResult {
	results := make([]domain.ItemResult, len(urls))
	attempted := make([]bool, len(urls))

	var g errgroup.Group
	g.SetLimit(p.workers)

	for i, url := range urls {
		if ctx.Err() != nil {
			p.logger.Warn("run cancelled, leaving stations unattempted", "remaining", len(urls)-i)
			break
		}
		attempted[i] = true
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("snapshot panicked", "url", url, "panic", r)
					p.metrics.Snapshots.WithLabelValues(string(domain.OutcomeFailed)).Inc()
					results[i] = domain.ItemResult{URL: url, Outcome: domain.OutcomeFailed, Err: fmt.Errorf("panic: %v", r)}
				}
			}()
			results[i] = p.fetchOne(ctx, url)
			return nil
		})
	}
	_ = g.Wait() // items never return errors; failures live in the results

	out := make([]domain.ItemResult, 0, len(urls))
	for i, r := range results {
		if attempted[i] {
			out = append(out, r)
		}
	}
	return out
}

// fetchOne runs one item and logs its failure; it never affects other items.
func (p *Pipeline) fetchOne(ctx context.Context, url string) domain.ItemResult {
	snap, err := p.fetcher.FetchAndSave(ctx, url)
	switch {
	case err != nil:
		snap.Outcome = domain.OutcomeFailed
	case snap.Outcome != domain.OutcomeSkipped:
		snap.Outcome = domain.OutcomeSaved
	}
	p.metrics.Snapshots.WithLabelValues(string(snap.Outcome)).Inc()

	switch {
	case err != nil:
		p.logger.Error("snapshot failed", "url", url, "error", err)
	case snap.Outcome == domain.OutcomeSkipped:
		p.logger.Warn("snapshot skipped", "url", url, "status", snap.StatusCode)
	default:
		p.logger.Debug("snapshot saved", "url", url, "station", snap.StationID, "path", snap.Path)
	}

	return domain.ItemResult{URL: url, Outcome: snap.Outcome, Snapshot: snap, Err: err}
}
