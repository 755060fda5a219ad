package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/station-snapshot-collector/internal/adapter/filestore"
	"github.com/couchcryptid/station-snapshot-collector/internal/adapter/httpfetch"
	"github.com/couchcryptid/station-snapshot-collector/internal/domain"
	"github.com/couchcryptid/station-snapshot-collector/internal/observability"
	"github.com/couchcryptid/station-snapshot-collector/internal/pipeline"
	"github.com/couchcryptid/station-snapshot-collector/internal/snapshot"
)

// --- mocks ---

type mockDiscoverer struct {
	links []domain.StationLink
	err   error
}

func (m *mockDiscoverer) Discover(_ context.Context) ([]domain.StationLink, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.links, nil
}

type mockFetcher struct {
	mu    sync.Mutex
	calls []string
	// outcomes maps a URL to the error or skip it should produce.
	errs    map[string]error
	skipped map[string]bool
	panics  map[string]bool

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	delay       time.Duration
}

func (m *mockFetcher) FetchAndSave(_ context.Context, url string) (domain.Snapshot, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		cur := m.maxInFlight.Load()
		if n <= cur || m.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(m.delay)

	m.mu.Lock()
	m.calls = append(m.calls, url)
	m.mu.Unlock()

	if m.panics[url] {
		panic("unexpected markup")
	}
	if err := m.errs[url]; err != nil {
		return domain.Snapshot{SourceURL: url, Outcome: domain.OutcomeFailed}, err
	}
	if m.skipped[url] {
		return domain.Snapshot{SourceURL: url, StatusCode: 404, Outcome: domain.OutcomeSkipped}, nil
	}
	return domain.Snapshot{SourceURL: url, StationID: url, Outcome: domain.OutcomeSaved}, nil
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func makeLinks(ids ...string) []domain.StationLink {
	links := make([]domain.StationLink, len(ids))
	for i, id := range ids {
		links[i] = domain.StationLink{
			Location:   id,
			LatestURL:  fmt.Sprintf("/observationAms_%s_latest.xml", id),
			HistoryURL: fmt.Sprintf("/observationAms_%s_history.xml", id),
		}
	}
	return links
}

func outcomes(s domain.RunSummary) []domain.Outcome {
	out := make([]domain.Outcome, len(s.Items))
	for i, it := range s.Items {
		out[i] = it.Outcome
	}
	return out
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	links := makeLinks("A", "B", "C")
	f := &mockFetcher{}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(&mockDiscoverer{links: links}, f, discardLogger(), metrics, 1)

	require.Error(t, p.CheckReadiness(context.Background()))

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Discovered)
	assert.Equal(t, 3, summary.Attempted)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Zero(t, summary.Failed)
	if diff := cmp.Diff(domain.HistoryURLs(links), f.calls); diff != "" {
		t.Fatalf("fetch order mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 3, testutil.ToFloat64(metrics.StationsDiscovered), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("ok")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}

func TestPipeline_Run_DiscoveryFailureAttemptsNothing(t *testing.T) {
	discoveryErr := &domain.FetchError{URL: "http://frame", StatusCode: 500}
	f := &mockFetcher{}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(&mockDiscoverer{err: discoveryErr}, f, discardLogger(), metrics, 4)

	summary, err := p.Run(context.Background())

	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Zero(t, summary.Attempted)
	assert.Empty(t, summary.Items)
	assert.Empty(t, f.calls)
	assert.Error(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("discovery_failed")), 0)
}

func TestPipeline_Run_IsolatesItemFailures(t *testing.T) {
	links := makeLinks("A", "B", "C", "D", "E")
	f := &mockFetcher{errs: map[string]error{
		links[2].HistoryURL: &domain.PersistError{Path: "/x/C.xml", Err: os.ErrPermission},
	}}
	p := pipeline.New(&mockDiscoverer{links: links}, f, discardLogger(), observability.NewMetricsForTesting(), 1)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Attempted)
	assert.Equal(t, 4, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []domain.Outcome{
		domain.OutcomeSaved, domain.OutcomeSaved, domain.OutcomeFailed, domain.OutcomeSaved, domain.OutcomeSaved,
	}, outcomes(summary))
	assert.ErrorIs(t, summary.Items[2].Err, os.ErrPermission)
	assert.Len(t, f.calls, 5)
}

func TestPipeline_Run_SkipIsNotFailure(t *testing.T) {
	links := makeLinks("A", "B")
	f := &mockFetcher{skipped: map[string]bool{links[0].HistoryURL: true}}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(&mockDiscoverer{links: links}, f, discardLogger(), metrics, 1)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Attempted)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Failed)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Snapshots.WithLabelValues("skipped")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.Snapshots.WithLabelValues("failed")), 0)
}

func TestPipeline_Run_RecoversItemPanic(t *testing.T) {
	links := makeLinks("A", "B", "C")
	f := &mockFetcher{panics: map[string]bool{links[1].HistoryURL: true}}
	p := pipeline.New(&mockDiscoverer{links: links}, f, discardLogger(), observability.NewMetricsForTesting(), 1)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, summary.Items[1].Err.Error(), "panic")
}

func TestPipeline_Run_BoundedWorkers(t *testing.T) {
	links := makeLinks("A", "B", "C", "D", "E", "F", "G", "H")
	f := &mockFetcher{delay: 20 * time.Millisecond, errs: map[string]error{
		links[5].HistoryURL: errors.New("connection reset"),
	}}
	p := pipeline.New(&mockDiscoverer{links: links}, f, discardLogger(), observability.NewMetricsForTesting(), 3)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, summary.Attempted)
	assert.Equal(t, 7, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.LessOrEqual(t, f.maxInFlight.Load(), int32(3))

	// Results keep discovery order regardless of completion order.
	for i, it := range summary.Items {
		assert.Equal(t, links[i].HistoryURL, it.URL)
	}
	assert.Equal(t, domain.OutcomeFailed, summary.Items[5].Outcome)
}

func TestPipeline_Run_CancelledContextStopsNewItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &mockFetcher{}
	p := pipeline.New(&mockDiscoverer{links: makeLinks("A", "B")}, f, discardLogger(), observability.NewMetricsForTesting(), 1)

	summary, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Discovered)
	assert.Zero(t, summary.Attempted)
	assert.Empty(t, f.calls)
}

// TestPipeline_Run_WithFileStore wires the real fetcher and file store to check
// that a write failure on one station leaves the others on disk.
func TestPipeline_Run_WithFileStore(t *testing.T) {
	srv := newFeedServer(t, map[string]int{"GONE": 404})
	dir := t.TempDir()
	links := makeLinks("LJUBL", "GONE", "KOPER")
	for i := range links {
		links[i].HistoryURL = srv.URL + links[i].HistoryURL
	}

	metrics := observability.NewMetricsForTesting()
	fetcher := snapshot.NewFetcher(
		httpfetch.NewClient(httpfetch.Options{Timeout: 5 * time.Second}),
		filestore.New(dir),
		clockwork.NewFakeClockAt(time.Date(2024, time.March, 1, 10, 7, 0, 0, time.UTC)),
		domain.HistoryPattern,
		nil,
		discardLogger(),
		metrics,
	)
	p := pipeline.New(&mockDiscoverer{links: links}, fetcher, discardLogger(), metrics, 1)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Failed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"2024_03_01_10_07_LJUBL.xml", "2024_03_01_10_07_KOPER.xml"}, names)
	assert.FileExists(t, filepath.Join(dir, "2024_03_01_10_07_KOPER.xml"))
}

func TestPipeline_LastRun(t *testing.T) {
	d := &mockDiscoverer{links: makeLinks("A")}
	p := pipeline.New(d, &mockFetcher{}, discardLogger(), observability.NewMetricsForTesting(), 1)

	_, ok := p.LastRun()
	assert.False(t, ok)

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	last, ok := p.LastRun()
	require.True(t, ok)
	assert.Equal(t, 1, last.Succeeded)

	d.err = errors.New("landing page down")
	_, err = p.Run(context.Background())
	require.Error(t, err)
	last, ok = p.LastRun()
	require.True(t, ok)
	assert.Zero(t, last.Attempted)
	// Readiness reflects the last successful discovery.
	assert.NoError(t, p.CheckReadiness(context.Background()))
}
