// Package snapshot fetches station history feeds and stores them as
// timestamped files.
package snapshot

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/station-snapshot-collector/internal/adapter/httpfetch"
	"github.com/couchcryptid/station-snapshot-collector/internal/domain"
	"github.com/couchcryptid/station-snapshot-collector/internal/observability"
)

// Getter issues a single GET request.
type Getter interface {
	Get(ctx context.Context, rawURL string) (httpfetch.Response, error)
}

// Store persists a payload under name and returns where it was written.
type Store interface {
	Write(name string, data []byte) (string, error)
}

// Notifier announces saved snapshots to downstream consumers.
type Notifier interface {
	PublishSnapshot(ctx context.Context, s domain.Snapshot) error
}

// Fetcher downloads one feed at a time and writes it to a Store.
type Fetcher struct {
	client   Getter
	store    Store
	clock    clockwork.Clock
	pattern  *regexp.Regexp
	notifier Notifier
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewFetcher creates a Fetcher. pattern extracts the station identifier from
// history URLs. notifier may be nil.
func NewFetcher(client Getter, store Store, clock clockwork.Clock, pattern *regexp.Regexp, notifier Notifier, logger *slog.Logger, metrics *observability.Metrics) *Fetcher {
	return &Fetcher{
		client:   client,
		store:    store,
		clock:    clock,
		pattern:  pattern,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
	}
}

// FetchAndSave downloads url and writes the payload as
// "<YYYY_MM_DD_HH_MM>_<station>.xml".
//
// A non-2xx answer writes nothing and returns a snapshot with OutcomeSkipped
// and a nil error: an unavailable station is not treated as a failure.
// Transport, identifier, and write problems return a *domain.FetchError,
// *domain.IdentifierError, or *domain.PersistError respectively.
func (f *Fetcher) FetchAndSave(ctx context.Context, url string) (domain.Snapshot, error) {
	start := f.clock.Now()
	defer func() {
		f.metrics.FetchDuration.Observe(f.clock.Since(start).Seconds())
	}()

	snap := domain.Snapshot{SourceURL: url, Outcome: domain.OutcomeFailed}

	resp, err := f.client.Get(ctx, url)
	if err != nil {
		return snap, err
	}
	snap.StatusCode = resp.StatusCode
	snap.FetchedAt = f.clock.Now().UTC()

	if !resp.OK() {
		snap.Outcome = domain.OutcomeSkipped
		f.logger.Debug("skipping snapshot, upstream not ok", "url", url, "status", resp.StatusCode)
		return snap, nil
	}

	id, ok := domain.ExtractIdentifier(url, f.pattern)
	if !ok || !plainIdentifier(id) {
		return snap, domain.NewIdentifierError(url, f.pattern)
	}
	snap.StationID = id

	name := domain.SnapshotFilename(snap.FetchedAt, id)
	path, err := f.store.Write(name, resp.Body)
	if err != nil {
		if path == "" {
			path = name
		}
		return snap, &domain.PersistError{Path: path, Err: err}
	}
	snap.Path = path
	snap.Size = len(resp.Body)
	snap.Outcome = domain.OutcomeSaved
	f.metrics.SnapshotBytes.Add(float64(snap.Size))

	f.notify(ctx, snap)
	return snap, nil
}

// plainIdentifier reports whether id can be embedded in a file name without
// leaving the snapshot directory.
func plainIdentifier(id string) bool {
	return !strings.ContainsAny(id, `/\`) && id != ".."
}

// notify publishes a saved snapshot. The file is already written, so a failed
// publish is logged and counted without failing the item.
func (f *Fetcher) notify(ctx context.Context, snap domain.Snapshot) {
	if f.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := f.notifier.PublishSnapshot(ctx, snap); err != nil {
		f.metrics.EventsPublished.WithLabelValues("error").Inc()
		f.logger.Warn("publish snapshot event failed", "station", snap.StationID, "path", snap.Path, "error", err)
		return
	}
	f.metrics.EventsPublished.WithLabelValues("success").Inc()
}
