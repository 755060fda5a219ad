// Command collector discovers ARSO station feeds and saves a timestamped
// snapshot of each station's history feed.
//
// With RUN_SCHEDULE unset it performs one run and exits, which suits an
// external cron. With RUN_SCHEDULE set it stays up, runs on that schedule, and
// serves /healthz, /readyz, /runs/last, and /metrics on HTTP_ADDR.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/station-snapshot-collector/internal/adapter/filestore"
	httpadapter "github.com/couchcryptid/station-snapshot-collector/internal/adapter/http"
	"github.com/couchcryptid/station-snapshot-collector/internal/adapter/httpfetch"
	kafkaadapter "github.com/couchcryptid/station-snapshot-collector/internal/adapter/kafka"
	"github.com/couchcryptid/station-snapshot-collector/internal/config"
	"github.com/couchcryptid/station-snapshot-collector/internal/discovery"
	"github.com/couchcryptid/station-snapshot-collector/internal/observability"
	"github.com/couchcryptid/station-snapshot-collector/internal/pipeline"
	"github.com/couchcryptid/station-snapshot-collector/internal/scheduler"
	"github.com/couchcryptid/station-snapshot-collector/internal/snapshot"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, logCloser, err := observability.NewLogger(cfg)
	if err != nil {
		slog.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("unhandled panic", "panic", r)
		}
	}()

	if err := run(cfg, logger); err != nil {
		logger.Error("collector stopped", "error", err)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()

	store := filestore.New(cfg.SnapshotDir)
	if err := store.EnsureDir(); err != nil {
		return err
	}

	client := httpfetch.NewClient(httpfetch.Options{
		Timeout:         cfg.RequestTimeout,
		MaxBodyBytes:    cfg.MaxBodyBytes,
		FollowRedirects: cfg.FollowRedirects,
		UserAgent:       cfg.UserAgent,
	})

	discoverer := discovery.New(client, discovery.Options{
		LandingURL:         cfg.LandingURL,
		FrameHostPrefix:    cfg.FrameHostPrefix,
		FrameSelector:      cfg.FrameSelector,
		TableSelector:      cfg.TableSelector,
		TableIndex:         cfg.TableIndex,
		HeaderRows:         cfg.HeaderRows,
		HistoryURLTemplate: cfg.HistoryURLTemplate,
		LatestPattern:      cfg.LatestIDPattern,
	}, logger, metrics)

	// Snapshot events are optional (enabled via KAFKA_BROKERS).
	var notifier snapshot.Notifier
	if cfg.EventsEnabled() {
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		notifier = writer
		logger.Info("snapshot events enabled", "topic", cfg.KafkaSnapshotTopic)
	}

	fetcher := snapshot.NewFetcher(client, store, clockwork.NewRealClock(), cfg.HistoryIDPattern, notifier, logger, metrics)
	p := pipeline.New(discoverer, fetcher, logger, metrics, cfg.FetchWorkers)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !cfg.Scheduled() {
		// A failed discovery is logged by the pipeline and still exits 0.
		_, _ = p.Run(ctx)
		return nil
	}
	return serve(ctx, cfg, p, logger)
}

// serve runs the pipeline on cfg.RunSchedule until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, logger *slog.Logger) error {
	job := func(ctx context.Context) {
		_, _ = p.Run(ctx) // the pipeline logs its own outcome
	}

	sched, err := scheduler.New(cfg.RunSchedule, job, logger)
	if err != nil {
		return err
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	sched.Start()
	if cfg.RunOnStart {
		sched.RunNow()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-sched.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("collection run still in progress at shutdown deadline")
	}

	logger.Info("shutdown complete")
	return nil
}
