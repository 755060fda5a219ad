package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/couchcryptid/station-snapshot-collector/internal/domain"
)

const maxFetchWorkers = 32

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Upstream page layout.
	LandingURL         string
	FrameHostPrefix    string
	FrameSelector      string
	TableSelector      string
	TableIndex         int
	HeaderRows         int
	HistoryURLTemplate string
	LatestIDPattern    *regexp.Regexp
	HistoryIDPattern   *regexp.Regexp

	// Fetching and storage.
	SnapshotDir     string
	RequestTimeout  time.Duration
	MaxBodyBytes    int64
	FollowRedirects bool
	UserAgent       string
	FetchWorkers    int

	// Scheduling and serving.
	RunSchedule     string
	RunOnStart      bool
	HTTPAddr        string
	ShutdownTimeout time.Duration

	LogLevel  string
	LogFormat string
	LogFile   string

	// Snapshot events; disabled when KafkaBrokers is empty.
	KafkaBrokers       []string
	KafkaSnapshotTopic string
}

// Scheduled reports whether the collector runs on a cron schedule rather than once.
func (c *Config) Scheduled() bool {
	return c.RunSchedule != ""
}

// EventsEnabled reports whether snapshot events are published to Kafka.
func (c *Config) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables (and an optional .env
// file), applying defaults where unset.
func Load() (*Config, error) {
	_ = godotenv.Load() // a missing .env is fine

	cfg := &Config{
		LandingURL:         envOrDefault("LANDING_URL", "https://meteo.arso.gov.si/met/sl/service/"),
		FrameHostPrefix:    envOrDefault("FRAME_HOST_PREFIX", "https://meteo.arso.gov.si"),
		FrameSelector:      envOrDefault("FRAME_SELECTOR", "iframe"),
		TableSelector:      envOrDefault("TABLE_SELECTOR", "table.meteoSI-table#observe"),
		HistoryURLTemplate: envOrDefault("HISTORY_URL_TEMPLATE", domain.DefaultHistoryURLTemplate),
		SnapshotDir:        envOrDefault("SNAPSHOT_DIR", "XMLs"),
		UserAgent:          envOrDefault("USER_AGENT", "station-snapshot-collector/1.0"),
		RunSchedule:        strings.TrimSpace(os.Getenv("RUN_SCHEDULE")),
		HTTPAddr:           envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		LogFormat:          envOrDefault("LOG_FORMAT", "json"),
		LogFile:            os.Getenv("LOG_FILE"),
		KafkaBrokers:       parseList(os.Getenv("KAFKA_BROKERS")),
		KafkaSnapshotTopic: envOrDefault("KAFKA_SNAPSHOT_TOPIC", "station-snapshots"),
	}

	var err error
	// The station list is the third matching table on the frame page. This is
	// positional: a layout change upstream breaks discovery.
	if cfg.TableIndex, err = parseInt("TABLE_INDEX", 2, 0, 1000); err != nil {
		return nil, err
	}
	if cfg.HeaderRows, err = parseInt("HEADER_ROWS", 3, 0, 1000); err != nil {
		return nil, err
	}
	if cfg.FetchWorkers, err = parseInt("FETCH_WORKERS", 1, 1, maxFetchWorkers); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = parseDuration("REQUEST_TIMEOUT", "30s"); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = parseDuration("SHUTDOWN_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.FollowRedirects, err = parseBool("FOLLOW_REDIRECTS", false); err != nil {
		return nil, err
	}
	if cfg.RunOnStart, err = parseBool("RUN_ON_START", true); err != nil {
		return nil, err
	}

	maxBody, err := parseInt("MAX_BODY_BYTES", 20<<20, 1, 1<<30)
	if err != nil {
		return nil, err
	}
	cfg.MaxBodyBytes = int64(maxBody)

	if cfg.LatestIDPattern, err = domain.CompileIdentifierPattern(envOrDefault("LATEST_ID_PATTERN", domain.DefaultLatestPattern)); err != nil {
		return nil, fmt.Errorf("invalid LATEST_ID_PATTERN: %w", err)
	}
	if cfg.HistoryIDPattern, err = domain.CompileIdentifierPattern(envOrDefault("HISTORY_ID_PATTERN", domain.DefaultHistoryPattern)); err != nil {
		return nil, fmt.Errorf("invalid HISTORY_ID_PATTERN: %w", err)
	}

	if !strings.Contains(cfg.HistoryURLTemplate, domain.IdentifierPlaceholder) {
		return nil, fmt.Errorf("HISTORY_URL_TEMPLATE must contain %s", domain.IdentifierPlaceholder)
	}
	if err := validateHostPrefix(cfg.FrameHostPrefix); err != nil {
		return nil, fmt.Errorf("invalid FRAME_HOST_PREFIX: %w", err)
	}
	if cfg.Scheduled() {
		if _, err := cron.ParseStandard(cfg.RunSchedule); err != nil {
			return nil, fmt.Errorf("invalid RUN_SCHEDULE: %w", err)
		}
	}
	if cfg.SnapshotDir == "" {
		return nil, errors.New("SNAPSHOT_DIR is required")
	}
	if cfg.EventsEnabled() && cfg.KafkaSnapshotTopic == "" {
		return nil, errors.New("KAFKA_SNAPSHOT_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// validateHostPrefix accepts a bare scheme and host. Frame sources are
// resolved against it as URL references, so a path such as "/base" would be
// replaced by an absolute src rather than prepended to it.
func validateHostPrefix(prefix string) error {
	u, err := url.Parse(prefix)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return errors.New("must be an absolute URL with scheme and host")
	}
	if u.Path != "" && u.Path != "/" {
		return fmt.Errorf("must not have a path, got %q", u.Path)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInt(key string, fallback, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be an integer between %d and %d", key, lo, hi)
	}
	return n, nil
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseBool(key string, fallback bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, fmt.Errorf("invalid %s: must be true or false", key)
	}
	return b, nil
}
