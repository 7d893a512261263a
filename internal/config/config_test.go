package config

import (
	"os"
	"reflect"
	"testing"
	"time"

	"log/slog"
)

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Port != defaultPort {
		t.Errorf("expected default port %q, got %q", defaultPort, cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != defaultReadTimeout {
		t.Errorf("expected default read timeout %v, got %v", defaultReadTimeout, cfg.Server.ReadTimeout)
	}
	if cfg.Logging.Level != slog.LevelInfo {
		t.Errorf("expected default log level %v, got %v", slog.LevelInfo, cfg.Logging.Level)
	}
	if cfg.Logging.Format != defaultLogFormat {
		t.Errorf("expected default log format %q, got %q", defaultLogFormat, cfg.Logging.Format)
	}
	if cfg.Database.URL != "" {
		t.Errorf("expected empty database URL, got %q", cfg.Database.URL)
	}

	c := cfg.Collection
	if c.URLWindow != 24*time.Hour || c.TitleWindow != 48*time.Hour {
		t.Errorf("unexpected dedup windows: url=%v title=%v", c.URLWindow, c.TitleWindow)
	}
	if c.MaxConcurrent != defaultMaxConcurrent || c.RequestsPerMinute != defaultRequestsPerMinute {
		t.Errorf("unexpected concurrency defaults: %+v", c)
	}
	if c.RetryAttempts != defaultRetryAttempts || c.RetryMultiplier != defaultRetryMultiplier {
		t.Errorf("unexpected retry defaults: %+v", c)
	}
	if c.DedupWithinPass {
		t.Error("expected in-pass title dedup to be off by default")
	}
	if c.EnrichFailure != "keep" {
		t.Errorf("expected enrich failure policy keep, got %q", c.EnrichFailure)
	}
	if cfg.Retention.Days != defaultRetentionDays {
		t.Errorf("expected retention %d days, got %d", defaultRetentionDays, cfg.Retention.Days)
	}
	if cfg.SourcesFile != defaultSourcesFile {
		t.Errorf("expected sources file %q, got %q", defaultSourcesFile, cfg.SourcesFile)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	clearConfigEnv(t)

	overrides := map[string]string{
		"SERVER_PORT":                  "9090",
		"SERVER_READ_TIMEOUT_SECONDS":  "30",
		"LOG_LEVEL":                    "debug",
		"LOG_FORMAT":                   "text",
		"DATABASE_URL":                 "postgres://newsdesk@localhost/newsdesk",
		"COLLECT_INTERVAL_MINUTES":     "15",
		"COLLECT_MAX_CONCURRENT":       "8",
		"COLLECT_RETRY_MULTIPLIER":     "1.5",
		"COLLECT_DEDUP_WITHIN_PASS":    "true",
		"COLLECT_ENRICH_FAILURE":       "skip",
		"COLLECT_BLOCKED_DOMAINS":      "spam.example, ads.example",
		"DEDUP_URL_WINDOW_HOURS":       "12",
		"RETENTION_DAYS":               "14",
		"KAFKA_BROKERS":                "kafka-1:9092,kafka-2:9092",
		"OPENAI_TEMPERATURE":           "0.7",
		"COLLECT_MIN_CONTENT_LENGTH":   "100",
		"COLLECT_MAX_ARTICLE_AGE_DAYS": "0",
	}
	for key, value := range overrides {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected overridden port, got %q", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("expected read timeout %v, got %v", 30*time.Second, cfg.Server.ReadTimeout)
	}
	if cfg.Logging.Level != slog.LevelDebug {
		t.Errorf("expected log level %v, got %v", slog.LevelDebug, cfg.Logging.Level)
	}
	if cfg.Database.URL != overrides["DATABASE_URL"] {
		t.Errorf("expected database URL override, got %q", cfg.Database.URL)
	}
	if cfg.Collection.Interval != 15*time.Minute {
		t.Errorf("expected interval 15m, got %v", cfg.Collection.Interval)
	}
	if cfg.Collection.MaxConcurrent != 8 {
		t.Errorf("expected max concurrent 8, got %d", cfg.Collection.MaxConcurrent)
	}
	if cfg.Collection.RetryMultiplier != 1.5 {
		t.Errorf("expected retry multiplier 1.5, got %v", cfg.Collection.RetryMultiplier)
	}
	if !cfg.Collection.DedupWithinPass {
		t.Error("expected in-pass dedup enabled")
	}
	if cfg.Collection.EnrichFailure != "skip" {
		t.Errorf("expected skip policy, got %q", cfg.Collection.EnrichFailure)
	}
	if !reflect.DeepEqual(cfg.Collection.BlockedDomains, []string{"spam.example", "ads.example"}) {
		t.Errorf("unexpected blocked domains: %v", cfg.Collection.BlockedDomains)
	}
	if cfg.Collection.URLWindow != 12*time.Hour {
		t.Errorf("expected url window 12h, got %v", cfg.Collection.URLWindow)
	}
	if cfg.Collection.MinContentLength != 100 || cfg.Collection.MaxArticleAgeDays != 0 {
		t.Errorf("unexpected filter settings: %+v", cfg.Collection)
	}
	if cfg.Retention.Days != 14 {
		t.Errorf("expected retention 14, got %d", cfg.Retention.Days)
	}
	if len(cfg.Delivery.Brokers) != 2 {
		t.Errorf("expected 2 brokers, got %v", cfg.Delivery.Brokers)
	}
	if cfg.Enrichment.Temperature != float32(0.7) {
		t.Errorf("expected temperature 0.7, got %v", cfg.Enrichment.Temperature)
	}
}

func TestLoadCloudSQLURL(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("INSTANCE_CONNECTION_NAME", "proj:region:db")
	t.Setenv("DB_USER", "newsdesk")
	t.Setenv("DB_NAME", "news")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	want := "host=/cloudsql/proj:region:db user=newsdesk dbname=news sslmode=disable"
	if cfg.Database.URL != want {
		t.Errorf("database URL = %q, want %q", cfg.Database.URL, want)
	}

	t.Setenv("DB_NAME", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when DB_NAME is missing")
	}
}

func TestLoadWithInvalidValues(t *testing.T) {
	tests := map[string]string{
		"SERVER_READ_TIMEOUT_SECONDS":     "-1",
		"SERVER_WRITE_TIMEOUT_SECONDS":    "abc",
		"SERVER_SHUTDOWN_TIMEOUT_SECONDS": "3.5",
		"LOG_LEVEL":                       "verbose",
		"LOG_FORMAT":                      "xml",
		"COLLECT_MAX_CONCURRENT":          "0",
		"COLLECT_RETRY_MULTIPLIER":        "0.5",
		"COLLECT_DEDUP_WITHIN_PASS":       "maybe",
		"COLLECT_ENRICH_FAILURE":          "drop",
		"RETENTION_DAYS":                  "-3",
		"OPENAI_TEMPERATURE":              "5",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv(key, value)

			if _, err := Load(); err == nil {
				t.Fatalf("expected error when %s=%q", key, value)
			}
		})
	}
}

func TestParseLogLevelAliases(t *testing.T) {
	tests := map[string]slog.Level{
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
	}

	for input, expected := range tests {
		level, err := parseLogLevel(input)
		if err != nil {
			t.Fatalf("parseLogLevel(%q) returned error: %v", input, err)
		}

		if level != expected {
			t.Errorf("parseLogLevel(%q) = %v, want %v", input, level, expected)
		}
	}
}

func TestParseDurationRejectsInvalidInput(t *testing.T) {
	cases := []string{"-1", "abc"}

	for _, input := range cases {
		if _, err := parseDuration(input, time.Second); err == nil {
			t.Fatalf("expected error for input %q", input)
		}
	}
}

func TestLoadDoesNotPersistEnvBetweenRuns(t *testing.T) {
	clearConfigEnv(t)

	t.Setenv("SERVER_READ_TIMEOUT_SECONDS", "5")
	if _, err := Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := os.Unsetenv("SERVER_READ_TIMEOUT_SECONDS"); err != nil {
		t.Fatalf("failed to unset env: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.ReadTimeout != defaultReadTimeout {
		t.Errorf("expected default read timeout after reset, got %v", cfg.Server.ReadTimeout)
	}
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT",
		"SERVER_PORT",
		"SERVER_READ_TIMEOUT_SECONDS",
		"SERVER_WRITE_TIMEOUT_SECONDS",
		"SERVER_SHUTDOWN_TIMEOUT_SECONDS",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"DATABASE_URL",
		"INSTANCE_CONNECTION_NAME",
		"DB_USER",
		"DB_PASSWORD",
		"DB_NAME",
		"DATABASE_MAX_CONNECTIONS",
		"MIGRATIONS_DIR",
		"COLLECT_INTERVAL_MINUTES",
		"COLLECT_MAX_CONCURRENT",
		"COLLECT_REQUESTS_PER_MINUTE",
		"COLLECT_BURST",
		"COLLECT_RETRY_ATTEMPTS",
		"COLLECT_RETRY_BASE_DELAY_SECONDS",
		"COLLECT_RETRY_MULTIPLIER",
		"COLLECT_SOURCE_TIMEOUT_SECONDS",
		"COLLECT_PASS_TIMEOUT_SECONDS",
		"COLLECT_DEDUP_WITHIN_PASS",
		"COLLECT_ENRICH_FAILURE",
		"COLLECT_MIN_CONTENT_LENGTH",
		"COLLECT_MAX_ARTICLE_AGE_DAYS",
		"COLLECT_BLOCKED_DOMAINS",
		"COLLECT_REQUIRED_KEYWORDS",
		"DEDUP_URL_WINDOW_HOURS",
		"DEDUP_TITLE_WINDOW_HOURS",
		"RETENTION_DAYS",
		"RETENTION_INTERVAL_HOURS",
		"OPENAI_API_KEY",
		"OPENAI_BASE_URL",
		"OPENAI_MODEL",
		"OPENAI_TEMPERATURE",
		"OPENAI_MAX_TOKENS",
		"OPENAI_TIMEOUT_SECONDS",
		"KAFKA_BROKERS",
		"KAFKA_TOPIC",
		"REDIS_URL",
		"REDIS_LOCK_TTL_SECONDS",
		"ADMIN_JWT_SECRET",
		"ADMIN_PASSWORD_HASH",
		"ADMIN_TOKEN_HOURS",
		"SOURCES_FILE",
	}

	for _, key := range keys {
		t.Setenv(key, "")
	}
}
