package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server      ServerConfig
	Logging     LoggingConfig
	Database    DatabaseConfig
	Collection  CollectionConfig
	Retention   RetentionConfig
	Enrichment  EnrichmentConfig
	Delivery    DeliveryConfig
	Redis       RedisConfig
	Auth        AuthConfig
	SourcesFile string
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// DatabaseConfig describes how to reach PostgreSQL.
type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MigrationsDir  string
}

// CollectionConfig drives the orchestrator and the collection scheduler.
type CollectionConfig struct {
	Interval          time.Duration
	MaxConcurrent     int
	RequestsPerMinute int
	Burst             int
	RetryAttempts     int
	RetryBaseDelay    time.Duration
	RetryMultiplier   float64
	SourceTimeout     time.Duration
	PassTimeout       time.Duration
	URLWindow         time.Duration
	TitleWindow       time.Duration
	DedupWithinPass   bool
	EnrichFailure     string // "keep" or "skip"
	MinContentLength  int
	MaxArticleAgeDays int
	BlockedDomains    []string
	RequiredKeywords  []string
}

// RetentionConfig controls the article cleanup job.
type RetentionConfig struct {
	Days     int
	Interval time.Duration
}

// EnrichmentConfig configures the OpenAI summarizer. An empty APIKey selects the
// rule-based enricher.
type EnrichmentConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// DeliveryConfig configures where newly persisted articles are published. No brokers
// means articles are only logged.
type DeliveryConfig struct {
	Brokers []string
	Topic   string
}

// RedisConfig enables the cross-replica scheduler lock when URL is set.
type RedisConfig struct {
	URL     string
	LockTTL time.Duration
}

// AuthConfig protects the operator API.
type AuthConfig struct {
	JWTSecret         string
	AdminPasswordHash string
	TokenDuration     time.Duration
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat = "json"

	defaultMaxConnections = 20
	defaultMigrationsDir  = "./migrations"

	defaultCollectInterval   = 30 * time.Minute
	defaultMaxConcurrent     = 4
	defaultRequestsPerMinute = 60
	defaultBurst             = 5
	defaultRetryAttempts     = 3
	defaultRetryBaseDelay    = 2 * time.Second
	defaultRetryMultiplier   = 2.0
	defaultSourceTimeout     = 2 * time.Minute
	defaultPassTimeout       = 15 * time.Minute
	defaultURLWindow         = 24 * time.Hour
	defaultTitleWindow       = 48 * time.Hour
	defaultEnrichFailure     = "keep"
	defaultMaxArticleAgeDays = 7

	defaultRetentionDays     = 30
	defaultRetentionInterval = 24 * time.Hour

	defaultOpenAIModel     = "gpt-4o-mini"
	defaultOpenAITimeout   = 60 * time.Second
	defaultOpenAIMaxTokens = 600

	defaultDeliveryTopic = "newsdesk.articles"
	defaultLockTTL       = 10 * time.Minute
	defaultTokenDuration = 24 * time.Hour

	defaultSourcesFile = "./sources.yaml"
)

// Load reads configuration from environment variables, applying defaults when
// values are not provided or invalid.
func Load() (Config, error) {
	// Cloud Run sets PORT, but allow SERVER_PORT override for local dev
	port := getEnv("PORT", "")
	if port == "" {
		port = getEnv("SERVER_PORT", defaultPort)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            port,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Database: DatabaseConfig{
			MaxConnections: defaultMaxConnections,
			MigrationsDir:  getEnv("MIGRATIONS_DIR", defaultMigrationsDir),
		},
		Collection: CollectionConfig{
			Interval:          defaultCollectInterval,
			MaxConcurrent:     defaultMaxConcurrent,
			RequestsPerMinute: defaultRequestsPerMinute,
			Burst:             defaultBurst,
			RetryAttempts:     defaultRetryAttempts,
			RetryBaseDelay:    defaultRetryBaseDelay,
			RetryMultiplier:   defaultRetryMultiplier,
			SourceTimeout:     defaultSourceTimeout,
			PassTimeout:       defaultPassTimeout,
			URLWindow:         defaultURLWindow,
			TitleWindow:       defaultTitleWindow,
			EnrichFailure:     defaultEnrichFailure,
			MaxArticleAgeDays: defaultMaxArticleAgeDays,
			BlockedDomains:    splitList(os.Getenv("COLLECT_BLOCKED_DOMAINS")),
			RequiredKeywords:  splitList(os.Getenv("COLLECT_REQUIRED_KEYWORDS")),
		},
		Retention: RetentionConfig{
			Days:     defaultRetentionDays,
			Interval: defaultRetentionInterval,
		},
		Enrichment: EnrichmentConfig{
			APIKey:      os.Getenv("OPENAI_API_KEY"),
			BaseURL:     os.Getenv("OPENAI_BASE_URL"),
			Model:       getEnv("OPENAI_MODEL", defaultOpenAIModel),
			Temperature: 0.3,
			MaxTokens:   defaultOpenAIMaxTokens,
			Timeout:     defaultOpenAITimeout,
		},
		Delivery: DeliveryConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_TOPIC", defaultDeliveryTopic),
		},
		Redis: RedisConfig{
			URL:     os.Getenv("REDIS_URL"),
			LockTTL: defaultLockTTL,
		},
		Auth: AuthConfig{
			JWTSecret:         os.Getenv("ADMIN_JWT_SECRET"),
			AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
			TokenDuration:     defaultTokenDuration,
		},
		SourcesFile: getEnv("SOURCES_FILE", defaultSourcesFile),
	}

	dbURL, err := buildDatabaseURL()
	if err != nil {
		return Config{}, err
	}
	cfg.Database.URL = dbURL

	durations := []struct {
		key    string
		target *time.Duration
		unit   time.Duration
	}{
		{"SERVER_READ_TIMEOUT_SECONDS", &cfg.Server.ReadTimeout, time.Second},
		{"SERVER_WRITE_TIMEOUT_SECONDS", &cfg.Server.WriteTimeout, time.Second},
		{"SERVER_SHUTDOWN_TIMEOUT_SECONDS", &cfg.Server.ShutdownTimeout, time.Second},
		{"COLLECT_INTERVAL_MINUTES", &cfg.Collection.Interval, time.Minute},
		{"COLLECT_RETRY_BASE_DELAY_SECONDS", &cfg.Collection.RetryBaseDelay, time.Second},
		{"COLLECT_SOURCE_TIMEOUT_SECONDS", &cfg.Collection.SourceTimeout, time.Second},
		{"COLLECT_PASS_TIMEOUT_SECONDS", &cfg.Collection.PassTimeout, time.Second},
		{"DEDUP_URL_WINDOW_HOURS", &cfg.Collection.URLWindow, time.Hour},
		{"DEDUP_TITLE_WINDOW_HOURS", &cfg.Collection.TitleWindow, time.Hour},
		{"RETENTION_INTERVAL_HOURS", &cfg.Retention.Interval, time.Hour},
		{"OPENAI_TIMEOUT_SECONDS", &cfg.Enrichment.Timeout, time.Second},
		{"REDIS_LOCK_TTL_SECONDS", &cfg.Redis.LockTTL, time.Second},
		{"ADMIN_TOKEN_HOURS", &cfg.Auth.TokenDuration, time.Hour},
	}
	for _, d := range durations {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := parseDuration(v, d.unit)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.target = parsed
	}

	ints := []struct {
		key      string
		target   *int
		positive bool
	}{
		{"DATABASE_MAX_CONNECTIONS", &cfg.Database.MaxConnections, true},
		{"COLLECT_MAX_CONCURRENT", &cfg.Collection.MaxConcurrent, true},
		{"COLLECT_REQUESTS_PER_MINUTE", &cfg.Collection.RequestsPerMinute, true},
		{"COLLECT_BURST", &cfg.Collection.Burst, true},
		{"COLLECT_RETRY_ATTEMPTS", &cfg.Collection.RetryAttempts, true},
		{"COLLECT_MIN_CONTENT_LENGTH", &cfg.Collection.MinContentLength, false},
		{"COLLECT_MAX_ARTICLE_AGE_DAYS", &cfg.Collection.MaxArticleAgeDays, false},
		{"RETENTION_DAYS", &cfg.Retention.Days, true},
		{"OPENAI_MAX_TOKENS", &cfg.Enrichment.MaxTokens, true},
	}
	for _, i := range ints {
		v := os.Getenv(i.key)
		if v == "" {
			continue
		}
		parsed, err := parseInt(v, i.positive)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", i.key, err)
		}
		*i.target = parsed
	}

	if v := os.Getenv("COLLECT_RETRY_MULTIPLIER"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 1 {
			return Config{}, fmt.Errorf("invalid COLLECT_RETRY_MULTIPLIER: must be a number >= 1")
		}
		cfg.Collection.RetryMultiplier = f
	}

	if v := os.Getenv("OPENAI_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil || f < 0 || f > 2 {
			return Config{}, fmt.Errorf("invalid OPENAI_TEMPERATURE: must be between 0 and 2")
		}
		cfg.Enrichment.Temperature = float32(f)
	}

	if v := os.Getenv("COLLECT_DEDUP_WITHIN_PASS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid COLLECT_DEDUP_WITHIN_PASS: %w", err)
		}
		cfg.Collection.DedupWithinPass = b
	}

	if v := os.Getenv("COLLECT_ENRICH_FAILURE"); v != "" {
		switch v {
		case "keep", "skip":
			cfg.Collection.EnrichFailure = v
		default:
			return Config{}, fmt.Errorf("invalid COLLECT_ENRICH_FAILURE: must be 'keep' or 'skip'")
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	return cfg, nil
}

// buildDatabaseURL prefers DATABASE_URL and falls back to a Cloud SQL unix socket
// built from INSTANCE_CONNECTION_NAME, DB_USER, DB_PASSWORD and DB_NAME. No database
// settings at all is not an error: the binary then runs against the in-memory store.
func buildDatabaseURL() (string, error) {
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		return dbURL, nil
	}

	instance := os.Getenv("INSTANCE_CONNECTION_NAME")
	if instance == "" {
		return "", nil
	}

	user, name := os.Getenv("DB_USER"), os.Getenv("DB_NAME")
	if user == "" || name == "" {
		return "", fmt.Errorf("DB_USER and DB_NAME must be set when using INSTANCE_CONNECTION_NAME")
	}

	parts := []string{
		"host=/cloudsql/" + instance,
		"user=" + user,
		"dbname=" + name,
		"sslmode=disable",
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		parts = append(parts, "password="+password)
	}
	return strings.Join(parts, " "), nil
}

func parseDuration(raw string, unit time.Duration) (time.Duration, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(n) * unit, nil
}

func parseInt(raw string, positive bool) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if positive && n <= 0 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	if n < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return n, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
