// Package config loads process configuration from the environment.
//
// An optional .env file is read first (godotenv never overrides variables
// that are already set), then each group is parsed with its defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	pstrings "civicdesk/pkg/platform/strings"
)

// Config aggregates every configuration group.
type Config struct {
	Server     Server
	Postgres   PostgresConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Moderation ModerationConfig
	Dedup      DedupConfig
	Retention  RetentionConfig
	Store      StoreConfig
	Catalog    CatalogConfig
	Notify     NotifyConfig
	RateLimit  RateLimitConfig
	LogLevel   string
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// PostgresConfig configures the database pool. An empty URL selects the
// in-memory stores.
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the Redis client used for distributed locks.
// An empty URL selects in-process locks.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	LockTTL      time.Duration
}

// KafkaConfig configures the status notification producer.
type KafkaConfig struct {
	Brokers     []string
	NotifyTopic string
}

// ModerationConfig holds content screening limits and thresholds.
type ModerationConfig struct {
	MaxLength       int
	RejectThreshold float64
	FlagThreshold   float64
	LexiconPath     string
}

// DedupConfig sets the fingerprint time bucket width.
type DedupConfig struct {
	Bucket time.Duration
}

// RetentionConfig drives the audit log sweeper.
type RetentionConfig struct {
	Horizon  time.Duration
	Interval time.Duration
}

// StoreConfig bounds units of work.
type StoreConfig struct {
	RetryAttempts int
	TxTimeout     time.Duration
}

// CatalogConfig selects the catalog source. An empty path reads Postgres.
type CatalogConfig struct {
	Path string
}

// NotifyConfig lists the target statuses that trigger a notification.
type NotifyConfig struct {
	Statuses []string
}

// RateLimitConfig bounds complaint submissions per actor. Zero Submissions
// disables the limit.
type RateLimitConfig struct {
	Submissions int
	Window      time.Duration
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the config from environment variables so main stays lean.
func FromEnv() (*Config, error) {
	p := &parser{}
	cfg := &Config{
		Server: Server{
			Addr:            getEnv("CIVICDESK_ADDR", ":8080"),
			ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Postgres: PostgresConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    p.int("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    p.int("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: p.duration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     p.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			LockTTL:      p.duration("REDIS_LOCK_TTL", 10*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:     pstrings.SplitList(os.Getenv("KAFKA_BROKERS")),
			NotifyTopic: getEnv("KAFKA_NOTIFY_TOPIC", "complaint-status-changed"),
		},
		Moderation: ModerationConfig{
			MaxLength:       p.int("MODERATION_MAX_LENGTH", 5000),
			RejectThreshold: p.float("MODERATION_REJECT_THRESHOLD", 3.0),
			FlagThreshold:   p.float("MODERATION_FLAG_THRESHOLD", 1.0),
			LexiconPath:     os.Getenv("MODERATION_LEXICON_PATH"),
		},
		Dedup: DedupConfig{
			Bucket: p.duration("DEDUP_BUCKET", 24*time.Hour),
		},
		Retention: RetentionConfig{
			Horizon:  p.duration("RETENTION_HORIZON", 2160*time.Hour),
			Interval: p.duration("RETENTION_INTERVAL", time.Hour),
		},
		Store: StoreConfig{
			RetryAttempts: p.int("STORE_RETRY_ATTEMPTS", 3),
			TxTimeout:     p.duration("STORE_TX_TIMEOUT", 5*time.Second),
		},
		Catalog: CatalogConfig{
			Path: os.Getenv("CATALOG_PATH"),
		},
		Notify: NotifyConfig{
			Statuses: pstrings.SplitList(getEnv("NOTIFY_ON_STATUSES", "resolved,rejected")),
		},
		RateLimit: RateLimitConfig{
			Submissions: p.int("RATE_LIMIT_SUBMISSIONS", 20),
			Window:      p.duration("RATE_LIMIT_WINDOW", time.Hour),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Moderation.MaxLength <= 0:
		return fmt.Errorf("MODERATION_MAX_LENGTH must be positive")
	case c.Moderation.FlagThreshold <= 0:
		return fmt.Errorf("MODERATION_FLAG_THRESHOLD must be positive")
	case c.Moderation.RejectThreshold < c.Moderation.FlagThreshold:
		return fmt.Errorf("MODERATION_REJECT_THRESHOLD must not be below MODERATION_FLAG_THRESHOLD")
	case c.Dedup.Bucket <= 0:
		return fmt.Errorf("DEDUP_BUCKET must be positive")
	case c.Retention.Horizon <= 0:
		return fmt.Errorf("RETENTION_HORIZON must be positive")
	case c.Retention.Interval <= 0:
		return fmt.Errorf("RETENTION_INTERVAL must be positive")
	case c.Store.RetryAttempts < 1:
		return fmt.Errorf("STORE_RETRY_ATTEMPTS must be at least 1")
	case c.Store.TxTimeout <= 0:
		return fmt.Errorf("STORE_TX_TIMEOUT must be positive")
	case c.RateLimit.Submissions < 0:
		return fmt.Errorf("RATE_LIMIT_SUBMISSIONS must not be negative")
	case c.RateLimit.Submissions > 0 && c.RateLimit.Window <= 0:
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	case len(c.Kafka.Brokers) > 0 && strings.TrimSpace(c.Kafka.NotifyTopic) == "":
		return fmt.Errorf("KAFKA_NOTIFY_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// parser keeps the first parse error so FromEnv reads top to bottom.
type parser struct {
	err error
}

func (p *parser) int(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v
}

func (p *parser) float(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v
}
