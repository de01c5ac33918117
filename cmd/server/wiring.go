package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"civicdesk/internal/complaint/catalog"
	"civicdesk/internal/complaint/dedupe"
	"civicdesk/internal/complaint/metrics"
	"civicdesk/internal/complaint/models"
	"civicdesk/internal/complaint/moderation"
	"civicdesk/internal/complaint/notify"
	"civicdesk/internal/complaint/retention"
	"civicdesk/internal/complaint/routing"
	"civicdesk/internal/complaint/service"
	"civicdesk/internal/complaint/store/auditlog"
	complaintstore "civicdesk/internal/complaint/store/complaint"
	"civicdesk/internal/platform/config"
	"civicdesk/internal/platform/lock"
	"civicdesk/internal/platform/postgres"
	"civicdesk/internal/platform/redis"
	ratelimitmetrics "civicdesk/internal/ratelimit/metrics"
	ratelimit "civicdesk/internal/ratelimit/middleware"
	"civicdesk/internal/ratelimit/store/bucket"
)

// infra holds the optional external connections. Nil fields mean the
// in-process fallback is used.
type infra struct {
	db    *sql.DB
	redis *redis.Client
}

func openInfra(ctx context.Context, cfg *config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{}
	if cfg.Postgres.URL != "" {
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		in.db = db
		log.Info("postgres connected")
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		in.Close(log)
		return nil, err
	}
	in.redis = rdb
	if rdb == nil {
		log.Info("REDIS_URL not set, using in-process locks")
	}
	return in, nil
}

func (in *infra) Health(ctx context.Context) error {
	var errs []error
	if in.db != nil {
		if err := in.db.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	if in.redis != nil {
		if err := in.redis.Health(ctx); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (in *infra) Close(log *slog.Logger) {
	if in.redis != nil {
		if err := in.redis.Close(); err != nil {
			log.Warn("redis close failed", "error", err)
		}
	}
	if in.db != nil {
		if err := in.db.Close(); err != nil {
			log.Warn("postgres close failed", "error", err)
		}
	}
}

type stores struct {
	complaints service.ComplaintStore
	logs       service.LogStore
	purger     retention.Purger
	tx         service.StoreTx
}

func buildStores(cfg *config.Config, in *infra) stores {
	if in.db != nil {
		logs := auditlog.NewPostgres(in.db)
		return stores{
			complaints: complaintstore.NewPostgres(in.db),
			logs:       logs,
			purger:     logs,
			tx:         postgres.NewTx(in.db, cfg.Store.TxTimeout),
		}
	}
	logs := auditlog.NewInMemory()
	return stores{
		complaints: complaintstore.NewInMemory(),
		logs:       logs,
		purger:     logs,
		tx:         service.NewMemoryTx(cfg.Store.TxTimeout),
	}
}

// catalogReloader is satisfied by *catalog.Cache.
type catalogReloader interface {
	Reload(ctx context.Context) (*catalog.Snapshot, error)
}

// buildCatalog serves the catalog from Postgres when it is configured, so
// complaint rows can reference it. CATALOG_PATH (or the embedded default when
// the tables are empty) is upserted first. Without Postgres the YAML is served
// directly.
func buildCatalog(ctx context.Context, cfg *config.Config, in *infra, log *slog.Logger) (*catalog.Cache, error) {
	yamlSource := catalog.NewYAMLSource(cfg.Catalog.Path)
	if in.db == nil {
		return catalog.NewCache(ctx, yamlSource, log)
	}

	pgSource := catalog.NewPostgresSource(in.db)
	current, err := pgSource.Load(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.Catalog.Path != "" || current.TypeCount() == 0 {
		seed, err := yamlSource.Load(ctx)
		if err != nil {
			return nil, err
		}
		if err := catalog.Seed(ctx, in.db, seed); err != nil {
			return nil, err
		}
		log.Info("catalog seeded into postgres",
			"path", cfg.Catalog.Path,
			"types", seed.TypeCount(),
			"units", seed.UnitCount())
	}
	return catalog.NewCache(ctx, pgSource, log)
}

func newRouter(cache *catalog.Cache) *routing.Resolver {
	return routing.New(cache)
}

func buildScreener(cfg *config.Config) (*moderation.Filter, error) {
	lex := moderation.DefaultLexicon()
	if cfg.Moderation.LexiconPath != "" {
		loaded, err := moderation.LoadLexicon(cfg.Moderation.LexiconPath)
		if err != nil {
			return nil, err
		}
		lex = loaded
	}
	return moderation.New(lex, cfg.Moderation.MaxLength), nil
}

func newFingerprinter(cfg *config.Config) *dedupe.Fingerprinter {
	return dedupe.NewFingerprinter(cfg.Dedup.Bucket)
}

func serviceConfig(cfg *config.Config) (service.Config, error) {
	notifyOn := make([]models.Status, 0, len(cfg.Notify.Statuses))
	for _, raw := range cfg.Notify.Statuses {
		st, err := models.ParseStatus(raw)
		if err != nil {
			return service.Config{}, fmt.Errorf("NOTIFY_STATUSES: %w", err)
		}
		notifyOn = append(notifyOn, st)
	}
	return service.Config{
		RejectThreshold: cfg.Moderation.RejectThreshold,
		FlagThreshold:   cfg.Moderation.FlagThreshold,
		RetryAttempts:   cfg.Store.RetryAttempts,
		NotifyOn:        notifyOn,
	}, nil
}

func buildLocker(cfg *config.Config, in *infra) lock.Locker {
	if in.redis != nil {
		return lock.NewRedis(in.redis.Client, cfg.Redis.LockTTL)
	}
	return lock.NewMemory()
}

func buildSweeper(cfg *config.Config, in *infra, st stores, log *slog.Logger, m *metrics.Metrics) *retention.Sweeper {
	opts := []retention.Option{
		retention.WithHorizon(cfg.Retention.Horizon),
		retention.WithInterval(cfg.Retention.Interval),
		retention.WithLogger(log),
		retention.WithMetrics(m),
	}
	if in.redis != nil {
		opts = append(opts, retention.WithLeaderLock(lock.NewRedis(in.redis.Client, cfg.Redis.LockTTL)))
	}
	return retention.New(st.purger, opts...)
}

// closingNotifier is a service.Notifier that may hold broker resources.
type closingNotifier interface {
	service.Notifier
	Close(ctx context.Context) error
}

type logOnlyNotifier struct {
	*notify.LogNotifier
}

func (logOnlyNotifier) Close(context.Context) error { return nil }

func buildNotifier(ctx context.Context, cfg *config.Config, log *slog.Logger, m *metrics.Metrics) (closingNotifier, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("KAFKA_BROKERS not set, status changes are only logged")
		return logOnlyNotifier{notify.NewLogNotifier(log)}, nil
	}
	client, err := notify.NewKafkaClient(cfg.Kafka.Brokers, cfg.Kafka.NotifyTopic)
	if err != nil {
		return nil, err
	}
	if err := notify.EnsureTopic(ctx, client, cfg.Kafka.NotifyTopic, 3, 1); err != nil {
		client.Close()
		return nil, err
	}
	return notify.NewKafkaNotifier(client,
		notify.WithTopic(cfg.Kafka.NotifyTopic),
		notify.WithLogger(log),
		notify.WithMetrics(m),
	), nil
}

// buildSubmitLimiter returns the per-actor submission limiter. The returned
// in-memory store is non-nil when it needs a cleanup loop.
func buildSubmitLimiter(cfg *config.Config, in *infra, log *slog.Logger, reg prometheus.Registerer) (*ratelimit.Middleware, *bucket.InMemoryBucketStore) {
	var (
		store ratelimit.Store
		local *bucket.InMemoryBucketStore
	)
	if in.redis != nil {
		store = bucket.NewRedisStore(in.redis.Client)
	} else {
		local = bucket.NewInMemoryBucketStore()
		store = local
	}
	mw := ratelimit.New(store, cfg.RateLimit.Submissions, cfg.RateLimit.Window, log,
		ratelimit.WithMetrics(ratelimitmetrics.New(reg)),
	)
	if cfg.RateLimit.Submissions <= 0 {
		return mw, nil
	}
	return mw, local
}
