// Package retention trims the complaint log past a fixed horizon.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"civicdesk/internal/complaint/metrics"
	"civicdesk/internal/platform/lock"
)

var tracer = otel.Tracer("civicdesk/retention")

const (
	// DefaultHorizon is 90 days.
	DefaultHorizon  = 90 * 24 * time.Hour
	DefaultInterval = time.Hour

	// LeaderKey is the section a replica must hold to sweep a tick.
	LeaderKey = "retention:sweep"
)

// Purger deletes entries older than cutoff, keeping each complaint's newest.
type Purger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Sweeper purges on a fixed cadence. It never deletes complaints and never
// retries inline: a failed tick waits for the next one.
type Sweeper struct {
	purger   Purger
	horizon  time.Duration
	interval time.Duration
	clock    func() time.Time
	leader   lock.TryLocker
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Sweeper)

func WithHorizon(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.horizon = d
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Sweeper) {
		s.clock = clock
	}
}

// WithLeaderLock makes replicas skip ticks they cannot claim.
func WithLeaderLock(l lock.TryLocker) Option {
	return func(s *Sweeper) {
		s.leader = l
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

func New(purger Purger, opts ...Option) *Sweeper {
	s := &Sweeper{
		purger:   purger,
		horizon:  DefaultHorizon,
		interval: DefaultInterval,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Purge removes entries with a timestamp strictly before now minus the
// horizon, except the newest entry of each complaint.
func (s *Sweeper) Purge(ctx context.Context, now time.Time) (int, error) {
	ctx, span := tracer.Start(ctx, "retention.Purge")
	defer span.End()

	cutoff := now.Add(-s.horizon)
	span.SetAttributes(attribute.String("retention.cutoff", cutoff.Format(time.RFC3339)))
	n, err := s.purger.PurgeBefore(ctx, cutoff)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("purge complaint logs before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	span.SetAttributes(attribute.Int("retention.removed", n))
	return n, nil
}

// Run sweeps every interval until ctx ends. It returns ctx.Err().
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Tick performs one scheduled sweep. Errors are logged, never returned.
func (s *Sweeper) Tick(ctx context.Context) {
	now := s.clock()

	if s.leader != nil {
		unlock, ok, err := s.leader.TryLock(ctx, LeaderKey)
		if err != nil {
			s.failed(ctx, err)
			return
		}
		if !ok {
			if s.logger != nil {
				s.logger.DebugContext(ctx, "retention sweep skipped, another replica holds the lock")
			}
			return
		}
		defer unlock()
	}

	n, err := s.Purge(ctx, now)
	if err != nil {
		s.failed(ctx, err)
		return
	}
	if s.metrics != nil {
		s.metrics.AddRetentionPurged(n)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "retention sweep completed",
			"removed", n,
			"horizon", s.horizon.String())
	}
}

func (s *Sweeper) failed(ctx context.Context, err error) {
	if s.metrics != nil {
		s.metrics.IncrementRetentionFailed()
	}
	if s.logger != nil {
		s.logger.ErrorContext(ctx, "retention sweep failed, retrying next tick", "error", err)
	}
}
