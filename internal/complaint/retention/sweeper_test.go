package retention

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"civicdesk/internal/complaint/metrics"
	"civicdesk/internal/complaint/models"
	"civicdesk/internal/complaint/store/auditlog"
	"civicdesk/internal/platform/lock"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
)

type SweeperSuite struct {
	suite.Suite
	logs    *auditlog.InMemory
	metrics *metrics.Metrics
	now     time.Time
	ctx     context.Context
}

func TestSweeperSuite(t *testing.T) {
	suite.Run(t, new(SweeperSuite))
}

func (s *SweeperSuite) SetupTest() {
	s.logs = auditlog.NewInMemory()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.now = time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	s.ctx = context.Background()
}

func (s *SweeperSuite) appendAt(cid id.ComplaintID, at time.Time) {
	s.Require().NoError(s.logs.Append(s.ctx, &models.LogEntry{
		ComplaintID: cid,
		Kind:        models.LogKindTransition,
		From:        models.StatusSubmitted,
		To:          models.StatusValidated,
		ActorID:     id.UserID(uuid.New()),
		CreatedAt:   at,
	}))
}

func (s *SweeperSuite) TestPurgeHonoursHorizonAndNewestEntry() {
	sweeper := New(s.logs, WithHorizon(30*24*time.Hour))
	cutoff := s.now.Add(-30 * 24 * time.Hour)

	busy := id.NewComplaintID()
	s.appendAt(busy, cutoff.Add(-10*24*time.Hour))
	s.appendAt(busy, cutoff.Add(-time.Second))
	s.appendAt(busy, cutoff.Add(time.Second))

	dormant := id.NewComplaintID()
	s.appendAt(dormant, cutoff.Add(-200*24*time.Hour))

	n, err := sweeper.Purge(s.ctx, s.now)
	s.Require().NoError(err)
	s.Equal(2, n)

	for _, cid := range []id.ComplaintID{busy, dormant} {
		entries, err := s.logs.ListByComplaint(s.ctx, cid)
		s.Require().NoError(err)
		s.Require().NotEmpty(entries, "every complaint keeps at least one entry")
		newest := entries[len(entries)-1]
		for _, e := range entries {
			s.True(!e.CreatedAt.Before(cutoff) || e == newest)
		}
	}

	s.Run("idempotent", func() {
		n, err := sweeper.Purge(s.ctx, s.now)
		s.Require().NoError(err)
		s.Zero(n)
	})
}

type failingPurger struct{ calls int }

func (f *failingPurger) PurgeBefore(context.Context, time.Time) (int, error) {
	f.calls++
	return 0, sentinel.ErrUnavailable
}

func (s *SweeperSuite) TestTickLogsFailureAndContinues() {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	purger := &failingPurger{}
	sweeper := New(purger, WithLogger(logger), WithMetrics(s.metrics))

	sweeper.Tick(s.ctx)
	sweeper.Tick(s.ctx)

	s.Equal(2, purger.calls, "no inline retry")
	s.Equal(2.0, promtestutil.ToFloat64(s.metrics.RetentionFailed))
	s.Contains(buf.String(), "retention sweep failed")
}

func (s *SweeperSuite) TestTickUsesClockAndCountsPurged() {
	cid := id.NewComplaintID()
	s.appendAt(cid, s.now.Add(-100*24*time.Hour))
	s.appendAt(cid, s.now)

	sweeper := New(s.logs, WithClock(func() time.Time { return s.now }), WithMetrics(s.metrics))
	sweeper.Tick(s.ctx)

	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.RetentionPurged))
}

func (s *SweeperSuite) TestTickSkipsWithoutLeadership() {
	leader := lock.NewMemory()
	unlock, err := leader.Lock(s.ctx, LeaderKey)
	s.Require().NoError(err)

	purger := &failingPurger{}
	sweeper := New(purger, WithLeaderLock(leader))
	sweeper.Tick(s.ctx)
	s.Zero(purger.calls)

	unlock()
	sweeper.Tick(s.ctx)
	s.Equal(1, purger.calls)
}

func (s *SweeperSuite) TestRunStopsWithContext() {
	purger := &failingPurger{}
	sweeper := New(purger, WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(s.ctx, 60*time.Millisecond)
	defer cancel()
	err := sweeper.Run(ctx)

	s.True(errors.Is(err, context.DeadlineExceeded))
	s.Positive(purger.calls)
}
