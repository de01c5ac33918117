package auditlog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"civicdesk/internal/complaint/models"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/tx"
)

type InMemoryLogSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	now   time.Time
	actor id.UserID
}

func TestInMemoryLogSuite(t *testing.T) {
	suite.Run(t, new(InMemoryLogSuite))
}

func (s *InMemoryLogSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.actor = id.UserID(uuid.New())
}

func (s *InMemoryLogSuite) entry(cid id.ComplaintID, at time.Time) *models.LogEntry {
	return &models.LogEntry{ComplaintID: cid, Kind: models.LogKindTransition, From: models.StatusSubmitted, To: models.StatusValidated, ActorID: s.actor, CreatedAt: at}
}

func (s *InMemoryLogSuite) TestAppendAssignsIncreasingSeq() {
	cid := id.NewComplaintID()
	first := s.entry(cid, s.now)
	second := s.entry(cid, s.now)
	s.Require().NoError(s.store.Append(s.ctx, first))
	s.Require().NoError(s.store.Append(s.ctx, second))

	s.Less(first.Seq, second.Seq)

	list, err := s.store.ListByComplaint(s.ctx, cid)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(first.Seq, list[0].Seq)
}

func (s *InMemoryLogSuite) TestListUnknownComplaintIsEmpty() {
	list, err := s.store.ListByComplaint(s.ctx, id.NewComplaintID())
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *InMemoryLogSuite) TestPurgeBefore() {
	horizon := 90 * 24 * time.Hour
	cutoff := s.now.Add(-horizon)

	active := id.NewComplaintID()
	s.Require().NoError(s.store.Append(s.ctx, s.entry(active, cutoff.Add(-48*time.Hour))))
	s.Require().NoError(s.store.Append(s.ctx, s.entry(active, cutoff.Add(-time.Hour))))
	s.Require().NoError(s.store.Append(s.ctx, s.entry(active, cutoff)))
	s.Require().NoError(s.store.Append(s.ctx, s.entry(active, s.now)))

	stale := id.NewComplaintID()
	s.Require().NoError(s.store.Append(s.ctx, s.entry(stale, cutoff.Add(-72*time.Hour))))
	s.Require().NoError(s.store.Append(s.ctx, s.entry(stale, cutoff.Add(-24*time.Hour))))

	removed, err := s.store.PurgeBefore(s.ctx, cutoff)
	s.Require().NoError(err)
	s.Equal(3, removed)

	s.Run("entries at exactly the cutoff survive", func() {
		list, _ := s.store.ListByComplaint(s.ctx, active)
		s.Require().Len(list, 2)
		s.True(list[0].CreatedAt.Equal(cutoff))
	})

	s.Run("newest entry survives regardless of age", func() {
		list, _ := s.store.ListByComplaint(s.ctx, stale)
		s.Require().Len(list, 1)
		s.True(list[0].CreatedAt.Equal(cutoff.Add(-24 * time.Hour)))
	})

	s.Run("second sweep is a no-op", func() {
		again, err := s.store.PurgeBefore(s.ctx, cutoff)
		s.Require().NoError(err)
		s.Zero(again)
	})
}

func (s *InMemoryLogSuite) TestRollbackRemovesAppend() {
	cid := id.NewComplaintID()
	s.Require().NoError(s.store.Append(s.ctx, s.entry(cid, s.now)))

	txCtx, journal := tx.WithJournal(s.ctx)
	s.Require().NoError(s.store.Append(txCtx, s.entry(cid, s.now)))
	journal.Rollback()

	list, _ := s.store.ListByComplaint(s.ctx, cid)
	s.Len(list, 1)
	s.Equal(1, s.store.Len())
}
