package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
)

var testNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newTestComplaint(t *testing.T) *Complaint {
	t.Helper()
	c, err := NewComplaint(id.NewComplaintID(), id.UserID(uuid.New()), "pothole", "hole in road", "fp", "roads", Moderation{}, testNow)
	require.NoError(t, err)
	return c
}

func TestTransitionTable(t *testing.T) {
	all := []Status{StatusSubmitted, StatusValidated, StatusAssigned, StatusInProgress, StatusResolved, StatusRejected, StatusMerged}
	allowed := map[Status]map[Status]bool{
		StatusSubmitted:  {StatusValidated: true, StatusRejected: true, StatusMerged: true},
		StatusValidated:  {StatusAssigned: true, StatusRejected: true, StatusMerged: true},
		StatusAssigned:   {StatusInProgress: true, StatusRejected: true, StatusMerged: true},
		StatusInProgress: {StatusResolved: true, StatusRejected: true, StatusMerged: true},
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[from][to]
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []Status{StatusResolved, StatusRejected, StatusMerged} {
		assert.True(t, s.IsTerminal(), s)
		assert.False(t, s.IsOpen(), s)
	}
	for _, s := range OpenStatuses {
		assert.True(t, s.IsOpen(), s)
	}
	assert.False(t, Status("bogus").IsTerminal())
}

func TestComplaintCanTransition(t *testing.T) {
	t.Run("submitted to resolved is invalid and leaves record untouched", func(t *testing.T) {
		c := newTestComplaint(t)
		before := *c

		err := c.CanTransition(StatusResolved)

		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
		assert.Equal(t, before, *c)
	})

	t.Run("re-entering submitted is never allowed", func(t *testing.T) {
		c := newTestComplaint(t)
		err := c.CanTransition(StatusSubmitted)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	t.Run("unknown target", func(t *testing.T) {
		c := newTestComplaint(t)
		err := c.CanTransition(Status("archived"))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	t.Run("apply bumps version and timestamp", func(t *testing.T) {
		c := newTestComplaint(t)
		later := testNow.Add(time.Hour)
		require.NoError(t, c.CanTransition(StatusValidated))

		c.ApplyTransition(StatusValidated, later)

		assert.Equal(t, StatusValidated, c.Status)
		assert.Equal(t, 2, c.Version)
		assert.Equal(t, later, c.UpdatedAt)
		assert.Equal(t, testNow, c.CreatedAt)
	})

	t.Run("merge records target", func(t *testing.T) {
		c := newTestComplaint(t)
		target := id.NewComplaintID()

		c.ApplyMerge(target, testNow)

		assert.Equal(t, StatusMerged, c.Status)
		require.NotNil(t, c.MergedInto)
		assert.Equal(t, target, *c.MergedInto)
	})
}

func TestNewComplaintRequiresRouting(t *testing.T) {
	_, err := NewComplaint(id.NewComplaintID(), id.UserID(uuid.New()), "pothole", "x", "fp", "", Moderation{}, testNow)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestCloneIsDeep(t *testing.T) {
	c := newTestComplaint(t)
	c.ApplyMerge(id.NewComplaintID(), testNow)

	cp := c.Clone()
	*cp.MergedInto = id.NewComplaintID()

	assert.NotEqual(t, *c.MergedInto, *cp.MergedInto)
}

func TestValidStatusPath(t *testing.T) {
	c := newTestComplaint(t)
	actor := id.UserID(uuid.New())
	created := NewCreatedEntry(c, actor, testNow)

	c.ApplyTransition(StatusValidated, testNow)
	validated := NewTransitionEntry(c, StatusSubmitted, actor, "", testNow)
	dup := NewAnnotationEntry(c, LogKindDuplicate, actor, "duplicate", testNow)
	c.ApplyTransition(StatusAssigned, testNow)
	assigned := NewTransitionEntry(c, StatusValidated, actor, "", testNow)

	assert.True(t, ValidStatusPath([]*LogEntry{created, validated, dup, assigned}))
	assert.False(t, ValidStatusPath([]*LogEntry{created, assigned}))
	assert.False(t, ValidStatusPath([]*LogEntry{created, validated, created}))
	assert.True(t, ValidStatusPath(nil))
}
