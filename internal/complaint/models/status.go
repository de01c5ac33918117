package models

import (
	"strings"

	dErrors "civicdesk/pkg/domain-errors"
)

// Status is the lifecycle position of a complaint.
type Status string

const (
	StatusSubmitted  Status = "submitted"
	StatusValidated  Status = "validated"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusRejected   Status = "rejected"
	StatusMerged     Status = "merged"
)

// transitions is the complete lifecycle table. Statuses without an entry are terminal.
var transitions = map[Status][]Status{
	StatusSubmitted:  {StatusValidated, StatusRejected, StatusMerged},
	StatusValidated:  {StatusAssigned, StatusRejected, StatusMerged},
	StatusAssigned:   {StatusInProgress, StatusRejected, StatusMerged},
	StatusInProgress: {StatusResolved, StatusRejected, StatusMerged},
}

// OpenStatuses are the statuses that take part in deduplication.
var OpenStatuses = []Status{StatusSubmitted, StatusValidated, StatusAssigned, StatusInProgress}

// ParseStatus accepts the canonical lowercase names, case-insensitively.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeMalformed, "unknown status "+s)
	}
	return st, nil
}

func (s Status) IsValid() bool {
	switch s {
	case StatusSubmitted, StatusValidated, StatusAssigned, StatusInProgress,
		StatusResolved, StatusRejected, StatusMerged:
		return true
	}
	return false
}

// IsOpen reports whether s is non-terminal.
func (s Status) IsOpen() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether s has no outgoing transitions.
func (s Status) IsTerminal() bool {
	return s.IsValid() && !s.IsOpen()
}

// CanTransitionTo reports whether the table allows s -> to.
func (s Status) CanTransitionTo(to Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s Status) String() string { return string(s) }
