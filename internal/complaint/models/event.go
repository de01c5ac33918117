package models

import (
	"time"

	id "civicdesk/pkg/domain"
)

// StatusChanged is handed to the notifier after a transition commits.
type StatusChanged struct {
	ComplaintID  id.ComplaintID  `json:"complaint_id"`
	SubmitterID  id.UserID       `json:"submitter_id"`
	From         Status          `json:"from"`
	To           Status          `json:"to"`
	ActorID      id.UserID       `json:"actor_id"`
	Note         string          `json:"note,omitempty"`
	AssignedUnit string          `json:"assigned_unit"`
	MergedInto   *id.ComplaintID `json:"merged_into,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// NewStatusChanged describes the committed move from -> c.Status.
func NewStatusChanged(c *Complaint, from Status, actor id.UserID, note string) StatusChanged {
	return StatusChanged{
		ComplaintID:  c.ID,
		SubmitterID:  c.SubmitterID,
		From:         from,
		To:           c.Status,
		ActorID:      actor,
		Note:         note,
		AssignedUnit: c.AssignedUnit,
		MergedInto:   c.MergedInto,
		OccurredAt:   c.UpdatedAt,
	}
}
