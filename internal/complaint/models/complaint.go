package models

import (
	"fmt"
	"time"

	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
)

// Complaint is the aggregate root of the pipeline.
//
// Invariants:
//   - ID, SubmitterID, TypeID, Description, Fingerprint, CreatedAt and the
//     moderation outcome are fixed at intake
//   - Status changes only through CanTransition + ApplyTransition
//   - MergedInto is set exactly when Status is merged
//   - at most one open complaint exists per Fingerprint (enforced by the store)
//   - Version increases by one on every committed mutation
type Complaint struct {
	ID           id.ComplaintID  `json:"id"`
	SubmitterID  id.UserID       `json:"submitter_id"`
	TypeID       string          `json:"type_id"`
	Description  string          `json:"description"`
	HasProfanity bool            `json:"has_profanity"`
	Severity     float64         `json:"severity"`
	Sentiment    float64         `json:"sentiment"`
	NeedsReview  bool            `json:"needs_review"`
	Fingerprint  string          `json:"fingerprint"`
	Status       Status          `json:"status"`
	AssignedUnit string          `json:"assigned_unit"`
	MergedInto   *id.ComplaintID `json:"merged_into,omitempty"`
	Version      int             `json:"version"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Moderation is the screening signal recorded at intake.
type Moderation struct {
	HasProfanity bool
	Severity     float64
	Sentiment    float64
	NeedsReview  bool
}

// NewComplaint builds a complaint in its initial status with its routed unit.
func NewComplaint(
	complaintID id.ComplaintID,
	submitter id.UserID,
	typeID, description, fingerprint, unitID string,
	mod Moderation,
	now time.Time,
) (*Complaint, error) {
	if submitter.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "complaint submitter is required")
	}
	if typeID == "" || description == "" || fingerprint == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "complaint type, description and fingerprint are required")
	}
	if unitID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "complaint must be routed before creation")
	}
	return &Complaint{
		ID:           complaintID,
		SubmitterID:  submitter,
		TypeID:       typeID,
		Description:  description,
		HasProfanity: mod.HasProfanity,
		Severity:     mod.Severity,
		Sentiment:    mod.Sentiment,
		NeedsReview:  mod.NeedsReview,
		Fingerprint:  fingerprint,
		Status:       StatusSubmitted,
		AssignedUnit: unitID,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (c *Complaint) IsOpen() bool {
	return c.Status.IsOpen()
}

// CanTransition checks the lifecycle table for c.Status -> to.
// Pair with ApplyTransition inside RunInTx.
func (c *Complaint) CanTransition(to Status) error {
	if !to.IsValid() {
		return dErrors.New(dErrors.CodeInvalidTransition, fmt.Sprintf("unknown target status %q", to))
	}
	if to == StatusSubmitted {
		return dErrors.New(dErrors.CodeInvalidTransition, "submitted is only entered at creation")
	}
	if !c.Status.CanTransitionTo(to) {
		return dErrors.New(dErrors.CodeInvalidTransition,
			fmt.Sprintf("cannot transition from %s to %s", c.Status, to))
	}
	return nil
}

// ApplyTransition moves the complaint to status to.
// Call CanTransition first to validate the transition.
func (c *Complaint) ApplyTransition(to Status, now time.Time) {
	c.Status = to
	c.UpdatedAt = now
	c.Version++
}

// ApplyAssignment records a reassignment to unitID. Only valid together with
// a transition to assigned.
func (c *Complaint) ApplyAssignment(unitID string) {
	c.AssignedUnit = unitID
}

// ApplyMerge marks the complaint as folded into target.
func (c *Complaint) ApplyMerge(target id.ComplaintID, now time.Time) {
	t := target
	c.MergedInto = &t
	c.ApplyTransition(StatusMerged, now)
}

// Touch bumps the version for a mutation that does not change status,
// such as a duplicate note or an incoming merge.
func (c *Complaint) Touch(now time.Time) {
	c.UpdatedAt = now
	c.Version++
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (c *Complaint) Clone() *Complaint {
	if c == nil {
		return nil
	}
	cp := *c
	if c.MergedInto != nil {
		m := *c.MergedInto
		cp.MergedInto = &m
	}
	return &cp
}
