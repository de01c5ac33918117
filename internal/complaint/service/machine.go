package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"civicdesk/internal/complaint/models"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/sentinel"
)

// Machine applies lifecycle moves. Every method must run inside a unit of
// work: the record update and its log entry commit or roll back together.
type Machine struct {
	complaints ComplaintStore
	logs       LogStore
	router     Router
}

func NewMachine(complaints ComplaintStore, logs LogStore, router Router) *Machine {
	return &Machine{complaints: complaints, logs: logs, router: router}
}

// Intake is a submission that passed validation and screening.
type Intake struct {
	SubmitterID id.UserID
	TypeID      string
	Description string
	Fingerprint string
	Moderation  models.Moderation
}

// Create stores a new complaint in submitted with its routed unit and the
// creation log entry.
func (m *Machine) Create(ctx context.Context, in Intake, now time.Time) (*models.Complaint, error) {
	unitID, err := m.router.Resolve(in.TypeID)
	if err != nil {
		return nil, err
	}
	c, err := models.NewComplaint(id.NewComplaintID(), in.SubmitterID, in.TypeID, in.Description, in.Fingerprint, unitID, in.Moderation, now)
	if err != nil {
		return nil, err
	}
	if err := m.complaints.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create complaint: %w", err)
	}
	if err := m.logs.Append(ctx, models.NewCreatedEntry(c, in.SubmitterID, now)); err != nil {
		return nil, fmt.Errorf("append creation log: %w", err)
	}
	return c, nil
}

// Annotate appends a non-status entry to an open complaint and bumps its
// version so a concurrent transition cannot slip between read and append.
func (m *Machine) Annotate(ctx context.Context, complaintID id.ComplaintID, kind models.LogKind, actor id.UserID, note string, now time.Time) (*models.Complaint, error) {
	c, err := m.load(ctx, complaintID)
	if err != nil {
		return nil, err
	}
	if !c.IsOpen() {
		// Closed between lookup and lock: retry resolves afresh.
		return nil, fmt.Errorf("annotate %s complaint: %w", c.Status, sentinel.ErrConflict)
	}
	prev := c.Version
	c.Touch(now)
	if err := m.complaints.Update(ctx, c, prev); err != nil {
		return nil, fmt.Errorf("touch complaint: %w", err)
	}
	if err := m.logs.Append(ctx, models.NewAnnotationEntry(c, kind, actor, note, now)); err != nil {
		return nil, fmt.Errorf("append %s log: %w", kind, err)
	}
	return c, nil
}

// Transition performs req against the stored complaint. Rejected moves
// leave the record untouched.
func (m *Machine) Transition(ctx context.Context, req TransitionRequest, now time.Time) (*models.Complaint, models.Status, error) {
	c, err := m.load(ctx, req.ComplaintID)
	if err != nil {
		return nil, "", err
	}
	if err := c.CanTransition(req.To); err != nil {
		return nil, "", err
	}
	if req.UnitID != "" && req.To != models.StatusAssigned {
		return nil, "", dErrors.New(dErrors.CodeInvalidTransition, "a unit may only be supplied when assigning")
	}
	if req.MergeInto != nil && req.To != models.StatusMerged {
		return nil, "", dErrors.New(dErrors.CodeInvalidTransition, "a merge target may only be supplied when merging")
	}

	from := c.Status
	prev := c.Version
	switch req.To {
	case models.StatusAssigned:
		if err := m.assign(c, req.UnitID); err != nil {
			return nil, "", err
		}
		c.ApplyTransition(req.To, now)
	case models.StatusMerged:
		target, err := m.mergeTarget(ctx, c, req.MergeInto)
		if err != nil {
			return nil, "", err
		}
		c.ApplyMerge(target.ID, now)
		targetPrev := target.Version
		target.Touch(now)
		if err := m.complaints.Update(ctx, target, targetPrev); err != nil {
			return nil, "", fmt.Errorf("touch merge target: %w", err)
		}
		note := "merged from " + c.ID.String()
		if err := m.logs.Append(ctx, models.NewAnnotationEntry(target, models.LogKindMergeTarget, req.ActorID, note, now)); err != nil {
			return nil, "", fmt.Errorf("append merge target log: %w", err)
		}
	default:
		c.ApplyTransition(req.To, now)
	}

	if err := m.complaints.Update(ctx, c, prev); err != nil {
		return nil, "", fmt.Errorf("update complaint: %w", err)
	}
	if err := m.logs.Append(ctx, models.NewTransitionEntry(c, from, req.ActorID, req.Note, now)); err != nil {
		return nil, "", fmt.Errorf("append transition log: %w", err)
	}
	return c, from, nil
}

// assign keeps the routed unit unless unitID reassigns it.
func (m *Machine) assign(c *models.Complaint, unitID string) error {
	if unitID == "" {
		if c.AssignedUnit != "" {
			return nil
		}
		resolved, err := m.router.Resolve(c.TypeID)
		if err != nil {
			return err
		}
		c.ApplyAssignment(resolved)
		return nil
	}
	if err := m.router.CanHandle(unitID, c.TypeID); err != nil {
		return err
	}
	c.ApplyAssignment(unitID)
	return nil
}

func (m *Machine) mergeTarget(ctx context.Context, c *models.Complaint, targetID *id.ComplaintID) (*models.Complaint, error) {
	if targetID == nil || targetID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "merging requires a target complaint")
	}
	if *targetID == c.ID {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "a complaint cannot be merged into itself")
	}
	target, err := m.complaints.FindByID(ctx, *targetID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeInvalidTransition, "merge target not found")
		}
		return nil, fmt.Errorf("load merge target: %w", err)
	}
	if !target.IsOpen() {
		return nil, dErrors.New(dErrors.CodeInvalidTransition,
			fmt.Sprintf("merge target is %s", target.Status))
	}
	return target, nil
}

func (m *Machine) load(ctx context.Context, complaintID id.ComplaintID) (*models.Complaint, error) {
	c, err := m.complaints.FindByID(ctx, complaintID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "complaint not found")
		}
		return nil, fmt.Errorf("load complaint: %w", err)
	}
	return c, nil
}
