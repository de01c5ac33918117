package models

import (
	"time"

	id "civicdesk/pkg/domain"
)

// LogKind distinguishes status changes from annotations in the audit log.
type LogKind string

const (
	// LogKindCreated is the first entry of every complaint: "" -> submitted.
	LogKindCreated LogKind = "created"
	// LogKindTransition records a committed status change.
	LogKindTransition LogKind = "transition"
	// LogKindDuplicate notes a merged duplicate submission; From == To.
	LogKindDuplicate LogKind = "duplicate"
	// LogKindMergeTarget notes that another complaint was folded into this one; From == To.
	LogKindMergeTarget LogKind = "merge_target"
)

// ChangesStatus reports whether entries of this kind belong to the status path.
func (k LogKind) ChangesStatus() bool {
	return k == LogKindCreated || k == LogKindTransition
}

// LogEntry is an append-only audit record. Seq is assigned by the store and
// orders entries that share a timestamp.
type LogEntry struct {
	Seq         int64          `json:"seq"`
	ComplaintID id.ComplaintID `json:"complaint_id"`
	Kind        LogKind        `json:"kind"`
	From        Status         `json:"from,omitempty"`
	To          Status         `json:"to"`
	ActorID     id.UserID      `json:"actor_id"`
	Note        string         `json:"note,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// NewCreatedEntry is the entry emitted with a new complaint.
func NewCreatedEntry(c *Complaint, actor id.UserID, now time.Time) *LogEntry {
	return &LogEntry{
		ComplaintID: c.ID,
		Kind:        LogKindCreated,
		To:          StatusSubmitted,
		ActorID:     actor,
		CreatedAt:   now,
	}
}

// NewTransitionEntry records from -> c.Status.
func NewTransitionEntry(c *Complaint, from Status, actor id.UserID, note string, now time.Time) *LogEntry {
	return &LogEntry{
		ComplaintID: c.ID,
		Kind:        LogKindTransition,
		From:        from,
		To:          c.Status,
		ActorID:     actor,
		Note:        note,
		CreatedAt:   now,
	}
}

// NewAnnotationEntry records a non-status event at the complaint's current status.
func NewAnnotationEntry(c *Complaint, kind LogKind, actor id.UserID, note string, now time.Time) *LogEntry {
	return &LogEntry{
		ComplaintID: c.ID,
		Kind:        kind,
		From:        c.Status,
		To:          c.Status,
		ActorID:     actor,
		Note:        note,
		CreatedAt:   now,
	}
}

// ValidStatusPath reports whether the status-changing entries, oldest first,
// start with a creation and then walk the lifecycle table.
func ValidStatusPath(entries []*LogEntry) bool {
	var current Status
	seenCreate := false
	for _, e := range entries {
		if !e.Kind.ChangesStatus() {
			continue
		}
		if e.Kind == LogKindCreated {
			if seenCreate || e.To != StatusSubmitted {
				return false
			}
			seenCreate = true
			current = StatusSubmitted
			continue
		}
		if !seenCreate || e.From != current || !current.CanTransitionTo(e.To) {
			return false
		}
		current = e.To
	}
	return true
}
