// Package auditlog is the append-only complaint log. Entries are only ever
// removed by PurgeBefore, which always keeps each complaint's newest entry.
package auditlog

import (
	"context"
	"sync"
	"time"

	"civicdesk/internal/complaint/models"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/tx"
)

// InMemory stores entries per complaint in seq order.
type InMemory struct {
	mu      sync.RWMutex
	seq     int64
	entries map[id.ComplaintID][]*models.LogEntry
}

func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[id.ComplaintID][]*models.LogEntry)}
}

// Append assigns the next seq to entry and stores a copy.
func (s *InMemory) Append(ctx context.Context, entry *models.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	entry.Seq = s.seq
	stored := *entry
	s.entries[entry.ComplaintID] = append(s.entries[entry.ComplaintID], &stored)

	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		list := s.entries[stored.ComplaintID]
		for i, e := range list {
			if e.Seq == stored.Seq {
				s.entries[stored.ComplaintID] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(s.entries[stored.ComplaintID]) == 0 {
			delete(s.entries, stored.ComplaintID)
		}
	})
	return nil
}

// Len counts stored entries across all complaints.
func (s *InMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, list := range s.entries {
		n += len(list)
	}
	return n
}

// ListByComplaint returns copies, oldest first.
func (s *InMemory) ListByComplaint(_ context.Context, complaintID id.ComplaintID) ([]*models.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.entries[complaintID]
	out := make([]*models.LogEntry, 0, len(list))
	for _, e := range list {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

// PurgeBefore removes entries created strictly before cutoff, except the
// newest entry of each complaint.
func (s *InMemory) PurgeBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for cid, list := range s.entries {
		if len(list) == 0 {
			continue
		}
		newest := list[len(list)-1]
		kept := make([]*models.LogEntry, 0, len(list))
		for _, e := range list {
			if e != newest && e.CreatedAt.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		s.entries[cid] = kept
	}
	return removed, nil
}
