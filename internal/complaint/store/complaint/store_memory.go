// Package complaint persists complaint records.
//
// Stores are pure I/O: lifecycle rules live in models and the service. Both
// implementations enforce the open-fingerprint uniqueness constraint and the
// optimistic version check.
package complaint

import (
	"context"
	"sync"

	"civicdesk/internal/complaint/models"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
	"civicdesk/pkg/platform/tx"
)

// InMemory keeps complaints in maps guarded by one RWMutex. Mutations made
// inside a unit of work register undo actions on the context's journal.
type InMemory struct {
	mu          sync.RWMutex
	complaints  map[id.ComplaintID]*models.Complaint
	openByPrint map[string]id.ComplaintID
}

func NewInMemory() *InMemory {
	return &InMemory{
		complaints:  make(map[id.ComplaintID]*models.Complaint),
		openByPrint: make(map[string]id.ComplaintID),
	}
}

func (s *InMemory) FindByID(_ context.Context, complaintID id.ComplaintID) (*models.Complaint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.complaints[complaintID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *InMemory) FindOpenByFingerprint(_ context.Context, fingerprint string) (*models.Complaint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cid, ok := s.openByPrint[fingerprint]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.complaints[cid].Clone(), nil
}

// Create inserts c. Another open complaint holding c.Fingerprint, or a
// reused id, fails with sentinel.ErrAlreadyUsed.
func (s *InMemory) Create(ctx context.Context, c *models.Complaint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.complaints[c.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	if c.IsOpen() {
		if _, taken := s.openByPrint[c.Fingerprint]; taken {
			return sentinel.ErrAlreadyUsed
		}
		s.openByPrint[c.Fingerprint] = c.ID
	}
	stored := c.Clone()
	s.complaints[stored.ID] = stored

	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.complaints, stored.ID)
		if s.openByPrint[stored.Fingerprint] == stored.ID {
			delete(s.openByPrint, stored.Fingerprint)
		}
	})
	return nil
}

// Update replaces the stored record if its version still equals
// expectedVersion. A moved record fails with sentinel.ErrConflict.
func (s *InMemory) Update(ctx context.Context, c *models.Complaint, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.complaints[c.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if prev.Version != expectedVersion {
		return sentinel.ErrConflict
	}
	next := c.Clone()
	s.complaints[c.ID] = next
	s.reindex(prev, next)

	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.complaints[prev.ID] = prev
		s.reindex(next, prev)
	})
	return nil
}

// reindex moves the open-fingerprint entry from old's state to cur's.
// Callers hold s.mu.
func (s *InMemory) reindex(old, cur *models.Complaint) {
	if old.IsOpen() && !cur.IsOpen() && s.openByPrint[old.Fingerprint] == old.ID {
		delete(s.openByPrint, old.Fingerprint)
	}
	if cur.IsOpen() {
		s.openByPrint[cur.Fingerprint] = cur.ID
	}
}

// Count is used by tests to assert nothing was created.
func (s *InMemory) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.complaints)
}
