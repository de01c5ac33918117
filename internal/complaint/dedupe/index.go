package dedupe

import (
	"context"
	"errors"
	"fmt"

	"civicdesk/internal/complaint/models"
	"civicdesk/internal/platform/lock"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
)

// Lookup finds the open complaint holding a fingerprint.
type Lookup interface {
	FindOpenByFingerprint(ctx context.Context, fingerprint string) (*models.Complaint, error)
}

// Index answers FindOpen and guards the check-and-register sequence.
//
// Registration itself is the record store's Create: the store refuses a
// second open complaint for the same fingerprint with sentinel.ErrAlreadyUsed.
// Lock narrows the window so that refusal is the exception; the store
// constraint keeps it correct across replicas when the locker is in-process.
type Index struct {
	lookup Lookup
	locker lock.Locker
}

// NewIndex builds an Index over lookup, serializing per fingerprint with locker.
func NewIndex(lookup Lookup, locker lock.Locker) *Index {
	return &Index{lookup: lookup, locker: locker}
}

// Lock enters the exclusive section for fingerprint.
func (ix *Index) Lock(ctx context.Context, fingerprint string) (lock.Unlock, error) {
	return ix.locker.Lock(ctx, LockKey(fingerprint))
}

// LockKey namespaces fingerprint sections away from complaint id sections.
func LockKey(fingerprint string) string {
	return "fingerprint:" + fingerprint
}

// FindOpen returns the id of the open complaint holding fingerprint.
// Complaints in a terminal status are never returned.
func (ix *Index) FindOpen(ctx context.Context, fingerprint string) (id.ComplaintID, bool, error) {
	c, err := ix.lookup.FindOpenByFingerprint(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return id.ComplaintID{}, false, nil
		}
		return id.ComplaintID{}, false, fmt.Errorf("find open fingerprint: %w", err)
	}
	if c == nil || !c.IsOpen() {
		return id.ComplaintID{}, false, nil
	}
	return c.ID, true, nil
}
