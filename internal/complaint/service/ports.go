package service

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"civicdesk/internal/complaint/catalog"
	"civicdesk/internal/complaint/models"
	"civicdesk/internal/complaint/moderation"
	id "civicdesk/pkg/domain"
)

// ComplaintStore persists complaint records. Create refuses a second open
// complaint for the same fingerprint with sentinel.ErrAlreadyUsed; Update is
// a compare-and-swap on Version and fails with sentinel.ErrConflict.
type ComplaintStore interface {
	FindByID(ctx context.Context, complaintID id.ComplaintID) (*models.Complaint, error)
	FindOpenByFingerprint(ctx context.Context, fingerprint string) (*models.Complaint, error)
	Create(ctx context.Context, c *models.Complaint) error
	Update(ctx context.Context, c *models.Complaint, expectedVersion int) error
}

// LogStore is the append-only complaint log.
type LogStore interface {
	Append(ctx context.Context, entry *models.LogEntry) error
	ListByComplaint(ctx context.Context, complaintID id.ComplaintID) ([]*models.LogEntry, error)
}

// StoreTx runs fn as one unit of work. Stores called with txCtx join it.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

// Notifier receives committed status changes. Delivery is fire-and-forget.
type Notifier interface {
	NotifyStatusChanged(ctx context.Context, event models.StatusChanged) error
}

// Screener scores description text.
type Screener interface {
	Screen(text string) (moderation.Result, error)
}

// Router picks the municipal unit for a complaint type.
type Router interface {
	Resolve(typeID string) (string, error)
	CanHandle(unitID, typeID string) error
}

// Catalog yields the current type/unit snapshot.
type Catalog interface {
	Snapshot() *catalog.Snapshot
}
