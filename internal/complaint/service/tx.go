package service

import (
	"context"
	"time"

	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/tx"
)

// defaultTxTimeout is the maximum duration for a unit of work.
const defaultTxTimeout = 5 * time.Second

// MemoryTx is the in-process StoreTx. Stores apply writes immediately and
// register undo actions on the journal carried by txCtx; a failed or
// cancelled unit of work replays them in reverse. Isolation between
// concurrent units comes from the service's keyed exclusive sections.
type MemoryTx struct {
	timeout time.Duration
}

// NewMemoryTx builds a MemoryTx. A zero timeout means defaultTxTimeout.
func NewMemoryTx(timeout time.Duration) *MemoryTx {
	return &MemoryTx{timeout: timeout}
}

func (t *MemoryTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	txCtx, journal := tx.WithJournal(ctx)
	if err := fn(txCtx); err != nil {
		journal.Rollback()
		return err
	}
	// Cancellation observed after the last write still aborts the unit.
	if err := txCtx.Err(); err != nil {
		journal.Rollback()
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	journal.Commit()
	return nil
}
