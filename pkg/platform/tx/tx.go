// Package tx carries the active unit of work through context.
//
// Postgres stores look for a *sql.Tx; in-memory stores look for a Journal and
// register undo actions on it so a failed unit of work leaves no state behind.
package tx

import (
	"context"
	"database/sql"
	"sync"
)

type ctxKey struct{}
type journalKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Journal collects undo actions for an in-memory unit of work.
type Journal struct {
	mu   sync.Mutex
	undo []func()
}

// WithJournal starts a journal and stores it in context.
func WithJournal(ctx context.Context) (context.Context, *Journal) {
	j := &Journal{}
	return context.WithValue(ctx, journalKey{}, j), j
}

// JournalFrom extracts the active journal if present.
func JournalFrom(ctx context.Context) (*Journal, bool) {
	j, ok := ctx.Value(journalKey{}).(*Journal)
	return j, ok
}

// OnRollback registers fn on the context's journal. Outside a unit of work
// the mutation is final and fn is dropped.
func OnRollback(ctx context.Context, fn func()) {
	if j, ok := JournalFrom(ctx); ok {
		j.mu.Lock()
		j.undo = append(j.undo, fn)
		j.mu.Unlock()
	}
}

// Rollback replays undo actions newest first and empties the journal.
func (j *Journal) Rollback() {
	j.mu.Lock()
	undo := j.undo
	j.undo = nil
	j.mu.Unlock()
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
}

// Commit discards the undo actions.
func (j *Journal) Commit() {
	j.mu.Lock()
	j.undo = nil
	j.mu.Unlock()
}
