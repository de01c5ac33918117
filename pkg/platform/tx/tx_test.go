package tx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal(t *testing.T) {
	t.Run("rollback replays undo newest first", func(t *testing.T) {
		ctx, j := WithJournal(context.Background())
		var order []int
		OnRollback(ctx, func() { order = append(order, 1) })
		OnRollback(ctx, func() { order = append(order, 2) })

		j.Rollback()

		assert.Equal(t, []int{2, 1}, order)
	})

	t.Run("commit drops undo actions", func(t *testing.T) {
		ctx, j := WithJournal(context.Background())
		called := false
		OnRollback(ctx, func() { called = true })

		j.Commit()
		j.Rollback()

		assert.False(t, called)
	})

	t.Run("no journal in context is a no-op", func(t *testing.T) {
		ctx := context.Background()
		OnRollback(ctx, func() { t.Fatal("must not be registered") })
		_, ok := JournalFrom(ctx)
		require.False(t, ok)
	})
}

func TestWithTxNil(t *testing.T) {
	ctx := WithTx(context.Background(), nil)
	_, ok := From(ctx)
	assert.False(t, ok)
}
