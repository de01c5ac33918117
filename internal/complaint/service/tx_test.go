package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/tx"
)

func TestMemoryTx(t *testing.T) {
	mtx := NewMemoryTx(0)

	t.Run("commit keeps writes", func(t *testing.T) {
		undone := false
		err := mtx.RunInTx(context.Background(), func(txCtx context.Context) error {
			tx.OnRollback(txCtx, func() { undone = true })
			return nil
		})
		require.NoError(t, err)
		assert.False(t, undone)
	})

	t.Run("error replays undo in reverse", func(t *testing.T) {
		var order []int
		boom := errors.New("boom")
		err := mtx.RunInTx(context.Background(), func(txCtx context.Context) error {
			tx.OnRollback(txCtx, func() { order = append(order, 1) })
			tx.OnRollback(txCtx, func() { order = append(order, 2) })
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []int{2, 1}, order)
	})

	t.Run("already cancelled context never runs fn", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		ran := false
		err := mtx.RunInTx(ctx, func(context.Context) error {
			ran = true
			return nil
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
		assert.False(t, ran)
	})

	t.Run("timeout during fn rolls back", func(t *testing.T) {
		short := NewMemoryTx(10 * time.Millisecond)
		undone := false
		err := short.RunInTx(context.Background(), func(txCtx context.Context) error {
			tx.OnRollback(txCtx, func() { undone = true })
			<-txCtx.Done()
			return nil
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
		assert.True(t, undone)
	})
}
