package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"civicdesk/pkg/platform/sentinel"
)

func TestClassify(t *testing.T) {
	t.Run("unique violation is already used", func(t *testing.T) {
		err := Classify(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}))
		assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
	})

	t.Run("serialization failure is unavailable", func(t *testing.T) {
		err := Classify(&pgconn.PgError{Code: "40001"})
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	})

	t.Run("closed connection is unavailable", func(t *testing.T) {
		err := Classify(fmt.Errorf("query: %w", sql.ErrConnDone))
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	})

	t.Run("check violation passes through", func(t *testing.T) {
		orig := &pgconn.PgError{Code: "23514"}
		err := Classify(orig)
		assert.False(t, errors.Is(err, sentinel.ErrUnavailable))
		assert.False(t, errors.Is(err, sentinel.ErrAlreadyUsed))
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Classify(nil))
	})
}
