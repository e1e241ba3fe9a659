package tx

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithTx(t *testing.T) {
	ctx := context.Background()

	t.Run("nil tx leaves context untouched", func(t *testing.T) {
		assert.Equal(t, ctx, WithTx(ctx, nil))
		assert.False(t, InTx(ctx))
	})

	t.Run("stored tx is returned by From", func(t *testing.T) {
		sqlTx := &sql.Tx{}
		withTx := WithTx(ctx, sqlTx)
		got, ok := From(withTx)
		assert.True(t, ok)
		assert.Same(t, sqlTx, got)
		assert.True(t, InTx(withTx))
		assert.Same(t, sqlTx, ExecutorFrom(withTx, nil))
	})

	t.Run("falls back to db", func(t *testing.T) {
		db := &sql.DB{}
		assert.Same(t, db, ExecutorFrom(ctx, db))
	})
}
