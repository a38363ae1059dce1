package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"msgstore/internal/domain"
)

func TestRebind(t *testing.T) {
	q := `INSERT INTO t(a, b) VALUES (?, ?) ON CONFLICT(a) DO UPDATE SET b=?`
	assert.Equal(t, q, SQLite.rebind(q))
	assert.Equal(t,
		`INSERT INTO t(a, b) VALUES ($1, $2) ON CONFLICT(a) DO UPDATE SET b=$3`,
		Postgres.rebind(q))
	assert.Equal(t, `SELECT 1`, Postgres.rebind(`SELECT 1`))
}

func TestDialectForDriver(t *testing.T) {
	assert.Equal(t, Postgres, DialectForDriver("postgres"))
	assert.Equal(t, SQLite, DialectForDriver("sqlite"))
	assert.Equal(t, SQLite, DialectForDriver("anything-else"))
}

func TestWithTxScopesOperations(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tx, err := s.owned.BeginTx(ctx, nil)
	require.NoError(t, err)

	txStore := s.WithTx(tx)
	m := domain.NewMessage("foo")
	require.NoError(t, txStore.AddMessageToGroup(ctx, "X", m))
	require.NoError(t, tx.Commit())

	g, err := s.GetMessageGroup(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, 1, g.Size())
}

func TestWithTxRollbackLeavesNothing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tx, err := s.owned.BeginTx(ctx, nil)
	require.NoError(t, err)

	txStore := s.WithTx(tx)
	require.NoError(t, txStore.AddMessageToGroup(ctx, "X", domain.NewMessage("foo")))
	require.NoError(t, tx.Rollback())

	g, err := s.GetMessageGroup(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, 0, g.Size())
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
