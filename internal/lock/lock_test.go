package lock

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/openmemory/core/internal/persistence"
)

func newTestSQLiteLocker(t *testing.T) *SQLiteLocker {
	t.Helper()
	db, err := persistence.OpenSQLite(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	tables, err := persistence.NewTableNames(persistence.DialectSQLite, "public", "om")
	require.NoError(t, err)
	require.NoError(t, persistence.Init(context.Background(), db, tables))

	return NewSQLiteLocker(db, tables.Locks)
}

func TestAcquireBlocksConcurrentHolder(t *testing.T) {
	l := newTestSQLiteLocker(t)
	ctx := context.Background()

	token, err := l.Acquire(ctx, "doc:1", 60_000)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	second, err := l.Acquire(ctx, "doc:1", 60_000)
	require.NoError(t, err)
	require.Empty(t, second) // already held, not an error
}

func TestReleaseIsIdempotentAndAllowsReacquire(t *testing.T) {
	l := newTestSQLiteLocker(t)
	ctx := context.Background()

	token, err := l.Acquire(ctx, "doc:1", 60_000)
	require.NoError(t, err)

	require.NoError(t, l.Release(ctx, "doc:1", token))
	require.NoError(t, l.Release(ctx, "doc:1", token)) // idempotent

	again, err := l.Acquire(ctx, "doc:1", 60_000)
	require.NoError(t, err)
	require.NotEmpty(t, again)
}

func TestReleaseWithStaleTokenDoesNotEvictNewHolder(t *testing.T) {
	l := newTestSQLiteLocker(t)
	ctx := context.Background()

	staleToken, err := l.Acquire(ctx, "doc:1", 1) // expires almost immediately
	require.NoError(t, err)

	// simulate expiry + reacquisition by a different holder
	require.NoError(t, l.Release(ctx, "doc:1", staleToken))
	freshToken, err := l.Acquire(ctx, "doc:1", 60_000)
	require.NoError(t, err)
	require.NotEmpty(t, freshToken)

	// a late release carrying the old token must not remove the new holder's row
	require.NoError(t, l.Release(ctx, "doc:1", staleToken))

	blocked, err := l.Acquire(ctx, "doc:1", 60_000)
	require.NoError(t, err)
	require.Empty(t, blocked, "fresh holder's lock should still be held")
}
