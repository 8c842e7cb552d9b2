package lock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"

	"github.com/openmemory/core/internal/persistence"
)

// PostgresLocker implements Locker via a `system_locks` row keyed by lock
// key, guarded by `pg_try_advisory_xact_lock` for the brief row-mutation window
// so two racing acquires never both observe an expired row as free (spec
// §4.10 "Postgres (system_locks row + advisory)").
type PostgresLocker struct {
	db    *persistence.DB
	table string
}

func NewPostgresLocker(db *persistence.DB, table string) *PostgresLocker {
	return &PostgresLocker{db: db, table: table}
}

func advisoryKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}

func (l *PostgresLocker) Acquire(ctx context.Context, key string, ttlMs int64) (string, error) {
	var acquired string
	err := l.db.RunTransaction(ctx, func(ctx context.Context) error {
		var ok bool
		if err := l.db.GetAsync(ctx, func(row *sql.Row) error { return row.Scan(&ok) },
			`SELECT pg_try_advisory_xact_lock(?)`, advisoryKey(key)); err != nil {
			return err
		}
		if !ok {
			return nil
		}

		now := time.Now().UnixMilli()
		var existingExpiry int64
		err := l.db.GetAsync(ctx, func(row *sql.Row) error { return row.Scan(&existingExpiry) },
			`SELECT expires_at FROM `+l.table+` WHERE lock_key = ?`, key)
		held := err == nil && existingExpiry > now
		if held {
			return nil
		}

		token := newToken()
		if upsertErr := l.db.Upsert(ctx, l.table, []string{"lock_key"}, map[string]any{
			"lock_key":   key,
			"token":      token,
			"expires_at": now + ttlMs,
		}, []string{"lock_key", "token", "expires_at"}); upsertErr != nil {
			return upsertErr
		}
		acquired = token
		return nil
	})
	if err != nil {
		return "", err
	}
	return acquired, nil
}

func (l *PostgresLocker) Release(ctx context.Context, key, token string) error {
	_, err := l.db.RunAsync(ctx, `DELETE FROM `+l.table+` WHERE lock_key = ? AND token = ?`, key, token)
	return err
}
