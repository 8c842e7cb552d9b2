package lock

import (
	"context"
	"database/sql"
	"time"

	"github.com/openmemory/core/internal/persistence"
)

// SQLiteLocker implements Locker via a row-with-expiry table: acquire
// deletes any expired row for the key first, then relies on the table's
// primary key on lock_key to reject a concurrent insert (spec §4.10
// "SQLite (row with expiry)").
type SQLiteLocker struct {
	db    *persistence.DB
	table string
}

func NewSQLiteLocker(db *persistence.DB, table string) *SQLiteLocker {
	return &SQLiteLocker{db: db, table: table}
}

func (l *SQLiteLocker) Acquire(ctx context.Context, key string, ttlMs int64) (string, error) {
	now := time.Now().UnixMilli()
	var acquired string
	err := l.db.RunTransaction(ctx, func(ctx context.Context) error {
		if _, err := l.db.RunAsync(ctx,
			`DELETE FROM `+l.table+` WHERE lock_key = ? AND expires_at <= ?`, key, now); err != nil {
			return err
		}

		var existingExpiry int64
		err := l.db.GetAsync(ctx, func(row *sql.Row) error { return row.Scan(&existingExpiry) },
			`SELECT expires_at FROM `+l.table+` WHERE lock_key = ?`, key)
		if err == nil {
			return nil // still held by someone else
		}

		token := newToken()
		if _, err := l.db.RunAsync(ctx,
			`INSERT INTO `+l.table+` (lock_key, token, expires_at) VALUES (?, ?, ?)`,
			key, token, now+ttlMs); err != nil {
			return nil // lost the race to a concurrent insert; report not-acquired, not error
		}
		acquired = token
		return nil
	})
	if err != nil {
		return "", err
	}
	return acquired, nil
}

func (l *SQLiteLocker) Release(ctx context.Context, key, token string) error {
	_, err := l.db.RunAsync(ctx, `DELETE FROM `+l.table+` WHERE lock_key = ? AND token = ?`, key, token)
	return err
}
