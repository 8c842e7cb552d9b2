// Package lock implements the distributed lock abstraction of spec §4.10:
// acquire(key, ttlMs) -> token|null, release(key, token), with three
// backends (Redis SET NX PX, Postgres advisory+row, SQLite row+expiry) and
// an auto-selection order decided in SPEC_FULL §D: Redis, then Postgres,
// then SQLite.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/redis/go-redis/v9"

	"github.com/openmemory/core/internal/persistence"
)

// Locker is the uniform lock surface. Acquire returns ("", nil) — not an
// error — when the lock is already held; callers must check for an empty
// token to distinguish "busy" from "failed".
type Locker interface {
	Acquire(ctx context.Context, key string, ttlMs int64) (token string, err error)
	Release(ctx context.Context, key, token string) error
}

func newToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// NewAuto selects Redis if a client is available, else Postgres if the DB
// is a Postgres-dialect *persistence.DB, else SQLite — the order decided
// in SPEC_FULL §D.
func NewAuto(redisClient *redis.Client, db *persistence.DB, table string) Locker {
	if redisClient != nil {
		return NewRedisLocker(redisClient)
	}
	if db != nil && db.Dialect() == persistence.DialectPostgres {
		return NewPostgresLocker(db, table)
	}
	return NewSQLiteLocker(db, table)
}
