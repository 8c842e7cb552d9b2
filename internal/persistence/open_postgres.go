// Postgres backend wiring (spec §6.4). Uses the database/sql adapter
// (pgx/v5/stdlib) so Postgres and SQLite share one DB abstraction (spec
// §4.2's unified runAsync/getAsync/allAsync/iterateAsync surface).
package persistence

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"github.com/openmemory/core/internal/errs"
)

// OpenPostgres opens a connection pool against dsn and verifies
// connectivity with a short-timeout ping.
func OpenPostgres(dsn string, log zerolog.Logger) (*DB, error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errs.Storage("failed to open postgres database", err)
	}
	sqlDB.SetMaxOpenConns(8)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, errs.Storage("failed to ping postgres", err)
	}
	return NewDB(sqlDB, DialectPostgres, log), nil
}
