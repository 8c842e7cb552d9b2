// Package persistence implements spec §4.2: a low-level db abstraction
// shared by SQLite and Postgres, and the repository interfaces built on
// top of it. Per the DESIGN NOTES (§9), transaction state is carried as an
// explicit context value rather than an async-local — nested
// RunTransaction calls detect and reuse the parent's *sql.Tx.
package persistence

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/openmemory/core/internal/errs"
)

// Dialect selects SQL generation/translation behavior.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// Querier is satisfied by both *sql.DB and *sql.Tx, letting every
// repository method run unmodified whether or not it's inside a
// transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// DB is the low-level handle spec §4.2 describes: runAsync / getAsync /
// allAsync / iterateAsync, upsert and transaction.run.
type DB struct {
	sqlDB   *sql.DB
	dialect Dialect
	log     zerolog.Logger
}

func NewDB(sqlDB *sql.DB, dialect Dialect, log zerolog.Logger) *DB {
	return &DB{sqlDB: sqlDB, dialect: dialect, log: log}
}

func (d *DB) Dialect() Dialect { return d.dialect }

func (d *DB) Close() error { return d.sqlDB.Close() }

func (d *DB) translate(query string) string {
	if d.dialect == DialectPostgres {
		return TranslateQuestionMarks(query)
	}
	return query
}

func (d *DB) querier(ctx context.Context) Querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok && tx != nil {
		return tx
	}
	return d.sqlDB
}

// RunAsync executes a write statement and returns the affected row count.
func (d *DB) RunAsync(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := d.querier(ctx).ExecContext(ctx, d.translate(query), args...)
	if err != nil {
		return 0, errs.Storage("runAsync failed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errs.Storage("runAsync rows affected failed", err)
	}
	return n, nil
}

// GetAsync runs a query expected to return at most one row and lets the
// caller scan it; returns errs.NotFound if no row matched.
func (d *DB) GetAsync(ctx context.Context, scan func(*sql.Row) error, query string, args ...any) error {
	row := d.querier(ctx).QueryRowContext(ctx, d.translate(query), args...)
	if err := scan(row); err != nil {
		if err == sql.ErrNoRows {
			return errs.NotFound("no row matched", err)
		}
		return errs.Storage("getAsync scan failed", err)
	}
	return nil
}

// AllAsync runs a query and invokes scan for every returned row.
func (d *DB) AllAsync(ctx context.Context, scan func(*sql.Rows) error, query string, args ...any) error {
	rows, err := d.querier(ctx).QueryContext(ctx, d.translate(query), args...)
	if err != nil {
		return errs.Storage("allAsync query failed", err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return errs.Storage("allAsync scan failed", err)
		}
	}
	return wrapIfErr(rows.Err(), "allAsync rows error")
}

// IterateAsync returns a lazy, forward-only cursor over query's results.
// Each call to (*RowIterator).Next() reads exactly one row.
func (d *DB) IterateAsync(ctx context.Context, query string, args ...any) (*RowIterator, error) {
	rows, err := d.querier(ctx).QueryContext(ctx, d.translate(query), args...)
	if err != nil {
		return nil, errs.Storage("iterateAsync query failed", err)
	}
	return &RowIterator{rows: rows}, nil
}

// RowIterator is the lazy sequence iterateAsync produces (spec §4.2). It
// is restartable in the sense that calling the originating IterateAsync
// again re-issues the query from the beginning; the iterator itself is
// single-pass.
type RowIterator struct {
	rows *sql.Rows
	err  error
}

func (it *RowIterator) Next() bool { return it.rows.Next() }
func (it *RowIterator) Scan(dest ...any) error {
	if err := it.rows.Scan(dest...); err != nil {
		it.err = err
		return errs.Storage("iterator scan failed", err)
	}
	return nil
}
func (it *RowIterator) Close() error { return it.rows.Close() }
func (it *RowIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.rows.Err()
}

// errs.Storage with a nil cause is used as a plain "no error" passthrough
// in AllAsync; wrap that here so callers always get a clean nil.
func wrapIfErr(cause error, msg string) error {
	if cause == nil {
		return nil
	}
	return errs.Storage(msg, cause)
}

// Upsert performs an INSERT ... ON CONFLICT (keyCols) DO UPDATE, which
// both SQLite and Postgres support with identical syntax once placeholders
// are translated (spec §4.2).
func (d *DB) Upsert(ctx context.Context, table string, keyCols []string, row map[string]any, cols []string) error {
	query, args := buildUpsert(table, keyCols, cols, row)
	_, err := d.RunAsync(ctx, query, args...)
	return err
}

func buildUpsert(table string, keyCols, cols []string, row map[string]any) (string, []any) {
	query := "INSERT INTO " + table + " (" + joinCols(cols) + ") VALUES (" + placeholders(len(cols)) + ")"
	query += " ON CONFLICT (" + joinCols(keyCols) + ") DO UPDATE SET "
	first := true
	for _, c := range cols {
		if containsStr(keyCols, c) {
			continue
		}
		if !first {
			query += ", "
		}
		query += c + " = excluded." + c
		first = false
	}
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = row[c]
	}
	return query, args
}

func joinCols(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

func placeholders(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ", "
		}
		out += "?"
	}
	return out
}

func containsStr(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// RunTransaction scopes an exclusive writer (SQLite) or a client-bound
// transaction (Postgres) with guaranteed release on every exit path.
// Nested calls (detected via the context) reuse the parent's transaction,
// matching spec §4.2 / §9.
func (d *DB) RunTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok && tx != nil {
		return fn(ctx)
	}
	tx, err := d.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return errs.Storage("failed to begin transaction", err)
	}
	txCtx := context.WithValue(ctx, txKey{}, tx)

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			d.log.Error().Err(rbErr).Msg("rollback failed after transaction error")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return errs.Storage("failed to commit transaction", err)
	}
	return nil
}
