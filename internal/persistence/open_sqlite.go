// SQLite backend wiring (spec §6.4): WAL mode, synchronous=NORMAL,
// foreign_keys=ON, pure-Go driver (modernc.org/sqlite — no cgo), grounded
// on goblincore-geoffreyengram and liliang-cn-sqvect's go.mod choice of
// the same driver for an embedded metadata/vector store.
package persistence

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/rs/zerolog"

	"github.com/openmemory/core/internal/errs"
)

// OpenSQLite opens (creating if absent) the SQLite file at path and
// applies the pragmas spec §6.4 requires.
func OpenSQLite(path string, log zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errs.Storage("failed to open sqlite database", err)
	}
	sqlDB.SetMaxOpenConns(1) // SQLite writer serialization; WAL allows concurrent readers internally
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return nil, errs.Storage("failed to apply pragma "+pragma, err)
		}
	}
	return NewDB(sqlDB, DialectSQLite, log), nil
}
