// Context isolation (spec §4.2, §5): each worker/thread gets its own
// connection pool (or SQLite handle) and its own lifecycle. Context wraps
// a *DB plus a bounded, LRU-by-last-used statement name cache, and a test
// mode that deletes its SQLite file on Close unless KeepOnClose is set.
package persistence

import (
	"container/list"
	"context"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

const stmtCacheCap = 100

// Context is one isolation unit owning its own DB handle and statement
// cache, per spec's "Context: an isolation unit (process, worker, test)
// owning its own DB handles, statement cache and locks" (GLOSSARY).
type Context struct {
	ID           string
	DB           *DB
	sqlitePath   string // empty for non-SQLite contexts
	KeepOnClose  bool
	log          zerolog.Logger

	stmtMu    sync.Mutex
	stmtOrder *list.List
	stmtAt    map[string]*list.Element // query -> element holding query (LRU key tracking)
}

func NewContext(id string, db *DB, sqlitePath string, keep bool, log zerolog.Logger) *Context {
	return &Context{
		ID:          id,
		DB:          db,
		sqlitePath:  sqlitePath,
		KeepOnClose: keep,
		log:         log,
		stmtOrder:   list.New(),
		stmtAt:      make(map[string]*list.Element),
	}
}

// TouchStatement records that query was just used, evicting the least
// recently used entry once the cache exceeds stmtCacheCap. This models the
// "bounded to 100, LRU by lastUsed" statement cache of spec §4.2; the
// actual *sql.Stmt lifecycle is left to database/sql's own pooling, this
// tracks which queries are "hot" for diagnostics and cache-sizing tests.
func (c *Context) TouchStatement(query string) {
	c.stmtMu.Lock()
	defer c.stmtMu.Unlock()
	if el, ok := c.stmtAt[query]; ok {
		c.stmtOrder.MoveToFront(el)
		return
	}
	el := c.stmtOrder.PushFront(query)
	c.stmtAt[query] = el
	if c.stmtOrder.Len() > stmtCacheCap {
		oldest := c.stmtOrder.Back()
		if oldest != nil {
			c.stmtOrder.Remove(oldest)
			delete(c.stmtAt, oldest.Value.(string))
		}
	}
}

func (c *Context) StatementCacheSize() int {
	c.stmtMu.Lock()
	defer c.stmtMu.Unlock()
	return c.stmtOrder.Len()
}

// Close releases the context's DB handle. In test mode (KeepOnClose
// false, sqlitePath set) the underlying SQLite file is removed.
func (c *Context) Close(ctx context.Context) error {
	err := c.DB.Close()
	if c.sqlitePath != "" && !c.KeepOnClose {
		_ = os.Remove(c.sqlitePath)
		_ = os.Remove(c.sqlitePath + "-wal")
		_ = os.Remove(c.sqlitePath + "-shm")
	}
	return err
}
