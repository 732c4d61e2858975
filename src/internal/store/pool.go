// FILE: logkeep/src/internal/store/pool.go
package store

import (
	"context"
	"fmt"
	"runtime"

	"github.com/lixenwraith/log"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// pool wraps sqlitex.Pool with the pragmas the log store depends on.
// WAL keeps readers from blocking on the single writer; NORMAL sync is
// durable enough for WAL mode; busy_timeout absorbs writer contention
// instead of surfacing SQLITE_BUSY.
type pool struct {
	inner  *sqlitex.Pool
	logger *log.Logger
	path   string
}

func openPool(path string, size int, logger *log.Logger) (*pool, error) {
	if path == "" {
		return nil, fmt.Errorf("store: database path is required")
	}

	if size <= 0 {
		size = runtime.NumCPU()
		if size < 4 {
			size = 4
		}
	}

	inner, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    size,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}

	logger.Info("msg", "SQLite pool opened",
		"component", "store",
		"path", path,
		"pool_size", size)

	return &pool{
		inner:  inner,
		logger: logger,
		path:   path,
	}, nil
}

func prepareConn(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA cache_size=-8192",
	}

	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	return nil
}

// take borrows a connection; the caller must put it back, typically
// via defer.
func (p *pool) take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: take connection: %w", err)
	}
	return conn, nil
}

func (p *pool) put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

// close blocks until all borrowed connections are returned.
func (p *pool) close() error {
	if err := p.inner.Close(); err != nil {
		return fmt.Errorf("store: closing %s: %w", p.path, err)
	}
	p.logger.Info("msg", "SQLite pool closed",
		"component", "store",
		"path", p.path)
	return nil
}
