// FILE: logkeep/src/internal/store/store.go
package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"logkeep/src/internal/core"

	"github.com/lixenwraith/log"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Query limit bounds. Out-of-range limits are clamped, not rejected,
// so a sloppy caller still gets a bounded result set.
const (
	DefaultQueryLimit = 200
	MinQueryLimit     = 1
	MaxQueryLimit     = 1000
)

const schema = `
CREATE TABLE IF NOT EXISTS logs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	received_at INTEGER NOT NULL,
	ts_utc      INTEGER,
	display_ts  INTEGER NOT NULL,
	host        TEXT NOT NULL,
	facility    INTEGER,
	severity    INTEGER,
	msg         TEXT NOT NULL,
	raw         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_logs_host ON logs(host, display_ts);
CREATE INDEX IF NOT EXISTS idx_logs_display_ts ON logs(display_ts);
`

// Store is the append-only log store. SQLite in WAL mode permits many
// concurrent readers with one writer; all inserts go through a single
// dedicated writer connection so the write path has exactly one
// serialization point. Readers borrow from the pool and never touch
// the writer connection.
//
// Timestamps are stored as Unix nanoseconds. display_ts materializes
// the canonical display time (ts_utc when present, received_at
// otherwise) so range filters hit one indexed column.
type Store struct {
	pool    *pool
	writer  *sqlite.Conn
	writeMu sync.Mutex
	logger  *log.Logger

	// Statistics
	totalInserts  atomic.Uint64
	failedInserts atomic.Uint64
}

// Config holds the parameters for opening a log store.
type Config struct {
	// Filesystem path to the SQLite database file; created if absent.
	Path string

	// Reader pool size. Defaults to max(NumCPU, 4) when zero.
	PoolSize int
}

// Open creates the store, applies the schema, and reserves the writer
// connection. The caller must Close the store when done.
func Open(cfg Config, logger *log.Logger) (*Store, error) {
	p, err := openPool(cfg.Path, cfg.PoolSize, logger)
	if err != nil {
		return nil, err
	}

	writer, err := p.take(context.Background())
	if err != nil {
		p.close()
		return nil, err
	}

	if err := sqlitex.ExecuteScript(writer, schema, nil); err != nil {
		p.put(writer)
		p.close()
		return nil, fmt.Errorf("store: applying schema: %w", err)
	}

	return &Store{
		pool:   p,
		writer: writer,
		logger: logger,
	}, nil
}

// Close releases the writer connection and the pool. Any insert in
// flight completes first; the write mutex guarantees no partial write
// is abandoned.
func (s *Store) Close() error {
	s.writeMu.Lock()
	if s.writer != nil {
		s.pool.put(s.writer)
		s.writer = nil
	}
	s.writeMu.Unlock()
	return s.pool.close()
}

// Insert appends one record, assigning its id and receive time. The
// record is durable when Insert returns. Fails only on unrecoverable
// I/O errors; the caller decides whether to drop or halt.
func (s *Store) Insert(ctx context.Context, record *core.LogRecord) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if record.ReceivedAt.IsZero() {
		record.ReceivedAt = time.Now().UTC()
	}

	var tsUTC any
	if record.Timestamp != nil {
		tsUTC = record.Timestamp.UnixNano()
	}

	var facility, severity any
	if record.Facility != nil {
		facility = *record.Facility
	}
	if record.Severity != nil {
		severity = *record.Severity
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.writer == nil {
		return 0, fmt.Errorf("store: insert: store is closed")
	}

	err := sqlitex.Execute(s.writer,
		`INSERT INTO logs (received_at, ts_utc, display_ts, host, facility, severity, msg, raw)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				record.ReceivedAt.UnixNano(),
				tsUTC,
				record.DisplayTime().UnixNano(),
				record.Host,
				facility,
				severity,
				record.Msg,
				record.Raw,
			},
		})
	if err != nil {
		s.failedInserts.Add(1)
		return 0, fmt.Errorf("store: insert: %w", err)
	}

	record.ID = s.writer.LastInsertRowID()
	s.totalInserts.Add(1)
	return record.ID, nil
}

// Filter selects records for Query. Zero-valued fields apply no
// constraint. Since is inclusive and Until exclusive, both against the
// display timestamp.
type Filter struct {
	Host  string
	Text  string // case-insensitive substring match on msg
	Since time.Time
	Until time.Time
	Limit int // defaulted to DefaultQueryLimit, clamped to [1,1000]
}

// ClampLimit applies the default and bounds to a requested limit.
func ClampLimit(limit int) int {
	if limit == 0 {
		return DefaultQueryLimit
	}
	if limit < MinQueryLimit {
		return MinQueryLimit
	}
	if limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}

// Query returns records matching the filter, newest first (id
// descending, insensitive to clock skew in parsed timestamps). No
// matches yields an empty slice and no error.
func (s *Store) Query(ctx context.Context, filter Filter) ([]core.LogRecord, error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.put(conn)

	var conditions []string
	var args []any

	if filter.Host != "" {
		conditions = append(conditions, "host = ?")
		args = append(args, filter.Host)
	}
	if filter.Text != "" {
		// instr avoids LIKE wildcard interpretation of caller input.
		conditions = append(conditions, "instr(lower(msg), lower(?)) > 0")
		args = append(args, filter.Text)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "display_ts >= ?")
		args = append(args, filter.Since.UnixNano())
	}
	if !filter.Until.IsZero() {
		conditions = append(conditions, "display_ts < ?")
		args = append(args, filter.Until.UnixNano())
	}

	query := "SELECT id, received_at, ts_utc, host, facility, severity, msg, raw FROM logs"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, ClampLimit(filter.Limit))

	records := make([]core.LogRecord, 0)
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			records = append(records, scanRecord(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	return records, nil
}

// maxWindowRecords caps the record set materialized for aggregation.
const maxWindowRecords = 100000

// Window returns every record whose display time falls in [since,
// until), oldest first. Aggregation needs the whole window rather than
// a page, so this bypasses the query limit clamp; maxRecords guards
// memory, defaulting to maxWindowRecords when non-positive.
func (s *Store) Window(ctx context.Context, since, until time.Time, maxRecords int) ([]core.LogRecord, error) {
	if maxRecords <= 0 {
		maxRecords = maxWindowRecords
	}

	conn, err := s.pool.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.put(conn)

	records := make([]core.LogRecord, 0)
	err = sqlitex.Execute(conn,
		`SELECT id, received_at, ts_utc, host, facility, severity, msg, raw FROM logs
		 WHERE display_ts >= ? AND display_ts < ? ORDER BY display_ts ASC LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{since.UnixNano(), until.UnixNano(), maxRecords},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				records = append(records, scanRecord(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: window: %w", err)
	}
	return records, nil
}

func scanRecord(stmt *sqlite.Stmt) core.LogRecord {
	// Columns: id(0), received_at(1), ts_utc(2), host(3), facility(4),
	// severity(5), msg(6), raw(7)
	record := core.LogRecord{
		ID:         stmt.ColumnInt64(0),
		ReceivedAt: time.Unix(0, stmt.ColumnInt64(1)).UTC(),
		Host:       stmt.ColumnText(3),
		Msg:        stmt.ColumnText(6),
		Raw:        stmt.ColumnText(7),
	}

	if !stmt.ColumnIsNull(2) {
		ts := time.Unix(0, stmt.ColumnInt64(2)).UTC()
		record.Timestamp = &ts
	}
	if !stmt.ColumnIsNull(4) {
		facility := stmt.ColumnInt64(4)
		record.Facility = &facility
	}
	if !stmt.ColumnIsNull(5) {
		severity := stmt.ColumnInt64(5)
		record.Severity = &severity
	}

	return record
}

// Ping verifies the database is reachable. Used by the health check.
func (s *Store) Ping(ctx context.Context) error {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.put(conn)

	if err := sqlitex.ExecuteTransient(conn, "SELECT 1", nil); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Stats reports storage statistics for the status endpoint.
func (s *Store) Stats(ctx context.Context) map[string]any {
	stats := map[string]any{
		"total_inserts":  s.totalInserts.Load(),
		"failed_inserts": s.failedInserts.Load(),
	}

	conn, err := s.pool.take(ctx)
	if err != nil {
		return stats
	}
	defer s.pool.put(conn)

	var rowCount, sizeBytes int64
	err = sqlitex.ExecuteTransient(conn, "SELECT COUNT(*) FROM logs", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			rowCount = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err == nil {
		stats["record_count"] = rowCount
	}

	err = sqlitex.ExecuteTransient(conn,
		"SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				sizeBytes = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err == nil {
		stats["database_size_bytes"] = sizeBytes
	}

	return stats
}
