// Package sqlite owns the single handle to the embedded database and the
// transactional execution of statement batches.
//
// # Calling Conventions
//
// The Manager performs lazy, idempotent acquisition of exactly one handle
// per process. The first Ensure call opens (or creates) the database file
// under the configured storage directory with foreign-key enforcement on;
// every later call returns the cached handle unconditionally. The file name
// of a later call is deliberately not re-validated against the cached
// handle: one worker serves exactly one logical database.
//
// # Transaction Discipline
//
// All mutation goes through ExecBatch, which brackets the statements in a
// single transaction: BEGIN, execute in caller order, COMMIT; the first
// failing statement rolls back the whole batch and no partial effects
// remain observable. Single reads go through Query without a transaction.
// WAL mode gives a read a consistent snapshot relative to a concurrently
// committing batch; the worker additionally serialises all access, so there
// is never a second in-flight transaction against the handle.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mealframe/localdb"
	"github.com/mealframe/localdb/config"
)

// msec formats a duration as milliseconds with 3 decimal places.
func msec(d time.Duration) string {
	return fmt.Sprintf("%.3f", float64(d.Microseconds())/1000)
}

// Manager owns the single database handle for a worker. The handle is
// opened on first use and lives until process exit; there is no reopen and
// no teardown path from normal operation.
type Manager struct {
	dirs   config.StorageDirs
	logger *slog.Logger

	mu sync.Mutex
	db *DB // nil until the first successful Ensure
}

// NewManager creates a Manager that resolves database files under dirs.
func NewManager(dirs config.StorageDirs, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		dirs:   dirs,
		logger: logger.With("component", "store"),
	}
}

// Ensure returns the database handle, opening it on first use. A failed
// open leaves the Manager uninitialised so a later request can retry.
func (m *Manager) Ensure(ctx context.Context, fileName string) (*DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db != nil {
		return m.db, nil
	}

	path, err := m.dirs.DatabasePath(fileName)
	if err != nil {
		return nil, err
	}

	db, err := open(ctx, path, m.logger)
	if err != nil {
		return nil, err
	}

	m.db = db
	m.logger.Info("opened database", "path", path)
	return m.db, nil
}

// open opens the database file, creating its directory as needed. Any
// failure to reach the backing storage maps to ErrStorageUnavailable; the
// ping makes the availability check explicit rather than deferring it to
// the first statement.
func open(ctx context.Context, path string, logger *slog.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("%w: create database directory: %v", localdb.ErrStorageUnavailable, err)
	}

	db, err := sql.Open(driverName, dsn(path, true))
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", localdb.ErrStorageUnavailable, err)
	}

	// One connection: the worker serialises all access, and a second
	// connection would not share an in-memory database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", localdb.ErrStorageUnavailable, err)
	}

	return &DB{db: db, logger: logger}, nil
}

// NewInMemory opens an in-memory database for testing.
func NewInMemory(ctx context.Context, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store", "db", ":memory:")

	db, err := sql.Open(driverName, dsn(":memory:", false))
	if err != nil {
		return nil, fmt.Errorf("open in-memory database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping in-memory database: %w", err)
	}

	return &DB{db: db, logger: logger}, nil
}

// DB is the single open connection to the database file. It is exclusively
// owned by the Manager and only ever driven by the worker loop.
type DB struct {
	db     *sql.DB
	logger *slog.Logger
}

// Close closes the underlying connection. Only tests call this; the worker
// holds its handle for the life of the process.
func (d *DB) Close() error {
	return d.db.Close()
}

// ExecBatch executes the statements in order inside one transaction. The
// first failing statement rolls back the whole batch and is reported as a
// StatementError carrying its position; on success the batch commits.
func (d *DB) ExecBatch(ctx context.Context, stmts []localdb.Statement) error {
	start := time.Now()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt.SQL, stmt.Bind...); err != nil {
			d.logger.Debug("sql", "op", "ExecBatch", "stmt", i, "duration_ms", msec(time.Since(start)), "error", err)
			return localdb.StatementError{Index: i, SQL: stmt.SQL, Cause: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	d.logger.Debug("sql", "op", "ExecBatch", "stmts", len(stmts), "duration_ms", msec(time.Since(start)))
	return nil
}

// Query executes a single read statement and materialises every matched row
// before returning. Column order follows the SELECT list.
func (d *DB) Query(ctx context.Context, sqlText string, bind []any) ([]localdb.Row, error) {
	start := time.Now()

	rows, err := d.db.QueryContext(ctx, sqlText, bind...)
	if err != nil {
		d.logger.Debug("sql", "op", "Query", "duration_ms", msec(time.Since(start)), "error", err)
		return nil, localdb.StatementError{Index: 0, SQL: sqlText, Cause: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var result []localdb.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make(localdb.Row, len(cols))
		for i, name := range cols {
			row[i] = localdb.Column{Name: name, Value: normalizeDriverValue(vals[i])}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, localdb.StatementError{Index: 0, SQL: sqlText, Cause: err}
	}

	d.logger.Debug("sql", "op", "Query", "duration_ms", msec(time.Since(start)), "rows", len(result))
	return result, nil
}

// normalizeDriverValue copies driver-owned buffers and keeps the value set
// to the protocol's primitive types. Byte slices from database/sql are only
// valid until the next Scan.
func normalizeDriverValue(v any) any {
	switch val := v.(type) {
	case []byte:
		out := make([]byte, len(val))
		copy(out, val)
		return out
	case time.Time:
		return val.Format(time.RFC3339Nano)
	default:
		return val
	}
}
