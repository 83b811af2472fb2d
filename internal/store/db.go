package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO

	ccerrors "github.com/ccmemory/ccmemory/internal/errors"
)

// BusyTimeout is the process-wide SQLite busy timeout applied to every
// connection (§4.1: "process-wide busy-timeout of 5s").
const BusyTimeout = 5 * time.Second

// DB wraps a single-writer, multi-reader SQLite connection with WAL
// journaling and the three operations the storage layer exposes:
// Execute, Batch and Transaction.
type DB struct {
	mu     sync.Mutex
	conn   *sql.DB
	path   string
}

// Open opens (creating if necessary) the database at path, applies the
// pragmas from §4.1 (WAL, busy_timeout=5s, synchronous=NORMAL, foreign
// keys), runs an integrity check, and applies pending migrations.
//
// If path is empty, an in-memory database is opened (tests only — WAL is
// not meaningful for :memory: so journal_mode falls back to MEMORY).
func Open(ctx context.Context, path string) (*DB, error) {
	dsn := path
	memory := path == "" || path == ":memory:"
	if !memory {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, ccerrors.IOError("failed to create data directory", err)
		}
		if err := recoverIfCorrupt(path); err != nil {
			return nil, err
		}
		dsn = path
	} else {
		dsn = ":memory:"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, ccerrors.New(ccerrors.ErrCodeCorruptIndex, "failed to open database", err)
	}
	if memory {
		// A single in-process connection keeps the in-memory DB alive and
		// visible across goroutines.
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
		conn.SetConnMaxLifetime(0)
	}

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
	}
	if !memory {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}
	for _, p := range pragmas {
		if _, err := conn.ExecContext(ctx, p); err != nil {
			_ = conn.Close()
			return nil, ccerrors.New(ccerrors.ErrCodeCorruptIndex, "failed to set pragma "+p, err)
		}
	}

	db := &DB{conn: conn, path: path}

	if err := db.IntegrityCheck(ctx); err != nil {
		slog.Warn("store_integrity_check_failed", slog.String("error", err.Error()))
		if !memory {
			if recErr := db.recover(ctx); recErr != nil {
				_ = conn.Close()
				return nil, recErr
			}
		}
	}

	if err := db.Migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

// Conn exposes the underlying *sql.DB for packages that need direct access
// (FTS5 virtual table queries, vector BLOB columns).
func (d *DB) Conn() *sql.DB { return d.conn }

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// busyRetryConfig is the retry-on-busy policy §4.1 specifies: one retry,
// 1s backoff. Routed through errors.Retry rather than a hand-rolled
// sleep-and-redo so Execute/Transaction share the same backoff
// primitive the rest of the codebase uses for recoverable errors.
var busyRetryConfig = ccerrors.RetryConfig{MaxRetries: 1, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 1}

// Execute runs a single statement with retry-on-busy (one retry, 1s
// backoff, per §4.1's recovery primitive retry policy). Non-busy errors
// return immediately without retrying.
func (d *DB) Execute(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	var nonBusyErr error
	retryErr := ccerrors.Retry(ctx, busyRetryConfig, func() error {
		var execErr error
		res, execErr = d.conn.ExecContext(ctx, query, args...)
		if execErr != nil && !isBusyErr(execErr) {
			nonBusyErr = execErr
			return nil
		}
		return execErr
	})
	if nonBusyErr != nil {
		return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, nonBusyErr)
	}
	if retryErr != nil {
		return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, retryErr)
	}
	return res, nil
}

// Stmt is a single statement within a Batch call.
type Stmt struct {
	Query string
	Args  []any
}

// Batch executes a list of statements atomically within one transaction.
func (d *DB) Batch(ctx context.Context, stmts []Stmt) error {
	return d.Transaction(ctx, func(tx *sql.Tx) error {
		for _, s := range stmts {
			if _, err := tx.ExecContext(ctx, s.Query, s.Args...); err != nil {
				return err
			}
		}
		return nil
	})
}

// Transaction runs fn within an explicit begin/commit/rollback, retrying
// once on a busy error with a 1s backoff. Non-busy errors return
// immediately without retrying.
func (d *DB) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var nonBusyErr error
	retryErr := ccerrors.Retry(ctx, busyRetryConfig, func() error {
		txErr := d.runTx(ctx, fn)
		if txErr != nil && !isBusyErr(txErr) {
			nonBusyErr = txErr
			return nil
		}
		return txErr
	})
	if nonBusyErr != nil {
		return ccerrors.Wrap(ccerrors.ErrCodeInternal, nonBusyErr)
	}
	if retryErr != nil {
		if isBusyErr(retryErr) {
			return ccerrors.Conflict("transaction lost the write race", retryErr)
		}
		return ccerrors.Wrap(ccerrors.ErrCodeInternal, retryErr)
	}
	return nil
}

func (d *DB) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// IntegrityCheck runs PRAGMA integrity_check and returns an error
// (ccerrors.ErrCodeCorruptIndex) if the database reports any problem.
func (d *DB) IntegrityCheck(ctx context.Context) error {
	row := d.conn.QueryRowContext(ctx, "PRAGMA integrity_check")
	var result string
	if err := row.Scan(&result); err != nil {
		return ccerrors.New(ccerrors.ErrCodeCorruptIndex, "integrity check query failed", err)
	}
	if result != "ok" {
		return ccerrors.New(ccerrors.ErrCodeCorruptIndex, "database corrupted: "+result, nil)
	}
	return nil
}

// recoverIfCorrupt stats path and returns nil on every path: it takes no
// snapshot and does not check the file's contents. Corruption is detected
// only after open, by IntegrityCheck.
func recoverIfCorrupt(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil // doesn't exist yet, will be created
	}
	if info.Size() == 0 {
		return nil // empty file is a legitimate fresh DB
	}
	return nil
}

// recover implements the integrity-check recovery primitive from §4.1:
// snapshot the file, copy all tables row-by-row into a sibling database
// (skipping corrupt tables), then swap atomically.
func (d *DB) recover(ctx context.Context) error {
	if d.path == "" || d.path == ":memory:" {
		return ccerrors.New(ccerrors.ErrCodeCorruptIndex, "in-memory database failed integrity check", nil)
	}

	recoveredPath := d.path + ".recovered"
	_ = os.Remove(recoveredPath)

	fresh, err := sql.Open("sqlite", recoveredPath)
	if err != nil {
		return ccerrors.New(ccerrors.ErrCodeCorruptIndex, "failed to create recovery database", err)
	}
	defer fresh.Close()

	tables, err := d.listTables(ctx)
	if err != nil {
		return ccerrors.New(ccerrors.ErrCodeCorruptIndex, "failed to enumerate tables during recovery", err)
	}

	for _, table := range tables {
		if err := copyTableRows(ctx, d.conn, fresh, table); err != nil {
			slog.Warn("store_recovery_skipped_table",
				slog.String("table", table), slog.String("error", err.Error()))
			continue
		}
	}

	if err := fresh.Close(); err != nil {
		return ccerrors.New(ccerrors.ErrCodeCorruptIndex, "failed to close recovery database", err)
	}
	if err := d.conn.Close(); err != nil {
		return ccerrors.New(ccerrors.ErrCodeCorruptIndex, "failed to close corrupt database", err)
	}

	backupPath := d.path + ".corrupt"
	_ = os.Remove(backupPath)
	if err := os.Rename(d.path, backupPath); err != nil {
		return ccerrors.New(ccerrors.ErrCodeCorruptIndex, "failed to snapshot corrupt database", err)
	}
	if err := os.Rename(recoveredPath, d.path); err != nil {
		return ccerrors.New(ccerrors.ErrCodeCorruptIndex, "failed to swap in recovered database", err)
	}

	conn, err := sql.Open("sqlite", d.path)
	if err != nil {
		return ccerrors.New(ccerrors.ErrCodeCorruptIndex, "failed to reopen recovered database", err)
	}
	conn.SetMaxOpenConns(1)
	d.conn = conn
	return nil
}

func (d *DB) listTables(ctx context.Context) ([]string, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func copyTableRows(ctx context.Context, src *sql.DB, dst *sql.DB, table string) error {
	rows, err := src.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %q", table))
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	placeholders := make([]string, len(cols))
	colNames := make([]string, len(cols))
	for i, c := range cols {
		placeholders[i] = "?"
		colNames[i] = fmt.Sprintf("%q", c)
	}
	insertSQL := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)", table,
		joinStrings(colNames, ", "), joinStrings(placeholders, ", "))

	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		if _, err := dst.ExecContext(ctx, insertSQL, vals...); err != nil {
			return err
		}
	}
	return rows.Err()
}

func joinStrings(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return contains(msg, "database is locked") || contains(msg, "SQLITE_BUSY")
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || indexOf(s, substr) >= 0)
}

func indexOf(s, substr string) int {
	n, m := len(s), len(substr)
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == substr {
			return i
		}
	}
	return -1
}
