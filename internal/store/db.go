// ABOUTME: Database handle shared by the portal stores with SQLite and PostgreSQL dialects
// ABOUTME: Opens drivers, applies schema, runs transactions and classifies driver errors

package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Supported driver names.
const (
	DriverSQLite    = "sqlite"   // modernc.org/sqlite, pure Go
	DriverSQLiteCGO = "sqlite3"  // github.com/mattn/go-sqlite3
	DriverPgx       = "pgx"      // github.com/jackc/pgx/v5/stdlib
	DriverPostgres  = "postgres" // github.com/lib/pq
)

// timeFormat keeps stored timestamps lexically sortable in both dialects.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// Options selects and tunes a database connection.
type Options struct {
	Driver       string
	DSN          string // file path for SQLite drivers, connection URL for PostgreSQL
	MaxOpenConns int
}

// DB wraps *sql.DB with the dialect details the stores need.
type DB struct {
	db      *sql.DB
	driver  string
	dialect dialect
	logger  *slog.Logger
}

// Open connects to the database described by opts and verifies it answers.
// Parent directories are created for SQLite files.
func Open(ctx context.Context, opts Options) (*DB, error) {
	logger := slog.Default().With("component", "store", "driver", opts.Driver)

	if opts.DSN == "" {
		return nil, errors.New("store: empty DSN")
	}

	d := &DB{driver: opts.Driver, logger: logger}
	dsn := opts.DSN

	switch opts.Driver {
	case DriverSQLite, DriverSQLiteCGO:
		d.dialect = dialectSQLite
		var err error
		if dsn, err = sqliteDSN(opts.Driver, opts.DSN); err != nil {
			return nil, err
		}
	case DriverPgx, DriverPostgres:
		d.dialect = dialectPostgres
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", opts.Driver)
	}

	db, err := sql.Open(opts.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	switch {
	case d.dialect == dialectSQLite:
		// One writer at a time; busy_timeout queues the rest.
		db.SetMaxOpenConns(1)
	case opts.MaxOpenConns > 0:
		db.SetMaxOpenConns(opts.MaxOpenConns)
	default:
		db.SetMaxOpenConns(10)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", classify(err))
	}

	d.db = db
	logger.Info("database opened")
	return d, nil
}

func sqliteDSN(driverName, path string) (string, error) {
	if strings.HasPrefix(path, "file:") || strings.Contains(path, "?") {
		return path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating database directory: %w", err)
	}
	if driverName == DriverSQLiteCGO {
		return "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on&_txlock=immediate", nil
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate", nil
}

// Close closes the underlying pool.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks that the database answers.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// Driver returns the driver name the database was opened with.
func (d *DB) Driver() string {
	return d.driver
}

// rebind rewrites ? placeholders as $n for PostgreSQL.
func (d *DB) rebind(query string) string {
	if d.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// forUpdate is appended to SELECTs that must hold the row until commit.
// SQLite transactions already start with an immediate write lock.
func (d *DB) forUpdate() string {
	if d.dialect == dialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// applySchema executes each statement in order. Statements must be idempotent.
func (d *DB) applySchema(ctx context.Context, statements []string) error {
	for _, stmt := range statements {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", classify(err))
		}
	}
	return nil
}

// inTx runs fn inside a transaction, rolling back on error or panic.
func (d *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", classify(err))
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				d.logger.Warn("rollback failed", "error", rbErr)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", classify(err))
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

// classify wraps connectivity failures with ErrUnavailable and leaves other
// errors untouched.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	if isUnavailable(err) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is closed") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "connection refused")
}

func isUniqueViolation(err error) bool {
	const uniqueViolation = "23505"
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(strings.ToLower(msg), "unique constraint")
}
