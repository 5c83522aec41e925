// Package pgdb wraps a single PostgreSQL connection for the demo tables.
//
// A DB keeps one pending transaction, begun on first use, in the way a
// driver cursor does: statements issued through the wrapper become visible
// to other sessions only after Commit. The wrapper serialises its own
// statements, so a DB may be shared by goroutines that go through its
// methods.
package pgdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/gurre/cloudlab/config"
	"github.com/gurre/cloudlab/reading"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

var (
	// ErrConnect is returned when the database cannot be reached.
	ErrConnect = errors.New("problem connecting to DB")
	// ErrUnknownKind is returned for a table kind with no layout.
	ErrUnknownKind = errors.New("no layout for table kind")
	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("connection is closed")
)

// undefinedTable is the SQLSTATE for a missing relation.
const undefinedTable = "42P01"

// connectFunc opens and verifies a connection.
type connectFunc func(ctx context.Context) (*sql.DB, error)

// DB is a PostgreSQL connection with one pending transaction.
type DB struct {
	mu      sync.Mutex
	conn    *sql.DB
	tx      *sql.Tx
	connect connectFunc
	log     *zap.Logger
}

// Open connects with cfg: its URL when set, else its dbname, user, host and
// password.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dsn := cfg.DSN()
	redacted := cfg.Redacted()
	connect := func(ctx context.Context) (*sql.DB, error) {
		conn, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnect, err)
		}
		// One connection: the pending transaction pins it anyway.
		conn.SetMaxOpenConns(1)
		if err := conn.PingContext(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%w: %v", ErrConnect, err)
		}
		log.Debug("connected to database", zap.String("dsn", redacted))
		return conn, nil
	}
	return newDB(ctx, connect, log)
}

// Wrap uses an already opened connection. Reset is not supported on a
// wrapped connection.
func Wrap(conn *sql.DB, log *zap.Logger) *DB {
	return &DB{
		conn: conn,
		connect: func(context.Context) (*sql.DB, error) {
			return nil, fmt.Errorf("%w: wrapped connection cannot be reopened", ErrConnect)
		},
		log: log,
	}
}

func newDB(ctx context.Context, connect connectFunc, log *zap.Logger) (*DB, error) {
	conn, err := connect(ctx)
	if err != nil {
		return nil, err
	}
	return &DB{conn: conn, connect: connect, log: log}, nil
}

// Reset drops the current connection, discarding any uncommitted work, and
// connects again with the same arguments.
func (d *DB) Reset(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	conn, err := d.connect(ctx)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if d.tx != nil {
		_ = d.tx.Rollback()
		d.tx = nil
	}
	if d.conn != nil {
		_ = d.conn.Close()
	}
	d.conn = conn
	return nil
}

// Tx returns the pending transaction, beginning one if none is open.
// Statements run on it directly are committed by Commit; callers must not
// use it concurrently with the DB's own methods.
func (d *DB) Tx(ctx context.Context) (*sql.Tx, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.txLocked(ctx)
}

func (d *DB) txLocked(ctx context.Context) (*sql.Tx, error) {
	if d.conn == nil {
		return nil, ErrClosed
	}
	if d.tx != nil {
		return d.tx, nil
	}
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	d.tx = tx
	return tx, nil
}

// Commit commits the pending transaction, if any.
func (d *DB) Commit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.commitLocked()
}

func (d *DB) commitLocked() error {
	if d.tx == nil {
		return nil
	}
	tx := d.tx
	d.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback abandons the pending transaction, if any.
func (d *DB) Rollback() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rollbackLocked()
}

func (d *DB) rollbackLocked() error {
	if d.tx == nil {
		return nil
	}
	tx := d.tx
	d.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// TableExists reports whether a table with the given name is visible in
// information_schema.
func (d *DB) TableExists(ctx context.Context, name string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.txLocked(ctx)
	if err != nil {
		return false, err
	}
	var exists bool
	err = tx.QueryRowContext(ctx,
		"select exists(select * from information_schema.tables where table_name=$1)", name,
	).Scan(&exists)
	if err != nil {
		_ = d.rollbackLocked()
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return exists, nil
}

// CreateTable drops any table called name and creates it with the layout of
// kind, then commits.
func (d *DB) CreateTable(ctx context.Context, kind reading.Kind, name string) error {
	layout, err := Layout(kind)
	if err != nil {
		return fmt.Errorf("unable to create table %s: %w", name, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.txLocked(ctx)
	if err != nil {
		return err
	}
	table := pq.QuoteIdentifier(name)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		_ = d.rollbackLocked()
		return fmt.Errorf("unable to create table %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, "CREATE TABLE "+table+" "+layout); err != nil {
		_ = d.rollbackLocked()
		return fmt.Errorf("unable to create table %s with layout %s: %w", name, kind, err)
	}
	d.log.Info("created table", zap.String("table", name), zap.String("kind", string(kind)))
	return d.commitLocked()
}

// DropTable removes a table and commits. A missing table is not an error.
func (d *DB) DropTable(ctx context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.txLocked(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE "+pq.QuoteIdentifier(name)); err != nil {
		_ = d.rollbackLocked()
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == undefinedTable {
			d.log.Debug("table already absent", zap.String("table", name))
			return nil
		}
		return fmt.Errorf("drop table %s: %w", name, err)
	}
	d.log.Info("dropped table", zap.String("table", name))
	return d.commitLocked()
}

// ExecuteSQL runs a statement, collects every row it returns and commits.
// A failed statement rolls back the pending transaction.
func (d *DB) ExecuteSQL(ctx context.Context, query string, args ...any) (*Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.queryLocked(ctx, query, args...)
	if err != nil {
		_ = d.rollbackLocked()
		return nil, fmt.Errorf("execute %q: %w", query, err)
	}
	if err := d.commitLocked(); err != nil {
		return nil, err
	}
	return res, nil
}

func (d *DB) queryLocked(ctx context.Context, query string, args ...any) (*Result, error) {
	tx, err := d.txLocked(ctx)
	if err != nil {
		return nil, err
	}
	d.log.Debug("executing", zap.String("sql", query))
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// execLocked runs a statement on the pending transaction without committing.
func (d *DB) execLocked(ctx context.Context, query string, args ...any) error {
	tx, err := d.txLocked(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		_ = d.rollbackLocked()
		return err
	}
	return nil
}

// Version returns the server version string.
func (d *DB) Version(ctx context.Context) (string, error) {
	res, err := d.ExecuteSQL(ctx, "SELECT version()")
	if err != nil {
		return "", err
	}
	row := res.FetchOne()
	if len(row) == 0 {
		return "", fmt.Errorf("version query returned no rows")
	}
	return fmt.Sprint(row[0]), nil
}

// Close commits pending work and closes the connection.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil
	}
	commitErr := d.commitLocked()
	closeErr := d.conn.Close()
	d.conn = nil
	return errors.Join(commitErr, closeErr)
}
