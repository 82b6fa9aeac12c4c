// SPDX-License-Identifier: MIT
// Tri-state SQL execution layer. Out of scope per spec section 1: the
// coordinator depends only on the Executor/Tx interfaces below; this file
// and its per-driver siblings are one concrete, swappable implementation.
package dbexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"syscall"
)

// Status mirrors the coordinator's tri-state outcome so callers never have
// to import the coordinator package to interpret a query result.
type Status int

const (
	StatusOK Status = iota
	StatusDown
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDown:
		return "down"
	case StatusFail:
		return "fail"
	default:
		return "invalid"
	}
}

// NodeRow is the wire shape of one ha_node record as read from or written
// to the database.
type NodeRow struct {
	NodeID     string
	Name       string
	Status     int
	LastAccess int64
	Address    string
	Port       int
	SessionID  string
}

// ConfigRow is the single-row ha_config record.
type ConfigRow struct {
	FailoverDelay   int
	AuditlogEnabled bool
}

// Driver identifies which SQL backend Dialect to use. Grounded on the
// teacher's database.Driver (src/server/service/database/database.go),
// widened with DriverMSSQL since this module wires all four backends the
// teacher's go.mod already depends on.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
	DriverMSSQL    Driver = "mssql"
)

// Config mirrors the teacher's DatabaseConfig, trimmed to what the
// registry needs: a single connection, not a connection pool fronting a
// web app.
type Config struct {
	Driver      Driver
	Host        string
	Port        int
	Name        string
	User        string
	Password    string
	SSLMode     string
	Path        string // sqlite only
	JournalMode string // sqlite only
	BusyTimeout int    // sqlite only, milliseconds
}

// Executor is the out-of-scope SQL execution collaborator the coordinator
// depends on: connect/begin/commit/rollback/select/execute with tri-state
// outcomes, per spec section 4.5.
type Executor interface {
	// Connect establishes (or re-establishes) the underlying connection.
	// Returns StatusDown if the database is unreachable, StatusFail for a
	// configuration error that will never succeed.
	Connect(ctx context.Context) Status
	// Begin starts a transaction. On StatusDown the Tx is nil.
	Begin(ctx context.Context) (Tx, Status)
	// Now reads the database clock in whole seconds.
	Now(ctx context.Context) (int64, Status)
	// Close tears down the connection so the next Connect reconnects
	// cleanly; called whenever a step aborts on StatusDown.
	Close() error
}

// Tx is a single node-table transaction. Every mutating method here locks
// all rows in id order for the lifetime of the transaction, per spec
// section 5 (shared-resource policy).
type Tx interface {
	// Now reads the database clock within this transaction, so the
	// snapshot of time and the locked rows it's compared against are
	// mutually consistent.
	Now(ctx context.Context) (int64, Status)
	// SelectNodes reads all ha_node rows, row-locked, ordered by node_id.
	SelectNodes(ctx context.Context) ([]NodeRow, Status)
	// SelectConfig reads the single ha_config row, row-locked.
	SelectConfig(ctx context.Context) (ConfigRow, Status)
	// InsertNode creates a new row (registration phase A).
	InsertNode(ctx context.Context, row NodeRow) Status
	// UpdateNode writes lastaccess/status/address/port/session_id for one row.
	UpdateNode(ctx context.Context, row NodeRow) Status
	// UpdateNodesStatus bulk-updates status for the given node ids in one
	// statement (the "single UPDATE with an IN-list" from spec section 4.2).
	UpdateNodesStatus(ctx context.Context, nodeIDs []string, status int) Status
	// UpdateConfig writes the failover delay.
	UpdateConfig(ctx context.Context, failoverDelay int) Status
	// DeleteNode removes one row by node_id (admin remove_node).
	DeleteNode(ctx context.Context, nodeID string) Status
	// InsertAuditRecord writes one audit_log row within this transaction,
	// used by the audit sink to flush buffered records bound to the same
	// commit. Kept on Tx (rather than a raw Exec) so the audit package
	// never needs to know a backend's placeholder syntax.
	InsertAuditRecord(ctx context.Context, table, rowID, field, oldVal, newVal string) Status
	Commit(ctx context.Context) Status
	Rollback(ctx context.Context)
}

// dialect abstracts the handful of SQL differences between backends: the
// FOR UPDATE spelling, placeholder style, and the database-clock query.
type dialect interface {
	placeholder(n int) string
	// tableHint is inserted immediately after the table name (mssql's
	// locking hint syntax); empty for every other backend.
	tableHint() string
	// forUpdate is appended at the end of the statement (postgres/mysql
	// row-lock syntax); empty for sqlite and mssql.
	forUpdate() string
	nowQuery() string
	open(cfg Config) (*sql.DB, error)
}

func dialectFor(d Driver) (dialect, error) {
	switch d {
	case DriverSQLite, "":
		return sqliteDialect{}, nil
	case DriverPostgres:
		return postgresDialect{}, nil
	case DriverMySQL:
		return mysqlDialect{}, nil
	case DriverMSSQL:
		return mssqlDialect{}, nil
	default:
		return nil, fmt.Errorf("dbexec: unsupported driver %q", d)
	}
}

// SQLExecutor is the concrete Executor backed by database/sql, able to
// target sqlite, postgres, mysql, or mssql depending on Config.Driver.
// Grounded on src/server/service/database/database.go's multi-driver
// NewDatabase, generalized from a connection-pooled web-server database to
// a single reconnect-on-DOWN connection a tick-driven registry needs.
type SQLExecutor struct {
	cfg Config
	dia dialect
	db  *sql.DB
}

func NewSQLExecutor(cfg Config) (*SQLExecutor, error) {
	dia, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	return &SQLExecutor{cfg: cfg, dia: dia}, nil
}

func (e *SQLExecutor) Connect(ctx context.Context) Status {
	if e.db != nil {
		if err := e.db.PingContext(ctx); err == nil {
			return StatusOK
		}
		_ = e.db.Close()
		e.db = nil
	}

	db, err := e.dia.open(e.cfg)
	if err != nil {
		return StatusFail
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return StatusDown
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	e.db = db
	return StatusOK
}

func (e *SQLExecutor) Begin(ctx context.Context) (Tx, Status) {
	if e.db == nil {
		if st := e.Connect(ctx); st != StatusOK {
			return nil, st
		}
	}
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(err)
	}
	return &sqlTx{tx: tx, dia: e.dia}, StatusOK
}

func (e *SQLExecutor) Now(ctx context.Context) (int64, Status) {
	if e.db == nil {
		if st := e.Connect(ctx); st != StatusOK {
			return 0, st
		}
	}
	var t int64
	if err := e.db.QueryRowContext(ctx, e.dia.nowQuery()).Scan(&t); err != nil {
		return 0, classify(err)
	}
	return t, StatusOK
}

func (e *SQLExecutor) Close() error {
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	return err
}

// classify maps a database/sql error to a tri-state outcome. Connection
// refusal and timeouts are DOWN (retry next tick); anything else
// (constraint violation, syntax error, closed driver) is FAIL, matching
// spec section 4.5's "commit fails terminally -> enter ERROR".
func classify(err error) Status {
	if err == nil {
		return StatusOK
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return StatusDown
	}
	if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
		return StatusDown
	}
	return StatusFail
}
