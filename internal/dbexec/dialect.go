// SPDX-License-Identifier: MIT
package dbexec

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"
)

// Open DSN construction below is adapted from the teacher's
// src/server/service/database/database.go openSQLite/openPostgres/
// openMySQL/openMSSQL, generalized into the dialect interface so a single
// SQLExecutor can target any of the four backends.

type sqliteDialect struct{}

func (sqliteDialect) placeholder(int) string { return "?" }
func (sqliteDialect) forUpdate() string      { return "" } // sqlite locks the whole file per transaction
func (sqliteDialect) tableHint() string      { return "" }
func (sqliteDialect) nowQuery() string       { return "SELECT CAST(strftime('%s','now') AS INTEGER)" }

func (sqliteDialect) open(cfg Config) (*sql.DB, error) {
	dsn := cfg.Path
	if dsn == "" {
		dsn = "ha_node.db"
	}
	journalMode := cfg.JournalMode
	if journalMode == "" {
		journalMode = "WAL"
	}
	busyTimeout := cfg.BusyTimeout
	if busyTimeout == 0 {
		busyTimeout = 5000
	}
	dsn = fmt.Sprintf("%s?_journal_mode=%s&_busy_timeout=%d", dsn, journalMode, busyTimeout)
	return sql.Open("sqlite", dsn)
}

type postgresDialect struct{}

func (postgresDialect) placeholder(n int) string { return fmt.Sprintf("$%d", n) }
func (postgresDialect) forUpdate() string        { return "FOR UPDATE" }
func (postgresDialect) tableHint() string        { return "" }
func (postgresDialect) nowQuery() string         { return "SELECT EXTRACT(EPOCH FROM NOW())::BIGINT" }

func (postgresDialect) open(cfg Config) (*sql.DB, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, port, cfg.User, cfg.Password, cfg.Name, sslMode)
	return sql.Open("pgx", dsn)
}

type mysqlDialect struct{}

func (mysqlDialect) placeholder(int) string { return "?" }
func (mysqlDialect) forUpdate() string      { return "FOR UPDATE" }
func (mysqlDialect) tableHint() string      { return "" }
func (mysqlDialect) nowQuery() string       { return "SELECT UNIX_TIMESTAMP()" }

func (mysqlDialect) open(cfg Config) (*sql.DB, error) {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", cfg.User, cfg.Password, host, port, cfg.Name)
	return sql.Open("mysql", dsn)
}

type mssqlDialect struct{}

func (mssqlDialect) placeholder(n int) string { return fmt.Sprintf("@p%d", n) }
func (mssqlDialect) forUpdate() string        { return "" }
func (mssqlDialect) tableHint() string        { return " WITH (UPDLOCK, ROWLOCK)" }
func (mssqlDialect) nowQuery() string         { return "SELECT DATEDIFF(SECOND, '1970-01-01', GETUTCDATE())" }

func (mssqlDialect) open(cfg Config) (*sql.DB, error) {
	port := cfg.Port
	if port == 0 {
		port = 1433
	}
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	dsn := fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s", cfg.User, cfg.Password, host, port, cfg.Name)
	return sql.Open("sqlserver", dsn)
}
