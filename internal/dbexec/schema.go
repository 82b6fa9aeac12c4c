// SPDX-License-Identifier: MIT
package dbexec

import (
	"context"
)

// EnsureSchema creates the registry's two tables plus the audit log if
// they don't already exist. Adapted from the teacher's SchemaManager
// (src/server/service/database/migrations.go): CREATE TABLE IF NOT
// EXISTS, no migrations-tracking table, safe to run on every startup.
func (e *SQLExecutor) EnsureSchema(ctx context.Context) error {
	if e.db == nil {
		if st := e.Connect(ctx); st != StatusOK {
			return &schemaError{st}
		}
	}
	for _, stmt := range schemaStatements(e.cfg.Driver) {
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

type schemaError struct{ status Status }

func (e *schemaError) Error() string { return "dbexec: cannot ensure schema, database is " + e.status.String() }

func schemaStatements(d Driver) []string {
	intType := "INTEGER"
	autoIncrement := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if d == DriverPostgres {
		autoIncrement = "SERIAL PRIMARY KEY"
	} else if d == DriverMySQL || d == DriverMSSQL {
		autoIncrement = "INTEGER PRIMARY KEY AUTO_INCREMENT"
	}

	return []string{
		`CREATE TABLE IF NOT EXISTS ha_node (
			node_id CHAR(25) PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			status ` + intType + ` NOT NULL,
			lastaccess ` + intType + ` NOT NULL,
			address VARCHAR(255) NOT NULL DEFAULT '',
			port ` + intType + ` NOT NULL DEFAULT 0,
			session_id CHAR(25) NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS ha_config (
			failover_delay ` + intType + ` NOT NULL DEFAULT 60,
			auditlog_enabled ` + intType + ` NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id ` + autoIncrement + `,
			ts ` + intType + ` NOT NULL DEFAULT 0,
			resource VARCHAR(64) NOT NULL,
			resourceid VARCHAR(64) NOT NULL,
			field VARCHAR(64) NOT NULL,
			oldvalue TEXT,
			newvalue TEXT
		)`,
	}
}
