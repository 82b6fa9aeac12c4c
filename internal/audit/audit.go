// SPDX-License-Identifier: MIT
// Buffered per-transaction audit sink. Out of scope per spec section 1:
// the coordinator only depends on the Sink interface; Flush is bound to
// the same transaction that produced the records, Discard to its rollback.
package audit

import (
	"context"
	"fmt"
)

// Record is one audit entry: a single field change on a node or config row.
type Record struct {
	Table  string // "ha_node" or "ha_config"
	RowID  string // node_id, or "" for the singleton config row
	Field  string
	OldVal string
	NewVal string
}

// Sink buffers records for the current transaction and either flushes them
// (on commit) or discards them (on rollback/abort). Grounded on the
// teacher's audit_log table (src/server/service/database/migrations.go)
// and its "write on commit, nothing on rollback" expectation.
type Sink interface {
	Add(r Record)
	// Flush writes every buffered record within the given transaction scope
	// and clears the buffer. The caller is responsible for committing the
	// same transaction afterward.
	Flush(ctx context.Context, exec Executor) error
	// Discard clears the buffer without writing anything.
	Discard()
	Pending() []Record
	// SetEnabled toggles whether Add collects records going forward. The
	// coordinator calls this after every ha_config reload (spec section 4.2
	// step 5), so runtime changes to auditlog_enabled take effect without a
	// restart.
	SetEnabled(enabled bool)
}

// Executor is the minimal transaction handle the audit sink needs to write
// its own rows; implemented by dbexec's Tx indirectly through an adapter
// the coordinator provides, so this package never imports dbexec and
// never has to know a backend's placeholder syntax.
type Executor interface {
	WriteRecord(ctx context.Context, r Record) error
}

type buffer struct {
	enabled bool
	records []Record
}

// NewSink returns a Sink. When enabled is false, Add is a no-op — this
// matches auditlog_enabled read from ha_config each check (spec section
// 4.2 step 5): when the operator disables auditing, records simply aren't
// collected, so Flush is always a no-op too.
func NewSink(enabled bool) Sink {
	return &buffer{enabled: enabled}
}

func (b *buffer) Add(r Record) {
	if !b.enabled {
		return
	}
	b.records = append(b.records, r)
}

func (b *buffer) Pending() []Record {
	return b.records
}

func (b *buffer) Discard() {
	b.records = nil
}

func (b *buffer) SetEnabled(enabled bool) {
	b.enabled = enabled
}

func (b *buffer) Flush(ctx context.Context, exec Executor) error {
	defer func() { b.records = nil }()
	for _, r := range b.records {
		if err := exec.WriteRecord(ctx, r); err != nil {
			return fmt.Errorf("audit: flush record %s.%s: %w", r.Table, r.Field, err)
		}
	}
	return nil
}
