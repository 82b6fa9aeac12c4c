// SPDX-License-Identifier: MIT

// Package coordinator implements the HA coordinator: its state machine,
// database-backed election and lease protocol, the tick/heartbeat loop,
// and the administrative operations exposed to the parent process. This
// is the hard part spec section 1 calls out — everything else (the SQL
// execution layer, the IPC transport, the audit sink, configuration, and
// process management) is an out-of-scope collaborator this package
// depends on only through a narrow interface.
package coordinator

import (
	"context"
	"fmt"

	"github.com/apimgr/ha-coordinator/internal/audit"
	"github.com/apimgr/ha-coordinator/internal/dbexec"
	"github.com/apimgr/ha-coordinator/internal/logging"
)

// ParentNotifier is the thin edge of the parent-side contract the
// coordinator pushes through: a status update whenever ha_status changes,
// and a heartbeat whenever the database link is healthy. The loop (not
// this file) is responsible for turning these calls into wire messages.
type ParentNotifier interface {
	NotifyUpdate(status Status, failoverDelay int, errDetail string)
	NotifyHeartbeat()
}

// noopNotifier is used until a parent registers, and in tests.
type noopNotifier struct{}

func (noopNotifier) NotifyUpdate(Status, int, string) {}
func (noopNotifier) NotifyHeartbeat()                 {}

// Coordinator holds all in-memory state from spec section 3 and the
// database/audit/logging collaborators it's built on.
type Coordinator struct {
	// Identity, fixed at construction.
	name string // "" => standalone

	// Mutable HA state.
	nodeID              string
	sessionID           string
	haStatus            Status
	dbStatus            dbexec.Status
	failoverDelay       int64
	auditlogEnabled     bool
	lastAccessActive    int64
	offlineTicksActive  int
	err                 string

	exec   dbexec.Executor
	audit  audit.Sink
	logger *logging.Logger
	parent ParentNotifier
}

// New constructs a Coordinator. name is the configured node name ("" for
// the standalone sentinel); failoverDelay is the starting value used
// until the first successful check reloads it from ha_config.
func New(name string, failoverDelay int64, exec dbexec.Executor, sink audit.Sink, logger *logging.Logger) *Coordinator {
	return &Coordinator{
		name:          name,
		haStatus:      StatusUnknown,
		dbStatus:      dbexec.StatusOK,
		failoverDelay: failoverDelay,
		sessionID:     NewID(),
		exec:          exec,
		audit:         sink,
		logger:        logger,
		parent:        noopNotifier{},
	}
}

// SetParent installs the notifier the coordinator pushes status changes
// and heartbeats through, once the parent has sent REGISTER.
func (c *Coordinator) SetParent(p ParentNotifier) {
	if p == nil {
		p = noopNotifier{}
	}
	c.parent = p
}

func (c *Coordinator) HAStatus() Status       { return c.haStatus }
func (c *Coordinator) DBStatus() dbexec.Status { return c.dbStatus }
func (c *Coordinator) Error() string          { return c.err }
func (c *Coordinator) NodeID() string         { return c.nodeID }
func (c *Coordinator) SessionID() string      { return c.sessionID }
func (c *Coordinator) FailoverDelay() int64   { return c.failoverDelay }
func (c *Coordinator) IsStandalone() bool     { return c.name == "" }

// setHAStatus updates in-memory status and, if it changed, notifies the
// parent, per spec section 4.2 step 11.
func (c *Coordinator) setHAStatus(s Status) {
	if s == c.haStatus {
		return
	}
	c.haStatus = s
	c.logger.Info("ha_status changed", map[string]string{"status": s.String()})
	c.parent.NotifyUpdate(c.haStatus, int(c.failoverDelay), c.err)
}

// setError escalates to ERROR. First error wins: once ha_status is ERROR,
// subsequent calls are ignored so the original cause is preserved, per
// spec section 7.
func (c *Coordinator) setError(format string, args ...any) *Fault {
	f := newFault(FaultTerminal, format, args...)
	if c.haStatus == StatusError {
		return f
	}
	c.err = f.Detail
	c.haStatus = StatusError
	c.logger.Critical("coordinator entering ERROR", map[string]string{"detail": f.Detail})
	c.parent.NotifyUpdate(c.haStatus, int(c.failoverDelay), c.err)
	return f
}

// setPolicyError is identical to setError but tagged as a policy
// violation rather than a raw terminal fault, so callers (and tests) can
// branch on fault kind.
func (c *Coordinator) setPolicyError(format string, args ...any) *Fault {
	f := c.setError(format, args...)
	f.Kind = FaultPolicy
	return f
}

// reloadAuditConfig applies a freshly-read auditlog_enabled value from
// ha_config to both the in-memory copy and the audit sink itself, so
// toggling it at runtime takes effect on the very next Add call instead of
// only being recorded and never acted on.
func (c *Coordinator) reloadAuditConfig(enabled bool) {
	c.auditlogEnabled = enabled
	c.audit.SetEnabled(enabled)
}

// heartbeat sends a heartbeat to the parent iff the database link is
// healthy, per spec section 4.1 step 2.
func (c *Coordinator) heartbeat() {
	if c.dbStatus == dbexec.StatusOK {
		c.parent.NotifyHeartbeat()
	}
}

// auditExec adapts a dbexec.Tx to audit.Executor so the audit sink can
// flush within the same transaction without this package's audit
// dependency knowing about dbexec.
type auditExec struct{ tx dbexec.Tx }

func (a auditExec) WriteRecord(ctx context.Context, r audit.Record) error {
	st := a.tx.InsertAuditRecord(ctx, r.Table, r.RowID, r.Field, r.OldVal, r.NewVal)
	if st != dbexec.StatusOK {
		return fmt.Errorf("coordinator: audit write failed: %s", st)
	}
	return nil
}

// flushAudit commits the buffered audit records within tx, or discards
// them if flushing fails — the transaction's own commit/rollback decides
// whether these writes are durable, per spec section 4.5.
func (c *Coordinator) flushAudit(ctx context.Context, tx dbexec.Tx) error {
	if len(c.audit.Pending()) == 0 {
		return nil
	}
	return c.audit.Flush(ctx, auditExec{tx: tx})
}
