// SPDX-License-Identifier: MIT
package coordinator

import (
	"context"

	"github.com/apimgr/ha-coordinator/internal/audit"
	"github.com/apimgr/ha-coordinator/internal/dbexec"
	"github.com/apimgr/ha-coordinator/internal/metrics"
)

// Register runs the two-phase registration (spec section 4.3), invoked
// once on the first tick while ha_status is UNKNOWN. It returns nil
// without changing ha_status if the database is DOWN throughout, so the
// loop retries registration on the next tick.
func (c *Coordinator) Register(ctx context.Context) error {
	adopted, fault := c.registerPhaseA(ctx)
	if fault != nil {
		metrics.RegistrationFailures.Inc()
		return fault
	}
	if !adopted {
		// database DOWN throughout phase A; stay UNKNOWN, retry next tick.
		return nil
	}
	if err := c.registerPhaseB(ctx); err != nil {
		metrics.RegistrationFailures.Inc()
		return err
	}
	return nil
}

// registerPhaseA creates the node row if it doesn't already exist,
// validating standalone/cluster mode against the current healthy peers.
// The bool return reports whether a row now exists to build on; it is
// false when a step found the database DOWN or when a fault is returned.
func (c *Coordinator) registerPhaseA(ctx context.Context) (adopted bool, fault *Fault) {
	tx, st := c.exec.Begin(ctx)
	c.dbStatus = st
	if st == dbexec.StatusDown {
		return false, nil
	}
	if st == dbexec.StatusFail {
		_ = c.exec.Close()
		return false, c.setError("cannot start registration transaction: database failure")
	}

	rows, st := tx.SelectNodes(ctx)
	if c.abortOnDown(ctx, tx, st) {
		return false, nil
	}
	if st == dbexec.StatusFail {
		tx.Rollback(ctx)
		_ = c.exec.Close()
		return false, c.setError("cannot read node registry: database failure")
	}
	nodes := toNodes(rows)

	cfgRow, st := tx.SelectConfig(ctx)
	if c.abortOnDown(ctx, tx, st) {
		return false, nil
	}
	if st == dbexec.StatusFail {
		tx.Rollback(ctx)
		_ = c.exec.Close()
		return false, c.setError("cannot read configuration: database failure")
	}
	c.failoverDelay = int64(cfgRow.FailoverDelay)
	c.reloadAuditConfig(cfgRow.AuditlogEnabled)

	if idx := findByName(nodes, c.name); idx >= 0 {
		c.nodeID = nodes[idx].NodeID
		tx.Rollback(ctx)
		return true, nil
	}

	dbTime, st := tx.Now(ctx)
	if c.abortOnDown(ctx, tx, st) {
		return false, nil
	}
	if st == dbexec.StatusFail {
		tx.Rollback(ctx)
		_ = c.exec.Close()
		return false, c.setError("cannot read database clock: database failure")
	}

	if _, f := c.validateMode(nodes, dbTime); f != nil {
		tx.Rollback(ctx)
		return false, f
	}

	c.nodeID = NewID()
	row := dbexec.NodeRow{
		NodeID: c.nodeID, Name: c.name, Status: int(StatusStopped),
		LastAccess: dbTime, Address: "", Port: 0, SessionID: c.sessionID,
	}
	if st := tx.InsertNode(ctx, row); st != dbexec.StatusOK {
		if c.abortOnDown(ctx, tx, st) {
			return false, nil
		}
		tx.Rollback(ctx)
		_ = c.exec.Close()
		return false, c.setError("cannot insert node row: database failure")
	}

	if st := tx.Commit(ctx); st != dbexec.StatusOK {
		if st == dbexec.StatusDown {
			c.dbStatus = dbexec.StatusDown
			_ = c.exec.Close()
			return false, nil
		}
		_ = c.exec.Close()
		return false, c.setError("cannot commit registration insert: database failure")
	}

	return true, nil
}

// validateMode applies spec section 4.3 step 3: standalone and
// cluster-named nodes are mutually exclusive, and a cluster node cannot
// duplicate an already-healthy name.
func (c *Coordinator) validateMode(nodes []*Node, dbTime int64) (activate bool, fault *Fault) {
	var healthyStandalone, healthyDuplicate, healthyActiveOrStandby bool

	for _, n := range nodes {
		if !n.Healthy(c.failoverDelay, dbTime) {
			continue
		}
		if n.IsStandalone() {
			healthyStandalone = true
		}
		if n.Name == c.name && !c.IsStandalone() {
			healthyDuplicate = true
		}
		if n.Status == StatusActive || n.Status == StatusStandby {
			healthyActiveOrStandby = true
		}
	}

	if c.IsStandalone() {
		if healthyActiveOrStandby || anyHealthyNamed(nodes, c.failoverDelay, dbTime) {
			return false, c.setPolicyError(
				"cannot start standalone node while a named node is active")
		}
		return true, nil
	}

	if healthyStandalone {
		return false, c.setPolicyError(
			"cannot change mode to HA while standalone node is active")
	}
	if healthyDuplicate {
		return false, c.setPolicyError("node name %q is already registered and active", c.name)
	}
	return !healthyActiveOrStandby, nil
}

func anyHealthyNamed(nodes []*Node, failoverDelay, dbTime int64) bool {
	for _, n := range nodes {
		if !n.IsStandalone() && n.Healthy(failoverDelay, dbTime) {
			return true
		}
	}
	return false
}

// registerPhaseB re-validates under lock and announces this node's
// effective status.
func (c *Coordinator) registerPhaseB(ctx context.Context) error {
	tx, st := c.exec.Begin(ctx)
	c.dbStatus = st
	if st == dbexec.StatusDown {
		return nil
	}
	if st == dbexec.StatusFail {
		_ = c.exec.Close()
		return c.setError("cannot start announce transaction: database failure")
	}

	rows, st := tx.SelectNodes(ctx)
	if c.abortOnDown(ctx, tx, st) {
		return nil
	}
	if st == dbexec.StatusFail {
		tx.Rollback(ctx)
		_ = c.exec.Close()
		return c.setError("cannot read node registry: database failure")
	}
	nodes := toNodes(rows)

	selfIdx := findByName(nodes, c.name)
	if selfIdx < 0 {
		tx.Rollback(ctx)
		return c.setError("cannot find server node in registry")
	}
	self := nodes[selfIdx]

	dbTime, st := tx.Now(ctx)
	if c.abortOnDown(ctx, tx, st) {
		return nil
	}
	if st == dbexec.StatusFail {
		tx.Rollback(ctx)
		_ = c.exec.Close()
		return c.setError("cannot read database clock: database failure")
	}

	reActivate, fault := c.validateMode(nodes, dbTime)
	if fault != nil {
		tx.Rollback(ctx)
		return fault
	}

	newStatus := StatusStandby
	if reActivate {
		newStatus = StatusActive
	}

	changed := map[string]struct{ old, new string }{}
	if self.Status != newStatus {
		changed["status"] = struct{ old, new string }{self.Status.String(), newStatus.String()}
	}
	if self.SessionID != c.sessionID {
		changed["session_id"] = struct{ old, new string }{self.SessionID, c.sessionID}
	}

	row := dbexec.NodeRow{
		NodeID: self.NodeID, Name: self.Name, Status: int(newStatus),
		LastAccess: dbTime, Address: self.Address, Port: self.Port,
		SessionID: c.sessionID,
	}
	if st := tx.UpdateNode(ctx, row); st != dbexec.StatusOK {
		if c.abortOnDown(ctx, tx, st) {
			return nil
		}
		tx.Rollback(ctx)
		_ = c.exec.Close()
		return c.setError("cannot announce registration: database failure")
	}

	for field, v := range changed {
		c.audit.Add(audit.Record{
			Table: "ha_node", RowID: self.NodeID, Field: field,
			OldVal: v.old, NewVal: v.new,
		})
	}

	if err := c.flushAudit(ctx, tx); err != nil {
		tx.Rollback(ctx)
		c.audit.Discard()
		return nil
	}

	if st := tx.Commit(ctx); st != dbexec.StatusOK {
		c.audit.Discard()
		if st == dbexec.StatusDown {
			c.dbStatus = dbexec.StatusDown
			_ = c.exec.Close()
			return nil
		}
		_ = c.exec.Close()
		return c.setError("commit failed during announce: database failure")
	}

	c.setHAStatus(newStatus)
	return nil
}
