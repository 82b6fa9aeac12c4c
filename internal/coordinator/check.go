// SPDX-License-Identifier: MIT
package coordinator

import (
	"context"
	"time"

	"github.com/apimgr/ha-coordinator/internal/audit"
	"github.com/apimgr/ha-coordinator/internal/dbexec"
	"github.com/apimgr/ha-coordinator/internal/metrics"
)

// Check runs one check step (spec section 4.2), the heart of election. It
// is invoked once per nextcheck tick by the loop. A non-nil error means
// the coordinator has entered ERROR and the caller must shut down; a DOWN
// outcome is not an error — it's reported via DBStatus() so the loop can
// shorten its retry cadence.
func (c *Coordinator) Check(ctx context.Context) error {
	start := time.Now()
	if c.haStatus == StatusError {
		return c.setError("%s", c.err)
	}

	tx, st := c.exec.Begin(ctx)
	c.dbStatus = st
	metrics.DBStatus.Set(float64(st))
	if st == dbexec.StatusDown {
		return nil
	}
	if st == dbexec.StatusFail {
		_ = c.exec.Close()
		return c.setError("cannot start transaction: database failure")
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

	if self.SessionID != c.sessionID {
		tx.Rollback(ctx)
		return c.setPolicyError("registry record has changed ownership")
	}

	if EmptyID(c.nodeID) {
		c.nodeID = self.NodeID
	}

	cfgRow, st := tx.SelectConfig(ctx)
	if c.abortOnDown(ctx, tx, st) {
		return nil
	}
	if st == dbexec.StatusFail {
		tx.Rollback(ctx)
		_ = c.exec.Close()
		return c.setError("cannot read configuration: database failure")
	}
	c.failoverDelay = int64(cfgRow.FailoverDelay)
	c.reloadAuditConfig(cfgRow.AuditlogEnabled)

	dbTime, st := tx.Now(ctx)
	if c.abortOnDown(ctx, tx, st) {
		return nil
	}
	if st == dbexec.StatusFail {
		tx.Rollback(ctx)
		_ = c.exec.Close()
		return c.setError("cannot read database clock: database failure")
	}

	newStatus := self.Status
	var demote []string

	if c.haStatus == StatusStopped {
		// stopSelf has already set in-memory STOPPED; persist it.
		newStatus = StatusStopped
	} else if !c.IsStandalone() {
		if active := firstActive(nodes); active != nil && active.IsStandalone() {
			tx.Rollback(ctx)
			return c.setPolicyError(
				"cannot run cluster node while standalone HA node is active")
		}

		if c.haStatus == StatusActive {
			for _, n := range nodes {
				if n.NodeID == self.NodeID || n.Status != StatusStandby {
					continue
				}
				if !n.Healthy(c.failoverDelay, dbTime) {
					demote = append(demote, n.NodeID)
				}
			}
		} else {
			decided, fault := c.debounce(nodes, self, dbTime)
			if fault != nil {
				tx.Rollback(ctx)
				return fault
			}
			newStatus = decided.status
			if decided.demoteLeader != "" {
				demote = append(demote, decided.demoteLeader)
			}
		}
	}

	if len(demote) > 0 {
		if st := tx.UpdateNodesStatus(ctx, demote, int(StatusUnavailable)); st != dbexec.StatusOK {
			if c.abortOnDown(ctx, tx, st) {
				return nil
			}
			tx.Rollback(ctx)
			_ = c.exec.Close()
			return c.setError("cannot demote stale peer: database failure")
		}
		metrics.PeerDemotions.Add(float64(len(demote)))
	}

	self.LastAccess = dbTime
	statusChanged := newStatus != self.Status
	if statusChanged {
		c.audit.Add(audit.Record{
			Table: "ha_node", RowID: self.NodeID, Field: "status",
			OldVal: self.Status.String(), NewVal: newStatus.String(),
		})
		self.Status = newStatus
	}

	row := dbexec.NodeRow{
		NodeID: self.NodeID, Name: self.Name, Status: int(self.Status),
		LastAccess: self.LastAccess, Address: self.Address, Port: self.Port,
		SessionID: self.SessionID,
	}
	if st := tx.UpdateNode(ctx, row); st != dbexec.StatusOK {
		if c.abortOnDown(ctx, tx, st) {
			return nil
		}
		tx.Rollback(ctx)
		_ = c.exec.Close()
		return c.setError("cannot write lastaccess: database failure")
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
		return c.setError("commit failed: database failure")
	}
	metrics.TickDuration.Observe(time.Since(start).Seconds())

	if statusChanged {
		if newStatus == StatusActive {
			metrics.Promotions.Inc()
		}
		c.setHAStatus(newStatus)
	}
	metrics.HAStatus.Set(float64(c.haStatus))

	return nil
}

// abortOnDown rolls back and closes the connection if st is DOWN,
// reporting true so the caller returns nil (not an error) and retries
// next tick at the shortened cadence.
func (c *Coordinator) abortOnDown(ctx context.Context, tx dbexec.Tx, st dbexec.Status) bool {
	if st != dbexec.StatusDown {
		return false
	}
	tx.Rollback(ctx)
	c.audit.Discard()
	c.dbStatus = dbexec.StatusDown
	metrics.DBStatus.Set(float64(dbexec.StatusDown))
	_ = c.exec.Close()
	return true
}

func toNodes(rows []dbexec.NodeRow) []*Node {
	out := make([]*Node, len(rows))
	for i, r := range rows {
		out[i] = &Node{
			NodeID: r.NodeID, Name: r.Name, Status: Status(r.Status),
			LastAccess: r.LastAccess, Address: r.Address, Port: r.Port,
			SessionID: r.SessionID,
		}
	}
	return out
}

type debounceResult struct {
	status       Status
	demoteLeader string
}

// debounce implements the leader-unavailable debounce (spec section 4.2):
// a non-ACTIVE node only promotes itself after observing the incumbent
// leader's lastaccess stall for more than failover_delay/5 + 1 consecutive
// checks, tolerating transient clock/query skew between this node and the
// leader's own writes.
func (c *Coordinator) debounce(nodes []*Node, self *Node, dbTime int64) (debounceResult, *Fault) {
	leader := firstActive(nodes)

	if leader == nil || leader.NodeID == self.NodeID {
		return debounceResult{status: StatusActive}, nil
	}

	if leader.LastAccess != c.lastAccessActive {
		c.lastAccessActive = leader.LastAccess
		c.offlineTicksActive = 0
	} else {
		c.offlineTicksActive++
	}

	threshold := c.failoverDelay/5 + 1
	if int64(c.offlineTicksActive) > threshold {
		return debounceResult{status: StatusActive, demoteLeader: leader.NodeID}, nil
	}

	return debounceResult{status: self.Status}, nil
}
