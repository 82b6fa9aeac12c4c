// SPDX-License-Identifier: MIT
package coordinator

import (
	"context"
	"fmt"

	"github.com/apimgr/ha-coordinator/internal/audit"
	"github.com/apimgr/ha-coordinator/internal/dbexec"
)

// NodeView is one row of the admin node listing (spec section 4.6),
// serialized to JSON by the IPC layer.
type NodeView struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Status        int    `json:"status"`
	StatusText    string `json:"status_text"`
	LastAccess    int64  `json:"lastaccess"`
	Address       string `json:"address"`
	DBTimestamp   int64  `json:"db_timestamp"`
	LastAccessAge int64  `json:"lastaccess_age"`
}

// ListNodes reads all rows (through the same row-locking SelectNodes as
// the check step; the locks are released by the rollback right after the
// read, since nothing is written) and the current database clock, and
// returns them ordered by node_id.
func (c *Coordinator) ListNodes(ctx context.Context) ([]NodeView, *Fault) {
	tx, st := c.exec.Begin(ctx)
	if st != dbexec.StatusOK {
		return nil, newFault(FaultAdmin, "cannot list nodes: database %s", st)
	}

	rows, st := tx.SelectNodes(ctx)
	if st != dbexec.StatusOK {
		tx.Rollback(ctx)
		return nil, newFault(FaultAdmin, "cannot list nodes: database %s", st)
	}

	dbTime, st := tx.Now(ctx)
	if st != dbexec.StatusOK {
		tx.Rollback(ctx)
		return nil, newFault(FaultAdmin, "cannot read database clock: database %s", st)
	}
	tx.Rollback(ctx)

	out := make([]NodeView, len(rows))
	for i, r := range rows {
		addr := r.Address
		if r.Port != 0 {
			addr = fmt.Sprintf("%s:%d", r.Address, r.Port)
		}
		out[i] = NodeView{
			ID: r.NodeID, Name: r.Name, Status: r.Status,
			StatusText: Status(r.Status).String(), LastAccess: r.LastAccess,
			Address: addr, DBTimestamp: dbTime, LastAccessAge: dbTime - r.LastAccess,
		}
	}
	return out, nil
}

// RemoveNode deletes the 1-based index-th node in id order, refusing if
// the index is out of range or the target is ACTIVE/STANDBY.
func (c *Coordinator) RemoveNode(ctx context.Context, index int) *Fault {
	tx, st := c.exec.Begin(ctx)
	if st != dbexec.StatusOK {
		return newFault(FaultAdmin, "cannot remove node: database %s", st)
	}

	rows, st := tx.SelectNodes(ctx)
	if st != dbexec.StatusOK {
		tx.Rollback(ctx)
		return newFault(FaultAdmin, "cannot remove node: database %s", st)
	}

	if index < 1 || index > len(rows) {
		tx.Rollback(ctx)
		return newFault(FaultAdmin, "node index %d out of range (have %d nodes)", index, len(rows))
	}
	target := rows[index-1]
	targetStatus := Status(target.Status)
	if targetStatus == StatusActive || targetStatus == StatusStandby {
		tx.Rollback(ctx)
		return newFault(FaultAdmin, "cannot remove node %q: current status is %s", target.Name, targetStatus)
	}

	if st := tx.DeleteNode(ctx, target.NodeID); st != dbexec.StatusOK {
		tx.Rollback(ctx)
		return newFault(FaultAdmin, "cannot remove node: database %s", st)
	}

	c.audit.Add(audit.Record{
		Table: "ha_node", RowID: target.NodeID, Field: "status",
		OldVal: targetStatus.String(), NewVal: "removed",
	})
	if err := c.flushAudit(ctx, tx); err != nil {
		tx.Rollback(ctx)
		c.audit.Discard()
		return newFault(FaultAdmin, "cannot flush audit record: %s", err)
	}

	if st := tx.Commit(ctx); st != dbexec.StatusOK {
		c.audit.Discard()
		return newFault(FaultAdmin, "cannot remove node: database %s", st)
	}
	return nil
}

// SetFailoverDelay writes a new failover delay to the configuration row,
// taking effect on the next check step.
func (c *Coordinator) SetFailoverDelay(ctx context.Context, delay int) *Fault {
	if delay <= 0 {
		return newFault(FaultAdmin, "failover delay must be positive, got %d", delay)
	}

	tx, st := c.exec.Begin(ctx)
	if st != dbexec.StatusOK {
		return newFault(FaultAdmin, "cannot set failover delay: database %s", st)
	}

	cfgRow, st := tx.SelectConfig(ctx)
	if st != dbexec.StatusOK {
		tx.Rollback(ctx)
		return newFault(FaultAdmin, "cannot set failover delay: database %s", st)
	}

	if st := tx.UpdateConfig(ctx, delay); st != dbexec.StatusOK {
		tx.Rollback(ctx)
		return newFault(FaultAdmin, "cannot set failover delay: database %s", st)
	}

	c.audit.Add(audit.Record{
		Table: "ha_config", RowID: "", Field: "failover_delay",
		OldVal: fmt.Sprintf("%d", cfgRow.FailoverDelay), NewVal: fmt.Sprintf("%d", delay),
	})
	if err := c.flushAudit(ctx, tx); err != nil {
		tx.Rollback(ctx)
		c.audit.Discard()
		return newFault(FaultAdmin, "cannot flush audit record: %s", err)
	}

	if st := tx.Commit(ctx); st != dbexec.StatusOK {
		c.audit.Discard()
		return newFault(FaultAdmin, "cannot set failover delay: database %s", st)
	}

	c.failoverDelay = int64(delay)
	return nil
}
