// SPDX-License-Identifier: MIT
package coordinator

import (
	"context"
	"sort"

	"github.com/apimgr/ha-coordinator/internal/dbexec"
)

// fakeExecutor is an in-memory dbexec.Executor/Tx pair used to drive the
// coordinator's state machine deterministically, without a real database.
// down/fail let a test simulate the tri-state outcomes a check step must
// handle at any step.
type fakeExecutor struct {
	nodes  map[string]dbexec.NodeRow
	config dbexec.ConfigRow
	clock  int64

	down   bool
	fail   bool
	closed bool

	auditWrites int
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		nodes:  make(map[string]dbexec.NodeRow),
		config: dbexec.ConfigRow{FailoverDelay: 15},
	}
}

func (f *fakeExecutor) Connect(ctx context.Context) dbexec.Status {
	f.closed = false
	return f.status()
}

func (f *fakeExecutor) status() dbexec.Status {
	if f.fail {
		return dbexec.StatusFail
	}
	if f.down {
		return dbexec.StatusDown
	}
	return dbexec.StatusOK
}

func (f *fakeExecutor) Begin(ctx context.Context) (dbexec.Tx, dbexec.Status) {
	st := f.status()
	if st != dbexec.StatusOK {
		return nil, st
	}
	return &fakeTx{f: f}, dbexec.StatusOK
}

func (f *fakeExecutor) Now(ctx context.Context) (int64, dbexec.Status) {
	return f.clock, f.status()
}

func (f *fakeExecutor) Close() error {
	f.closed = true
	return nil
}

// fakeTx mutates the executor's maps directly; commit/rollback are no-ops
// since there's no staging area to discard — tests that need rollback
// semantics check f.nodes was left unmodified after an aborted path
// returns early, mirroring what a real ROLLBACK guarantees.
type fakeTx struct{ f *fakeExecutor }

func (t *fakeTx) Now(ctx context.Context) (int64, dbexec.Status) { return t.f.clock, t.f.status() }

func (t *fakeTx) SelectNodes(ctx context.Context) ([]dbexec.NodeRow, dbexec.Status) {
	if st := t.f.status(); st != dbexec.StatusOK {
		return nil, st
	}
	ids := make([]string, 0, len(t.f.nodes))
	for id := range t.f.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rows := make([]dbexec.NodeRow, len(ids))
	for i, id := range ids {
		rows[i] = t.f.nodes[id]
	}
	return rows, dbexec.StatusOK
}

func (t *fakeTx) SelectConfig(ctx context.Context) (dbexec.ConfigRow, dbexec.Status) {
	if st := t.f.status(); st != dbexec.StatusOK {
		return dbexec.ConfigRow{}, st
	}
	return t.f.config, dbexec.StatusOK
}

func (t *fakeTx) InsertNode(ctx context.Context, row dbexec.NodeRow) dbexec.Status {
	if st := t.f.status(); st != dbexec.StatusOK {
		return st
	}
	t.f.nodes[row.NodeID] = row
	return dbexec.StatusOK
}

func (t *fakeTx) UpdateNode(ctx context.Context, row dbexec.NodeRow) dbexec.Status {
	if st := t.f.status(); st != dbexec.StatusOK {
		return st
	}
	t.f.nodes[row.NodeID] = row
	return dbexec.StatusOK
}

func (t *fakeTx) UpdateNodesStatus(ctx context.Context, nodeIDs []string, status int) dbexec.Status {
	if st := t.f.status(); st != dbexec.StatusOK {
		return st
	}
	for _, id := range nodeIDs {
		row := t.f.nodes[id]
		row.Status = status
		t.f.nodes[id] = row
	}
	return dbexec.StatusOK
}

func (t *fakeTx) UpdateConfig(ctx context.Context, failoverDelay int) dbexec.Status {
	if st := t.f.status(); st != dbexec.StatusOK {
		return st
	}
	t.f.config.FailoverDelay = failoverDelay
	return dbexec.StatusOK
}

func (t *fakeTx) DeleteNode(ctx context.Context, nodeID string) dbexec.Status {
	if st := t.f.status(); st != dbexec.StatusOK {
		return st
	}
	delete(t.f.nodes, nodeID)
	return dbexec.StatusOK
}

func (t *fakeTx) InsertAuditRecord(ctx context.Context, table, rowID, field, oldVal, newVal string) dbexec.Status {
	if st := t.f.status(); st != dbexec.StatusOK {
		return st
	}
	t.f.auditWrites++
	return dbexec.StatusOK
}

func (t *fakeTx) Commit(ctx context.Context) dbexec.Status   { return t.f.status() }
func (t *fakeTx) Rollback(ctx context.Context)                {}
