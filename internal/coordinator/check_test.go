// SPDX-License-Identifier: MIT
package coordinator

import (
	"context"
	"testing"

	"github.com/apimgr/ha-coordinator/internal/dbexec"
)

func registerTwo(t *testing.T) (active *Coordinator, standby *Coordinator, exec *fakeExecutor) {
	t.Helper()
	active, exec = newTestCoordinator(t, "alpha")
	if err := active.Register(context.Background()); err != nil {
		t.Fatalf("register alpha: %v", err)
	}
	standby, _ = func() (*Coordinator, *fakeExecutor) {
		c, _ := newTestCoordinator(t, "beta")
		c.exec = exec
		return c, exec
	}()
	if err := standby.Register(context.Background()); err != nil {
		t.Fatalf("register beta: %v", err)
	}
	if active.HAStatus() != StatusActive || standby.HAStatus() != StatusStandby {
		t.Fatalf("unexpected initial statuses: active=%s standby=%s", active.HAStatus(), standby.HAStatus())
	}
	return active, standby, exec
}

func TestCheckActiveDemotesStalePeer(t *testing.T) {
	active, standby, exec := registerTwo(t)

	// standby goes silent: its lastaccess stops advancing, eventually
	// falling outside the failover window.
	exec.clock += int64(active.FailoverDelay()) + 5

	if err := active.Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}

	row := exec.nodes[standby.NodeID()]
	if Status(row.Status) != StatusUnavailable {
		t.Fatalf("expected stale standby demoted to UNAVAILABLE, got %s", Status(row.Status))
	}
	if active.HAStatus() != StatusActive {
		t.Fatalf("active node should remain ACTIVE, got %s", active.HAStatus())
	}
}

func TestCheckStandbyPromotesAfterDebounceThreshold(t *testing.T) {
	active, standby, exec := registerTwo(t)

	// Freeze the leader's lastaccess (simulate its process dying) without
	// advancing the clock past the lease window in one jump, so the
	// standby must observe the stall across several ticks.
	threshold := int(active.FailoverDelay()/5 + 1)

	// The first observed tick only establishes the baseline lastaccess
	// seen (debounce resets its counter rather than counting it as
	// stale), so promotion needs one extra tick beyond the threshold.
	for i := 0; i <= threshold+1; i++ {
		exec.clock += active.FailoverDelay()/5 + 1
		if err := standby.Check(context.Background()); err != nil {
			t.Fatalf("Check tick %d: %v", i, err)
		}
	}

	if standby.HAStatus() != StatusActive {
		t.Fatalf("expected standby to promote to ACTIVE after %d stalled ticks, got %s", threshold, standby.HAStatus())
	}
}

func TestCheckStandbyDoesNotPromoteBeforeThreshold(t *testing.T) {
	active, standby, exec := registerTwo(t)
	_ = active

	exec.clock += 1
	if err := standby.Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if standby.HAStatus() != StatusStandby {
		t.Fatalf("expected standby to remain STANDBY on the first stalled tick, got %s", standby.HAStatus())
	}
}

func TestCheckDatabaseDownReportsWithoutError(t *testing.T) {
	c, exec := newTestCoordinator(t, "alpha")
	if err := c.Register(context.Background()); err != nil {
		t.Fatalf("register: %v", err)
	}
	exec.down = true
	if err := c.Check(context.Background()); err != nil {
		t.Fatalf("Check should not return an error on DOWN: %v", err)
	}
	if c.DBStatus() != dbexec.StatusDown {
		t.Fatalf("expected DBStatus DOWN")
	}
	if c.HAStatus() != StatusActive {
		t.Fatalf("status should not change while only the database link is down, got %s", c.HAStatus())
	}
}

// TestCheckAuditlogEnabledGatesRecordsAtRuntime exercises reloadAuditConfig
// end to end: toggling ha_config.auditlog_enabled must change whether a
// Check call that changes ha_status actually writes an audit record, not
// just update the in-memory auditlogEnabled field.
func TestCheckAuditlogEnabledGatesRecordsAtRuntime(t *testing.T) {
	promote := func(t *testing.T, exec *fakeExecutor, standby *Coordinator) {
		t.Helper()
		threshold := int(standby.FailoverDelay()/5 + 1)
		for i := 0; i <= threshold+1; i++ {
			exec.clock += standby.FailoverDelay()/5 + 1
			if err := standby.Check(context.Background()); err != nil {
				t.Fatalf("Check tick %d: %v", i, err)
			}
		}
		if standby.HAStatus() != StatusActive {
			t.Fatalf("expected standby to promote to ACTIVE, got %s", standby.HAStatus())
		}
	}

	t.Run("disabled", func(t *testing.T) {
		_, standby, exec := registerTwo(t)
		exec.config.AuditlogEnabled = false
		promote(t, exec, standby)
		if exec.auditWrites != 0 {
			t.Fatalf("expected no audit writes while auditlog_enabled is false, got %d", exec.auditWrites)
		}
	})

	t.Run("enabled", func(t *testing.T) {
		_, standby, exec := registerTwo(t)
		exec.config.AuditlogEnabled = true
		promote(t, exec, standby)
		if exec.auditWrites == 0 {
			t.Fatal("expected the promotion's status change to be audited once auditlog_enabled is true")
		}
	})
}

func TestCheckSessionTakeoverEntersError(t *testing.T) {
	c, exec := newTestCoordinator(t, "alpha")
	if err := c.Register(context.Background()); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Simulate another process taking over the same row (failover
	// manager reassigned the name, or an operator reset session_id).
	row := exec.nodes[c.NodeID()]
	row.SessionID = "someone-else"
	exec.nodes[c.NodeID()] = row

	err := c.Check(context.Background())
	if err == nil {
		t.Fatal("expected an error when session_id no longer matches")
	}
	if c.HAStatus() != StatusError {
		t.Fatalf("expected ERROR after losing ownership, got %s", c.HAStatus())
	}
}
