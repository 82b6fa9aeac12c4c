// SPDX-License-Identifier: MIT
package coordinator

import (
	"context"
	"testing"

	"github.com/apimgr/ha-coordinator/internal/audit"
	"github.com/apimgr/ha-coordinator/internal/logging"
)

func newTestCoordinator(t *testing.T, name string) (*Coordinator, *fakeExecutor) {
	t.Helper()
	logger, err := logging.New("", logging.LevelDebug)
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	exec := newFakeExecutor()
	exec.clock = 1000
	c := New(name, 15, exec, audit.NewSink(true), logger)
	return c, exec
}

func TestRegisterFirstNodeActivates(t *testing.T) {
	c, _ := newTestCoordinator(t, "alpha")
	if err := c.Register(context.Background()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if c.HAStatus() != StatusActive {
		t.Fatalf("expected ACTIVE, got %s", c.HAStatus())
	}
	if EmptyID(c.NodeID()) {
		t.Fatal("expected a node id to be assigned")
	}
}

func TestRegisterSecondNodeBecomesStandby(t *testing.T) {
	c1, exec := newTestCoordinator(t, "alpha")
	if err := c1.Register(context.Background()); err != nil {
		t.Fatalf("Register alpha: %v", err)
	}

	logger, _ := logging.New("", logging.LevelDebug)
	c2 := New("beta", 15, exec, audit.NewSink(true), logger)
	if err := c2.Register(context.Background()); err != nil {
		t.Fatalf("Register beta: %v", err)
	}
	if c2.HAStatus() != StatusStandby {
		t.Fatalf("expected STANDBY, got %s", c2.HAStatus())
	}
}

func TestRegisterRestartWithStaleHealthyRowIsPolicyFault(t *testing.T) {
	// A node row left ACTIVE with a lastaccess still inside the failover
	// window (e.g. the process crashed without demoting itself) must
	// block a same-named restart until the lease actually expires,
	// rather than silently take over a name that might still be live.
	c1, exec := newTestCoordinator(t, "alpha")
	if err := c1.Register(context.Background()); err != nil {
		t.Fatalf("Register alpha: %v", err)
	}

	logger, _ := logging.New("", logging.LevelDebug)
	c2 := New("alpha", 15, exec, audit.NewSink(true), logger)
	err := c2.Register(context.Background())
	if err == nil {
		t.Fatal("expected a policy fault for a still-healthy existing row")
	}
	fault, ok := err.(*Fault)
	if !ok {
		t.Fatalf("expected *Fault, got %T", err)
	}
	if fault.Kind != FaultPolicy {
		t.Fatalf("expected FaultPolicy, got %s", fault.Kind)
	}
}

func TestRegisterStandaloneExcludesClusterNodes(t *testing.T) {
	c1, exec := newTestCoordinator(t, "alpha")
	if err := c1.Register(context.Background()); err != nil {
		t.Fatalf("Register alpha: %v", err)
	}

	logger, _ := logging.New("", logging.LevelDebug)
	c2 := New("", 15, exec, audit.NewSink(true), logger)
	err := c2.Register(context.Background())
	if err == nil {
		t.Fatal("expected policy fault: standalone cannot start while a named node is active")
	}
	if f, ok := err.(*Fault); !ok || f.Kind != FaultPolicy {
		t.Fatalf("expected FaultPolicy, got %#v", err)
	}
}

func TestRegisterDatabaseDownStaysUnknown(t *testing.T) {
	c, exec := newTestCoordinator(t, "alpha")
	exec.down = true
	if err := c.Register(context.Background()); err != nil {
		t.Fatalf("Register should not error on DOWN: %v", err)
	}
	if c.HAStatus() != StatusUnknown {
		t.Fatalf("expected to stay UNKNOWN while DOWN, got %s", c.HAStatus())
	}
	if c.DBStatus() != 1 { // dbexec.StatusDown
		t.Fatalf("expected DBStatus down")
	}
}

func TestRegisterDatabaseFailEntersError(t *testing.T) {
	c, exec := newTestCoordinator(t, "alpha")
	exec.fail = true
	err := c.Register(context.Background())
	if err == nil {
		t.Fatal("expected an error on FAIL")
	}
	if c.HAStatus() != StatusError {
		t.Fatalf("expected ERROR, got %s", c.HAStatus())
	}
}
