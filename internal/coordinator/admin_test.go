// SPDX-License-Identifier: MIT
package coordinator

import (
	"context"
	"testing"
)

func TestListNodesReportsAllRows(t *testing.T) {
	active, standby, _ := registerTwo(t)
	views, fault := active.ListNodes(context.Background())
	if fault != nil {
		t.Fatalf("ListNodes: %v", fault)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(views))
	}
	names := map[string]string{}
	for _, v := range views {
		names[v.Name] = v.StatusText
	}
	if names["alpha"] != "active" || names["beta"] != "standby" {
		t.Fatalf("unexpected statuses: %#v", names)
	}
}

func TestRemoveNodeRefusesActiveOrStandby(t *testing.T) {
	active, _, _ := registerTwo(t)
	views, _ := active.ListNodes(context.Background())
	for i, v := range views {
		if v.Name == "alpha" {
			if fault := active.RemoveNode(context.Background(), i+1); fault == nil {
				t.Fatal("expected refusal to remove an ACTIVE node")
			}
		}
	}
}

func TestRemoveNodeDeletesStoppedNode(t *testing.T) {
	active, _, exec := registerTwo(t)

	// A third node that was registered but never promoted (status
	// STOPPED) is safe to remove administratively.
	exec.nodes["gamma-id"] = exec.nodes[active.NodeID()]
	row := exec.nodes["gamma-id"]
	row.NodeID = "gamma-id"
	row.Name = "gamma"
	row.Status = int(StatusStopped)
	exec.nodes["gamma-id"] = row

	views, fault := active.ListNodes(context.Background())
	if fault != nil {
		t.Fatalf("ListNodes: %v", fault)
	}
	var idx int
	for i, v := range views {
		if v.Name == "gamma" {
			idx = i + 1
		}
	}
	if idx == 0 {
		t.Fatal("gamma not found in listing")
	}
	if fault := active.RemoveNode(context.Background(), idx); fault != nil {
		t.Fatalf("RemoveNode: %v", fault)
	}
	if _, ok := exec.nodes["gamma-id"]; ok {
		t.Fatal("expected gamma row to be deleted")
	}
}

func TestRemoveNodeOutOfRangeIsAdminFault(t *testing.T) {
	active, _, _ := registerTwo(t)
	fault := active.RemoveNode(context.Background(), 99)
	if fault == nil || fault.Kind != FaultAdmin {
		t.Fatalf("expected FaultAdmin for out-of-range index, got %#v", fault)
	}
}

func TestSetFailoverDelayRejectsNonPositive(t *testing.T) {
	c, _ := newTestCoordinator(t, "alpha")
	if fault := c.SetFailoverDelay(context.Background(), 0); fault == nil {
		t.Fatal("expected a fault for a non-positive delay")
	}
}

func TestSetFailoverDelayUpdatesConfigAndInMemoryValue(t *testing.T) {
	c, exec := newTestCoordinator(t, "alpha")
	if err := c.Register(context.Background()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if fault := c.SetFailoverDelay(context.Background(), 30); fault != nil {
		t.Fatalf("SetFailoverDelay: %v", fault)
	}
	if c.FailoverDelay() != 30 {
		t.Fatalf("expected in-memory failover delay 30, got %d", c.FailoverDelay())
	}
	if exec.config.FailoverDelay != 30 {
		t.Fatalf("expected persisted failover delay 30, got %d", exec.config.FailoverDelay)
	}
}
