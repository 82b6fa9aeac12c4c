// SPDX-License-Identifier: MIT
package audit

import (
	"context"
	"errors"
	"testing"
)

type fakeExec struct {
	written []Record
	failOn  string
}

func (f *fakeExec) WriteRecord(ctx context.Context, r Record) error {
	if r.Field == f.failOn {
		return errors.New("simulated write failure")
	}
	f.written = append(f.written, r)
	return nil
}

func TestDisabledSinkDropsRecords(t *testing.T) {
	sink := NewSink(false)
	sink.Add(Record{Table: "ha_node", Field: "status"})
	if len(sink.Pending()) != 0 {
		t.Fatal("expected a disabled sink to drop Add calls")
	}
}

func TestFlushWritesEveryPendingRecordThenClears(t *testing.T) {
	sink := NewSink(true)
	sink.Add(Record{Table: "ha_node", RowID: "n1", Field: "status", OldVal: "standby", NewVal: "active"})
	sink.Add(Record{Table: "ha_config", Field: "failover_delay", OldVal: "60", NewVal: "30"})

	exec := &fakeExec{}
	if err := sink.Flush(context.Background(), exec); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(exec.written) != 2 {
		t.Fatalf("expected 2 records written, got %d", len(exec.written))
	}
	if len(sink.Pending()) != 0 {
		t.Fatal("expected Flush to clear the buffer")
	}
}

func TestFlushFailurePropagatesError(t *testing.T) {
	sink := NewSink(true)
	sink.Add(Record{Table: "ha_node", Field: "status"})

	exec := &fakeExec{failOn: "status"}
	if err := sink.Flush(context.Background(), exec); err == nil {
		t.Fatal("expected Flush to propagate the write error")
	}
}

func TestDiscardClearsWithoutWriting(t *testing.T) {
	sink := NewSink(true)
	sink.Add(Record{Table: "ha_node", Field: "status"})
	sink.Discard()
	if len(sink.Pending()) != 0 {
		t.Fatal("expected Discard to clear the buffer")
	}
}

func TestSetEnabledTakesEffectOnNextAdd(t *testing.T) {
	sink := NewSink(true)
	sink.SetEnabled(false)
	sink.Add(Record{Table: "ha_node", Field: "status"})
	if len(sink.Pending()) != 0 {
		t.Fatal("expected Add to drop records after SetEnabled(false)")
	}

	sink.SetEnabled(true)
	sink.Add(Record{Table: "ha_node", Field: "status"})
	if len(sink.Pending()) != 1 {
		t.Fatal("expected Add to collect records again after SetEnabled(true)")
	}
}
