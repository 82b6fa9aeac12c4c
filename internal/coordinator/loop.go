// SPDX-License-Identifier: MIT
package coordinator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/apimgr/ha-coordinator/internal/dbexec"
	"github.com/apimgr/ha-coordinator/internal/wire"
)

const serviceTimeout = 3 * time.Second

// phase distinguishes the loop's two phases (spec section 4.1).
type phase int

const (
	phaseRunning phase = iota
	phasePaused
)

// wireNotifier adapts a wire.Conn into ParentNotifier, pushing UPDATE and
// HEARTBEAT frames to whichever parent last sent REGISTER.
type wireNotifier struct {
	conn *wire.Conn
}

func (w wireNotifier) NotifyUpdate(status Status, failoverDelay int, errDetail string) {
	payload := wire.EncodeUpdate(wire.UpdatePayload{
		Status: int32(status), FailoverDelay: int32(failoverDelay), Error: errDetail,
	})
	_ = w.conn.SendAndFlush(wire.CodeUpdate, payload, serviceTimeout)
}

func (w wireNotifier) NotifyHeartbeat() {
	_ = w.conn.SendAndFlush(wire.CodeHeartbeat, nil, serviceTimeout)
}

// Loop drives the coordinator's tick-based lifecycle over one accepted
// IPC connection, per spec section 4.1. It returns when the parent sends
// STOP, when an unrecoverable fault occurs, or when ctx is cancelled.
func (c *Coordinator) Loop(ctx context.Context, conn *wire.Conn, initial Status) error {
	c.haStatus = initial

	ph := phaseRunning
	var nextcheck int64 = 5
	if initial == StatusStandby {
		nextcheck = 10
	}
	if initial == StatusUnknown {
		nextcheck = 1
	}
	var tick int64

	registered := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if ph == phaseRunning {
			tick++
			if tick >= nextcheck {
				tick = 0
				var err error
				if c.haStatus == StatusUnknown {
					err = c.Register(ctx)
				} else {
					err = c.Check(ctx)
				}
				if err != nil {
					return err
				}
				if c.dbStatus != dbexec.StatusOK {
					nextcheck = 1
				} else {
					nextcheck = 5
				}
			}
			if registered {
				c.heartbeat()
			}
		} else {
			// Paused: still renew lastaccess so the row doesn't expire
			// while shutting down gracefully.
			if c.haStatus == StatusStandby || c.haStatus == StatusActive {
				_ = c.Check(ctx)
			}
		}

		msg, err := conn.Recv(1 * time.Second)
		if err != nil {
			continue // timeout or transient read error: loop back to the tick check
		}

		switch msg.Code {
		case wire.CodeRegister:
			c.SetParent(wireNotifier{conn: conn})
			registered = true

		case wire.CodeUpdate:
			c.parent.NotifyUpdate(c.haStatus, int(c.failoverDelay), c.err)

		case wire.CodePause:
			ph = phasePaused

		case wire.CodeStop:
			c.stopSelf(ctx)
			return nil

		case wire.CodeGetNodes:
			c.dispatchGetNodes(ctx, conn)

		case wire.CodeRemoveNode:
			c.dispatchRemoveNode(ctx, conn, msg)

		case wire.CodeSetFailoverDelay:
			c.dispatchSetFailoverDelay(ctx, conn, msg)

		case wire.CodeLoglevelIncrease:
			c.logger.IncreaseLevel()

		case wire.CodeLoglevelDecrease:
			c.logger.DecreaseLevel()
		}
	}
}

// stopSelf marks this node STOPPED if it currently holds a lease, per
// spec section 4.1's paused-phase exit.
func (c *Coordinator) stopSelf(ctx context.Context) {
	if c.haStatus != StatusActive && c.haStatus != StatusStandby {
		return
	}
	c.setHAStatus(StatusStopped)
	_ = c.Check(ctx)
}

func (c *Coordinator) dispatchGetNodes(ctx context.Context, conn *wire.Conn) {
	nodes, fault := c.ListNodes(ctx)
	if fault != nil {
		_ = conn.SendAndFlush(wire.CodeGetNodes,
			wire.EncodeNodesReply(wire.NodesReply{OK: 0, Body: fault.Detail}), serviceTimeout)
		return
	}
	body, err := json.Marshal(nodes)
	if err != nil {
		_ = conn.SendAndFlush(wire.CodeGetNodes,
			wire.EncodeNodesReply(wire.NodesReply{OK: 0, Body: err.Error()}), serviceTimeout)
		return
	}
	_ = conn.SendAndFlush(wire.CodeGetNodes,
		wire.EncodeNodesReply(wire.NodesReply{OK: 1, Body: string(body)}), serviceTimeout)
}

func (c *Coordinator) dispatchRemoveNode(ctx context.Context, conn *wire.Conn, msg wire.Message) {
	req, err := wire.DecodeRemoveNode(msg.Payload)
	if err != nil {
		_ = conn.SendAndFlush(wire.CodeRemoveNode,
			wire.EncodeErrorReply(wire.ErrorReply{Error: err.Error()}), serviceTimeout)
		return
	}
	reply := wire.ErrorReply{}
	if fault := c.RemoveNode(ctx, int(req.Index)); fault != nil {
		reply.Error = fault.Detail
	}
	_ = conn.SendAndFlush(wire.CodeRemoveNode, wire.EncodeErrorReply(reply), serviceTimeout)
}

func (c *Coordinator) dispatchSetFailoverDelay(ctx context.Context, conn *wire.Conn, msg wire.Message) {
	req, err := wire.DecodeSetFailoverDelay(msg.Payload)
	if err != nil {
		_ = conn.SendAndFlush(wire.CodeSetFailoverDelay,
			wire.EncodeErrorReply(wire.ErrorReply{Error: err.Error()}), serviceTimeout)
		return
	}
	reply := wire.ErrorReply{}
	if fault := c.SetFailoverDelay(ctx, int(req.Delay)); fault != nil {
		reply.Error = fault.Detail
	}
	_ = conn.SendAndFlush(wire.CodeSetFailoverDelay, wire.EncodeErrorReply(reply), serviceTimeout)
}
