// SPDX-License-Identifier: MIT
package coordinator

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/apimgr/ha-coordinator/internal/procmgr"
	"github.com/apimgr/ha-coordinator/internal/wire"
)

// Client is the parent-side API (spec section 4.4): it spawns the
// coordinator child and talks to it over one persistent IPC connection
// that carries both the async UPDATE/HEARTBEAT push stream and the
// synchronous admin request/reply exchanges. recvMu serializes every read
// off that connection — without it, RecvStatus's continuous drain loop
// (run from ha-node's superviseStatus goroutine) and a concurrent
// GetNodes/RemoveNode/SetFailoverDelay call (run from an HTTP handler
// goroutine) would call wire.Conn.Recv on the same *bufio.Reader at once,
// which is not safe for concurrent use. Serializing alone isn't enough,
// though: a heartbeat can still be sitting unread ahead of an admin
// reply, so awaitReply also filters out and applies any HEARTBEAT/UPDATE
// frames it encounters while waiting for the reply it actually asked for,
// instead of assuming the very next frame is always that reply.
type Client struct {
	socketPath string
	proc       *procmgr.Process
	conn       *wire.Conn
	recvMu     sync.Mutex

	status        Status
	failoverDelay int
	lastErr       string
	lastHeartbeat time.Time
}

// NewClient constructs a Client bound to socketPath; Start dials it once
// the child coordinator process is listening.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath, status: StatusUnknown}
}

// Attach connects to an already-running coordinator's socket without
// spawning one, for operator tools (nodectl) that talk to a node
// started by a separate ha-node process.
func Attach(socketPath string) (*Client, error) {
	conn, err := wire.Dial(socketPath)
	if err != nil {
		return nil, fmt.Errorf("coordinator: dial %s: %w", socketPath, err)
	}
	if err := conn.SendAndFlush(wire.CodeRegister, nil, serviceTimeout); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("coordinator: register: %w", err)
	}
	return &Client{socketPath: socketPath, conn: conn, status: StatusUnknown, lastHeartbeat: time.Now()}, nil
}

// Close releases the connection without touching the coordinator
// process lifetime; used by operator tools that attached rather than
// spawned.
func (cl *Client) Close() error {
	if cl.conn != nil {
		return cl.conn.Close()
	}
	return nil
}

// Start spawns the coordinator binary, connects, and sends REGISTER. On
// any failure the child is killed, per spec section 4.4.
func (cl *Client) Start(path string, args, env []string, initialStatus Status) error {
	proc, err := procmgr.Spawn(path, args, env)
	if err != nil {
		return fmt.Errorf("coordinator: spawn: %w", err)
	}
	cl.proc = proc
	cl.status = initialStatus

	var conn *wire.Conn
	deadline := time.Now().Add(5 * time.Second)
	for {
		conn, err = wire.Dial(cl.socketPath)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			cl.Kill()
			return fmt.Errorf("coordinator: dial %s: %w", cl.socketPath, err)
		}
		time.Sleep(100 * time.Millisecond)
	}
	cl.conn = conn

	if err := cl.conn.SendAndFlush(wire.CodeRegister, nil, serviceTimeout); err != nil {
		cl.Kill()
		return fmt.Errorf("coordinator: register: %w", err)
	}
	cl.lastHeartbeat = time.Now()
	return nil
}

// applyAsyncFrame updates in-memory status/failoverDelay/lastErr/
// lastHeartbeat from an UPDATE or HEARTBEAT frame; any other code is
// ignored. Callers must hold recvMu.
func (cl *Client) applyAsyncFrame(msg wire.Message) error {
	switch msg.Code {
	case wire.CodeUpdate:
		p, err := wire.DecodeUpdate(msg.Payload)
		if err != nil {
			return fmt.Errorf("coordinator: decode update: %w", err)
		}
		cl.status = Status(p.Status)
		cl.failoverDelay = int(p.FailoverDelay)
		cl.lastErr = p.Error
		cl.lastHeartbeat = time.Now()
	case wire.CodeHeartbeat:
		cl.lastHeartbeat = time.Now()
	}
	return nil
}

// awaitReply reads frames until it finds one with code want, applying any
// interleaved HEARTBEAT/UPDATE frames to in-memory status along the way
// instead of mistaking them for the reply. Callers must hold recvMu.
func (cl *Client) awaitReply(want wire.Code, timeout time.Duration) (wire.Message, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return wire.Message{}, fmt.Errorf("coordinator: timed out waiting for a %s reply", want)
		}
		msg, err := cl.conn.Recv(remaining)
		if err != nil {
			return wire.Message{}, err
		}
		if msg.Code == want {
			return msg, nil
		}
		if err := cl.applyAsyncFrame(msg); err != nil {
			return wire.Message{}, err
		}
	}
}

// RecvStatus drains any pending messages within timeout, updating
// in-memory status/failoverDelay/lastErr and returning the current
// status. If the coordinator has gone silent past its lease, the
// demotion is synthesized here rather than waited for, per spec section
// 4.4.
func (cl *Client) RecvStatus(timeout time.Duration) (Status, error) {
	cl.recvMu.Lock()
	defer cl.recvMu.Unlock()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		msg, err := cl.conn.Recv(remaining)
		if err != nil {
			break
		}
		if err := cl.applyAsyncFrame(msg); err != nil {
			return cl.status, err
		}
	}

	now := time.Now()
	deadTime := cl.lastHeartbeat.Add(time.Duration(cl.failoverDelay-5) * time.Second)
	if cl.status == StatusActive && (now.After(deadTime) || now.Before(cl.lastHeartbeat)) {
		cl.status = StatusStandby
	}
	return cl.status, nil
}

// GetStatus requests a fresh UPDATE push; the reply arrives on the next
// RecvStatus call.
func (cl *Client) GetStatus() error {
	return cl.conn.SendAndFlush(wire.CodeUpdate, nil, serviceTimeout)
}

// GetNodes issues a synchronous GET_NODES request/reply over the shared
// connection. recvMu (held for the whole request/reply exchange) and
// awaitReply's frame filtering together keep this from racing or being
// confused by the concurrent RecvStatus drain loop and the async
// heartbeat/update frames it's reading — see the Client doc comment.
func (cl *Client) GetNodes() ([]NodeView, error) {
	cl.recvMu.Lock()
	defer cl.recvMu.Unlock()

	if err := cl.conn.SendAndFlush(wire.CodeGetNodes, nil, serviceTimeout); err != nil {
		return nil, fmt.Errorf("coordinator: get_nodes request: %w", err)
	}
	msg, err := cl.awaitReply(wire.CodeGetNodes, serviceTimeout)
	if err != nil {
		return nil, fmt.Errorf("coordinator: get_nodes reply: %w", err)
	}
	reply, err := wire.DecodeNodesReply(msg.Payload)
	if err != nil {
		return nil, fmt.Errorf("coordinator: decode get_nodes reply: %w", err)
	}
	if reply.OK == 0 {
		return nil, fmt.Errorf("coordinator: %s", reply.Body)
	}
	var nodes []NodeView
	if err := json.Unmarshal([]byte(reply.Body), &nodes); err != nil {
		return nil, fmt.Errorf("coordinator: unmarshal get_nodes reply: %w", err)
	}
	return nodes, nil
}

// RemoveNode issues a synchronous REMOVE_NODE request/reply. See GetNodes
// for why recvMu and awaitReply are needed here too.
func (cl *Client) RemoveNode(index int) error {
	cl.recvMu.Lock()
	defer cl.recvMu.Unlock()

	req := wire.EncodeRemoveNode(wire.RemoveNodePayload{Index: int32(index)})
	if err := cl.conn.SendAndFlush(wire.CodeRemoveNode, req, serviceTimeout); err != nil {
		return fmt.Errorf("coordinator: remove_node request: %w", err)
	}
	msg, err := cl.awaitReply(wire.CodeRemoveNode, serviceTimeout)
	if err != nil {
		return fmt.Errorf("coordinator: remove_node reply: %w", err)
	}
	reply, err := wire.DecodeErrorReply(msg.Payload)
	if err != nil {
		return fmt.Errorf("coordinator: decode remove_node reply: %w", err)
	}
	if reply.Error != "" {
		return fmt.Errorf("coordinator: %s", reply.Error)
	}
	return nil
}

// SetFailoverDelay issues a synchronous SET_FAILOVER_DELAY request/reply.
// See GetNodes for why recvMu and awaitReply are needed here too.
func (cl *Client) SetFailoverDelay(delay int) error {
	cl.recvMu.Lock()
	defer cl.recvMu.Unlock()

	req := wire.EncodeSetFailoverDelay(wire.SetFailoverDelayPayload{Delay: int32(delay)})
	if err := cl.conn.SendAndFlush(wire.CodeSetFailoverDelay, req, serviceTimeout); err != nil {
		return fmt.Errorf("coordinator: set_failover_delay request: %w", err)
	}
	msg, err := cl.awaitReply(wire.CodeSetFailoverDelay, serviceTimeout)
	if err != nil {
		return fmt.Errorf("coordinator: set_failover_delay reply: %w", err)
	}
	reply, err := wire.DecodeErrorReply(msg.Payload)
	if err != nil {
		return fmt.Errorf("coordinator: decode set_failover_delay reply: %w", err)
	}
	if reply.Error != "" {
		return fmt.Errorf("coordinator: %s", reply.Error)
	}
	return nil
}

// Pause sends PAUSE; the coordinator transitions after its current
// transaction.
func (cl *Client) Pause() error {
	return cl.conn.SendAndFlush(wire.CodePause, nil, serviceTimeout)
}

// Stop sends PAUSE followed by STOP and waits for the child to exit.
func (cl *Client) Stop() error {
	if err := cl.conn.SendAndFlush(wire.CodePause, nil, serviceTimeout); err != nil {
		return err
	}
	if err := cl.conn.SendAndFlush(wire.CodeStop, nil, serviceTimeout); err != nil {
		return err
	}
	_ = cl.conn.Close()
	return cl.proc.Wait()
}

// Kill forcibly terminates the child and closes the channel; used only
// on startup failure or abort.
func (cl *Client) Kill() {
	if cl.conn != nil {
		_ = cl.conn.Close()
	}
	if cl.proc != nil {
		_ = cl.proc.Kill()
	}
}

// ChangeLogLevel sends LOGLEVEL_INCREASE or LOGLEVEL_DECREASE depending
// on direction (positive increases, negative decreases).
func (cl *Client) ChangeLogLevel(direction int) error {
	code := wire.CodeLoglevelIncrease
	if direction < 0 {
		code = wire.CodeLoglevelDecrease
	}
	return cl.conn.SendAndFlush(code, nil, serviceTimeout)
}
