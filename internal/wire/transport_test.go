// SPDX-License-Identifier: MIT
package wire

import (
	"path/filepath"
	"testing"
	"time"
)

func TestConnSendAndFlushRoundTrip(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "ha-coordinator.sock")

	ln, err := Listen(sock)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	serverConn := make(chan *Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			t.Errorf("Accept: %v", err)
			return
		}
		serverConn <- conn
	}()

	client, err := Dial(sock)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	server := <-serverConn
	defer server.Close()

	payload := EncodeUpdate(UpdatePayload{Status: 3, FailoverDelay: 60})
	if err := client.SendAndFlush(CodeUpdate, payload, time.Second); err != nil {
		t.Fatalf("SendAndFlush: %v", err)
	}

	msg, err := server.Recv(time.Second)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if msg.Code != CodeUpdate {
		t.Fatalf("expected CodeUpdate, got %s", msg.Code)
	}
	got, err := DecodeUpdate(msg.Payload)
	if err != nil {
		t.Fatalf("DecodeUpdate: %v", err)
	}
	if got.Status != 3 || got.FailoverDelay != 60 {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestConnQueuesMultipleSendsUntilFlush(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "ha-coordinator.sock")

	ln, err := Listen(sock)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	serverConn := make(chan *Conn, 1)
	go func() {
		conn, _ := ln.Accept()
		serverConn <- conn
	}()

	client, err := Dial(sock)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()
	server := <-serverConn
	defer server.Close()

	if err := client.Send(CodeHeartbeat, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := client.Send(CodePause, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := client.Flush(time.Second); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	first, err := server.Recv(time.Second)
	if err != nil || first.Code != CodeHeartbeat {
		t.Fatalf("expected CodeHeartbeat, got %+v err=%v", first, err)
	}
	second, err := server.Recv(time.Second)
	if err != nil || second.Code != CodePause {
		t.Fatalf("expected CodePause, got %+v err=%v", second, err)
	}
}

func TestRecvTimesOutWithoutAMessage(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "ha-coordinator.sock")

	ln, err := Listen(sock)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	serverConn := make(chan *Conn, 1)
	go func() {
		conn, _ := ln.Accept()
		serverConn <- conn
	}()

	client, err := Dial(sock)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()
	server := <-serverConn
	defer server.Close()

	if _, err := client.Recv(50 * time.Millisecond); err == nil {
		t.Fatal("expected a timeout error when nothing was sent")
	}
}
