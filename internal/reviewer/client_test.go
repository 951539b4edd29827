package reviewer

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

func TestClientQuery(t *testing.T) {
	paths := testPaths(t)

	listener, err := net.Listen("unix", paths.Socket)
	if err != nil {
		t.Fatalf("failed to create test socket: %v", err)
	}
	defer listener.Close()

	got := make(chan Request, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		var req Request
		json.NewDecoder(conn).Decode(&req)
		got <- req
		json.NewEncoder(conn).Encode(Response{Decision: DecisionAllow, Reason: "mock says safe"})
	}()

	c := &Client{SocketPath: paths.Socket}
	resp, err := c.Query(context.Background(), Request{ID: "id-1", Command: "make", WorkDir: "/proj"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if resp.Decision != DecisionAllow {
		t.Errorf("expected ALLOW, got %s", resp.Decision)
	}
	if resp.Reason != "mock says safe" {
		t.Errorf("expected 'mock says safe', got %q", resp.Reason)
	}
	if req := <-got; req.ID != "id-1" || req.Command != "make" {
		t.Errorf("daemon got %+v", req)
	}
}

func TestClientQueryNoSocket(t *testing.T) {
	c := &Client{SocketPath: testPaths(t).Socket}

	if _, err := c.Query(context.Background(), Request{Command: "ls"}); err == nil {
		t.Error("expected error when no daemon is running")
	}
}

func TestClientQueryBadResponse(t *testing.T) {
	paths := testPaths(t)

	listener, err := net.Listen("unix", paths.Socket)
	if err != nil {
		t.Fatalf("failed to create test socket: %v", err)
	}
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 1024)
		conn.Read(buf)
		conn.Write([]byte("not json\n"))
	}()

	c := &Client{SocketPath: paths.Socket}
	if _, err := c.Query(context.Background(), Request{Command: "ls"}); err == nil {
		t.Error("expected error for bad response")
	}
}

func TestClientAutoStart(t *testing.T) {
	paths := testPaths(t)
	mock := &mockEvaluator{response: Response{Decision: DecisionAllow, Reason: "started"}}

	var starts atomic.Int32
	var d *Daemon
	c := &Client{
		SocketPath: paths.Socket,
		Start: func() error {
			starts.Add(1)
			d = NewDaemon(mock, DaemonConfig{IdleTimeout: 5 * time.Second, SocketPath: paths.Socket, PIDPath: paths.PID})
			go d.Run(context.Background())
			return nil
		},
	}

	resp, err := c.Query(context.Background(), Request{Command: "make"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	defer d.Shutdown()

	if resp.Reason != "started" {
		t.Errorf("got %+v", resp)
	}
	if starts.Load() != 1 {
		t.Errorf("Start called %d times, want 1", starts.Load())
	}
}

func TestClientStartFails(t *testing.T) {
	boom := errors.New("boom")
	c := &Client{SocketPath: testPaths(t).Socket, Start: func() error { return boom }}

	if _, err := c.Query(context.Background(), Request{Command: "make"}); !errors.Is(err, boom) {
		t.Errorf("Query() error = %v, want the start error", err)
	}
}

func TestClientGivesUpOnContext(t *testing.T) {
	c := &Client{SocketPath: testPaths(t).Socket, Start: func() error { return nil }}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := c.Query(ctx, Request{Command: "make"}); err == nil {
		t.Fatal("expected an error when the daemon never comes up")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Query took %v after its context expired", elapsed)
	}
}
