package dummy

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"remote_imaging/internal/logger"
)

func startServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	srv := NewServer(cfg, logger.Get(logger.ErrorLevel))
	if err := srv.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("start: %v", err)
	}
	return srv
}

// stopWithin fails the test if Stop blocks past the deadline.
func stopWithin(t *testing.T, srv *Server, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		srv.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("Stop did not return within %v", d)
	}
}

func sendFramed(t *testing.T, conn net.Conn, payload string) string {
	t.Helper()
	if _, err := fmt.Fprintf(conn, "%d\n%s", len(payload), payload); err != nil {
		t.Fatalf("write request: %v", err)
	}
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	return strings.TrimRight(line, "\r\n")
}

func TestServer_Stop_ClosesIdleConnections(t *testing.T) {
	srv := startServer(t, Config{ErrorRate: 0, Seed: 1})

	// An idle client holds its connection open without sending anything.
	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	stopWithin(t, srv, 3*time.Second)

	// The server side closed the connection; the client sees EOF.
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := bufio.NewReader(conn).ReadString('\n'); err == nil {
		t.Fatalf("expected closed connection after Stop")
	}
}

func TestServer_Stop_AfterServedRequest(t *testing.T) {
	srv := startServer(t, Config{ErrorRate: 0, Seed: 1})
	srv.Script("0 plantA ImageSet_x")

	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if reply := sendFramed(t, conn, "required:\n  plant-id: plantA\n"); reply != "0 plantA ImageSet_x" {
		t.Fatalf("reply = %q", reply)
	}

	// The connection stays open between exchanges; Stop must still return.
	stopWithin(t, srv, 3*time.Second)
}

func TestServer_Stop_WithoutConnections(t *testing.T) {
	srv := startServer(t, Config{Seed: 1})
	stopWithin(t, srv, 3*time.Second)
}
