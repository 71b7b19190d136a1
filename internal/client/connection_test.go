package client

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/relaychat/reactorchat/internal/server"
	"github.com/relaychat/reactorchat/internal/wire"
)

type recordingListener struct {
	mu        sync.Mutex
	connected []string
	messages  []string
	done      chan struct{}
}

func newRecordingListener() *recordingListener {
	return &recordingListener{done: make(chan struct{})}
}

func (l *recordingListener) Connected(addr string) {
	l.mu.Lock()
	l.connected = append(l.connected, addr)
	l.mu.Unlock()
}

func (l *recordingListener) RecvdMsg(body string) {
	l.mu.Lock()
	l.messages = append(l.messages, body)
	l.mu.Unlock()
}

func (l *recordingListener) Disconnected() {
	close(l.done)
}

func (l *recordingListener) messageCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

func startServer(t *testing.T) (host string, port int) {
	t.Helper()
	s := server.New("127.0.0.1:0", nil)
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run() }()
	select {
	case <-s.Ready():
	case err := <-errCh:
		t.Fatalf("server exited before ready: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for server readiness")
	}
	t.Cleanup(s.Stop)

	h, p, err := net.SplitHostPort(s.Addr())
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	portNum := 0
	for _, c := range p {
		portNum = portNum*10 + int(c-'0')
	}
	return h, portNum
}

func TestConnection_ConnectAndReceiveBroadcast(t *testing.T) {
	host, port := startServer(t)

	c := New(nil, nil)
	l := newRecordingListener()
	c.AddCommunicationListener(l)

	if err := c.Connect(host, port); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.SendUsername("ann"); err != nil {
		t.Fatalf("SendUsername: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for l.messageCount() == 0 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for the join broadcast")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	l.mu.Lock()
	got := l.messages[0]
	l.mu.Unlock()
	if got != "ann joined conversation." {
		t.Fatalf("got %q", got)
	}
}

func TestConnection_DisconnectDrainsThenCloses(t *testing.T) {
	host, port := startServer(t)

	c := New(nil, nil)
	l := newRecordingListener()
	c.AddCommunicationListener(l)

	if err := c.Connect(host, port); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.SendUsername("ann"); err != nil {
		t.Fatalf("SendUsername: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	select {
	case <-l.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for Disconnected callback")
	}
}

// fakeServer is a minimal raw TCP listener used to exercise the client's
// protocol-violation path: a real chat server never sends a non-BROADCAST
// frame to a client, so this stands in for a misbehaving peer.
func fakeServer(t *testing.T) (addr string, conns chan net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	conns = make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conns <- conn
	}()
	return ln.Addr().String(), conns
}

func TestConnection_NonBroadcastKindIsProtocolViolation(t *testing.T) {
	addr, conns := fakeServer(t)
	host, portStr, _ := net.SplitHostPort(addr)
	port := 0
	for _, ch := range portStr {
		port = port*10 + int(ch-'0')
	}

	c := New(nil, nil)
	l := newRecordingListener()
	c.AddCommunicationListener(l)
	if err := c.Connect(host, port); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	var serverConn net.Conn
	select {
	case serverConn = <-conns:
	case <-time.After(2 * time.Second):
		t.Fatalf("fake server never accepted a connection")
	}

	frame, err := wire.Encode(wire.KindUser, "not-a-broadcast")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := serverConn.Write(frame); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-l.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected the client to disconnect on a protocol violation")
	}
}
