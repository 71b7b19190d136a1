package server

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relaychat/reactorchat/internal/history"
	"github.com/relaychat/reactorchat/internal/metrics"
	"github.com/relaychat/reactorchat/internal/reactor"
	"github.com/relaychat/reactorchat/internal/wire"
)

// TransportError wraps a socket read/write failure or a lost connection.
// It is contained at the connection: the offending connection is removed
// and the reactor keeps running.
type TransportError struct {
	RemoteAddr string
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error (%s): %v", e.RemoteAddr, e.Err)
}
func (e *TransportError) Unwrap() error { return e.Err }

// ShutdownFault reports that closing a socket or cancelling its
// registration failed during an orderly disconnect. It is logged and the
// process continues.
type ShutdownFault struct {
	RemoteAddr string
	Err        error
}

func (e *ShutdownFault) Error() string {
	return fmt.Sprintf("fatal disconnect (%s): %v", e.RemoteAddr, e.Err)
}
func (e *ShutdownFault) Unwrap() error { return e.Err }

// Server accepts chat clients, decodes their frames, and broadcasts entries
// to every connected client. All connection state is confined to the
// reactor goroutine started by Run; Broadcast and Stop are the only methods
// safe to call from other goroutines.
type Server struct {
	addr   string
	logger *slog.Logger

	history *history.Store

	reactor  *reactor.Reactor
	listenFD int

	connections map[int]*connection

	broadcastMu    sync.Mutex
	broadcastQueue []string
	pendingBcast   int32

	ready chan struct{}
}

// New constructs a Server bound to addr (host:port). Nothing is bound or
// listened on until Run is called.
func New(addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:        addr,
		logger:      logger,
		history:     history.NewStore(history.DefaultCapacity),
		connections: make(map[int]*connection),
		ready:       make(chan struct{}),
	}
}

// Ready is closed once the listening socket is bound and registered with
// the reactor, so callers (tests, or a supervisor waiting to announce
// readiness) can synchronize on Run actually accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the address the server is bound to, including the port
// actually assigned when addr was given with port 0. Only meaningful after
// Ready is closed.
func (s *Server) Addr() string {
	return s.addr
}

// Run binds the listening socket, starts the reactor, and blocks until the
// reactor stops (via Stop or a fatal epoll failure).
func (s *Server) Run() error {
	r, err := reactor.New()
	if err != nil {
		return fmt.Errorf("create reactor: %w", err)
	}
	s.reactor = r

	listenFD, err := reactor.Listen(s.addr)
	if err != nil {
		r.Close()
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listenFD = listenFD
	if resolved := reactor.LocalAddr(listenFD); resolved != "" {
		s.addr = resolved
	}

	if err := r.Register(&listenerHandler{srv: s}, reactor.Read); err != nil {
		r.Close()
		return fmt.Errorf("register listener: %w", err)
	}

	s.logger.Info("chat server listening", "addr", s.addr)
	close(s.ready)
	return r.Run(s.drainBroadcastQueue)
}

// Stop halts the reactor loop; Run then returns. Safe to call from any
// goroutine.
func (s *Server) Stop() {
	if s.reactor != nil {
		s.reactor.Close()
	}
}

// Broadcast schedules msg for delivery to every currently connected client.
// Thread-safe: pushes onto a mutex-guarded queue, sets the pending flag, and
// wakes the reactor. The reactor goroutine records msg in the conversation
// history when it drains the queue (see drainBroadcastQueue).
func (s *Server) Broadcast(msg string) {
	s.broadcastMu.Lock()
	s.broadcastQueue = append(s.broadcastQueue, msg)
	s.broadcastMu.Unlock()

	atomic.StoreInt32(&s.pendingBcast, 1)
	s.reactor.Wake()
}

// drainBroadcastQueue runs once per reactor iteration, before epoll_wait.
// Every message enqueued by a Broadcast call that set the pending flag is
// guaranteed to be drained here before the next wait, so the drain always
// happens-after every enqueue that raised it.
func (s *Server) drainBroadcastQueue() {
	if atomic.SwapInt32(&s.pendingBcast, 0) == 0 {
		return
	}

	s.broadcastMu.Lock()
	pending := s.broadcastQueue
	s.broadcastQueue = nil
	s.broadcastMu.Unlock()

	if len(pending) == 0 {
		return
	}

	start := time.Now()
	for _, msg := range pending {
		frame, err := wire.Encode(wire.KindBroadcast, msg)
		if err != nil {
			s.logger.Warn("dropping unencodable broadcast", "error", err)
			continue
		}
		s.history.Append(msg)
		for fd, conn := range s.connections {
			conn.outbound.Enqueue(frame)
			s.flipToWrite(fd, conn)
		}
	}
	metrics.BroadcastFanoutDuration.WithLabelValues().Observe(time.Since(start).Seconds())
}

func (s *Server) flipToWrite(fd int, conn *connection) {
	if conn.outbound.PendingBytes() > MaxOutboundBytes {
		s.logger.Warn("disconnecting slow client", "addr", conn.remoteAddr, "username", conn.username)
		metrics.SlowClientsDisconnected.Inc()
		s.removeConnection(fd)
		return
	}
	if err := s.reactor.Modify(fd, reactor.Write); err != nil {
		s.logger.Error("failed to flip connection to write interest", "addr", conn.remoteAddr, "error", err)
	}
}

func (s *Server) removeConnection(fd int) {
	conn, ok := s.connections[fd]
	if !ok {
		return
	}
	delete(s.connections, fd)
	s.reactor.Remove(fd)
	if err := closeFD(fd); err != nil {
		s.logger.Error("failed to close connection cleanly", "addr", conn.remoteAddr, "error", err)
	}
	metrics.ConnectedClients.Set(float64(len(s.connections)))
}
