package client

import (
	"errors"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/relaychat/reactorchat/internal/queue"
	"github.com/relaychat/reactorchat/internal/reactor"
	"github.com/relaychat/reactorchat/internal/wire"
	"github.com/relaychat/reactorchat/internal/workerpool"
)

// Connection manages all communication with the server; every operation on
// the wire is non-blocking. All connection state (splitter, outbound
// queue) is confined to the connection's own reactor goroutine, started by
// Connect. SendUsername, SendChatEntry, and Disconnect are the only
// methods safe to call from other goroutines.
type Connection struct {
	logger *slog.Logger

	pool     *workerpool.Pool
	ownsPool bool
	strand   *workerpool.Strand

	fd      int
	reactor *reactor.Reactor

	splitter *wire.Splitter
	outbound queue.Outbound

	listenersMu sync.Mutex
	listeners   []Listener

	sendMu             sync.Mutex
	pendingSubmissions [][]byte
	pendingSend        int32

	state            int32
	userDisconnected int32
	closeOnce        sync.Once
}

// New returns a Connection ready to Connect. If pool is nil, the
// connection creates and owns its own worker pool for listener dispatch.
func New(logger *slog.Logger, pool *workerpool.Pool) *Connection {
	if logger == nil {
		logger = slog.Default()
	}
	ownsPool := pool == nil
	if ownsPool {
		pool = workerpool.New(workerpool.DefaultWorkers, logger)
	}
	c := &Connection{
		logger:   logger,
		pool:     pool,
		ownsPool: ownsPool,
		splitter: wire.NewSplitter(),
		state:    int32(stateInitial),
	}
	c.strand = workerpool.NewStrand(pool)
	return c
}

// AddCommunicationListener registers listener to be notified of this
// connection's lifecycle and incoming messages.
func (c *Connection) AddCommunicationListener(l Listener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Connect allocates a non-blocking socket, starts an asynchronous
// connect(2) to host:port, and spawns the I/O goroutine that owns this
// connection's reactor for the rest of its lifetime.
func (c *Connection) Connect(host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	fd, _, err := reactor.Connect(addr)
	if err != nil {
		return err
	}
	c.fd = fd
	atomic.StoreInt32(&c.state, int32(stateConnecting))

	r, err := reactor.New()
	if err != nil {
		unix.Close(fd)
		return err
	}
	c.reactor = r

	if err := r.Register(c, reactor.Write); err != nil {
		unix.Close(fd)
		r.Close()
		return err
	}

	go func() {
		if err := r.Run(c.onTick); err != nil {
			c.logger.Error("client reactor stopped", "error", err)
		}
	}()
	return nil
}

// FD implements reactor.Handler.
func (c *Connection) FD() int { return c.fd }

// onTick drains cross-goroutine send submissions into the outbound queue
// before every epoll_wait.
func (c *Connection) onTick() {
	if atomic.SwapInt32(&c.pendingSend, 0) == 0 {
		return
	}
	c.sendMu.Lock()
	pending := c.pendingSubmissions
	c.pendingSubmissions = nil
	c.sendMu.Unlock()
	if len(pending) == 0 {
		return
	}
	for _, frame := range pending {
		c.outbound.Enqueue(frame)
	}
	if atomic.LoadInt32(&c.state) == int32(stateConnected) {
		if err := c.reactor.Modify(c.fd, reactor.Write); err != nil {
			c.logger.Error("failed to flip to write interest", "error", err)
		}
	}
}

// OnReadable implements reactor.Handler. While Connecting, the socket
// becomes readable only after becoming writable first (connect completion
// is signalled by writability), so this path only ever runs once Connected.
func (c *Connection) OnReadable() error {
	var scratch [wire.MaxMsgLength]byte
	n, err := unix.Read(c.fd, scratch[:])
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil
		}
		return c.fail(&TransportError{Err: err})
	}
	if n == 0 {
		return c.fail(&TransportError{Err: errors.New("server closed connection")})
	}
	if err := c.splitter.Append(scratch[:n]); err != nil {
		return c.fail(err)
	}
	for c.splitter.HasNext() {
		payload, _ := c.splitter.Next()
		msg, err := wire.Parse(payload)
		if err != nil {
			return c.fail(err)
		}
		if msg.Kind != wire.KindBroadcast {
			return c.fail(&wire.ProtocolError{Reason: "server sent a non-BROADCAST kind: " + msg.Kind.String()})
		}
		c.dispatchRecvdMsg(msg.Body)
	}
	return nil
}

// OnWritable implements reactor.Handler: it either finishes an in-flight
// connect(2) or drains the outbound queue, depending on connection state.
func (c *Connection) OnWritable() error {
	if atomic.LoadInt32(&c.state) == int32(stateConnecting) {
		return c.completeConnect()
	}
	return c.drainOutbound()
}

func (c *Connection) completeConnect() error {
	if err := reactor.FinishConnect(c.fd); err != nil {
		return c.fail(&TransportError{Err: err})
	}
	atomic.StoreInt32(&c.state, int32(stateConnected))

	interest := reactor.Read
	if !c.outbound.Empty() {
		interest = reactor.Write
	}
	if err := c.reactor.Modify(c.fd, interest); err != nil {
		c.logger.Error("failed to set post-connect interest", "error", err)
	}

	c.dispatchConnected(reactor.RemoteAddr(c.fd))
	return nil
}

func (c *Connection) drainOutbound() error {
	drained, err := c.outbound.Drain(c.fd)
	if err != nil {
		return c.fail(&TransportError{Err: err})
	}
	if !drained {
		return nil
	}
	if atomic.LoadInt32(&c.userDisconnected) != 0 {
		c.shutdown(nil)
		return nil
	}
	if err := c.reactor.Modify(c.fd, reactor.Read); err != nil {
		c.logger.Error("failed to drop to read interest", "error", err)
	}
	return nil
}

// SendUsername sends the user's username to the server; it will be
// prepended to all messages originating from this client until a new
// username is sent.
func (c *Connection) SendUsername(name string) error {
	return c.enqueue(wire.KindUser, name)
}

// SendChatEntry sends a chat entry, which the server broadcasts to all
// connected clients, including this one.
func (c *Connection) SendChatEntry(text string) error {
	return c.enqueue(wire.KindEntry, text)
}

// Disconnect tells the server this client is leaving, then closes the
// connection once the outbound queue (carrying that DISCONNECT frame) has
// fully drained.
func (c *Connection) Disconnect() error {
	atomic.StoreInt32(&c.userDisconnected, 1)
	return c.enqueue(wire.KindDisconnect, "")
}

func (c *Connection) enqueue(kind wire.Kind, body string) error {
	frame, err := wire.Encode(kind, body)
	if err != nil {
		return err
	}
	c.sendMu.Lock()
	c.pendingSubmissions = append(c.pendingSubmissions, frame)
	c.sendMu.Unlock()
	atomic.StoreInt32(&c.pendingSend, 1)
	if c.reactor != nil {
		c.reactor.Wake()
	}
	return nil
}

// fail transitions the connection to Closed on a fatal I/O or protocol
// error and returns it, so the caller (a Handler method) can propagate it
// to the reactor's dispatch loop.
func (c *Connection) fail(err error) error {
	c.shutdown(err)
	return err
}

// shutdown performs the orderly-close sequence exactly once, regardless of
// whether it was triggered by a fatal error, a peer close, or the user
// calling Disconnect.
func (c *Connection) shutdown(reason error) {
	c.closeOnce.Do(func() {
		atomic.StoreInt32(&c.state, int32(stateClosed))
		if c.reactor != nil {
			c.reactor.Remove(c.fd)
		}
		if err := unix.Close(c.fd); err != nil {
			c.logger.Error("shutdown fault closing socket", "error", &ShutdownFault{Err: err})
		}
		if reason != nil {
			c.logger.Warn("connection closed", "error", reason)
		}
		c.dispatchDisconnected()
		if c.reactor != nil {
			c.reactor.Close()
		}
		if c.ownsPool {
			c.pool.Close()
		}
	})
}

func (c *Connection) snapshotListeners() []Listener {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	out := make([]Listener, len(c.listeners))
	copy(out, c.listeners)
	return out
}

func (c *Connection) dispatchConnected(addr string) {
	for _, l := range c.snapshotListeners() {
		l := l
		c.strand.Submit(func() { l.Connected(addr) })
	}
}

func (c *Connection) dispatchRecvdMsg(body string) {
	for _, l := range c.snapshotListeners() {
		l := l
		c.strand.Submit(func() { l.RecvdMsg(body) })
	}
}

func (c *Connection) dispatchDisconnected() {
	for _, l := range c.snapshotListeners() {
		l := l
		c.strand.Submit(func() { l.Disconnected() })
	}
}
