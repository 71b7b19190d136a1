package server

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/relaychat/reactorchat/internal/metrics"
	"github.com/relaychat/reactorchat/internal/reactor"
	"github.com/relaychat/reactorchat/internal/wire"
)

func closeFD(fd int) error {
	return unix.Close(fd)
}

// listenerHandler adapts the listening socket to reactor.Handler: it is
// only ever Read-ready (a pending connection to accept) and never
// registered for Write.
type listenerHandler struct {
	srv *Server
}

func (h *listenerHandler) FD() int { return h.srv.listenFD }

func (h *listenerHandler) OnReadable() error {
	for {
		fd, remoteAddr, err := reactor.Accept(h.srv.listenFD)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return nil
			}
			h.srv.logger.Error("accept failed", "error", err)
			return nil
		}
		h.srv.acceptConnection(fd, remoteAddr)
	}
}

func (h *listenerHandler) OnWritable() error { return nil }

// acceptConnection registers the new client with Write interest so the
// conversation-history replay flushes before it idles to Read.
func (s *Server) acceptConnection(fd int, remoteAddr string) {
	conn := newConnection(fd, remoteAddr)
	for _, entry := range s.history.Snapshot() {
		frame, err := wire.Encode(wire.KindBroadcast, entry)
		if err != nil {
			continue
		}
		conn.outbound.Enqueue(frame)
	}

	handler := &connHandler{srv: s, conn: conn}
	if err := s.reactor.Register(handler, reactor.Write); err != nil {
		s.logger.Error("failed to register new connection", "addr", remoteAddr, "error", err)
		closeFD(fd)
		return
	}
	s.connections[fd] = conn
	metrics.ConnectedClients.Set(float64(len(s.connections)))
	s.logger.Info("client connected", "addr", remoteAddr)
}

// connHandler adapts one client connection to reactor.Handler.
type connHandler struct {
	srv  *Server
	conn *connection
}

func (h *connHandler) FD() int { return h.conn.fd }

// OnReadable does a non-blocking read into a fixed scratch buffer, feeds
// the connection's splitter, and dispatches every complete payload.
func (h *connHandler) OnReadable() error {
	var scratch [wire.MaxMsgLength]byte
	n, err := unix.Read(h.conn.fd, scratch[:])
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil
		}
		h.srv.logger.Warn("read failed, removing client", "addr", h.conn.remoteAddr, "error", err)
		h.srv.removeConnection(h.conn.fd)
		return &TransportError{RemoteAddr: h.conn.remoteAddr, Err: err}
	}
	if n == 0 {
		h.srv.logger.Info("client closed connection", "addr", h.conn.remoteAddr)
		h.srv.removeConnection(h.conn.fd)
		return &TransportError{RemoteAddr: h.conn.remoteAddr, Err: errors.New("EOF")}
	}

	if err := h.conn.splitter.Append(scratch[:n]); err != nil {
		h.srv.logger.Warn("protocol violation, closing connection", "addr", h.conn.remoteAddr, "error", err)
		h.srv.removeConnection(h.conn.fd)
		return err
	}

	for h.conn.splitter.HasNext() {
		payload, _ := h.conn.splitter.Next()
		if err := h.dispatch(payload); err != nil {
			h.srv.logger.Warn("protocol violation, closing connection", "addr", h.conn.remoteAddr, "error", err)
			h.srv.removeConnection(h.conn.fd)
			return err
		}
	}
	return nil
}

// dispatch applies one decoded message to server state.
func (h *connHandler) dispatch(payload string) error {
	msg, err := wire.Parse(payload)
	if err != nil {
		return err
	}
	metrics.FramesTotal.WithLabelValues(msg.Kind.String()).Inc()

	switch msg.Kind {
	case wire.KindUser:
		h.conn.username = msg.Body
		h.srv.Broadcast(h.conn.username + " joined conversation.")
	case wire.KindEntry:
		h.srv.Broadcast(h.conn.username + ": " + msg.Body)
	case wire.KindDisconnect:
		username := h.conn.username
		h.srv.removeConnection(h.conn.fd)
		h.srv.Broadcast(username + " left conversation.")
	default:
		return &wire.ProtocolError{Reason: "unexpected message kind from client: " + msg.Kind.String()}
	}
	return nil
}

// OnWritable drains as much of the outbound queue as the socket accepts;
// it drops back to Read interest once the queue empties.
func (h *connHandler) OnWritable() error {
	drained, err := h.conn.outbound.Drain(h.conn.fd)
	if err != nil {
		h.srv.logger.Warn("write failed, removing client", "addr", h.conn.remoteAddr, "error", err)
		h.srv.removeConnection(h.conn.fd)
		return &TransportError{RemoteAddr: h.conn.remoteAddr, Err: err}
	}
	if drained {
		if err := h.srv.reactor.Modify(h.conn.fd, reactor.Read); err != nil {
			h.srv.logger.Error("failed to drop to read interest", "addr", h.conn.remoteAddr, "error", err)
		}
	}
	return nil
}
