// Package server implements the broadcast chat server's reactor-driven
// application logic: accepting connections, decoding USER/ENTRY/DISCONNECT
// frames, and fanning broadcasts out to every live connection.
package server

import (
	"github.com/relaychat/reactorchat/internal/queue"
	"github.com/relaychat/reactorchat/internal/wire"
)

// defaultUsername is used until a connection's first USER message arrives.
const defaultUsername = "anonymous"

// MaxOutboundBytes bounds a connection's outbound queue. A client that
// never reads eventually exceeds this watermark and is disconnected,
// rather than being allowed to grow its queue without bound.
const MaxOutboundBytes = 1 << 20

// connection is the server's per-client connection record. It is
// exclusively owned by the reactor goroutine.
type connection struct {
	fd         int
	remoteAddr string
	username   string
	splitter   *wire.Splitter
	outbound   queue.Outbound
}

func newConnection(fd int, remoteAddr string) *connection {
	return &connection{
		fd:         fd,
		remoteAddr: remoteAddr,
		username:   defaultUsername,
		splitter:   wire.NewSplitter(),
	}
}
