// Package replcli is a thin command-line shell around
// internal/client.Connection: it parses stdin lines into the client's
// embedding surface and prints received broadcasts.
package replcli

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/relaychat/reactorchat/internal/client"
)

// Interpreter reads chat commands from an input stream and drives a
// client.Connection. It implements client.Listener to print what it
// receives.
type Interpreter struct {
	conn   *client.Connection
	in     io.Reader
	out    io.Writer
	logger *slog.Logger

	startOnce sync.Once
}

// New returns an Interpreter reading commands from in and writing output
// to out.
func New(conn *client.Connection, in io.Reader, out io.Writer, logger *slog.Logger) *Interpreter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{conn: conn, in: in, out: out, logger: logger}
}

// Start begins the read-eval-print loop. Calling Start more than once has
// the effect of a single call: only the first invocation runs the loop.
func (i *Interpreter) Start() {
	i.startOnce.Do(i.run)
}

func (i *Interpreter) run() {
	scanner := bufio.NewScanner(i.in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "/user "):
			name := strings.TrimPrefix(line, "/user ")
			if err := i.conn.SendUsername(name); err != nil {
				fmt.Fprintln(i.out, "could not send username:", err)
			}
		case line == "/quit":
			if err := i.conn.Disconnect(); err != nil {
				fmt.Fprintln(i.out, "could not disconnect:", err)
			}
			return
		default:
			if err := i.conn.SendChatEntry(line); err != nil {
				fmt.Fprintln(i.out, "could not send:", err)
			}
		}
	}
}

// Connected implements client.Listener.
func (i *Interpreter) Connected(addr string) {
	fmt.Fprintln(i.out, "connected to", addr)
}

// Disconnected implements client.Listener.
func (i *Interpreter) Disconnected() {
	fmt.Fprintln(i.out, "disconnected")
}

// RecvdMsg implements client.Listener.
func (i *Interpreter) RecvdMsg(body string) {
	fmt.Fprintln(i.out, body)
}
