package client

import "fmt"

// state is the connection's position in the Initial -> Connecting ->
// Connected -> Closed machine. A user-initiated disconnect is not tracked
// as a distinct state: it is implied by userDisconnected being set while
// state is still Connected, and collapses into Closed once the outbound
// queue (carrying the DISCONNECT frame) finishes draining.
type state int32

const (
	stateInitial state = iota
	stateConnecting
	stateConnected
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateInitial:
		return "initial"
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TransportError wraps a socket failure or a lost connection. The
// connection moves to Closed and the listener's Disconnected callback
// fires.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport error: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// ShutdownFault reports that closing the socket or cancelling its
// registration failed during an orderly disconnect: logged, and the
// process continues.
type ShutdownFault struct {
	Err error
}

func (e *ShutdownFault) Error() string { return fmt.Sprintf("fatal disconnect: %v", e.Err) }
func (e *ShutdownFault) Unwrap() error { return e.Err }
