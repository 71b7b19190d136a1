package wire

import "fmt"

// ProtocolError reports a malformed frame, an unparsable length header, an
// unknown message kind, or a body that cannot be safely framed. Callers
// close the offending connection on receipt.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

// ErrBodyContainsDelimiter is returned by Encode when body contains the
// length delimiter "##" or the type delimiter "$$"; the wire format has no
// escape scheme for either, so such bodies are rejected rather than risking
// splitter desynchronization.
var ErrBodyContainsDelimiter = &ProtocolError{Reason: "body contains a reserved delimiter (## or $$)"}

// ErrBodyNotASCII is returned by Encode when body contains a non-ASCII or
// control byte. Frame length is counted in bytes, so restricting bodies to
// printable ASCII keeps that count unambiguous across encodings.
var ErrBodyNotASCII = &ProtocolError{Reason: "body contains a non-ASCII or control character"}
