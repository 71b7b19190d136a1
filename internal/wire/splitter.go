package wire

import (
	"strconv"
	"strings"
	"sync"
)

// Splitter reassembles a byte stream into complete payloads, buffering at
// most one incomplete frame between calls to Append. Safe for concurrent
// use; the reactor confines each connection's Splitter to its own goroutine,
// but the lock is kept so the type is safe to share if that ever changes.
type Splitter struct {
	mu       sync.Mutex
	pending  strings.Builder
	messages []string
}

// NewSplitter returns an empty Splitter.
func NewSplitter() *Splitter {
	return &Splitter{}
}

// Append feeds newly received bytes into the reassembly buffer and extracts
// every complete payload it can. Returns a ProtocolError if the buffered
// header is malformed or exceeds MaxHeaderLength; the caller should close
// the connection on error.
func (s *Splitter) Append(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending.Write(chunk)
	for {
		extracted, err := s.extractLocked()
		if err != nil {
			return err
		}
		if !extracted {
			return nil
		}
	}
}

// HasNext reports whether at least one decoded payload is waiting.
func (s *Splitter) HasNext() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages) > 0
}

// Next pops the oldest decoded payload, or returns "", false if none is
// available.
func (s *Splitter) Next() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return "", false
	}
	msg := s.messages[0]
	s.messages = s.messages[1:]
	return msg, true
}

// extractLocked pulls at most one complete frame out of the accumulator.
// Caller must hold s.mu.
func (s *Splitter) extractLocked() (bool, error) {
	buffered := s.pending.String()
	headerEnd := strings.Index(buffered, LengthDelimiter)
	if headerEnd < 0 {
		return false, nil
	}

	header := buffered[:headerEnd]
	rest := buffered[headerEnd+len(LengthDelimiter):]

	length, err := strconv.Atoi(header)
	if err != nil || length < 0 {
		return false, &ProtocolError{Reason: "non-numeric or negative length header: " + strconv.Quote(header)}
	}
	if length > MaxHeaderLength {
		return false, &ProtocolError{Reason: "declared length exceeds safety cap"}
	}
	if len(rest) < length {
		return false, nil
	}

	payload := rest[:length]
	s.messages = append(s.messages, payload)

	remainder := rest[length:]
	s.pending.Reset()
	s.pending.WriteString(remainder)
	return true, nil
}
