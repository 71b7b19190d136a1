// Package queue implements the per-connection outbound frame queue with
// partial-write handling for non-blocking sockets.
package queue

import "golang.org/x/sys/unix"

// Outbound is a FIFO of fully-framed byte sequences. The head may be
// partially written to a socket; every other entry is untouched. Not safe
// for concurrent use — it is owned exclusively by the reactor goroutine
// that also owns the connection it belongs to. Cross-thread producers
// (Broadcast, SendChatEntry, ...) enqueue onto a separate mutex-guarded
// submission queue that the reactor drains into an Outbound on its own
// goroutine.
type Outbound struct {
	frames [][]byte
	cursor int // bytes of frames[0] already written
}

// Enqueue appends a fully-framed byte sequence to the tail of the queue.
func (o *Outbound) Enqueue(frame []byte) {
	o.frames = append(o.frames, frame)
}

// Empty reports whether the queue holds no frames.
func (o *Outbound) Empty() bool {
	return len(o.frames) == 0
}

// PendingBytes returns the total number of unwritten bytes currently
// queued, used to enforce the per-connection watermark.
func (o *Outbound) PendingBytes() int {
	total := -o.cursor
	for _, f := range o.frames {
		total += len(f)
	}
	if total < 0 {
		total = 0
	}
	return total
}

// Drain writes as much of the head frame as fd will accept, popping
// completed frames and continuing to the next, until either the queue is
// empty or the socket would block. It returns drained=true once the queue
// is fully flushed.
func (o *Outbound) Drain(fd int) (drained bool, err error) {
	for len(o.frames) > 0 {
		head := o.frames[0]
		n, werr := unix.Write(fd, head[o.cursor:])
		if n > 0 {
			o.cursor += n
		}
		if werr != nil {
			if werr == unix.EAGAIN || werr == unix.EWOULDBLOCK {
				return false, nil
			}
			if werr == unix.EINTR {
				continue
			}
			return false, werr
		}
		if o.cursor >= len(head) {
			o.frames = o.frames[1:]
			o.cursor = 0
			continue
		}
		// Short write with no error: socket buffer is full for now.
		return false, nil
	}
	return true, nil
}
