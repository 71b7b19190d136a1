package reactor

import (
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

type countingHandler struct {
	fd        int
	reads     int32
	writes    int32
	onReadErr error
}

func (h *countingHandler) FD() int { return h.fd }
func (h *countingHandler) OnReadable() error {
	atomic.AddInt32(&h.reads, 1)
	return h.onReadErr
}
func (h *countingHandler) OnWritable() error {
	atomic.AddInt32(&h.writes, 1)
	return nil
}

func TestReactor_WakeUnblocksSelectWait(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	var ticks int32
	done := make(chan struct{})
	go func() {
		r.Run(func() {
			if atomic.AddInt32(&ticks, 1) == 1 {
				// Wake on the very first tick so Run doesn't block
				// forever in epoll_wait(-1) if something is wrong.
				go r.Wake()
			}
		})
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	r.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after Close")
	}

	if atomic.LoadInt32(&ticks) == 0 {
		t.Fatalf("expected at least one onTick invocation")
	}
}

func TestReactor_ReadableAndWritableDispatch(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	h := &countingHandler{fd: fds[0]}
	if err := r.Register(h, Write); err != nil {
		t.Fatalf("Register: %v", err)
	}

	done := make(chan struct{})
	go func() {
		r.Run(nil)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&h.writes) == 0 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for a write-ready dispatch")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	unix.Write(fds[1], []byte("hi"))
	if err := r.Modify(fds[0], Read); err != nil {
		t.Fatalf("Modify: %v", err)
	}

	deadline = time.After(2 * time.Second)
	for atomic.LoadInt32(&h.reads) == 0 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for a read-ready dispatch")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	r.Close()
	<-done
}

// TestReactor_HupErrRoutesToWriteInterest verifies that a HUP/ERR event on
// an fd registered under Write-only interest (as a connecting socket is)
// dispatches through OnWritable, not OnReadable, so a failed connect(2)
// still reaches finishConnect.
func TestReactor_HupErrRoutesToWriteInterest(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	defer unix.Close(fds[0])

	h := &countingHandler{fd: fds[0]}
	if err := r.Register(h, Write); err != nil {
		t.Fatalf("Register: %v", err)
	}

	done := make(chan struct{})
	go func() {
		r.Run(nil)
		close(done)
	}()

	// Closing the peer end raises EPOLLHUP on fds[0], which is registered
	// Write-only.
	unix.Close(fds[1])

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&h.writes) == 0 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for HUP to dispatch through OnWritable")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	if atomic.LoadInt32(&h.reads) != 0 {
		t.Fatalf("expected OnReadable not to be called for a Write-only registration, got %d calls", h.reads)
	}

	r.Close()
	<-done
}
