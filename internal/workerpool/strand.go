package workerpool

import "sync"

// Strand serializes a sequence of tasks belonging to one connection onto a
// shared Pool: tasks submitted to the same Strand always run in submission
// order and never overlap each other, while different Strands still run
// concurrently across the pool's workers. This guarantees, for example,
// that a Connected callback always completes before any RecvdMsg callback
// for the same connection begins.
type Strand struct {
	pool *Pool

	mu      sync.Mutex
	queue   []Task
	running bool
}

// NewStrand returns a Strand that dispatches onto pool.
func NewStrand(pool *Pool) *Strand {
	return &Strand{pool: pool}
}

// Submit appends t to the strand's queue. If nothing else from this strand
// is currently running, t (or whatever is ahead of it) is handed to the
// pool immediately.
func (s *Strand) Submit(t Task) {
	s.mu.Lock()
	s.queue = append(s.queue, t)
	alreadyRunning := s.running
	s.running = true
	s.mu.Unlock()

	if !alreadyRunning {
		s.pool.Submit(s.runNext)
	}
}

// runNext executes the head of the queue, then re-submits itself to the
// pool if more work arrived while it ran. It is itself a Task, so the
// pool's panic recovery covers it (and, transitively, the callback it
// invokes).
func (s *Strand) runNext() {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.running = false
		s.mu.Unlock()
		return
	}
	t := s.queue[0]
	s.queue = s.queue[1:]
	s.mu.Unlock()

	t()

	s.mu.Lock()
	more := len(s.queue) > 0
	if !more {
		s.running = false
	}
	s.mu.Unlock()

	if more {
		s.pool.Submit(s.runNext)
	}
}
