package stream

import "sync"

// command is either a text to speak or the stop sentinel.
type command struct {
	text string
	stop bool
}

// commandQueue is the FIFO between producers (enqueue) and the single session
// worker. Pushes never block; take blocks until a command is available.
type commandQueue struct {
	mu     sync.Mutex
	items  []command
	closed bool
	// max bounds pending texts; 0 means unbounded. The stop sentinel is exempt.
	max   int
	ready chan struct{}
}

func newCommandQueue(max int) *commandQueue {
	return &commandQueue{max: max, ready: make(chan struct{}, 1)}
}

// push appends a text and returns the number of pending commands.
func (q *commandQueue) push(text string) (int, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0, ErrSessionClosed
	}
	if q.max > 0 && len(q.items) >= q.max {
		q.mu.Unlock()
		return 0, ErrQueueFull
	}
	q.items = append(q.items, command{text: text})
	n := len(q.items)
	q.mu.Unlock()
	q.signal()
	return n, nil
}

// close appends the stop sentinel and rejects further pushes. It is idempotent.
func (q *commandQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.items = append(q.items, command{stop: true})
	q.mu.Unlock()
	q.signal()
}

// take removes and returns the oldest command, waiting for one if needed.
// Only the session worker calls take.
func (q *commandQueue) take() command {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			c := q.items[0]
			q.items[0] = command{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return c
		}
		q.mu.Unlock()
		<-q.ready
	}
}

// drain drops everything still queued and returns how many texts were lost.
func (q *commandQueue) drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, c := range q.items {
		if !c.stop {
			n++
		}
	}
	q.items = nil
	return n
}

// depth is the number of pending texts.
func (q *commandQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, c := range q.items {
		if !c.stop {
			n++
		}
	}
	return n
}

func (q *commandQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
