// Package queue hands commands from producers to the fade engine in strict
// FIFO order.
package queue

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/dokzlo13/dimmerd/internal/light"
)

var (
	// ErrQueueFull is returned to external producers when the backlog limit
	// is reached.
	ErrQueueFull = eris.New("command queue is full")
	// ErrClosed is returned after Close.
	ErrClosed = eris.New("command queue is closed")
)

// Origin tells externally requested commands apart from the ones the engine
// schedules for itself.
type Origin int

const (
	OriginExternal Origin = iota
	OriginSynthetic
)

// String returns the origin name used in logs and the ledger.
func (o Origin) String() string {
	switch o {
	case OriginExternal:
		return "external"
	case OriginSynthetic:
		return "synthetic"
	default:
		return "unknown"
	}
}

// Envelope is a queued command with its bookkeeping.
type Envelope struct {
	ID      uuid.UUID
	Command light.Command
	Origin  Origin
	Source  string
	// Result, when set, receives the outcome of applying the command. It must
	// be buffered; the engine never blocks on it.
	Result chan<- error
}

// NewEnvelope wraps an externally produced command.
func NewEnvelope(cmd light.Command, source string) Envelope {
	return Envelope{
		ID:      uuid.New(),
		Command: cmd,
		Origin:  OriginExternal,
		Source:  source,
	}
}

// Synthetic wraps a command the engine schedules for itself.
func Synthetic(cmd light.Command, source string) Envelope {
	return Envelope{
		ID:      uuid.New(),
		Command: cmd,
		Origin:  OriginSynthetic,
		Source:  source,
	}
}

// Reply delivers the application outcome if a caller is waiting.
func (e Envelope) Reply(err error) {
	if e.Result == nil {
		return
	}
	select {
	case e.Result <- err:
	default:
	}
}

// Queue is a mutex-guarded FIFO. A limit of zero means unbounded.
type Queue struct {
	mu     sync.Mutex
	items  []Envelope
	limit  int
	closed bool
	ready  chan struct{}
}

// New creates a queue. External pushes fail with ErrQueueFull once limit
// envelopes are waiting.
func New(limit int) *Queue {
	return &Queue{
		limit: limit,
		ready: make(chan struct{}, 1),
	}
}

// Push appends an envelope. Synthetic envelopes ignore the limit.
func (q *Queue) Push(env Envelope) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if env.Origin == OriginExternal && q.limit > 0 && len(q.items) >= q.limit {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.items = append(q.items, env)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// Enqueue wraps cmd as an external envelope and pushes it.
func (q *Queue) Enqueue(cmd light.Command, source string) (uuid.UUID, error) {
	env := NewEnvelope(cmd, source)
	if err := q.Push(env); err != nil {
		return uuid.Nil, err
	}
	return env.ID, nil
}

// TryPop removes the head without blocking.
func (q *Queue) TryPop() (Envelope, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Envelope{}, false
	}
	env := q.items[0]
	q.items[0] = Envelope{}
	q.items = q.items[1:]
	return env, true
}

// Len returns the number of waiting envelopes.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Empty reports whether nothing is waiting.
func (q *Queue) Empty() bool {
	return q.Len() == 0
}

// Ready is signalled after a push. It is a wake-up hint only; callers must
// still TryPop.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Close rejects further pushes. Waiting envelopes stay poppable.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
