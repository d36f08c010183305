package lockfree

import (
	"github.com/hupe1980/lockfree/internal/queue"
)

// QueueStats is a relaxed snapshot of queue counters.
type QueueStats = queue.Stats

// Queue is an unbounded lock-free FIFO queue. Nodes are recycled through
// the Registry the queue was created with; every operation takes the
// calling goroutine's Participant of that registry.
//
// Passing a nil, foreign or unregistered participant is a programming error:
// the operation panics with ErrNilParticipant, ErrForeignParticipant or
// ErrNotRegistered.
//
// Example:
//
//	reg, _ := lockfree.NewRegistry(8)
//	q, _ := lockfree.NewQueue[int](reg)
//
//	p, _ := reg.Register()
//	defer p.Unregister()
//
//	q.Enqueue(p, 42)
//	v, ok := q.Dequeue(p)
type Queue[T any] struct {
	q    *queue.Queue[T]
	opts options
}

// NewQueue creates an empty queue reclaiming nodes through reg.
func NewQueue[T any](reg *Registry, opts ...Option) (*Queue[T], error) {
	if reg == nil {
		return nil, ErrNilRegistry
	}

	q, err := queue.New[T](reg.reg)
	if err != nil {
		return nil, err
	}

	return &Queue[T]{
		q:    q,
		opts: applyOptions(opts),
	}, nil
}

// Enqueue appends v. It never fails and never blocks.
func (q *Queue[T]) Enqueue(p *Participant, v T) {
	q.q.Enqueue(p, v)
	q.opts.metricsCollector.RecordEnqueue()
}

// Dequeue removes the oldest value. ok is false if the queue was empty;
// Dequeue never waits.
func (q *Queue[T]) Dequeue(p *Participant) (T, bool) {
	v, ok := q.q.Dequeue(p)
	q.opts.metricsCollector.RecordDequeue(ok)
	return v, ok
}

// Empty reports whether the queue was empty when inspected. The result may
// be stale by the time the caller acts on it.
func (q *Queue[T]) Empty(p *Participant) bool {
	return q.q.Empty(p)
}

// Stats returns a relaxed snapshot of the queue counters.
func (q *Queue[T]) Stats() QueueStats {
	return q.q.Stats()
}
