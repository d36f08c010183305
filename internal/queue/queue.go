// Package queue implements an unbounded lock-free MPMC FIFO queue
// (Michael and Scott) whose nodes are reclaimed through hazard pointers.
//
// The queue always holds a dummy node: head points at the dummy, the
// logically first element lives in head.next, and the queue is empty exactly
// when head.next is nil. Dequeued dummies are retired to the hazard registry
// and recycled only after no participant protects them.
//
// Every operation takes the caller's *hazard.Record. Slot 0 guards the
// head or tail node being inspected and slot 1 guards head.next while its
// value is read. The record must be registered with the queue's registry;
// operations panic with ErrNilParticipant, ErrForeignParticipant or
// hazard.ErrNotRegistered otherwise.
package queue

import (
	"errors"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/hupe1980/lockfree/internal/hazard"
)

const (
	slotNode = 0
	slotNext = 1
)

var (
	// ErrNilRegistry is returned when a queue is created without a registry.
	ErrNilRegistry = errors.New("queue: nil hazard registry")
	// ErrNilParticipant is the panic value of an operation given a nil record.
	ErrNilParticipant = errors.New("queue: nil participant")
	// ErrForeignParticipant is the panic value of an operation given a record
	// of another registry, whose hazards the queue's scans never see.
	ErrForeignParticipant = errors.New("queue: participant belongs to a different registry")
)

type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// Stats is a relaxed snapshot of queue counters.
type Stats struct {
	Enqueues uint64
	Dequeues uint64
	Empty    uint64 // dequeues that found the queue empty
	Recycled uint64 // nodes returned to the recycler
}

// Queue is an unbounded lock-free FIFO queue of T values.
type Queue[T any] struct {
	head atomic.Pointer[node[T]]
	_    [56]byte
	tail atomic.Pointer[node[T]]
	_    [56]byte

	reg   *hazard.Registry
	nodes sync.Pool
	rc    hazard.Reclaimer

	enqueues atomic.Uint64
	dequeues atomic.Uint64
	empty    atomic.Uint64
	recycled atomic.Uint64
}

// New creates an empty queue whose nodes are reclaimed through reg.
func New[T any](reg *hazard.Registry) (*Queue[T], error) {
	if reg == nil {
		return nil, ErrNilRegistry
	}

	q := &Queue[T]{reg: reg}
	q.nodes.New = func() any { return new(node[T]) }
	q.rc = hazard.ReclaimFunc(q.recycle)

	dummy := new(node[T])
	q.head.Store(dummy)
	q.tail.Store(dummy)

	return q, nil
}

// Registry returns the hazard registry the queue reclaims through.
func (q *Queue[T]) Registry() *hazard.Registry {
	return q.reg
}

// Enqueue appends v at the tail. It never fails.
func (q *Queue[T]) Enqueue(rec *hazard.Record, v T) {
	q.checkParticipant(rec)

	n := q.nodes.Get().(*node[T])
	n.value = v

	for {
		tail := hazard.Load(rec, slotNode, &q.tail)
		next := tail.next.Load()

		if tail != q.tail.Load() {
			continue
		}

		// Tail is lagging; help it forward and retry.
		if next != nil {
			q.tail.CompareAndSwap(tail, next)
			continue
		}

		if tail.next.CompareAndSwap(nil, n) {
			q.tail.CompareAndSwap(tail, n)
			break
		}
	}

	rec.Clear(slotNode)
	q.enqueues.Add(1)
}

// Dequeue removes the value at the head. ok is false if the queue was
// empty at the linearization point; Dequeue never waits.
func (q *Queue[T]) Dequeue(rec *hazard.Record) (v T, ok bool) {
	q.checkParticipant(rec)

	for {
		head := hazard.Load(rec, slotNode, &q.head)
		tail := q.tail.Load()
		next := head.next.Load()
		rec.Protect(slotNext, unsafe.Pointer(next))

		// head moved: next may already be retired.
		if q.head.Load() != head {
			continue
		}

		if next == nil {
			rec.ClearAll()
			q.empty.Add(1)
			return v, false
		}

		if head == tail {
			q.tail.CompareAndSwap(tail, next)
			continue
		}

		// Read before the CAS; afterwards another dequeuer may retire next.
		v = next.value
		if q.head.CompareAndSwap(head, next) {
			rec.ClearAll()
			rec.Retire(unsafe.Pointer(head), q.rc)
			q.dequeues.Add(1)
			return v, true
		}
	}
}

// Empty reports whether the queue held no element at the moment head.next
// was read. The answer may be stale by the time the caller acts on it.
func (q *Queue[T]) Empty(rec *hazard.Record) bool {
	q.checkParticipant(rec)

	head := hazard.Load(rec, slotNode, &q.head)
	empty := head.next.Load() == nil
	rec.Clear(slotNode)
	return empty
}

// Stats returns a relaxed snapshot of the queue counters.
func (q *Queue[T]) Stats() Stats {
	return Stats{
		Enqueues: q.enqueues.Load(),
		Dequeues: q.dequeues.Load(),
		Empty:    q.empty.Load(),
		Recycled: q.recycled.Load(),
	}
}

func (q *Queue[T]) checkParticipant(rec *hazard.Record) {
	switch {
	case rec == nil:
		panic(ErrNilParticipant)
	case rec.Registry() != q.reg:
		panic(ErrForeignParticipant)
	case !rec.Active():
		panic(hazard.ErrNotRegistered)
	}
}

// recycle poisons a retired node and returns it to the node pool.
func (q *Queue[T]) recycle(p unsafe.Pointer) {
	n := (*node[T])(p)

	var zero T
	n.value = zero
	n.next.Store(nil)

	q.recycled.Add(1)
	q.nodes.Put(n)
}
