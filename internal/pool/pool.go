package pool

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/lockfree/internal/conv"
	"github.com/hupe1980/lockfree/internal/freelist"
)

// MaxCapacity is the largest supported pool capacity.
const MaxCapacity = freelist.MaxCapacity

var (
	// ErrInvalidCapacity is returned when the capacity is not in (0, MaxCapacity].
	ErrInvalidCapacity = errors.New("pool: invalid capacity")
	// ErrInvalidHandle is returned when releasing a zero Handle.
	ErrInvalidHandle = errors.New("pool: invalid handle")
	// ErrForeignHandle is returned when a handle is released into a pool that did not issue it.
	ErrForeignHandle = errors.New("pool: handle belongs to a different pool")
	// ErrStaleHandle is returned when a handle was already released.
	// Generations are 64-bit, so a stale handle cannot match its slot again
	// within any reachable number of reuse cycles.
	ErrStaleHandle = errors.New("pool: handle already released")
	// ErrCorrupted is returned by Audit when the partition invariant does not hold.
	ErrCorrupted = errors.New("pool: free-list corrupted")
)

type slot[T any] struct {
	value T
	gen   atomic.Uint64 // odd = checked out
}

// Footprint returns the arena size in bytes of a pool of capacity T values,
// free-list links included.
func Footprint[T any](capacity int) (int64, error) {
	var s slot[T]
	per := int(unsafe.Sizeof(s)) + int(unsafe.Sizeof(uint32(0)))
	return conv.MulInt64(per, capacity)
}

// Stats is a relaxed snapshot of pool counters.
type Stats struct {
	Capacity      int
	Available     int    // approximate free slots
	Acquires      uint64 // successful acquires
	Releases      uint64 // successful releases
	Exhausted     uint64 // acquires that found the pool empty
	StaleReleases uint64 // rejected releases (stale or foreign handles)
}

// Pool is a fixed-capacity lock-free pool of T values.
type Pool[T any] struct {
	slots []slot[T]
	free  *freelist.Stack

	acquires      atomic.Uint64
	releases      atomic.Uint64
	exhausted     atomic.Uint64
	staleReleases atomic.Uint64
}

// Option configures a Pool.
type Option[T any] func(*Pool[T])

// WithInit runs fn once on every slot value at construction.
func WithInit[T any](fn func(*T)) Option[T] {
	return func(p *Pool[T]) {
		if fn == nil {
			return
		}
		for i := range p.slots {
			fn(&p.slots[i].value)
		}
	}
}

// New creates a pool with capacity pre-allocated slots, all free.
func New[T any](capacity int, opts ...Option[T]) (*Pool[T], error) {
	if capacity <= 0 || capacity > MaxCapacity {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}

	p := &Pool[T]{
		slots: make([]slot[T], capacity),
		free:  freelist.New(capacity),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Acquire checks out a free slot. ok is false if the pool is exhausted;
// Acquire never waits.
func (p *Pool[T]) Acquire() (h Handle[T], ok bool) {
	idx, ok := p.free.Pop()
	if !ok {
		p.exhausted.Add(1)
		return Handle[T]{}, false
	}

	gen := p.slots[idx].gen.Add(1)
	p.acquires.Add(1)

	return Handle[T]{pool: p, idx: idx, gen: gen}, true
}

// Release returns the slot referenced by h to the pool.
func (p *Pool[T]) Release(h Handle[T]) error {
	if h.pool == nil {
		return ErrInvalidHandle
	}
	if h.pool != p {
		p.staleReleases.Add(1)
		return ErrForeignHandle
	}

	// Winning this CAS makes the caller the exclusive owner until the push.
	if !p.slots[h.idx].gen.CompareAndSwap(h.gen, h.gen+1) {
		p.staleReleases.Add(1)
		return ErrStaleHandle
	}

	p.free.Push(h.idx)
	p.releases.Add(1)

	return nil
}

// Capacity returns the number of slots in the arena.
func (p *Pool[T]) Capacity() int {
	return len(p.slots)
}

// ApproximateCount returns the number of free slots found by an
// unsynchronized traversal of the free-list.
//
// Concurrent acquires and releases can make the result stale or partial.
// Use it for diagnostics only, never for correctness decisions.
func (p *Pool[T]) ApproximateCount() int {
	return p.free.Len()
}

// Stats returns a relaxed snapshot of the pool counters.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Capacity:      len(p.slots),
		Available:     p.free.Len(),
		Acquires:      p.acquires.Load(),
		Releases:      p.releases.Load(),
		Exhausted:     p.exhausted.Load(),
		StaleReleases: p.staleReleases.Load(),
	}
}

// Audit verifies that the free slots and the checked-out slots partition the
// arena. It must only be called while no other goroutine uses the pool.
func (p *Pool[T]) Audit() error {
	capacity, err := conv.IntToUint(len(p.slots))
	if err != nil {
		return err
	}

	free := bitset.New(capacity)

	var dup error
	p.free.Walk(func(idx uint32) bool {
		if free.Test(uint(idx)) {
			dup = fmt.Errorf("%w: slot %d linked twice", ErrCorrupted, idx)
			return false
		}
		free.Set(uint(idx))
		return true
	})
	if dup != nil {
		return dup
	}

	checkedOut := 0
	for i := range p.slots {
		out := p.slots[i].gen.Load()&1 == 1
		switch {
		case out && free.Test(uint(i)):
			return fmt.Errorf("%w: slot %d is both free and checked out", ErrCorrupted, i)
		case !out && !free.Test(uint(i)):
			return fmt.Errorf("%w: slot %d is neither free nor checked out", ErrCorrupted, i)
		case out:
			checkedOut++
		}
	}

	if n := int(free.Count()); n+checkedOut != len(p.slots) { //nolint:gosec // bounded by capacity
		return fmt.Errorf("%w: %d free + %d checked out != %d", ErrCorrupted, n, checkedOut, len(p.slots))
	}

	return nil
}

// Handle is an exclusive reference to one checked-out slot.
//
// The zero Handle is invalid. A handle is a value; copies share the same
// identity and only the first Release of any copy succeeds.
type Handle[T any] struct {
	pool *Pool[T]
	idx  uint32
	gen  uint64
}

// Valid reports whether the handle still owns its slot.
func (h Handle[T]) Valid() bool {
	return h.pool != nil && h.pool.slots[h.idx].gen.Load() == h.gen
}

// Value returns a pointer to the slot payload, or nil if the handle is zero
// or already released. The pointer must not be used after Release.
func (h Handle[T]) Value() *T {
	if !h.Valid() {
		return nil
	}
	return &h.pool.slots[h.idx].value
}

// Index returns the arena index of the slot.
func (h Handle[T]) Index() int {
	return int(h.idx)
}

// Release returns the slot to the pool that issued the handle.
func (h Handle[T]) Release() error {
	if h.pool == nil {
		return ErrInvalidHandle
	}
	return h.pool.Release(h)
}
