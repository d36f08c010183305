package lockfree

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/hupe1980/lockfree/internal/pool"
)

// Handle is an exclusive reference to one checked-out pool slot.
// The zero Handle is invalid.
type Handle[T any] = pool.Handle[T]

// PoolStats is a relaxed snapshot of pool counters.
type PoolStats = pool.Stats

// Pool is a fixed-capacity lock-free object pool.
//
// All slots are allocated at construction. Acquire and Release never block
// and never allocate.
type Pool[T any] struct {
	p        *pool.Pool[T]
	opts     options
	logger   *Logger
	reserved int64
	warn     rate.Sometimes
	closed   atomic.Bool
}

// NewPool creates a pool of capacity zero-valued T slots.
func NewPool[T any](capacity int, opts ...Option) (*Pool[T], error) {
	return newPool[T](capacity, nil, opts)
}

// NewPoolFunc creates a pool and runs init once on every slot.
//
// Example:
//
//	bufs, _ := lockfree.NewPoolFunc(128, func(b *[]byte) {
//	    *b = make([]byte, 4096)
//	})
func NewPoolFunc[T any](capacity int, init func(*T), opts ...Option) (*Pool[T], error) {
	return newPool(capacity, init, opts)
}

func newPool[T any](capacity int, init func(*T), optFns []Option) (*Pool[T], error) {
	ctx := context.Background()
	o := applyOptions(optFns)
	logger := o.logger.WithContainer("pool").WithCapacity(capacity)

	if capacity <= 0 || capacity > pool.MaxCapacity {
		err := fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
		logger.LogCreate(ctx, "pool", 0, err)
		return nil, err
	}

	bytes, err := pool.Footprint[T](capacity)
	if err != nil {
		return nil, err
	}

	if err := o.reserveMemory(ctx, bytes); err != nil {
		logger.LogCreate(ctx, "pool", bytes, err)
		return nil, err
	}

	p, err := pool.New(capacity, pool.WithInit(init))
	if err != nil {
		o.releaseMemory(bytes)
		logger.LogCreate(ctx, "pool", bytes, err)
		return nil, err
	}
	logger.LogCreate(ctx, "pool", bytes, nil)

	return &Pool[T]{
		p:        p,
		opts:     o,
		logger:   logger,
		reserved: bytes,
		warn:     rate.Sometimes{Interval: o.warnInterval},
	}, nil
}

// Acquire checks out a free slot. ok is false if the pool is exhausted or
// closed; Acquire never waits.
func (p *Pool[T]) Acquire() (Handle[T], bool) {
	if p.closed.Load() {
		p.opts.metricsCollector.RecordAcquire(false)
		return Handle[T]{}, false
	}

	h, ok := p.p.Acquire()
	p.opts.metricsCollector.RecordAcquire(ok)
	if !ok {
		p.warn.Do(func() {
			p.logger.LogExhausted(context.Background(), "pool", p.p.Stats().Exhausted)
		})
	}

	return h, ok
}

// Release returns the slot referenced by h. Releasing a zero, stale or
// foreign handle is reported as an error and leaves the pool unchanged.
// Holders may still release after Close.
func (p *Pool[T]) Release(h Handle[T]) error {
	err := p.p.Release(h)
	p.opts.metricsCollector.RecordRelease(err)
	if err != nil {
		p.logger.LogMisuse(context.Background(), "pool", err)
	}
	return err
}

// Capacity returns the number of slots.
func (p *Pool[T]) Capacity() int {
	return p.p.Capacity()
}

// ApproximateCount returns the number of free slots found by an
// unsynchronized traversal. Diagnostics only.
func (p *Pool[T]) ApproximateCount() int {
	return p.p.ApproximateCount()
}

// Stats returns a relaxed snapshot of the pool counters.
func (p *Pool[T]) Stats() PoolStats {
	return p.p.Stats()
}

// Audit verifies that free and checked-out slots partition the pool.
// Only meaningful while no goroutine uses the pool.
func (p *Pool[T]) Audit() error {
	return p.p.Audit()
}

// Close stops handing out slots and releases the pool's memory reservation.
// Close is idempotent.
func (p *Pool[T]) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.opts.releaseMemory(p.reserved)
	p.logger.LogClose(context.Background(), "pool", p.reserved, nil)
	return nil
}
