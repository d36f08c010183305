package lockfree

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/hupe1980/lockfree/internal/blockalloc"
)

// Block is an exclusive reference to one allocated block.
// The zero Block is invalid.
type Block = blockalloc.Block

// AllocatorStats tracks allocator usage.
type AllocatorStats = blockalloc.Stats

// MinBlockSize is the smallest block an Allocator hands out.
const MinBlockSize = blockalloc.MinBlockSize

// BlockAllocator is the allocation interface containers depend on.
type BlockAllocator interface {
	Allocate() (Block, error)
	Deallocate(b Block) error
	BlockSize() int
}

var _ BlockAllocator = (*Allocator)(nil)

// Allocator is a lock-free allocator of fixed-size raw memory blocks.
type Allocator struct {
	a      *blockalloc.Allocator
	opts   options
	logger *Logger
	warn   rate.Sometimes
	closed atomic.Bool
}

// NewAllocator creates an allocator for capacity blocks of at least
// blockSize bytes. The effective block size is rounded up to the alignment.
//
// Example:
//
//	a, _ := lockfree.NewAllocator(64, 1024, lockfree.WithOffHeap())
//	defer a.Close()
//
//	b, err := a.Allocate()
//	if err != nil {
//	    // errors.Is(err, lockfree.ErrOutOfMemory)
//	}
//	copy(b.Bytes(), payload)
//	_ = a.Deallocate(b)
func NewAllocator(blockSize, capacity int, opts ...Option) (*Allocator, error) {
	return NewAllocatorContext(context.Background(), blockSize, capacity, opts...)
}

// NewAllocatorContext is like NewAllocator but bounds the memory reservation
// with ctx.
func NewAllocatorContext(ctx context.Context, blockSize, capacity int, opts ...Option) (*Allocator, error) {
	o := applyOptions(opts)
	logger := o.logger.WithContainer("allocator").WithCapacity(capacity)

	var baOpts []blockalloc.Option
	if o.offHeap {
		baOpts = append(baOpts, blockalloc.WithOffHeap())
	}
	if o.zeroOnFree {
		baOpts = append(baOpts, blockalloc.WithZeroOnFree())
	}
	if o.alignment > 0 {
		baOpts = append(baOpts, blockalloc.WithAlignment(o.alignment))
	}
	if o.resourceController != nil {
		baOpts = append(baOpts, blockalloc.WithMemoryAcquirer(o.resourceController))
	}

	a, err := blockalloc.NewContext(ctx, blockSize, capacity, baOpts...)
	if err != nil {
		err = translateError(err)
		logger.LogCreate(ctx, "allocator", 0, err)
		return nil, err
	}
	logger.LogCreate(ctx, "allocator", a.Stats().BytesReserved, nil)

	return &Allocator{
		a:      a,
		opts:   o,
		logger: logger,
		warn:   rate.Sometimes{Interval: o.warnInterval},
	}, nil
}

// Allocate returns a free block, ErrOutOfMemory when every block is in use,
// or ErrClosed after Close.
func (a *Allocator) Allocate() (Block, error) {
	b, err := a.a.Allocate()
	a.opts.metricsCollector.RecordAllocate(err)
	if errors.Is(err, blockalloc.ErrOutOfMemory) {
		a.warn.Do(func() {
			a.logger.LogExhausted(context.Background(), "allocator", a.a.Stats().OutOfMemory)
		})
	}
	return b, err
}

// MustAllocate is like Allocate but panics on failure.
func (a *Allocator) MustAllocate() Block {
	b, err := a.Allocate()
	if err != nil {
		panic(err)
	}
	return b
}

// Deallocate returns b to the allocator.
func (a *Allocator) Deallocate(b Block) error {
	err := a.a.Deallocate(b)
	a.opts.metricsCollector.RecordDeallocate(err)
	if err != nil && !errors.Is(err, blockalloc.ErrClosed) {
		a.logger.LogMisuse(context.Background(), "allocator", err)
	}
	return err
}

// BlockSize returns the effective block size in bytes.
func (a *Allocator) BlockSize() int {
	return a.a.BlockSize()
}

// Capacity returns the number of blocks.
func (a *Allocator) Capacity() int {
	return a.a.Capacity()
}

// Available returns an approximate number of free blocks. Diagnostics only.
func (a *Allocator) Available() int {
	return a.a.Available()
}

// Stats returns the current allocator statistics.
func (a *Allocator) Stats() AllocatorStats {
	return a.a.Stats()
}

// Close releases the slab and the memory reservation. Blocks must not be
// used afterwards. Close is idempotent.
func (a *Allocator) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	reserved := a.a.Stats().BytesReserved
	err := a.a.Close()
	a.logger.LogClose(context.Background(), "allocator", reserved, err)
	return err
}
