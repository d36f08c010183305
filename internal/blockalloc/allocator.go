// Package blockalloc provides a lock-free fixed-size block allocator.
//
// # Concurrency Model
//
// Allocate and Deallocate are lock-free and safe for concurrent use; both
// map to a single CAS retry loop on the shared free-list. Close is NOT safe
// to call concurrently with allocations. The typical usage pattern is:
//   - Create one allocator per container or subsystem
//   - Allocate and deallocate from any number of goroutines
//   - Call Close once when the owner shuts down
//
// # Failure Semantics
//
// Exhaustion is a hard failure: Allocate returns ErrOutOfMemory and
// MustAllocate panics. Blocks carry a generation, so deallocating a block
// twice or deallocating a block obtained from another allocator is reported
// instead of corrupting the free-list.
//
// # Memory Management
//
// The slab is either a 64-byte aligned heap slice or, with WithOffHeap, an
// anonymous mapping outside the GC heap. Memory is not returned until Close.
package blockalloc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/hupe1980/lockfree/internal/conv"
	"github.com/hupe1980/lockfree/internal/freelist"
	"github.com/hupe1980/lockfree/internal/mem"
	"github.com/hupe1980/lockfree/internal/mmap"
)

const (
	// MinBlockSize is the smallest block handed out. Smaller requests are
	// rounded up so a block can always hold a link word.
	MinBlockSize = 8
	// DefaultAlignment is the default block alignment (8 bytes).
	DefaultAlignment = 8
	// MaxCapacity is the largest supported number of blocks.
	MaxCapacity = freelist.MaxCapacity
)

var (
	// ErrInvalidBlockSize is returned when the block size is not positive.
	ErrInvalidBlockSize = errors.New("blockalloc: invalid block size")
	// ErrInvalidCapacity is returned when the capacity is not in (0, MaxCapacity].
	ErrInvalidCapacity = errors.New("blockalloc: invalid capacity")
	// ErrInvalidAlignment is returned for alignments that are not a power of two
	// or exceed mem.Alignment.
	ErrInvalidAlignment = errors.New("blockalloc: invalid alignment")
	// ErrOutOfMemory is returned when every block is allocated.
	ErrOutOfMemory = errors.New("blockalloc: out of memory")
	// ErrClosed is returned when using a closed allocator.
	ErrClosed = errors.New("blockalloc: allocator is closed")
	// ErrInvalidBlock is returned when deallocating a zero Block.
	ErrInvalidBlock = errors.New("blockalloc: invalid block")
	// ErrForeignBlock is returned when a block is deallocated into an allocator that did not issue it.
	ErrForeignBlock = errors.New("blockalloc: block belongs to a different allocator")
	// ErrStaleBlock is returned when a block was already deallocated.
	// Generations are 64-bit and do not wrap in practice.
	ErrStaleBlock = errors.New("blockalloc: block already deallocated")
)

// MemoryAcquirer is an interface for acquiring memory.
type MemoryAcquirer interface {
	AcquireMemory(ctx context.Context, amount int64) error
	ReleaseMemory(amount int64)
}

// Stats tracks allocator usage.
type Stats struct {
	BlockSize     int
	Capacity      int
	Available     int    // approximate free blocks
	BytesReserved int64  // slab size
	Allocs        uint64 // successful allocations
	Deallocs      uint64 // successful deallocations
	OutOfMemory   uint64 // allocations that found no free block
	StaleFrees    uint64 // rejected deallocations
	OffHeap       bool
}

type atomicStats struct {
	allocs      atomic.Uint64
	deallocs    atomic.Uint64
	outOfMemory atomic.Uint64
	staleFrees  atomic.Uint64
}

// Allocator hands out fixed-size blocks carved from one slab.
type Allocator struct {
	blockSize  int
	alignment  int
	slab       []byte
	mapping    *mmap.Mapping // nil unless off-heap
	gens       []atomic.Uint64
	free       *freelist.Stack
	reserved   int64
	offHeap    bool
	zeroOnFree bool
	acquirer   MemoryAcquirer
	closed     atomic.Bool
	stats      atomicStats
}

// Option is a configuration option for Allocator.
type Option func(*Allocator)

// WithOffHeap backs the slab with an anonymous mapping instead of the Go heap.
func WithOffHeap() Option {
	return func(a *Allocator) {
		a.offHeap = true
	}
}

// WithZeroOnFree clears every block when it is deallocated.
func WithZeroOnFree() Option {
	return func(a *Allocator) {
		a.zeroOnFree = true
	}
}

// WithAlignment sets the block alignment. It must be a power of two no larger
// than mem.Alignment.
func WithAlignment(align int) Option {
	return func(a *Allocator) {
		a.alignment = align
	}
}

// WithMemoryAcquirer reserves the slab size from acquirer before allocating it.
func WithMemoryAcquirer(acquirer MemoryAcquirer) Option {
	return func(a *Allocator) {
		a.acquirer = acquirer
	}
}

// New creates an allocator for capacity blocks of at least blockSize bytes.
func New(blockSize, capacity int, opts ...Option) (*Allocator, error) {
	return NewContext(context.Background(), blockSize, capacity, opts...)
}

// NewContext is like New but bounds the memory reservation with ctx.
// Without a deadline, the reservation waits at most 100ms.
func NewContext(ctx context.Context, blockSize, capacity int, opts ...Option) (*Allocator, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBlockSize, blockSize)
	}
	if capacity <= 0 || capacity > MaxCapacity {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}

	a := &Allocator{alignment: DefaultAlignment}
	for _, opt := range opts {
		opt(a)
	}

	if !mem.IsPowerOfTwo(a.alignment) || a.alignment > mem.Alignment {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAlignment, a.alignment)
	}

	a.blockSize = mem.AlignUp(max(blockSize, MinBlockSize), a.alignment)

	total, err := conv.MulInt64(a.blockSize, capacity)
	if err != nil || total > math.MaxInt {
		return nil, fmt.Errorf("%w: %d blocks of %d bytes", ErrOutOfMemory, capacity, a.blockSize)
	}

	if a.acquirer != nil {
		var cancel context.CancelFunc
		if _, ok := ctx.Deadline(); !ok {
			ctx, cancel = context.WithTimeout(ctx, 100*time.Millisecond)
			defer cancel()
		}
		if err := a.acquirer.AcquireMemory(ctx, total); err != nil {
			return nil, fmt.Errorf("blockalloc: reserve %d bytes: %w", total, err)
		}
	}

	if err := a.allocateSlab(int(total)); err != nil {
		if a.acquirer != nil {
			a.acquirer.ReleaseMemory(total)
		}
		return nil, err
	}

	a.reserved = total
	a.gens = make([]atomic.Uint64, capacity)
	a.free = freelist.New(capacity)

	return a, nil
}

// adviseSlab is replaced in tests.
var adviseSlab = func(m *mmap.Mapping) error {
	return m.Advise(mmap.AccessRandom)
}

func (a *Allocator) allocateSlab(size int) error {
	if !a.offHeap {
		a.slab = mem.AllocAligned(size)
		return nil
	}

	mapping, err := mmap.MapAnon(size)
	if err != nil {
		return fmt.Errorf("blockalloc: failed to map slab: %w", err)
	}
	if err := adviseSlab(mapping); err != nil {
		return errors.Join(fmt.Errorf("blockalloc: failed to advise slab: %w", err), mapping.Close())
	}

	a.mapping = mapping
	a.slab = mapping.Bytes()

	return nil
}

// Allocate returns a free block. It fails with ErrOutOfMemory when every
// block is in use.
func (a *Allocator) Allocate() (Block, error) {
	if a.closed.Load() {
		return Block{}, ErrClosed
	}

	idx, ok := a.free.Pop()
	if !ok {
		a.stats.outOfMemory.Add(1)
		return Block{}, ErrOutOfMemory
	}

	gen := a.gens[idx].Add(1)
	a.stats.allocs.Add(1)

	return Block{alloc: a, idx: idx, gen: gen}, nil
}

// MustAllocate is like Allocate but panics on failure.
func (a *Allocator) MustAllocate() Block {
	b, err := a.Allocate()
	if err != nil {
		panic(err)
	}
	return b
}

// Deallocate returns b to the allocator. The caller must not touch the
// block's bytes afterwards.
func (a *Allocator) Deallocate(b Block) error {
	if b.alloc == nil {
		return ErrInvalidBlock
	}
	if b.alloc != a {
		a.stats.staleFrees.Add(1)
		return ErrForeignBlock
	}
	if a.closed.Load() {
		return ErrClosed
	}

	if !a.gens[b.idx].CompareAndSwap(b.gen, b.gen+1) {
		a.stats.staleFrees.Add(1)
		return ErrStaleBlock
	}

	if a.zeroOnFree {
		clear(a.block(b.idx))
	}

	a.free.Push(b.idx)
	a.stats.deallocs.Add(1)

	return nil
}

// BlockSize returns the effective block size in bytes.
func (a *Allocator) BlockSize() int {
	return a.blockSize
}

// Capacity returns the number of blocks in the slab.
func (a *Allocator) Capacity() int {
	return len(a.gens)
}

// Available returns the number of free blocks found by an unsynchronized
// traversal. Diagnostics only.
func (a *Allocator) Available() int {
	return a.free.Len()
}

// Stats returns the current allocator statistics.
func (a *Allocator) Stats() Stats {
	return Stats{
		BlockSize:     a.blockSize,
		Capacity:      len(a.gens),
		Available:     a.free.Len(),
		BytesReserved: a.reserved,
		Allocs:        a.stats.allocs.Load(),
		Deallocs:      a.stats.deallocs.Load(),
		OutOfMemory:   a.stats.outOfMemory.Load(),
		StaleFrees:    a.stats.staleFrees.Load(),
		OffHeap:       a.offHeap,
	}
}

// Close releases the slab.
//
// IMPORTANT:
//  1. Do NOT call Close concurrently with Allocate or Deallocate
//  2. All block slices become invalid after Close
//  3. Close is idempotent
func (a *Allocator) Close() error {
	if a.closed.Swap(true) {
		return nil
	}

	var err error
	if a.mapping != nil {
		err = a.mapping.Close()
		a.mapping = nil
	}
	a.slab = nil

	if a.acquirer != nil {
		a.acquirer.ReleaseMemory(a.reserved)
	}

	return err
}

func (a *Allocator) block(idx uint32) []byte {
	off := int(idx) * a.blockSize
	end := off + a.blockSize
	return a.slab[off:end:end]
}

// Block is an exclusive reference to one allocated block.
// The zero Block is invalid.
type Block struct {
	alloc *Allocator
	idx   uint32
	gen   uint64
}

// Valid reports whether the block is still allocated to its holder.
func (b Block) Valid() bool {
	return b.alloc != nil && !b.alloc.closed.Load() && b.alloc.gens[b.idx].Load() == b.gen
}

// Bytes returns the block memory, or nil if the block is no longer valid.
// len and cap both equal the allocator's block size.
func (b Block) Bytes() []byte {
	if !b.Valid() {
		return nil
	}
	return b.alloc.block(b.idx)
}

// Index returns the position of the block in the slab.
func (b Block) Index() int {
	return int(b.idx)
}
