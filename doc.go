// Package lockfree provides lock-free memory reuse and queueing primitives.
//
// Three containers share one lock-free free-list primitive and one hazard
// pointer reclamation scheme:
//
//   - Pool[T]: a fixed-capacity object pool with generation-checked handles
//   - Allocator: a fixed-size raw block allocator, on or off the Go heap
//   - Queue[T]: an unbounded Michael-Scott FIFO queue whose nodes are
//     recycled only after no goroutine can still read them
//
// # Quick Start
//
// Object pool:
//
//	p, _ := lockfree.NewPool[conn](64)
//	h, ok := p.Acquire()
//	if !ok {
//	    // exhausted: retry later or fail fast, Acquire never waits
//	}
//	h.Value().reset()
//	_ = h.Release()
//
// Block allocator:
//
//	a, _ := lockfree.NewAllocator(256, 4096, lockfree.WithOffHeap())
//	defer a.Close()
//	b, err := a.Allocate() // lockfree.ErrOutOfMemory when exhausted
//	buf := b.Bytes()
//	_ = a.Deallocate(b)
//
// Queue:
//
//	reg, _ := lockfree.NewRegistry(runtime.GOMAXPROCS(0))
//	q, _ := lockfree.NewQueue[job](reg)
//
//	p, _ := reg.Register() // once per goroutine
//	defer p.Unregister()
//	q.Enqueue(p, j)
//	j, ok := q.Dequeue(p)
//
// # Progress Guarantees
//
// Every operation is lock-free: a CAS retry loop that ends on success or on
// a terminal condition (empty, exhausted). Some goroutine always makes
// progress; an individual goroutine may retry under contention. No
// operation blocks except Registry.StartSweeper, which waits for a
// background slot of the resource controller.
//
// # Misuse Detection
//
// Handles and blocks carry the generation of their slot. Releasing twice,
// releasing a stale copy, or returning a handle to the wrong pool is
// reported (ErrStaleHandle, ErrForeignHandle, ErrStaleBlock,
// ErrForeignBlock) and leaves the container intact.
//
// # Participants
//
// Queue operations need the calling goroutine's *Participant. A registry
// has a fixed number of participant slots; Register fails with
// ErrRegistryFull when all are taken. Nodes retired by a participant that
// unregisters while other goroutines still protect them are kept as orphans
// and reclaimed by the next scan, Registry.Sweep, or a sweeper started
// with Registry.StartSweeper.
//
// # Resource Governance
//
// WithResourceController shares a resource.Controller between containers.
// Pools and allocators reserve their arena size at construction and fail
// with ErrMemoryLimitExceeded when the budget is spent.
package lockfree
