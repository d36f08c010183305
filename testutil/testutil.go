package testutil

import (
	"context"
	"math/rand"
	"sync"

	"golang.org/x/sync/errgroup"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)), //nolint:gosec // deterministic test data
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Chance returns true with probability p.
func (r *RNG) Chance(p float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64() < p
}

// Perm returns a pseudo-random permutation of [0,n).
func (r *RNG) Perm(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Perm(n)
}

// Fork returns an independent RNG seeded from r, one per worker, so workers
// do not contend on r's lock.
func (r *RNG) Fork() *RNG {
	r.mu.Lock()
	seed := r.rand.Int63()
	r.mu.Unlock()
	return NewRNG(seed)
}

// Parallel runs fn on n workers and waits for all of them. The first error
// cancels the context passed to the remaining workers and is returned.
func Parallel(ctx context.Context, n int, fn func(ctx context.Context, worker int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < n; w++ {
		g.Go(func() error {
			return fn(ctx, w)
		})
	}
	return g.Wait()
}

// Barrier releases all n waiting workers at once, maximising contention at
// the start of a stress test.
type Barrier struct {
	wg    sync.WaitGroup
	start chan struct{}
	once  sync.Once
}

// NewBarrier creates a barrier for n workers.
func NewBarrier(n int) *Barrier {
	b := &Barrier{start: make(chan struct{})}
	b.wg.Add(n)
	return b
}

// Wait blocks until all n workers have called Wait.
func (b *Barrier) Wait() {
	b.wg.Done()
	b.once.Do(func() {
		go func() {
			b.wg.Wait()
			close(b.start)
		}()
	})
	<-b.start
}
