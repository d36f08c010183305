// Package testutil provides testing utilities for the lock-free containers.
//
// This package is intended for use in tests and benchmarks only.
//
// # Deterministic Randomness
//
//	rng := testutil.NewRNG(seed)
//	worker := rng.Fork() // one per goroutine
//	if worker.Chance(0.5) { ... }
//
// # Concurrent Workers
//
//	start := testutil.NewBarrier(workers)
//	err := testutil.Parallel(ctx, workers, func(ctx context.Context, w int) error {
//	    start.Wait()
//	    ...
//	})
package testutil
