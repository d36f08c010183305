// Package resource implements the Controller for global limits.
//
// The Controller governs two resource types shared by every pool, allocator
// and registry that is handed the same instance:
//
//   - Memory: arena and slab reservations made at construction time
//   - Background workers: slots for hazard registry sweepers
//
// # Memory Management
//
// Memory tracking uses a weighted semaphore for hard limits and an atomic
// counter for usage. AcquireMemory waits for the context; TryAcquireMemory
// fails fast:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 64 << 20,
//	})
//
//	if err := rc.AcquireMemory(ctx, 1<<20); err != nil {
//	    // errors.Is(err, resource.ErrMemoryLimitExceeded)
//	}
//	defer rc.ReleaseMemory(1 << 20)
//
// # Background Worker Limits
//
//	rc := resource.NewController(resource.Config{
//	    MaxBackgroundWorkers: 2,
//	})
//
//	if err := rc.AcquireBackground(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseBackground()
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully; they become no-ops.
package resource
