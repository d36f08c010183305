// Package pool provides a fixed-capacity lock-free object pool.
//
// The pool pre-allocates capacity slots in one arena and links them into a
// freelist.Stack. Acquire pops a slot and returns a Handle; releasing the
// handle pushes the slot back. Slots are never freed individually, so the
// pool needs no reclamation scheme.
//
// # Handles
//
// A Handle is a small value carrying the pool, the slot index and the slot
// generation observed at acquire time. Every slot generation is odd while the
// slot is checked out and even while it is free. Release advances the
// generation with a CAS, so releasing the same handle twice, releasing a copy
// of an already released handle, or releasing a handle into a different pool
// is reported as an error instead of corrupting the free-list.
//
// # Exhaustion
//
// Acquire never blocks. An empty free-list is reported with ok == false and
// counted in Stats().Exhausted; callers decide whether to retry, wait
// externally or fail fast.
//
// # Diagnostics
//
// ApproximateCount traverses the free-list without synchronization and is
// for diagnostics only. Audit checks the partition invariant and is only
// meaningful while no goroutine is using the pool.
package pool
