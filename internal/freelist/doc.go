// Package freelist provides the lock-free free-list shared by the object pool
// and the block allocator.
//
// The free-list is an index-based Treiber stack over a fixed arena of
// capacity n. Nodes are identified by their arena index; the "next" links
// live in a parallel array owned by the Stack, so callers never embed link
// fields in their payload and never recover a node from a payload address.
//
// # ABA
//
// The head is a single 64-bit word that packs the top index (plus one, so
// zero means empty) with a 32-bit modification tag. Every successful Push or
// Pop increments the tag, so a Pop that loaded a stale next link cannot
// install it after the top node was popped and pushed back in between.
//
// # Diagnostics
//
// Len and Walk traverse the list without synchronization. Their result is a
// best-effort snapshot and must not drive correctness decisions. Both stop
// after capacity steps, so a concurrent mutation can shorten or skew the
// traversal but never make it loop forever.
package freelist
