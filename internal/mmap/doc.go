// Package mmap provides anonymous memory mappings for off-heap slabs.
//
// MapAnon returns a read-write private mapping that lives outside the Go
// garbage collector's heap. The block allocator uses it to back large block
// slabs without adding GC scan work.
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with MAP_ANON|MAP_PRIVATE, madvise(2) hints
//   - Windows: VirtualAlloc/VirtualFree (advice is a no-op)
//
// # Thread Safety
//
// Close is idempotent and safe to call concurrently with itself. Callers
// must ensure no goroutine touches Bytes() after Close returns.
package mmap
