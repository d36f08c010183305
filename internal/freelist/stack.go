package freelist

import (
	"math"
	"sync/atomic"
)

// MaxCapacity is the largest number of nodes a Stack can track.
// Index+1 must fit into the low 32 bits of the packed head.
const MaxCapacity = math.MaxInt32

// Stack is a lock-free LIFO of arena indices.
type Stack struct {
	head atomic.Uint64
	_pad [56]byte
	next []atomic.Uint32 // index+1 of the successor, 0 = end of list
}

// New returns a Stack of capacity n with every index linked, index 0 on top.
func New(n int) *Stack {
	s := NewEmpty(n)
	if n == 0 {
		return s
	}
	for i := 0; i < n-1; i++ {
		s.next[i].Store(uint32(i + 2)) //nolint:gosec // n <= MaxCapacity
	}
	s.head.Store(pack(1, 0))
	return s
}

// NewEmpty returns a Stack of capacity n with nothing linked.
func NewEmpty(n int) *Stack {
	if n < 0 || n > MaxCapacity {
		panic("freelist: capacity out of range")
	}
	return &Stack{next: make([]atomic.Uint32, n)}
}

// Push makes idx the new top of the stack.
//
// The caller must exclusively own idx: it was returned by Pop (or never
// pushed) and has not been pushed since.
func (s *Stack) Push(idx uint32) {
	for {
		old := s.head.Load()
		top, tag := unpack(old)
		s.next[idx].Store(top)
		if s.head.CompareAndSwap(old, pack(idx+1, tag+1)) {
			return
		}
	}
}

// Pop removes and returns the top index. ok is false if the stack is empty.
func (s *Stack) Pop() (idx uint32, ok bool) {
	for {
		old := s.head.Load()
		top, tag := unpack(old)
		if top == 0 {
			return 0, false
		}
		// next may belong to a node another goroutine already popped; the tag
		// makes the CAS below fail in that case.
		next := s.next[top-1].Load()
		if s.head.CompareAndSwap(old, pack(next, tag+1)) {
			return top - 1, true
		}
	}
}

// Empty reports whether the stack was empty at the time of the call.
func (s *Stack) Empty() bool {
	top, _ := unpack(s.head.Load())
	return top == 0
}

// Cap returns the capacity of the arena the stack indexes.
func (s *Stack) Cap() int {
	return len(s.next)
}

// Len counts the linked nodes. Racy: diagnostics only.
func (s *Stack) Len() int {
	n := 0
	s.Walk(func(uint32) bool {
		n++
		return true
	})
	return n
}

// Walk visits linked indices from the top until fn returns false, the end of
// the list is reached or Cap nodes were visited. Racy: diagnostics only.
func (s *Stack) Walk(fn func(idx uint32) bool) {
	cur, _ := unpack(s.head.Load())
	for steps := 0; cur != 0 && steps < len(s.next); steps++ {
		if !fn(cur - 1) {
			return
		}
		cur = s.next[cur-1].Load()
	}
}

func pack(top, tag uint32) uint64 {
	return uint64(tag)<<32 | uint64(top)
}

func unpack(v uint64) (top, tag uint32) {
	return uint32(v), uint32(v >> 32) //nolint:gosec // intentional truncation
}
