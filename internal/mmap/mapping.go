package mmap

import (
	"fmt"
	"sync/atomic"
)

// Mapping is an anonymous read-write memory mapping.
// It owns the underlying byte slice and is responsible for unmapping it.
type Mapping struct {
	data   []byte
	closed atomic.Bool
	unmap  func([]byte) error
}

// MapAnon maps size bytes of zeroed anonymous memory.
func MapAnon(size int) (*Mapping, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	data, unmap, err := osMapAnon(size)
	if err != nil {
		return nil, fmt.Errorf("mmap: map %d anonymous bytes: %w", size, err)
	}

	return &Mapping{data: data, unmap: unmap}, nil
}

// Bytes returns the mapped memory, or nil once the mapping is closed.
// Accessing a slice obtained before Close after Close returns is undefined
// behavior (likely a crash).
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Size returns the size of the mapping in bytes.
func (m *Mapping) Size() int {
	return len(m.data)
}

// Advise provides hints to the kernel about how the memory will be accessed.
func (m *Mapping) Advise(pattern AccessPattern) error {
	if m.closed.Load() {
		return ErrClosed
	}
	return osAdvise(m.data, pattern)
}

// Close unmaps the memory. It is idempotent.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	if m.unmap != nil && m.data != nil {
		return m.unmap(m.data)
	}
	return nil
}
