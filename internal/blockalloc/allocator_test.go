package blockalloc

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lockfree/internal/mmap"
)

type budget struct {
	mu    sync.Mutex
	limit int64
	used  int64
}

func (b *budget) AcquireMemory(_ context.Context, amount int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used+amount > b.limit {
		return errors.New("budget exceeded")
	}
	b.used += amount
	return nil
}

func (b *budget) ReleaseMemory(amount int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used -= amount
}

func (b *budget) Used() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		blockSize int
		capacity  int
		opts      []Option
		wantErr   error
		wantSize  int
	}{
		{name: "minimum size", blockSize: 1, capacity: 4, wantSize: MinBlockSize},
		{name: "rounded to alignment", blockSize: 13, capacity: 4, wantSize: 16},
		{name: "exact", blockSize: 64, capacity: 4, wantSize: 64},
		{name: "custom alignment", blockSize: 10, capacity: 4, opts: []Option{WithAlignment(32)}, wantSize: 32},
		{name: "zero block size", blockSize: 0, capacity: 4, wantErr: ErrInvalidBlockSize},
		{name: "negative block size", blockSize: -8, capacity: 4, wantErr: ErrInvalidBlockSize},
		{name: "zero capacity", blockSize: 8, capacity: 0, wantErr: ErrInvalidCapacity},
		{name: "alignment not power of two", blockSize: 8, capacity: 4, opts: []Option{WithAlignment(12)}, wantErr: ErrInvalidAlignment},
		{name: "alignment too large", blockSize: 8, capacity: 4, opts: []Option{WithAlignment(128)}, wantErr: ErrInvalidAlignment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(tt.blockSize, tt.capacity, tt.opts...)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer a.Close()

			assert.Equal(t, tt.wantSize, a.BlockSize())
			assert.Equal(t, tt.capacity, a.Capacity())
			assert.Equal(t, tt.capacity, a.Available())
		})
	}
}

func TestAllocator_SixteenByteBlocks(t *testing.T) {
	a, err := New(16, 2)
	require.NoError(t, err)
	defer a.Close()

	b1, err := a.Allocate()
	require.NoError(t, err)
	b2, err := a.Allocate()
	require.NoError(t, err)

	assert.NotEqual(t, b1.Index(), b2.Index())
	assert.Len(t, b1.Bytes(), 16)
	assert.Equal(t, 16, cap(b1.Bytes()))

	_, err = a.Allocate()
	assert.ErrorIs(t, err, ErrOutOfMemory)
	assert.Panics(t, func() { a.MustAllocate() })

	require.NoError(t, a.Deallocate(b1))

	b3, err := a.Allocate()
	require.NoError(t, err)
	assert.Equal(t, b1.Index(), b3.Index())

	st := a.Stats()
	assert.Equal(t, uint64(3), st.Allocs)
	assert.Equal(t, uint64(1), st.Deallocs)
	assert.Equal(t, uint64(2), st.OutOfMemory)
}

func TestAllocator_BlocksDoNotOverlap(t *testing.T) {
	a, err := New(24, 8)
	require.NoError(t, err)
	defer a.Close()

	blocks := make([]Block, 0, 8)
	for i := 0; i < 8; i++ {
		b := a.MustAllocate()
		buf := b.Bytes()
		for j := range buf {
			buf[j] = byte(b.Index())
		}
		blocks = append(blocks, b)
	}

	for _, b := range blocks {
		for _, v := range b.Bytes() {
			require.Equal(t, byte(b.Index()), v)
		}
	}
}

func TestAllocator_Misuse(t *testing.T) {
	a, err := New(8, 2)
	require.NoError(t, err)
	defer a.Close()

	assert.ErrorIs(t, a.Deallocate(Block{}), ErrInvalidBlock)

	b := a.MustAllocate()
	require.NoError(t, a.Deallocate(b))
	assert.False(t, b.Valid())
	assert.Nil(t, b.Bytes())
	assert.ErrorIs(t, a.Deallocate(b), ErrStaleBlock)

	other, err := New(8, 1)
	require.NoError(t, err)
	defer other.Close()

	ob := other.MustAllocate()
	assert.ErrorIs(t, a.Deallocate(ob), ErrForeignBlock)
	assert.True(t, ob.Valid())

	assert.Equal(t, uint64(2), a.Stats().StaleFrees)
	assert.Equal(t, 2, a.Available())
}

func TestAllocator_ZeroOnFree(t *testing.T) {
	a, err := New(16, 1, WithZeroOnFree())
	require.NoError(t, err)
	defer a.Close()

	b := a.MustAllocate()
	copy(b.Bytes(), "dirty dirty data")
	require.NoError(t, a.Deallocate(b))

	b = a.MustAllocate()
	assert.Equal(t, make([]byte, 16), b.Bytes())
}

func TestAllocator_OffHeap(t *testing.T) {
	a, err := New(32, 16, WithOffHeap())
	require.NoError(t, err)

	st := a.Stats()
	assert.True(t, st.OffHeap)
	assert.Equal(t, int64(32*16), st.BytesReserved)

	b := a.MustAllocate()
	copy(b.Bytes(), "off heap")
	assert.Equal(t, "off heap", string(b.Bytes()[:8]))

	require.NoError(t, a.Close())
	assert.False(t, b.Valid())
	assert.Nil(t, b.Bytes())
}

func TestAllocator_MemoryAcquirer(t *testing.T) {
	bud := &budget{limit: 1024}

	a, err := New(64, 8, WithMemoryAcquirer(bud))
	require.NoError(t, err)
	assert.Equal(t, int64(512), bud.Used())

	_, err = New(64, 16, WithMemoryAcquirer(bud))
	require.Error(t, err)
	assert.Equal(t, int64(512), bud.Used())

	require.NoError(t, a.Close())
	assert.Equal(t, int64(0), bud.Used())

	// Close is idempotent and releases the reservation once.
	require.NoError(t, a.Close())
	assert.Equal(t, int64(0), bud.Used())
}

func TestAllocator_Closed(t *testing.T) {
	a, err := New(8, 2)
	require.NoError(t, err)

	b := a.MustAllocate()
	require.NoError(t, a.Close())

	_, err = a.Allocate()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, a.Deallocate(b), ErrClosed)
}

func TestAllocator_Concurrent(t *testing.T) {
	const (
		capacity   = 16
		goroutines = 8
		iterations = 2000
	)

	a, err := New(16, capacity)
	require.NoError(t, err)
	defer a.Close()

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(id byte) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				b, err := a.Allocate()
				if err != nil {
					continue
				}
				buf := b.Bytes()
				for j := range buf {
					buf[j] = id
				}
				for _, v := range buf {
					if v != id {
						t.Errorf("block %d written by another goroutine", b.Index())
						break
					}
				}
				if err := a.Deallocate(b); err != nil {
					t.Errorf("deallocate: %v", err)
					return
				}
			}
		}(byte(g + 1))
	}
	wg.Wait()

	st := a.Stats()
	assert.Equal(t, st.Allocs, st.Deallocs)
	assert.Equal(t, capacity, st.Available)
}

func BenchmarkAllocator_AllocateDeallocate(b *testing.B) {
	a, err := New(64, 1024)
	if err != nil {
		b.Fatal(err)
	}
	defer a.Close()

	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if blk, err := a.Allocate(); err == nil {
				_ = a.Deallocate(blk)
			}
		}
	})
}

func TestAllocator_OffHeapAdviseFailure(t *testing.T) {
	adviseErr := errors.New("madvise failed")

	orig := adviseSlab
	adviseSlab = func(*mmap.Mapping) error { return adviseErr }
	t.Cleanup(func() { adviseSlab = orig })

	acq := &budget{limit: 1 << 20}
	a, err := New(64, 16, WithOffHeap(), WithMemoryAcquirer(acq))
	assert.Nil(t, a)
	require.ErrorIs(t, err, adviseErr)
	assert.Equal(t, int64(0), acq.Used(), "reservation is returned")

	adviseSlab = orig
	a, err = New(64, 16, WithOffHeap())
	require.NoError(t, err)
	require.NoError(t, a.Close())
}

func TestAllocator_StaleBlockAfterGenerationWraps32Bits(t *testing.T) {
	a, err := New(16, 1)
	require.NoError(t, err)
	defer a.Close()

	b, err := a.Allocate()
	require.NoError(t, err)

	// Same low 32 bits, 2^31 reuse cycles later.
	a.gens[b.idx].Store(b.gen + 1<<32)

	assert.False(t, b.Valid())
	assert.Nil(t, b.Bytes())
	assert.ErrorIs(t, a.Deallocate(b), ErrStaleBlock)
}
