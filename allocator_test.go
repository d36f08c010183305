package lockfree

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lockfree/resource"
	"github.com/hupe1980/lockfree/testutil"
)

func TestNewAllocator_Errors(t *testing.T) {
	_, err := NewAllocator(0, 4)
	assert.ErrorIs(t, err, ErrInvalidBlockSize)

	_, err = NewAllocator(8, 0)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestAllocator_Options(t *testing.T) {
	a, err := NewAllocator(20, 4, WithAlignment(32), WithZeroOnFree(), WithOffHeap())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, 32, a.BlockSize())
	assert.True(t, a.Stats().OffHeap)

	b := a.MustAllocate()
	copy(b.Bytes(), "scrub me")
	require.NoError(t, a.Deallocate(b))

	b = a.MustAllocate()
	assert.Equal(t, make([]byte, 32), b.Bytes())
}

func TestAllocator_LogsCarryCapacity(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	a, err := NewAllocator(16, 3, WithLogger(logger))
	require.NoError(t, err)
	defer a.Close()

	for i := 0; i < 4; i++ {
		_, _ = a.Allocate()
	}

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, `"capacity":3`), "create and exhaustion records")
	assert.Contains(t, out, `"container":"allocator"`)
}

func TestAllocator_Metrics(t *testing.T) {
	metrics := &BasicMetricsCollector{}
	a, err := NewAllocator(16, 1, WithMetricsCollector(metrics))
	require.NoError(t, err)

	b, err := a.Allocate()
	require.NoError(t, err)
	_, err = a.Allocate()
	assert.ErrorIs(t, err, ErrOutOfMemory)
	assert.Panics(t, func() { a.MustAllocate() })

	require.NoError(t, a.Deallocate(b))
	assert.ErrorIs(t, a.Deallocate(b), ErrStaleBlock)

	require.NoError(t, a.Close())
	_, err = a.Allocate()
	assert.ErrorIs(t, err, ErrClosed)

	stats := metrics.GetStats()
	assert.Equal(t, int64(4), stats.AllocateCount)
	assert.Equal(t, int64(3), stats.AllocateErrors)
	assert.Equal(t, int64(2), stats.DeallocateCount)
	assert.Equal(t, int64(1), stats.DeallocateErrors)
}

func TestAllocator_MemoryLimit(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1024})

	a, err := NewAllocator(64, 16, WithResourceController(rc))
	require.NoError(t, err)
	assert.Equal(t, int64(1024), rc.MemoryUsage())

	_, err = NewAllocator(8, 1, WithResourceController(rc))
	assert.ErrorIs(t, err, ErrMemoryLimitExceeded)

	require.NoError(t, a.Close())
	assert.Equal(t, int64(0), rc.MemoryUsage())

	_, err = NewAllocator(64, 32, WithMemoryLimit(1024))
	assert.ErrorIs(t, err, ErrMemoryLimitExceeded)
}

func TestAllocator_AsBlockAllocator(t *testing.T) {
	var ba BlockAllocator
	a, err := NewAllocator(8, 3)
	require.NoError(t, err)
	defer a.Close()
	ba = a

	blocks := make([]Block, 0, 3)
	for i := 0; i < 3; i++ {
		b, err := ba.Allocate()
		require.NoError(t, err)
		blocks = append(blocks, b)
	}
	for _, b := range blocks {
		require.NoError(t, ba.Deallocate(b))
	}
	assert.Equal(t, 8, ba.BlockSize())
}

func TestAllocator_Concurrent(t *testing.T) {
	const workers = 8

	a, err := NewAllocator(32, 8)
	require.NoError(t, err)
	defer a.Close()

	err = testutil.Parallel(context.Background(), workers, func(_ context.Context, w int) error {
		for i := 0; i < 1000; i++ {
			b, err := a.Allocate()
			if err != nil {
				continue
			}
			buf := b.Bytes()
			for j := range buf {
				buf[j] = byte(w)
			}
			for _, v := range buf {
				if v != byte(w) {
					return assert.AnError
				}
			}
			if err := a.Deallocate(b); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 8, a.Available())
}
