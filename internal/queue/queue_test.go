package queue

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lockfree/internal/hazard"
)

func newQueue[T any](t testing.TB, participants int, opts ...hazard.Option) (*Queue[T], *hazard.Registry) {
	t.Helper()

	reg, err := hazard.NewRegistry(participants, opts...)
	require.NoError(t, err)

	q, err := New[T](reg)
	require.NoError(t, err)

	return q, reg
}

func register(t testing.TB, reg *hazard.Registry) *hazard.Record {
	t.Helper()

	rec, err := reg.Register()
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Unregister() })

	return rec
}

func TestNew_NilRegistry(t *testing.T) {
	_, err := New[int](nil)
	assert.ErrorIs(t, err, ErrNilRegistry)
}

func TestQueue_RejectsInvalidParticipants(t *testing.T) {
	q, reg := newQueue[int](t, 2)
	own := register(t, reg)
	q.Enqueue(own, 1)

	other, err := hazard.NewRegistry(1)
	require.NoError(t, err)
	foreign, err := other.Register()
	require.NoError(t, err)

	gone, err := reg.Register()
	require.NoError(t, err)
	require.NoError(t, gone.Unregister())

	tests := []struct {
		name string
		rec  *hazard.Record
		want error
	}{
		{"nil", nil, ErrNilParticipant},
		{"foreign registry", foreign, ErrForeignParticipant},
		{"unregistered", gone, hazard.ErrNotRegistered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.PanicsWithValue(t, tt.want, func() { q.Enqueue(tt.rec, 2) })
			assert.PanicsWithValue(t, tt.want, func() { q.Dequeue(tt.rec) })
			assert.PanicsWithValue(t, tt.want, func() { q.Empty(tt.rec) })
		})
	}

	st := q.Stats()
	assert.Equal(t, uint64(1), st.Enqueues)
	assert.Equal(t, uint64(0), st.Dequeues+st.Empty)
	assert.Equal(t, uint64(0), reg.Stats().Retired)
}

func TestQueue_ForeignParticipantCannotReadNodes(t *testing.T) {
	q, reg := newQueue[int](t, 1, hazard.WithRetireThreshold(1))
	consumer := register(t, reg)

	other, err := hazard.NewRegistry(1)
	require.NoError(t, err)
	reader, err := other.Register()
	require.NoError(t, err)

	// Its hazards would live where the queue's scans never look.
	assert.PanicsWithValue(t, ErrForeignParticipant, func() { q.Enqueue(reader, 10) })

	q.Enqueue(consumer, 10)
	v, ok := q.Dequeue(consumer)
	require.True(t, ok)
	assert.Equal(t, 10, v)
	assert.Equal(t, uint64(1), q.Stats().Recycled)
}

func TestQueue_FIFO(t *testing.T) {
	q, reg := newQueue[int](t, 1)
	rec := register(t, reg)

	assert.True(t, q.Empty(rec))

	q.Enqueue(rec, 1)
	q.Enqueue(rec, 2)
	q.Enqueue(rec, 3)
	assert.False(t, q.Empty(rec))

	for _, want := range []int{1, 2, 3} {
		v, ok := q.Dequeue(rec)
		require.True(t, ok)
		assert.Equal(t, want, v)
	}

	v, ok := q.Dequeue(rec)
	assert.False(t, ok)
	assert.Zero(t, v)
	assert.True(t, q.Empty(rec))

	st := q.Stats()
	assert.Equal(t, uint64(3), st.Enqueues)
	assert.Equal(t, uint64(3), st.Dequeues)
	assert.Equal(t, uint64(1), st.Empty)
}

func TestQueue_EmptyReturnsImmediately(t *testing.T) {
	q, reg := newQueue[string](t, 1)
	rec := register(t, reg)

	for i := 0; i < 100; i++ {
		_, ok := q.Dequeue(rec)
		require.False(t, ok)
	}
	assert.Equal(t, uint64(100), q.Stats().Empty)
}

func TestQueue_HazardsClearedAfterOperations(t *testing.T) {
	q, reg := newQueue[int](t, 2, hazard.WithRetireThreshold(1))
	rec := register(t, reg)
	other := register(t, reg)

	q.Enqueue(rec, 1)
	q.Enqueue(rec, 2)
	_, _ = q.Dequeue(rec)
	_ = q.Empty(rec)

	// Every node dequeued by rec is reclaimable by anyone.
	_, _ = q.Dequeue(other)
	other.Scan()
	rec.Scan()
	assert.Equal(t, int64(0), reg.Stats().Pending)
	assert.Equal(t, uint64(2), q.Stats().Recycled)
}

func TestQueue_DequeuedNodeDeferredWhileProtected(t *testing.T) {
	q, reg := newQueue[int](t, 2, hazard.WithRetireThreshold(1))
	reader := register(t, reg)
	consumer := register(t, reg)

	q.Enqueue(consumer, 10)
	q.Enqueue(consumer, 20)

	// reader is stalled holding the current dummy head.
	head := hazard.Load(reader, slotNode, &q.head)

	v, ok := q.Dequeue(consumer)
	require.True(t, ok)
	assert.Equal(t, 10, v)

	assert.Equal(t, 1, consumer.Pending(), "old head stays retired while protected")
	assert.Equal(t, uint64(0), q.Stats().Recycled)
	assert.NotNil(t, head.next.Load(), "protected node keeps its link")

	reader.ClearAll()
	assert.Equal(t, 1, consumer.Scan())
	assert.Equal(t, uint64(1), q.Stats().Recycled)
}

func TestQueue_RecycledNodesArePoisoned(t *testing.T) {
	q, reg := newQueue[*int](t, 1, hazard.WithRetireThreshold(1))
	rec := register(t, reg)

	v := 42
	q.Enqueue(rec, &v)
	q.Enqueue(rec, &v)

	_, ok := q.Dequeue(rec)
	require.True(t, ok)

	// The first element's node is the dummy now and still carries its value.
	head := q.head.Load()
	require.NotNil(t, head.value)

	_, ok = q.Dequeue(rec)
	require.True(t, ok)

	assert.Nil(t, head.value)
	assert.Nil(t, head.next.Load())
}

func TestQueue_SPSCOrder(t *testing.T) {
	const n = 20000

	q, reg := newQueue[int](t, 2)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		rec, err := reg.Register()
		if err != nil {
			t.Errorf("register: %v", err)
			return
		}
		defer func() { _ = rec.Unregister() }()

		for i := 1; i <= n; i++ {
			q.Enqueue(rec, i)
		}
	}()

	got := make([]int, 0, n)
	go func() {
		defer wg.Done()
		rec, err := reg.Register()
		if err != nil {
			t.Errorf("register: %v", err)
			return
		}
		defer func() { _ = rec.Unregister() }()

		for len(got) < n {
			if v, ok := q.Dequeue(rec); ok {
				got = append(got, v)
			}
		}
	}()

	wg.Wait()

	require.Len(t, got, n)
	for i, v := range got {
		if v != i+1 {
			t.Fatalf("position %d: got %d, want %d", i, v, i+1)
		}
	}
}

type item struct {
	producer int
	seq      int
}

func TestQueue_MPSCConservation(t *testing.T) {
	const (
		producers = 4
		perProd   = 5000
	)

	q, reg := newQueue[item](t, producers+1)

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(id int) {
			defer wg.Done()
			rec, err := reg.Register()
			if err != nil {
				t.Errorf("register: %v", err)
				return
			}
			defer func() { _ = rec.Unregister() }()

			for s := 1; s <= perProd; s++ {
				q.Enqueue(rec, item{producer: id, seq: s})
			}
		}(p)
	}

	rec := register(t, reg)
	last := make([]int, producers)
	total := 0
	for total < producers*perProd {
		it, ok := q.Dequeue(rec)
		if !ok {
			continue
		}
		require.Greater(t, it.seq, last[it.producer], "producer %d out of order", it.producer)
		last[it.producer] = it.seq
		total++
	}
	wg.Wait()

	for p := 0; p < producers; p++ {
		assert.Equal(t, perProd, last[p])
	}
	_, ok := q.Dequeue(rec)
	assert.False(t, ok)
}

func TestQueue_MPMCStress(t *testing.T) {
	const (
		producers = 4
		consumers = 4
		perProd   = 10000
		total     = producers * perProd
	)

	q, reg := newQueue[int](t, producers+consumers, hazard.WithRetireThreshold(4))

	var (
		seen     = make([]atomic.Int32, total+1)
		consumed atomic.Int64
		wg       sync.WaitGroup
	)

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			rec, err := reg.Register()
			if err != nil {
				t.Errorf("register: %v", err)
				return
			}
			defer func() { _ = rec.Unregister() }()

			for s := 0; s < perProd; s++ {
				q.Enqueue(rec, id*perProd+s+1)
			}
		}(p)
	}

	for c := 0; c < consumers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := reg.Register()
			if err != nil {
				t.Errorf("register: %v", err)
				return
			}
			defer func() { _ = rec.Unregister() }()

			for consumed.Load() < total {
				v, ok := q.Dequeue(rec)
				if !ok {
					continue
				}
				if v <= 0 || v > total {
					t.Errorf("dequeued poisoned value %d", v)
					return
				}
				seen[v].Add(1)
				consumed.Add(1)
			}
		}()
	}

	wg.Wait()

	for v := 1; v <= total; v++ {
		if n := seen[v].Load(); n != 1 {
			t.Fatalf("value %d dequeued %d times", v, n)
		}
	}

	reg.Sweep()
	st := reg.Stats()
	assert.Equal(t, int64(0), st.Pending)
	assert.Equal(t, uint64(total), st.Reclaimed)
}

func BenchmarkQueue_EnqueueDequeue(b *testing.B) {
	reg, err := hazard.NewRegistry(256)
	if err != nil {
		b.Fatal(err)
	}
	q, err := New[int](reg)
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		rec, err := reg.Register()
		if err != nil {
			b.Error(err)
			return
		}
		defer func() { _ = rec.Unregister() }()

		i := 0
		for pb.Next() {
			q.Enqueue(rec, i)
			_, _ = q.Dequeue(rec)
			i++
		}
	})
}
