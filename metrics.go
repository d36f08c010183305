package lockfree

import (
	"sync/atomic"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Collectors are called on the hot path of lock-free operations and must
// themselves be safe for concurrent use and non-blocking.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    acquireCounter   *prometheus.CounterVec
//	    exhaustedCounter prometheus.Counter
//	}
//
//	func (p *PrometheusCollector) RecordAcquire(ok bool) {
//	    if !ok {
//	        p.exhaustedCounter.Inc()
//	    }
//	    // ...
//	}
type MetricsCollector interface {
	// RecordAcquire is called after each pool acquire.
	// ok is false if the pool was exhausted.
	RecordAcquire(ok bool)

	// RecordRelease is called after each pool release.
	// err is nil if successful.
	RecordRelease(err error)

	// RecordAllocate is called after each block allocation.
	RecordAllocate(err error)

	// RecordDeallocate is called after each block deallocation.
	RecordDeallocate(err error)

	// RecordEnqueue is called after each enqueue.
	RecordEnqueue()

	// RecordDequeue is called after each dequeue.
	// ok is false if the queue was empty.
	RecordDequeue(ok bool)

	// RecordSweep is called after each registry sweep with the number of
	// reclaimed orphan nodes.
	RecordSweep(reclaimed int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAcquire(bool)     {}
func (NoopMetricsCollector) RecordRelease(error)    {}
func (NoopMetricsCollector) RecordAllocate(error)   {}
func (NoopMetricsCollector) RecordDeallocate(error) {}
func (NoopMetricsCollector) RecordEnqueue()         {}
func (NoopMetricsCollector) RecordDequeue(bool)     {}
func (NoopMetricsCollector) RecordSweep(int)        {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AcquireCount     atomic.Int64
	AcquireExhausted atomic.Int64
	ReleaseCount     atomic.Int64
	ReleaseErrors    atomic.Int64
	AllocateCount    atomic.Int64
	AllocateErrors   atomic.Int64
	DeallocateCount  atomic.Int64
	DeallocateErrors atomic.Int64
	EnqueueCount     atomic.Int64
	DequeueCount     atomic.Int64
	DequeueEmpty     atomic.Int64
	SweepCount       atomic.Int64
	SweepReclaimed   atomic.Int64
}

// RecordAcquire implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAcquire(ok bool) {
	b.AcquireCount.Add(1)
	if !ok {
		b.AcquireExhausted.Add(1)
	}
}

// RecordRelease implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRelease(err error) {
	b.ReleaseCount.Add(1)
	if err != nil {
		b.ReleaseErrors.Add(1)
	}
}

// RecordAllocate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAllocate(err error) {
	b.AllocateCount.Add(1)
	if err != nil {
		b.AllocateErrors.Add(1)
	}
}

// RecordDeallocate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDeallocate(err error) {
	b.DeallocateCount.Add(1)
	if err != nil {
		b.DeallocateErrors.Add(1)
	}
}

// RecordEnqueue implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEnqueue() {
	b.EnqueueCount.Add(1)
}

// RecordDequeue implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDequeue(ok bool) {
	b.DequeueCount.Add(1)
	if !ok {
		b.DequeueEmpty.Add(1)
	}
}

// RecordSweep implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSweep(reclaimed int) {
	b.SweepCount.Add(1)
	b.SweepReclaimed.Add(int64(reclaimed))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AcquireCount:     b.AcquireCount.Load(),
		AcquireExhausted: b.AcquireExhausted.Load(),
		ReleaseCount:     b.ReleaseCount.Load(),
		ReleaseErrors:    b.ReleaseErrors.Load(),
		AllocateCount:    b.AllocateCount.Load(),
		AllocateErrors:   b.AllocateErrors.Load(),
		DeallocateCount:  b.DeallocateCount.Load(),
		DeallocateErrors: b.DeallocateErrors.Load(),
		EnqueueCount:     b.EnqueueCount.Load(),
		DequeueCount:     b.DequeueCount.Load(),
		DequeueEmpty:     b.DequeueEmpty.Load(),
		SweepCount:       b.SweepCount.Load(),
		SweepReclaimed:   b.SweepReclaimed.Load(),
	}
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AcquireCount     int64
	AcquireExhausted int64
	ReleaseCount     int64
	ReleaseErrors    int64
	AllocateCount    int64
	AllocateErrors   int64
	DeallocateCount  int64
	DeallocateErrors int64
	EnqueueCount     int64
	DequeueCount     int64
	DequeueEmpty     int64
	SweepCount       int64
	SweepReclaimed   int64
}
