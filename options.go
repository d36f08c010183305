package lockfree

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hupe1980/lockfree/resource"
)

// defaultReserveTimeout bounds a memory reservation when the caller's
// context carries no deadline.
const defaultReserveTimeout = 100 * time.Millisecond

type options struct {
	metricsCollector   MetricsCollector
	logger             *Logger
	resourceController *resource.Controller
	offHeap            bool
	zeroOnFree         bool
	alignment          int
	retireThreshold    int
	warnInterval       time.Duration
}

// Option configures pools, allocators, registries and queues.
//
// Every constructor accepts the full option set; options that do not apply
// to a container are ignored (e.g. WithOffHeap for a Pool).
type Option func(*options)

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &lockfree.BasicMetricsCollector{}
//	p, _ := lockfree.NewPool[conn](64, lockfree.WithMetricsCollector(metrics))
//	// ... use p ...
//	stats := metrics.GetStats()
//	fmt.Printf("Acquires: %d, exhausted: %d\n", stats.AcquireCount, stats.AcquireExhausted)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := lockfree.NewJSONLogger(slog.LevelInfo)
//	a, _ := lockfree.NewAllocator(64, 1024, lockfree.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithResourceController shares a resource controller between containers.
// Pools and allocators reserve their arena size from it; registries take a
// background worker slot for StartSweeper.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resourceController = rc
	}
}

// WithMemoryLimit gives the container its own controller limited to bytes.
// If set to 0, memory is tracked but unlimited.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.resourceController = resource.NewController(resource.Config{
			MemoryLimitBytes: bytes,
		})
	}
}

// WithOffHeap backs an allocator's slab with an anonymous memory mapping
// instead of the Go heap.
func WithOffHeap() Option {
	return func(o *options) {
		o.offHeap = true
	}
}

// WithZeroOnFree makes an allocator clear every block on deallocation.
func WithZeroOnFree() Option {
	return func(o *options) {
		o.zeroOnFree = true
	}
}

// WithAlignment sets an allocator's block alignment (power of two, at most 64).
func WithAlignment(align int) Option {
	return func(o *options) {
		o.alignment = align
	}
}

// WithRetireThreshold sets how many retired nodes a participant accumulates
// before it scans the registry's hazards.
func WithRetireThreshold(n int) Option {
	return func(o *options) {
		o.retireThreshold = n
	}
}

// WithWarnInterval sets the minimum interval between exhaustion warnings.
// Defaults to one second.
func WithWarnInterval(d time.Duration) Option {
	return func(o *options) {
		o.warnInterval = d
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		warnInterval:     time.Second,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

// reserveMemory reserves bytes from the configured controller.
func (o *options) reserveMemory(ctx context.Context, bytes int64) error {
	if o.resourceController == nil {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultReserveTimeout)
		defer cancel()
	}

	if err := o.resourceController.AcquireMemory(ctx, bytes); err != nil {
		return fmt.Errorf("reserve %d bytes: %w", bytes, err)
	}
	return nil
}

func (o *options) releaseMemory(bytes int64) {
	o.resourceController.ReleaseMemory(bytes)
}
