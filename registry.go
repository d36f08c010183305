package lockfree

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/lockfree/internal/hazard"
)

// SlotsPerParticipant is the number of hazard pointers each participant
// publishes.
const SlotsPerParticipant = hazard.SlotsPerRecord

// Participant is a goroutine's registration in a Registry. It must be owned
// by one goroutine at a time and unregistered when that goroutine is done.
type Participant = hazard.Record

// Reclaimer frees a retired node once no participant protects it.
type Reclaimer = hazard.Reclaimer

// ReclaimFunc adapts a function to the Reclaimer interface.
type ReclaimFunc = hazard.ReclaimFunc

// RegistryStats is a snapshot of registry counters.
type RegistryStats = hazard.Stats

// Registry tracks hazard pointers for every participant of the queues that
// share it and decides when retired nodes may be recycled.
type Registry struct {
	reg    *hazard.Registry
	opts   options
	logger *Logger

	mu      sync.Mutex
	stopped chan struct{}
	cancel  context.CancelFunc
}

// NewRegistry creates a registry with room for maxParticipants concurrent
// participants.
func NewRegistry(maxParticipants int, opts ...Option) (*Registry, error) {
	o := applyOptions(opts)

	r := &Registry{
		opts:   o,
		logger: o.logger.WithContainer("registry").WithCapacity(maxParticipants),
	}

	reg, err := hazard.NewRegistry(maxParticipants,
		hazard.WithRetireThreshold(o.retireThreshold),
		hazard.WithLogger(r.logger.Logger),
		hazard.WithOnSweep(r.onSweep),
	)
	if err != nil {
		r.logger.LogCreate(context.Background(), "registry", 0, err)
		return nil, err
	}
	r.reg = reg
	r.logger.LogCreate(context.Background(), "registry", 0, nil)

	return r, nil
}

// Register claims a participant slot. It fails with ErrRegistryFull when
// maxParticipants goroutines are registered.
func (r *Registry) Register() (*Participant, error) {
	return r.reg.Register()
}

// Sweep reclaims orphaned nodes left by unregistered participants that no
// hazard protects anymore.
func (r *Registry) Sweep() int {
	return r.reg.Sweep()
}

// StartSweeper runs Sweep every interval in a background goroutine.
//
// The sweeper holds one background worker slot of the resource controller
// and waits for it with ctx. It stops when ctx is done or Stop is called.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidInterval, interval)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped != nil {
		select {
		case <-r.stopped:
			// Exited because its context ended.
			r.cancel()
		default:
			return ErrSweeperRunning
		}
	}

	rc := r.opts.resourceController
	if err := rc.AcquireBackground(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	stopped := make(chan struct{})
	r.cancel = cancel
	r.stopped = stopped

	go func() {
		defer close(stopped)
		defer rc.ReleaseBackground()
		r.reg.Run(ctx, interval)
	}()

	return nil
}

// Stop stops a running sweeper and waits for it to exit.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped == nil {
		return
	}
	r.cancel()
	<-r.stopped
	r.stopped = nil
	r.cancel = nil
}

// Stats returns a snapshot of registry counters.
func (r *Registry) Stats() RegistryStats {
	return r.reg.Stats()
}

func (r *Registry) onSweep(reclaimed int) {
	r.opts.metricsCollector.RecordSweep(reclaimed)
	r.logger.LogSweep(context.Background(), reclaimed, r.reg.Stats().Orphaned)
}
