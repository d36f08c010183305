package hazard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
	"unsafe"
)

// SlotsPerRecord is the number of hazard slots each participant publishes.
const SlotsPerRecord = 2

const minRetireThreshold = 8

var (
	// ErrInvalidParticipants is returned when maxParticipants is not positive.
	ErrInvalidParticipants = errors.New("hazard: invalid number of participants")
	// ErrRegistryFull is returned by Register when every record is in use.
	ErrRegistryFull = errors.New("hazard: registry full")
	// ErrNotRegistered is returned when unregistering a record twice.
	ErrNotRegistered = errors.New("hazard: record not registered")
)

// Reclaimer frees a retired node once no hazard slot references it.
type Reclaimer interface {
	Reclaim(p unsafe.Pointer)
}

// ReclaimFunc adapts a function to the Reclaimer interface.
type ReclaimFunc func(p unsafe.Pointer)

// Reclaim calls f(p).
func (f ReclaimFunc) Reclaim(p unsafe.Pointer) { f(p) }

type retired struct {
	ptr unsafe.Pointer
	rc  Reclaimer
}

// orphan is a batch of retired nodes left behind by an unregistered record.
// Batches are freshly allocated per push and never reused.
type orphan struct {
	items []retired
	next  *orphan
}

// Stats is a snapshot of registry counters.
type Stats struct {
	MaxParticipants int
	Participants    int    // currently registered records
	Retired         uint64 // nodes handed to Retire
	Reclaimed       uint64 // nodes passed to their Reclaimer
	Pending         int64  // retired but not yet reclaimed, orphans included
	Orphaned        int64  // pending nodes owned by no record
}

// Registry is a fixed-size table of hazard-pointer records.
type Registry struct {
	records   []Record
	threshold int
	logger    *slog.Logger
	onSweep   func(reclaimed int)

	orphans atomic.Pointer[orphan]

	participants atomic.Int64
	retired      atomic.Uint64
	reclaimed    atomic.Uint64
	pending      atomic.Int64
	orphaned     atomic.Int64
}

// Option configures a Registry.
type Option func(*Registry)

// WithRetireThreshold sets the retire list length that triggers a scan.
// Values below 1 keep the default.
func WithRetireThreshold(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.threshold = n
		}
	}
}

// WithLogger sets the logger for the registry.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithOnSweep registers fn to be called after every Sweep with the number
// of reclaimed orphans.
func WithOnSweep(fn func(reclaimed int)) Option {
	return func(r *Registry) {
		r.onSweep = fn
	}
}

// NewRegistry creates a registry with room for maxParticipants records.
func NewRegistry(maxParticipants int, opts ...Option) (*Registry, error) {
	if maxParticipants <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidParticipants, maxParticipants)
	}

	r := &Registry{
		records:   make([]Record, maxParticipants),
		threshold: max(minRetireThreshold, 2*SlotsPerRecord*maxParticipants),
	}
	for i := range r.records {
		r.records[i].reg = r
		r.records[i].id = i
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Register claims a free record for the calling participant.
func (r *Registry) Register() (*Record, error) {
	for i := range r.records {
		rec := &r.records[i]
		if rec.active.Load() || !rec.active.CompareAndSwap(false, true) {
			continue
		}
		r.participants.Add(1)
		return rec, nil
	}
	return nil, fmt.Errorf("%w: %d participants", ErrRegistryFull, len(r.records))
}

// MaxParticipants returns the size of the record table.
func (r *Registry) MaxParticipants() int {
	return len(r.records)
}

// RetireThreshold returns the retire list length that triggers a scan.
func (r *Registry) RetireThreshold() int {
	return r.threshold
}

// Sweep reclaims orphaned nodes that are no longer protected and returns
// how many were reclaimed. It is safe to call from any goroutine.
func (r *Registry) Sweep() int {
	n := r.sweep()
	if r.onSweep != nil {
		r.onSweep(n)
	}
	return n
}

func (r *Registry) sweep() int {
	items := r.takeOrphans(nil)
	if len(items) == 0 {
		return 0
	}

	hazards := r.snapshot(nil)
	keep, n := r.reclaim(items, hazards)
	r.pushOrphans(keep)

	if n > 0 && r.logger != nil {
		r.logger.Debug("hazard: swept orphans", "reclaimed", n, "remaining", len(keep))
	}

	return n
}

// Run sweeps orphans every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Sweep()
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Stats returns a snapshot of the registry counters.
func (r *Registry) Stats() Stats {
	return Stats{
		MaxParticipants: len(r.records),
		Participants:    int(r.participants.Load()),
		Retired:         r.retired.Load(),
		Reclaimed:       r.reclaimed.Load(),
		Pending:         r.pending.Load(),
		Orphaned:        r.orphaned.Load(),
	}
}

// snapshot collects every published hazard into set, allocating it if nil.
func (r *Registry) snapshot(set map[unsafe.Pointer]struct{}) map[unsafe.Pointer]struct{} {
	if set == nil {
		set = make(map[unsafe.Pointer]struct{}, len(r.records)*SlotsPerRecord)
	}
	for i := range r.records {
		for s := range r.records[i].hazards {
			if p := atomic.LoadPointer(&r.records[i].hazards[s]); p != nil {
				set[p] = struct{}{}
			}
		}
	}
	return set
}

// reclaim frees every item not in hazards and returns the survivors,
// compacted in place, together with the number of reclaimed items.
func (r *Registry) reclaim(items []retired, hazards map[unsafe.Pointer]struct{}) ([]retired, int) {
	keep := items[:0]
	for _, it := range items {
		if _, protected := hazards[it.ptr]; protected {
			keep = append(keep, it)
			continue
		}
		it.rc.Reclaim(it.ptr)
	}
	clear(items[len(keep):])

	n := len(items) - len(keep)
	if n > 0 {
		r.reclaimed.Add(uint64(n))
		r.pending.Add(int64(-n))
	}
	return keep, n
}

// takeOrphans detaches the whole orphan list and appends its items to dst.
func (r *Registry) takeOrphans(dst []retired) []retired {
	if r.orphans.Load() == nil {
		return dst
	}
	for o := r.orphans.Swap(nil); o != nil; o = o.next {
		dst = append(dst, o.items...)
		r.orphaned.Add(int64(-len(o.items)))
	}
	return dst
}

func (r *Registry) pushOrphans(items []retired) {
	if len(items) == 0 {
		return
	}

	o := &orphan{items: append([]retired(nil), items...)}
	r.orphaned.Add(int64(len(o.items)))
	for {
		head := r.orphans.Load()
		o.next = head
		if r.orphans.CompareAndSwap(head, o) {
			return
		}
	}
}
