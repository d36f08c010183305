package hazard

import (
	"sync/atomic"
	"unsafe"
)

// Record is one participant's entry in a Registry.
//
// The hazard slots are written by the owner and read by every scanning
// participant. The retire list and the scan scratch space are owner-only.
type Record struct {
	hazards [SlotsPerRecord]unsafe.Pointer
	active  atomic.Bool
	_       [40]byte // pad the shared part to a cache line

	reg     *Registry
	id      int
	retired []retired
	scratch map[unsafe.Pointer]struct{}
}

// ID returns the position of the record in the registry table.
func (rec *Record) ID() int {
	return rec.id
}

// Registry returns the registry the record belongs to.
func (rec *Record) Registry() *Registry {
	return rec.reg
}

// Active reports whether the record is currently registered.
func (rec *Record) Active() bool {
	return rec.active.Load()
}

// Protect publishes p in hazard slot i.
//
// Protecting a node does not make it safe by itself: the caller must
// re-read the shared location p was loaded from and retry if it changed.
func (rec *Record) Protect(i int, p unsafe.Pointer) {
	atomic.StorePointer(&rec.hazards[i], p)
}

// Clear withdraws the hazard in slot i.
func (rec *Record) Clear(i int) {
	atomic.StorePointer(&rec.hazards[i], nil)
}

// ClearAll withdraws every hazard of the record.
func (rec *Record) ClearAll() {
	for i := range rec.hazards {
		atomic.StorePointer(&rec.hazards[i], nil)
	}
}

// Retire hands an unlinked node to the reclamation scheme. rc.Reclaim(p)
// runs once no hazard slot holds p. A scan runs when the retire list
// reaches the registry threshold.
func (rec *Record) Retire(p unsafe.Pointer, rc Reclaimer) {
	rec.retired = append(rec.retired, retired{ptr: p, rc: rc})
	rec.reg.retired.Add(1)
	rec.reg.pending.Add(1)

	if len(rec.retired) >= rec.reg.threshold {
		rec.Scan()
	}
}

// Pending returns the length of the record's retire list.
func (rec *Record) Pending() int {
	return len(rec.retired)
}

// Scan adopts orphaned nodes, then reclaims every retired node that no
// participant protects. Protected nodes stay on the retire list. Scan
// returns the number of reclaimed nodes.
func (rec *Record) Scan() int {
	rec.retired = rec.reg.takeOrphans(rec.retired)
	if len(rec.retired) == 0 {
		return 0
	}

	clear(rec.scratch)
	rec.scratch = rec.reg.snapshot(rec.scratch)

	var n int
	rec.retired, n = rec.reg.reclaim(rec.retired, rec.scratch)

	return n
}

// Unregister releases the record for reuse by another participant.
// Retired nodes that are still protected become orphans of the registry.
func (rec *Record) Unregister() error {
	if !rec.active.Load() {
		return ErrNotRegistered
	}

	rec.ClearAll()
	rec.Scan()

	if len(rec.retired) > 0 {
		rec.reg.pushOrphans(rec.retired)
		if rec.reg.logger != nil {
			rec.reg.logger.Debug("hazard: orphaned retired nodes", "record", rec.id, "count", len(rec.retired))
		}
	}
	clear(rec.retired)
	rec.retired = rec.retired[:0]
	rec.scratch = nil

	rec.reg.participants.Add(-1)
	rec.active.Store(false)

	return nil
}

// Load reads src, publishes the result in slot i of rec and repeats until
// the published pointer is still the value of src. The returned node is
// safe to dereference until slot i is overwritten or cleared.
func Load[T any](rec *Record, i int, src *atomic.Pointer[T]) *T {
	p := src.Load()
	for {
		rec.Protect(i, unsafe.Pointer(p))
		cur := src.Load()
		if cur == p {
			return p
		}
		p = cur
	}
}
