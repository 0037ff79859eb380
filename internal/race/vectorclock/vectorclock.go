// Package vectorclock implements vector clocks for tracking happens-before relations.
//
// Vector clocks are used in FastTrack for read-shared data (rare, promoted case).
// Most operations use lightweight epochs, but when concurrent reads occur, we
// promote to vector clocks to precisely track partial order across all threads.
//
// Key operations:
//   - Join: Synchronization (point-wise maximum) - used on lock acquire
//   - LessOrEqual: Happens-before check (partial order) - used for race detection
//
// Representation: a ChunkedClock grows a backing slice in fixed-size chunks as
// higher thread IDs are touched, and tracks the highest touched TID (maxTID) so
// every hot operation only walks the prefix that is actually in use. Programs
// that never exceed a handful of live goroutines never pay for the full 65536
// thread address space that a dense array would cost.
package vectorclock

import (
	"strings"
	"sync"
)

const (
	// MaxThreads is the largest TID a clock can address (16-bit TID space).
	MaxThreads = 65536

	// growChunk is the number of clock slots allocated at a time as the
	// backing slice grows to cover a newly touched TID.
	growChunk = 256
)

// ChunkedClock is a sparse vector clock: logical time for every thread,
// backed by a slice that grows in fixed-size chunks as new (higher) thread
// IDs are touched.
//
// The zero value is a valid, empty clock (all threads at time 0).
type ChunkedClock struct {
	clocks []uint32
	maxTID uint16
	touched bool // true once any Set/Increment has happened, distinguishes "{}" from "{0:0}"
}

// VectorClock is the public name used throughout the detector for a
// ChunkedClock. Kept as an alias so call sites read "vector clock" (the
// FastTrack terminology) while the underlying representation is chunked
// and sparse rather than a dense fixed-size array.
type VectorClock = ChunkedClock

var clockPool = sync.Pool{
	New: func() interface{} { return &ChunkedClock{} },
}

// New creates an empty chunked clock. No backing storage is allocated until
// a non-zero value is written.
func New() *ChunkedClock {
	return &ChunkedClock{}
}

// NewFromPool fetches a recycled clock from the shared pool, or allocates a
// fresh one if the pool is empty. The returned clock is always reset to
// empty. Pair with Release to return it to the pool.
func NewFromPool() *ChunkedClock {
	vc, _ := clockPool.Get().(*ChunkedClock)
	vc.reset()
	return vc
}

// Release returns the clock to the shared pool for reuse. The clock must
// not be used again after calling Release.
func (vc *ChunkedClock) Release() {
	clockPool.Put(vc)
}

func (vc *ChunkedClock) reset() {
	vc.clocks = vc.clocks[:0]
	vc.maxTID = 0
	vc.touched = false
}

// GetMaxTID returns the highest thread ID ever touched by Set or Increment.
// Returns 0 for a freshly created or reset clock that has never been touched.
func (vc *ChunkedClock) GetMaxTID() uint16 {
	return vc.maxTID
}

// Clone creates a deep copy of the vector clock. Only the touched prefix is
// copied; the clone allocates its own backing slice.
func (vc *ChunkedClock) Clone() *ChunkedClock {
	clone := &ChunkedClock{}
	clone.CopyFrom(vc)
	return clone
}

// CopyFrom replaces vc's contents with a copy of other's, reusing vc's
// existing backing slice when it is large enough to avoid a reallocation.
func (vc *ChunkedClock) CopyFrom(other *ChunkedClock) {
	n := len(other.clocks)
	if cap(vc.clocks) < n {
		vc.clocks = make([]uint32, n)
	} else {
		vc.clocks = vc.clocks[:n]
	}
	copy(vc.clocks, other.clocks)
	vc.maxTID = other.maxTID
	vc.touched = other.touched
}

// ensure grows the backing slice (in growChunk increments) so index tid is
// addressable, and extends maxTID to cover it.
func (vc *ChunkedClock) ensure(tid uint16) {
	need := int(tid) + 1
	if need > len(vc.clocks) {
		newLen := ((need + growChunk - 1) / growChunk) * growChunk
		if newLen > MaxThreads {
			newLen = MaxThreads
		}
		grown := make([]uint32, newLen)
		copy(grown, vc.clocks)
		vc.clocks = grown
	}
	if tid > vc.maxTID || !vc.touched {
		vc.maxTID = tid
	}
	vc.touched = true
}

// Join performs point-wise maximum: vc = vc ⊔ other.
//
// This is the synchronization operation for happens-before in FastTrack.
// Used when a thread acquires a lock: Ct := Ct ⊔ Lm (thread clock joins lock clock).
func (vc *ChunkedClock) Join(other *ChunkedClock) {
	if other == nil || !other.touched {
		return
	}
	for tid := 0; tid <= int(other.maxTID); tid++ {
		v := other.clocks[tid]
		if v == 0 {
			continue
		}
		if v > vc.Get(uint16(tid)) {
			vc.Set(uint16(tid), v)
		}
	}
}

// LessOrEqual checks partial order: vc ⊑ other.
//
// Returns true if vc[i] <= other[i] for all threads i. Untouched clocks are
// treated as all-zero, so an empty clock is less-or-equal to everything.
func (vc *ChunkedClock) LessOrEqual(other *ChunkedClock) bool {
	if !vc.touched {
		return true
	}
	for tid := 0; tid <= int(vc.maxTID); tid++ {
		v := vc.clocks[tid]
		if v == 0 {
			continue
		}
		var ov uint32
		if other != nil {
			ov = other.Get(uint16(tid))
		}
		if v > ov {
			return false
		}
	}
	return true
}

// HappensBefore checks if this VectorClock happened-before another VectorClock.
//
// This is an alias for LessOrEqual for better API clarity. Used in the
// promoted VarState path to check if a read clock happened-before a write clock.
func (vc *ChunkedClock) HappensBefore(other *ChunkedClock) bool {
	return vc.LessOrEqual(other)
}

// Increment advances the clock for thread tid.
//
// This is called on every memory access by thread tid.
func (vc *ChunkedClock) Increment(tid uint16) {
	vc.ensure(tid)
	vc.clocks[tid]++
}

// Get returns the clock value for thread tid.
func (vc *ChunkedClock) Get(tid uint16) uint32 {
	if int(tid) >= len(vc.clocks) {
		return 0
	}
	return vc.clocks[tid]
}

// Set sets the clock value for thread tid.
func (vc *ChunkedClock) Set(tid uint16, clock uint32) {
	if clock == 0 && int(tid) >= len(vc.clocks) {
		return
	}
	vc.ensure(tid)
	vc.clocks[tid] = clock
}

// String returns a debug representation of the vector clock.
//
// Format: "{tid1:clock1, tid2:clock2, ...}" showing only non-zero clocks,
// in ascending TID order. Used for debugging and race reporting, not on
// the hot path.
func (vc *ChunkedClock) String() string {
	var parts []string
	for tid := 0; tid <= int(vc.maxTID) && tid < len(vc.clocks); tid++ {
		if vc.clocks[tid] != 0 {
			parts = append(parts, itoa(uint32(tid))+":"+itoa(vc.clocks[tid]))
		}
	}
	if len(parts) == 0 {
		return "{}"
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// itoa converts an integer to string without fmt import.
// Simple implementation for debugging output only. This avoids importing
// fmt in the hot-path package graph.
func itoa(n uint32) string {
	if n == 0 {
		return "0"
	}

	tmp := n
	digits := 0
	for tmp > 0 {
		digits++
		tmp /= 10
	}

	buf := make([]byte, digits)
	for i := digits - 1; i >= 0; i-- {
		buf[i] = byte('0' + n%10)
		n /= 10
	}

	return string(buf)
}
