package shadowmem

import (
	"sync/atomic"

	"github.com/tracewhere/fasttrack/internal/race/vectorclock"
)

// CellWords is N, the number of shadow words held per 8-byte application
// cell. The spec allows N in {2,4,8}; 8 is the default, matching
// ThreadSanitizer's kShadowCnt.
const CellWords = 8

// Cell is an array of CellWords shadow words covering one 8-byte
// application cell. Each word is stored as a single atomic machine word:
// reads and writes race freely (per the concurrency model, a lost update
// may miss a race but must never invent one), so no lock guards the
// array itself.
type Cell struct {
	words [CellWords]atomic.Uint64
	next  atomic.Uint32 // round-robin eviction cursor, deterministic per cell
}

// AccessResult reports the outcome of a MemoryAccess check against a cell.
type AccessResult struct {
	// Race is true if cur conflicts with a previously recorded word.
	Race bool
	// Old is the conflicting previously recorded word (valid only if Race).
	Old Word
}

// Access runs the core race-detection rule (the "MemoryAccess" algorithm)
// of a single candidate word cur against every existing word in the cell,
// using clock to test happens-before against foreign threads, then
// installs cur into the cell.
//
// This mirrors step 4-5 of the access rule: steps 1-2 (ignore bit, epoch
// bump, trace append) happen in the caller before Access is reached, and
// step 3 (locating the cell) is the table lookup that produced c.
func (c *Cell) Access(cur Word, clock *vectorclock.VectorClock) AccessResult {
	freeSlot := -1
	sameRangeSlot := -1

	for i := 0; i < CellWords; i++ {
		old := Word(c.words[i].Load())

		if old.IsZero() {
			if freeSlot == -1 {
				freeSlot = i
			}
			continue
		}

		if old.SameThreadRange(cur) {
			// Same thread, same byte range: overwrite in place, done.
			sameRangeSlot = i
			continue
		}

		if !old.Overlaps(cur) {
			continue
		}

		if old.TID() == cur.TID() {
			// Same thread, overlapping but different range: never a race;
			// a wider/stronger access may still replace the narrower one,
			// but any slot works for that, so no special handling needed.
			continue
		}

		// Different threads, overlapping ranges: ordered by happens-before?
		if old.Clock() <= uint64(clock.Get(old.TID())) {
			continue // happens-before holds, no race
		}
		if !old.IsWrite() && !cur.IsWrite() {
			continue // both reads, no race regardless of ordering
		}

		c.install(cur, sameRangeSlot, freeSlot)
		return AccessResult{Race: true, Old: old}
	}

	c.install(cur, sameRangeSlot, freeSlot)
	return AccessResult{}
}

// install writes cur into the cell, preferring (in order): the slot
// holding the same thread's same-range word, a free slot, or the next
// victim from the round-robin cursor.
func (c *Cell) install(cur Word, sameRangeSlot, freeSlot int) {
	var idx int
	switch {
	case sameRangeSlot != -1:
		idx = sameRangeSlot
	case freeSlot != -1:
		idx = freeSlot
	default:
		idx = int(c.next.Add(1)-1) % CellWords
	}
	c.words[idx].Store(uint64(cur))
}

// Words returns a snapshot of the cell's current shadow words, in slot
// order. Zero entries mean "no access recorded" for that slot. Intended
// for reporting and tests, not the hot path.
func (c *Cell) Words() [CellWords]Word {
	var out [CellWords]Word
	for i := range out {
		out[i] = Word(c.words[i].Load())
	}
	return out
}

// Reset clears every slot, forgetting all recorded accesses.
func (c *Cell) Reset() {
	for i := range c.words {
		c.words[i].Store(0)
	}
	c.next.Store(0)
}
