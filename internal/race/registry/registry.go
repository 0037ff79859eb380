// Package registry implements the thread ID lifecycle that backs every
// goroutine's RaceContext.
//
// A race detector cannot just hand out an ever-increasing thread ID: a
// long-running server spawning short-lived goroutines would walk off the
// end of the epoch's 16-bit TID space in minutes. IDs must be reclaimed and
// reused. But reusing a TID the instant its goroutine exits is also wrong:
// a stale epoch or vector-clock entry still referencing that TID (held in
// some shadow memory cell the old goroutine touched) would now be
// misread as belonging to the new goroutine, manufacturing a false
// happens-before edge. Registry defers reuse through a FIFO quarantine so a
// batch of other allocations happens before an ID comes back around.
//
// The lifecycle mirrors ThreadSanitizer's thread context state machine:
//
//	Invalid -> Created -> Running -> Finished -> Dead
//	                                     |
//	                                     v (if Detach called)
//	                                    Dead (immediately, skips waiting for Join)
package registry

import (
	"errors"
	"sync"
)

// State is a point in a thread's lifecycle.
type State int

const (
	Invalid State = iota
	Created
	Running
	Finished
	Dead
)

func (s State) String() string {
	switch s {
	case Invalid:
		return "invalid"
	case Created:
		return "created"
	case Running:
		return "running"
	case Finished:
		return "finished"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// MaxThreads bounds the 16-bit TID space an Epoch can address.
const MaxThreads = 65536

// QuarantineSize is how many finished TIDs sit in the FIFO before the
// oldest becomes eligible for reuse. ThreadSanitizer uses 100; we keep the
// same figure since it is what the original tuning was validated against,
// not a number we have independent grounds to second-guess.
const QuarantineSize = 100

// ErrThreadLimitExceeded is returned by Create when every TID is either
// live or sitting in quarantine. Per the original semantics, this is only
// ever returned when the quarantine is also empty - if quarantined IDs
// exist, the oldest is forced out of quarantine and reused instead of
// failing the create.
var ErrThreadLimitExceeded = errors.New("registry: thread limit exceeded")

// ThreadContext is the lifecycle record for a single TID slot.
type ThreadContext struct {
	TID      uint16
	UID      uint64 // Unique across reuses of the same TID; distinguishes generations.
	State    State
	Detached bool
}

// ThreadLeak describes a thread that was still alive (or merely finished
// but never joined/detached) when the program ended.
type ThreadLeak struct {
	TID   uint16
	UID   uint64
	State State
}

// Registry allocates, tracks, and reclaims thread IDs.
type Registry struct {
	mu sync.Mutex

	threads []ThreadContext // indexed by TID; grows lazily

	quarantine  []uint16 // FIFO of TIDs finished-and-reclaimable, oldest first
	quarantined map[uint16]bool

	nextFreshTID int  // next never-before-used TID; MaxThreads once exhausted
	nextUID      uint64
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{quarantined: make(map[uint16]bool)}
}

func (r *Registry) ensure(tid uint16) {
	need := int(tid) + 1
	if need > len(r.threads) {
		grown := make([]ThreadContext, need)
		copy(grown, r.threads)
		for i := len(r.threads); i < need; i++ {
			grown[i].State = Invalid
		}
		r.threads = grown
	}
}

// popQuarantine removes and returns the oldest quarantined TID, if any.
func (r *Registry) popQuarantine() (uint16, bool) {
	if len(r.quarantine) == 0 {
		return 0, false
	}
	tid := r.quarantine[0]
	r.quarantine = r.quarantine[1:]
	delete(r.quarantined, tid)
	return tid, true
}

// Create allocates a fresh TID, preferring a never-used ID and falling
// back to the oldest quarantined one once the address space is exhausted.
// Returns ErrThreadLimitExceeded only when both a fresh TID and a
// quarantined TID are unavailable.
func (r *Registry) Create() (ThreadContext, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var tid uint16
	if r.nextFreshTID < MaxThreads {
		tid = uint16(r.nextFreshTID)
		r.nextFreshTID++
	} else if q, ok := r.popQuarantine(); ok {
		tid = q
	} else {
		return ThreadContext{}, ErrThreadLimitExceeded
	}

	r.ensure(tid)
	r.nextUID++
	ctx := ThreadContext{TID: tid, UID: r.nextUID, State: Created}
	r.threads[tid] = ctx
	return ctx, nil
}

// Start transitions tid from Created to Running.
func (r *Registry) Start(tid uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(tid) < len(r.threads) && r.threads[tid].State == Created {
		r.threads[tid].State = Running
	}
}

// Finish transitions tid to Finished. If the thread was already marked
// Detached, it is reclaimed into quarantine immediately instead of waiting
// for a Join that will never come - a detached goroutine has no joiner.
func (r *Registry) Finish(tid uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(tid) >= len(r.threads) {
		return
	}
	r.threads[tid].State = Finished
	if r.threads[tid].Detached {
		r.reclaim(tid)
	}
}

// Detach marks tid as detached. If the thread has already finished, it is
// reclaimed into quarantine right away; otherwise reclamation is deferred
// until Finish observes the Detached flag.
func (r *Registry) Detach(tid uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(tid) >= len(r.threads) {
		return
	}
	r.threads[tid].Detached = true
	if r.threads[tid].State == Finished {
		r.reclaim(tid)
	}
}

// Join reclaims tid into quarantine if uid matches the thread currently
// occupying that slot and it has finished. An unknown or already-reused
// uid is a caller bug (double Join, or Join after the slot was recycled);
// this is tolerated silently rather than crashing the detector, matching
// the original's preference for graceful degradation.
func (r *Registry) Join(tid uint16, uid uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(tid) >= len(r.threads) {
		return
	}
	ctx := r.threads[tid]
	if ctx.UID != uid || ctx.State != Finished {
		return
	}
	r.reclaim(tid)
}

// reclaim moves tid into the quarantine FIFO. If the quarantine is full,
// the oldest entry is evicted straight to Dead/reusable-now - this only
// happens under sustained TID pressure, and losing one generation's worth
// of reuse delay there is preferable to growing the quarantine unbounded.
func (r *Registry) reclaim(tid uint16) {
	r.threads[tid].State = Dead
	if r.quarantined[tid] {
		return
	}
	if len(r.quarantine) >= QuarantineSize {
		evicted := r.quarantine[0]
		r.quarantine = r.quarantine[1:]
		delete(r.quarantined, evicted)
	}
	r.quarantine = append(r.quarantine, tid)
	r.quarantined[tid] = true
}

// Get returns the current ThreadContext for tid.
func (r *Registry) Get(tid uint16) (ThreadContext, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(tid) >= len(r.threads) {
		return ThreadContext{}, false
	}
	return r.threads[tid], true
}

// Finalize scans every slot and reports a leak for any thread still in
// Created, Running, or Finished state that was never detached - i.e. a
// goroutine the program never joined or detached before exiting. This
// intentionally includes Finished (not just Running): a finished-but-
// unjoined thread still represents a resource the caller forgot to clean
// up, not a caught false negative.
func (r *Registry) Finalize() []ThreadLeak {
	r.mu.Lock()
	defer r.mu.Unlock()

	var leaks []ThreadLeak
	for _, ctx := range r.threads {
		if ctx.Detached {
			continue
		}
		switch ctx.State {
		case Created, Running, Finished:
			leaks = append(leaks, ThreadLeak{TID: ctx.TID, UID: ctx.UID, State: ctx.State})
		}
	}
	return leaks
}

// Reset clears all state. Not safe for concurrent use with other methods.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.threads = nil
	r.quarantine = nil
	r.quarantined = make(map[uint16]bool)
	r.nextFreshTID = 0
	r.nextUID = 0
}
