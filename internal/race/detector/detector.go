package detector

import (
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tracewhere/fasttrack/internal/race/goroutine"
	"github.com/tracewhere/fasttrack/internal/race/registry"
	"github.com/tracewhere/fasttrack/internal/race/report"
	"github.com/tracewhere/fasttrack/internal/race/shadowmem"
	"github.com/tracewhere/fasttrack/internal/race/suppress"
	"github.com/tracewhere/fasttrack/internal/race/syncshadow"
	"github.com/tracewhere/fasttrack/internal/race/tracebuf"
)

// Stats tracks operation counters for the detector's hot path.
//
// These replace the old adaptive-representation promotion/demotion
// counters (there is no more promotion: every cell always holds up to
// shadowmem.CellWords distinct words) with the counters that actually
// describe the packed-Word engine's behavior.
type Stats struct {
	TotalReads      uint64 // Total read operations.
	TotalWrites     uint64 // Total write operations.
	SampledAccesses uint64 // Accesses actually checked (LiteRace sampling).
	SkippedAccesses uint64 // Accesses skipped by LiteRace sampling.
}

// Detector implements the core race detection engine: a packed-shadow-
// word/cell memory model (internal/race/shadowmem.Word/Cell/CellTable)
// driving the MemoryAccess rule, plus synchronization-primitive tracking
// (mutex, rwmutex, channels, WaitGroups) via internal/race/syncshadow.
type Detector struct {
	// shadowMemory is the production shadow-memory table: a lock-free,
	// open-addressed array mapping an address to its *shadowmem.Cell -
	// up to shadowmem.CellWords distinct (thread, epoch, range) shadow
	// words per address, checked by the real MemoryAccess rule instead
	// of the single-epoch-plus-promotion heuristic the teacher's
	// VarState used (see shadowmem/doc.go for why VarState/CASBasedShadow
	// remain in the tree as a benchmark comparison arm, not production).
	shadowMemory *shadowmem.CellTable

	// syncShadow stores SyncVar cells for all synchronization primitives.
	// This tracks release clocks for mutexes, rwmutexes, channels, etc.
	syncShadow *syncshadow.SyncShadow

	// reporter applies suppression and fingerprint dedup before handing
	// a finding to its Sink. Built from Options.Suppressions.
	reporter *report.Reporter

	// opts holds the parsed GORACE-style configuration this detector was
	// built with.
	opts Options

	// sampler decides, per Options.LiteRaceSampling, whether a given
	// access is actually checked against shadow memory. Nil/disabled
	// means every access is checked.
	sampler *Sampler

	// racesDetected counts the total number of UNIQUE races found (after
	// the reporter's fingerprint dedup), for testing and reporting.
	racesDetected int

	// stats tracks hot-path operation counters.
	stats Stats

	// traces holds each thread's tracebuf.Trace, indexed by TID, lazily
	// created on first access. Reconstructing an old access's call stack
	// for a race report walks the owning thread's ring here instead of
	// requiring every shadow word to carry its own captured stack.
	traces [registry.MaxThreads]atomic.Pointer[tracebuf.Trace]

	// threads is the thread ID lifecycle registry: allocation, quarantine,
	// and leak detection for every TID a front end hands to
	// OnThreadCreate. A front end that cannot observe explicit thread
	// lifecycle events (this tree's lazy per-access TID allocation in
	// internal/race/api keeps its own separate registry.Registry instead,
	// since it never sees a parent-child relationship to release/acquire
	// across) does not need to touch this field at all.
	threads *registry.Registry

	// mu protects racesDetected and stats updates.
	mu sync.Mutex
}

// NewDetector creates a race detector with DefaultOptions and a
// stderr-emitting reporter.
func NewDetector() *Detector {
	d, _ := NewDetectorWithOptions(DefaultOptions())
	return d
}

// NewDetectorWithOptions builds a detector from parsed Options: wiring
// opts.Suppressions through internal/race/suppress into the reporter, and
// opts.LiteRaceSampling into a Sampler guarding the hot path. Returns an
// error if the suppression text fails to parse, per spec.md §7's
// suppression-parse-failure-is-fatal-at-init rule; the caller decides how
// to surface that (the front end's fatal()-and-exit path, not this
// package's concern).
func NewDetectorWithOptions(opts Options) (*Detector, error) {
	var rules *suppress.Rules
	if strings.TrimSpace(opts.Suppressions) != "" {
		parsed, err := suppress.ParseString(opts.Suppressions)
		if err != nil {
			return nil, err
		}
		rules = parsed
	}

	sampler := NewSampler(SamplerConfig{
		Enabled: opts.LiteRaceSampling > 1,
		Rate:    uint64(opts.LiteRaceSampling),
	})

	return &Detector{
		shadowMemory: shadowmem.NewCellTable(),
		syncShadow:   syncshadow.NewSyncShadow(),
		reporter:     report.NewReporter(report.NewStderrSink(), rules),
		opts:         opts,
		sampler:      sampler,
		threads:      registry.New(),
	}, nil
}

// threadSyncAddr maps a TID to a synthetic address for that thread's
// dedicated ThreadContext.sync (§4.3), distinct from any real application
// address: the bitwise complement of a 16-bit TID is never a valid
// heap/stack pointer on any real platform, so it is safe to key into the
// same syncShadow table real mutexes and channels use.
func threadSyncAddr(tid uint16) uintptr {
	return ^uintptr(tid)
}

// OnThreadCreate allocates a TID for a new child thread and releases the
// parent's clock into that thread's dedicated sync var, implementing
// §4.3's "thread create: release from parent into a fresh
// ThreadContext.sync." The returned ThreadContext.TID is what the child
// passes to OnThreadStart once it actually begins running.
func (d *Detector) OnThreadCreate(parent *goroutine.RaceContext) (registry.ThreadContext, error) {
	tctx, err := d.threads.Create()
	if err != nil {
		return tctx, err
	}
	syncVar := d.syncShadow.GetOrCreate(threadSyncAddr(tctx.TID))
	syncVar.SetReleaseClock(parent.C)
	parent.IncrementClock()
	return tctx, nil
}

// OnThreadStart transitions a thread to Running and has it acquire the
// clock its parent released at OnThreadCreate, implementing §4.3's "thread
// start: new thread acquires from its ThreadContext.sync."
func (d *Detector) OnThreadStart(ctx *goroutine.RaceContext) {
	d.threads.Start(ctx.TID)
	syncVar := d.syncShadow.GetOrCreate(threadSyncAddr(ctx.TID))
	if releaseClock := syncVar.GetReleaseClock(); releaseClock != nil {
		ctx.C.Join(releaseClock)
	}
	ctx.IncrementClock()
}

// OnThreadFinish marks a thread Finished and releases its clock into its
// ThreadContext.sync for a future Join to acquire, per §4.3.
func (d *Detector) OnThreadFinish(ctx *goroutine.RaceContext) {
	syncVar := d.syncShadow.GetOrCreate(threadSyncAddr(ctx.TID))
	syncVar.SetReleaseClock(ctx.C)
	ctx.IncrementClock()
	d.threads.Finish(ctx.TID)
}

// OnThreadJoin acquires the finished child's clock into the joiner and
// reclaims the child's TID into quarantine, implementing §4.3's "thread
// join: acquire from target's sync; move target to Dead quarantine."
func (d *Detector) OnThreadJoin(joiner *goroutine.RaceContext, childTID uint16, childUID uint64) {
	syncVar := d.syncShadow.GetOrCreate(threadSyncAddr(childTID))
	if releaseClock := syncVar.GetReleaseClock(); releaseClock != nil {
		joiner.C.Join(releaseClock)
	}
	joiner.IncrementClock()
	d.threads.Join(childTID, childUID)
}

// OnThreadDetach marks tid detached. If it has already finished, the
// registry reclaims it into quarantine immediately; otherwise reclamation
// is deferred until OnThreadFinish observes the detached flag.
func (d *Detector) OnThreadDetach(tid uint16) {
	d.threads.Detach(tid)
}

// ThreadLeaks returns every thread still Created/Running/Finished and
// undetached, per §4.5's finalize-time leak scan.
func (d *Detector) ThreadLeaks() []registry.ThreadLeak {
	return d.threads.Finalize()
}

// OnWrite handles a write access to addr from the goroutine owning ctx.
//
// This is the CRITICAL HOT PATH function - it runs on EVERY instrumented
// write. It implements spec.md §4.2's MemoryAccess rule: bump the
// thread's epoch (step 2), locate the address's shadow cell (step 3),
// and run Cell.Access - the N-shadow-word loop of steps 4-5 - rather than
// the single-epoch-plus-promotion heuristic the benchmark-comparison
// VarState path uses.
//
// This function has no dedicated size parameter: every call site in this
// tree instruments a full machine word, so the access is recorded as
// offset 0, size 8 within its cell. Byte-range accesses go through
// OnWriteRange/OnReadRange instead.
//
//go:nosplit
func (d *Detector) OnWrite(addr uintptr, ctx *goroutine.RaceContext) {
	d.access(addr, 0, 3, true, ctx)
}

// OnRead handles a read access to addr from the goroutine owning ctx.
// See OnWrite for the algorithm and the size-granularity note.
//
//go:nosplit
func (d *Detector) OnRead(addr uintptr, ctx *goroutine.RaceContext) {
	d.access(addr, 0, 3, false, ctx)
}

// OnWriteRange handles a write covering [addr, addr+size), decomposing
// an unaligned or multi-word range into a byte-at-a-time prefix, an
// aligned 8-byte-cell body, and a byte-at-a-time suffix - the same
// three-phase loop tsan_rtl_thread.cc's MemoryAccessRange uses, per
// spec.md §4.2's edge case for accesses that cross a cell boundary.
func (d *Detector) OnWriteRange(addr uintptr, size int, ctx *goroutine.RaceContext) {
	d.accessRange(addr, size, true, ctx)
}

// OnReadRange is OnWriteRange for reads.
func (d *Detector) OnReadRange(addr uintptr, size int, ctx *goroutine.RaceContext) {
	d.accessRange(addr, size, false, ctx)
}

const cellSize = 8

func (d *Detector) accessRange(addr uintptr, size int, isWrite bool, ctx *goroutine.RaceContext) {
	end := addr + uintptr(size)

	// Prefix: byte-at-a-time until the next 8-byte cell boundary.
	for addr < end && addr%cellSize != 0 {
		d.access(addr, uint8(addr%cellSize), 0, isWrite, ctx)
		addr++
	}
	// Body: whole aligned cells at a time.
	for addr+cellSize <= end {
		d.access(addr, 0, 3, isWrite, ctx)
		addr += cellSize
	}
	// Suffix: remaining bytes, one at a time.
	for addr < end {
		d.access(addr, uint8(addr%cellSize), 0, isWrite, ctx)
		addr++
	}
}

// access is the shared MemoryAccess implementation for OnWrite/OnRead and
// the range variants: it bumps the thread's logical clock, builds the
// packed shadow word for this access, and runs it through the address's
// Cell. LiteRace sampling (Options.LiteRaceSampling), when enabled, may
// skip the shadow-memory check entirely for a sampled-out access - the
// clock still advances so happens-before tracking stays correct for
// every OTHER access, only the race check itself is skipped.
//
//go:nosplit
func (d *Detector) access(addr uintptr, offset, sizeLog uint8, isWrite bool, ctx *goroutine.RaceContext) {
	ctx.IncrementClock()

	if isWrite {
		d.mu.Lock()
		d.stats.TotalWrites++
		d.mu.Unlock()
	} else {
		d.mu.Lock()
		d.stats.TotalReads++
		d.mu.Unlock()
	}

	if d.sampler != nil && !d.sampler.ShouldSampleWithStats() {
		d.mu.Lock()
		d.stats.SkippedAccesses++
		d.mu.Unlock()
		return
	}
	d.mu.Lock()
	d.stats.SampledAccesses++
	d.mu.Unlock()

	cellAddr := addr - uintptr(offset)
	cell := d.shadowMemory.GetOrCreate(cellAddr)

	currentEpoch := ctx.GetEpoch()
	tid, clock := currentEpoch.Decode()
	word := shadowmem.NewWord(tid, clock, offset, sizeLog, isWrite)

	d.traceFor(tid).RecordAccess(clock, addr)

	res := cell.Access(word, ctx.C)
	if res.Race {
		d.report(addr, word, res.Old)
	}
}

// traceFor returns tid's trace ring, allocating one on first use.
func (d *Detector) traceFor(tid uint16) *tracebuf.Trace {
	slot := &d.traces[tid]
	if tr := slot.Load(); tr != nil {
		return tr
	}
	tr := tracebuf.New()
	if slot.CompareAndSwap(nil, tr) {
		return tr
	}
	return slot.Load()
}

// OnFuncEnter records a function-entry event on the calling thread's trace
// ring, per spec.md §4.6's shadow-call-stack tracking. Compiler
// instrumentation calls this at the start of every traced function.
func (d *Detector) OnFuncEnter(pc uintptr, ctx *goroutine.RaceContext) {
	_, clock := ctx.GetEpoch().Decode()
	d.traceFor(ctx.TID).PushFunc(clock, pc)
}

// OnFuncExit records a function-exit event, popping the calling thread's
// shadow call stack. Compiler instrumentation calls this at every return
// from a traced function.
func (d *Detector) OnFuncExit(pc uintptr, ctx *goroutine.RaceContext) {
	_, clock := ctx.GetEpoch().Decode()
	d.traceFor(ctx.TID).PopFunc(clock, pc)
}

// report builds and emits a race report for cur racing with old at addr,
// through the Reporter (suppression + fingerprint dedup), and advances
// racesDetected only if the report was not a suppressed or duplicate
// finding.
func (d *Detector) report(addr uintptr, cur, old shadowmem.Word) {
	currentStack := captureStack()

	var oldStack []uintptr
	if tr := d.traceFor(old.TID()); tr != nil {
		if stack, ok := tr.Reconstruct(old.Clock()); ok {
			oldStack = stack
		}
	}

	desc := report.Desc{
		Kind: report.DataRace,
		Ops: []report.AccessDesc{
			{TID: cur.TID(), Addr: addr, Size: cur.Size(), IsWrite: cur.IsWrite(), Stack: currentStack},
			{TID: old.TID(), Addr: addr, Size: old.Size(), IsWrite: old.IsWrite(), Stack: oldStack},
		},
	}

	if d.reporter.Report(desc) {
		d.mu.Lock()
		d.racesDetected++
		d.mu.Unlock()
	}
}

// ReportThreadLeaks converts the registry package's leaked-thread list into
// a single ThreadLeak report and runs it through the same reporter a data
// race uses - suppression and fingerprint dedup included - instead of the
// front end formatting leaks as ad hoc text. Each leaked thread's creation
// stack is reconstructed from its trace ring at epoch 0 (the state of its
// call stack at its first recorded access), the same mechanism report()
// uses to recover a losing access's stack. Returns true if a report was
// actually emitted (not suppressed, not empty).
func (d *Detector) ReportThreadLeaks(leaks []registry.ThreadLeak) bool {
	if len(leaks) == 0 {
		return false
	}
	threadInfos := make([]report.ThreadInfo, len(leaks))
	for i, leak := range leaks {
		info := report.ThreadInfo{TID: leak.TID}
		if tr := d.traceFor(leak.TID); tr != nil {
			if stack, ok := tr.Reconstruct(0); ok {
				info.CreationStack = stack
			}
		}
		threadInfos[i] = info
	}
	return d.reporter.Report(report.Desc{Kind: report.ThreadLeak, Threads: threadInfos})
}

func captureStack() []uintptr {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(4, pcs)
	return pcs[:n]
}

// captureCallerPC grabs only the immediate caller's PC, the cheap
// alternative to captureStack used to benchmark the cost of full stack
// capture against single-frame capture on the hot path.
func captureCallerPC() uintptr {
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	return pcs[0]
}

// RacesDetected returns the total number of unique races reported so far
// (after suppression and fingerprint dedup).
func (d *Detector) RacesDetected() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.racesDetected
}

// Stats returns a copy of the detector's hot-path operation counters.
func (d *Detector) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// OnAcquire handles mutex lock operations (Phase 4 Task 4.1).
//
// This establishes a happens-before edge from the previous Unlock to this Lock.
// The acquiring thread merges the mutex's release clock into its own clock.
//
// Algorithm: FastTrack [FT ACQUIRE]
//  1. Get lock's SyncVar from sync shadow memory
//  2. If lock has release clock: ctx.C.Join(syncVar.releaseClock)
//  3. ctx.IncrementClock()
//
// This implements: Ct := Ct ⊔ Lm (thread clock joins lock clock).
//
// Parameters:
//   - addr: Address of the mutex being locked
//   - ctx: Current goroutine's RaceContext
//
// Thread Safety: Safe for concurrent calls from multiple goroutines.
//
// Performance Target: <500ns per call (VectorClock join overhead acceptable).
//
// Example:
//
//	mu.Lock()  // Compiler inserts: raceacquire(&mu)
//	// OnAcquire merges previous Unlock's clock into current thread
//	x = 42     // Now happens-after previous critical section
//
//go:nosplit
func (d *Detector) OnAcquire(addr uintptr, ctx *goroutine.RaceContext) {
	// Step 1: Get or create SyncVar for this mutex address.
	syncVar := d.syncShadow.GetOrCreate(addr)

	// Step 2: If lock has a release clock, join it with current thread's clock.
	// This establishes happens-before from the previous Unlock.
	releaseClock := syncVar.GetReleaseClock()
	if releaseClock != nil {
		// Ct := Ct ⊔ Lm (thread clock joins lock clock).
		ctx.C.Join(releaseClock)
	}

	// Step 3: Increment logical clock to advance time.
	// This must be done AFTER joining to maintain happens-before invariant.
	ctx.IncrementClock()
}

// OnRelease handles mutex unlock operations (Phase 4 Task 4.1).
//
// This creates a happens-before edge that future Lock operations will synchronize with.
// The releasing thread captures its current clock into the mutex's release clock.
//
// Algorithm: FastTrack [FT RELEASE]
//  1. Get lock's SyncVar
//  2. Set syncVar.releaseClock = ctx.C (copy current thread's clock)
//  3. ctx.IncrementClock()
//
// This implements: Lm := Ct (lock clock = thread clock).
//
// Parameters:
//   - addr: Address of the mutex being unlocked
//   - ctx: Current goroutine's RaceContext
//
// Thread Safety: Safe for concurrent calls from multiple goroutines.
//
// Performance Target: <300ns per call (VectorClock copy overhead acceptable).
//
// Example:
//
//	x = 42       // Write happens-before Unlock
//	mu.Unlock()  // Compiler inserts: racerelease(&mu)
//	// OnRelease captures current clock for next Lock to see
//
//go:nosplit
func (d *Detector) OnRelease(addr uintptr, ctx *goroutine.RaceContext) {
	// Step 1: Get or create SyncVar for this mutex address.
	syncVar := d.syncShadow.GetOrCreate(addr)

	// Step 2: Set lock's release clock to current thread's clock.
	// This captures the happens-before relationship for future Acquires.
	// Lm := Ct (lock clock = thread clock).
	syncVar.SetReleaseClock(ctx.C)

	// Step 3: Increment logical clock to advance time.
	// This must be done AFTER updating release clock to maintain happens-before.
	ctx.IncrementClock()
}

// OnReleaseMerge handles RWMutex write unlock operations (Phase 4 Task 4.1).
//
// This is used for RWMutex.Unlock (write unlock) where multiple readers may have
// overlapping critical sections. We merge the current thread's clock into the
// lock's release clock to capture the union of all happens-before relationships.
//
// Algorithm: FastTrack [FT RELEASE MERGE]
//  1. Get lock's SyncVar
//  2. syncVar.releaseClock = syncVar.releaseClock ⊔ ctx.C (merge clocks)
//  3. ctx.IncrementClock()
//
// This implements: Lm := Lm ⊔ Ct (lock clock merges with thread clock).
//
// Parameters:
//   - addr: Address of the RWMutex being unlocked
//   - ctx: Current goroutine's RaceContext
//
// Thread Safety: Safe for concurrent calls from multiple goroutines.
//
// Performance Target: <500ns per call (VectorClock merge overhead acceptable).
//
// Example (RWMutex scenario):
//
//	// Reader 1
//	mu.RLock()   // Acquire
//	y = x        // Read
//	mu.RUnlock() // ReleaseMerge (merges Reader 1's clock)
//
//	// Reader 2
//	mu.RLock()   // Acquire
//	z = x        // Read
//	mu.RUnlock() // ReleaseMerge (merges Reader 2's clock)
//
//	// Writer
//	mu.Lock()    // Acquire (sees union of Reader 1 and Reader 2 clocks)
//	x = 42       // Write happens-after both readers
//
//go:nosplit
func (d *Detector) OnReleaseMerge(addr uintptr, ctx *goroutine.RaceContext) {
	// Step 1: Get or create SyncVar for this mutex address.
	syncVar := d.syncShadow.GetOrCreate(addr)

	// Step 2: Merge current thread's clock into lock's release clock.
	// This captures the union of happens-before relationships.
	// Lm := Lm ⊔ Ct (lock clock merges with thread clock).
	syncVar.MergeReleaseClock(ctx.C)

	// Step 3: Increment logical clock to advance time.
	ctx.IncrementClock()
}

// === Channel Synchronization Methods (Phase 4 Task 4.2) ===

// OnChannelSendBefore is called BEFORE a channel send operation.
//
// For MVP, this is a no-op placeholder. In future phases, this could be used
// for detecting invalid operations (e.g., send on closed channel).
//
// Parameters:
//   - ch: Address of the channel being sent to
//   - ctx: Current goroutine's RaceContext
//
// Performance Target: <100ns (minimal overhead).
//
//go:nosplit
func (d *Detector) OnChannelSendBefore(ch uintptr, ctx *goroutine.RaceContext) {
	// MVP: No-op. Future: could check if channel is closed.
	_ = ch
	_ = ctx
}

// OnChannelSendAfter is called AFTER a channel send operation completes.
//
// This establishes a happens-before edge from the sender to future receivers.
// The sender's clock is captured into the channel's sendClock.
//
// Algorithm: FastTrack [FT CHANNEL SEND]
//  1. Get channel's SyncVar from sync shadow memory
//  2. Capture sender's clock: ch.sendClock := ctx.C (copy)
//  3. ctx.IncrementClock()
//
// This implements the happens-before relationship:
//   - Send happens-before Receive (for unbuffered and buffered channels)
//
// Parameters:
//   - ch: Address of the channel being sent to
//   - ctx: Current goroutine's RaceContext
//
// Thread Safety: Safe for concurrent calls from multiple goroutines.
//
// Performance Target: <500ns (VectorClock copy overhead acceptable).
//
// Example:
//
//	ch <- value  // Compiler inserts: racechansendbefore(&ch); ...; racechansendafter(&ch)
//	// OnChannelSendAfter captures sender's clock for receiver to see
//
//go:nosplit
func (d *Detector) OnChannelSendAfter(ch uintptr, ctx *goroutine.RaceContext) {
	// Step 1: Get or create SyncVar for this channel address.
	syncVar := d.syncShadow.GetOrCreate(ch)

	// Step 2: Capture sender's clock into channel's sendClock.
	// This makes the sender's logical time visible to future receivers.
	syncVar.SetChannelSendClock(ctx.C)

	// Step 3: Increment logical clock to advance time.
	// This must be done AFTER capturing the clock to maintain happens-before.
	ctx.IncrementClock()
}

// OnChannelRecvBefore is called BEFORE a channel receive operation.
//
// For MVP, this is a no-op placeholder. In future phases, this could be used
// for detecting invalid operations or optimizations.
//
// Parameters:
//   - ch: Address of the channel being received from
//   - ctx: Current goroutine's RaceContext
//
// Performance Target: <100ns (minimal overhead).
//
//go:nosplit
func (d *Detector) OnChannelRecvBefore(ch uintptr, ctx *goroutine.RaceContext) {
	// MVP: No-op.
	_ = ch
	_ = ctx
}

// OnChannelRecvAfter is called AFTER a channel receive operation completes.
//
// This establishes a happens-before edge from the sender to the receiver.
// The receiver merges the sender's clock to observe all the sender's work.
//
// Algorithm: FastTrack [FT CHANNEL RECV]
//  1. Get channel's SyncVar from sync shadow memory
//  2. If channel has sendClock: ctx.C.Join(ch.sendClock)
//  3. If channel is closed: ctx.C.Join(ch.closeClock)
//  4. ctx.IncrementClock()
//
// This implements the happens-before relationship:
//   - Sender's work happens-before Receiver's subsequent work
//
// Parameters:
//   - ch: Address of the channel being received from
//   - ctx: Current goroutine's RaceContext
//
// Thread Safety: Safe for concurrent calls from multiple goroutines.
//
// Performance Target: <500ns (VectorClock join overhead acceptable).
//
// Example:
//
//	value := <-ch  // Compiler inserts: racechanrecvbefore(&ch); ...; racechanrecvafter(&ch)
//	// OnChannelRecvAfter merges sender's clock into receiver
//	// Receiver now happens-after sender
//
//go:nosplit
func (d *Detector) OnChannelRecvAfter(ch uintptr, ctx *goroutine.RaceContext) {
	// Step 1: Get or create SyncVar for this channel address.
	syncVar := d.syncShadow.GetOrCreate(ch)

	// Step 2: If channel has a send clock, join it with receiver's clock.
	// This establishes happens-before from the sender.
	sendClock := syncVar.GetChannelSendClock()
	if sendClock != nil {
		// Ct := Ct ⊔ Csend (receiver clock joins sender clock).
		ctx.C.Join(sendClock)
	}

	// Step 3: If channel is closed, join with close clock.
	// close(ch) happens-before all receives that observe closure.
	if syncVar.IsChannelClosed() {
		closeClock := syncVar.GetChannelCloseClock()
		if closeClock != nil {
			ctx.C.Join(closeClock)
		}
	}

	// Step 4: Optionally capture receiver's clock (for future bidirectional sync).
	// MVP: Store recvClock but don't use it yet.
	syncVar.SetChannelRecvClock(ctx.C)

	// Step 5: Increment logical clock to advance time.
	// This must be done AFTER joining to maintain happens-before invariant.
	ctx.IncrementClock()
}

// OnChannelClose is called when a channel is closed via close(ch).
//
// This establishes a happens-before edge from the closer to all future receives.
// The closer's clock is captured into the channel's closeClock.
//
// Algorithm: FastTrack [FT CHANNEL CLOSE]
//  1. Get channel's SyncVar from sync shadow memory
//  2. Capture closer's clock: ch.closeClock := ctx.C (copy)
//  3. Set ch.isClosed = true
//  4. ctx.IncrementClock()
//
// This implements the happens-before relationship:
//   - close(ch) happens-before all receives that observe closure
//
// Parameters:
//   - ch: Address of the channel being closed
//   - ctx: Current goroutine's RaceContext
//
// Thread Safety: Safe for concurrent calls from multiple goroutines.
//
// Performance Target: <300ns (VectorClock copy overhead acceptable).
//
// Example:
//
//	close(ch)  // Compiler inserts: racechanclose(&ch)
//	// OnChannelClose captures closer's clock
//	// Future receives will merge this clock
//
//go:nosplit
func (d *Detector) OnChannelClose(ch uintptr, ctx *goroutine.RaceContext) {
	// Step 1: Get or create SyncVar for this channel address.
	syncVar := d.syncShadow.GetOrCreate(ch)

	// Step 2: Capture closer's clock into channel's closeClock.
	// This makes the closer's logical time visible to future receivers.
	syncVar.SetChannelCloseClock(ctx.C)

	// Step 3: Increment logical clock to advance time.
	// This must be done AFTER capturing the clock to maintain happens-before.
	ctx.IncrementClock()
}

// === WaitGroup Synchronization Methods (Phase 4 Task 4.3) ===

// OnWaitGroupAdd handles WaitGroup.Add(delta) operations (Phase 4 Task 4.3).
//
// WaitGroup.Add(delta) increments the wait counter. This is typically called
// before spawning goroutines to establish the expected number of Done() calls.
//
// For happens-before tracking, we only track the counter for optional validation.
// The actual happens-before relationship is established by Done() → Wait().
//
// Algorithm:
//  1. Get or create SyncVar for this WaitGroup address
//  2. Increment the counter by delta
//  3. Increment logical clock (WaitGroup operations are synchronization points)
//
// Parameters:
//   - wg: Address of the sync.WaitGroup
//   - delta: The delta to add (positive for Add, negative would be unusual but supported)
//   - ctx: Current goroutine's RaceContext
//
// Thread Safety: Safe for concurrent calls from multiple goroutines.
//
// Performance Target: <200ns (minimal overhead, just counter increment).
//
// Example:
//
//	var wg sync.WaitGroup
//	wg.Add(1)  // Compiler inserts: racewaitgroupadd(&wg, 1)
//	// OnWaitGroupAdd increments counter to 1
//
//go:nosplit
func (d *Detector) OnWaitGroupAdd(wg uintptr, delta int, ctx *goroutine.RaceContext) {
	// Step 1: Get or create SyncVar for this WaitGroup address.
	syncVar := d.syncShadow.GetOrCreate(wg)

	// Step 2: Increment the WaitGroup counter by delta.
	// This is optional for validation but helps detect misuse patterns.
	syncVar.WaitGroupAdd(delta)

	// Step 3: Increment logical clock to advance time.
	// WaitGroup operations are synchronization points.
	ctx.IncrementClock()
}

// OnWaitGroupDone handles WaitGroup.Done() operations (Phase 4 Task 4.3).
//
// WaitGroup.Done() is equivalent to Add(-1). It signals that a goroutine has
// completed its work. This creates a happens-before edge to the corresponding
// Wait() return.
//
// Algorithm:
//  1. Get or create SyncVar for this WaitGroup address
//  2. Merge current thread's clock into the WaitGroup's doneClock
//  3. Decrement the counter
//  4. Increment logical clock
//
// The key insight: All Done() calls merge their clocks into a single doneClock.
// When Wait() returns, the waiter merges this doneClock, seeing all prior work.
//
// Parameters:
//   - wg: Address of the sync.WaitGroup
//   - ctx: Current goroutine's RaceContext
//
// Thread Safety: Safe for concurrent calls from multiple goroutines.
//
// Performance Target: <500ns (VectorClock merge overhead acceptable).
//
// Example:
//
//	// Child goroutine
//	data = 42          // Write
//	wg.Done()          // Compiler inserts: racewaitgroupdone(&wg)
//	// OnWaitGroupDone merges child's clock into doneClock
//
//go:nosplit
func (d *Detector) OnWaitGroupDone(wg uintptr, ctx *goroutine.RaceContext) {
	// Step 1: Get or create SyncVar for this WaitGroup address.
	syncVar := d.syncShadow.GetOrCreate(wg)

	// Step 2: Merge current thread's clock into doneClock.
	// This accumulates the happens-before relationship from this goroutine.
	syncVar.MergeWaitGroupDoneClock(ctx.C)

	// Step 3: Decrement the counter (Done is Add(-1)).
	syncVar.WaitGroupAdd(-1)

	// Step 4: Increment logical clock to advance time.
	ctx.IncrementClock()
}

// OnWaitGroupWaitBefore handles WaitGroup.Wait() BEFORE it blocks (Phase 4 Task 4.3).
//
// This is called before Wait() blocks waiting for all Done() calls.
// For MVP, this is primarily a placeholder for future optimizations or validation.
//
// We could use this to:
//   - Validate that counter > 0 (wait with counter 0 is a no-op)
//   - Track wait start time for performance monitoring
//   - Prepare for happens-before merge
//
// For now, we just increment the clock to mark this synchronization point.
//
// Parameters:
//   - wg: Address of the sync.WaitGroup
//   - ctx: Current goroutine's RaceContext
//
// Thread Safety: Safe for concurrent calls from multiple goroutines.
//
// Performance Target: <100ns (minimal overhead).
//
// Example:
//
//	wg.Wait()  // Compiler inserts: racewaitgroupwaitbefore(&wg); ...; racewaitgroupwaitafter(&wg)
//
//go:nosplit
func (d *Detector) OnWaitGroupWaitBefore(_ uintptr, ctx *goroutine.RaceContext) {
	// For MVP, just increment the clock to mark the synchronization point.
	// Future phases could add validation or monitoring here.
	// Note: wg parameter unused in MVP, but retained for API consistency and future use
	ctx.IncrementClock()
}

// OnWaitGroupWaitAfter handles WaitGroup.Wait() AFTER it returns (Phase 4 Task 4.3).
//
// This is called after Wait() returns, meaning all Done() calls have completed.
// This is the critical happens-before establishment: the waiter merges all
// accumulated Done() clocks into its own clock.
//
// Algorithm:
//  1. Get SyncVar for this WaitGroup address
//  2. Get the accumulated doneClock from all Done() calls
//  3. Merge doneClock into waiter's clock (happens-before)
//  4. Increment logical clock
//
// After this merge, the waiter's clock reflects all work done by goroutines
// that called Done(), establishing happens-before from all children to parent.
//
// Parameters:
//   - wg: Address of the sync.WaitGroup
//   - ctx: Current goroutine's RaceContext
//
// Thread Safety: Safe for concurrent calls from multiple goroutines.
//
// Performance Target: <500ns (VectorClock merge overhead acceptable).
//
// Example:
//
//	wg.Wait()          // Blocks until all Done() calls
//	// OnWaitGroupWaitAfter merges doneClock into parent's clock
//	_ = data           // Parent can now safely read child's writes (no race)
//
//go:nosplit
func (d *Detector) OnWaitGroupWaitAfter(wg uintptr, ctx *goroutine.RaceContext) {
	// Step 1: Get or create SyncVar for this WaitGroup address.
	syncVar := d.syncShadow.GetOrCreate(wg)

	// Step 2: Get the accumulated doneClock from all Done() calls.
	doneClock := syncVar.GetWaitGroupDoneClock()

	// Step 3: Merge doneClock into waiter's clock (happens-before).
	// If doneClock is nil, no Done() calls have occurred yet (unusual but valid).
	if doneClock != nil {
		ctx.C.Join(doneClock)
	}

	// Step 4: Increment logical clock to advance time.
	// This must be done AFTER merging the doneClock to maintain happens-before.
	ctx.IncrementClock()
}

// Reset resets the detector state for testing.
//
// This clears:
//   - All shadow memory cells
//   - All sync shadow memory cells (Phase 4)
//   - Race counter
//   - Reported races deduplication map (Phase 5)
//   - Operation counters (Stats)
//   - Per-thread trace rings and the thread registry
//
// Thread Safety: NOT safe for concurrent access.
// The caller must ensure no other goroutines are using the detector.
//
// This is primarily used in test setup/teardown.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Clear shadow memory.
	d.shadowMemory.Reset()

	// Clear sync shadow memory (Phase 4).
	d.syncShadow.Reset()

	// Reset race counter.
	d.racesDetected = 0

	// Forget previously-reported fingerprints.
	d.reporter.Reset()

	// Reset operation counters.
	d.stats = Stats{}

	// Forget per-thread trace rings.
	for i := range d.traces {
		d.traces[i].Store(nil)
	}

	// Fresh thread registry so TIDs are handed out from 0 again.
	d.threads = registry.New()
}
