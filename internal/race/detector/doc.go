// Package detector implements the core data-race detection engine: the
// MemoryAccess rule driving shadow-memory checks, plus synchronization
// primitive tracking (mutex, rwmutex, channels, WaitGroups).
//
// This package provides the OnWrite/OnRead (and byte-range OnWriteRange/
// OnReadRange) handlers called by compiler-instrumented code on every
// memory access, and the OnAcquire/OnRelease/OnChannel*/OnWaitGroup*
// handlers called on every synchronization event.
//
// # Architecture
//
// The detector has four main components:
//
//  1. OnWrite/OnRead/OnWriteRange/OnReadRange: called on every memory access
//  2. internal/race/shadowmem.CellTable/Cell/Word: the production shadow
//     memory, holding up to shadowmem.CellWords packed shadow words per
//     8-byte cell
//  3. internal/race/syncshadow.SyncShadow: release/acquire clocks for
//     mutexes, rwmutexes, channels, and WaitGroups
//  4. internal/race/report.Reporter: suppression filtering, fingerprint
//     dedup, and formatting/emission of confirmed races
//
// # The MemoryAccess rule
//
// Each access bumps the thread's logical clock, builds a packed
// shadowmem.Word describing (thread, clock, byte range, read/write), and
// runs it through the address's Cell: same-thread-same-range accesses
// overwrite in place, same-thread-overlapping accesses never race,
// cross-thread overlapping accesses are checked against the calling
// thread's vector clock for happens-before, and reads never race against
// other reads. A conflicting word produces a report.Desc, which the
// Reporter filters through suppression rules and a fingerprint cache
// before handing it to a report.Sink.
//
// OnWrite/OnRead have no size parameter - every call site in this tree
// instruments a full machine word (offset 0, size 8). Byte-addressed
// accesses that cross a cell boundary go through OnWriteRange/OnReadRange,
// which decompose the range into a byte-at-a-time prefix, an aligned-cell
// body, and a byte-at-a-time suffix.
//
// # LiteRace sampling
//
// When Options.LiteRaceSampling is set above 1, the Sampler (sampler.go)
// selects roughly 1-in-N accesses to actually check against shadow
// memory; the thread's clock still advances on every access regardless,
// so happens-before tracking for other accesses stays correct.
//
// # Configuration
//
// Options (options.go) holds the GORACE-style runtime configuration;
// ParseOptions parses the "key=value key2=value2" string form. Unknown
// keys are forward-compatible no-ops. Options.Suppressions is parsed via
// internal/race/suppress at NewDetectorWithOptions time - a malformed
// suppression rule is a fatal, returned error there.
//
// # Thread Safety
//
// CellTable is lock-free (CAS-based open addressing); Cell's shadow
// words are plain atomics. SyncShadow and Reporter hold their own
// internal locks. Detector's own mutex only guards its aggregate
// counters (Stats, RacesDetected), never the hot-path shadow check.
package detector
