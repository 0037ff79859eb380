// Package synctab implements a sharded address-to-syncvar table.
//
// A single mutex guarding one map of every synchronization object in the
// program serializes every Lock/Unlock/channel op across all goroutines,
// which defeats the purpose of a low-overhead detector. Real detectors
// (ThreadSanitizer's SyncTab foremost among them) split the table into a
// fixed number of independently-locked parts, indexed by a hash of the
// object's address, so that two unrelated mutexes almost never contend on
// the table itself.
//
// Table is intentionally generic over the value stored per address: the
// detector uses it to hold *syncshadow.SyncVar, but the sharding and
// locking discipline (GetAndLock / GetAndRemove) are independent of that
// payload type.
package synctab

import "sync"

// numShards is the number of independent parts the table is split into.
// ThreadSanitizer uses 31; we use a power of two so PartIdx is a mask
// rather than a modulo.
const numShards = 32

// shard holds one independently-locked slice of the address space.
type shard struct {
	mu   sync.RWMutex
	vars map[uintptr]any
}

// Table is a sharded map from address to an arbitrary per-address value.
type Table struct {
	shards [numShards]shard
}

// New creates an empty table. Shards allocate their backing maps lazily.
func New() *Table {
	return &Table{}
}

// partIdx selects the shard for addr. Addresses to sync primitives are
// pointers, so they are naturally aligned; mixing in the high bits via a
// multiplicative hash before masking keeps nearby allocations (typical of
// structs holding several mutexes) from landing in the same shard.
func partIdx(addr uintptr) uintptr {
	h := uint64(addr) * 0x9E3779B97F4A7C15
	return uintptr(h>>58) & (numShards - 1)
}

// GetAndLock returns the shard covering addr, already read-locked if write
// is false or write-locked if write is true. The caller must call Unlock
// (shard.mu.RUnlock or shard.mu.Unlock, matching the lock taken) when done
// inspecting or mutating the returned map entry.
//
// This mirrors SyncTab::GetAndLock's two-phase approach: callers that only
// need to read an existing entry take the cheaper read lock, and only
// creators of new entries pay for the write lock.
func (t *Table) getAndLock(addr uintptr, write bool) *shard {
	s := &t.shards[partIdx(addr)]
	if write {
		s.mu.Lock()
	} else {
		s.mu.RLock()
	}
	return s
}

// GetOrCreate returns the value stored at addr, calling newVal to create one
// if none exists yet. The zero-cost path (entry already present) only takes
// a read lock on the owning shard.
func (t *Table) GetOrCreate(addr uintptr, newVal func() any) any {
	s := t.getAndLock(addr, false)
	if v, ok := s.vars[addr]; ok {
		s.mu.RUnlock()
		return v
	}
	s.mu.RUnlock()

	// Slow path: upgrade to a write lock and re-check, since another
	// goroutine may have raced us between the unlock above and here.
	s = t.getAndLock(addr, true)
	defer s.mu.Unlock()
	if v, ok := s.vars[addr]; ok {
		return v
	}
	if s.vars == nil {
		s.vars = make(map[uintptr]any)
	}
	v := newVal()
	s.vars[addr] = v
	return v
}

// GetAndRemove deletes and returns the value at addr, if any. Used when a
// synchronization object is explicitly destroyed (e.g. a mutex freed via
// sync.Pool) to reclaim its table slot instead of leaking it for the life
// of the program.
func (t *Table) GetAndRemove(addr uintptr) (any, bool) {
	s := &t.shards[partIdx(addr)]
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vars[addr]
	if ok {
		delete(s.vars, addr)
	}
	return v, ok
}

// Reset clears every shard. Not safe for concurrent use with other methods;
// callers must ensure no other goroutine is using the table.
func (t *Table) Reset() {
	for i := range t.shards {
		t.shards[i].mu.Lock()
		t.shards[i].vars = nil
		t.shards[i].mu.Unlock()
	}
}

// Len returns the total number of entries across all shards. Intended for
// diagnostics and tests, not the hot path.
func (t *Table) Len() int {
	n := 0
	for i := range t.shards {
		t.shards[i].mu.RLock()
		n += len(t.shards[i].vars)
		t.shards[i].mu.RUnlock()
	}
	return n
}
