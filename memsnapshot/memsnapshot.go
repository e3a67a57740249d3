// Package memsnapshot implements the memory snapshot registry (component
// E): a copy-on-write, host-op-ordered history of the device address space,
// letting the analyzer resolve a runtime address to the logical allocation
// it fell within at the time the trace was captured.
package memsnapshot

import (
	"sort"
	"sync"

	"github.com/sarchlab/redshow/rerror"
)

// Reserved memory_id values the analyzer falls back to when an access
// cannot be matched to a registered range but carries the local/shared
// flag.
const (
	Shared uint64 = 1
	Local  uint64 = 2
)

// Range is a half-open device address range [Start, End).
type Range struct {
	Start uint64
	End   uint64
}

func (r Range) overlaps(o Range) bool {
	return r.Start < o.End && o.Start < r.End
}

// Memory is one logical allocation tracked in a MemoryMap.
type Memory struct {
	Range      Range
	MemoryOpID uint64
	MemoryID   uint64
}

// MemoryMap is an immutable, Range-sorted snapshot of the device address
// space at one point in host-op time.
type MemoryMap struct {
	entries []Memory
}

func newMemoryMap() *MemoryMap {
	return &MemoryMap{}
}

// Find returns the allocation containing addr, if any.
func (m *MemoryMap) Find(addr uint64) (Memory, bool) {
	i := sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].Range.Start > addr
	})

	if i == 0 {
		return Memory{}, false
	}

	candidate := m.entries[i-1]
	if addr < candidate.Range.End {
		return candidate, true
	}

	return Memory{}, false
}

func (m *MemoryMap) withInserted(rng Range, memoryOpID, memoryID uint64) (*MemoryMap, error) {
	for _, e := range m.entries {
		if e.Range.overlaps(rng) {
			return nil, rerror.New(rerror.DuplicateEntry, "memsnapshot.Register", nil)
		}
	}

	next := &MemoryMap{entries: make([]Memory, len(m.entries), len(m.entries)+1)}
	copy(next.entries, m.entries)
	next.entries = append(next.entries, Memory{Range: rng, MemoryOpID: memoryOpID, MemoryID: memoryID})
	sort.Slice(next.entries, func(i, j int) bool { return next.entries[i].Range.Start < next.entries[j].Range.Start })

	return next, nil
}

func (m *MemoryMap) withRemoved(rng Range) (*MemoryMap, error) {
	idx := -1

	for i, e := range m.entries {
		if e.Range == rng {
			idx = i
			break
		}
	}

	if idx == -1 {
		return nil, rerror.New(rerror.NotExistEntry, "memsnapshot.Unregister", nil)
	}

	next := &MemoryMap{entries: make([]Memory, 0, len(m.entries)-1)}
	next.entries = append(next.entries, m.entries[:idx]...)
	next.entries = append(next.entries, m.entries[idx+1:]...)

	return next, nil
}

type versionedMap struct {
	hostOpID uint64
	snapshot *MemoryMap
}

// Registry holds the snapshot history: an ordered map from host_op_id to
// MemoryMap.
type Registry struct {
	mu       sync.RWMutex
	versions []versionedMap
}

// NewRegistry returns a registry with no snapshots.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds [start, end) to the snapshot history at hostOpID, copying
// forward from the greatest prior snapshot (<= hostOpID), or starting an
// empty map if there is none. It fails with rerror.DuplicateEntry if the
// range overlaps any range in that base snapshot, and with
// rerror.NotExistEntry if start >= end.
func (r *Registry) Register(start, end, hostOpID, memoryID uint64) error {
	if start >= end {
		return rerror.New(rerror.NotExistEntry, "Register", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	base := r.baseAt(hostOpID)

	next, err := base.withInserted(Range{Start: start, End: end}, hostOpID, memoryID)
	if err != nil {
		return err
	}

	r.publish(hostOpID, next)

	return nil
}

// Unregister removes [start, end) from the snapshot history at hostOpID. It
// fails with rerror.NotExistEntry if the range is not present in the base
// snapshot.
func (r *Registry) Unregister(start, end, hostOpID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	base := r.baseAt(hostOpID)

	next, err := base.withRemoved(Range{Start: start, End: end})
	if err != nil {
		return err
	}

	r.publish(hostOpID, next)

	return nil
}

// baseAt returns the greatest snapshot with key <= hostOpID, or an empty
// map if there is none. Caller must hold r.mu.
func (r *Registry) baseAt(hostOpID uint64) *MemoryMap {
	i := sort.Search(len(r.versions), func(i int) bool {
		return r.versions[i].hostOpID > hostOpID
	})

	if i == 0 {
		return newMemoryMap()
	}

	return r.versions[i-1].snapshot
}

// publish inserts or replaces the snapshot at hostOpID. Caller must hold
// r.mu.
func (r *Registry) publish(hostOpID uint64, snap *MemoryMap) {
	i := sort.Search(len(r.versions), func(i int) bool {
		return r.versions[i].hostOpID >= hostOpID
	})

	if i < len(r.versions) && r.versions[i].hostOpID == hostOpID {
		r.versions[i].snapshot = snap
		return
	}

	r.versions = append(r.versions, versionedMap{})
	copy(r.versions[i+1:], r.versions[i:])
	r.versions[i] = versionedMap{hostOpID: hostOpID, snapshot: snap}
}

// Lookup resolves addr under the snapshot applicable at host op hostOpID:
// the greatest snapshot key <= hostOpID. It returns the memory_op_id of the
// allocation containing addr, or ok=false if unmatched.
func (r *Registry) Lookup(hostOpID, addr uint64) (memoryOpID uint64, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := r.baseAt(hostOpID)

	mem, found := snap.Find(addr)
	if !found {
		return 0, false
	}

	return mem.MemoryOpID, true
}

// Prune removes every snapshot with key < minHostOpIDSeen except the
// greatest such key, which is retained as the base for any still-in-flight
// analysis.
func (r *Registry) Prune(minHostOpIDSeen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	keep := sort.Search(len(r.versions), func(i int) bool {
		return r.versions[i].hostOpID >= minHostOpIDSeen
	})

	if keep <= 1 {
		return
	}

	// Retain versions[keep-1] as the base, drop everything strictly
	// before it.
	trimmed := make([]versionedMap, 0, len(r.versions)-keep+1)
	trimmed = append(trimmed, r.versions[keep-1:]...)
	r.versions = trimmed
}
