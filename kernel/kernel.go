// Package kernel implements the per-kernel trace accumulators (component F):
// the four structures — read/write spatial, read/write temporal plus
// PC-pair counts — that a single kernel launch's analysis folds observed
// accesses into.
package kernel

import "github.com/sarchlab/redshow/instgraph"

// Direction distinguishes a read access from a write access.
type Direction int

// The two access directions the analyzer tracks separately.
const (
	Read Direction = iota
	Write
)

// ThreadID identifies a GPU thread by its flattened block and thread
// indices.
type ThreadID struct {
	FlatBlockID  uint32
	FlatThreadID uint32
}

// Less orders ThreadID lexicographically by (FlatBlockID, FlatThreadID).
func (t ThreadID) Less(o ThreadID) bool {
	if t.FlatBlockID != o.FlatBlockID {
		return t.FlatBlockID < o.FlatBlockID
	}

	return t.FlatThreadID < o.FlatThreadID
}

// SpatialKey identifies a spatial-trace bucket: the logical allocation and
// the shape of the access into it.
type SpatialKey struct {
	MemoryOpID uint64
	Kind       instgraph.AccessKind
}

// SpatialTrace counts, for each (allocation, access kind) bucket, how many
// times each PC observed each canonicalized value.
type SpatialTrace map[SpatialKey]map[uint64]map[uint64]uint64

// temporalEntry is the last (pc, value) a thread observed at an address.
type temporalEntry struct {
	LastPC    uint64
	LastValue uint64
}

// TemporalTrace records, per thread and address, the most recent access.
type TemporalTrace map[ThreadID]map[uint64]temporalEntry

// PCPairKey identifies the value and access kind attached to one PC-pair
// occurrence. Only the current value is stored — see DESIGN.md's Open
// Questions for why the previous value is not part of the key.
type PCPairKey struct {
	Value uint64
	Kind  instgraph.AccessKind
}

// PCPairs counts, for each (previous PC, current PC) pair, how many times a
// thread touched the same address at the previous PC and then at the
// current PC, broken down by the current (value, kind). The previous value
// is not compared, so a count means "this value was seen at this PC-pair",
// not "same value as last time".
type PCPairs map[uint64]map[uint64]map[PCPairKey]uint64

// Kernel is the per-(cpu_thread, kernel_id) accumulator set.
type Kernel struct {
	KernelID  uint64
	CubinID   uint32
	FuncIndex uint32
	FuncAddr  uint64

	ReadSpatial  SpatialTrace
	WriteSpatial SpatialTrace

	ReadTemporal TemporalTrace
	ReadPCPairs  PCPairs

	WriteTemporal TemporalTrace
	WritePCPairs  PCPairs

	spatialMemoryOpIDs map[uint64]struct{}
}

// New creates an empty accumulator set for one kernel launch.
func New(kernelID uint64, cubinID uint32) *Kernel {
	return &Kernel{
		KernelID:           kernelID,
		CubinID:            cubinID,
		ReadSpatial:        make(SpatialTrace),
		WriteSpatial:       make(SpatialTrace),
		ReadTemporal:       make(TemporalTrace),
		ReadPCPairs:        make(PCPairs),
		WriteTemporal:      make(TemporalTrace),
		WritePCPairs:       make(PCPairs),
		spatialMemoryOpIDs: make(map[uint64]struct{}),
	}
}

// SetOrigin records the function the kernel's entry PC resolved to, the
// first time it becomes known.
func (k *Kernel) SetOrigin(funcIndex uint32, funcAddr uint64) {
	if k.FuncAddr != 0 || k.FuncIndex != 0 {
		return
	}

	k.FuncIndex = funcIndex
	k.FuncAddr = funcAddr
}

func (k *Kernel) spatialTrace(dir Direction) SpatialTrace {
	if dir == Read {
		return k.ReadSpatial
	}

	return k.WriteSpatial
}

func (k *Kernel) temporalTrace(dir Direction) TemporalTrace {
	if dir == Read {
		return k.ReadTemporal
	}

	return k.WriteTemporal
}

func (k *Kernel) pcPairs(dir Direction) PCPairs {
	if dir == Read {
		return k.ReadPCPairs
	}

	return k.WritePCPairs
}

// AddSpatial records one accepted unit-access for spatial redundancy
// analysis. memViewsLimit bounds the number of distinct memory_op_id
// buckets this kernel will ever track spatially across both directions —
// once the cap is reached, accesses to unseen allocations are dropped
// (existing buckets keep accumulating). A non-positive limit disables the
// cap.
func (k *Kernel) AddSpatial(dir Direction, memOpID uint64, kind instgraph.AccessKind, pc, value uint64, memViewsLimit int) {
	if memViewsLimit > 0 {
		if _, tracked := k.spatialMemoryOpIDs[memOpID]; !tracked {
			if len(k.spatialMemoryOpIDs) >= memViewsLimit {
				return
			}

			k.spatialMemoryOpIDs[memOpID] = struct{}{}
		}
	}

	trace := k.spatialTrace(dir)
	key := SpatialKey{MemoryOpID: memOpID, Kind: kind}

	byPC, ok := trace[key]
	if !ok {
		byPC = make(map[uint64]map[uint64]uint64)
		trace[key] = byPC
	}

	byValue, ok := byPC[pc]
	if !ok {
		byValue = make(map[uint64]uint64)
		byPC[pc] = byValue
	}

	byValue[value]++
}

// UpdateTemporal records one accepted unit-access for temporal redundancy
// analysis: it updates the thread's last-seen (pc, value) at addr, and, if
// the thread had touched addr before, increments the PC-pair count keyed
// by the current (value, kind).
func (k *Kernel) UpdateTemporal(dir Direction, tid ThreadID, addr, pc, value uint64, kind instgraph.AccessKind) {
	temporal := k.temporalTrace(dir)

	byAddr, ok := temporal[tid]
	if !ok {
		byAddr = make(map[uint64]temporalEntry)
		temporal[tid] = byAddr
	}

	prev, hadPrev := byAddr[addr]
	byAddr[addr] = temporalEntry{LastPC: pc, LastValue: value}

	if !hadPrev {
		return
	}

	pairs := k.pcPairs(dir)

	byCurr, ok := pairs[prev.LastPC]
	if !ok {
		byCurr = make(map[uint64]map[PCPairKey]uint64)
		pairs[prev.LastPC] = byCurr
	}

	byKey, ok := byCurr[pc]
	if !ok {
		byKey = make(map[PCPairKey]uint64)
		byCurr[pc] = byKey
	}

	byKey[PCPairKey{Value: value, Kind: kind}]++
}

// ClearThread erases tid's temporal history from both read and write
// traces, as required on a block-exit record: the thread's lifetime is
// over and its history cannot be a predecessor to anything further.
func (k *Kernel) ClearThread(tid ThreadID) {
	delete(k.ReadTemporal, tid)
	delete(k.WriteTemporal, tid)
}
