// Package redshow is a GPU kernel redundancy analyzer. It ingests per-warp
// memory-access traces captured by an external instrumentation layer and
// detects spatial redundancy (many accesses observing the same value at
// different addresses) and temporal redundancy (one thread repeatedly
// observing the same value at the same address), attributing both back to
// (function_index, pc_offset) pairs for a caller to resolve to source
// lines.
package redshow

// WarpSize is the number of lanes in one warp record.
const WarpSize = 32

// MaxAccessBytes is the largest per-lane access width the instrumentation
// buffer can carry (a 128-bit vector access).
const MaxAccessBytes = 16

// Flags describes the properties of one warp record.
type Flags uint32

// The flag bits an instrumentation record can carry.
const (
	FlagBlockEnter Flags = 1 << iota
	FlagBlockExit
	FlagRead
	FlagWrite
	FlagLocal
	FlagShared
)

// Record is one warp-wide memory-access observation.
type Record struct {
	PC           uint64
	FlatBlockID  uint32
	FlatThreadID uint32
	ActiveMask   uint32
	Size         uint32
	Flags        Flags
	Address      [WarpSize]uint64
	Value        [WarpSize][MaxAccessBytes]byte
}

// Buffer is one trace buffer handed to Analyze: Records[0:HeadIndex) are
// valid.
type Buffer struct {
	Records   []Record
	HeadIndex int
}

func (r Record) laneActive(lane int) bool {
	return r.ActiveMask&(1<<uint(lane)) != 0
}
