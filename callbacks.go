package redshow

import (
	"github.com/sarchlab/redshow/instgraph"
	"github.com/sarchlab/redshow/kernel"
	"github.com/sarchlab/redshow/report"
)

// AnalysisType is a kind of redundancy analysis that can be independently
// enabled or disabled.
type AnalysisType int

// The two analysis types the engine can run.
const (
	SpatialRedundancy AnalysisType = iota
	TemporalRedundancy
)

// AccessDirection distinguishes a read access from a write access, mirrored
// here from package kernel so consumers of the public API don't need to
// import it directly.
type AccessDirection = kernel.Direction

// Direction values re-exported for callback consumers.
const (
	DirectionRead  = kernel.Read
	DirectionWrite = kernel.Write
)

// AcceptedAccess is one unit-access the analyzer accepted and folded into
// its accumulators, as reported to a registered LogDataCallback.
type AcceptedAccess struct {
	ThreadID  kernel.ThreadID
	Address   uint64
	PC        uint64
	Value     uint64
	Kind      instgraph.AccessKind
	Direction AccessDirection
}

// AnalysisSession identifies one Analyze call's worth of accepted accesses,
// so a log sink can correlate rows from the same buffer without the core
// depending on the sink's storage format.
type AnalysisSession struct {
	ID        string
	CPUThread uint32
	HostOpID  uint64
}

// LogDataCallback receives the raw accepted accesses from one Analyze call.
type LogDataCallback func(cubinID uint32, kernelID uint64, session AnalysisSession, accesses []AcceptedAccess)

// RecordDataCallback receives one top-N summary for a given kernel,
// analysis type, and access direction during Flush.
type RecordDataCallback func(cubinID uint32, kernelID uint64, analysisType AnalysisType, direction AccessDirection, views []report.View)
