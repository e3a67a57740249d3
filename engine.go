package redshow

import (
	"sync"

	"github.com/sarchlab/redshow/approx"
	"github.com/sarchlab/redshow/cubin"
	"github.com/sarchlab/redshow/kernel"
	"github.com/sarchlab/redshow/memsnapshot"
	"github.com/sarchlab/redshow/rerror"
)

const (
	defaultPCViewsLimit  = 10
	defaultMemViewsLimit = 10
)

type kernelKey struct {
	CubinID  uint32
	KernelID uint64
}

// Engine is the trace-analysis engine: the cubin registry, the memory
// snapshot registry, the per-CPU-thread kernel tables, and the callbacks
// and configuration that govern how a buffer is turned into redundancy
// counts. The zero value is not usable; construct with NewEngine.
type Engine struct {
	mu              sync.RWMutex
	enabledAnalyses map[AnalysisType]bool
	approxLevel     approx.Level

	logCallback    LogDataCallback
	recordCallback RecordDataCallback
	pcViewsLimit   int
	memViewsLimit  int

	minHostOpIDSeen     uint64
	anyAnalysisRecorded bool

	cubins *cubin.Registry
	memory *memsnapshot.Registry

	kernelsMu sync.Mutex
	kernels   map[uint32]map[kernelKey]*kernel.Kernel
}

// NewEngine returns an Engine with every analysis disabled, approximation
// level NONE, and default top-N limits. It performs no environment or
// process-lifecycle side effects — use Default for that.
func NewEngine() *Engine {
	return &Engine{
		enabledAnalyses: make(map[AnalysisType]bool),
		approxLevel:     approx.LevelNone,
		pcViewsLimit:    defaultPCViewsLimit,
		memViewsLimit:   defaultMemViewsLimit,
		cubins:          cubin.NewRegistry(),
		memory:          memsnapshot.NewRegistry(),
		kernels:         make(map[uint32]map[kernelKey]*kernel.Kernel),
	}
}

// AnalysisEnable enables analysisType.
func (e *Engine) AnalysisEnable(analysisType AnalysisType) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.enabledAnalyses[analysisType] = true
}

// AnalysisDisable disables analysisType.
func (e *Engine) AnalysisDisable(analysisType AnalysisType) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.enabledAnalyses, analysisType)
}

func (e *Engine) isEnabled(analysisType AnalysisType) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.enabledAnalyses[analysisType]
}

// ApproxLevelConfig sets the mantissa-width configuration used to
// canonicalize floating-point values. It fails with rerror.NoSuchApprox if
// level is not one of the six configured levels.
func (e *Engine) ApproxLevelConfig(level approx.Level) error {
	if _, ok := approx.DegreesFor(level); !ok {
		return rerror.New(rerror.NoSuchApprox, "ApproxLevelConfig", nil)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.approxLevel = level

	return nil
}

func (e *Engine) currentApproxLevel() approx.Level {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.approxLevel
}

// CubinRegister registers an active, fully parsed cubin. See
// cubin.Registry.Register.
func (e *Engine) CubinRegister(id uint32, symbolPCs []uint64, path string) error {
	_, err := e.cubins.Register(id, symbolPCs, path)
	return err
}

// CubinCacheRegister registers cubin metadata for lazy promotion. See
// cubin.Registry.CacheRegister.
func (e *Engine) CubinCacheRegister(id uint32, symbolPCs []uint64, path string) error {
	return e.cubins.CacheRegister(id, symbolPCs, path)
}

// CubinUnregister removes the active cubin entry for id.
func (e *Engine) CubinUnregister(id uint32) error {
	return e.cubins.Unregister(id)
}

// MemoryRegister registers a new logical allocation [start, end) at
// hostOpID with the given logical memory_id.
func (e *Engine) MemoryRegister(start, end, hostOpID, memoryID uint64) error {
	return e.memory.Register(start, end, hostOpID, memoryID)
}

// MemoryUnregister removes the allocation [start, end) at hostOpID.
func (e *Engine) MemoryUnregister(start, end, hostOpID uint64) error {
	return e.memory.Unregister(start, end, hostOpID)
}

// LogDataCallbackRegister installs the raw-trace log sink. It always
// succeeds.
func (e *Engine) LogDataCallbackRegister(fn LogDataCallback) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.logCallback = fn

	return nil
}

// RecordDataCallbackRegister installs the summary sink and the two view
// limits: pcViewsLimit bounds the views emitted per slot at Flush, and
// memViewsLimit bounds the distinct memory_op_id buckets each kernel tracks
// spatially during Analyze. It always succeeds.
func (e *Engine) RecordDataCallbackRegister(fn RecordDataCallback, pcViewsLimit, memViewsLimit uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.recordCallback = fn
	e.pcViewsLimit = int(pcViewsLimit)
	e.memViewsLimit = int(memViewsLimit)

	return nil
}

func (e *Engine) callbacks() (LogDataCallback, RecordDataCallback, int, int) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.logCallback, e.recordCallback, e.pcViewsLimit, e.memViewsLimit
}

// AnalysisBegin resets the session's minimum-observed-host-op-id tracking,
// used by AnalysisEnd to decide how much snapshot history to prune.
func (e *Engine) AnalysisBegin() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.minHostOpIDSeen = 0
	e.anyAnalysisRecorded = false

	return nil
}

// AnalysisEnd prunes memory-snapshot history older than the minimum host
// op id observed this session, retaining the newest snapshot below that
// floor as a base for any analysis still in flight. It fails with
// rerror.FailedAnalyzeCubin if Analyze was never called this session.
func (e *Engine) AnalysisEnd() error {
	e.mu.Lock()
	recorded := e.anyAnalysisRecorded
	minSeen := e.minHostOpIDSeen
	e.mu.Unlock()

	if !recorded {
		return rerror.New(rerror.FailedAnalyzeCubin, "AnalysisEnd", nil)
	}

	e.memory.Prune(minSeen)

	return nil
}

func (e *Engine) recordAnalyzed(hostOpID uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.anyAnalysisRecorded || hostOpID < e.minHostOpIDSeen {
		e.minHostOpIDSeen = hostOpID
	}

	e.anyAnalysisRecorded = true
}
