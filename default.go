package redshow

import (
	"sync"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/redshow/config"
)

var (
	defaultEngine     *Engine
	defaultEngineOnce sync.Once
)

// Default returns the package-level Engine, configured from the process
// environment (see package config) and registered with
// github.com/tebeka/atexit to flush every CPU thread with outstanding
// kernels before the process exits, so a consumer that forgets to call
// Flush does not silently lose accumulated counts. It is created once and
// reused on every call.
//
// Consumers constructing their own Engine via NewEngine are responsible for
// their own flushing — the safety net only guards this package-level
// default.
func Default() *Engine {
	defaultEngineOnce.Do(func() {
		defaults := config.Load(".env")

		e := NewEngine()
		_ = e.ApproxLevelConfig(defaults.ApproxLevel)
		e.pcViewsLimit = defaults.PCViewsLimit
		e.memViewsLimit = defaults.MemViewsLimit

		defaultEngine = e

		atexit.Register(func() { defaultEngine.flushAll() })
	})

	return defaultEngine
}

// flushAll calls Flush for every CPU thread currently holding kernel state.
// Used only by the atexit safety net; a caller with a registered record
// callback who never called Flush still gets a final summary.
func (e *Engine) flushAll() {
	e.kernelsMu.Lock()
	threads := make([]uint32, 0, len(e.kernels))
	for cpuThread := range e.kernels {
		threads = append(threads, cpuThread)
	}
	e.kernelsMu.Unlock()

	for _, cpuThread := range threads {
		_ = e.Flush(cpuThread)
	}
}
