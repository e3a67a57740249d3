package redshow

import (
	"github.com/sarchlab/redshow/cubin"
	"github.com/sarchlab/redshow/kernel"
	"github.com/sarchlab/redshow/report"
)

// Flush emits a top-N summary for every kernel owned by cpuThread, via the
// registered RecordDataCallback, then erases that CPU thread's kernel
// sub-map. It fails with rerror.NotRegisterCallback, emitting nothing, if no
// record callback is registered.
func (e *Engine) Flush(cpuThread uint32) error {
	_, recordCallback, pcViewsLimit, _ := e.callbacks()
	if recordCallback == nil {
		return ErrNotRegisterCallback
	}

	e.kernelsMu.Lock()
	byKey := e.kernels[cpuThread]
	delete(e.kernels, cpuThread)
	e.kernelsMu.Unlock()

	for key, k := range byKey {
		c, ok := e.cubins.Lookup(key.CubinID)
		if !ok {
			continue
		}

		if e.isEnabled(SpatialRedundancy) {
			emitSpatial(recordCallback, c, k, kernel.Read, pcViewsLimit)
			emitSpatial(recordCallback, c, k, kernel.Write, pcViewsLimit)
		}

		if e.isEnabled(TemporalRedundancy) {
			emitTemporal(recordCallback, c, k, kernel.Read, pcViewsLimit)
			emitTemporal(recordCallback, c, k, kernel.Write, pcViewsLimit)
		}
	}

	return nil
}

func spatialTraceFor(k *kernel.Kernel, dir kernel.Direction) kernel.SpatialTrace {
	if dir == kernel.Read {
		return k.ReadSpatial
	}

	return k.WriteSpatial
}

func temporalPCPairsFor(k *kernel.Kernel, dir kernel.Direction) kernel.PCPairs {
	if dir == kernel.Read {
		return k.ReadPCPairs
	}

	return k.WritePCPairs
}

// emitSpatial finds, for each (memory_op_id, kind) bucket, the (pc, value)
// with the highest count, collects the pc_views_limit strongest buckets,
// and emits them translated to (function_index, pc_offset).
func emitSpatial(cb RecordDataCallback, c *cubin.Cubin, k *kernel.Kernel, dir kernel.Direction, limit int) {
	collector := report.NewCollector(limit)

	for _, byPC := range spatialTraceFor(k, dir) {
		var bestPC, bestValue, bestCount uint64

		found := false

		for pc, byValue := range byPC {
			for value, count := range byValue {
				if !found || count > bestCount {
					bestPC, bestValue, bestCount = pc, value, count
					found = true
				}
			}
		}

		if !found {
			continue
		}

		translated, ok := translate(c, bestPC)
		if !ok {
			continue
		}

		collector.Add(report.View{
			FunctionIndex: translated.functionIndex,
			PCOffset:      translated.pcOffset,
			Count:         bestCount,
			Value:         bestValue,
		})
	}

	views := collector.Views()
	if len(views) == 0 {
		return
	}

	cb(k.CubinID, k.KernelID, SpatialRedundancy, dir, views)
}

// emitTemporal sums counts across (value, kind) for each (prev_pc, curr_pc)
// pair and emits the pc_views_limit strongest pairs, keyed by the pair's
// current PC.
func emitTemporal(cb RecordDataCallback, c *cubin.Cubin, k *kernel.Kernel, dir kernel.Direction, limit int) {
	collector := report.NewCollector(limit)

	for _, byCurr := range temporalPCPairsFor(k, dir) {
		for currPC, byKey := range byCurr {
			var sum uint64
			for _, count := range byKey {
				sum += count
			}

			if sum == 0 {
				continue
			}

			translated, ok := translate(c, currPC)
			if !ok {
				continue
			}

			collector.Add(report.View{
				FunctionIndex: translated.functionIndex,
				PCOffset:      translated.pcOffset,
				Count:         sum,
			})
		}
	}

	views := collector.Views()
	if len(views) == 0 {
		return
	}

	cb(k.CubinID, k.KernelID, TemporalRedundancy, dir, views)
}

type pcTranslation struct {
	functionIndex uint32
	pcOffset      uint64
}

func translate(c *cubin.Cubin, pc uint64) (pcTranslation, bool) {
	functionIndex, _, pcOffset, err := c.Symbols.TransformPC(pc)
	if err != nil {
		return pcTranslation{}, false
	}

	return pcTranslation{functionIndex: functionIndex, pcOffset: pcOffset}, true
}
