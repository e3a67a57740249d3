package redshow

import (
	"github.com/rs/xid"
	"github.com/sarchlab/redshow/approx"
	"github.com/sarchlab/redshow/cubin"
	"github.com/sarchlab/redshow/instgraph"
	"github.com/sarchlab/redshow/kernel"
	"github.com/sarchlab/redshow/memsnapshot"
	"github.com/sarchlab/redshow/rerror"
)

// defaultUnitSizeBitFactor is the literal (suspected-buggy) "* 8" factor in
// the default access-kind fallback's unit_size formula. Exposed as a named
// constant rather than silently corrected — see DESIGN.md's Open Questions.
const defaultUnitSizeBitFactor = 8

func (e *Engine) resolveCubin(cubinID uint32) (*cubin.Cubin, error) {
	if c, ok := e.cubins.Lookup(cubinID); ok {
		return c, nil
	}

	promoted, err := e.cubins.PromoteFromCache(cubinID)
	if err != nil {
		return nil, rerror.New(rerror.NotExistEntry, "Analyze", err)
	}

	return promoted, nil
}

func (e *Engine) kernelFor(cpuThread uint32, cubinID uint32, kernelID uint64) *kernel.Kernel {
	e.kernelsMu.Lock()
	defer e.kernelsMu.Unlock()

	byKey, ok := e.kernels[cpuThread]
	if !ok {
		byKey = make(map[kernelKey]*kernel.Kernel)
		e.kernels[cpuThread] = byKey
	}

	key := kernelKey{CubinID: cubinID, KernelID: kernelID}

	k, ok := byKey[key]
	if !ok {
		k = kernel.New(kernelID, cubinID)
		byKey[key] = k
	}

	return k
}

// Analyze ingests one trace buffer captured on cpuThread for kernelID of
// cubinID at hostOpID. It resolves the cubin (promoting from the cache if
// necessary), resolves the applicable memory snapshot, and folds every
// accepted unit-access into the owning Kernel's enabled accumulators.
func (e *Engine) Analyze(cpuThread uint32, cubinID uint32, kernelID uint64, hostOpID uint64, buffer *Buffer) error {
	c, err := e.resolveCubin(cubinID)
	if err != nil {
		return err
	}

	k := e.kernelFor(cpuThread, cubinID, kernelID)

	logCallback, _, _, memViewsLimit := e.callbacks()
	level := e.currentApproxLevel()

	var accepted []AcceptedAccess

	for i := 0; i < buffer.HeadIndex && i < len(buffer.Records); i++ {
		rec := &buffer.Records[i]

		if rec.Flags&FlagBlockEnter != 0 {
			continue
		}

		if rec.Flags&FlagBlockExit != 0 {
			clearExitingThreads(k, rec)
			continue
		}

		if rec.Size == 0 {
			continue
		}

		functionIndex, cubinOffset, pcOffset, terr := c.Symbols.TransformPC(rec.PC)
		if terr != nil {
			continue
		}

		k.SetOrigin(functionIndex, rec.PC-pcOffset)

		dir := kernel.Write
		if rec.Flags&FlagRead != 0 {
			dir = kernel.Read
		}

		kind := resolveAccessKind(c, cubinOffset, dir, rec.Size)
		if kind.UnitSize == 0 {
			continue
		}

		byteSize := kind.UnitSize / 8
		if byteSize == 0 {
			continue
		}

		numUnits := kind.VecSize / kind.UnitSize
		if numUnits == 0 {
			numUnits = 1
		}

		canonType := approxTypeFor(kind.Type)

		for j := 0; j < WarpSize; j++ {
			if !rec.laneActive(j) {
				continue
			}

			tid := kernel.ThreadID{FlatBlockID: rec.FlatBlockID, FlatThreadID: rec.FlatThreadID + uint32(j)}
			baseAddr := rec.Address[j]

			for m := uint32(0); m < numUnits; m++ {
				offset := m * byteSize
				if offset+byteSize > uint32(MaxAccessBytes) {
					break
				}

				raw := littleEndianUint64(rec.Value[j][offset : offset+byteSize])
				canonical := approx.Canonicalize(raw, kind.UnitSize, canonType, level)
				unitAddr := baseAddr + uint64(offset)

				memOpID, found := e.memory.Lookup(hostOpID, unitAddr)
				if !found {
					switch {
					case rec.Flags&FlagLocal != 0:
						memOpID = memsnapshot.Local
					case rec.Flags&FlagShared != 0:
						memOpID = memsnapshot.Shared
					default:
						continue
					}
				}

				if e.isEnabled(SpatialRedundancy) {
					k.AddSpatial(dir, memOpID, kind, rec.PC, canonical, memViewsLimit)
				}

				if e.isEnabled(TemporalRedundancy) {
					k.UpdateTemporal(dir, tid, unitAddr, rec.PC, canonical, kind)
				}

				if logCallback != nil {
					accepted = append(accepted, AcceptedAccess{
						ThreadID:  tid,
						Address:   unitAddr,
						PC:        rec.PC,
						Value:     canonical,
						Kind:      kind,
						Direction: dir,
					})
				}
			}
		}
	}

	e.recordAnalyzed(hostOpID)

	if logCallback != nil && len(accepted) > 0 {
		session := AnalysisSession{ID: xid.New().String(), CPUThread: cpuThread, HostOpID: hostOpID}
		logCallback(cubinID, kernelID, session, accepted)
	}

	return nil
}

func clearExitingThreads(k *kernel.Kernel, rec *Record) {
	for j := 0; j < WarpSize; j++ {
		if !rec.laneActive(j) {
			continue
		}

		tid := kernel.ThreadID{FlatBlockID: rec.FlatBlockID, FlatThreadID: rec.FlatThreadID + uint32(j)}
		k.ClearThread(tid)
	}
}

func resolveAccessKind(c *cubin.Cubin, cubinOffset uint64, dir kernel.Direction, recordSize uint32) instgraph.AccessKind {
	kind := instgraph.AccessKind{Type: instgraph.TypeUnknown}

	if c.Graph != nil && c.Graph.Len() > 0 {
		if dir == kernel.Read {
			kind = instgraph.LoadDataType(cubinOffset, c.Graph)
		} else {
			kind = instgraph.StoreDataType(cubinOffset, c.Graph)
		}
	}

	if kind.Type != instgraph.TypeUnknown {
		return kind
	}

	vecSize := recordSize * 8

	unitSize := vecSize * defaultUnitSizeBitFactor
	if unitSize > WarpSize {
		unitSize = WarpSize
	}

	return instgraph.AccessKind{Type: instgraph.TypeFloat, VecSize: vecSize, UnitSize: unitSize}
}

func approxTypeFor(t instgraph.DataType) approx.DataType {
	switch t {
	case instgraph.TypeInteger:
		return approx.TypeInteger
	case instgraph.TypeFloat:
		return approx.TypeFloat
	default:
		return approx.TypeUnknown
	}
}

func littleEndianUint64(b []byte) uint64 {
	var v uint64
	for i, bb := range b {
		v |= uint64(bb) << (8 * uint(i))
	}

	return v
}
