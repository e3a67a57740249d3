package redshow

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/sarchlab/redshow/approx"
	"github.com/sarchlab/redshow/report"
	"github.com/sarchlab/redshow/rerror"
)

func approxLevelOutOfRange() approx.Level {
	return approx.Level(999)
}

func writeCubinFixture(dir, name, instContents string) string {
	cubinPath := filepath.Join(dir, name+".cubin")
	gomega.Expect(os.WriteFile(cubinPath, []byte("cubin"), 0o600)).To(gomega.Succeed())

	instDir := filepath.Join(dir, "structs", "nvidia")
	gomega.Expect(os.MkdirAll(instDir, 0o755)).To(gomega.Succeed())
	gomega.Expect(os.WriteFile(filepath.Join(instDir, name+".inst"), []byte(instContents), 0o600)).To(gomega.Succeed())

	return cubinPath
}

func float32Buffer(addr uint64, pc uint64, v float32) *Buffer {
	rec := Record{
		PC:           pc,
		FlatBlockID:  0,
		FlatThreadID: 0,
		ActiveMask:   1,
		Size:         4,
		Flags:        FlagRead,
	}

	rec.Address[0] = addr
	binary.LittleEndian.PutUint32(rec.Value[0][:4], math.Float32bits(v))

	return &Buffer{Records: []Record{rec}, HeadIndex: 1}
}

func blockExitRecord() Record {
	return Record{
		FlatBlockID:  0,
		FlatThreadID: 0,
		ActiveMask:   1,
		Flags:        FlagBlockExit,
	}
}

type recordedCall struct {
	cubinID      uint32
	kernelID     uint64
	analysisType AnalysisType
	direction    AccessDirection
	views        []report.View
}

var _ = Describe("Engine end-to-end", func() {
	var (
		e        *Engine
		dir      string
		path     string
		symbolPC uint64
	)

	BeforeEach(func() {
		e = NewEngine()
		dir = GinkgoT().TempDir()
		path = writeCubinFixture(dir, "kernel", "SYMBOL 0 0x0\n")
		symbolPC = 0x10000

		gomega.Expect(e.CubinRegister(1, []uint64{symbolPC}, path)).To(gomega.Succeed())
		gomega.Expect(e.MemoryRegister(0x2000, 0x3000, 1, 77)).To(gomega.Succeed())
	})

	It("folds accepted accesses into spatial and temporal accumulators and reports them at flush", func() {
		e.AnalysisEnable(SpatialRedundancy)
		e.AnalysisEnable(TemporalRedundancy)

		gomega.Expect(e.AnalysisBegin()).To(gomega.Succeed())

		buf1 := float32Buffer(0x2000, symbolPC+0x8, 3.5)
		gomega.Expect(e.Analyze(0, 1, 5, 1, buf1)).To(gomega.Succeed())

		buf2 := float32Buffer(0x2000, symbolPC+0x8, 3.5)
		gomega.Expect(e.Analyze(0, 1, 5, 1, buf2)).To(gomega.Succeed())

		gomega.Expect(e.AnalysisEnd()).To(gomega.Succeed())

		var calls []recordedCall
		gomega.Expect(e.RecordDataCallbackRegister(
			func(cubinID uint32, kernelID uint64, analysisType AnalysisType, direction AccessDirection, views []report.View) {
				calls = append(calls, recordedCall{cubinID, kernelID, analysisType, direction, views})
			}, 10, 10)).To(gomega.Succeed())

		gomega.Expect(e.Flush(0)).To(gomega.Succeed())

		gomega.Expect(calls).NotTo(gomega.BeEmpty())

		var sawSpatial, sawTemporal bool

		for _, c := range calls {
			gomega.Expect(c.cubinID).To(gomega.Equal(uint32(1)))
			gomega.Expect(c.kernelID).To(gomega.Equal(uint64(5)))

			if c.analysisType == SpatialRedundancy && c.direction == DirectionRead {
				sawSpatial = true
				gomega.Expect(c.views).To(gomega.HaveLen(1))
				gomega.Expect(c.views[0].PCOffset).To(gomega.Equal(uint64(0x8)))
				gomega.Expect(c.views[0].Count).To(gomega.Equal(uint64(2)))
			}

			if c.analysisType == TemporalRedundancy && c.direction == DirectionRead {
				sawTemporal = true
				gomega.Expect(c.views).To(gomega.HaveLen(1))
				gomega.Expect(c.views[0].PCOffset).To(gomega.Equal(uint64(0x8)))
				gomega.Expect(c.views[0].Count).To(gomega.Equal(uint64(1)))
			}
		}

		gomega.Expect(sawSpatial).To(gomega.BeTrue())
		gomega.Expect(sawTemporal).To(gomega.BeTrue())
	})

	It("clears temporal history on block exit so a same-value repeat after the exit yields no pair (S4)", func() {
		e.AnalysisEnable(TemporalRedundancy)

		gomega.Expect(e.AnalysisBegin()).To(gomega.Succeed())

		buf := &Buffer{
			Records: []Record{
				float32Buffer(0x2000, symbolPC+0x8, 3.5).Records[0],
				blockExitRecord(),
				float32Buffer(0x2000, symbolPC+0x10, 3.5).Records[0],
			},
			HeadIndex: 3,
		}
		gomega.Expect(e.Analyze(0, 1, 5, 1, buf)).To(gomega.Succeed())

		gomega.Expect(e.AnalysisEnd()).To(gomega.Succeed())

		var temporalCalls int
		gomega.Expect(e.RecordDataCallbackRegister(
			func(cubinID uint32, kernelID uint64, analysisType AnalysisType, direction AccessDirection, views []report.View) {
				if analysisType == TemporalRedundancy {
					temporalCalls++
				}
			}, 10, 10)).To(gomega.Succeed())

		gomega.Expect(e.Flush(0)).To(gomega.Succeed())
		gomega.Expect(temporalCalls).To(gomega.Equal(0))
	})

	It("clears the flushed cpu thread's kernels so a second flush reports nothing", func() {
		e.AnalysisEnable(SpatialRedundancy)

		gomega.Expect(e.AnalysisBegin()).To(gomega.Succeed())

		buf := float32Buffer(0x2000, symbolPC+0x8, 1.0)
		gomega.Expect(e.Analyze(0, 1, 5, 1, buf)).To(gomega.Succeed())
		gomega.Expect(e.AnalysisEnd()).To(gomega.Succeed())

		callCount := 0
		gomega.Expect(e.RecordDataCallbackRegister(
			func(cubinID uint32, kernelID uint64, analysisType AnalysisType, direction AccessDirection, views []report.View) {
				callCount++
			}, 10, 10)).To(gomega.Succeed())

		gomega.Expect(e.Flush(0)).To(gomega.Succeed())
		firstCount := callCount
		gomega.Expect(firstCount).To(gomega.BeNumerically(">", 0))

		gomega.Expect(e.Flush(0)).To(gomega.Succeed())
		gomega.Expect(callCount).To(gomega.Equal(firstCount))
	})

	It("delivers accepted accesses to a registered log callback", func() {
		var accesses []AcceptedAccess

		gomega.Expect(e.LogDataCallbackRegister(func(cubinID uint32, kernelID uint64, session AnalysisSession, acc []AcceptedAccess) {
			accesses = append(accesses, acc...)
		})).To(gomega.Succeed())

		buf := float32Buffer(0x2000, symbolPC+0x8, 1.0)
		gomega.Expect(e.Analyze(0, 1, 5, 1, buf)).To(gomega.Succeed())

		gomega.Expect(accesses).To(gomega.HaveLen(1))
		gomega.Expect(accesses[0].Address).To(gomega.Equal(uint64(0x2000)))
	})

	It("does not error when analyzing without any log callback registered", func() {
		buf := float32Buffer(0x2000, symbolPC+0x8, 1.0)
		gomega.Expect(e.Analyze(0, 1, 5, 1, buf)).To(gomega.Succeed())
	})

	It("succeeds with no side effects on an empty buffer", func() {
		buf := &Buffer{Records: nil, HeadIndex: 0}
		gomega.Expect(e.Analyze(0, 1, 5, 1, buf)).To(gomega.Succeed())
	})

	It("lazily promotes a cached cubin on first use", func() {
		e2 := NewEngine()
		gomega.Expect(e2.CubinCacheRegister(9, []uint64{symbolPC}, path)).To(gomega.Succeed())
		gomega.Expect(e2.MemoryRegister(0x2000, 0x3000, 1, 77)).To(gomega.Succeed())

		buf := float32Buffer(0x2000, symbolPC+0x8, 1.0)
		gomega.Expect(e2.Analyze(0, 9, 5, 1, buf)).To(gomega.Succeed())
	})

	It("fails Analyze with NotExistEntry when the cubin was never registered or cached", func() {
		buf := float32Buffer(0x2000, symbolPC+0x8, 1.0)
		err := e.Analyze(0, 404, 5, 1, buf)

		var rerr *rerror.Error
		gomega.Expect(errors.As(err, &rerr)).To(gomega.BeTrue())
		gomega.Expect(rerr.Kind).To(gomega.Equal(rerror.NotExistEntry))
	})

	It("fails Flush with NotRegisterCallback when no record callback is registered", func() {
		err := e.Flush(0)
		gomega.Expect(errors.Is(err, ErrNotRegisterCallback)).To(gomega.BeTrue())
	})

	It("fails AnalysisEnd when no Analyze call was made this session", func() {
		gomega.Expect(e.AnalysisBegin()).To(gomega.Succeed())

		err := e.AnalysisEnd()

		var rerr *rerror.Error
		gomega.Expect(errors.As(err, &rerr)).To(gomega.BeTrue())
		gomega.Expect(rerr.Kind).To(gomega.Equal(rerror.FailedAnalyzeCubin))
	})

	It("fails ApproxLevelConfig for an out-of-range level", func() {
		err := e.ApproxLevelConfig(approxLevelOutOfRange())

		var rerr *rerror.Error
		gomega.Expect(errors.As(err, &rerr)).To(gomega.BeTrue())
		gomega.Expect(rerr.Kind).To(gomega.Equal(rerror.NoSuchApprox))
	})

	It("fails MemoryRegister when start >= end", func() {
		err := e.MemoryRegister(0x9000, 0x9000, 2, 1)
		gomega.Expect(err).To(gomega.HaveOccurred())
	})
})
