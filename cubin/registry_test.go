package cubin

import (
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/redshow/rerror"
)

func writeCubinWithInst(dir string, contents string) string {
	cubinPath := filepath.Join(dir, "kernel.cubin")
	Expect(os.WriteFile(cubinPath, []byte("not a real cubin"), 0o600)).To(Succeed())

	instDir := filepath.Join(dir, "structs", "nvidia")
	Expect(os.MkdirAll(instDir, 0o755)).To(Succeed())
	Expect(os.WriteFile(filepath.Join(instDir, "kernel.inst"), []byte(contents), 0o600)).To(Succeed())

	return cubinPath
}

var _ = Describe("Registry", func() {
	var (
		registry *Registry
		dir      string
	)

	BeforeEach(func() {
		registry = NewRegistry()
		dir = GinkgoT().TempDir()
	})

	It("registers a cubin whose .inst file exists and binds symbol pcs", func() {
		path := writeCubinWithInst(dir, "SYMBOL 0 0x0\n0x10 LDG.E.F32 -1 1 - -\n")

		c, err := registry.Register(1, []uint64{0x4000}, path)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.ID).To(Equal(uint32(1)))
		Expect(c.Graph.Len()).To(Equal(1))

		functionIndex, _, _, terr := c.Symbols.TransformPC(0x4000)
		Expect(terr).NotTo(HaveOccurred())
		Expect(functionIndex).To(Equal(uint32(0)))
	})

	It("fails with NoSuchFile when the .inst file is missing", func() {
		path := filepath.Join(dir, "missing.cubin")
		Expect(os.WriteFile(path, []byte("x"), 0o600)).To(Succeed())

		_, err := registry.Register(1, nil, path)

		var rerr *rerror.Error
		Expect(errors.As(err, &rerr)).To(BeTrue())
		Expect(rerr.Kind).To(Equal(rerror.NoSuchFile))
	})

	It("fails with DuplicateEntry on re-registration", func() {
		path := writeCubinWithInst(dir, "SYMBOL 0 0x0\n")

		_, err := registry.Register(1, nil, path)
		Expect(err).NotTo(HaveOccurred())

		_, err = registry.Register(1, nil, path)

		var rerr *rerror.Error
		Expect(errors.As(err, &rerr)).To(BeTrue())
		Expect(rerr.Kind).To(Equal(rerror.DuplicateEntry))
	})

	It("unregisters an active cubin", func() {
		path := writeCubinWithInst(dir, "SYMBOL 0 0x0\n")

		_, err := registry.Register(1, nil, path)
		Expect(err).NotTo(HaveOccurred())

		Expect(registry.Unregister(1)).To(Succeed())

		_, ok := registry.Lookup(1)
		Expect(ok).To(BeFalse())
	})

	It("fails to unregister a cubin that was never active", func() {
		err := registry.Unregister(99)

		var rerr *rerror.Error
		Expect(errors.As(err, &rerr)).To(BeTrue())
		Expect(rerr.Kind).To(Equal(rerror.NotExistEntry))
	})

	It("promotes a cached cubin on demand", func() {
		path := writeCubinWithInst(dir, "SYMBOL 0 0x0\n")

		Expect(registry.CacheRegister(7, []uint64{0x5000}, path)).To(Succeed())

		_, ok := registry.Lookup(7)
		Expect(ok).To(BeFalse())

		c, err := registry.PromoteFromCache(7)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.ID).To(Equal(uint32(7)))

		_, ok = registry.Lookup(7)
		Expect(ok).To(BeTrue())
	})

	It("fails to promote an id that was never cached", func() {
		_, err := registry.PromoteFromCache(123)

		var rerr *rerror.Error
		Expect(errors.As(err, &rerr)).To(BeTrue())
		Expect(rerr.Kind).To(Equal(rerror.NotExistEntry))
	})

	It("fails CacheRegister with DuplicateEntry on repeat", func() {
		Expect(registry.CacheRegister(1, nil, "x")).To(Succeed())

		err := registry.CacheRegister(1, nil, "x")

		var rerr *rerror.Error
		Expect(errors.As(err, &rerr)).To(BeTrue())
		Expect(rerr.Kind).To(Equal(rerror.DuplicateEntry))
	})
})
