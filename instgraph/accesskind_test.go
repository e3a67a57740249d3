package instgraph

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("AccessKind.Less", func() {
	It("orders primarily by vec_size", func() {
		a := AccessKind{VecSize: 32, UnitSize: 32, Type: TypeFloat}
		b := AccessKind{VecSize: 64, UnitSize: 32, Type: TypeFloat}

		Expect(a.Less(b)).To(BeTrue())
		Expect(b.Less(a)).To(BeFalse())
	})

	It("falls back to unit_size, then type, when vec_size ties", func() {
		a := AccessKind{VecSize: 32, UnitSize: 8, Type: TypeInteger}
		b := AccessKind{VecSize: 32, UnitSize: 16, Type: TypeInteger}
		c := AccessKind{VecSize: 32, UnitSize: 16, Type: TypeFloat}

		Expect(a.Less(b)).To(BeTrue())
		Expect(b.Less(c)).To(BeTrue())
	})
})

var _ = Describe("DataType.String", func() {
	It("names every defined type", func() {
		Expect(TypeUnknown.String()).To(Equal("UNKNOWN"))
		Expect(TypeInteger.String()).To(Equal("INTEGER"))
		Expect(TypeFloat.String()).To(Equal("FLOAT"))
	})
})
