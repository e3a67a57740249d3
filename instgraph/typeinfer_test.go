package instgraph

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LoadDataType/StoreDataType", func() {
	It("resolves statically from a typed load opcode", func() {
		g := NewGraph()
		g.AddNode(Instruction{PC: 0x10, Op: "LDG.E.F32", Dsts: []int{1}})

		kind := LoadDataType(0x10, g)
		Expect(kind).To(Equal(AccessKind{UnitSize: 32, VecSize: 32, Type: TypeFloat}))
	})

	It("resolves a vector load width", func() {
		g := NewGraph()
		g.AddNode(Instruction{PC: 0x10, Op: "LDG.E.V4.U8", Dsts: []int{1}})

		kind := LoadDataType(0x10, g)
		Expect(kind).To(Equal(AccessKind{UnitSize: 8, VecSize: 32, Type: TypeInteger}))
	})

	It("falls back to tracing a producer when the opcode is untyped", func() {
		g := NewGraph()
		g.AddNode(Instruction{PC: 0x10, Op: "LDG", Dsts: []int{1}, AssignPCs: map[int][]uint64{1: {0x20}}})
		g.AddNode(Instruction{PC: 0x20, Op: "FADD.F64", Dsts: []int{1}})

		kind := LoadDataType(0x10, g)
		Expect(kind).To(Equal(AccessKind{UnitSize: 64, VecSize: 64, Type: TypeFloat}))
	})

	It("resolves store type from a src register's producer", func() {
		g := NewGraph()
		g.AddNode(Instruction{PC: 0x30, Op: "STG", Srcs: []int{2}, AssignPCs: map[int][]uint64{2: {0x40}}})
		g.AddNode(Instruction{PC: 0x40, Op: "IADD.S32", Dsts: []int{2}})

		kind := StoreDataType(0x30, g)
		Expect(kind).To(Equal(AccessKind{UnitSize: 32, VecSize: 32, Type: TypeInteger}))
	})

	It("returns UNKNOWN when nothing discloses a type", func() {
		g := NewGraph()
		g.AddNode(Instruction{PC: 0x10, Op: "LDG", Dsts: []int{1}})

		kind := LoadDataType(0x10, g)
		Expect(kind.Type).To(Equal(TypeUnknown))
	})

	It("returns UNKNOWN for a PC not in the graph", func() {
		g := NewGraph()

		kind := LoadDataType(0x999, g)
		Expect(kind.Type).To(Equal(TypeUnknown))
	})

	It("does not loop forever on a producer cycle", func() {
		g := NewGraph()
		g.AddNode(Instruction{PC: 0x10, Op: "MOV", Dsts: []int{1}, AssignPCs: map[int][]uint64{1: {0x20}}})
		g.AddNode(Instruction{PC: 0x20, Op: "MOV", Dsts: []int{1}, AssignPCs: map[int][]uint64{1: {0x10}}})

		kind := LoadDataType(0x10, g)
		Expect(kind.Type).To(Equal(TypeUnknown))
	})
})
