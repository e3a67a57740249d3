// Package instgraph implements the instruction graph (component B): parsing
// a disassembled-instruction description into a def-use graph keyed by PC,
// and deriving the data type a load or store instruction handles by
// consulting the opcode and, failing that, tracing the graph's def-use
// edges.
//
// The graph is built once at cubin-registration time by ParseInstructions
// and is read-only for the rest of its life; no mutex guards it, matching
// the ownership rule in the top-level spec that edges are added at parse
// time only.
package instgraph

// Symbol is a function entry as recorded in the .inst file: an index and
// its offset within the cubin. The runtime PC is filled in later by the
// symbol table once the registry knows where the cubin was loaded.
type Symbol struct {
	Index       uint32
	CubinOffset uint64
	PC          uint64
}

// Instruction is one disassembled instruction: its opcode, predicate,
// destination/source registers, and the def-use edges recorded as
// AssignPCs — for each register, the PCs of the instructions that produced
// the value currently held in it.
type Instruction struct {
	Op         string
	PC         uint64
	Predicate  int
	Dsts       []int
	Srcs       []int
	AssignPCs  map[int][]uint64
	AccessKind *AccessKind
}

// Graph is a directed graph over instructions keyed by PC. Edges represent
// def-use relationships: an outgoing edge from PC a to PC b means the
// instruction at a is a data source consumed by the instruction at b.
type Graph struct {
	nodes    map[uint64]Instruction
	outgoing map[uint64]map[uint64]struct{}
	incoming map[uint64]map[uint64]struct{}
}

// NewGraph returns an empty instruction graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:    make(map[uint64]Instruction),
		outgoing: make(map[uint64]map[uint64]struct{}),
		incoming: make(map[uint64]map[uint64]struct{}),
	}
}

// AddNode registers an instruction at its PC, overwriting any instruction
// previously registered at that PC.
func (g *Graph) AddNode(inst Instruction) {
	g.nodes[inst.PC] = inst
}

// AddEdge records a def-use edge: from produces a value consumed by to.
func (g *Graph) AddEdge(from, to uint64) {
	if g.outgoing[from] == nil {
		g.outgoing[from] = make(map[uint64]struct{})
	}
	g.outgoing[from][to] = struct{}{}

	if g.incoming[to] == nil {
		g.incoming[to] = make(map[uint64]struct{})
	}
	g.incoming[to][from] = struct{}{}
}

// Node returns the instruction registered at pc.
func (g *Graph) Node(pc uint64) (Instruction, bool) {
	inst, ok := g.nodes[pc]
	return inst, ok
}

// HasNode reports whether pc has a registered instruction.
func (g *Graph) HasNode(pc uint64) bool {
	_, ok := g.nodes[pc]
	return ok
}

// Outgoing returns the PCs of instructions consuming a value produced at
// pc.
func (g *Graph) Outgoing(pc uint64) []uint64 {
	return keys(g.outgoing[pc])
}

// Incoming returns the PCs of instructions producing a value consumed at
// pc.
func (g *Graph) Incoming(pc uint64) []uint64 {
	return keys(g.incoming[pc])
}

// Len returns the number of instructions in the graph.
func (g *Graph) Len() int {
	return len(g.nodes)
}

func keys(m map[uint64]struct{}) []uint64 {
	out := make([]uint64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}

	return out
}
