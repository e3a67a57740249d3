package instgraph

import "strings"

// LoadDataType returns the AccessKind a load instruction at pc handles.
func LoadDataType(pc uint64, g *Graph) AccessKind {
	return resolveDataType(pc, g, true)
}

// StoreDataType returns the AccessKind a store instruction at pc handles.
func StoreDataType(pc uint64, g *Graph) AccessKind {
	return resolveDataType(pc, g, false)
}

func resolveDataType(pc uint64, g *Graph, isLoad bool) AccessKind {
	inst, ok := g.Node(pc)
	if !ok {
		return AccessKind{Type: TypeUnknown}
	}

	if kind, ok := staticAccessKind(inst.Op); ok {
		return kind
	}

	regs := inst.Dsts
	if !isLoad {
		regs = inst.Srcs
	}

	visited := map[uint64]bool{pc: true}

	for _, reg := range regs {
		for _, producerPC := range inst.AssignPCs[reg] {
			if kind, ok := traceType(producerPC, g, visited); ok {
				return kind
			}
		}
	}

	return AccessKind{Type: TypeUnknown}
}

// traceType walks producer edges outward from pc looking for the first
// instruction whose opcode statically discloses a type. It dominates: the
// first hit wins, matching the "first arithmetic/conversion op that
// discloses a type dominates" resolution policy.
func traceType(pc uint64, g *Graph, visited map[uint64]bool) (AccessKind, bool) {
	if visited[pc] {
		return AccessKind{}, false
	}
	visited[pc] = true

	inst, ok := g.Node(pc)
	if !ok {
		return AccessKind{}, false
	}

	if kind, ok := staticAccessKind(inst.Op); ok {
		return kind, true
	}

	for _, dst := range inst.Dsts {
		for _, producerPC := range inst.AssignPCs[dst] {
			if kind, ok := traceType(producerPC, g, visited); ok {
				return kind, true
			}
		}
	}

	return AccessKind{}, false
}

// staticAccessKind decodes an opcode's dotted suffix tokens for a type and
// width, e.g. "LDG.E.F32" -> {unit: 32, vec: 32, type: FLOAT} or
// "STS.128" -> {unit: 128, vec: 128, type: INTEGER}. Recognized suffixes are
// V2/V4 (vector multiplier), U8..U64/S8..S64 (integer), F16/F32/F64
// (float), and bare widths 8/16/32/64/128 (integer unless a typed suffix
// says otherwise).
func staticAccessKind(op string) (AccessKind, bool) {
	tokens := strings.Split(op, ".")
	if len(tokens) < 2 {
		return AccessKind{}, false
	}

	var unit uint32

	typ := TypeUnknown
	vecMultiplier := uint32(1)

	for _, tok := range tokens[1:] {
		switch tok {
		case "V2":
			vecMultiplier = 2
		case "V4":
			vecMultiplier = 4
		case "U8":
			unit, typ = 8, TypeInteger
		case "S8":
			unit, typ = 8, TypeInteger
		case "U16":
			unit, typ = 16, TypeInteger
		case "S16":
			unit, typ = 16, TypeInteger
		case "U32":
			unit, typ = 32, TypeInteger
		case "S32":
			unit, typ = 32, TypeInteger
		case "U64":
			unit, typ = 64, TypeInteger
		case "S64":
			unit, typ = 64, TypeInteger
		case "F16":
			unit, typ = 16, TypeFloat
		case "F32":
			unit, typ = 32, TypeFloat
		case "F64":
			unit, typ = 64, TypeFloat
		case "8", "16", "32", "64", "128":
			if unit == 0 {
				width, _ := parseWidthToken(tok)
				unit = width
			}
		}
	}

	if unit == 0 {
		return AccessKind{}, false
	}

	if typ == TypeUnknown {
		typ = TypeInteger
	}

	return AccessKind{UnitSize: unit, VecSize: unit * vecMultiplier, Type: typ}, true
}

func parseWidthToken(tok string) (uint32, bool) {
	switch tok {
	case "8":
		return 8, true
	case "16":
		return 16, true
	case "32":
		return 32, true
	case "64":
		return 64, true
	case "128":
		return 128, true
	default:
		return 0, false
	}
}
