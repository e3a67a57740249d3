package instgraph

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ParseInstructions reads a disassembled-instruction description from path
// and returns the symbols and instruction graph it declares.
//
// The grammar, since the upstream .inst format is opaque beyond the fields
// this component must reconstruct (see SPEC_FULL.md §4.B):
//
//	# comment lines and blank lines are ignored
//	SYMBOL <index> <cubin_offset_hex>
//	<pc_hex> <op> <predicate> <dsts> <srcs> [<assigns>]
//
// dsts and srcs are comma-separated register numbers, or "-" for none.
// assigns, when present, is a semicolon-separated list of
// "<register>:<producer_pc_hex>,<producer_pc_hex>,..." entries and defaults
// to "-" (no def-use edges) when omitted.
func ParseInstructions(path string) ([]Symbol, *Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var symbols []Symbol
	graph := NewGraph()

	scanner := bufio.NewScanner(f)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)

		if fields[0] == "SYMBOL" {
			sym, err := parseSymbolLine(fields)
			if err != nil {
				return nil, nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
			}

			symbols = append(symbols, sym)

			continue
		}

		inst, err := parseInstructionLine(fields)
		if err != nil {
			return nil, nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}

		graph.AddNode(inst)

		for _, producers := range inst.AssignPCs {
			for _, producerPC := range producers {
				graph.AddEdge(producerPC, inst.PC)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}

	return symbols, graph, nil
}

func parseSymbolLine(fields []string) (Symbol, error) {
	if len(fields) != 3 {
		return Symbol{}, fmt.Errorf("SYMBOL line wants 2 fields, got %d", len(fields)-1)
	}

	index, err := strconv.ParseUint(fields[1], 0, 32)
	if err != nil {
		return Symbol{}, fmt.Errorf("bad symbol index %q: %w", fields[1], err)
	}

	cubinOffset, err := strconv.ParseUint(fields[2], 0, 64)
	if err != nil {
		return Symbol{}, fmt.Errorf("bad cubin offset %q: %w", fields[2], err)
	}

	return Symbol{Index: uint32(index), CubinOffset: cubinOffset}, nil
}

func parseInstructionLine(fields []string) (Instruction, error) {
	if len(fields) < 5 {
		return Instruction{}, fmt.Errorf("instruction line wants at least 5 fields, got %d", len(fields))
	}

	pc, err := strconv.ParseUint(fields[0], 0, 64)
	if err != nil {
		return Instruction{}, fmt.Errorf("bad pc %q: %w", fields[0], err)
	}

	predicate, err := strconv.Atoi(fields[2])
	if err != nil {
		return Instruction{}, fmt.Errorf("bad predicate %q: %w", fields[2], err)
	}

	dsts, err := parseRegList(fields[3])
	if err != nil {
		return Instruction{}, fmt.Errorf("bad dsts %q: %w", fields[3], err)
	}

	srcs, err := parseRegList(fields[4])
	if err != nil {
		return Instruction{}, fmt.Errorf("bad srcs %q: %w", fields[4], err)
	}

	assignPCs := make(map[int][]uint64)

	if len(fields) >= 6 && fields[5] != "-" {
		assignPCs, err = parseAssigns(fields[5])
		if err != nil {
			return Instruction{}, fmt.Errorf("bad assigns %q: %w", fields[5], err)
		}
	}

	return Instruction{
		Op:        fields[1],
		PC:        pc,
		Predicate: predicate,
		Dsts:      dsts,
		Srcs:      srcs,
		AssignPCs: assignPCs,
	}, nil
}

func parseRegList(s string) ([]int, error) {
	if s == "-" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))

	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}

		out = append(out, n)
	}

	return out, nil
}

func parseAssigns(s string) (map[int][]uint64, error) {
	out := make(map[int][]uint64)

	for _, entry := range strings.Split(s, ";") {
		reg, pcs, found := strings.Cut(entry, ":")
		if !found {
			return nil, fmt.Errorf("entry %q missing ':'", entry)
		}

		regNum, err := strconv.Atoi(reg)
		if err != nil {
			return nil, err
		}

		for _, pcStr := range strings.Split(pcs, ",") {
			pc, err := strconv.ParseUint(pcStr, 0, 64)
			if err != nil {
				return nil, err
			}

			out[regNum] = append(out[regNum], pc)
		}
	}

	return out, nil
}
