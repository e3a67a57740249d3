// Package symbol implements PC symbolization (component C): keeping a
// cubin's symbols sorted by runtime PC and resolving a runtime PC to the
// (function_index, cubin_offset, pc_offset) triple the rest of the analyzer
// reports against.
package symbol

import (
	"sort"

	"github.com/sarchlab/redshow/rerror"
)

// Symbol is a function entry: its declaration index, its offset within the
// cubin image, and the runtime PC it was loaded at.
type Symbol struct {
	Index       uint32
	CubinOffset uint64
	PC          uint64
}

// Table is an immutable, PC-sorted view of a cubin's symbols.
type Table struct {
	symbols []Symbol
}

// NewTable copies symbols and sorts the copy by PC. The input slice is not
// retained.
func NewTable(symbols []Symbol) *Table {
	sorted := make([]Symbol, len(symbols))
	copy(sorted, symbols)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PC < sorted[j].PC })

	return &Table{symbols: sorted}
}

// Len returns the number of symbols in the table.
func (t *Table) Len() int {
	return len(t.symbols)
}

// TransformPC resolves pc to (function_index, cubin_offset, pc_offset):
// the greatest symbol with symbol.PC <= pc. Fails with rerror.NotExistEntry
// if pc is before every symbol.
func (t *Table) TransformPC(pc uint64) (functionIndex uint32, cubinOffset uint64, pcOffset uint64, err error) {
	i := sort.Search(len(t.symbols), func(i int) bool {
		return t.symbols[i].PC > pc
	})

	if i == 0 {
		return 0, 0, 0, rerror.New(rerror.NotExistEntry, "TransformPC", nil)
	}

	sym := t.symbols[i-1]
	pcOffset = pc - sym.PC

	return sym.Index, pcOffset + sym.CubinOffset, pcOffset, nil
}
