// Package cubin implements the cubin registry (component D): active cubins
// that have been fully parsed, and cached cubin metadata kept around for
// lazy promotion once an .inst file becomes available.
package cubin

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sarchlab/redshow/instgraph"
	"github.com/sarchlab/redshow/rerror"
	"github.com/sarchlab/redshow/symbol"
)

// Cubin is a fully registered, parsed GPU binary: its symbol table and
// instruction graph, ready for the trace analyzer to query.
type Cubin struct {
	ID      uint32
	Path    string
	Symbols *symbol.Table
	Graph   *instgraph.Graph
}

// CacheEntry is the minimal metadata retained for a cubin registered before
// its .inst file was known to exist.
type CacheEntry struct {
	ID        uint32
	Path      string
	SymbolPCs []uint64
}

// Registry holds the two cubin maps, each independently lock-protected.
type Registry struct {
	mu     sync.RWMutex
	active map[uint32]*Cubin

	cacheMu sync.RWMutex
	cache   map[uint32]*CacheEntry
}

// NewRegistry returns an empty cubin registry.
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[uint32]*Cubin),
		cache:  make(map[uint32]*CacheEntry),
	}
}

// Register parses path's .inst file, binds symbolPCs onto the parsed
// symbols in declaration order, and inserts the resulting Cubin into the
// active map. It fails with rerror.NoSuchFile if the .inst file does not
// exist, rerror.FailedAnalyzeCubin if parsing fails, and
// rerror.DuplicateEntry if id is already active.
func Register(r *Registry, id uint32, symbolPCs []uint64, path string) (*Cubin, error) {
	instPath := instFilePath(path)

	if _, err := os.Stat(instPath); err != nil {
		return nil, rerror.New(rerror.NoSuchFile, "Register", err)
	}

	rawSymbols, graph, err := instgraph.ParseInstructions(instPath)
	if err != nil {
		return nil, rerror.New(rerror.FailedAnalyzeCubin, "Register", err)
	}

	bound := make([]symbol.Symbol, len(rawSymbols))
	for i, s := range rawSymbols {
		pc := uint64(0)
		if i < len(symbolPCs) {
			pc = symbolPCs[i]
		}

		bound[i] = symbol.Symbol{Index: s.Index, CubinOffset: s.CubinOffset, PC: pc}
	}

	c := &Cubin{
		ID:      id,
		Path:    path,
		Symbols: symbol.NewTable(bound),
		Graph:   graph,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.active[id]; exists {
		return nil, rerror.New(rerror.DuplicateEntry, "Register", nil)
	}

	r.active[id] = c

	return c, nil
}

// Register is the Registry method form of the package-level Register.
func (r *Registry) Register(id uint32, symbolPCs []uint64, path string) (*Cubin, error) {
	return Register(r, id, symbolPCs, path)
}

// CacheRegister stores cubin metadata for lazy promotion. It fails with
// rerror.DuplicateEntry if id is already cached.
func (r *Registry) CacheRegister(id uint32, symbolPCs []uint64, path string) error {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	if _, exists := r.cache[id]; exists {
		return rerror.New(rerror.DuplicateEntry, "CacheRegister", nil)
	}

	pcs := make([]uint64, len(symbolPCs))
	copy(pcs, symbolPCs)

	r.cache[id] = &CacheEntry{ID: id, Path: path, SymbolPCs: pcs}

	return nil
}

// Unregister removes id from the active map. Cache entries are untouched.
// It fails with rerror.NotExistEntry if id is not active.
func (r *Registry) Unregister(id uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.active[id]; !exists {
		return rerror.New(rerror.NotExistEntry, "Unregister", nil)
	}

	delete(r.active, id)

	return nil
}

// Lookup returns the active Cubin for id, if any.
func (r *Registry) Lookup(id uint32) (*Cubin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.active[id]

	return c, ok
}

// PromoteFromCache registers the cached metadata for id as an active cubin.
// It fails with rerror.NotExistEntry if id was never cached.
func (r *Registry) PromoteFromCache(id uint32) (*Cubin, error) {
	r.cacheMu.RLock()
	entry, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if !ok {
		return nil, rerror.New(rerror.NotExistEntry, "PromoteFromCache", nil)
	}

	return r.Register(id, entry.SymbolPCs, entry.Path)
}

// instFilePath derives the .inst sidecar path for a cubin image path:
// <dir>/structs/nvidia/<basename-without-ext>.inst.
func instFilePath(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	nameNoExt := strings.TrimSuffix(base, ext)

	return filepath.Join(dir, "structs", "nvidia", nameNoExt+".inst")
}
