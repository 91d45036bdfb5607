// Package chunk splits the module graph into the chunks a build emits.
//
// Every entry gets a chunk carrying the runtime. Async blocks (import(),
// require.ensure, AMD require) get chunks loaded on demand, and worker
// blocks get entry chunks with a runtime of their own. A chunk holds the
// modules its loaders cannot already have: modules available in every
// parent are left out.
package chunk

import (
	"slices"

	"github.com/roach88/jsgraph/internal/codegen"
	"github.com/roach88/jsgraph/internal/ident"
)

// Kind is how a chunk is loaded.
type Kind uint8

const (
	KindEntry  Kind = iota // loaded by the page, carries a runtime
	KindAsync              // loaded on demand by a parent's runtime
	KindWorker             // loaded by a worker, carries its own runtime
)

func (k Kind) String() string {
	switch k {
	case KindAsync:
		return "async"
	case KindWorker:
		return "worker"
	}
	return "entry"
}

// Chunk is one emitted file.
type Chunk struct {
	ID         ident.OutputID
	Name       string // entry name, magic comment or namer result; may be empty
	Kind       Kind
	Runtime    string
	HasRuntime bool
	File       string
	// Entry is the module a runtime chunk starts by requiring.
	Entry ident.ModuleIdentifier
	// Modules are sorted by module id.
	Modules []ident.ModuleIdentifier
	// Blocks are the blocks that load the chunk, sorted.
	Blocks []ident.BlockID
	// HasError is set by MarkErrors when a module of the chunk failed.
	HasError bool

	requests []string
	full     moduleSet
	parents  []*Chunk
	children []*Chunk
	order    int
}

// Requests lists the requests of the blocks loading the chunk, sorted.
func (c *Chunk) Requests() []string { return slices.Clone(c.requests) }

// Graph is the result of chunking a module graph. Apart from MarkErrors it
// is immutable once built and safe for concurrent reads; codegen reads it
// as a ChunkView.
type Graph struct {
	chunks    []*Chunk
	byID      map[ident.OutputID]*Chunk
	byBlock   map[ident.BlockID]*Chunk
	byModule  map[ident.ModuleIdentifier][]*Chunk
	moduleIDs map[ident.ModuleIdentifier]ident.OutputID
}

var _ codegen.ChunkView = (*Graph)(nil)

// Chunks returns the non-empty chunks ordered by id.
func (g *Graph) Chunks() []*Chunk { return slices.Clone(g.chunks) }

// Chunk looks a chunk up by id.
func (g *Graph) Chunk(id ident.OutputID) (*Chunk, bool) {
	c, ok := g.byID[id]
	return c, ok
}

// RuntimeChunks returns the chunks carrying a runtime, ordered by id.
func (g *Graph) RuntimeChunks() []*Chunk {
	var out []*Chunk
	for _, c := range g.chunks {
		if c.HasRuntime {
			out = append(out, c)
		}
	}
	return out
}

// ModuleID returns the output id of a module placed in some chunk.
func (g *Graph) ModuleID(m ident.ModuleIdentifier) (ident.OutputID, bool) {
	id, ok := g.moduleIDs[m]
	return id, ok
}

// ModuleIDs returns a copy of the module id table.
func (g *Graph) ModuleIDs() map[ident.ModuleIdentifier]ident.OutputID {
	out := make(map[ident.ModuleIdentifier]ident.OutputID, len(g.moduleIDs))
	for m, id := range g.moduleIDs {
		out[m] = id
	}
	return out
}

// MarkErrors flags every chunk holding a module for which failed is true, and
// returns the flagged chunks ordered by id. It must not run concurrently
// with readers.
func (g *Graph) MarkErrors(failed func(ident.ModuleIdentifier) bool) []*Chunk {
	var out []*Chunk
	for _, c := range g.chunks {
		if slices.ContainsFunc(c.Modules, failed) {
			c.HasError = true
			out = append(out, c)
		}
	}
	return out
}

// ChunksOf returns the chunks containing m, ordered by id.
func (g *Graph) ChunksOf(m ident.ModuleIdentifier) []*Chunk {
	return slices.Clone(g.byModule[m])
}

// BlockChunks returns the chunk a block loads. A block whose modules are all
// available where it is loaded has no chunk.
func (g *Graph) BlockChunks(b ident.BlockID) []codegen.ChunkRef {
	c, ok := g.byBlock[b]
	if !ok || !c.emitted() {
		return nil
	}
	return []codegen.ChunkRef{{ID: c.ID, HasRuntime: c.HasRuntime}}
}

// Loadable returns the chunks the runtime of c may load: its descendants,
// without descending into chunks that carry a runtime of their own.
func (g *Graph) Loadable(c *Chunk) []*Chunk {
	seen := map[*Chunk]bool{c: true}
	var out []*Chunk
	stack := slices.Clone(c.children)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		if n.emitted() {
			out = append(out, n)
		}
		if !n.HasRuntime {
			stack = append(stack, n.children...)
		}
	}
	slices.SortFunc(out, compareChunks)
	return out
}

// emitted reports whether the chunk ends up in the output. Runtime chunks
// are always emitted; async chunks only when they hold modules.
func (c *Chunk) emitted() bool {
	return c.HasRuntime || len(c.Modules) > 0
}

func compareChunks(a, b *Chunk) int {
	return ident.CompareOutputID(a.ID, b.ID)
}

type moduleSet map[ident.ModuleIdentifier]struct{}

func (s moduleSet) has(m ident.ModuleIdentifier) bool {
	_, ok := s[m]
	return ok
}
