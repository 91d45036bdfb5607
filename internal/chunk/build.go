package chunk

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/jsgraph/internal/ctxlog"
	"github.com/roach88/jsgraph/internal/dependency"
	"github.com/roach88/jsgraph/internal/diag"
	"github.com/roach88/jsgraph/internal/graph"
	"github.com/roach88/jsgraph/internal/ident"
)

// Entry is a named entry point.
type Entry struct {
	Name   string
	Module ident.ModuleIdentifier
}

// IDs selects how module and chunk ids are assigned.
type IDs string

const (
	// IDsNamed uses readable names: "./src/a.js" for modules, the chunk name
	// or a name derived from the chunk's modules for chunks.
	IDsNamed IDs = "named"
	// IDsDeterministic hashes the readable names into short numbers that
	// stay stable while the set of names changes little.
	IDsDeterministic IDs = "deterministic"
)

// Options configure Build.
type Options struct {
	// Context is the directory readable names are relative to.
	Context string
	IDs     IDs
	// AsyncChunkName names async chunks that have no name after the namer
	// ran after the request that loads them.
	AsyncChunkName bool
	Namer          Namer
	// Parallelism bounds concurrent namer calls. Zero means 8.
	Parallelism int
}

// Build chunks the modules reachable from entries.
func Build(ctx context.Context, g *graph.Graph, entries []Entry, opts Options) (*Graph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := &builder{
		g:       g,
		byName:  make(map[string]*Chunk),
		byBlock: make(map[ident.BlockID]*Chunk),
	}

	sorted := slices.SortedFunc(slices.Values(entries), func(a, b Entry) int { return cmp.Compare(a.Name, b.Name) })
	for i, e := range sorted {
		if i > 0 && sorted[i-1].Name == e.Name {
			return nil, fmt.Errorf("entry %q is defined twice", e.Name)
		}
		if _, ok := g.ModuleByIdentifier(e.Module); !ok {
			return nil, fmt.Errorf("entry %q: %w", e.Name, diag.NewUnknownModuleError(e.Module))
		}
		c := b.newChunk(KindEntry, e.Name)
		c.Runtime = e.Name
		c.HasRuntime = true
		c.Entry = e.Module
	}

	b.discover()
	b.place()
	readable := b.readableNames(opts.Context)
	if err := nameChunks(ctx, b.chunks, readable, opts); err != nil {
		return nil, err
	}
	out := b.finish(readable, opts)

	ctxlog.FromContext(ctx).Debug("chunk graph built",
		"chunks", len(out.chunks),
		"modules", len(out.moduleIDs),
		"ids", string(opts.IDs))
	return out, nil
}

type builder struct {
	g       *graph.Graph
	chunks  []*Chunk
	byName  map[string]*Chunk
	byBlock map[ident.BlockID]*Chunk
}

func (b *builder) newChunk(kind Kind, name string) *Chunk {
	c := &Chunk{Kind: kind, Name: name, order: len(b.chunks)}
	b.chunks = append(b.chunks, c)
	return c
}

// discover creates the chunks of every block reachable from the entries.
// A chunk is processed again when it gains a block, since that adds roots.
func (b *builder) discover() {
	queue := slices.Clone(b.chunks)
	queued := make(map[*Chunk]bool, len(queue))
	for _, c := range queue {
		queued[c] = true
	}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		queued[c] = false
		for _, dirty := range b.process(c) {
			if !queued[dirty] {
				queued[dirty] = true
				queue = append(queue, dirty)
			}
		}
	}
}

func (b *builder) process(c *Chunk) []*Chunk {
	c.full = b.closure(b.roots(c))
	var dirty []*Chunk
	link := func(id ident.BlockID) {
		blk, ok := b.g.BlockByID(id)
		if !ok {
			return
		}
		if child, changed := b.link(c, blk); changed {
			dirty = append(dirty, child)
		}
	}
	for _, m := range slices.Sorted(maps.Keys(c.full)) {
		mod, ok := b.g.ModuleByIdentifier(m)
		if !ok {
			continue
		}
		for _, id := range mod.Blocks {
			link(id)
		}
	}
	// Nested blocks load from the chunk of their parent block.
	for _, id := range slices.Clone(c.Blocks) {
		if blk, ok := b.g.BlockByID(id); ok {
			for _, nested := range blk.Blocks {
				link(nested)
			}
		}
	}
	return dirty
}

// roots are the modules a chunk starts from.
func (b *builder) roots(c *Chunk) []ident.ModuleIdentifier {
	if c.Kind == KindEntry {
		return []ident.ModuleIdentifier{c.Entry}
	}
	var roots []ident.ModuleIdentifier
	for _, id := range c.Blocks {
		blk, ok := b.g.BlockByID(id)
		if !ok {
			continue
		}
		for _, dep := range blk.Dependencies {
			if t, ok := b.g.ModuleIdentifierByDependencyID(dep); ok {
				roots = append(roots, t)
			}
		}
	}
	if c.Kind == KindWorker && c.Entry == "" && len(roots) > 0 {
		c.Entry = roots[0]
	}
	return roots
}

// closure follows module-level dependencies. Blocks are not followed: their
// targets belong to other chunks.
func (b *builder) closure(roots []ident.ModuleIdentifier) moduleSet {
	set := make(moduleSet)
	stack := slices.Clone(roots)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if set.has(id) {
			continue
		}
		m, ok := b.g.ModuleByIdentifier(id)
		if !ok {
			continue
		}
		set[id] = struct{}{}
		for _, dep := range m.Dependencies {
			if t, ok := b.g.ModuleIdentifierByDependencyID(dep); ok && !set.has(t) {
				stack = append(stack, t)
			}
		}
	}
	return set
}

// link makes the chunk of blk a child of parent, creating it when needed.
// Async blocks with the same chunk name share one chunk. changed reports
// whether the child gained a block and must be processed.
func (b *builder) link(parent *Chunk, blk *dependency.AsyncBlock) (*Chunk, bool) {
	c, ok := b.byBlock[blk.ID]
	changed := false
	if !ok {
		name := blk.ChunkName()
		switch {
		case blk.IsEntry():
			c = b.newChunk(KindWorker, name)
			c.HasRuntime = true
			c.Runtime = blk.Options.Entry.Runtime
		case name != "" && b.byName[name] != nil:
			c = b.byName[name]
		default:
			c = b.newChunk(KindAsync, name)
			if name != "" {
				b.byName[name] = c
			}
		}
		c.Blocks = append(c.Blocks, blk.ID)
		c.requests = append(c.requests, blk.Request)
		b.byBlock[blk.ID] = c
		changed = true
	}
	if !slices.Contains(parent.children, c) {
		parent.children = append(parent.children, c)
		c.parents = append(c.parents, parent)
	}
	return c, changed
}

// place computes the modules available when each chunk loads: the
// intersection over its parents of what the parent had available plus what
// it contains. Runtime chunks start with nothing available; a chunk
// missing from avail still has everything available, the top of the
// lattice. Sets only shrink, so the loop ends.
func (b *builder) place() {
	avail := make(map[*Chunk]moduleSet, len(b.chunks))
	for _, c := range b.chunks {
		if c.HasRuntime {
			avail[c] = moduleSet{}
		}
	}
	for changed := true; changed; {
		changed = false
		for _, c := range b.chunks {
			if c.HasRuntime {
				continue
			}
			next, known := available(c, avail)
			if !known {
				continue
			}
			if prev, ok := avail[c]; !ok || len(prev) != len(next) {
				avail[c] = next
				changed = true
			}
		}
	}
	for _, c := range b.chunks {
		have := avail[c]
		for m := range c.full {
			if !have.has(m) {
				c.Modules = append(c.Modules, m)
			}
		}
		slices.Sort(c.Modules)
	}
}

func available(c *Chunk, avail map[*Chunk]moduleSet) (moduleSet, bool) {
	var out moduleSet
	known := false
	for _, p := range c.parents {
		pa, ok := avail[p]
		if !ok {
			continue
		}
		union := maps.Clone(pa)
		maps.Copy(union, p.full)
		if !known {
			out, known = union, true
			continue
		}
		for m := range out {
			if !union.has(m) {
				delete(out, m)
			}
		}
	}
	return out, known
}

func (b *builder) readableNames(context string) map[ident.ModuleIdentifier]string {
	var ids []ident.ModuleIdentifier
	for _, c := range b.chunks {
		ids = append(ids, c.Modules...)
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	out := make(map[ident.ModuleIdentifier]string, len(ids))
	taken := make(map[string]bool, len(ids))
	for _, id := range ids {
		m, ok := b.g.ModuleByIdentifier(id)
		if !ok {
			continue
		}
		name := readableName(context, m)
		if taken[name] {
			name += "|" + m.Kind.ModuleType()
		}
		taken[name] = true
		out[id] = name
	}
	return out
}

func (b *builder) finish(readable map[ident.ModuleIdentifier]string, opts Options) *Graph {
	out := &Graph{
		byID:      make(map[ident.OutputID]*Chunk),
		byBlock:   b.byBlock,
		byModule:  make(map[ident.ModuleIdentifier][]*Chunk),
		moduleIDs: assignModuleIDs(readable, opts.IDs),
	}
	var emitted []*Chunk
	for _, c := range b.chunks {
		if c.emitted() {
			emitted = append(emitted, c)
		}
	}
	assignChunkIDs(emitted, readable, opts.IDs)

	for _, c := range emitted {
		slices.SortFunc(c.Modules, func(x, y ident.ModuleIdentifier) int {
			return ident.CompareOutputID(out.moduleIDs[x], out.moduleIDs[y])
		})
		slices.Sort(c.Blocks)
		slices.Sort(c.requests)
		if c.Kind == KindEntry && c.Name != "" {
			c.File = c.Name + ".js"
		} else {
			c.File = string(c.ID) + ".js"
		}
		if c.HasRuntime && c.Runtime == "" {
			c.Runtime = cmp.Or(c.Name, string(c.ID))
		}
		out.byID[c.ID] = c
		for _, m := range c.Modules {
			out.byModule[m] = append(out.byModule[m], c)
		}
	}
	slices.SortFunc(emitted, compareChunks)
	for _, cs := range out.byModule {
		slices.SortFunc(cs, compareChunks)
	}
	out.chunks = emitted
	return out
}
