package codegen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/jsgraph/internal/dependency"
	"github.com/roach88/jsgraph/internal/graph"
	"github.com/roach88/jsgraph/internal/ident"
)

var (
	esmMeta     = graph.BuildMeta{ExportsType: graph.MetaExportsNamespace, ESM: true}
	dynamicMeta = graph.BuildMeta{ExportsType: graph.MetaExportsDynamic}
	jsonMeta    = graph.BuildMeta{ExportsType: graph.MetaExportsDefault}
	namedMeta   = graph.BuildMeta{ExportsType: graph.MetaExportsDefault, DefaultObject: graph.DefaultObjectRedirect}
)

// chunkView assigns every module "." + its resource as id.
type chunkView struct {
	blocks map[ident.BlockID][]ChunkRef
}

func (v *chunkView) ModuleID(m ident.ModuleIdentifier) (ident.OutputID, bool) {
	return ident.OutputID("." + m.Resource()), true
}

func (v *chunkView) BlockChunks(b ident.BlockID) []ChunkRef {
	return v.blocks[b]
}

type fixture struct {
	t    *testing.T
	g    *graph.Graph
	view *chunkView
}

func newFixture(t *testing.T) *fixture {
	return &fixture{t: t, g: graph.New(), view: &chunkView{blocks: map[ident.BlockID][]ChunkRef{}}}
}

// builder assembles one module's build result.
type builder struct {
	f   *fixture
	r   *graph.BuildResult
	src string
	n   int
}

func (f *fixture) module(path, src string, meta graph.BuildMeta, exports ...string) *builder {
	info := graph.BuildInfo{NamedExports: exports, ModuleArgument: "module", ExportsArgument: "exports"}
	if meta.ESM {
		info.Strict = true
		info.ExportsArgument = "__webpack_exports__"
	}
	return &builder{
		f:   f,
		src: src,
		r: &graph.BuildResult{
			Module: &graph.Module{
				Identifier: modID(path),
				Resource:   path,
				BuildMeta:  meta,
				BuildInfo:  info,
				Source:     []byte(src),
			},
			Resolved: map[ident.DependencyID]ident.ModuleIdentifier{},
		},
	}
}

func modID(path string) ident.ModuleIdentifier {
	return ident.NewModuleIdentifier(ident.TypeJavaScriptAuto, path)
}

func (b *builder) nextID(typ dependency.Type, request string) ident.DependencyID {
	b.n++
	return ident.MustDependencyID(b.r.Module.Identifier, string(typ), request, b.n)
}

// find returns the range of the nth occurrence of needle.
func (b *builder) find(needle string, nth int) dependency.Range {
	b.f.t.Helper()
	from := 0
	for i := 0; ; i++ {
		at := strings.Index(b.src[from:], needle)
		require.GreaterOrEqual(b.f.t, at, 0, "%q not found", needle)
		if i == nth {
			start := uint32(from + at)
			return dependency.Range{Start: start, End: start + uint32(len(needle))}
		}
		from += at + len(needle)
	}
}

// within returns the range of part inside the first occurrence of needle.
func (b *builder) within(needle, part string) dependency.Range {
	b.f.t.Helper()
	outer := b.find(needle, 0)
	at := strings.Index(needle, part)
	require.GreaterOrEqual(b.f.t, at, 0)
	start := outer.Start + uint32(at)
	return dependency.Range{Start: start, End: start + uint32(len(part))}
}

func (b *builder) add(d dependency.Dependency, target string) dependency.Dependency {
	b.r.Dependencies = append(b.r.Dependencies, d)
	b.r.Module.Dependencies = append(b.r.Module.Dependencies, d.ID())
	if target != "" {
		b.r.Resolved[d.ID()] = modID(target)
	}
	return d
}

// block adds a top-level block holding deps.
func (b *builder) block(chunks []ChunkRef, deps ...dependency.Dependency) *dependency.AsyncBlock {
	id := ident.MustBlockID(b.r.Module.Identifier, "", "block", len(b.r.Blocks))
	blk := &dependency.AsyncBlock{ID: id, Module: b.r.Module.Identifier}
	for _, d := range deps {
		blk.Dependencies = append(blk.Dependencies, d.ID())
		b.r.Dependencies = append(b.r.Dependencies, d)
	}
	b.r.Blocks = append(b.r.Blocks, blk)
	b.r.Module.Blocks = append(b.r.Module.Blocks, id)
	b.f.view.blocks[id] = chunks
	return blk
}

func (b *builder) resolve(d dependency.Dependency, target string) {
	b.r.Resolved[d.ID()] = modID(target)
}

func (b *builder) merge() ident.ModuleIdentifier {
	b.f.t.Helper()
	require.NoError(b.f.t, b.f.g.Merge(b.r))
	return b.r.Module.Identifier
}

func (f *fixture) leaf(path string, meta graph.BuildMeta, exports ...string) ident.ModuleIdentifier {
	return f.module(path, "", meta, exports...).merge()
}

func (f *fixture) renderer(opts Options) *Renderer {
	return NewRenderer(f.g, f.view, opts)
}

// context returns a render context for an already merged module.
func (f *fixture) context(id ident.ModuleIdentifier, opts Options) *TemplateContext {
	f.t.Helper()
	m, ok := f.g.Snapshot(id)
	require.True(f.t, ok)
	return newTemplateContext(f.g, f.view, m, "", opts)
}
