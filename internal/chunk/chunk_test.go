package chunk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/jsgraph/internal/codegen"
	"github.com/roach88/jsgraph/internal/dependency"
	"github.com/roach88/jsgraph/internal/diag"
	"github.com/roach88/jsgraph/internal/graph"
	"github.com/roach88/jsgraph/internal/ident"
)

func modID(name string) ident.ModuleIdentifier {
	return ident.NewModuleIdentifier(ident.TypeJavaScriptAuto, "/app/src/"+name)
}

// project builds a module graph of files under /app/src.
type project struct {
	t     *testing.T
	files map[string]*graph.BuildResult
	order []string
}

func newProject(t *testing.T) *project {
	return &project{t: t, files: map[string]*graph.BuildResult{}}
}

func (p *project) file(name string) *graph.BuildResult {
	if r, ok := p.files[name]; ok {
		return r
	}
	r := &graph.BuildResult{
		Module: &graph.Module{
			Identifier: modID(name),
			Resource:   "/app/src/" + name,
			BuildMeta:  graph.BuildMeta{ExportsType: graph.MetaExportsNamespace, ESM: true},
		},
		Resolved: map[ident.DependencyID]ident.ModuleIdentifier{},
	}
	p.files[name] = r
	p.order = append(p.order, name)
	return r
}

func (p *project) imports(from string, to ...string) {
	r := p.file(from)
	for _, name := range to {
		p.file(name)
		req := "./" + name
		id := ident.MustDependencyID(r.Module.Identifier, string(dependency.TypeESMImportSideEffect), req, len(r.Dependencies))
		d := dependency.NewESMImportSideEffect(id, req, dependency.Range{}, len(r.Module.Dependencies)+1)
		r.Dependencies = append(r.Dependencies, d)
		r.Module.Dependencies = append(r.Module.Dependencies, id)
		r.Resolved[id] = modID(name)
	}
}

func (p *project) block(from, to string, opts *dependency.GroupOptions, dep func(ident.DependencyID, string) dependency.Dependency, typ dependency.Type) ident.BlockID {
	r := p.file(from)
	p.file(to)
	owner := r.Module.Identifier
	req := "./" + to
	id := ident.MustDependencyID(owner, string(typ), req, len(r.Dependencies))
	d := dep(id, req)
	blk := &dependency.AsyncBlock{
		ID:           ident.MustBlockID(owner, "", req, len(r.Blocks)),
		Module:       owner,
		Request:      req,
		Options:      opts,
		Dependencies: []ident.DependencyID{id},
	}
	r.Dependencies = append(r.Dependencies, d)
	r.Resolved[id] = modID(to)
	r.Blocks = append(r.Blocks, blk)
	r.Module.Blocks = append(r.Module.Blocks, blk.ID)
	return blk.ID
}

func (p *project) lazy(from, to, name string) ident.BlockID {
	var opts *dependency.GroupOptions
	if name != "" {
		opts = &dependency.GroupOptions{Name: name}
	}
	return p.block(from, to, opts, func(id ident.DependencyID, req string) dependency.Dependency {
		return dependency.NewImportDynamic(id, req, dependency.Range{})
	}, dependency.TypeImportDynamic)
}

func (p *project) worker(from, to, name string) ident.BlockID {
	opts := &dependency.GroupOptions{Name: name, Entry: &dependency.EntryOptions{Name: name, ChunkLoading: "import-scripts"}}
	return p.block(from, to, opts, func(id ident.DependencyID, req string) dependency.Dependency {
		return dependency.NewWorker(id, req, dependency.Range{})
	}, dependency.TypeWorker)
}

func (p *project) graph() *graph.Graph {
	g := graph.New()
	for _, name := range p.order {
		require.NoError(p.t, g.Merge(p.files[name]))
	}
	return g
}

func (p *project) build(opts Options, entries ...string) *Graph {
	p.t.Helper()
	var es []Entry
	for _, e := range entries {
		name, file, _ := strings.Cut(e, "=")
		es = append(es, Entry{Name: name, Module: modID(file)})
	}
	if opts.Context == "" {
		opts.Context = "/app"
	}
	out, err := Build(context.Background(), p.graph(), es, opts)
	require.NoError(p.t, err)
	return out
}

func modules(c *Chunk) []string {
	var out []string
	for _, m := range c.Modules {
		out = append(out, strings.TrimPrefix(m.Resource(), "/app/src/"))
	}
	return out
}

func ids(cs []*Chunk) []ident.OutputID {
	var out []ident.OutputID
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}

func TestEntryChunkHoldsSyncClosure(t *testing.T) {
	p := newProject(t)
	p.imports("index.js", "a.js")
	p.imports("a.js", "b.js")
	blk := p.lazy("index.js", "c.js", "")
	p.imports("c.js", "b.js", "d.js")

	g := p.build(Options{}, "main=index.js")

	main, ok := g.Chunk("main")
	require.True(t, ok)
	assert.Equal(t, KindEntry, main.Kind)
	assert.True(t, main.HasRuntime)
	assert.Equal(t, "main", main.Runtime)
	assert.Equal(t, "main.js", main.File)
	assert.Equal(t, modID("index.js"), main.Entry)
	assert.Equal(t, []string{"a.js", "b.js", "index.js"}, modules(main))

	refs := g.BlockChunks(blk)
	require.Len(t, refs, 1)
	assert.Equal(t, codegen.ChunkRef{ID: "src_c_js-src_d_js"}, refs[0])
	lazy, ok := g.Chunk(refs[0].ID)
	require.True(t, ok)
	assert.Equal(t, KindAsync, lazy.Kind)
	assert.Equal(t, []string{"c.js", "d.js"}, modules(lazy), "b.js is available from main")
	assert.Equal(t, "src_c_js-src_d_js.js", lazy.File)
	assert.Equal(t, []string{"./c.js"}, lazy.Requests())

	id, ok := g.ModuleID(modID("a.js"))
	require.True(t, ok)
	assert.Equal(t, ident.OutputID("./src/a.js"), id)
	assert.Len(t, g.ModuleIDs(), 5)

	assert.Equal(t, []ident.OutputID{"main"}, ids(g.ChunksOf(modID("b.js"))))
	assert.Equal(t, []ident.OutputID{"main"}, ids(g.RuntimeChunks()))
	assert.Equal(t, []ident.OutputID{"src_c_js-src_d_js"}, ids(g.Loadable(main)))
}

func TestMarkErrorsFlagsChunksOfFailedModules(t *testing.T) {
	p := newProject(t)
	p.imports("index.js", "a.js")
	p.lazy("index.js", "c.js", "")
	p.lazy("index.js", "d.js", "")

	g := p.build(Options{}, "main=index.js")
	marked := g.MarkErrors(func(m ident.ModuleIdentifier) bool { return m == modID("c.js") })

	assert.Equal(t, []ident.OutputID{"src_c_js"}, ids(marked))
	for _, c := range g.Chunks() {
		assert.Equal(t, c.ID == "src_c_js", c.HasError, "chunk %s", c.ID)
	}
}

func TestNamedBlocksShareAChunk(t *testing.T) {
	p := newProject(t)
	first := p.lazy("index.js", "x.js", "lazy")
	second := p.lazy("index.js", "y.js", "lazy")
	other := p.lazy("index.js", "z.js", "")

	g := p.build(Options{}, "main=index.js")

	assert.Equal(t, g.BlockChunks(first), g.BlockChunks(second))
	c, ok := g.Chunk("lazy")
	require.True(t, ok)
	assert.Equal(t, []string{"x.js", "y.js"}, modules(c))
	assert.Len(t, c.Blocks, 2)
	assert.Equal(t, "lazy.js", c.File)
	assert.Equal(t, []string{"./x.js", "./y.js"}, c.Requests())

	assert.Equal(t, []codegen.ChunkRef{{ID: "src_z_js"}}, g.BlockChunks(other))
	assert.Equal(t, []ident.OutputID{"lazy", "main", "src_z_js"}, ids(g.Chunks()))
}

func TestBlockOfAvailableModulesHasNoChunk(t *testing.T) {
	p := newProject(t)
	p.imports("index.js", "a.js")
	blk := p.lazy("index.js", "a.js", "")

	g := p.build(Options{}, "main=index.js")

	assert.Empty(t, g.BlockChunks(blk))
	assert.Equal(t, []ident.OutputID{"main"}, ids(g.Chunks()))
	main, _ := g.Chunk("main")
	assert.Empty(t, g.Loadable(main))
}

func TestAvailabilityIntersectsParents(t *testing.T) {
	p := newProject(t)
	p.imports("a.js", "shared.js")
	p.imports("lazy.js", "shared.js")
	fromA := p.lazy("a.js", "lazy.js", "lazy")
	p.lazy("b.js", "lazy.js", "lazy")

	g := p.build(Options{}, "a=a.js", "b=b.js")
	refs := g.BlockChunks(fromA)
	require.Len(t, refs, 1)
	c, _ := g.Chunk(refs[0].ID)
	assert.Equal(t, []string{"lazy.js", "shared.js"}, modules(c), "b does not have shared.js")
	assert.Equal(t, []ident.OutputID{"a", "lazy"}, ids(g.ChunksOf(modID("shared.js"))))

	g = p.build(Options{}, "a=a.js")
	c, _ = g.Chunk("lazy")
	assert.Equal(t, []string{"lazy.js"}, modules(c))
}

func TestAvailabilityFlowsThroughAsyncChunks(t *testing.T) {
	p := newProject(t)
	p.lazy("index.js", "x.js", "x")
	p.imports("x.js", "y.js")
	p.lazy("x.js", "z.js", "z")
	p.imports("z.js", "y.js")

	g := p.build(Options{}, "main=index.js")

	x, _ := g.Chunk("x")
	z, _ := g.Chunk("z")
	assert.Equal(t, []string{"x.js", "y.js"}, modules(x))
	assert.Equal(t, []string{"z.js"}, modules(z))
	main, _ := g.Chunk("main")
	assert.Equal(t, []ident.OutputID{"x", "z"}, ids(g.Loadable(main)))
}

func TestImportCycleTerminates(t *testing.T) {
	p := newProject(t)
	toA := p.lazy("index.js", "a.js", "")
	toB := p.lazy("a.js", "b.js", "")
	back := p.lazy("b.js", "a.js", "")

	g := p.build(Options{}, "main=index.js")

	assert.Equal(t, []codegen.ChunkRef{{ID: "src_a_js"}}, g.BlockChunks(toA))
	assert.Equal(t, []codegen.ChunkRef{{ID: "src_b_js"}}, g.BlockChunks(toB))
	assert.Empty(t, g.BlockChunks(back), "a.js is loaded before b.js runs")
}

func TestWorkerChunkCarriesItsOwnRuntime(t *testing.T) {
	p := newProject(t)
	p.imports("index.js", "util.js")
	blk := p.worker("index.js", "worker.js", "compute")
	p.imports("worker.js", "util.js")
	p.lazy("worker.js", "heavy.js", "")

	g := p.build(Options{}, "main=index.js")

	refs := g.BlockChunks(blk)
	require.Len(t, refs, 1)
	assert.True(t, refs[0].HasRuntime)
	w, ok := g.Chunk(refs[0].ID)
	require.True(t, ok)
	assert.Equal(t, KindWorker, w.Kind)
	assert.Equal(t, "compute", w.Name)
	assert.Equal(t, "compute", w.Runtime)
	assert.Equal(t, "compute.js", w.File)
	assert.Equal(t, modID("worker.js"), w.Entry)
	assert.Equal(t, []string{"util.js", "worker.js"}, modules(w), "a worker starts with nothing loaded")

	main, _ := g.Chunk("main")
	assert.Equal(t, []ident.OutputID{"compute"}, ids(g.Loadable(main)))
	assert.Equal(t, []ident.OutputID{"src_heavy_js"}, ids(g.Loadable(w)))
	assert.Equal(t, []ident.OutputID{"compute", "main"}, ids(g.RuntimeChunks()))
}

func TestDeterministicIDs(t *testing.T) {
	p := newProject(t)
	p.imports("index.js", "a.js", "b.js")
	blk := p.lazy("index.js", "c.js", "")

	g1 := p.build(Options{IDs: IDsDeterministic}, "main=index.js")
	g2 := p.build(Options{IDs: IDsDeterministic}, "main=index.js")

	assert.Empty(t, cmp.Diff(g1.ModuleIDs(), g2.ModuleIDs()))
	seen := map[ident.OutputID]bool{}
	for _, id := range g1.ModuleIDs() {
		assert.True(t, id.IsNumeric(), id)
		assert.Less(t, len(id), 4)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}

	refs := g1.BlockChunks(blk)
	require.Len(t, refs, 1)
	assert.True(t, refs[0].ID.IsNumeric())
	c, _ := g1.Chunk(refs[0].ID)
	assert.Equal(t, string(c.ID)+".js", c.File)
	for _, c := range g1.RuntimeChunks() {
		assert.True(t, c.ID.IsNumeric())
		assert.Equal(t, "main.js", c.File, "entry files keep their name")
		assert.Equal(t, "main", c.Runtime)
	}
}

func TestAssignNumbersGrowsTheRange(t *testing.T) {
	names := func(n int) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = fmt.Sprintf("./src/m%d.js", i)
		}
		return out
	}
	tests := []struct {
		count int
		limit int
	}{
		{count: 10, limit: 3},
		{count: 800, limit: 3},
		{count: 801, limit: 4},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.count), func(t *testing.T) {
			got := assignNumbers(names(tt.count))
			require.Len(t, got, tt.count)
			seen := map[ident.OutputID]bool{}
			for _, id := range got {
				assert.LessOrEqual(t, len(id), tt.limit)
				assert.False(t, seen[id])
				seen[id] = true
			}
		})
	}
}

func TestNamerNamesUnnamedChunks(t *testing.T) {
	p := newProject(t)
	p.lazy("index.js", "pages/about.js", "")
	p.lazy("index.js", "pages/home.js", "")
	p.lazy("index.js", "vendor.js", "vendor")

	var (
		mu    sync.Mutex
		calls []ChunkInfo
	)
	namer := NamerFunc(func(ctx context.Context, info ChunkInfo) (string, bool, error) {
		mu.Lock()
		calls = append(calls, info)
		mu.Unlock()
		if info.Requests[0] == "./pages/home.js" {
			return "", false, nil
		}
		return "about-page", true, nil
	})

	g := p.build(Options{Namer: namer, AsyncChunkName: true}, "main=index.js")

	assert.Len(t, calls, 2, "named chunks are not offered to the namer")
	for _, info := range calls {
		assert.Equal(t, KindAsync, info.Kind)
		assert.Len(t, info.Modules, 1)
	}
	assert.Equal(t, []ident.OutputID{"about-page", "main", "pages_home_js", "vendor"}, ids(g.Chunks()))
}

func TestAsyncChunkNameDisabled(t *testing.T) {
	p := newProject(t)
	p.lazy("index.js", "pages/about.js", "")
	p.imports("pages/about.js", "pages/shared.js")

	g := p.build(Options{}, "main=index.js")
	assert.Equal(t, []ident.OutputID{"main", "src_pages_about_js-src_pages_shared_js"}, ids(g.Chunks()))
	for _, c := range g.Chunks() {
		if c.Kind == KindAsync {
			assert.Empty(t, c.Name)
		}
	}
}

func TestNamerErrorFailsBuild(t *testing.T) {
	p := newProject(t)
	p.lazy("index.js", "a.js", "")
	boom := errors.New("boom")
	namer := NamerFunc(func(context.Context, ChunkInfo) (string, bool, error) { return "", false, boom })

	_, err := Build(context.Background(), p.graph(), []Entry{{Name: "main", Module: modID("index.js")}}, Options{Namer: namer})
	require.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "name chunk for ./a.js")
}

func TestBuildRejectsBadEntries(t *testing.T) {
	p := newProject(t)
	p.file("index.js")
	g := p.graph()
	ctx := context.Background()

	_, err := Build(ctx, g, []Entry{{Name: "main", Module: modID("missing.js")}}, Options{})
	assert.True(t, diag.IsUnknownModule(err))

	_, err = Build(ctx, g, []Entry{{Name: "main", Module: modID("index.js")}, {Name: "main", Module: modID("index.js")}}, Options{})
	assert.ErrorContains(t, err, `entry "main" is defined twice`)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = Build(canceled, g, []Entry{{Name: "main", Module: modID("index.js")}}, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSameNameChunksGetDistinctIDs(t *testing.T) {
	p := newProject(t)
	p.lazy("index.js", "a.js", "")
	p.lazy("index.js", "b.js", "")
	namer := NamerFunc(func(context.Context, ChunkInfo) (string, bool, error) { return "page", true, nil })

	g := p.build(Options{Namer: namer}, "main=index.js")
	assert.Equal(t, []ident.OutputID{"main", "page", "page~2"}, ids(g.Chunks()))
}

func TestReadableNames(t *testing.T) {
	tests := []struct {
		name string
		mod  graph.Module
		want string
	}{
		{"file", graph.Module{Resource: "/app/src/a.js"}, "./src/a.js"},
		{"outside context", graph.Module{Resource: "/lib/x.js"}, "../lib/x.js"},
		{
			"recursive context",
			graph.Module{Kind: graph.KindContext, Resource: "/app/src/locales", Context: &dependency.ContextOptions{Recursive: true, RegExp: `^\.\/.*\.json$`}},
			`./src/locales sync ^\.\/.*\.json$`,
		},
		{
			"flat context",
			graph.Module{Kind: graph.KindContext, Resource: "/app/src", Context: &dependency.ContextOptions{RegExp: `^\.\/.*$`}},
			`./src sync nonrecursive ^\.\/.*$`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, readableName("/app", &tt.mod))
		})
	}

	assert.Equal(t, "./a/b.js", relative("/", "/a/b.js"))
	assert.Equal(t, ".", relative("/app", "/app"))
	assert.Equal(t, "/x.js", relative("", "/x.js"))
}

func TestRequestToID(t *testing.T) {
	tests := map[string]string{
		"./src/lazy.js":     "src_lazy_js",
		"../../up/x.js":     "up_x_js",
		"@scope/pkg":        "_scope_pkg",
		"lodash":            "lodash",
		"./pages/[id].js":   "pages_id_js",
		".hidden/file-name": "_hidden_file-name",
	}
	for in, want := range tests {
		assert.Equal(t, want, requestToID(in), in)
	}
}
