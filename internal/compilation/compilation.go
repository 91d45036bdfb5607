// Package compilation drives a build: it builds the modules reachable from
// the entries into the module graph, chunks the graph, renders every module
// and assembles the chunk files.
//
// A Compiler keeps its graph between passes. Rebuild only rebuilds the
// modules whose files changed, restores the build meta of rebuilt modules
// that failed, and re-renders the modules the change can affect.
//
// Thread-safety: passes are serialized; Build and Rebuild may be called from
// any goroutine.
package compilation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path"
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roach88/jsgraph/internal/chunk"
	"github.com/roach88/jsgraph/internal/codegen"
	"github.com/roach88/jsgraph/internal/ctxlog"
	"github.com/roach88/jsgraph/internal/cutover"
	"github.com/roach88/jsgraph/internal/dependency"
	"github.com/roach88/jsgraph/internal/diag"
	"github.com/roach88/jsgraph/internal/graph"
	"github.com/roach88/jsgraph/internal/ident"
	"github.com/roach88/jsgraph/internal/parser"
	"github.com/roach88/jsgraph/internal/resolve"
	"github.com/roach88/jsgraph/internal/sharing"
)

const (
	defaultParallelism = 8
	// DefaultRenderCacheSize bounds the rendered module cache.
	DefaultRenderCacheSize = 8192
)

// AutoPublicPath makes the runtime derive the public path from the script
// that loaded it.
const AutoPublicPath = "auto"

// Output configures the emitted files.
type Output struct {
	PublicPath     string
	Pathinfo       bool
	ArrowFunctions bool
	Minify         bool
	// AsyncChunkName names unnamed async chunks after their request.
	AsyncChunkName     bool
	ChunkLoadingGlobal string
	UniqueName         string
	// TrustedTypes names the Trusted Types policy chunk script URLs go
	// through. Empty disables it.
	TrustedTypes string
}

// Options configure a Compiler.
type Options struct {
	// Context is the absolute project directory. Entry requests resolve
	// from it and module ids are relative to it.
	Context string
	// Entry maps entry names to requests.
	Entry   map[string]string
	Output  Output
	Resolve resolve.Options
	IDs     chunk.IDs
	// Parallelism bounds concurrent module builds and renders. Zero means 8.
	Parallelism int
	// Bail drops the output of passes with errors.
	Bail   bool
	Shared map[string]sharing.Config
	Namer  chunk.Namer
}

// Recorder persists the result of every pass.
type Recorder interface {
	RecordPass(ctx context.Context, r *Result) error
}

// Compiler runs passes over one project.
type Compiler struct {
	mu sync.Mutex

	fs       resolve.ReadableFS
	opts     Options
	resolver *resolve.FSResolver
	parser   *parser.Parser
	consumer *sharing.Consumer
	ids      IDGenerator
	clock    *PassClock
	metrics  *Metrics
	recorder Recorder

	graph    *graph.Graph
	provided map[ident.ModuleIdentifier]map[string]string
	renders  *lru.Cache[renderKey, *codegen.Result]
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithIDGenerator sets how passes are named. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(c *Compiler) { c.ids = g }
}

// WithPassClock continues pass numbering from a clock, for compilers
// resuming a journal.
func WithPassClock(clock *PassClock) Option {
	return func(c *Compiler) { c.clock = clock }
}

// WithMetrics reports passes to m.
func WithMetrics(m *Metrics) Option {
	return func(c *Compiler) { c.metrics = m }
}

// WithRecorder records every pass with r.
func WithRecorder(r Recorder) Option {
	return func(c *Compiler) { c.recorder = r }
}

// New creates a compiler reading from fsys.
func New(fsys resolve.ReadableFS, opts Options, options ...Option) (*Compiler, error) {
	if !path.IsAbs(opts.Context) {
		return nil, fmt.Errorf("context %q is not an absolute path", opts.Context)
	}
	if len(opts.Entry) == 0 {
		return nil, errors.New("no entry configured")
	}
	opts.Context = path.Clean(opts.Context)
	if opts.Parallelism <= 0 {
		opts.Parallelism = defaultParallelism
	}
	if opts.IDs == "" {
		opts.IDs = chunk.IDsNamed
	}
	if opts.Output.PublicPath == "" {
		opts.Output.PublicPath = AutoPublicPath
	}
	if opts.Output.UniqueName == "" {
		if p, err := resolve.ReadPackage(fsys, opts.Context); err == nil && p != nil {
			opts.Output.UniqueName = p.Name
		}
	}
	if opts.Output.ChunkLoadingGlobal == "" {
		opts.Output.ChunkLoadingGlobal = "webpackChunk" + globalSafe(opts.Output.UniqueName)
	}

	resolver, err := resolve.New(fsys, opts.Resolve)
	if err != nil {
		return nil, err
	}
	renders, err := lru.New[renderKey, *codegen.Result](DefaultRenderCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create render cache: %w", err)
	}
	c := &Compiler{
		fs:       fsys,
		opts:     opts,
		resolver: resolver,
		parser:   parser.New(),
		consumer: sharing.NewConsumer(fsys, opts.Shared),
		ids:      UUIDv7Generator{},
		clock:    NewPassClockAt(0),
		graph:    graph.New(),
		provided: make(map[ident.ModuleIdentifier]map[string]string),
		renders:  renders,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Graph returns the module graph of the last pass.
func (c *Compiler) Graph() *graph.Graph {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graph
}

// Options returns the options after defaults were applied.
func (c *Compiler) Options() Options { return c.opts }

// PassKind says how a pass built its modules.
type PassKind uint8

const (
	PassBuild   PassKind = iota + 1 // every module built from scratch
	PassRebuild                     // changed modules rebuilt into the previous graph
)

func (k PassKind) String() string {
	if k == PassRebuild {
		return "rebuild"
	}
	return "build"
}

// Asset is an emitted file. HasError marks the file of a chunk holding a
// module that failed to build or render.
type Asset struct {
	Name     string         `json:"name"`
	Chunk    ident.OutputID `json:"chunk"`
	Source   string         `json:"-"`
	Size     int            `json:"size"`
	HasError bool           `json:"has_error,omitempty"`
}

// Result is the outcome of a pass.
type Result struct {
	ID          string                   `json:"id"`
	Pass        int64                    `json:"pass"`
	Kind        PassKind                 `json:"-"`
	Hash        string                   `json:"hash"`
	Assets      []Asset                  `json:"assets"`
	Diagnostics []diag.Diagnostic        `json:"diagnostics"`
	Built       []ident.ModuleIdentifier `json:"built"`
	Restored    []ident.ModuleIdentifier `json:"restored"`
	Rendered    []ident.ModuleIdentifier `json:"rendered"`
	Removed     []ident.ModuleIdentifier `json:"removed"`
	Modules     int                      `json:"modules"`
	Duration    time.Duration            `json:"duration"`
}

// HasErrors reports whether the pass produced an error diagnostic.
func (r *Result) HasErrors() bool {
	return slices.ContainsFunc(r.Diagnostics, diag.Diagnostic.IsError)
}

// Asset looks an emitted file up by name.
func (r *Result) Asset(name string) (Asset, bool) {
	i := slices.IndexFunc(r.Assets, func(a Asset) bool { return a.Name == name })
	if i < 0 {
		return Asset{}, false
	}
	return r.Assets[i], true
}

// Build runs a pass that builds every module from scratch.
func (c *Compiler) Build(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.startPass(ctx, PassBuild)
	c.graph = graph.New()
	c.provided = make(map[ident.ModuleIdentifier]map[string]string)
	c.renders.Purge()
	c.resolver.Purge()

	entries, jobs := c.resolveEntries(p.ctx, p)
	built, err := c.buildAll(p.ctx, jobs, nil)
	if err != nil {
		return nil, err
	}
	p.result.Built = built
	return c.finishPass(p, entries, nil)
}

// Rebuild runs a pass after the files in changed were written, created or
// removed. Without a previous pass it builds from scratch.
func (c *Compiler) Rebuild(ctx context.Context, changed []string) (*Result, error) {
	c.mu.Lock()
	if c.graph.Len() == 0 {
		c.mu.Unlock()
		return c.Build(ctx)
	}
	defer c.mu.Unlock()

	p := c.startPass(ctx, PassRebuild)
	c.resolver.Purge()

	force := c.forceBuildSet(changed)
	fix := cutover.New()
	jobs := make([]job, 0, len(force))
	replace := make(map[ident.ModuleIdentifier]bool, len(force))
	stale := make(map[ident.ModuleIdentifier]bool)
	for _, id := range force {
		if _, err := fix.AnalyzeForceBuildModule(c.graph, id); err != nil {
			return nil, err
		}
		m, _ := c.graph.ModuleByIdentifier(id)
		jobs = append(jobs, jobFor(m))
		replace[id] = true
		for _, t := range c.targetsOf(id) {
			stale[t] = true
		}
	}

	entries, entryJobs := c.resolveEntries(p.ctx, p)
	for _, j := range entryJobs {
		if _, ok := c.graph.ModuleByIdentifier(j.id); !ok && !replace[j.id] {
			jobs = append(jobs, j)
		}
	}
	// A failed build may already have replaced modules, so the snapshots
	// are restored and the stale renders dropped either way.
	built, err := c.buildAll(p.ctx, jobs, replace)
	restored, fixErr := fix.FixArtifact(p.ctx, c.graph)
	affected := c.graph.AffectedModules(force)
	for _, id := range affected {
		stale[id] = true
		for _, t := range c.targetsOf(id) {
			stale[t] = true
		}
	}
	for _, id := range built {
		stale[id] = true
	}
	if err = errors.Join(err, fixErr); err != nil {
		c.evict(slices.Collect(maps.Keys(stale)))
		return nil, err
	}
	p.result.Built = built
	p.result.Restored = restored

	p.logger.Debug("rebuilt modules",
		"changed", len(changed),
		"forced", len(force),
		"affected", len(affected),
		"restored", len(restored))
	return c.finishPass(p, entries, slices.Sorted(maps.Keys(stale)))
}

// forceBuildSet returns the modules a change invalidates, sorted: modules
// whose file changed, context modules whose directory holds a changed file,
// and modules with a request that failed to resolve, which a new file may
// fix.
func (c *Compiler) forceBuildSet(changed []string) []ident.ModuleIdentifier {
	files := make(map[string]bool, len(changed))
	for _, f := range changed {
		files[path.Clean(f)] = true
	}
	var out []ident.ModuleIdentifier
	for _, id := range c.graph.Modules() {
		m, ok := c.graph.ModuleByIdentifier(id)
		if !ok {
			continue
		}
		switch {
		case files[m.Resource]:
		case m.Kind == graph.KindContext && containsUnder(files, m.Resource):
		case c.hasUnresolved(id):
		default:
			continue
		}
		out = append(out, id)
	}
	return out
}

func containsUnder(files map[string]bool, dir string) bool {
	for f := range files {
		if rest, ok := cutPrefixDir(f, dir); ok && rest != "" {
			return true
		}
	}
	return false
}

func cutPrefixDir(p, dir string) (string, bool) {
	if dir == "/" {
		return p[1:], len(p) > 0 && p[0] == '/'
	}
	if len(p) <= len(dir) || p[:len(dir)] != dir || p[len(dir)] != '/' {
		return "", false
	}
	return p[len(dir)+1:], true
}

// hasUnresolved reports whether a module has a request that failed to
// resolve.
func (c *Compiler) hasUnresolved(id ident.ModuleIdentifier) bool {
	found := false
	_ = c.graph.WalkDependencies(id, func(v graph.Visit) error {
		if cd, ok := dependency.AsContextDependency(v.Dependency); ok {
			_, critical := cd.Critical()
			found = found || critical
			return nil
		}
		if _, ok := dependency.AsModuleDependency(v.Dependency); ok {
			_, resolved := c.graph.ModuleIdentifierByDependencyID(v.Dependency.ID())
			found = found || !resolved
		}
		return nil
	})
	return found
}

// targetsOf lists the modules a module's dependencies point at.
func (c *Compiler) targetsOf(id ident.ModuleIdentifier) []ident.ModuleIdentifier {
	var out []ident.ModuleIdentifier
	_ = c.graph.WalkDependencies(id, func(v graph.Visit) error {
		if t, ok := c.graph.ModuleIdentifierByDependencyID(v.Dependency.ID()); ok {
			out = append(out, t)
		}
		return nil
	})
	return out
}

// pass is the state of one running pass.
type pass struct {
	ctx    context.Context
	logger *slog.Logger
	start  time.Time
	result *Result
	diags  diag.Collector
}

func (c *Compiler) startPass(ctx context.Context, kind PassKind) *pass {
	r := &Result{ID: c.ids.Generate(), Pass: c.clock.Next(), Kind: kind}
	ctx, logger := ctxlog.With(ctx, "compilation", r.ID, "pass", r.Pass)
	logger.Debug("pass started", "kind", kind.String())
	return &pass{ctx: ctx, logger: logger, start: time.Now(), result: r}
}

// resolveEntries resolves the entry requests from the context directory.
// Entries that fail to resolve are reported and left out.
func (c *Compiler) resolveEntries(ctx context.Context, p *pass) ([]chunk.Entry, []job) {
	var entries []chunk.Entry
	var jobs []job
	for _, name := range slices.Sorted(maps.Keys(c.opts.Entry)) {
		request := c.opts.Entry[name]
		res, err := c.resolver.Resolve(ctx, c.opts.Context, request)
		if err != nil || res.Ignored {
			if err == nil {
				err = fmt.Errorf("entry request %q is ignored", request)
			}
			p.diags.Add(diag.Error(diag.KindResolve, "", "Entry %s: Module not found: %v", name, err).
				With("request", request))
			continue
		}
		id := moduleIdentifier(res.Path)
		entries = append(entries, chunk.Entry{Name: name, Module: id})
		jobs = append(jobs, job{id: id, resource: res.Path})
	}
	return entries, jobs
}

// finishPass chunks the graph, renders the modules and emits the chunks.
// stale lists modules whose cached renders the pass invalidated.
func (c *Compiler) finishPass(p *pass, entries []chunk.Entry, stale []ident.ModuleIdentifier) (*Result, error) {
	ctx, r := p.ctx, p.result
	roots := make([]ident.ModuleIdentifier, len(entries))
	for i, e := range entries {
		roots[i] = e.Module
	}
	r.Removed = c.graph.Prune(roots)
	for _, id := range r.Removed {
		delete(c.provided, id)
	}
	c.evict(stale)

	cg, err := chunk.Build(ctx, c.graph, entries, chunk.Options{
		Context:        c.opts.Context,
		IDs:            c.opts.IDs,
		AsyncChunkName: c.opts.Output.AsyncChunkName,
		Namer:          c.opts.Namer,
		Parallelism:    c.opts.Parallelism,
	})
	if err != nil {
		return nil, fmt.Errorf("chunk graph: %w", err)
	}
	c.assignRuntimes(cg)

	renders, rendered, err := c.renderModules(ctx, cg)
	if err != nil {
		return nil, err
	}
	r.Rendered = rendered

	for _, id := range c.graph.Modules() {
		p.diags.Add(c.graph.Diagnostics(id)...)
	}
	for _, id := range slices.Sorted(maps.Keys(renders)) {
		p.diags.Add(renders[id].Diagnostics...)
	}
	p.diags.Add(c.graph.CircularImports()...)
	p.diags.Add(sharing.Singletons(c.opts.Shared, c.providedVersions())...)

	cg.MarkErrors(func(id ident.ModuleIdentifier) bool {
		if _, failed := diag.FirstError(c.graph.Diagnostics(id)); failed {
			return true
		}
		res := renders[id]
		return res != nil && slices.ContainsFunc(res.Diagnostics, diag.Diagnostic.IsError)
	})
	r.Hash = fullHash(cg, renders)
	assets, diags, err := c.emit(ctx, cg, renders, r.Hash)
	if err != nil {
		return nil, err
	}
	p.diags.Add(diags...)
	r.Diagnostics = p.diags.Sorted()
	if !c.opts.Bail || !r.HasErrors() {
		r.Assets = assets
	}
	r.Modules = c.graph.Len()
	r.Duration = time.Since(p.start)

	c.metrics.observePass(r)
	if c.recorder != nil {
		if err := c.recorder.RecordPass(ctx, r); err != nil {
			return nil, fmt.Errorf("record pass: %w", err)
		}
	}
	p.logger.Info("pass finished",
		"kind", r.Kind.String(),
		"modules", r.Modules,
		"built", len(r.Built),
		"rendered", len(r.Rendered),
		"assets", len(r.Assets),
		"diagnostics", len(r.Diagnostics),
		"duration", r.Duration)
	return r, nil
}

// providedVersions collects the versions of each shared package the
// modules of the graph resolved.
func (c *Compiler) providedVersions() map[string][]string {
	out := make(map[string][]string)
	for _, id := range slices.Sorted(maps.Keys(c.provided)) {
		for key, v := range c.provided[id] {
			if v != "" {
				out[key] = append(out[key], v)
			}
		}
	}
	return out
}
