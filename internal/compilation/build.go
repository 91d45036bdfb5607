package compilation

import (
	"context"
	"fmt"
	"path"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/jsgraph/internal/ctxlog"
	"github.com/roach88/jsgraph/internal/dependency"
	"github.com/roach88/jsgraph/internal/diag"
	"github.com/roach88/jsgraph/internal/graph"
	"github.com/roach88/jsgraph/internal/ident"
	"github.com/roach88/jsgraph/internal/parser"
	"github.com/roach88/jsgraph/internal/sharing"
)

// ignoredSource is the code of a module an alias maps to false.
const ignoredSource = "/* (ignored) */"

// job is a module waiting to be built.
type job struct {
	id       ident.ModuleIdentifier
	resource string
	ignored  bool
	// context is set for context modules; resource is the directory.
	context *dependency.ContextOptions
}

// jobFor rebuilds a module already in the graph.
func jobFor(m *graph.Module) job {
	j := job{id: m.Identifier, resource: m.Resource, context: m.Context}
	j.ignored = m.Kind == graph.KindJavaScriptCJS && strings.Contains(m.Resource, "/(ignored)/")
	return j
}

// built is the self-contained output of one module build. Nothing in it is
// shared with the graph until the merge.
type built struct {
	result *graph.BuildResult
	next   []job
	// provided maps the share keys the module consumes to the versions the
	// build resolved.
	provided map[string]string
}

// buildAll builds jobs and every module they reach that the graph does not
// have yet, one dependency level at a time. A level builds in parallel;
// its results merge into the graph afterwards, one at a time in job order,
// so the graph has a single writer and the same input always yields the same
// graph. Modules in replace are swapped for their rebuilt version. A
// cancelled level is dropped unmerged.
func (c *Compiler) buildAll(ctx context.Context, jobs []job, replace map[ident.ModuleIdentifier]bool) ([]ident.ModuleIdentifier, error) {
	queued := make(map[ident.ModuleIdentifier]bool, len(jobs))
	level := make([]job, 0, len(jobs))
	for _, j := range jobs {
		if !queued[j.id] {
			queued[j.id] = true
			level = append(level, j)
		}
	}

	var out []ident.ModuleIdentifier
	for depth := 0; len(level) > 0; depth++ {
		slices.SortFunc(level, func(a, b job) int { return strings.Compare(string(a.id), string(b.id)) })
		results, err := c.buildLevel(ctx, level)
		if err != nil {
			return out, err
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}

		var next []job
		for _, b := range results {
			m := b.result.Module
			if replace[m.Identifier] {
				err = c.graph.Replace(b.result)
			} else {
				err = c.graph.Merge(b.result)
			}
			if err != nil {
				return out, fmt.Errorf("merge %s: %w", m.Identifier, err)
			}
			c.metrics.moduleBuilt(m.Kind.ModuleType())
			if len(b.provided) > 0 {
				c.provided[m.Identifier] = b.provided
			} else {
				delete(c.provided, m.Identifier)
			}
			out = append(out, m.Identifier)

			for _, n := range b.next {
				if queued[n.id] {
					continue
				}
				if _, ok := c.graph.ModuleByIdentifier(n.id); ok {
					continue
				}
				queued[n.id] = true
				next = append(next, n)
			}
		}
		ctxlog.FromContext(ctx).Debug("built level", "depth", depth, "modules", len(level))
		level = next
	}
	slices.Sort(out)
	return out, nil
}

func (c *Compiler) buildLevel(ctx context.Context, jobs []job) ([]*built, error) {
	out := make([]*built, len(jobs))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(c.opts.Parallelism)
	for i, j := range jobs {
		eg.Go(func() error {
			b, err := c.buildModule(ctx, j)
			if err != nil {
				return fmt.Errorf("build %s: %w", j.id, err)
			}
			out[i] = b
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// buildModule loads, parses and resolves one module. Failures of the module
// itself become diagnostics on it; only cancellation and internal errors
// fail the call.
func (c *Compiler) buildModule(ctx context.Context, j job) (*built, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if j.context != nil {
		return c.buildContextModule(ctx, j)
	}

	var src []byte
	if j.ignored {
		src = []byte(ignoredSource)
	} else {
		data, err := c.fs.ReadFile(j.resource)
		if err != nil {
			return &built{result: failedModule(j.id, j.resource, err)}, nil
		}
		src = data
	}

	kind := kindOf(j.resource)
	if j.ignored {
		kind = graph.KindJavaScriptCJS
	}
	if kind == graph.KindJSON {
		return &built{result: buildJSON(j.id, j.resource, src)}, nil
	}

	code, loaderDiags := transpile(j.id, j.resource, src)
	if code == nil {
		r := failedModule(j.id, j.resource, nil)
		r.Module.Source = src
		r.Module.Diagnostics = loaderDiags
		return &built{result: r}, nil
	}

	parsed, err := c.parser.Parse(ctx, parser.Input{
		Module:    j.id,
		Resource:  j.resource,
		Kind:      kind,
		Source:    code,
		StrictESM: !j.ignored && strictESM(c.fs, j.resource),
	})
	if err != nil {
		return nil, err
	}
	m := parsed.Module
	m.Diagnostics = append(loaderDiags, m.Diagnostics...)

	r := &resolution{
		compiler: c,
		module:   m,
		dir:      path.Dir(j.resource),
		resolved: make(map[ident.DependencyID]ident.ModuleIdentifier),
	}
	for _, dep := range parsed.Dependencies {
		if err := r.dependency(ctx, dep); err != nil {
			return nil, err
		}
	}
	result := parsed.BuildResult(r.resolved)
	result.Dependencies = append(result.Dependencies, r.consumes...)
	for _, cs := range r.consumes {
		m.Dependencies = append(m.Dependencies, cs.ID())
	}
	return &built{result: result, next: r.next, provided: r.provided}, nil
}

// resolution resolves the dependencies of one module build.
type resolution struct {
	compiler *Compiler
	module   *graph.Module
	dir      string

	resolved map[ident.DependencyID]ident.ModuleIdentifier
	next     []job
	consumes []dependency.Dependency
	provided map[string]string
}

func (r *resolution) dependency(ctx context.Context, dep dependency.Dependency) error {
	if cd, ok := dependency.AsContextDependency(dep); ok {
		r.contextDependency(cd)
		return nil
	}
	md, ok := dependency.AsModuleDependency(dep)
	if !ok {
		return nil
	}
	c := r.compiler
	res, err := c.resolver.Resolve(ctx, r.dir, md.Request())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		report := diag.Error
		if md.Optional() {
			report = diag.Warning
		}
		r.report(dep, report(diag.KindResolve, r.module.Identifier, "Module not found: Error: %v", err).
			With("request", md.UserRequest()))
		return nil
	}

	if res.Ignored {
		resource := path.Join(c.opts.Context, "(ignored)", md.Request())
		target := ident.NewModuleIdentifier(ident.TypeJavaScriptCJS, resource)
		r.resolved[dep.ID()] = target
		r.next = append(r.next, job{id: target, resource: resource, ignored: true})
		return nil
	}
	target := moduleIdentifier(res.Path)
	r.resolved[dep.ID()] = target
	r.next = append(r.next, job{id: target, resource: res.Path})
	return r.share(dep, md.Request(), res.Path)
}

// share records a consume of a shared package and checks the version the
// build resolved against the version the importer requires.
func (r *resolution) share(dep dependency.Dependency, request, resolved string) error {
	c := r.compiler
	key, cfg, ok := c.consumer.Match(request)
	if !ok {
		return nil
	}
	if _, seen := r.provided[key]; seen {
		return nil
	}
	id, err := ident.NewDependencyID(r.module.Identifier, string(dependency.TypeConsumeShared), key, len(r.consumes))
	if err != nil {
		return fmt.Errorf("consume shared %s: %w", key, err)
	}
	required, diags := c.consumer.RequiredVersion(r.module.Identifier, r.dir, key)
	r.module.Diagnostics = append(r.module.Diagnostics, diags...)

	cs := dependency.NewConsumeShared(id, key, required, cfg.Singleton, dep.ID())
	r.consumes = append(r.consumes, cs)

	version := sharing.ProvidedVersion(c.fs, resolved, key)
	r.module.Diagnostics = append(r.module.Diagnostics, sharing.Check(r.module.Identifier, cs, cfg, version)...)
	if r.provided == nil {
		r.provided = make(map[string]string)
	}
	r.provided[key] = version
	return nil
}

// contextDependency points a require.context call at its context module. A
// directory that does not exist is a critical failure stored on the
// dependency; graph.Diagnostics reports it.
func (r *resolution) contextDependency(cd dependency.ContextDependency) {
	c := r.compiler
	opts := cd.Options()
	dir := path.Join(r.dir, opts.Request)
	info, err := c.fs.Stat(dir)
	if err != nil || !info.IsDir() {
		report := diag.Error
		if cd.Optional() {
			report = diag.Warning
		}
		d := report(diag.KindCritical, r.module.Identifier,
			"Module not found: Error: Can't resolve '%s' in '%s'", opts.Request, r.dir).
			With("request", cd.ResourceIdentifier())
		if rng, ok := cd.Range(); ok {
			d = d.At(locate(r.module.Source, rng))
		}
		// A freshly parsed dependency has an empty slot.
		_ = cd.SetCritical(d)
		return
	}
	target := contextModuleIdentifier(dir, opts)
	r.resolved[cd.ID()] = target
	r.next = append(r.next, job{id: target, resource: dir, context: &opts})
}

// report attaches a diagnostic at the dependency's source location.
func (r *resolution) report(dep dependency.Dependency, d diag.Diagnostic) {
	if rng, ok := dep.Range(); ok {
		d = d.At(locate(r.module.Source, rng))
	}
	r.module.Diagnostics = append(r.module.Diagnostics, d)
}

// locate turns a byte range into a location with the 1-based line and
// column of its start.
func locate(src []byte, rng dependency.Range) diag.Location {
	loc := diag.Location{Start: int(rng.Start), End: int(rng.End), Line: 1, Column: 1}
	end := min(int(rng.Start), len(src))
	for i := 0; i < end; i++ {
		if src[i] == '\n' {
			loc.Line++
			loc.Column = 1
		} else {
			loc.Column++
		}
	}
	return loc
}
