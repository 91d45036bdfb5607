package compilation

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/jsgraph/internal/chunk"
	"github.com/roach88/jsgraph/internal/codegen"
	"github.com/roach88/jsgraph/internal/diag"
	"github.com/roach88/jsgraph/internal/ident"
)

// renderKey identifies a render. The chunk fingerprint changes whenever a
// module or chunk id changes, since rendered code embeds them. source is the
// content hash of the module build, so a replaced module never hits the
// render of its previous build.
type renderKey struct {
	module  ident.ModuleIdentifier
	source  string
	runtime string
	chunks  string
}

// assignRuntimes records for every module the runtimes that can load it: the
// runtime of each chunk holding it, or of the runtime chunks that load that
// chunk.
func (c *Compiler) assignRuntimes(cg *chunk.Graph) {
	runtimes := make(map[ident.ModuleIdentifier][]string)
	for _, rc := range cg.RuntimeChunks() {
		for _, ch := range append([]*chunk.Chunk{rc}, cg.Loadable(rc)...) {
			if ch != rc && ch.HasRuntime {
				continue
			}
			for _, m := range ch.Modules {
				runtimes[m] = append(runtimes[m], rc.Runtime)
			}
		}
	}
	for _, m := range slices.Sorted(maps.Keys(runtimes)) {
		c.graph.SetModuleRuntimes(m, runtimes[m])
	}
}

// renderRuntime is the runtime a module renders for. A module shared by
// several runtimes renders once, for all of them.
func (c *Compiler) renderRuntime(id ident.ModuleIdentifier) string {
	if rts := c.graph.ModuleRuntimes(id); len(rts) == 1 {
		return rts[0]
	}
	return ""
}

func (c *Compiler) sourceHash(id ident.ModuleIdentifier) string {
	if m, ok := c.graph.ModuleByIdentifier(id); ok {
		return m.BuildInfo.Hash
	}
	return ""
}

func fingerprint(cg *chunk.Graph) string {
	var b strings.Builder
	ids := cg.ModuleIDs()
	for _, m := range slices.Sorted(maps.Keys(ids)) {
		fmt.Fprintf(&b, "m %s %s\n", m, ids[m])
	}
	for _, ch := range cg.Chunks() {
		for _, blk := range ch.Blocks {
			fmt.Fprintf(&b, "b %s %s\n", blk, ch.ID)
		}
	}
	return ident.ContentHash([]byte(b.String()))
}

// evict drops the cached renders of modules.
func (c *Compiler) evict(modules []ident.ModuleIdentifier) {
	if len(modules) == 0 {
		return
	}
	drop := make(map[ident.ModuleIdentifier]bool, len(modules))
	for _, m := range modules {
		drop[m] = true
	}
	for _, k := range c.renders.Keys() {
		if drop[k.module] {
			c.renders.Remove(k)
		}
	}
}

// renderModules renders every module placed in a chunk, in parallel. Cached
// renders are reused; rendered lists the modules rendered afresh. A module
// that fails to render gets code that throws and a codegen error.
func (c *Compiler) renderModules(ctx context.Context, cg *chunk.Graph) (map[ident.ModuleIdentifier]*codegen.Result, []ident.ModuleIdentifier, error) {
	renderer := codegen.NewRenderer(c.graph, cg, c.codegenOptions())
	fp := fingerprint(cg)
	ids := slices.Sorted(maps.Keys(cg.ModuleIDs()))

	results := make([]*codegen.Result, len(ids))
	fresh := make([]bool, len(ids))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(c.opts.Parallelism)
	for i, id := range ids {
		key := renderKey{module: id, source: c.sourceHash(id), runtime: c.renderRuntime(id), chunks: fp}
		if res, ok := c.renders.Get(key); ok {
			c.metrics.renderLookup(true)
			results[i] = res
			continue
		}
		c.metrics.renderLookup(false)
		eg.Go(func() error {
			res, err := renderer.Render(ctx, id, key.runtime)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				results[i] = failedRender(id, err)
				fresh[i] = true
				return nil
			}
			c.renders.Add(key, res)
			results[i] = res
			fresh[i] = true
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}

	out := make(map[ident.ModuleIdentifier]*codegen.Result, len(ids))
	var rendered []ident.ModuleIdentifier
	for i, id := range ids {
		out[id] = results[i]
		if fresh[i] {
			rendered = append(rendered, id)
		}
	}
	return out, rendered, nil
}

func (c *Compiler) codegenOptions() codegen.Options {
	return codegen.Options{
		Pathinfo:       c.opts.Output.Pathinfo,
		ArrowFunctions: c.opts.Output.ArrowFunctions,
	}
}

func failedRender(id ident.ModuleIdentifier, err error) *codegen.Result {
	msg := fmt.Sprintf("Module render failed: %v", err)
	return &codegen.Result{
		Module:          id,
		Source:          "throw new Error(" + ident.QuoteJSON(msg) + ");",
		Diagnostics:     []diag.Diagnostic{diag.Error(diag.KindCodegen, id, "%s", msg)},
		ModuleArgument:  "module",
		ExportsArgument: "exports",
	}
}
