// Package codegen renders modules into the code placed in chunks: it applies
// every dependency's template to the module source, folds the init fragments
// around it and records the runtime helpers the result needs.
package codegen

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/jsgraph/internal/dependency"
	"github.com/roach88/jsgraph/internal/diag"
	"github.com/roach88/jsgraph/internal/graph"
	"github.com/roach88/jsgraph/internal/ident"
	"github.com/roach88/jsgraph/internal/runtime"
)

// Renderer renders the modules of one compilation.
type Renderer struct {
	graph   *graph.Graph
	chunks  ChunkView
	options Options
}

func NewRenderer(g *graph.Graph, chunks ChunkView, opts Options) *Renderer {
	return &Renderer{graph: g, chunks: chunks, options: opts}
}

// Result is a rendered module.
type Result struct {
	Module ident.ModuleIdentifier
	Source string
	// RuntimeRequirements are closed over the module-level rules.
	RuntimeRequirements runtime.Globals
	Diagnostics         []diag.Diagnostic

	Strict          bool
	ModuleArgument  string
	ExportsArgument string
}

// Render renders one module for a runtime. Dependencies render in a fixed
// order (module dependencies, presentational dependencies, then blocks
// depth-first), so the same graph always renders the same text.
func (r *Renderer) Render(ctx context.Context, id ident.ModuleIdentifier, rt string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, ok := r.graph.Snapshot(id)
	if !ok {
		return nil, diag.NewUnknownModuleError(id)
	}
	return r.RenderWith(newTemplateContext(r.graph, r.chunks, m, rt, r.options))
}

// RenderWith renders the module of a prepared context. Callers use it to
// render into a concatenation scope.
func (r *Renderer) RenderWith(c *TemplateContext) (*Result, error) {
	var source string
	var err error
	switch c.Module.Kind {
	case graph.KindJSON:
		source = renderJSON(c)
	case graph.KindContext:
		source, err = renderContextModule(c)
	default:
		source, err = r.renderJavaScript(c)
	}
	if err != nil {
		return nil, err
	}
	m := c.Module
	return &Result{
		Module:              m.Identifier,
		Source:              source,
		RuntimeRequirements: runtime.NegotiateModule(c.RuntimeRequirements),
		Diagnostics:         c.Diagnostics,
		Strict:              m.BuildInfo.Strict,
		ModuleArgument:      cmp.Or(m.BuildInfo.ModuleArgument, "module"),
		ExportsArgument:     c.exportsArgument(),
	}, nil
}

func (r *Renderer) renderJavaScript(c *TemplateContext) (string, error) {
	var blockVisits []graph.Visit
	err := r.graph.WalkDependencies(c.Module.Identifier, func(v graph.Visit) error {
		if v.Block != nil {
			blockVisits = append(blockVisits, v)
			return nil
		}
		return renderDependency(c, v)
	})
	if err != nil {
		return "", err
	}
	for _, d := range c.Module.Presentational {
		if err := renderDependency(c, graph.Visit{Dependency: d}); err != nil {
			return "", err
		}
	}
	for _, v := range blockVisits {
		if err := renderDependency(c, v); err != nil {
			return "", err
		}
	}
	return renderWithFragments(c, c.Source.Source(), c.InitFragments), nil
}

// renderJSON turns a JSON module into a CommonJS module exporting the parsed
// value. Invalid JSON throws when the module runs; the build has already
// reported it.
func renderJSON(c *TemplateContext) string {
	module := c.requirement(runtime.Module)
	var buf bytes.Buffer
	if err := json.Compact(&buf, c.Module.Source); err != nil {
		return "throw new Error(" + quote("Invalid JSON in "+c.Module.Resource+": "+err.Error()) + ");"
	}
	return module + ".exports = " + buf.String() + ";"
}

// renderContextModule renders the request map of a require.context module.
func renderContextModule(c *TemplateContext) (string, error) {
	entries := make(map[string]string)
	for _, depID := range c.Module.Dependencies {
		dep, ok := c.Graph.DependencyByID(depID)
		if !ok {
			return "", diag.NewDanglingReferenceError(c.Module.Identifier, depID)
		}
		elem, ok := dep.(*dependency.ContextElement)
		if !ok {
			continue
		}
		target := c.target(depID)
		if target == "" {
			continue
		}
		id, err := c.moduleID(target)
		if err != nil {
			return "", err
		}
		entries[elem.Request()] = id.JSON()
	}
	self, err := c.moduleID(c.Module.Identifier)
	if err != nil {
		return "", err
	}
	req := c.requirement(runtime.Require)
	o := c.requirement(runtime.HasOwnProperty)
	module := c.requirement(runtime.Module)

	var b strings.Builder
	if len(entries) == 0 {
		b.WriteString("var map = {};\n")
	} else {
		keys := slices.Sorted(maps.Keys(entries))
		lines := make([]string, len(keys))
		for i, k := range keys {
			lines[i] = "\t" + quote(k) + ": " + entries[k]
		}
		b.WriteString("var map = {\n" + strings.Join(lines, ",\n") + "\n};\n")
	}
	b.WriteString("\n" +
		"function webpackContext(req) {\n" +
		"\tvar id = webpackContextResolve(req);\n" +
		"\treturn " + req + "(id);\n" +
		"}\n" +
		"function webpackContextResolve(req) {\n" +
		"\tif(!" + o + "(map, req)) {\n" +
		"\t\tvar e = new Error(\"Cannot find module '\" + req + \"'\");\n" +
		"\t\te.code = 'MODULE_NOT_FOUND';\n" +
		"\t\tthrow e;\n" +
		"\t}\n" +
		"\treturn map[req];\n" +
		"}\n" +
		"webpackContext.keys = function webpackContextKeys() {\n" +
		"\treturn Object.keys(map);\n" +
		"};\n" +
		"webpackContext.resolve = webpackContextResolve;\n" +
		module + ".exports = webpackContext;\n" +
		"webpackContext.id = " + self.JSON() + ";")
	return b.String(), nil
}
