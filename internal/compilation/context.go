package compilation

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/jsgraph/internal/dependency"
	"github.com/roach88/jsgraph/internal/diag"
	"github.com/roach88/jsgraph/internal/graph"
	"github.com/roach88/jsgraph/internal/ident"
)

// contextModuleIdentifier names the context module over dir. Context
// dependencies with the same directory, mode and pattern share it.
func contextModuleIdentifier(dir string, opts dependency.ContextOptions) ident.ModuleIdentifier {
	mode := "nonrecursive"
	if opts.Recursive {
		mode = "recursive"
	}
	return ident.NewModuleIdentifier(ident.TypeContext, dir, mode, "/"+opts.RegExp+"/")
}

// buildContextModule lists the files under the context directory whose
// "./relative/path" key matches the pattern and adds a context element for
// each.
func (c *Compiler) buildContextModule(ctx context.Context, j job) (*built, error) {
	opts := *j.context
	m := &graph.Module{
		Identifier: j.id,
		Kind:       graph.KindContext,
		Resource:   j.resource,
		Context:    &opts,
	}
	m.BuildMeta.ExportsType = graph.MetaExportsDynamic
	m.BuildInfo.ModuleArgument = "module"
	m.BuildInfo.ExportsArgument = "exports"

	re, err := compilePattern(opts.RegExp)
	if err != nil {
		m.Diagnostics = append(m.Diagnostics, diag.Warning(diag.KindCritical, j.id,
			"Critical dependency: the request pattern %q is not supported: %v", opts.RegExp, err))
		m.BuildInfo.Hash = ident.ContentHash(nil)
		return &built{result: &graph.BuildResult{Module: m}}, nil
	}

	files, err := c.listFiles(ctx, j.resource, opts.Recursive)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		m.Diagnostics = append(m.Diagnostics, diag.Error(diag.KindResolve, j.id, "Module not found: Error: %v", err))
		m.BuildInfo.Hash = ident.ContentHash(nil)
		return &built{result: &graph.BuildResult{Module: m}}, nil
	}

	b := &built{result: &graph.BuildResult{
		Module:   m,
		Resolved: make(map[ident.DependencyID]ident.ModuleIdentifier),
	}}
	var keys []string
	for _, file := range files {
		key := "./" + strings.TrimPrefix(file, j.resource+"/")
		if !re.MatchString(key) {
			continue
		}
		keys = append(keys, key)
		id, err := ident.NewDependencyID(j.id, string(dependency.TypeContextElement), key, 0)
		if err != nil {
			return nil, fmt.Errorf("context element %s: %w", key, err)
		}
		elem := dependency.NewContextElement(id, key, path.Join(opts.Request, key))
		target := moduleIdentifier(file)
		m.Dependencies = append(m.Dependencies, id)
		b.result.Dependencies = append(b.result.Dependencies, elem)
		b.result.Resolved[id] = target
		b.next = append(b.next, job{id: target, resource: file})
	}
	m.BuildInfo.Hash = ident.ContentHash([]byte(strings.Join(keys, "\n")))
	return b, nil
}

// compilePattern converts a JavaScript regexp source to a Go regexp. An
// empty pattern matches everything.
func compilePattern(src string) (*regexp.Regexp, error) {
	if src == "" {
		return regexp.MustCompile(`^\./`), nil
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", src, err)
	}
	return re, nil
}

// listFiles returns the files under dir, sorted. node_modules directories
// below dir are skipped.
func (c *Compiler) listFiles(ctx context.Context, dir string, recursive bool) ([]string, error) {
	var out []string
	stack := []string{dir}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		entries, err := c.fs.ReadDir(d)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			p := path.Join(d, e.Name())
			switch {
			case e.IsDir() && recursive && e.Name() != "node_modules":
				stack = append(stack, p)
			case !e.IsDir():
				out = append(out, p)
			}
		}
	}
	slices.Sort(out)
	return out, nil
}
