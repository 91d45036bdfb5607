package compilation

import (
	"encoding/json"
	"errors"
	"io/fs"
	"path"
	"slices"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/roach88/jsgraph/internal/diag"
	"github.com/roach88/jsgraph/internal/graph"
	"github.com/roach88/jsgraph/internal/ident"
	"github.com/roach88/jsgraph/internal/resolve"
)

// kindOf picks the module type of a file from its extension.
func kindOf(resource string) graph.Kind {
	switch path.Ext(resource) {
	case ".json":
		return graph.KindJSON
	case ".mjs":
		return graph.KindJavaScriptESM
	case ".cjs":
		return graph.KindJavaScriptCJS
	}
	return graph.KindJavaScriptAuto
}

// moduleIdentifier names the module built from a file.
func moduleIdentifier(resource string) ident.ModuleIdentifier {
	return ident.NewModuleIdentifier(kindOf(resource).ModuleType(), resource)
}

// strictESM reports whether a file is parsed as strict ESM: .mjs files, and
// .js files in a package with "type": "module".
func strictESM(fsys resolve.ReadableFS, resource string) bool {
	switch path.Ext(resource) {
	case ".mjs":
		return true
	case ".js":
		p, err := resolve.FindPackage(fsys, path.Dir(resource))
		return err == nil && p != nil && p.IsModule()
	}
	return false
}

// transpile runs the loaders a file needs before it is parsed. Only
// TypeScript needs one; esbuild strips the types and keeps import and export
// statements for the parser.
func transpile(id ident.ModuleIdentifier, resource string, src []byte) ([]byte, []diag.Diagnostic) {
	if path.Ext(resource) != ".ts" {
		return src, nil
	}
	res := api.Transform(string(src), api.TransformOptions{
		Loader:     api.LoaderTS,
		Target:     api.ESNext,
		Sourcefile: resource,
	})
	if len(res.Errors) > 0 {
		return nil, messages(diag.Error, diag.KindParse, id, res.Errors)
	}
	return res.Code, messages(diag.Warning, diag.KindParse, id, res.Warnings)
}

// messages converts esbuild messages into diagnostics. esbuild columns are
// 0-based; diagnostics use 1-based columns.
func messages(report func(diag.Kind, ident.ModuleIdentifier, string, ...any) diag.Diagnostic, kind diag.Kind, id ident.ModuleIdentifier, msgs []api.Message) []diag.Diagnostic {
	out := make([]diag.Diagnostic, 0, len(msgs))
	for _, m := range msgs {
		d := report(kind, id, "%s", m.Text)
		if m.Location != nil {
			d = d.At(diag.Location{Line: m.Location.Line, Column: m.Location.Column + 1})
		}
		out = append(out, d)
	}
	return out
}

// buildJSON builds a JSON module. Its default export is the parsed value and
// the keys of a top-level object are its named exports.
func buildJSON(id ident.ModuleIdentifier, resource string, src []byte) *graph.BuildResult {
	m := &graph.Module{
		Identifier: id,
		Kind:       graph.KindJSON,
		Resource:   resource,
		Source:     src,
	}
	m.BuildMeta.ExportsType = graph.MetaExportsDefault
	m.BuildMeta.DefaultObject = graph.DefaultObjectRedirectWarn
	m.BuildInfo.Strict = true
	m.BuildInfo.ModuleArgument = "module"
	m.BuildInfo.ExportsArgument = "exports"
	m.BuildInfo.Hash = ident.ContentHash(src)

	var value any
	if err := json.Unmarshal(src, &value); err != nil {
		m.BuildMeta = graph.BuildMeta{}
		m.Diagnostics = append(m.Diagnostics, diag.Error(diag.KindParse, id, "Unexpected token in JSON: %v", err))
		return &graph.BuildResult{Module: m}
	}
	if obj, ok := value.(map[string]any); ok {
		for k := range obj {
			m.BuildInfo.NamedExports = append(m.BuildInfo.NamedExports, k)
		}
		slices.Sort(m.BuildInfo.NamedExports)
	}
	return &graph.BuildResult{Module: m}
}

// failedModule is what a module whose file cannot be read builds to: no
// code, no dependencies and an error. Its build meta is unset, so the
// cutover restores the meta of the previous build.
func failedModule(id ident.ModuleIdentifier, resource string, err error) *graph.BuildResult {
	m := &graph.Module{
		Identifier: id,
		Kind:       kindOf(resource),
		Resource:   resource,
	}
	d := diag.Error(diag.KindParse, id, "Module build failed: %v", err)
	if errors.Is(err, fs.ErrNotExist) {
		d = diag.Error(diag.KindParse, id, "Module build failed: %s does not exist", resource)
	}
	m.Diagnostics = append(m.Diagnostics, d)
	return &graph.BuildResult{Module: m}
}
