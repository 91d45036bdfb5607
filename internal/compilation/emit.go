package compilation

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/roach88/jsgraph/internal/chunk"
	"github.com/roach88/jsgraph/internal/codegen"
	"github.com/roach88/jsgraph/internal/diag"
	"github.com/roach88/jsgraph/internal/ident"
	"github.com/roach88/jsgraph/internal/runtime"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var chunkTemplates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

type runtimeSource struct {
	Identifier string
	Source     string
}

type bootstrapData struct {
	Open            string
	Factories       string
	ModuleFactories bool
	ModuleCache     bool
	EntryModuleID   bool
	RuntimeModules  []runtimeSource
	Entry           string
}

type chunkData struct {
	Global    string
	ID        string
	Factories string
}

var unsafeGlobal = regexp.MustCompile(`[^a-zA-Z0-9_$]`)

// globalSafe turns a unique name into a JavaScript identifier fragment.
func globalSafe(name string) string {
	return unsafeGlobal.ReplaceAllString(name, "_")
}

// fullHash hashes the rendered code of every placed module.
func fullHash(cg *chunk.Graph, renders map[ident.ModuleIdentifier]*codegen.Result) string {
	var b strings.Builder
	for _, ch := range cg.Chunks() {
		for _, m := range ch.Modules {
			id, _ := cg.ModuleID(m)
			b.WriteString(string(id))
			b.WriteByte(0)
			if r := renders[m]; r != nil {
				b.WriteString(r.Source)
			}
			b.WriteByte(0)
		}
	}
	return ident.ContentHash([]byte(b.String()))[:20]
}

// emit assembles the chunk files. Chunks carrying a runtime get the
// bootstrap and the runtime modules their requirements select; other chunks
// push their factories onto the chunk loading global.
func (c *Compiler) emit(ctx context.Context, cg *chunk.Graph, renders map[ident.ModuleIdentifier]*codegen.Result, hash string) ([]Asset, []diag.Diagnostic, error) {
	var assets []Asset
	var diags []diag.Diagnostic
	for _, ch := range cg.Chunks() {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		var src string
		var err error
		if ch.HasRuntime {
			src, err = c.renderRuntimeChunk(cg, ch, renders, hash)
		} else {
			src, err = c.renderAsyncChunk(cg, ch, renders)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("render chunk %s: %w", ch.ID, err)
		}
		if c.opts.Output.Minify {
			minified, errs := minify(ch.File, src)
			diags = append(diags, errs...)
			if len(errs) == 0 {
				src = minified
			}
		}
		assets = append(assets, Asset{Name: ch.File, Chunk: ch.ID, Source: src, Size: len(src), HasError: ch.HasError})
	}
	return assets, diags, nil
}

func (c *Compiler) factories(cg *chunk.Graph, ch *chunk.Chunk, renders map[ident.ModuleIdentifier]*codegen.Result) string {
	parts := make([]string, 0, len(ch.Modules))
	for _, m := range ch.Modules {
		id, _ := cg.ModuleID(m)
		r := renders[m]
		if r == nil {
			continue
		}
		parts = append(parts, r.Factory(id, c.codegenOptions()))
	}
	return strings.Join(parts, ",\n\n")
}

func (c *Compiler) renderAsyncChunk(cg *chunk.Graph, ch *chunk.Chunk, renders map[ident.ModuleIdentifier]*codegen.Result) (string, error) {
	var buf bytes.Buffer
	err := chunkTemplates.ExecuteTemplate(&buf, "chunk.js.tmpl", chunkData{
		Global:    ident.QuoteJSON(c.opts.Output.ChunkLoadingGlobal),
		ID:        ch.ID.JSON(),
		Factories: c.factories(cg, ch, renders),
	})
	return buf.String(), err
}

// chunkContext describes a runtime chunk to the runtime modules. Its
// runtime can load every chunk below it; async chunks load through JSONP
// from pages and through importScripts from workers.
func (c *Compiler) chunkContext(cg *chunk.Graph, ch *chunk.Chunk, hash string) runtime.ChunkContext {
	cc := runtime.ChunkContext{
		ChunkID:                   ch.ID,
		ChunkName:                 ch.Name,
		Runtime:                   ch.Runtime,
		PublicPath:                c.opts.Output.PublicPath,
		AutoPublicPath:            c.opts.Output.PublicPath == AutoPublicPath,
		JSONPChunkLoading:         ch.Kind == chunk.KindEntry,
		ImportScriptsChunkLoading: ch.Kind == chunk.KindWorker,
		InstalledChunks:           []ident.OutputID{ch.ID},
		ChunkLoadingGlobal:        c.opts.Output.ChunkLoadingGlobal,
		UniqueName:                c.opts.Output.UniqueName,
		FullHash:                  hash,
		TrustedTypesPolicy:        c.opts.Output.TrustedTypes,
	}
	for _, l := range cg.Loadable(ch) {
		cc.ChunkFiles = append(cc.ChunkFiles, runtime.ChunkFile{ID: l.ID, File: l.File})
		if !l.HasRuntime {
			cc.HasAsyncChunks = true
		}
	}
	return cc
}

// chunkRequirements unions the requirements of the modules the runtime of ch
// can run: its own and those of the async chunks it loads.
func chunkRequirements(cg *chunk.Graph, ch *chunk.Chunk, renders map[ident.ModuleIdentifier]*codegen.Result) runtime.Globals {
	var reqs runtime.Globals
	add := func(c *chunk.Chunk) {
		for _, m := range c.Modules {
			if r := renders[m]; r != nil {
				reqs |= r.RuntimeRequirements
			}
		}
	}
	add(ch)
	for _, l := range cg.Loadable(ch) {
		if !l.HasRuntime {
			add(l)
		}
	}
	return reqs
}

func (c *Compiler) renderRuntimeChunk(cg *chunk.Graph, ch *chunk.Chunk, renders map[ident.ModuleIdentifier]*codegen.Result, hash string) (string, error) {
	cc := c.chunkContext(cg, ch, hash)
	reqs := runtime.NegotiateChunk(chunkRequirements(cg, ch, renders), cc.Conditions())

	data := bootstrapData{
		Open:            "(function() {",
		Factories:       c.factories(cg, ch, renders),
		ModuleFactories: reqs.Has(runtime.ModuleFactories),
		ModuleCache:     reqs.Has(runtime.ModuleCache),
		EntryModuleID:   reqs.Has(runtime.EntryModuleID),
	}
	if c.opts.Output.ArrowFunctions {
		data.Open = "(() => {"
	}
	for _, m := range runtime.ModulesFor(reqs, cc) {
		src, err := m.Generate(cc, reqs)
		if err != nil {
			return "", err
		}
		data.RuntimeModules = append(data.RuntimeModules, runtimeSource{
			Identifier: m.Identifier(),
			Source:     strings.TrimRight(src, "\n"),
		})
	}
	if id, ok := cg.ModuleID(ch.Entry); ok {
		data.Entry = id.JSON()
	}

	var buf bytes.Buffer
	if err := chunkTemplates.ExecuteTemplate(&buf, "bootstrap.js.tmpl", data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// minify compresses a chunk with esbuild. Failures are reported and leave
// the chunk as it was.
func minify(name, src string) (string, []diag.Diagnostic) {
	res := api.Transform(src, api.TransformOptions{
		Loader:           api.LoaderJS,
		Sourcefile:       name,
		MinifyWhitespace: true,
		MinifySyntax:     true,
	})
	if len(res.Errors) == 0 {
		return string(res.Code), nil
	}
	out := make([]diag.Diagnostic, 0, len(res.Errors))
	for _, e := range res.Errors {
		d := diag.Error(diag.KindCodegen, "", "Minify %s: %s", name, e.Text)
		if e.Location != nil {
			d = d.With("line", fmt.Sprint(e.Location.Line))
		}
		out = append(out, d)
	}
	return src, out
}
