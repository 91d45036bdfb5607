package runtime

import (
	"bytes"
	"embed"
	"fmt"
	"slices"
	"strings"
	"sync"
	"text/template"

	"github.com/roach88/jsgraph/internal/ident"
)

//go:embed templates/*.js
var templateFS embed.FS

var (
	templatesOnce sync.Once
	templates     *template.Template
	templatesErr  error
)

func loadTemplates() (*template.Template, error) {
	templatesOnce.Do(func() {
		templates, templatesErr = template.New("runtime").
			Funcs(template.FuncMap{"json": ident.QuoteJSON}).
			ParseFS(templateFS, "templates/*.js")
	})
	return templates, templatesErr
}

// Stage orders runtime modules within a chunk.
type Stage int

const (
	StageNormal  Stage = 0
	StageBasic   Stage = 5
	StageAttach  Stage = 10
	StageTrigger Stage = 20
)

// ChunkFile maps an async chunk id to its emitted file name.
type ChunkFile struct {
	ID   ident.OutputID
	File string
}

// ChunkContext is what runtime modules know about the chunk they are
// generated for.
type ChunkContext struct {
	ChunkID                   ident.OutputID
	ChunkName                 string
	Runtime                   string
	PublicPath                string
	AutoPublicPath            bool
	HasAsyncChunks            bool
	JSONPChunkLoading         bool
	ImportScriptsChunkLoading bool
	ChunkFiles                []ChunkFile
	InstalledChunks           []ident.OutputID
	ChunkLoadingGlobal        string
	UniqueName                string
	FullHash                  string
	TrustedTypesPolicy        string
}

// Conditions derives the negotiation facts for the chunk.
func (c ChunkContext) Conditions() ChunkConditions {
	hashed := false
	for _, f := range c.ChunkFiles {
		if strings.Contains(f.File, c.FullHash) && c.FullHash != "" {
			hashed = true
			break
		}
	}
	return ChunkConditions{
		HasAsyncChunks:            c.HasAsyncChunks,
		JSONPChunkLoading:         c.JSONPChunkLoading,
		ImportScriptsChunkLoading: c.ImportScriptsChunkLoading,
		TrustedTypes:              c.TrustedTypesPolicy != "",
		AutoPublicPath:            c.AutoPublicPath,
		HashedChunkFiles:          hashed,
	}
}

// templateData is handed to the runtime templates.
type templateData struct {
	ChunkContext
	Handlers     bool
	TrustedTypes bool
	Nonce        bool
}

// ChunkFileMap renders the chunk id to file name object literal.
func (d templateData) ChunkFileMap() string {
	files := slices.Clone(d.ChunkFiles)
	slices.SortFunc(files, func(a, b ChunkFile) int { return strings.Compare(string(a.ID), string(b.ID)) })
	parts := make([]string, len(files))
	for i, f := range files {
		parts[i] = f.ID.JSON() + ": " + ident.QuoteJSON(f.File)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// InstalledChunkMap renders the initially installed chunks object literal.
func (d templateData) InstalledChunkMap() string {
	ids := slices.Clone(d.InstalledChunks)
	slices.Sort(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.JSON() + ": 0"
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// UniqueNamePrefix is the data-webpack attribute prefix of injected scripts.
func (d templateData) UniqueNamePrefix() string {
	if d.UniqueName == "" {
		return ""
	}
	return d.UniqueName + ":"
}

// Module is a runtime helper attached to a chunk.
type Module struct {
	Name  string
	Stage Stage
	file  string
}

// Identifier returns the runtime module's identifier, e.g.
// "webpack/runtime/has_own_property".
func (m Module) Identifier() string { return "webpack/runtime/" + m.Name }

// Generate renders the module body for a chunk.
func (m Module) Generate(c ChunkContext, requirements Globals) (string, error) {
	t, err := loadTemplates()
	if err != nil {
		return "", fmt.Errorf("load runtime templates: %w", err)
	}
	var buf bytes.Buffer
	data := templateData{
		ChunkContext: c,
		Handlers:     requirements.Has(EnsureChunkHandlers),
		TrustedTypes: c.TrustedTypesPolicy != "",
		Nonce:        requirements.Has(ScriptNonce),
	}
	if err := t.ExecuteTemplate(&buf, m.file, data); err != nil {
		return "", fmt.Errorf("render %s: %w", m.Identifier(), err)
	}
	return buf.String(), nil
}

func mod(name string, stage Stage) Module {
	return Module{Name: name, Stage: stage, file: name + ".js"}
}

// moduleSelectors maps each flag to the runtime module implementing it.
// Flags served by the bootstrap itself (Require, ModuleCache, ModuleFactories,
// Exports, Module, EntryModuleID, RequireScope) have no entry. ScriptNonce is
// set by user code and read by load_script.
var moduleSelectors = map[Globals]func(ChunkContext) Module{
	HasOwnProperty:            fixed(mod("has_own_property", StageNormal)),
	MakeNamespaceObject:       fixed(mod("make_namespace_object", StageNormal)),
	DefinePropertyGetters:     fixed(mod("define_property_getters", StageNormal)),
	CompatGetDefaultExport:    fixed(mod("compat_get_default_export", StageNormal)),
	CreateFakeNamespaceObject: fixed(mod("create_fake_namespace_object", StageNormal)),
	EnsureChunk:               fixed(mod("ensure_chunk", StageNormal)),
	Global:                    fixed(mod("global", StageNormal)),
	PublicPath: func(c ChunkContext) Module {
		if c.AutoPublicPath {
			return mod("auto_public_path", StageBasic)
		}
		return mod("public_path", StageBasic)
	},
	GetChunkScriptFilename: fixed(mod("get_chunk_filename", StageNormal)),
	LoadScript:             fixed(mod("load_script", StageNormal)),
	EnsureChunkHandlers: func(c ChunkContext) Module {
		if c.ImportScriptsChunkLoading {
			return mod("import_scripts_chunk_loading", StageAttach)
		}
		return mod("jsonp_chunk_loading", StageAttach)
	},
	BaseURI:               fixed(mod("base_uri", StageNormal)),
	GetFullHash:           fixed(mod("get_full_hash", StageNormal)),
	RuntimeID:             fixed(mod("runtime_id", StageNormal)),
	ChunkName:             fixed(mod("chunk_name", StageNormal)),
	NodeModuleDecorator:   fixed(mod("node_module_decorator", StageNormal)),
	ESMModuleDecorator:    fixed(mod("esm_module_decorator", StageNormal)),
	AMDDefine:             fixed(mod("amd_define", StageNormal)),
	AMDOptions:            fixed(mod("amd_options", StageNormal)),
	UncaughtErrorHandler:  fixed(mod("on_error", StageNormal)),
	CreateScriptURL:       fixed(mod("create_script_url", StageNormal)),
	GetTrustedTypesPolicy: fixed(mod("get_trusted_types_policy", StageNormal)),
	ShareScopeMap:         fixed(mod("share_scope_map", StageNormal)),
	InitializeSharing:     fixed(mod("initialize_sharing", StageNormal)),
}

func fixed(m Module) func(ChunkContext) Module {
	return func(ChunkContext) Module { return m }
}

// ModulesFor selects the runtime modules for a chunk's closed requirements.
// The result is sorted by stage, then name.
func ModulesFor(requirements Globals, c ChunkContext) []Module {
	var out []Module
	for _, flag := range requirements.Flags() {
		sel, ok := moduleSelectors[flag]
		if !ok {
			continue
		}
		if flag == EnsureChunkHandlers && !c.JSONPChunkLoading && !c.ImportScriptsChunkLoading {
			continue
		}
		out = append(out, sel(c))
	}
	slices.SortFunc(out, func(a, b Module) int {
		if a.Stage != b.Stage {
			return int(a.Stage) - int(b.Stage)
		}
		return strings.Compare(a.Name, b.Name)
	})
	return slices.CompactFunc(out, func(a, b Module) bool { return a.Name == b.Name })
}
