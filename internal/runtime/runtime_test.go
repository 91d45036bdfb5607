package runtime

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/jsgraph/internal/ident"
)

func TestNamesAreCanonical(t *testing.T) {
	assert.Equal(t, "__webpack_require__", Require.Name())
	assert.Equal(t, "__webpack_require__.e", EnsureChunk.Name())
	assert.Equal(t, "__webpack_require__.t", CreateFakeNamespaceObject.Name())
	assert.Equal(t, "__webpack_require__.r|__webpack_require__.d", (MakeNamespaceObject | DefinePropertyGetters).Name())

	for _, f := range All().Flags() {
		got, ok := ByName(f.Name())
		require.True(t, ok, f.Name())
		assert.Equal(t, f, got)
	}
}

func TestFlagsBitOrder(t *testing.T) {
	g := DefinePropertyGetters | RequireScope | Require
	assert.Equal(t, []Globals{RequireScope, Require, DefinePropertyGetters}, g.Flags())
	assert.Equal(t, 3, g.Len())
	assert.True(t, g.Has(Require|RequireScope))
	assert.False(t, g.Has(Require|Module))
	assert.True(t, g.HasAny(Require|Module))
}

// reference closure: apply every rule in reverse order until nothing changes
func naiveClosure(g Globals, table []Implication) Globals {
	for {
		next := g
		for i := len(table) - 1; i >= 0; i-- {
			if next.HasAny(table[i].From) {
				next |= table[i].Implies
			}
		}
		if next.HasAny(GlobalsOnRequire) {
			next |= RequireScope
		}
		if next == g {
			return g
		}
		g = next
	}
}

func TestModuleNegotiationReachesFixedPointInOnePass(t *testing.T) {
	for _, f := range All().Flags() {
		t.Run(f.Name(), func(t *testing.T) {
			assert.Equal(t, naiveClosure(f, ModuleDependencies).String(), NegotiateModule(f).String())
		})
	}
}

// conditional chunk rules expressed as plain implications, for a chunk where
// every condition holds
var allConditionsRules = []Implication{
	{EnsureChunk, EnsureChunkHandlers},
	{PrefetchChunk, PrefetchChunkHandlers},
	{PreloadChunk, PreloadChunkHandlers},
	{EnsureChunkHandlers, PublicPath | LoadScript | GetChunkScriptFilename | HasOwnProperty | ModuleFactories | ChunkCallback},
	{LoadScript, CreateScriptURL},
	{CreateScript | CreateScriptURL, GetTrustedTypesPolicy},
	{GetChunkScriptFilename, GetFullHash},
	{PublicPath, Global},
}

func TestTreeNegotiationReachesFixedPointInOnePass(t *testing.T) {
	noConditions := append([]Implication{
		{PrefetchChunk, PrefetchChunkHandlers},
		{PreloadChunk, PreloadChunkHandlers},
	}, TreeDependencies...)
	everything := append(append([]Implication{}, allConditionsRules...), TreeDependencies...)
	all := ChunkConditions{HasAsyncChunks: true, JSONPChunkLoading: true, TrustedTypes: true, AutoPublicPath: true, HashedChunkFiles: true}

	for _, f := range All().Flags() {
		t.Run(f.Name(), func(t *testing.T) {
			assert.Equal(t, naiveClosure(f, noConditions).String(), NegotiateChunk(f, ChunkConditions{}).String())
			assert.Equal(t, naiveClosure(f, everything).String(), NegotiateChunk(f, all).String())
		})
	}
}

func TestNegotiationOfFlagPairs(t *testing.T) {
	flags := All().Flags()
	for i, a := range flags {
		for _, b := range flags[i+1:] {
			g := a | b
			if got, want := NegotiateModule(g), naiveClosure(g, ModuleDependencies); got != want {
				t.Errorf("module %s: got %s want %s", g, got, want)
			}
		}
	}
}

func TestCreateFakeNamespaceObjectClosure(t *testing.T) {
	got := NegotiateChunk(CreateFakeNamespaceObject, ChunkConditions{})
	assert.True(t, got.Has(DefinePropertyGetters|MakeNamespaceObject|Require|HasOwnProperty|RequireScope))
}

func TestCompatGetDefaultExportPullsHasOwnProperty(t *testing.T) {
	got := NegotiateChunk(CompatGetDefaultExport, ChunkConditions{})
	assert.True(t, got.Has(DefinePropertyGetters|HasOwnProperty))
}

func TestModuleDecoratorNeedsModule(t *testing.T) {
	got := NegotiateModule(ESMModuleDecorator)
	assert.True(t, got.Has(Module|RequireScope))
	assert.Equal(t, Require, NegotiateModule(AMDDefine)&Require)
}

func TestNegotiationIsIdempotent(t *testing.T) {
	c := ChunkConditions{HasAsyncChunks: true, JSONPChunkLoading: true, AutoPublicPath: true, TrustedTypes: true}
	once := NegotiateChunk(EnsureChunk|CompatGetDefaultExport, c)
	twice := NegotiateChunk(once, c)
	assert.Equal(t, once, twice)
}

func TestConditionalChunkRules(t *testing.T) {
	c := ChunkConditions{HasAsyncChunks: true, JSONPChunkLoading: true, AutoPublicPath: true, TrustedTypes: true}
	got := NegotiateChunk(EnsureChunk, c)

	assert.True(t, got.Has(EnsureChunkHandlers), "async chunks need handlers")
	assert.True(t, got.Has(PublicPath|LoadScript|GetChunkScriptFilename), "jsonp loading")
	assert.True(t, got.Has(CreateScriptURL|GetTrustedTypesPolicy), "trusted types chain")
	assert.True(t, got.Has(Global), "auto public path reads the global object")
	assert.True(t, got.Has(RequireScope))

	plain := NegotiateChunk(EnsureChunk, ChunkConditions{})
	assert.False(t, plain.Has(EnsureChunkHandlers))
}

func TestMustBeOrderedPanicsOnBackEdge(t *testing.T) {
	assert.Panics(t, func() {
		mustBeOrdered("bad", []Implication{
			{DefinePropertyGetters, HasOwnProperty},
			{CompatGetDefaultExport, DefinePropertyGetters},
		})
	})
	assert.Panics(t, func() {
		mustBeOrdered("self", []Implication{{Require, Require}})
	})
}

func TestModulesForIsSortedAndDeduplicated(t *testing.T) {
	c := ChunkContext{ChunkID: "main", Runtime: "main", PublicPath: "/", JSONPChunkLoading: true}
	g := NegotiateChunk(EnsureChunk|CompatGetDefaultExport, ChunkConditions{HasAsyncChunks: true, JSONPChunkLoading: true})
	mods := ModulesFor(g, c)

	var names []string
	for _, m := range mods {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{
		"compat_get_default_export",
		"define_property_getters",
		"ensure_chunk",
		"get_chunk_filename",
		"has_own_property",
		"load_script",
		"public_path",
		"jsonp_chunk_loading",
	}, names)
}

func TestGenerateEnsureChunkVariants(t *testing.T) {
	m := mod("ensure_chunk", StageNormal)

	withHandlers, err := m.Generate(ChunkContext{}, EnsureChunk|EnsureChunkHandlers)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(withHandlers, "__webpack_require__.f = {};\n"))
	assert.True(t, strings.HasSuffix(withHandlers, "};\n"))

	without, err := m.Generate(ChunkContext{}, EnsureChunk)
	require.NoError(t, err)
	assert.Contains(t, without, "return Promise.resolve();")
	assert.NotContains(t, without, "__webpack_require__.f")
}

func TestGenerateChunkFileMapIsSorted(t *testing.T) {
	c := ChunkContext{ChunkFiles: []ChunkFile{
		{ID: "lazy", File: "lazy.js"},
		{ID: "2", File: "2.js"},
	}}
	out, err := mod("get_chunk_filename", StageNormal).Generate(c, GetChunkScriptFilename)
	require.NoError(t, err)
	assert.Contains(t, out, `return {2: "2.js", "lazy": "lazy.js"}[chunkId];`)
}

func TestGeneratePublicPathEscapes(t *testing.T) {
	out, err := mod("public_path", StageBasic).Generate(ChunkContext{PublicPath: `/a"b/`}, PublicPath)
	require.NoError(t, err)
	assert.Equal(t, "__webpack_require__.p = \"/a\\\"b/\";\n", out)
}

func TestGenerateInstalledChunks(t *testing.T) {
	c := ChunkContext{InstalledChunks: []ident.OutputID{"main"}, ChunkLoadingGlobal: "webpackChunkapp"}
	out, err := mod("jsonp_chunk_loading", StageAttach).Generate(c, EnsureChunkHandlers)
	require.NoError(t, err)
	assert.Contains(t, out, `var installedChunks = {"main": 0};`)
	assert.Contains(t, out, `self["webpackChunkapp"]`)
	assert.Contains(t, out, `' failed.\n('`)
}

func TestEveryTemplateRenders(t *testing.T) {
	c := ChunkContext{ChunkID: "main", ChunkName: "main", Runtime: "main", PublicPath: "/",
		FullHash: "abc", TrustedTypesPolicy: "app", ChunkLoadingGlobal: "webpackChunk"}
	for flag, sel := range moduleSelectors {
		m := sel(c)
		t.Run(m.Name, func(t *testing.T) {
			out, err := m.Generate(c, flag)
			require.NoError(t, err)
			assert.NotEmpty(t, strings.TrimSpace(out))
			assert.True(t, strings.HasSuffix(out, "\n"))
		})
	}
}

func TestImportScriptsChunkLoading(t *testing.T) {
	c := ChunkContext{ChunkID: "worker", Runtime: "worker", ImportScriptsChunkLoading: true,
		InstalledChunks: []ident.OutputID{"worker"}, ChunkLoadingGlobal: "webpackChunkapp"}
	g := NegotiateChunk(EnsureChunk, ChunkConditions{HasAsyncChunks: true, ImportScriptsChunkLoading: true})
	assert.True(t, g.Has(EnsureChunkHandlers|PublicPath|GetChunkScriptFilename))
	assert.False(t, g.Has(LoadScript), "workers have no document to add script tags to")

	var loader Module
	for _, m := range ModulesFor(g, c) {
		if m.Stage == StageAttach {
			loader = m
		}
	}
	require.Equal(t, "import_scripts_chunk_loading", loader.Name)
	out, err := loader.Generate(c, g)
	require.NoError(t, err)
	assert.Contains(t, out, `var installedChunks = {"worker": 0};`)
	assert.Contains(t, out, "importScripts(__webpack_require__.p + __webpack_require__.u(chunkId));")
	assert.Contains(t, out, `self["webpackChunkapp"]`)
}

func TestLoadScriptNonce(t *testing.T) {
	m := mod("load_script", StageNormal)
	const line = `if (__webpack_require__.nc) script.setAttribute("nonce", __webpack_require__.nc);`

	with, err := m.Generate(ChunkContext{}, LoadScript|ScriptNonce)
	require.NoError(t, err)
	assert.Contains(t, with, "script.timeout = 120;\n\t\t"+line+"\n\t\tscript.setAttribute(\"data-webpack\"")

	without, err := m.Generate(ChunkContext{}, LoadScript)
	require.NoError(t, err)
	assert.NotContains(t, without, "nonce")
}

func TestInitializeSharingPullsShareScope(t *testing.T) {
	g := NegotiateChunk(InitializeSharing, ChunkConditions{})
	var names []string
	for _, m := range ModulesFor(g, ChunkContext{}) {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"has_own_property", "initialize_sharing", "share_scope_map"}, names)
}
