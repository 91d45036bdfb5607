package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/jsgraph/internal/dependency"
	"github.com/roach88/jsgraph/internal/ident"
	"github.com/roach88/jsgraph/internal/runtime"
)

func TestToIdentifier(t *testing.T) {
	for in, want := range map[string]string{
		"./b":            "_b",
		"../lib/a-b.js":  "_lib_a_b_js",
		"lodash/fp":      "lodash_fp",
		"@scope/pkg":     "_scope_pkg",
		"$jquery":        "$jquery",
		"9lives":         "_9lives",
		"react-dom/test": "react_dom_test",
	} {
		assert.Equal(t, want, ToIdentifier(in), in)
	}
}

func TestPropertyAccess(t *testing.T) {
	assert.Equal(t, ".a.b", PropertyAccess([]string{"a", "b"}, 0))
	assert.Equal(t, ".b", PropertyAccess([]string{"a", "b"}, 1))
	assert.Equal(t, "", PropertyAccess([]string{"a"}, 3))
	assert.Equal(t, `["default"]["a-b"]["0"].$x`, PropertyAccess([]string{"default", "a-b", "0", "$x"}, 0))
}

func TestMissingModule(t *testing.T) {
	assert.Equal(t,
		`Object(function webpackMissingModule() { var e = new Error("Cannot find module './gone'"); e.code = 'MODULE_NOT_FOUND'; throw e; }())`,
		MissingModule("./gone"))
	assert.Equal(t,
		`Promise.resolve().then(function webpackMissingModule() { var e = new Error("Cannot find module './gone'"); e.code = 'MODULE_NOT_FOUND'; throw e; })`,
		MissingModulePromise("./gone"))
	assert.Contains(t, MissingModule(`"quoted"`), `new Error("Cannot find module '\"quoted\"'")`)
}

// importFixture merges one target of every exports type and an importer
// with one specifier per target.
func importFixture(t *testing.T) (*fixture, ident.ModuleIdentifier, map[string]ident.DependencyID) {
	f := newFixture(t)
	f.leaf("/src/esm.js", esmMeta, "f")
	f.leaf("/src/cjs.js", dynamicMeta)
	f.leaf("/src/data.json", jsonMeta)
	f.leaf("/src/named.js", namedMeta)

	b := f.module("/src/index.js", "", esmMeta)
	deps := map[string]ident.DependencyID{}
	for name, target := range map[string]string{
		"esm":   "/src/esm.js",
		"cjs":   "/src/cjs.js",
		"json":  "/src/data.json",
		"named": "/src/named.js",
		"gone":  "",
	} {
		d := b.add(dependency.NewESMImportSpecifier(b.nextID(dependency.TypeESMImportSpecifier, name), "./"+name, dependency.Range{}, 1, nil), target)
		deps[name] = d.ID()
	}
	return f, b.merge(), deps
}

func TestExportFromImport(t *testing.T) {
	f, index, deps := importFixture(t)

	tests := []struct {
		name    string
		target  string
		ids     []string
		call    bool
		callCtx bool
		asi     dependency.ASISafety
		want    string
	}{
		{"dynamic default call", "cjs", []string{"default"}, true, false, dependency.ASIUnknown, "X_default()"},
		{"dynamic default asi safe", "cjs", []string{"default"}, false, false, dependency.ASISafe, "(X_default())"},
		{"dynamic default asi unsafe", "cjs", []string{"default", "a"}, false, false, dependency.ASIUnsafe, ";(X_default().a)"},
		{"dynamic default unknown asi", "cjs", []string{"default"}, false, false, dependency.ASIUnknown, "X_default.a"},
		{"dynamic esModule flag", "cjs", []string{"__esModule"}, false, false, dependency.ASIUnknown, "/* __esModule */true"},
		{"dynamic namespace", "cjs", nil, false, false, dependency.ASIUnknown, "X"},
		{"default-only default", "json", []string{"default"}, false, false, dependency.ASIUnknown, "X"},
		{"default-only named", "json", []string{"a", "b"}, false, false, dependency.ASIUnknown, "/* non-default import from non-esm module */undefined.b"},
		{"default-with-named default", "named", []string{"default", "x"}, false, false, dependency.ASIUnknown, "X.x"},
		{"default-with-named named", "named", []string{"a"}, false, false, dependency.ASIUnknown, "X.a"},
		{"namespace call unknown asi", "esm", []string{"f"}, true, false, dependency.ASIUnknown, "/*#__PURE__*/Object(X.f)"},
		{"namespace call asi safe", "esm", []string{"f"}, true, false, dependency.ASISafe, "(0,X.f)"},
		{"namespace call asi unsafe", "esm", []string{"f"}, true, false, dependency.ASIUnsafe, ";(0,X.f)"},
		{"namespace member call", "esm", []string{"f"}, true, true, dependency.ASIUnknown, "X.f"},
		{"namespace default", "esm", []string{"default"}, false, false, dependency.ASIUnknown, `X["default"]`},
		{"namespace esModule", "esm", []string{"__esModule"}, false, false, dependency.ASIUnknown, "X.__esModule"},
		{"namespace object", "esm", nil, false, false, dependency.ASIUnknown, "X"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := f.context(index, Options{})
			got := ctx.ExportFromImport(ExportAccess{
				Dependency:  deps[tt.target],
				Target:      modID("/src/" + map[string]string{"esm": "esm.js", "cjs": "cjs.js", "json": "data.json", "named": "named.js"}[tt.target]),
				Request:     "./" + tt.target,
				ImportVar:   "X",
				Ids:         tt.ids,
				Call:        tt.call,
				CallContext: tt.callCtx,
				ASI:         tt.asi,
			})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExportFromImportFakeNamespace(t *testing.T) {
	f, index, deps := importFixture(t)

	ctx := f.context(index, Options{})
	got := ctx.ExportFromImport(ExportAccess{Dependency: deps["named"], Target: modID("/src/named.js"), ImportVar: "X", ASI: dependency.ASISafe})
	assert.Equal(t, "/*#__PURE__*/ (X_namespace_cache || (X_namespace_cache = __webpack_require__.t(X, 2)))", got)
	assert.True(t, ctx.RuntimeRequirements.Has(runtime.CreateFakeNamespaceObject))
	require.Len(t, ctx.InitFragments, 1)
	assert.Equal(t, "var X_namespace_cache;\n", ctx.InitFragments[0].Content(ctx))
	assert.Equal(t, StageConstants, ctx.InitFragments[0].Stage())

	got = ctx.ExportFromImport(ExportAccess{Dependency: deps["json"], Target: modID("/src/data.json"), ImportVar: "Y"})
	assert.Equal(t, "/*#__PURE__*/ Object(Y_namespace_cache || (Y_namespace_cache = __webpack_require__.t(Y)))", got)
}

func TestExportFromImportMissingTarget(t *testing.T) {
	f, index, deps := importFixture(t)
	ctx := f.context(index, Options{})
	got := ctx.ExportFromImport(ExportAccess{Dependency: deps["gone"], Request: "./gone", Ids: []string{"a"}})
	assert.Equal(t, MissingModule("./gone"), got)
}

func TestExportFromImportConcatenated(t *testing.T) {
	f, index, deps := importFixture(t)
	ctx := f.context(index, Options{})
	ctx.Concatenation = NewConcatenationScope()
	ctx.Concatenation.Register(modID("/src/esm.js"), "f", "esm_f")

	got := ctx.ExportFromImport(ExportAccess{Dependency: deps["esm"], Target: modID("/src/esm.js"), ImportVar: "X", Ids: []string{"f", "g"}})
	assert.Equal(t, "esm_f.g", got)
	got = ctx.ExportFromImport(ExportAccess{Dependency: deps["esm"], Target: modID("/src/esm.js"), ImportVar: "X", Ids: []string{"h"}})
	assert.Equal(t, "X.h", got)
}

func TestImportStatement(t *testing.T) {
	f, index, deps := importFixture(t)
	ctx := f.context(index, Options{Pathinfo: true})

	s, err := ctx.ImportStatement(deps["esm"], modID("/src/esm.js"), "./esm", "_esm__WEBPACK_IMPORTED_MODULE_0__")
	require.NoError(t, err)
	assert.Equal(t, "/* ESM import */ var _esm__WEBPACK_IMPORTED_MODULE_0__ = __webpack_require__(/*! ./esm */ \"./src/esm.js\");\n", s)

	s, err = ctx.ImportStatement(deps["cjs"], modID("/src/cjs.js"), "./cjs", "C")
	require.NoError(t, err)
	assert.Equal(t, "/* ESM import */ var C = __webpack_require__(/*! ./cjs */ \"./src/cjs.js\");\n"+
		"/* ESM import */ var C_default = /*#__PURE__*/__webpack_require__.n(C);\n", s)
	assert.True(t, ctx.RuntimeRequirements.Has(runtime.Require|runtime.CompatGetDefaultExport))

	s, err = ctx.ImportStatement(deps["gone"], "", "./gone", "G")
	require.NoError(t, err)
	assert.Equal(t, MissingModule("./gone")+";\n", s)
}

func TestBlockPromiseArity(t *testing.T) {
	f := newFixture(t)
	b := f.module("/src/index.js", "", esmMeta)
	none := b.block(nil)
	runtimeOnly := b.block([]ChunkRef{{ID: "main", HasRuntime: true}})
	one := b.block([]ChunkRef{{ID: "main", HasRuntime: true}, {ID: "lazy"}})
	many := b.block([]ChunkRef{{ID: "vendors"}, {ID: "10"}, {ID: "2"}})
	index := b.merge()

	ctx := f.context(index, Options{})
	assert.Equal(t, "Promise.resolve()", ctx.BlockPromise(nil, ""))
	assert.Equal(t, "Promise.resolve()", ctx.BlockPromise(none, ""))
	assert.Equal(t, "Promise.resolve()", ctx.BlockPromise(runtimeOnly, ""))
	assert.False(t, ctx.RuntimeRequirements.Has(runtime.EnsureChunk))

	assert.Equal(t, `__webpack_require__.e("lazy")`, ctx.BlockPromise(one, "import()"))
	assert.Equal(t, `Promise.all([__webpack_require__.e(2), __webpack_require__.e(10), __webpack_require__.e("vendors")])`, ctx.BlockPromise(many, ""))
	assert.True(t, ctx.RuntimeRequirements.Has(runtime.EnsureChunk))

	ctx = f.context(index, Options{Pathinfo: true})
	assert.Equal(t, `__webpack_require__.e(/*! import() */ "lazy")`, ctx.BlockPromise(one, "import()"))
	assert.Equal(t, `Promise.resolve(/*! import() */)`, ctx.BlockPromise(none, "import()"))
	assert.Equal(t, `Promise.all(/*! import() */[__webpack_require__.e(2), __webpack_require__.e(10), __webpack_require__.e("vendors")])`, ctx.BlockPromise(many, "import()"))
}

func TestModuleNamespacePromise(t *testing.T) {
	f, index, deps := importFixture(t)
	ctx := f.context(index, Options{})

	tests := []struct {
		target string
		path   string
		want   string
	}{
		{"esm", "/src/esm.js", `Promise.resolve().then(__webpack_require__.bind(__webpack_require__, "./src/esm.js"))`},
		{"cjs", "/src/cjs.js", `Promise.resolve().then(__webpack_require__.t.bind(__webpack_require__, "./src/cjs.js", 23))`},
		{"named", "/src/named.js", `Promise.resolve().then(__webpack_require__.t.bind(__webpack_require__, "./src/named.js", 19))`},
		{"json", "/src/data.json", `Promise.resolve().then(__webpack_require__.t.bind(__webpack_require__, "./src/data.json", 17))`},
	}
	for _, tt := range tests {
		got, err := ctx.ModuleNamespacePromise(nil, deps[tt.target], modID(tt.path), "./"+tt.target, "")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.target)
	}

	got, err := ctx.ModuleNamespacePromise(nil, deps["gone"], "", "./gone", "")
	require.NoError(t, err)
	assert.Equal(t, MissingModulePromise("./gone"), got)
}

func TestModuleRawNeedsChunkView(t *testing.T) {
	f, index, _ := importFixture(t)
	ctx := f.context(index, Options{})
	ctx.Chunks = nil
	_, err := ctx.ModuleRaw(modID("/src/esm.js"), "./esm")
	assert.Error(t, err)
}
