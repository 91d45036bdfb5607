package parser

import (
	"slices"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/roach88/jsgraph/internal/dependency"
	"github.com/roach88/jsgraph/internal/diag"
	"github.com/roach88/jsgraph/internal/ident"
	"github.com/roach88/jsgraph/internal/runtime"
)

// apiValue is what a free name of the bundler API compiles to.
type apiValue struct {
	expr string
	reqs runtime.Globals
	// typeOf is the constant `typeof name` folds to; "" leaves it alone.
	typeOf string
}

func global(g runtime.Globals, typeOf string) apiValue {
	return apiValue{expr: g.Name(), reqs: g, typeOf: typeOf}
}

var freeVariables = map[string]apiValue{
	"__webpack_require__":             global(runtime.Require, "function"),
	"__webpack_hash__":                {expr: runtime.GetFullHash.Name() + "()", reqs: runtime.GetFullHash, typeOf: "string"},
	"__webpack_public_path__":         global(runtime.PublicPath, "string"),
	"__webpack_modules__":             global(runtime.ModuleFactories, "object"),
	"__webpack_module__":              global(runtime.Module, "object"),
	"__webpack_chunk_load__":          global(runtime.EnsureChunk, "function"),
	"__webpack_base_uri__":            global(runtime.BaseURI, "string"),
	"__non_webpack_require__":         {expr: "require"},
	"__webpack_share_scopes__":        global(runtime.ShareScopeMap, "object"),
	"__webpack_init_sharing__":        global(runtime.InitializeSharing, "function"),
	"__webpack_nonce__":               global(runtime.ScriptNonce, "string"),
	"__webpack_chunkname__":           global(runtime.ChunkName, "string"),
	"__webpack_runtime_id__":          global(runtime.RuntimeID, ""),
	"__webpack_get_script_filename__": global(runtime.GetChunkScriptFilename, "function"),
}

var freeMembers = map[string]apiValue{
	"require.cache": global(runtime.ModuleCache, ""),
	"require.main": {
		expr: runtime.ModuleCache.Name() + "[" + runtime.EntryModuleID.Name() + "]",
		reqs: runtime.ModuleCache | runtime.EntryModuleID,
	},
	"module.id":     global(runtime.ModuleID, ""),
	"module.loaded": global(runtime.ModuleLoaded, ""),
	"require.amd":   global(runtime.AMDOptions, ""),
	"define.amd":    global(runtime.AMDOptions, ""),
}

var unsupportedMembers = []string{
	"require.extensions", "require.config", "require.version", "require.include",
	"require.onError", "require.main.require", "module.parent.require",
}

var unsupportedCalls = []string{
	"require.config", "require.include", "require.onError", "require.main.require", "module.parent.require",
}

// free reports whether the identifier n names a global: nothing in the
// module imports or declares it.
func (s *scanner) free(n *sitter.Node, name string) bool {
	if _, ok := s.imports[name]; ok {
		return false
	}
	return !s.shadowed(name) && !declares(n) && !slices.Contains(s.decls, name)
}

// memberPath spells a chain of plain property accesses, e.g. "require.main".
func (s *scanner) memberPath(n *sitter.Node) (*sitter.Node, string, bool) {
	switch n.Type() {
	case "identifier":
		return n, s.text(n), true
	case "member_expression":
		obj := n.ChildByFieldName("object")
		prop := n.ChildByFieldName("property")
		if obj == nil || prop == nil || prop.Type() != "property_identifier" || hasChild(n, "optional_chain") {
			return nil, "", false
		}
		root, path, ok := s.memberPath(obj)
		if !ok {
			return nil, "", false
		}
		return root, path + "." + s.text(prop), true
	}
	return nil, "", false
}

// freeIdentifier rewrites a global of the bundler API.
func (s *scanner) freeIdentifier(n *sitter.Node, shorthand bool) {
	name := s.text(n)
	if !s.free(n, name) {
		return
	}
	if v, ok := freeVariables[name]; ok {
		expr := v.expr
		if shorthand {
			expr = name + ": " + expr
		}
		s.present(rangeOf(n), expr, v.reqs)
		return
	}
	if shorthand {
		return
	}
	switch name {
	case "define":
		// define(...) and typeof define stay untouched.
		if !isCallee(n) && !isTypeofOperand(n) {
			s.present(rangeOf(n), runtime.AMDDefine.Name(), runtime.AMDDefine)
		}
	case "module":
		s.decorateModule(n)
	}
}

// decorateModule prepends the module decorator the first time the module
// object escapes. CommonJS modules keep plain module.exports access.
func (s *scanner) decorateModule(n *sitter.Node) {
	if s.decorated || isTypeofOperand(n) {
		return
	}
	if p := n.Parent(); !s.esm && p != nil && p.Type() == "member_expression" && sameNode(p.ChildByFieldName("object"), n) {
		if prop := p.ChildByFieldName("property"); prop != nil && s.text(prop) == "exports" {
			return
		}
	}
	g := runtime.NodeModuleDecorator
	if s.esm {
		g = runtime.ESMModuleDecorator
	}
	s.decorated = true
	s.present(dependency.Range{}, "/* module decorator */ module = "+g.Name()+"(module);\n", g)
}

// apiMember rewrites require.cache, module.id and friends. It reports
// whether n was consumed.
func (s *scanner) apiMember(n *sitter.Node) bool {
	root, path, ok := s.memberPath(n)
	if !ok || !s.free(root, s.text(root)) {
		return false
	}
	if slices.Contains(unsupportedMembers, path) {
		s.unsupported(n, path)
		return true
	}
	v, ok := freeMembers[path]
	if !ok {
		return false
	}
	s.present(rangeOf(n), v.expr, v.reqs)
	return true
}

// unsupportedCall replaces calls like require.config() that have no
// meaning in a bundle.
func (s *scanner) unsupportedCall(n, fn *sitter.Node) bool {
	root, path, ok := s.memberPath(fn)
	if !ok || !slices.Contains(unsupportedCalls, path) || !s.free(root, s.text(root)) {
		return false
	}
	s.unsupported(n, path+"()")
	return true
}

func (s *scanner) unsupported(n *sitter.Node, what string) {
	s.warn(diag.KindSemantic, n, "%s is not supported by jsgraph", what)
	s.present(rangeOf(n), "(void 0)", 0)
}

// typeOf folds `typeof name` for the API globals.
func (s *scanner) typeOf(n *sitter.Node) bool {
	op := n.ChildByFieldName("operator")
	arg := n.ChildByFieldName("argument")
	if op == nil || op.Type() != "typeof" || arg == nil || arg.Type() != "identifier" {
		return false
	}
	name := s.text(arg)
	var kind string
	switch name {
	case "module":
		kind = "object"
	case "require":
		kind = "function"
	default:
		kind = freeVariables[name].typeOf
	}
	if kind == "" || !s.free(arg, name) {
		return false
	}
	s.present(rangeOf(n), ident.QuoteJSON(kind), 0)
	return true
}

func isTypeofOperand(n *sitter.Node) bool {
	p := n.Parent()
	if p == nil || p.Type() != "unary_expression" {
		return false
	}
	op := p.ChildByFieldName("operator")
	return op != nil && op.Type() == "typeof"
}
