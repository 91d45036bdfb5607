package parser

import (
	"slices"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/roach88/jsgraph/internal/dependency"
	"github.com/roach88/jsgraph/internal/diag"
	"github.com/roach88/jsgraph/internal/graph"
	"github.com/roach88/jsgraph/internal/ident"
	"github.com/roach88/jsgraph/internal/runtime"
)

// binding is a local name bound by an import statement.
type binding struct {
	request   string
	order     int
	ids       []string // imported path; nil for a namespace import
	namespace bool
}

type scanner struct {
	in  Input
	src []byte
	out *ParsedModule
	m   *graph.Module
	err error

	ordinals map[string]int
	order    int // source order of the last import statement

	esm       bool
	flagged   bool // CommonJS module that sets __esModule
	decorated bool
	imports   map[string]binding
	exported  map[string]bool
	names     []string
	decls     []string

	blocks   []*dependency.AsyncBlock // open blocks, innermost last
	scopes   []map[string]bool        // names shadowed by nested functions
	fnDepth  int
	tryDepth int
}

func newScanner(in Input, out *ParsedModule) *scanner {
	return &scanner{
		in:       in,
		src:      in.Source,
		out:      out,
		m:        out.Module,
		ordinals: make(map[string]int),
		imports:  make(map[string]binding),
		exported: make(map[string]bool),
	}
}

func (s *scanner) scan(root *sitter.Node) error {
	s.esm = s.in.Kind == graph.KindJavaScriptESM || (s.in.Kind != graph.KindJavaScriptCJS && hasModuleSyntax(root))
	if s.esm {
		s.add(dependency.NewESMCompatibility(s.depID(dependency.TypeESMCompatibility, "")))
	}

	// Imports are hoisted: bindings are known before any reference is seen.
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		switch n.Type() {
		case "import_statement":
			s.importStatement(n)
		case "export_statement":
		default:
			s.decls = append(s.decls, declaredNames(n, s.src)...)
		}
	}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		if n := root.NamedChild(i); n.Type() == "export_statement" {
			s.exportStatement(n)
		}
	}
	s.walk(root)
	if s.err != nil {
		return s.err
	}
	s.finish(root)
	return nil
}

func hasModuleSyntax(root *sitter.Node) bool {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		switch root.NamedChild(i).Type() {
		case "import_statement", "export_statement":
			return true
		}
	}
	return false
}

// finish fills in build meta and info.
func (s *scanner) finish(root *sitter.Node) {
	meta := &s.m.BuildMeta
	info := &s.m.BuildInfo
	info.ModuleArgument = "module"
	if s.esm {
		meta.ExportsType = graph.MetaExportsNamespace
		meta.ESM = true
		meta.StrictESM = s.in.StrictESM
		info.Strict = true
		info.ExportsArgument = "__webpack_exports__"
	} else {
		meta.ExportsType = graph.MetaExportsDynamic
		if s.flagged {
			meta.ExportsType = graph.MetaExportsFlagged
		}
		info.Strict = useStrict(root, s.src)
		info.ExportsArgument = "exports"
	}
	info.NamedExports = sortedUnique(s.names)
	info.TopLevelDeclarations = sortedUnique(s.decls)
}

func useStrict(root *sitter.Node, src []byte) bool {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		if n.Type() == "comment" || n.Type() == "hash_bang_line" {
			continue
		}
		if n.Type() != "expression_statement" || n.NamedChildCount() == 0 {
			return false
		}
		v, ok := stringValue(n.NamedChild(0), src)
		return ok && v == "use strict"
	}
	return false
}

func sortedUnique(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	out := slices.Clone(names)
	slices.Sort(out)
	return slices.Compact(out)
}

func (s *scanner) text(n *sitter.Node) string {
	return string(s.src[n.StartByte():n.EndByte()])
}

// depID derives the id of the next dependency of typ on request. Ordinals
// count per type and request, so unrelated edits elsewhere in the module do
// not change the id.
func (s *scanner) depID(typ dependency.Type, request string) ident.DependencyID {
	key := string(typ) + "\x00" + request
	n := s.ordinals[key]
	s.ordinals[key] = n + 1
	id, err := ident.NewDependencyID(s.in.Module, string(typ), request, n)
	if err != nil && s.err == nil {
		s.err = err
	}
	return id
}

// add records d in the innermost open block, or on the module.
func (s *scanner) add(d dependency.Dependency) {
	s.out.Dependencies = append(s.out.Dependencies, d)
	if b := s.block(); b != nil {
		b.Dependencies = append(b.Dependencies, d.ID())
		return
	}
	s.m.Dependencies = append(s.m.Dependencies, d.ID())
}

// present records a presentational dependency.
func (s *scanner) present(rng dependency.Range, text string, reqs runtime.Globals) {
	d := dependency.NewConst(s.depID(dependency.TypeConst, ""), rng, text, reqs)
	s.m.Presentational = append(s.m.Presentational, d)
}

func (s *scanner) block() *dependency.AsyncBlock {
	if len(s.blocks) == 0 {
		return nil
	}
	return s.blocks[len(s.blocks)-1]
}

// openBlock starts an async block nested in the current one.
func (s *scanner) openBlock(request string, opts *dependency.GroupOptions, loc *sitter.Node) *dependency.AsyncBlock {
	var parent ident.BlockID
	if p := s.block(); p != nil {
		parent = p.ID
	}
	key := "block\x00" + string(parent) + "\x00" + request
	n := s.ordinals[key]
	s.ordinals[key] = n + 1
	id, err := ident.NewBlockID(s.in.Module, parent, request, n)
	if err != nil && s.err == nil {
		s.err = err
	}
	b := &dependency.AsyncBlock{
		ID:      id,
		Module:  s.in.Module,
		Parent:  parent,
		Request: request,
		Options: opts,
		Loc:     rangeOf(loc),
	}
	s.out.Blocks = append(s.out.Blocks, b)
	if p := s.block(); p != nil {
		p.Blocks = append(p.Blocks, id)
	} else {
		s.m.Blocks = append(s.m.Blocks, id)
	}
	s.blocks = append(s.blocks, b)
	return b
}

func (s *scanner) closeBlock() {
	s.blocks = s.blocks[:len(s.blocks)-1]
}

func (s *scanner) warn(kind diag.Kind, n *sitter.Node, format string, args ...any) {
	s.m.Diagnostics = append(s.m.Diagnostics, diag.Warning(kind, s.in.Module, format, args...).At(location(n)))
}

func (s *scanner) fail(kind diag.Kind, n *sitter.Node, format string, args ...any) {
	s.m.Diagnostics = append(s.m.Diagnostics, diag.Error(kind, s.in.Module, format, args...).At(location(n)))
}

// walk visits every node below n that can hold a dependency.
func (s *scanner) walk(n *sitter.Node) {
	switch n.Type() {
	case "import_statement":
		return
	case "export_statement":
		for _, field := range []string{"declaration", "value"} {
			if c := n.ChildByFieldName(field); c != nil {
				s.walk(c)
			}
		}
		return
	case "identifier":
		s.reference(n, false)
		s.freeIdentifier(n, false)
		return
	case "shorthand_property_identifier":
		s.reference(n, true)
		s.freeIdentifier(n, true)
		return
	case "this":
		s.topLevelThis(n)
		return
	case "member_expression":
		if s.apiMember(n) {
			return
		}
		s.commonJSMember(n)
	case "unary_expression":
		if s.typeOf(n) {
			return
		}
	case "call_expression":
		if s.call(n) {
			return
		}
	case "new_expression":
		if s.worker(n) {
			return
		}
	case "try_statement":
		s.tryStatement(n)
		return
	case "function_declaration", "generator_function_declaration", "function_expression", "function",
		"generator_function", "method_definition", "arrow_function":
		s.function(n)
		return
	}
	s.walkChildren(n)
}

func (s *scanner) walkChildren(n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		s.walk(n.NamedChild(i))
	}
}

func (s *scanner) tryStatement(n *sitter.Node) {
	body := n.ChildByFieldName("body")
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if body != nil && sameNode(c, body) {
			s.tryDepth++
			s.walk(c)
			s.tryDepth--
			continue
		}
		s.walk(c)
	}
}

// function walks a function with its parameters and body declarations
// shadowing imported bindings.
func (s *scanner) function(n *sitter.Node) {
	scope := make(map[string]bool)
	for _, field := range []string{"parameters", "parameter"} {
		if p := n.ChildByFieldName(field); p != nil {
			for _, name := range patternNames(p, s.src) {
				scope[name] = true
			}
		}
	}
	if body := n.ChildByFieldName("body"); body != nil && body.Type() == "statement_block" {
		for i := 0; i < int(body.NamedChildCount()); i++ {
			for _, name := range declaredNames(body.NamedChild(i), s.src) {
				scope[name] = true
			}
		}
	}
	// Arrow functions keep the enclosing this.
	binds := n.Type() != "arrow_function"
	if binds {
		s.fnDepth++
	}
	s.scopes = append(s.scopes, scope)
	if body := n.ChildByFieldName("body"); body != nil {
		s.walk(body)
	}
	s.scopes = s.scopes[:len(s.scopes)-1]
	if binds {
		s.fnDepth--
	}
}

func (s *scanner) shadowed(name string) bool {
	for _, scope := range s.scopes {
		if scope[name] {
			return true
		}
	}
	return false
}

func sameNode(a, b *sitter.Node) bool {
	return a != nil && b != nil && a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

// declaredNames lists the names a statement declares in its scope.
func declaredNames(n *sitter.Node, src []byte) []string {
	switch n.Type() {
	case "function_declaration", "generator_function_declaration", "class_declaration":
		if name := n.ChildByFieldName("name"); name != nil {
			return []string{string(src[name.StartByte():name.EndByte()])}
		}
	case "lexical_declaration", "variable_declaration":
		var out []string
		for i := 0; i < int(n.NamedChildCount()); i++ {
			d := n.NamedChild(i)
			if d.Type() != "variable_declarator" {
				continue
			}
			if name := d.ChildByFieldName("name"); name != nil {
				out = append(out, patternNames(name, src)...)
			}
		}
		return out
	}
	return nil
}

// patternNames lists the identifiers a binding pattern declares.
func patternNames(n *sitter.Node, src []byte) []string {
	switch n.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		return []string{string(src[n.StartByte():n.EndByte()])}
	case "assignment_pattern", "object_assignment_pattern":
		if left := n.ChildByFieldName("left"); left != nil {
			return patternNames(left, src)
		}
		return nil
	case "pair_pattern":
		if v := n.ChildByFieldName("value"); v != nil {
			return patternNames(v, src)
		}
		return nil
	}
	var out []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "comment" {
			continue
		}
		out = append(out, patternNames(c, src)...)
	}
	return out
}

// stringValue returns the value of a string literal or a template literal
// without substitutions.
func stringValue(n *sitter.Node, src []byte) (string, bool) {
	if n == nil {
		return "", false
	}
	switch n.Type() {
	case "string":
	case "template_string":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if n.NamedChild(i).Type() == "template_substitution" {
				return "", false
			}
		}
	default:
		return "", false
	}
	raw := src[n.StartByte():n.EndByte()]
	if len(raw) < 2 {
		return "", false
	}
	return string(raw[1 : len(raw)-1]), true
}

// arguments lists the argument nodes of a call, skipping comments.
func arguments(call *sitter.Node) []*sitter.Node {
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return nil
	}
	var out []*sitter.Node
	for i := 0; i < int(args.NamedChildCount()); i++ {
		if c := args.NamedChild(i); c.Type() != "comment" {
			out = append(out, c)
		}
	}
	return out
}
