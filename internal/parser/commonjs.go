package parser

import (
	"regexp"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/roach88/jsgraph/internal/dependency"
	"github.com/roach88/jsgraph/internal/diag"
	"github.com/roach88/jsgraph/internal/ident"
)

const defaultContextRegExp = `^\.\/.*$`

var (
	chunkNameComment = regexp.MustCompile(`webpackChunkName\s*:\s*["']([^"']+)["']`)
	ignoreComment    = regexp.MustCompile(`webpackIgnore\s*:\s*true`)
)

// call handles require, require.context, import() and AMD require. It
// reports whether the call was consumed.
func (s *scanner) call(n *sitter.Node) bool {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return false
	}
	switch fn.Type() {
	case "import":
		return s.importCall(n)
	case "identifier":
		if s.text(fn) != "require" || s.shadowed("require") {
			return false
		}
		args := arguments(n)
		if len(args) == 0 {
			return false
		}
		if args[0].Type() == "array" {
			return s.amdRequire(n, args)
		}
		request, ok := stringValue(args[0], s.src)
		if !ok {
			s.warn(diag.KindCritical, n, "Critical dependency: the request of a dependency is an expression")
			return false
		}
		s.add(dependency.NewCommonJSRequire(s.depID(dependency.TypeCommonJSRequire, request), request, rangeOf(n), s.tryDepth > 0))
		return true
	case "member_expression":
		if s.unsupportedCall(n, fn) {
			return true
		}
		if s.text(fn) == "require.context" {
			return s.requireContext(n)
		}
		if s.text(fn) == "Object.defineProperty" {
			s.defineESModule(n)
		}
	}
	return false
}

// groupOptions reads magic comments inside the arguments of a call.
func (s *scanner) groupOptions(call *sitter.Node) (*dependency.GroupOptions, bool) {
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return nil, false
	}
	var opts *dependency.GroupOptions
	for i := 0; i < int(args.NamedChildCount()); i++ {
		c := args.NamedChild(i)
		if c.Type() != "comment" {
			continue
		}
		text := s.text(c)
		if ignoreComment.MatchString(text) {
			return nil, true
		}
		if m := chunkNameComment.FindStringSubmatch(text); m != nil {
			opts = &dependency.GroupOptions{Name: m[1]}
		}
	}
	return opts, false
}

func (s *scanner) importCall(n *sitter.Node) bool {
	args := arguments(n)
	if len(args) == 0 {
		return false
	}
	request, ok := stringValue(args[0], s.src)
	if !ok {
		s.warn(diag.KindCritical, n, "Critical dependency: the request of a dependency is an expression")
		return false
	}
	opts, ignored := s.groupOptions(n)
	if ignored {
		return true
	}
	s.openBlock(request, opts, n)
	s.add(dependency.NewImportDynamic(s.depID(dependency.TypeImportDynamic, request), request, rangeOf(n)))
	s.closeBlock()
	return true
}

// amdRequire handles require([...], cb). The items, the array and the call
// frame share one block; the callback body is scanned inside it.
func (s *scanner) amdRequire(n *sitter.Node, args []*sitter.Node) bool {
	array := args[0]
	s.openBlock("", nil, n)
	defer s.closeBlock()

	var items []dependency.Dependency
	for i := 0; i < int(array.NamedChildCount()); i++ {
		el := array.NamedChild(i)
		if el.Type() == "comment" {
			continue
		}
		request, ok := stringValue(el, s.src)
		if !ok {
			s.warn(diag.KindCritical, el, "Critical dependency: AMD require item is an expression")
			continue
		}
		item := dependency.NewAMDRequireItem(s.depID(dependency.TypeAMDRequireItem, request), request)
		s.add(item)
		items = append(items, item)
	}
	s.add(dependency.NewAMDRequireArray(s.depID(dependency.TypeAMDRequireArray, ""), rangeOf(array), dependencyIDs(items)))

	var callback *dependency.Range
	if len(args) > 1 {
		switch args[1].Type() {
		case "function_expression", "function", "arrow_function":
			r := rangeOf(args[1])
			callback = &r
		}
	}
	s.add(dependency.NewAMDRequire(s.depID(dependency.TypeAMDRequire, ""), rangeOf(n), rangeOf(array), callback))
	if callback != nil {
		s.walk(args[1])
	}
	return true
}

func dependencyIDs(ds []dependency.Dependency) []ident.DependencyID {
	out := make([]ident.DependencyID, len(ds))
	for i, d := range ds {
		out[i] = d.ID()
	}
	return out
}

// requireContext handles require.context(dir, recursive, regexp).
func (s *scanner) requireContext(n *sitter.Node) bool {
	args := arguments(n)
	if len(args) == 0 {
		return false
	}
	dir, ok := stringValue(args[0], s.src)
	if !ok {
		s.warn(diag.KindCritical, n, "Critical dependency: require.context directory is an expression")
		return false
	}
	opts := dependency.ContextOptions{Request: dir, Recursive: true, RegExp: defaultContextRegExp}
	if len(args) > 1 {
		switch args[1].Type() {
		case "true":
		case "false":
			opts.Recursive = false
		default:
			s.warn(diag.KindCritical, args[1], "Critical dependency: require.context recursive flag is an expression")
		}
	}
	if len(args) > 2 {
		if args[2].Type() != "regex" {
			s.warn(diag.KindCritical, args[2], "Critical dependency: require.context filter is not a regular expression literal")
		} else if p := args[2].ChildByFieldName("pattern"); p != nil {
			opts.RegExp = s.text(p)
		}
	}
	s.add(dependency.NewRequireContext(s.depID(dependency.TypeRequireContext, dependency.ResourceIdentifier(opts)), opts, rangeOf(n), s.tryDepth > 0))
	return true
}

// defineESModule flags `Object.defineProperty(exports, "__esModule", ...)`.
func (s *scanner) defineESModule(n *sitter.Node) {
	args := arguments(n)
	if len(args) < 2 {
		return
	}
	if name, ok := stringValue(args[1], s.src); !ok || name != "__esModule" {
		return
	}
	switch s.text(args[0]) {
	case "exports", "module.exports":
		s.flagged = true
	}
}

// commonJSMember records module.exports, exports.x and module.exports.x.
func (s *scanner) commonJSMember(n *sitter.Node) {
	obj := n.ChildByFieldName("object")
	prop := n.ChildByFieldName("property")
	if obj == nil || prop == nil || obj.Type() != "identifier" || prop.Type() != "property_identifier" {
		return
	}
	var base dependency.ExportsBase
	var names []string
	rng := rangeOf(obj)
	switch {
	case s.text(obj) == "module" && s.text(prop) == "exports" && !s.shadowed("module"):
		base = dependency.BaseModuleExports
		rng = rangeOf(n)
		if p := n.Parent(); p != nil && p.Type() == "member_expression" && sameNode(p.ChildByFieldName("object"), n) {
			if name := p.ChildByFieldName("property"); name != nil {
				names = []string{s.text(name)}
			}
		}
	case s.text(obj) == "exports" && !s.shadowed("exports"):
		base = dependency.BaseExports
		names = []string{s.text(prop)}
	default:
		return
	}
	if s.esm {
		return
	}
	if len(names) == 1 && names[0] == "__esModule" {
		s.flagged = true
	}
	s.add(dependency.NewCommonJSExports(s.depID(dependency.TypeCommonJSExports, base.String()), base, rng, names))
}

// topLevelThis records `this.x` outside functions of a CommonJS module.
func (s *scanner) topLevelThis(n *sitter.Node) {
	if s.esm || s.fnDepth > 0 {
		return
	}
	p := n.Parent()
	if p == nil || p.Type() != "member_expression" || !sameNode(p.ChildByFieldName("object"), n) {
		return
	}
	var names []string
	if prop := p.ChildByFieldName("property"); prop != nil {
		names = []string{s.text(prop)}
	}
	s.add(dependency.NewCommonJSExports(s.depID(dependency.TypeCommonJSExports, dependency.BaseThis.String()), dependency.BaseThis, rangeOf(n), names))
}

// worker handles new Worker(new URL('./w.js', import.meta.url)). The
// worker starts its own entry block.
func (s *scanner) worker(n *sitter.Node) bool {
	ctor := n.ChildByFieldName("constructor")
	if ctor == nil || (s.text(ctor) != "Worker" && s.text(ctor) != "SharedWorker") {
		return false
	}
	args := arguments(n)
	if len(args) == 0 || args[0].Type() != "new_expression" {
		return false
	}
	url := args[0]
	if c := url.ChildByFieldName("constructor"); c == nil || s.text(c) != "URL" {
		return false
	}
	urlArgs := arguments(url)
	if len(urlArgs) != 2 || s.text(urlArgs[1]) != "import.meta.url" {
		return false
	}
	request, ok := stringValue(urlArgs[0], s.src)
	if !ok {
		s.warn(diag.KindCritical, url, "Critical dependency: worker URL is an expression")
		return false
	}
	name := ""
	if opts, _ := s.groupOptions(n); opts != nil {
		name = opts.Name
	}
	opts := &dependency.GroupOptions{Name: name, Entry: &dependency.EntryOptions{Name: name, ChunkLoading: "import-scripts"}}
	s.openBlock(request, opts, n)
	rng := dependency.Range{Start: urlArgs[0].StartByte(), End: urlArgs[1].EndByte()}
	s.add(dependency.NewWorker(s.depID(dependency.TypeWorker, request), request, rng))
	s.closeBlock()
	for _, extra := range args[1:] {
		s.walk(extra)
	}
	return true
}
