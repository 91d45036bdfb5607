package parser

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/roach88/jsgraph/internal/dependency"
	"github.com/roach88/jsgraph/internal/diag"
)

func (s *scanner) importStatement(n *sitter.Node) {
	request, ok := stringValue(n.ChildByFieldName("source"), s.src)
	if !ok {
		return
	}
	s.order++
	s.add(dependency.NewESMImportSideEffect(s.depID(dependency.TypeESMImportSideEffect, request), request, rangeOf(n), s.order))

	for i := 0; i < int(n.NamedChildCount()); i++ {
		clause := n.NamedChild(i)
		if clause.Type() != "import_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			c := clause.NamedChild(j)
			switch c.Type() {
			case "identifier":
				s.bind(s.text(c), binding{request: request, order: s.order, ids: []string{"default"}})
			case "namespace_import":
				for k := 0; k < int(c.NamedChildCount()); k++ {
					if id := c.NamedChild(k); id.Type() == "identifier" {
						s.bind(s.text(id), binding{request: request, order: s.order, namespace: true})
					}
				}
			case "named_imports":
				for k := 0; k < int(c.NamedChildCount()); k++ {
					spec := c.NamedChild(k)
					if spec.Type() != "import_specifier" {
						continue
					}
					name := s.moduleExportName(spec.ChildByFieldName("name"))
					local := name
					if alias := spec.ChildByFieldName("alias"); alias != nil {
						local = s.text(alias)
					}
					s.bind(local, binding{request: request, order: s.order, ids: []string{name}})
				}
			}
		}
	}
}

func (s *scanner) bind(local string, b binding) {
	s.imports[local] = b
}

// moduleExportName reads an identifier or a string export name.
func (s *scanner) moduleExportName(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	if v, ok := stringValue(n, s.src); ok {
		return v
	}
	return s.text(n)
}

// export records an exported name, reporting duplicates.
func (s *scanner) export(name string, at *sitter.Node) {
	if s.exported[name] {
		s.fail(diag.KindSemantic, at, "Duplicate export '%s'", name)
		return
	}
	s.exported[name] = true
	s.names = append(s.names, name)
}

func hasChild(n *sitter.Node, typ string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == typ {
			return true
		}
	}
	return false
}

func childOfType(n *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == typ {
			return c
		}
	}
	return nil
}

func (s *scanner) exportStatement(n *sitter.Node) {
	stmt := rangeOf(n)
	if source := n.ChildByFieldName("source"); source != nil {
		s.reexport(n, source)
		return
	}
	if decl := n.ChildByFieldName("declaration"); decl != nil {
		if hasChild(n, "default") {
			var name string
			if id := decl.ChildByFieldName("name"); id != nil {
				name = s.text(id)
			}
			s.exportDefault(n, decl, name)
			return
		}
		s.present(dependency.Range{Start: stmt.Start, End: decl.StartByte()}, "", 0)
		names := declaredNames(decl, s.src)
		s.decls = append(s.decls, names...)
		for _, name := range names {
			s.export(name, decl)
			s.add(dependency.NewESMExportSpecifier(s.depID(dependency.TypeESMExportSpecifier, name), name, name))
		}
		return
	}
	if value := n.ChildByFieldName("value"); value != nil {
		s.exportDefault(n, value, "")
		return
	}

	clause := childOfType(n, "export_clause")
	if clause == nil {
		return
	}
	s.present(stmt, "", 0)
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		spec := clause.NamedChild(i)
		if spec.Type() != "export_specifier" {
			continue
		}
		local := s.moduleExportName(spec.ChildByFieldName("name"))
		name := local
		if alias := spec.ChildByFieldName("alias"); alias != nil {
			name = s.moduleExportName(alias)
		}
		s.export(name, spec)
		if b, ok := s.imports[local]; ok {
			// Exporting an imported binding re-exports it.
			s.add(dependency.NewESMExportImportedSpecifier(s.depID(dependency.TypeESMExportImportedSpecifier, b.request),
				b.request, b.order, name, b.ids))
			continue
		}
		s.add(dependency.NewESMExportSpecifier(s.depID(dependency.TypeESMExportSpecifier, name), name, local))
	}
}

func (s *scanner) exportDefault(stmt, expr *sitter.Node, declaration string) {
	s.export("default", stmt)
	if declaration != "" {
		s.decls = append(s.decls, declaration)
	}
	s.add(dependency.NewESMExportExpression(s.depID(dependency.TypeESMExportExpression, ""),
		rangeOf(stmt), rangeOf(expr), declaration))
}

// reexport handles `export ... from` statements.
func (s *scanner) reexport(n, source *sitter.Node) {
	request, ok := stringValue(source, s.src)
	if !ok {
		return
	}
	s.order++
	s.add(dependency.NewESMImportSideEffect(s.depID(dependency.TypeESMImportSideEffect, request), request, rangeOf(n), s.order))

	if ns := childOfType(n, "namespace_export"); ns != nil {
		name := s.moduleExportName(ns.NamedChild(0))
		s.export(name, ns)
		s.add(dependency.NewESMExportImportedSpecifier(s.depID(dependency.TypeESMExportImportedSpecifier, request),
			request, s.order, name, nil))
		return
	}
	clause := childOfType(n, "export_clause")
	if clause == nil {
		s.add(dependency.NewESMExportStar(s.depID(dependency.TypeESMExportImportedSpecifier, request), request, s.order))
		return
	}
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		spec := clause.NamedChild(i)
		if spec.Type() != "export_specifier" {
			continue
		}
		imported := s.moduleExportName(spec.ChildByFieldName("name"))
		name := imported
		if alias := spec.ChildByFieldName("alias"); alias != nil {
			name = s.moduleExportName(alias)
		}
		s.export(name, spec)
		s.add(dependency.NewESMExportImportedSpecifier(s.depID(dependency.TypeESMExportImportedSpecifier, request),
			request, s.order, name, []string{imported}))
	}
}

// declares reports whether an identifier is a binding position rather than
// a reference.
func declares(n *sitter.Node) bool {
	p := n.Parent()
	if p == nil {
		return false
	}
	switch p.Type() {
	case "variable_declarator", "function_declaration", "generator_function_declaration", "class_declaration",
		"function_expression", "function", "generator_function", "class":
		return sameNode(p.ChildByFieldName("name"), n)
	case "formal_parameters", "array_pattern", "rest_pattern", "labeled_statement", "catch_clause":
		return true
	case "assignment_pattern", "object_assignment_pattern":
		return sameNode(p.ChildByFieldName("left"), n)
	case "arrow_function":
		return sameNode(p.ChildByFieldName("parameter"), n)
	case "pair_pattern":
		return sameNode(p.ChildByFieldName("value"), n)
	}
	return false
}

// reference records a read of an imported binding. Reads through a
// namespace binding take the member chain (ns.a.b) with them.
func (s *scanner) reference(n *sitter.Node, shorthand bool) {
	name := s.text(n)
	b, ok := s.imports[name]
	if !ok || s.shadowed(name) || (!shorthand && declares(n)) {
		return
	}
	ref, ids := n, b.ids
	if b.namespace && !shorthand {
		ref, ids = s.memberChain(n)
	}
	d := dependency.NewESMImportSpecifier(s.depID(dependency.TypeESMImportSpecifier, b.request), b.request, rangeOf(ref), b.order, ids)
	d.Call = isCallee(ref)
	d.Member = b.namespace && len(ids) > 0
	d.Shorthand = shorthand
	d.ASI = s.asi(ref)
	s.add(d)
}

// memberChain extends n over `.name` accesses it is the object of.
func (s *scanner) memberChain(n *sitter.Node) (*sitter.Node, []string) {
	var ids []string
	cur := n
	for {
		p := cur.Parent()
		if p == nil || p.Type() != "member_expression" || !sameNode(p.ChildByFieldName("object"), cur) {
			break
		}
		prop := p.ChildByFieldName("property")
		if prop == nil || prop.Type() != "property_identifier" || hasChild(p, "optional_chain") {
			break
		}
		ids = append(ids, s.text(prop))
		cur = p
	}
	return cur, ids
}

func isCallee(n *sitter.Node) bool {
	p := n.Parent()
	return p != nil && p.Type() == "call_expression" && sameNode(p.ChildByFieldName("function"), n)
}

// asi reports whether a reference starts a statement that follows one ended
// by automatic semicolon insertion.
func (s *scanner) asi(n *sitter.Node) dependency.ASISafety {
	stmt := n.Parent()
	for stmt != nil && stmt.Type() != "expression_statement" {
		if stmt.StartByte() != n.StartByte() {
			return dependency.ASISafe
		}
		stmt = stmt.Parent()
	}
	if stmt == nil || stmt.StartByte() != n.StartByte() {
		return dependency.ASISafe
	}
	prev := stmt.PrevNamedSibling()
	for prev != nil && prev.Type() == "comment" {
		prev = prev.PrevNamedSibling()
	}
	if prev == nil {
		return dependency.ASISafe
	}
	switch s.src[prev.EndByte()-1] {
	case ';', '}':
		return dependency.ASISafe
	}
	return dependency.ASIUnsafe
}
