// Package parser scans JavaScript modules into the dependencies, async blocks
// and export facts the module graph stores. It uses a tree-sitter JavaScript
// grammar and does not evaluate anything: requests must be string literals.
package parser

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/roach88/jsgraph/internal/ctxlog"
	"github.com/roach88/jsgraph/internal/dependency"
	"github.com/roach88/jsgraph/internal/diag"
	"github.com/roach88/jsgraph/internal/graph"
	"github.com/roach88/jsgraph/internal/ident"
)

// Input is one module to scan.
type Input struct {
	Module   ident.ModuleIdentifier
	Resource string
	Kind     graph.Kind
	Source   []byte
	// StrictESM is set for .mjs files and packages with "type": "module".
	StrictESM bool
}

// ParsedModule is the scan result: the module with its build meta and info
// filled in, plus every dependency and block it owns. Dependencies are listed
// in source order; block dependencies are included.
type ParsedModule struct {
	Module       *graph.Module
	Dependencies []dependency.Dependency
	Blocks       []*dependency.AsyncBlock
}

// BuildResult pairs the scan with resolved targets for graph.Merge.
func (p *ParsedModule) BuildResult(resolved map[ident.DependencyID]ident.ModuleIdentifier) *graph.BuildResult {
	return &graph.BuildResult{
		Module:       p.Module,
		Dependencies: p.Dependencies,
		Blocks:       p.Blocks,
		Resolved:     resolved,
	}
}

// Parser scans JavaScript. It is safe for concurrent use; every Parse call
// creates its own tree-sitter parser.
type Parser struct {
	lang *sitter.Language
}

func New() *Parser {
	return &Parser{lang: javascript.GetLanguage()}
}

// Parse scans in. Syntax errors do not fail the call: the module comes back
// with an error diagnostic and no dependencies, blocks or exports.
func (p *Parser) Parse(ctx context.Context, in Input) (*ParsedModule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ts := sitter.NewParser()
	ts.SetLanguage(p.lang)
	tree, err := ts.ParseCtx(ctx, nil, in.Source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", in.Resource, err)
	}
	defer tree.Close()

	m := &graph.Module{
		Identifier: in.Module,
		Kind:       in.Kind,
		Resource:   in.Resource,
		Source:     in.Source,
	}
	m.BuildInfo.Hash = ident.ContentHash(in.Source)
	out := &ParsedModule{Module: m}

	root := tree.RootNode()
	if root.HasError() {
		bad := firstError(root)
		m.Diagnostics = append(m.Diagnostics, syntaxError(in, bad))
		ctxlog.FromContext(ctx).Debug("module has syntax errors", "module", in.Module)
		return out, nil
	}

	s := newScanner(in, out)
	if err := s.scan(root); err != nil {
		return nil, fmt.Errorf("scan %s: %w", in.Resource, err)
	}
	ctxlog.FromContext(ctx).Debug("scanned module",
		"module", in.Module,
		"dependencies", len(out.Dependencies),
		"blocks", len(out.Blocks),
		"esm", m.BuildMeta.ESM)
	return out, nil
}

// firstError returns the first ERROR or missing node in document order.
func firstError(n *sitter.Node) *sitter.Node {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil || !(c.HasError() || c.IsMissing()) {
			continue
		}
		if bad := firstError(c); bad != nil {
			return bad
		}
	}
	return n
}

func syntaxError(in Input, n *sitter.Node) diag.Diagnostic {
	var d diag.Diagnostic
	if n.IsMissing() {
		d = diag.Error(diag.KindParse, in.Module, "%s: missing %q", in.Resource, n.Type())
	} else {
		d = diag.Error(diag.KindParse, in.Module, "%s: unexpected token", in.Resource)
	}
	return d.At(location(n))
}

// location reports the 1-based line and byte column of n's start.
func location(n *sitter.Node) diag.Location {
	p := n.StartPoint()
	return diag.Location{
		Start:  int(n.StartByte()),
		End:    int(n.EndByte()),
		Line:   int(p.Row) + 1,
		Column: int(p.Column) + 1,
	}
}

func rangeOf(n *sitter.Node) dependency.Range {
	return dependency.Range{Start: n.StartByte(), End: n.EndByte()}
}
