package codegen

import (
	"fmt"
	"strconv"

	"github.com/roach88/jsgraph/internal/diag"
	"github.com/roach88/jsgraph/internal/graph"
	"github.com/roach88/jsgraph/internal/ident"
	"github.com/roach88/jsgraph/internal/runtime"
)

// Options control how code is rendered.
type Options struct {
	Pathinfo       bool // emit /*! request */ comments next to module ids
	ArrowFunctions bool // emit arrow functions and const declarations
}

// ChunkRef is a chunk of a block's chunk group.
type ChunkRef struct {
	ID ident.OutputID
	// HasRuntime is set for chunks that carry the runtime; they are already
	// loaded when the block is reached.
	HasRuntime bool
}

// ChunkView is the part of the chunk graph rendering reads.
type ChunkView interface {
	ModuleID(ident.ModuleIdentifier) (ident.OutputID, bool)
	BlockChunks(ident.BlockID) []ChunkRef
}

// ConcatenationScope maps exports of modules rendered into one scope to the
// local names holding them. References to a module in the scope read the
// local directly.
type ConcatenationScope struct {
	names map[ident.ModuleIdentifier]map[string]string
}

func NewConcatenationScope() *ConcatenationScope {
	return &ConcatenationScope{names: make(map[ident.ModuleIdentifier]map[string]string)}
}

// Register records that export of module is held by local.
func (s *ConcatenationScope) Register(module ident.ModuleIdentifier, export, local string) {
	if s.names[module] == nil {
		s.names[module] = make(map[string]string)
	}
	s.names[module][export] = local
}

// Lookup returns the local holding export of module.
func (s *ConcatenationScope) Lookup(module ident.ModuleIdentifier, export string) (string, bool) {
	local, ok := s.names[module][export]
	return local, ok
}

// TemplateContext is the state of one module render. Nothing in it is shared
// with other renders, so modules render in parallel.
type TemplateContext struct {
	Graph   *graph.Graph
	Chunks  ChunkView
	Module  *graph.Module
	Runtime string
	Options Options
	// Concatenation is nil unless the module renders into a shared scope.
	Concatenation *ConcatenationScope

	RuntimeRequirements runtime.Globals
	InitFragments       []InitFragment
	Diagnostics         []diag.Diagnostic
	Source              *ReplaceSource

	importVars map[ident.ModuleIdentifier]string
}

func newTemplateContext(g *graph.Graph, chunks ChunkView, m *graph.Module, rt string, opts Options) *TemplateContext {
	return &TemplateContext{
		Graph:      g,
		Chunks:     chunks,
		Module:     m,
		Runtime:    rt,
		Options:    opts,
		Source:     NewReplaceSource(m.Source),
		importVars: make(map[ident.ModuleIdentifier]string),
	}
}

// AddFragment queues an init fragment.
func (c *TemplateContext) AddFragment(f InitFragment) {
	c.InitFragments = append(c.InitFragments, f)
}

// Warn attaches a warning to the rendered module.
func (c *TemplateContext) Warn(kind diag.Kind, format string, args ...any) {
	c.Diagnostics = append(c.Diagnostics, diag.Warning(kind, c.Module.Identifier, format, args...))
}

// requirement adds g to the requirements and returns its runtime name.
func (c *TemplateContext) requirement(g runtime.Globals) string {
	c.RuntimeRequirements |= g
	return g.Name()
}

// strict reports whether the module is a strict ESM importer.
func (c *TemplateContext) strict() bool {
	return c.Module.BuildMeta.StrictESM
}

// exportsArgument names the exports object inside the module factory.
func (c *TemplateContext) exportsArgument() string {
	switch {
	case c.Module.BuildInfo.ExportsArgument != "":
		return c.Module.BuildInfo.ExportsArgument
	case c.Module.BuildMeta.ESM:
		return runtime.Exports.Name()
	}
	return "exports"
}

// importVar names the variable holding the exports of target. Variables are
// numbered per module in first-use order.
func (c *TemplateContext) importVar(target ident.ModuleIdentifier, userRequest string) string {
	if v, ok := c.importVars[target]; ok {
		return v
	}
	v := ToIdentifier(userRequest) + "__WEBPACK_IMPORTED_MODULE_" + strconv.Itoa(len(c.importVars)) + "__"
	c.importVars[target] = v
	return v
}

func (c *TemplateContext) returningFunction(expr string) string {
	if c.Options.ArrowFunctions {
		return "() => (" + expr + ")"
	}
	return "function() { return " + expr + "; }"
}

func (c *TemplateContext) constKeyword() string {
	if c.Options.ArrowFunctions {
		return "const"
	}
	return "var"
}

// comment renders a pathinfo comment, or nothing when pathinfo is off.
func (c *TemplateContext) comment(request string) string {
	if !c.Options.Pathinfo || request == "" {
		return ""
	}
	return "/*! " + sanitizeComment(request) + " */ "
}

func (c *TemplateContext) moduleID(target ident.ModuleIdentifier) (ident.OutputID, error) {
	if c.Chunks == nil {
		return "", fmt.Errorf("no chunk view to look up module id of %s", target)
	}
	id, ok := c.Chunks.ModuleID(target)
	if !ok {
		return "", fmt.Errorf("module %s has no id", target)
	}
	return id, nil
}
