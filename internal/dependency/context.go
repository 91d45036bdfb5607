package dependency

import (
	"fmt"
	"sync/atomic"

	"github.com/roach88/jsgraph/internal/diag"
	"github.com/roach88/jsgraph/internal/ident"
)

// ContextDependency requests a group of modules matching a pattern.
type ContextDependency interface {
	Dependency
	// ResourceIdentifier is the normalized pattern; context dependencies with
	// equal identifiers share one context module.
	ResourceIdentifier() string
	Options() ContextOptions
	Optional() bool
	Critical() (diag.Diagnostic, bool)
	// SetCritical stores the diagnostic of an unrecoverable resolution
	// failure. The slot can be set once; later calls return
	// diag.ErrCriticalAlreadySet.
	SetCritical(d diag.Diagnostic) error
}

// ContextOptions describe what a context module matches.
type ContextOptions struct {
	Request   string // directory, relative to the issuer
	Recursive bool
	RegExp    string // JavaScript regexp source, e.g. `^\.\/.*\.js$`
}

// criticalSlot is a single-assignment diagnostic holder.
type criticalSlot struct {
	p atomic.Pointer[diag.Diagnostic]
}

func (s *criticalSlot) Critical() (diag.Diagnostic, bool) {
	if d := s.p.Load(); d != nil {
		return *d, true
	}
	return diag.Diagnostic{}, false
}

func (s *criticalSlot) SetCritical(d diag.Diagnostic) error {
	if !s.p.CompareAndSwap(nil, &d) {
		return diag.ErrCriticalAlreadySet
	}
	return nil
}

// RequireContext is `require.context(dir, recursive, regexp)`.
type RequireContext struct {
	base
	criticalSlot
	opts     ContextOptions
	optional bool
}

// NewRequireContext creates a context dependency over the call range.
func NewRequireContext(id ident.DependencyID, opts ContextOptions, call Range, optional bool) *RequireContext {
	return &RequireContext{base: newBase(id, &call), opts: opts, optional: optional}
}

func (*RequireContext) Category() Category { return CategoryContext }
func (*RequireContext) Type() Type         { return TypeRequireContext }
func (*RequireContext) CouldAffectReferencingModule() AffectType {
	return AffectTrue
}

func (d *RequireContext) Options() ContextOptions { return d.opts }
func (d *RequireContext) Optional() bool          { return d.optional }

func (d *RequireContext) ResourceIdentifier() string {
	return ResourceIdentifier(d.opts)
}

// ResourceIdentifier formats the grouping key of a context request.
func ResourceIdentifier(o ContextOptions) string {
	mode := "nonrecursive"
	if o.Recursive {
		mode = "recursive"
	}
	return fmt.Sprintf("%s|%s|/%s/", o.Request, mode, o.RegExp)
}

// ContextElement points a context module at one matched file. Request is
// the key as it appears in the context map ("./a.js").
type ContextElement struct {
	base
	moduleRef
}

func NewContextElement(id ident.DependencyID, request, userRequest string) *ContextElement {
	return &ContextElement{
		base:      newBase(id, nil),
		moduleRef: moduleRef{request: request, userRequest: userRequest},
	}
}

func (*ContextElement) Category() Category { return CategoryContext }
func (*ContextElement) Type() Type         { return TypeContextElement }
func (*ContextElement) CouldAffectReferencingModule() AffectType {
	return AffectTrue
}
