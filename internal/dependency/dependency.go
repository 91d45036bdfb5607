// Package dependency defines the typed edges between modules: the closed set
// of dependency kinds the scanner produces, their categories and affect types,
// and the capability interfaces code paths use instead of downcasts.
package dependency

import (
	"github.com/roach88/jsgraph/internal/ident"
)

// Category groups dependencies by the module system that produced them.
type Category uint8

const (
	CategoryUnknown Category = iota
	CategoryESM
	CategoryCommonJS
	CategoryAMD
	CategoryURL
	CategoryWorker
	CategoryContext
	CategoryFederation
)

var categoryNames = [...]string{
	CategoryUnknown:    "unknown",
	CategoryESM:        "esm",
	CategoryCommonJS:   "commonjs",
	CategoryAMD:        "amd",
	CategoryURL:        "url",
	CategoryWorker:     "worker",
	CategoryContext:    "context",
	CategoryFederation: "federation",
}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return "unknown"
}

// AffectType says whether a change of the dependency's target forces the
// referencing module to be rebuilt.
type AffectType uint8

const (
	// AffectTrue: the referencing module must be rebuilt.
	AffectTrue AffectType = iota
	// AffectFalse: informational only, never forces a rebuild.
	AffectFalse
	// AffectTransitive: the referencing module is rebuilt and the change keeps
	// propagating to its own importers (re-exports).
	AffectTransitive
)

func (a AffectType) String() string {
	switch a {
	case AffectTrue:
		return "true"
	case AffectFalse:
		return "false"
	case AffectTransitive:
		return "transitive"
	}
	return "unknown"
}

// Type is the dependency-type tag.
type Type string

const (
	TypeESMImportSideEffect        Type = "esm side effect import"
	TypeESMImportSpecifier         Type = "esm import specifier"
	TypeESMExportSpecifier         Type = "esm export specifier"
	TypeESMExportExpression        Type = "esm export expression"
	TypeESMExportImportedSpecifier Type = "esm export imported specifier"
	TypeESMCompatibility           Type = "esm compatibility"
	TypeCommonJSRequire            Type = "cjs require"
	TypeCommonJSExports            Type = "cjs exports"
	TypeImportDynamic              Type = "dynamic import"
	TypeAMDRequireItem             Type = "amd require item"
	TypeAMDRequireArray            Type = "amd require array"
	TypeAMDRequire                 Type = "amd require"
	TypeRequireContext             Type = "require.context"
	TypeContextElement             Type = "context element"
	TypeWorker                     Type = "new Worker()"
	TypeConsumeShared              Type = "consume shared module"
	TypeConst                      Type = "const"
)

// Range is a half-open byte range into a module's original source.
type Range struct {
	Start uint32
	End   uint32
}

// Len returns the number of bytes covered.
func (r Range) Len() uint32 { return r.End - r.Start }

// Contains reports whether o lies inside r.
func (r Range) Contains(o Range) bool { return o.Start >= r.Start && o.End <= r.End }

// Dependency is implemented by every dependency kind.
type Dependency interface {
	ID() ident.DependencyID
	Category() Category
	Type() Type
	// Range returns the source range the dependency rewrites, if any.
	Range() (Range, bool)
	CouldAffectReferencingModule() AffectType
}

// ModuleDependency is a dependency that resolves a request to a module.
type ModuleDependency interface {
	Dependency
	Request() string
	UserRequest() string
	Weak() bool
	Optional() bool
}

// AsModuleDependency returns d's module-dependency view.
func AsModuleDependency(d Dependency) (ModuleDependency, bool) {
	md, ok := d.(ModuleDependency)
	return md, ok
}

// AsContextDependency returns d's context-dependency view.
func AsContextDependency(d Dependency) (ContextDependency, bool) {
	cd, ok := d.(ContextDependency)
	return cd, ok
}

// base carries the fields every dependency kind has.
type base struct {
	id       ident.DependencyID
	rng      Range
	hasRange bool
}

func newBase(id ident.DependencyID, rng *Range) base {
	b := base{id: id}
	if rng != nil {
		b.rng = *rng
		b.hasRange = true
	}
	return b
}

func (b *base) ID() ident.DependencyID { return b.id }

func (b *base) Range() (Range, bool) { return b.rng, b.hasRange }

// moduleRef carries the request side of a module dependency.
type moduleRef struct {
	request     string
	userRequest string
	weak        bool
	optional    bool
}

func (m *moduleRef) Request() string { return m.request }

// UserRequest is the request as written by the user, before aliasing.
func (m *moduleRef) UserRequest() string {
	if m.userRequest == "" {
		return m.request
	}
	return m.userRequest
}

func (m *moduleRef) Weak() bool     { return m.weak }
func (m *moduleRef) Optional() bool { return m.optional }

// Ptr returns a pointer to r, for the optional range argument of constructors.
func Ptr(r Range) *Range { return &r }
