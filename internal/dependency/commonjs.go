package dependency

import "github.com/roach88/jsgraph/internal/ident"

// CommonJSRequire is a `require('x')` call. Its range covers the whole call.
type CommonJSRequire struct {
	base
	moduleRef
}

// NewCommonJSRequire creates a require call dependency. Optional marks a call
// inside a try block.
func NewCommonJSRequire(id ident.DependencyID, request string, call Range, optional bool) *CommonJSRequire {
	return &CommonJSRequire{
		base:      newBase(id, &call),
		moduleRef: moduleRef{request: request, optional: optional},
	}
}

func (*CommonJSRequire) Category() Category { return CategoryCommonJS }
func (*CommonJSRequire) Type() Type         { return TypeCommonJSRequire }
func (*CommonJSRequire) CouldAffectReferencingModule() AffectType {
	return AffectTrue
}

// ExportsBase is the object a CommonJS export is written through.
type ExportsBase uint8

const (
	BaseExports       ExportsBase = iota // exports
	BaseModuleExports                    // module.exports
	BaseThis                             // top-level this
)

func (b ExportsBase) String() string {
	switch b {
	case BaseModuleExports:
		return "module.exports"
	case BaseThis:
		return "this"
	}
	return "exports"
}

// CommonJSExports is a write or read of the CommonJS exports object.
// Names is the assigned member path, nil when the whole object is used.
type CommonJSExports struct {
	base
	Base  ExportsBase
	Names []string
}

// NewCommonJSExports covers the base expression (`exports`, `module.exports`
// or `this`) at rng.
func NewCommonJSExports(id ident.DependencyID, b ExportsBase, rng Range, names []string) *CommonJSExports {
	return &CommonJSExports{base: newBase(id, &rng), Base: b, Names: names}
}

func (*CommonJSExports) Category() Category { return CategoryCommonJS }
func (*CommonJSExports) Type() Type         { return TypeCommonJSExports }
func (*CommonJSExports) CouldAffectReferencingModule() AffectType {
	return AffectFalse
}

// ImportDynamic is an `import('x')` expression. It lives in its own async
// block; the range covers the whole call.
type ImportDynamic struct {
	base
	moduleRef
}

func NewImportDynamic(id ident.DependencyID, request string, call Range) *ImportDynamic {
	return &ImportDynamic{base: newBase(id, &call), moduleRef: moduleRef{request: request}}
}

func (*ImportDynamic) Category() Category { return CategoryESM }
func (*ImportDynamic) Type() Type         { return TypeImportDynamic }
func (*ImportDynamic) CouldAffectReferencingModule() AffectType {
	return AffectTrue
}
