package dependency

import "github.com/roach88/jsgraph/internal/ident"

// ASISafety records whether the scanner saw a statement boundary before a
// reference, which decides how a call-context wrapper is prefixed.
type ASISafety uint8

const (
	ASIUnknown ASISafety = iota // render Object(x)
	ASISafe                     // render (0,x)
	ASIUnsafe                   // render ;(0,x)
)

// ESMImportSideEffect is the module-loading part of an import statement.
// It removes the statement and hoists the require call into an init fragment.
type ESMImportSideEffect struct {
	base
	moduleRef
	SourceOrder int
}

// NewESMImportSideEffect creates the dependency of `import ... from request`.
func NewESMImportSideEffect(id ident.DependencyID, request string, statement Range, sourceOrder int) *ESMImportSideEffect {
	return &ESMImportSideEffect{
		base:        newBase(id, &statement),
		moduleRef:   moduleRef{request: request},
		SourceOrder: sourceOrder,
	}
}

func (*ESMImportSideEffect) Category() Category { return CategoryESM }
func (*ESMImportSideEffect) Type() Type         { return TypeESMImportSideEffect }
func (*ESMImportSideEffect) CouldAffectReferencingModule() AffectType {
	return AffectTrue
}

// ESMImportSpecifier is one reference to an imported binding.
type ESMImportSpecifier struct {
	base
	moduleRef
	SourceOrder int
	// Ids is the export path read through the binding: ["default"] for a
	// default import, ["add"] for a named one, nil for a namespace import,
	// and longer when a namespace member is accessed (ns.a.b).
	Ids       []string
	Call      bool // reference is the callee of a call expression
	Member    bool // reference reads through a namespace binding (ns.f)
	Shorthand bool // reference is an object-literal shorthand property
	ASI       ASISafety
}

// NewESMImportSpecifier creates a reference to an imported binding at rng.
func NewESMImportSpecifier(id ident.DependencyID, request string, rng Range, sourceOrder int, ids []string) *ESMImportSpecifier {
	return &ESMImportSpecifier{
		base:        newBase(id, &rng),
		moduleRef:   moduleRef{request: request},
		SourceOrder: sourceOrder,
		Ids:         ids,
	}
}

func (*ESMImportSpecifier) Category() Category { return CategoryESM }
func (*ESMImportSpecifier) Type() Type         { return TypeESMImportSpecifier }
func (*ESMImportSpecifier) CouldAffectReferencingModule() AffectType {
	return AffectTrue
}

// ESMExportSpecifier exports a local binding under a name.
type ESMExportSpecifier struct {
	base
	Name  string
	Local string
}

func NewESMExportSpecifier(id ident.DependencyID, name, local string) *ESMExportSpecifier {
	return &ESMExportSpecifier{base: newBase(id, nil), Name: name, Local: local}
}

func (*ESMExportSpecifier) Category() Category { return CategoryESM }
func (*ESMExportSpecifier) Type() Type         { return TypeESMExportSpecifier }
func (*ESMExportSpecifier) CouldAffectReferencingModule() AffectType {
	return AffectFalse
}

// ESMExportExpression is `export default <expr>` or
// `export default function name() {}`.
type ESMExportExpression struct {
	base
	Expression Range
	// Declaration is the name of a named default function or class
	// declaration; empty for expressions and anonymous declarations.
	Declaration string
}

// NewESMExportExpression covers the whole statement; expr is the exported
// expression or declaration inside it.
func NewESMExportExpression(id ident.DependencyID, statement, expr Range, declaration string) *ESMExportExpression {
	return &ESMExportExpression{base: newBase(id, &statement), Expression: expr, Declaration: declaration}
}

func (*ESMExportExpression) Category() Category { return CategoryESM }
func (*ESMExportExpression) Type() Type         { return TypeESMExportExpression }
func (*ESMExportExpression) CouldAffectReferencingModule() AffectType {
	return AffectFalse
}

// DefaultExportName is the local holding an exported default expression.
const DefaultExportName = "__WEBPACK_DEFAULT_EXPORT__"

// ESMExportImportedSpecifier re-exports from another module:
// `export { a as b } from`, `export * as ns from`, and `export * from`.
type ESMExportImportedSpecifier struct {
	base
	moduleRef
	SourceOrder int
	Name        string   // exported name; empty for a star re-export
	Ids         []string // imported path; nil re-exports the namespace
	Star        bool
}

func NewESMExportImportedSpecifier(id ident.DependencyID, request string, sourceOrder int, name string, ids []string) *ESMExportImportedSpecifier {
	return &ESMExportImportedSpecifier{
		base:        newBase(id, nil),
		moduleRef:   moduleRef{request: request},
		SourceOrder: sourceOrder,
		Name:        name,
		Ids:         ids,
	}
}

// NewESMExportStar creates `export * from request`.
func NewESMExportStar(id ident.DependencyID, request string, sourceOrder int) *ESMExportImportedSpecifier {
	d := NewESMExportImportedSpecifier(id, request, sourceOrder, "", nil)
	d.Star = true
	return d
}

func (*ESMExportImportedSpecifier) Category() Category { return CategoryESM }
func (*ESMExportImportedSpecifier) Type() Type         { return TypeESMExportImportedSpecifier }
func (*ESMExportImportedSpecifier) CouldAffectReferencingModule() AffectType {
	return AffectTransitive
}

// ESMCompatibility marks a module as ESM so its exports object gets the
// __esModule flag.
type ESMCompatibility struct {
	base
}

func NewESMCompatibility(id ident.DependencyID) *ESMCompatibility {
	return &ESMCompatibility{base: newBase(id, nil)}
}

func (*ESMCompatibility) Category() Category { return CategoryESM }
func (*ESMCompatibility) Type() Type         { return TypeESMCompatibility }
func (*ESMCompatibility) CouldAffectReferencingModule() AffectType {
	return AffectFalse
}
