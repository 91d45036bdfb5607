package dependency

import (
	"github.com/roach88/jsgraph/internal/ident"
	"github.com/roach88/jsgraph/internal/runtime"
)

// Worker is `new Worker(new URL('./w.js', import.meta.url))`. It lives in a
// block with entry options; the range covers the arguments of `new URL`.
type Worker struct {
	base
	moduleRef
}

func NewWorker(id ident.DependencyID, request string, urlArgs Range) *Worker {
	return &Worker{base: newBase(id, &urlArgs), moduleRef: moduleRef{request: request}}
}

func (*Worker) Category() Category { return CategoryWorker }
func (*Worker) Type() Type         { return TypeWorker }
func (*Worker) CouldAffectReferencingModule() AffectType {
	return AffectTrue
}

// ConsumeShared records that a module imports a shared package under a
// version requirement. It is not resolved; the sharing checks read it.
type ConsumeShared struct {
	base
	ShareKey        string // package name
	RequiredVersion string // semver range, empty when unknown
	Singleton       bool
	Importer        ident.DependencyID // dependency that imports the package
}

func NewConsumeShared(id ident.DependencyID, shareKey, requiredVersion string, singleton bool, importer ident.DependencyID) *ConsumeShared {
	return &ConsumeShared{
		base:            newBase(id, nil),
		ShareKey:        shareKey,
		RequiredVersion: requiredVersion,
		Singleton:       singleton,
		Importer:        importer,
	}
}

func (*ConsumeShared) Category() Category { return CategoryFederation }
func (*ConsumeShared) Type() Type         { return TypeConsumeShared }
func (*ConsumeShared) CouldAffectReferencingModule() AffectType {
	return AffectTrue
}

// Const replaces a source range with fixed text, optionally requiring runtime
// globals. It is presentational: it is stored on the module, not in the graph.
type Const struct {
	base
	Expression   string
	Requirements runtime.Globals
}

func NewConst(id ident.DependencyID, rng Range, expression string, requirements runtime.Globals) *Const {
	return &Const{base: newBase(id, &rng), Expression: expression, Requirements: requirements}
}

func (*Const) Category() Category { return CategoryUnknown }
func (*Const) Type() Type         { return TypeConst }
func (*Const) CouldAffectReferencingModule() AffectType {
	return AffectFalse
}
