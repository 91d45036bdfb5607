package dependency

import "github.com/roach88/jsgraph/internal/ident"

// AMDRequireItem is one entry of an AMD require array. It has no range of its
// own; AMDRequireArray renders the whole array.
type AMDRequireItem struct {
	base
	moduleRef
}

func NewAMDRequireItem(id ident.DependencyID, request string) *AMDRequireItem {
	return &AMDRequireItem{base: newBase(id, nil), moduleRef: moduleRef{request: request}}
}

func (*AMDRequireItem) Category() Category { return CategoryAMD }
func (*AMDRequireItem) Type() Type         { return TypeAMDRequireItem }
func (*AMDRequireItem) CouldAffectReferencingModule() AffectType {
	return AffectTrue
}

// AMDRequireArray aggregates the items of `require([...], cb)`. It only
// rewrites text, so changes of its items never affect the owner through it.
type AMDRequireArray struct {
	base
	Items []ident.DependencyID
}

func NewAMDRequireArray(id ident.DependencyID, array Range, items []ident.DependencyID) *AMDRequireArray {
	return &AMDRequireArray{base: newBase(id, &array), Items: items}
}

func (*AMDRequireArray) Category() Category { return CategoryAMD }
func (*AMDRequireArray) Type() Type         { return TypeAMDRequireArray }
func (*AMDRequireArray) CouldAffectReferencingModule() AffectType {
	return AffectFalse
}

// AMDRequire is the call frame of `require([...], cb)`.
type AMDRequire struct {
	base
	Array    Range
	Callback Range
	// HasCallback is false for `require([...])` without a function.
	HasCallback bool
}

func NewAMDRequire(id ident.DependencyID, call, array Range, callback *Range) *AMDRequire {
	d := &AMDRequire{base: newBase(id, &call), Array: array}
	if callback != nil {
		d.Callback = *callback
		d.HasCallback = true
	}
	return d
}

func (*AMDRequire) Category() Category { return CategoryAMD }
func (*AMDRequire) Type() Type         { return TypeAMDRequire }
func (*AMDRequire) CouldAffectReferencingModule() AffectType {
	return AffectFalse
}
