package graph

import (
	"slices"

	"github.com/roach88/jsgraph/internal/dependency"
	"github.com/roach88/jsgraph/internal/diag"
	"github.com/roach88/jsgraph/internal/ident"
)

// Kind is the module type a module was created with.
type Kind uint8

const (
	KindJavaScriptAuto Kind = iota
	KindJavaScriptESM
	KindJavaScriptCJS
	KindJSON
	KindContext
)

// ModuleType returns the identifier prefix of the kind.
func (k Kind) ModuleType() string {
	switch k {
	case KindJavaScriptESM:
		return ident.TypeJavaScriptESM
	case KindJavaScriptCJS:
		return ident.TypeJavaScriptCJS
	case KindJSON:
		return ident.TypeJSON
	case KindContext:
		return ident.TypeContext
	}
	return ident.TypeJavaScriptAuto
}

func (k Kind) String() string { return k.ModuleType() }

// MetaExportsType is the exports shape a build discovered.
type MetaExportsType uint8

const (
	MetaExportsUnset     MetaExportsType = iota
	MetaExportsDefault                   // module.exports is the default export (JSON)
	MetaExportsNamespace                 // real ESM
	MetaExportsFlagged                   // CommonJS with __esModule set
	MetaExportsDynamic                   // CommonJS
)

func (t MetaExportsType) String() string {
	switch t {
	case MetaExportsDefault:
		return "default"
	case MetaExportsNamespace:
		return "namespace"
	case MetaExportsFlagged:
		return "flagged"
	case MetaExportsDynamic:
		return "dynamic"
	}
	return "unset"
}

// DefaultObject says how a default-exporting module exposes named exports.
type DefaultObject uint8

const (
	DefaultObjectFalse        DefaultObject = iota
	DefaultObjectRedirect                   // named exports read from the default object
	DefaultObjectRedirectWarn               // same, with a warning in strict ESM importers
)

// BuildMeta is the exports shape of a module. It survives failed rebuilds
// through the cutover.
type BuildMeta struct {
	ExportsType    MetaExportsType `json:"exports_type"`
	DefaultObject  DefaultObject   `json:"default_object"`
	ESM            bool            `json:"esm"`
	StrictESM      bool            `json:"strict_esm"` // .mjs or "type": "module"
	Async          bool            `json:"async"`
	SideEffectFree bool            `json:"side_effect_free"`
}

// BuildInfo holds what a build learned about a module's code.
type BuildInfo struct {
	Strict               bool     `json:"strict"`
	NamedExports         []string `json:"named_exports"`          // sorted, unique
	TopLevelDeclarations []string `json:"top_level_declarations"` // sorted, unique
	ModuleArgument       string   `json:"module_argument"`
	ExportsArgument      string   `json:"exports_argument"`
	Hash                 string   `json:"hash"`
}

// HasExport reports whether name is in the named exports set.
func (b *BuildInfo) HasExport(name string) bool {
	_, ok := slices.BinarySearch(b.NamedExports, name)
	return ok
}

// Module is a single compilation unit. The graph owns every Module; other
// records refer to it by identifier only.
type Module struct {
	Identifier ident.ModuleIdentifier
	Kind       Kind
	Resource   string
	// Context is set on context modules.
	Context   *dependency.ContextOptions
	BuildMeta BuildMeta
	BuildInfo BuildInfo
	// Dependencies are the module-level dependency ids in source order.
	Dependencies []ident.DependencyID
	// Presentational dependencies only rewrite text; the graph does not
	// index them.
	Presentational []dependency.Dependency
	// Blocks are the top-level async blocks in source order.
	Blocks      []ident.BlockID
	Source      []byte
	Diagnostics []diag.Diagnostic

	metaGen uint64
}

// FirstError returns the module's first error diagnostic.
func (m *Module) FirstError() (diag.Diagnostic, bool) {
	return diag.FirstError(m.Diagnostics)
}

// ExportsType is how importers see a module's exports.
type ExportsType uint8

const (
	ExportsUnknown ExportsType = iota
	ExportsNamespace
	ExportsDefaultOnly
	ExportsDefaultWithNamed
	ExportsDynamic
)

func (t ExportsType) String() string {
	switch t {
	case ExportsNamespace:
		return "namespace"
	case ExportsDefaultOnly:
		return "default-only"
	case ExportsDefaultWithNamed:
		return "default-with-named"
	case ExportsDynamic:
		return "dynamic"
	}
	return "unknown"
}

// ExportsType classifies the module for an importer. strict is set when the
// importer is a strict ESM module (.mjs or "type": "module").
func (m *Module) ExportsType(strict bool) ExportsType {
	switch m.BuildMeta.ExportsType {
	case MetaExportsNamespace:
		return ExportsNamespace
	case MetaExportsDefault:
		switch m.BuildMeta.DefaultObject {
		case DefaultObjectRedirect:
			return ExportsDefaultWithNamed
		case DefaultObjectRedirectWarn:
			if strict {
				return ExportsDefaultOnly
			}
			return ExportsDefaultWithNamed
		}
		return ExportsDefaultOnly
	case MetaExportsFlagged:
		if strict {
			return ExportsDefaultWithNamed
		}
		return ExportsNamespace
	}
	if strict {
		return ExportsDefaultWithNamed
	}
	return ExportsDynamic
}

func (m *Module) clone() *Module {
	c := *m
	c.Dependencies = slices.Clone(m.Dependencies)
	c.Presentational = slices.Clone(m.Presentational)
	c.Blocks = slices.Clone(m.Blocks)
	c.Diagnostics = slices.Clone(m.Diagnostics)
	c.BuildInfo.NamedExports = slices.Clone(m.BuildInfo.NamedExports)
	c.BuildInfo.TopLevelDeclarations = slices.Clone(m.BuildInfo.TopLevelDeclarations)
	return &c
}
