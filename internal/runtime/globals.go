// Package runtime models the helper functions generated code may need at
// execution time: the Globals capability set, the rules that close it, and the
// runtime modules that implement each helper.
package runtime

import (
	"math/bits"
	"strings"
)

// Globals is a set of runtime capability flags.
type Globals uint64

// Capability flags. Each has a canonical runtime-visible name, see Name.
const (
	RequireScope Globals = 1 << iota
	Module
	ModuleID
	ModuleLoaded
	Require
	ModuleCache
	ModuleFactories
	EnsureChunk
	EnsureChunkHandlers
	PublicPath
	GetChunkScriptFilename
	LoadScript
	HasOwnProperty
	OnChunksLoaded
	ChunkCallback
	MakeNamespaceObject
	Exports
	CompatGetDefaultExport
	CreateFakeNamespaceObject
	DefinePropertyGetters
	Global
	BaseURI
	GetFullHash
	UncaughtErrorHandler
	NodeModuleDecorator
	ESMModuleDecorator
	AMDDefine
	AMDOptions
	ShareScopeMap
	InitializeSharing
	AsyncModule
	RuntimeID
	ChunkName
	InterceptModuleExecution
	PrefetchChunk
	PrefetchChunkHandlers
	PreloadChunk
	PreloadChunkHandlers
	CreateScript
	CreateScriptURL
	GetTrustedTypesPolicy
	ScriptNonce
	EntryModuleID
	SystemContext
	RelativeURL
	StartupEntrypoint
	ThisAsExports
	ReturnExportsFromRuntime

	flagCount = iota
)

// None is the empty set.
const None Globals = 0

var names = [flagCount]string{
	"__webpack_require__.*",
	"module",
	"module.id",
	"module.loaded",
	"__webpack_require__",
	"__webpack_require__.c",
	"__webpack_require__.m",
	"__webpack_require__.e",
	"__webpack_require__.f",
	"__webpack_require__.p",
	"__webpack_require__.u",
	"__webpack_require__.l",
	"__webpack_require__.o",
	"__webpack_require__.O",
	"webpackChunk",
	"__webpack_require__.r",
	"__webpack_exports__",
	"__webpack_require__.n",
	"__webpack_require__.t",
	"__webpack_require__.d",
	"__webpack_require__.g",
	"__webpack_require__.b",
	"__webpack_require__.h",
	"__webpack_require__.oe",
	"__webpack_require__.nmd",
	"__webpack_require__.hmd",
	"__webpack_require__.amdD",
	"__webpack_require__.amdO",
	"__webpack_require__.S",
	"__webpack_require__.I",
	"__webpack_require__.a",
	"__webpack_require__.j",
	"__webpack_require__.cn",
	"__webpack_require__.i",
	"__webpack_require__.E",
	"__webpack_require__.F",
	"__webpack_require__.G",
	"__webpack_require__.H",
	"__webpack_require__.ts",
	"__webpack_require__.tu",
	"__webpack_require__.tt",
	"__webpack_require__.nc",
	"__webpack_require__.s",
	"__webpack_require__.y",
	"__webpack_require__.U",
	"__webpack_require__.X",
	"top-level-this-exports",
	"return-exports-from-runtime",
}

// Name returns the canonical runtime-visible name of a single flag.
// For a set with more than one flag it returns the names joined by "|".
func (g Globals) Name() string {
	if bits.OnesCount64(uint64(g)) == 1 {
		return names[bits.TrailingZeros64(uint64(g))]
	}
	return g.String()
}

// String lists the names of all flags in the set in bit order.
func (g Globals) String() string {
	parts := make([]string, 0, bits.OnesCount64(uint64(g)))
	for _, f := range g.Flags() {
		parts = append(parts, f.Name())
	}
	return strings.Join(parts, "|")
}

// Has reports whether every flag of other is in g.
func (g Globals) Has(other Globals) bool { return g&other == other }

// HasAny reports whether g and other share a flag.
func (g Globals) HasAny(other Globals) bool { return g&other != 0 }

// Flags returns the single-flag members of g in bit order.
func (g Globals) Flags() []Globals {
	out := make([]Globals, 0, bits.OnesCount64(uint64(g)))
	for rest := uint64(g); rest != 0; rest &= rest - 1 {
		out = append(out, Globals(1)<<bits.TrailingZeros64(rest))
	}
	return out
}

// Len returns the number of flags in g.
func (g Globals) Len() int { return bits.OnesCount64(uint64(g)) }

// All returns every known flag.
func All() Globals { return Globals(1)<<flagCount - 1 }

// ByName resolves a canonical name back to its flag.
func ByName(name string) (Globals, bool) {
	for i, n := range names {
		if n == name {
			return Globals(1) << i, true
		}
	}
	return None, false
}
