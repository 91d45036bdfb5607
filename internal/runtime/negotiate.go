package runtime

import "fmt"

// Implication states that requiring From also requires Implies.
type Implication struct {
	From    Globals
	Implies Globals
}

// GlobalsOnRequire lists the helpers that hang off __webpack_require__; any of
// them pulls in RequireScope.
const GlobalsOnRequire = ChunkName | RuntimeID | CompatGetDefaultExport |
	CreateFakeNamespaceObject | CreateScript | CreateScriptURL | GetTrustedTypesPolicy |
	DefinePropertyGetters | EnsureChunk | EntryModuleID | GetFullHash | Global |
	MakeNamespaceObject | ModuleCache | ModuleFactories | InterceptModuleExecution |
	PublicPath | BaseURI | RelativeURL | ScriptNonce | UncaughtErrorHandler |
	AsyncModule | ShareScopeMap | InitializeSharing | LoadScript | SystemContext |
	OnChunksLoaded

// ModuleDependencies applies to a single module's own requirements.
//
// Entries are ordered so that no entry implies the trigger of an earlier entry;
// a single in-order pass therefore reaches the fixed point.
var ModuleDependencies = []Implication{
	{ModuleLoaded, Module},
	{ModuleID, Module},
	{ESMModuleDecorator, Module | RequireScope},
	{NodeModuleDecorator, Module | RequireScope},
	{AMDDefine, Require},
	{AMDOptions, RequireScope},
}

// TreeDependencies applies to the aggregate requirements of a chunk. Same
// ordering rule as ModuleDependencies.
var TreeDependencies = []Implication{
	{CompatGetDefaultExport, DefinePropertyGetters},
	{CreateFakeNamespaceObject, DefinePropertyGetters | MakeNamespaceObject | Require},
	{DefinePropertyGetters, HasOwnProperty},
	{InitializeSharing, ShareScopeMap},
	{ShareScopeMap, HasOwnProperty},
	{ESMModuleDecorator, Module | RequireScope},
	{NodeModuleDecorator, Module | RequireScope},
}

func init() {
	mustBeOrdered("ModuleDependencies", ModuleDependencies)
	mustBeOrdered("TreeDependencies", TreeDependencies)
}

// mustBeOrdered panics if a later implication produces the trigger of an
// earlier one, which would make a single pass miss a transitive flag.
func mustBeOrdered(name string, table []Implication) {
	for j, later := range table {
		for i := 0; i <= j; i++ {
			if i == j {
				if later.Implies.HasAny(later.From) {
					panic(fmt.Sprintf("runtime: %s[%d] implies itself", name, j))
				}
				continue
			}
			if later.Implies.HasAny(table[i].From) {
				panic(fmt.Sprintf("runtime: %s[%d] (%s) implies trigger of earlier entry %d (%s)",
					name, j, later.From, i, table[i].From))
			}
		}
	}
}

func applyTable(g Globals, table []Implication) Globals {
	for _, imp := range table {
		if g.HasAny(imp.From) {
			g |= imp.Implies
		}
	}
	return g
}

func applyRequireScope(g Globals) Globals {
	if g.HasAny(GlobalsOnRequire) {
		g |= RequireScope
	}
	return g
}

// NegotiateModule closes a module's own requirements.
func NegotiateModule(g Globals) Globals {
	return applyRequireScope(applyTable(g, ModuleDependencies))
}

// ChunkConditions carries the chunk facts the conditional tree rules read.
type ChunkConditions struct {
	HasAsyncChunks            bool
	JSONPChunkLoading         bool
	ImportScriptsChunkLoading bool
	TrustedTypes              bool
	AutoPublicPath            bool
	HashedChunkFiles          bool
}

// NegotiateChunk closes the aggregate requirements of a chunk.
//
// The conditional rules run first, in an order where each rule only reads flags
// that earlier rules may add, then the static table, then the require scope.
// No step adds a flag read by an earlier step.
func NegotiateChunk(g Globals, c ChunkConditions) Globals {
	if g.Has(EnsureChunk) && c.HasAsyncChunks {
		g |= EnsureChunkHandlers
	}
	if g.Has(PrefetchChunk) {
		g |= PrefetchChunkHandlers
	}
	if g.Has(PreloadChunk) {
		g |= PreloadChunkHandlers
	}
	if g.Has(EnsureChunkHandlers) && c.JSONPChunkLoading {
		g |= PublicPath | LoadScript | GetChunkScriptFilename | HasOwnProperty | ModuleFactories | ChunkCallback
	}
	if g.Has(EnsureChunkHandlers) && c.ImportScriptsChunkLoading {
		g |= PublicPath | GetChunkScriptFilename | HasOwnProperty | ModuleFactories | ChunkCallback
	}
	if c.TrustedTypes {
		if g.Has(LoadScript) {
			g |= CreateScriptURL
		}
		if g.HasAny(CreateScript | CreateScriptURL) {
			g |= GetTrustedTypesPolicy
		}
	}
	if g.Has(GetChunkScriptFilename) && c.HashedChunkFiles {
		g |= GetFullHash
	}
	if g.Has(PublicPath) && c.AutoPublicPath {
		g |= Global
	}
	return applyRequireScope(applyTable(g, TreeDependencies))
}
