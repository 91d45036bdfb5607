// Package graph implements the module graph: modules, dependency records,
// async blocks, the connections between them, and the structural queries the
// code generator and the rebuild logic run against it.
//
// A Graph has a single writer (the compilation's merge step) and any number of
// concurrent readers. Readers never observe a partially merged build result.
package graph

import (
	"maps"
	"slices"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roach88/jsgraph/internal/dependency"
	"github.com/roach88/jsgraph/internal/diag"
	"github.com/roach88/jsgraph/internal/ident"
)

// DefaultExportsCacheSize bounds the prefetched exports memo.
const DefaultExportsCacheSize = 4096

// Graph is the module graph of a compilation.
type Graph struct {
	mu sync.RWMutex

	modules  map[ident.ModuleIdentifier]*Module
	deps     map[ident.DependencyID]dependency.Dependency
	blocks   map[ident.BlockID]*dependency.AsyncBlock
	parents  map[ident.DependencyID]ident.ModuleIdentifier
	depBlock map[ident.DependencyID]ident.BlockID
	targets  map[ident.DependencyID]ident.ModuleIdentifier
	incoming map[ident.ModuleIdentifier]map[ident.DependencyID]struct{}
	runtimes map[ident.ModuleIdentifier][]string

	version Version
	exports *lru.Cache[exportsKey, *exportsEntry]
}

// New creates an empty graph.
func New() *Graph {
	cache, err := lru.New[exportsKey, *exportsEntry](DefaultExportsCacheSize)
	if err != nil {
		// Only a non-positive size fails.
		panic(err)
	}
	return &Graph{
		modules:  make(map[ident.ModuleIdentifier]*Module),
		deps:     make(map[ident.DependencyID]dependency.Dependency),
		blocks:   make(map[ident.BlockID]*dependency.AsyncBlock),
		parents:  make(map[ident.DependencyID]ident.ModuleIdentifier),
		depBlock: make(map[ident.DependencyID]ident.BlockID),
		targets:  make(map[ident.DependencyID]ident.ModuleIdentifier),
		incoming: make(map[ident.ModuleIdentifier]map[ident.DependencyID]struct{}),
		runtimes: make(map[ident.ModuleIdentifier][]string),
		exports:  cache,
	}
}

// Version returns the current mutation counter.
func (g *Graph) Version() uint64 { return g.version.Current() }

// BuildResult is the self-contained output of one module build: the module,
// every dependency and block it owns, and the targets its dependencies
// resolved to.
type BuildResult struct {
	Module       *Module
	Dependencies []dependency.Dependency
	Blocks       []*dependency.AsyncBlock
	Resolved     map[ident.DependencyID]ident.ModuleIdentifier
}

// AddModule inserts a module that owns no dependencies or blocks; use Merge
// for a full build result.
func (g *Graph) AddModule(m *Module) (ident.ModuleIdentifier, error) {
	if err := g.Merge(&BuildResult{Module: m}); err != nil {
		return "", err
	}
	return m.Identifier, nil
}

// Merge integrates a build result. It fails without mutating the graph if the
// module is already present or the result references an id it does not carry.
func (g *Graph) Merge(r *BuildResult) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.modules[r.Module.Identifier]; ok {
		return diag.NewDuplicateModuleError(r.Module.Identifier)
	}
	if err := validate(r); err != nil {
		return err
	}
	g.insertLocked(r)
	g.version.Next()
	return nil
}

// Replace swaps a module for its rebuilt version. Connections pointing at the
// module are kept; everything the old version owned is dropped.
func (g *Graph) Replace(r *BuildResult) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	old, ok := g.modules[r.Module.Identifier]
	if !ok {
		return diag.NewUnknownModuleError(r.Module.Identifier)
	}
	if err := validate(r); err != nil {
		return err
	}
	g.dropOwnedLocked(old)
	r.Module.metaGen = old.metaGen
	if r.Module.BuildMeta != old.BuildMeta {
		r.Module.metaGen++
	}
	g.insertLocked(r)
	g.version.Next()
	return nil
}

func validate(r *BuildResult) error {
	m := r.Module
	have := make(map[ident.DependencyID]bool, len(r.Dependencies))
	for _, d := range r.Dependencies {
		have[d.ID()] = true
	}
	haveBlock := make(map[ident.BlockID]bool, len(r.Blocks))
	for _, b := range r.Blocks {
		haveBlock[b.ID] = true
	}
	for _, id := range m.Dependencies {
		if !have[id] {
			return diag.NewDanglingReferenceError(m.Identifier, id)
		}
	}
	for _, id := range m.Blocks {
		if !haveBlock[id] {
			return &diag.GraphError{Code: diag.ErrCodeDanglingReference, Message: "block " + string(id) + " does not resolve", Module: m.Identifier}
		}
	}
	for _, b := range r.Blocks {
		for _, id := range b.Dependencies {
			if !have[id] {
				return diag.NewDanglingReferenceError(m.Identifier, id)
			}
		}
		for _, id := range b.Blocks {
			if !haveBlock[id] {
				return &diag.GraphError{Code: diag.ErrCodeDanglingReference, Message: "block " + string(id) + " does not resolve", Module: m.Identifier}
			}
		}
	}
	return nil
}

func (g *Graph) insertLocked(r *BuildResult) {
	m := r.Module
	g.modules[m.Identifier] = m
	for _, d := range r.Dependencies {
		g.deps[d.ID()] = d
		g.parents[d.ID()] = m.Identifier
	}
	for _, b := range r.Blocks {
		g.blocks[b.ID] = b
		for _, id := range b.Dependencies {
			g.depBlock[id] = b.ID
		}
	}
	for dep, target := range r.Resolved {
		g.connectLocked(dep, target)
	}
}

func (g *Graph) connectLocked(dep ident.DependencyID, target ident.ModuleIdentifier) {
	if prev, ok := g.targets[dep]; ok {
		delete(g.incoming[prev], dep)
	}
	g.targets[dep] = target
	in := g.incoming[target]
	if in == nil {
		in = make(map[ident.DependencyID]struct{})
		g.incoming[target] = in
	}
	in[dep] = struct{}{}
}

// dropOwnedLocked removes the records a module owns, not the module itself.
func (g *Graph) dropOwnedLocked(m *Module) {
	for dep, parent := range g.parents {
		if parent != m.Identifier {
			continue
		}
		if target, ok := g.targets[dep]; ok {
			delete(g.incoming[target], dep)
			if len(g.incoming[target]) == 0 {
				delete(g.incoming, target)
			}
		}
		delete(g.targets, dep)
		delete(g.deps, dep)
		delete(g.parents, dep)
		delete(g.depBlock, dep)
	}
	for id, b := range g.blocks {
		if b.Module == m.Identifier {
			delete(g.blocks, id)
		}
	}
}

// RemoveModule drops a module and everything it owns. Connections from other
// modules to it remain and report a missing target.
func (g *Graph) RemoveModule(id ident.ModuleIdentifier) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.removeLocked(id)
}

func (g *Graph) removeLocked(id ident.ModuleIdentifier) bool {
	m, ok := g.modules[id]
	if !ok {
		return false
	}
	g.dropOwnedLocked(m)
	delete(g.modules, id)
	delete(g.runtimes, id)
	g.version.Next()
	return true
}

// SetResolvedModule connects a dependency to its target module.
func (g *Graph) SetResolvedModule(dep ident.DependencyID, target ident.ModuleIdentifier) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.deps[dep]; !ok {
		return diag.NewDanglingReferenceError("", dep)
	}
	g.connectLocked(dep, target)
	g.version.Next()
	return nil
}

// ModuleByIdentifier looks a module up. The returned module must be treated
// as read-only; use MutateModule to change it.
func (g *Graph) ModuleByIdentifier(id ident.ModuleIdentifier) (*Module, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.modules[id]
	return m, ok
}

// Snapshot returns a copy of a module that stays stable while the graph
// changes. Codegen renders from snapshots.
func (g *Graph) Snapshot(id ident.ModuleIdentifier) (*Module, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.modules[id]
	if !ok {
		return nil, false
	}
	return m.clone(), true
}

// MutateModule runs fn on the module under the write lock. A change of the
// module's BuildMeta invalidates its memoized exports info.
func (g *Graph) MutateModule(id ident.ModuleIdentifier, fn func(*Module)) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.modules[id]
	if !ok {
		return diag.NewUnknownModuleError(id)
	}
	before := m.BuildMeta
	fn(m)
	if m.BuildMeta != before {
		m.metaGen++
	}
	g.version.Next()
	return nil
}

// ModuleIdentifierByDependencyID returns the target module of a dependency,
// if it resolved.
func (g *Graph) ModuleIdentifierByDependencyID(dep ident.DependencyID) (ident.ModuleIdentifier, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.targets[dep]
	return t, ok
}

// ModuleByDependencyID returns the target module of a dependency, if it
// resolved and the target is in the graph.
func (g *Graph) ModuleByDependencyID(dep ident.DependencyID) (*Module, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.targets[dep]
	if !ok {
		return nil, false
	}
	m, ok := g.modules[t]
	return m, ok
}

// DependencyByID looks up a dependency record.
func (g *Graph) DependencyByID(id ident.DependencyID) (dependency.Dependency, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	d, ok := g.deps[id]
	return d, ok
}

// BlockByID looks up an async block.
func (g *Graph) BlockByID(id ident.BlockID) (*dependency.AsyncBlock, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	b, ok := g.blocks[id]
	return b, ok
}

// ParentModule returns the module owning a dependency.
func (g *Graph) ParentModule(dep ident.DependencyID) (ident.ModuleIdentifier, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.parents[dep]
	return p, ok
}

// ParentBlock returns the block owning a dependency, if any.
func (g *Graph) ParentBlock(dep ident.DependencyID) (ident.BlockID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	b, ok := g.depBlock[dep]
	return b, ok
}

// Connection is a resolved dependency edge.
type Connection struct {
	Dependency ident.DependencyID
	Origin     ident.ModuleIdentifier
	Target     ident.ModuleIdentifier
}

// IncomingConnections returns the connections that target m, ordered by
// origin module then dependency id.
func (g *Graph) IncomingConnections(m ident.ModuleIdentifier) []Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.incomingLocked(m)
}

func (g *Graph) incomingLocked(m ident.ModuleIdentifier) []Connection {
	out := make([]Connection, 0, len(g.incoming[m]))
	for dep := range g.incoming[m] {
		out = append(out, Connection{Dependency: dep, Origin: g.parents[dep], Target: m})
	}
	slices.SortFunc(out, func(a, b Connection) int {
		if c := strings.Compare(string(a.Origin), string(b.Origin)); c != 0 {
			return c
		}
		return strings.Compare(string(a.Dependency), string(b.Dependency))
	})
	return out
}

// Modules returns every module identifier in sorted order.
func (g *Graph) Modules() []ident.ModuleIdentifier {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Sorted(maps.Keys(g.modules))
}

// Len returns the number of modules.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.modules)
}

// SetModuleRuntimes records the runtimes a module is part of.
func (g *Graph) SetModuleRuntimes(m ident.ModuleIdentifier, runtimes []string) {
	sorted := slices.Clone(runtimes)
	slices.Sort(sorted)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.runtimes[m] = slices.Compact(sorted)
	g.version.Next()
}

// ModuleRuntimes returns the runtimes a module is part of. Nil means the
// module has not been assigned yet and counts as part of every runtime.
func (g *Graph) ModuleRuntimes(m ident.ModuleIdentifier) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.runtimes[m])
}

func (g *Graph) inRuntimeLocked(m ident.ModuleIdentifier, runtime string) bool {
	if runtime == "" {
		return true
	}
	rs, ok := g.runtimes[m]
	if !ok {
		return true
	}
	_, found := slices.BinarySearch(rs, runtime)
	return found
}

// GetExportsType classifies the target of a dependency for its importer.
// A missing target is ExportsUnknown.
func (g *Graph) GetExportsType(dep ident.DependencyID, strict bool) ExportsType {
	m, ok := g.ModuleByDependencyID(dep)
	if !ok {
		return ExportsUnknown
	}
	return m.ExportsType(strict)
}
