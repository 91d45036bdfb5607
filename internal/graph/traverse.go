package graph

import (
	"slices"

	"github.com/roach88/jsgraph/internal/dependency"
	"github.com/roach88/jsgraph/internal/diag"
	"github.com/roach88/jsgraph/internal/ident"
)

// Visit is one step of a dependency walk.
type Visit struct {
	Dependency dependency.Dependency
	// Block owning the dependency; nil for module-level dependencies.
	Block *dependency.AsyncBlock
}

// walkLocked lists a module's dependencies and blocks in rendering order:
// module-level dependencies first, then blocks depth-first, pre-order, each
// block's dependencies before its child blocks.
func (g *Graph) walkLocked(id ident.ModuleIdentifier) ([]Visit, []*dependency.AsyncBlock, error) {
	m, ok := g.modules[id]
	if !ok {
		return nil, nil, diag.NewUnknownModuleError(id)
	}
	var visits []Visit
	for _, depID := range m.Dependencies {
		d, ok := g.deps[depID]
		if !ok {
			return nil, nil, diag.NewDanglingReferenceError(id, depID)
		}
		visits = append(visits, Visit{Dependency: d})
	}

	var blocks []*dependency.AsyncBlock
	stack := reversed(m.Blocks)
	for len(stack) > 0 {
		bid := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		b, ok := g.blocks[bid]
		if !ok {
			return nil, nil, &diag.GraphError{Code: diag.ErrCodeDanglingReference, Message: "block " + string(bid) + " does not resolve", Module: id}
		}
		blocks = append(blocks, b)
		for _, depID := range b.Dependencies {
			d, ok := g.deps[depID]
			if !ok {
				return nil, nil, diag.NewDanglingReferenceError(id, depID)
			}
			visits = append(visits, Visit{Dependency: d, Block: b})
		}
		stack = append(stack, reversed(b.Blocks)...)
	}
	return visits, blocks, nil
}

func reversed[T any](s []T) []T {
	out := slices.Clone(s)
	slices.Reverse(out)
	return out
}

// WalkDependencies calls fn for every dependency of a module in rendering
// order. The graph is not locked while fn runs.
func (g *Graph) WalkDependencies(id ident.ModuleIdentifier, fn func(Visit) error) error {
	g.mu.RLock()
	visits, _, err := g.walkLocked(id)
	g.mu.RUnlock()
	if err != nil {
		return err
	}
	for _, v := range visits {
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}

// WalkBlocks calls fn for every async block of a module, depth-first,
// pre-order.
func (g *Graph) WalkBlocks(id ident.ModuleIdentifier, fn func(*dependency.AsyncBlock) error) error {
	g.mu.RLock()
	_, blocks, err := g.walkLocked(id)
	g.mu.RUnlock()
	if err != nil {
		return err
	}
	for _, b := range blocks {
		if err := fn(b); err != nil {
			return err
		}
	}
	return nil
}

// Diagnostics returns the diagnostics of a module: those its build
// reported, then the critical diagnostics stored on its context
// dependencies, in rendering order.
func (g *Graph) Diagnostics(id ident.ModuleIdentifier) []diag.Diagnostic {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.modules[id]
	if !ok {
		return nil
	}
	out := slices.Clone(m.Diagnostics)
	visits, _, err := g.walkLocked(id)
	if err != nil {
		return out
	}
	for _, v := range visits {
		if cd, ok := dependency.AsContextDependency(v.Dependency); ok {
			if d, critical := cd.Critical(); critical {
				out = append(out, d)
			}
		}
	}
	return out
}

// Reachable lists the modules reachable from entries in depth-first
// pre-order. Cycles are cut by a visited set; targets that are not in the
// graph are skipped.
func (g *Graph) Reachable(entries []ident.ModuleIdentifier) []ident.ModuleIdentifier {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.reachableLocked(entries)
}

func (g *Graph) reachableLocked(entries []ident.ModuleIdentifier) []ident.ModuleIdentifier {
	visited := make(map[ident.ModuleIdentifier]bool)
	var order []ident.ModuleIdentifier
	stack := reversed(entries)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		if _, ok := g.modules[id]; !ok {
			continue
		}
		visited[id] = true
		order = append(order, id)

		visits, _, err := g.walkLocked(id)
		if err != nil {
			continue
		}
		var next []ident.ModuleIdentifier
		for _, v := range visits {
			if t, ok := g.targets[v.Dependency.ID()]; ok && !visited[t] {
				next = append(next, t)
			}
		}
		stack = append(stack, reversed(next)...)
	}
	return order
}

// Traverse calls fn for every module reachable from entries, in Reachable
// order. The graph is not locked while fn runs.
func (g *Graph) Traverse(entries []ident.ModuleIdentifier, fn func(*Module) error) error {
	for _, id := range g.Reachable(entries) {
		m, ok := g.ModuleByIdentifier(id)
		if !ok {
			continue
		}
		if err := fn(m); err != nil {
			return err
		}
	}
	return nil
}

// Prune removes every module not reachable from entries and returns the
// removed identifiers in sorted order.
func (g *Graph) Prune(entries []ident.ModuleIdentifier) []ident.ModuleIdentifier {
	g.mu.Lock()
	defer g.mu.Unlock()
	keep := make(map[ident.ModuleIdentifier]bool)
	for _, id := range g.reachableLocked(entries) {
		keep[id] = true
	}
	var removed []ident.ModuleIdentifier
	for id := range g.modules {
		if !keep[id] {
			removed = append(removed, id)
		}
	}
	slices.Sort(removed)
	for _, id := range removed {
		g.removeLocked(id)
	}
	return removed
}
