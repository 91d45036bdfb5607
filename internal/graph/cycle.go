package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/jsgraph/internal/diag"
	"github.com/roach88/jsgraph/internal/ident"
)

// CircularImports reports every cycle of synchronous imports as a warning.
//
// Circular imports are legal and the graph handles them, but they make
// evaluation order depend on which module is imported first, so they are
// surfaced. Dependencies inside async blocks do not form cycles: they are
// evaluated after their importer finished.
//
// The algorithm:
//  1. Build module -> synchronously imported modules
//  2. Find strongly connected components with Tarjan's algorithm
//  3. Report each component with more than one module, or a self-import
//
// An acyclic graph returns an empty slice.
func (g *Graph) CircularImports() []diag.Diagnostic {
	g.mu.RLock()
	edges := g.importEdgesLocked()
	g.mu.RUnlock()

	var out []diag.Diagnostic
	for _, scc := range tarjanSCC(edges) {
		if len(scc) > 1 || (len(scc) == 1 && slices.Contains(edges[scc[0]], scc[0])) {
			out = append(out, cycleWarning(scc, edges))
		}
	}
	slices.SortFunc(out, diag.Compare)
	if out == nil {
		out = []diag.Diagnostic{}
	}
	return out
}

// importEdges maps a module to its synchronous import targets, each list
// sorted and deduplicated.
type importEdges map[ident.ModuleIdentifier][]ident.ModuleIdentifier

func (g *Graph) importEdgesLocked() importEdges {
	edges := make(importEdges, len(g.modules))
	for id, m := range g.modules {
		var next []ident.ModuleIdentifier
		for _, dep := range m.Dependencies {
			if t, ok := g.targets[dep]; ok {
				if _, present := g.modules[t]; present {
					next = append(next, t)
				}
			}
		}
		slices.Sort(next)
		edges[id] = slices.Compact(next)
	}
	return edges
}

// tarjanSCC finds strongly connected components. Nodes are visited in sorted
// order so the result does not depend on map iteration.
func tarjanSCC(edges importEdges) [][]ident.ModuleIdentifier {
	var (
		index   = 0
		stack   []ident.ModuleIdentifier
		indices = make(map[ident.ModuleIdentifier]int)
		lowlink = make(map[ident.ModuleIdentifier]int)
		onStack = make(map[ident.ModuleIdentifier]bool)
		sccs    [][]ident.ModuleIdentifier
	)

	var strongConnect func(ident.ModuleIdentifier)
	strongConnect = func(v ident.ModuleIdentifier) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range edges[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []ident.ModuleIdentifier
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]ident.ModuleIdentifier, 0, len(edges))
	for n := range edges {
		nodes = append(nodes, n)
	}
	slices.Sort(nodes)
	for _, n := range nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}
	return sccs
}

// cycleWarning renders a component as a warning on its smallest module.
func cycleWarning(scc []ident.ModuleIdentifier, edges importEdges) diag.Diagnostic {
	path := cyclePath(scc, edges)
	parts := make([]string, len(path))
	for i, id := range path {
		parts[i] = id.Resource()
	}
	return diag.Warning(diag.KindCycle, path[0], "Circular import: %s", strings.Join(parts, " -> ")).
		With("modules", fmt.Sprint(len(scc)))
}

// cyclePath walks from the smallest member along edges inside the component
// until it returns to the start.
func cyclePath(scc []ident.ModuleIdentifier, edges importEdges) []ident.ModuleIdentifier {
	start := scc[0]
	if len(scc) == 1 {
		return []ident.ModuleIdentifier{start, start}
	}
	inSCC := make(map[ident.ModuleIdentifier]bool, len(scc))
	for _, n := range scc {
		inSCC[n] = true
	}
	path := []ident.ModuleIdentifier{start}
	visited := map[ident.ModuleIdentifier]bool{start: true}
	current := start
	for {
		var next ident.ModuleIdentifier
		for _, w := range edges[current] {
			if w == start {
				next = w
				break
			}
			if next == "" && inSCC[w] && !visited[w] {
				next = w
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		visited[next] = true
		current = next
	}
	return path
}
