package graph

import (
	"slices"

	"github.com/roach88/jsgraph/internal/dependency"
	"github.com/roach88/jsgraph/internal/ident"
)

// AffectedModules returns the changed modules plus every module whose output
// may change because of them, sorted.
//
// A connection whose dependency reports AffectTrue marks its origin; one that
// reports AffectTransitive marks its origin and keeps propagating from there;
// AffectFalse never marks anything.
func (g *Graph) AffectedModules(changed []ident.ModuleIdentifier) []ident.ModuleIdentifier {
	g.mu.RLock()
	defer g.mu.RUnlock()

	affected := make(map[ident.ModuleIdentifier]bool, len(changed))
	propagated := make(map[ident.ModuleIdentifier]bool, len(changed))
	queue := slices.Clone(changed)
	for _, id := range changed {
		affected[id] = true
		propagated[id] = true
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, c := range g.incomingLocked(id) {
			d, ok := g.deps[c.Dependency]
			if !ok {
				continue
			}
			switch d.CouldAffectReferencingModule() {
			case dependency.AffectTrue:
				affected[c.Origin] = true
			case dependency.AffectTransitive:
				affected[c.Origin] = true
				if !propagated[c.Origin] {
					propagated[c.Origin] = true
					queue = append(queue, c.Origin)
				}
			}
		}
	}

	out := make([]ident.ModuleIdentifier, 0, len(affected))
	for id := range affected {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
