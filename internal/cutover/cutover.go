// Package cutover keeps a failed rebuild from changing the exports shape other
// modules see.
//
// Before a rebuild pass, every module scheduled for a forced rebuild has its
// BuildMeta recorded. After the pass, modules whose rebuild produced an error
// get the recorded BuildMeta back, so importers keep the old shape instead of
// seeing the exports downgrade to unknown. Modules that rebuilt cleanly keep
// their new BuildMeta.
package cutover

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/jsgraph/internal/ctxlog"
	"github.com/roach88/jsgraph/internal/diag"
	"github.com/roach88/jsgraph/internal/graph"
	"github.com/roach88/jsgraph/internal/ident"
)

// State of a FixBuildMeta.
type State uint8

const (
	Recording State = iota
	Applying
	Done
)

func (s State) String() string {
	switch s {
	case Recording:
		return "recording"
	case Applying:
		return "applying"
	}
	return "done"
}

// FixBuildMeta is the snapshot set of one rebuild pass. It is used once:
// record during the pass, apply at its end.
type FixBuildMeta struct {
	mu        sync.Mutex
	state     State
	snapshots map[ident.ModuleIdentifier]graph.BuildMeta
}

// New returns an empty snapshot set in the Recording state.
func New() *FixBuildMeta {
	return &FixBuildMeta{snapshots: make(map[ident.ModuleIdentifier]graph.BuildMeta)}
}

// State returns the current state.
func (f *FixBuildMeta) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Len returns the number of recorded snapshots.
func (f *FixBuildMeta) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.snapshots)
}

// AnalyzeForceBuildModule records the current BuildMeta of a module about to
// be rebuilt. Only the first call for an id records; later calls keep the
// first snapshot. Ids not in the graph have nothing to record and are
// ignored. The returned bool reports whether a snapshot was taken.
func (f *FixBuildMeta) AnalyzeForceBuildModule(g *graph.Graph, id ident.ModuleIdentifier) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Recording {
		return false, diag.ErrAlreadyApplied
	}
	if _, ok := f.snapshots[id]; ok {
		return false, nil
	}
	m, ok := g.ModuleByIdentifier(id)
	if !ok {
		return false, nil
	}
	f.snapshots[id] = m.BuildMeta
	return true, nil
}

// Snapshot returns the recorded BuildMeta of a module.
func (f *FixBuildMeta) Snapshot(id ident.ModuleIdentifier) (graph.BuildMeta, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meta, ok := f.snapshots[id]
	return meta, ok
}

// Artifact is the part of the module graph FixArtifact reads and writes.
// *graph.Graph implements it.
type Artifact interface {
	ModuleByIdentifier(id ident.ModuleIdentifier) (*graph.Module, bool)
	MutateModule(id ident.ModuleIdentifier, fn func(*graph.Module)) error
}

// FixArtifact consumes the snapshot set. Every recorded module that is still
// in the graph and has an error diagnostic gets its snapshot restored. It
// returns the restored modules in sorted order. A second call returns
// diag.ErrAlreadyApplied.
//
// The set ends Done even when a restore fails; the snapshots are not
// applied twice.
func (f *FixBuildMeta) FixArtifact(ctx context.Context, g Artifact) ([]ident.ModuleIdentifier, error) {
	f.mu.Lock()
	if f.state != Recording {
		f.mu.Unlock()
		return nil, diag.ErrAlreadyApplied
	}
	f.state = Applying
	snapshots := f.snapshots
	f.snapshots = nil
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.state = Done
		f.mu.Unlock()
	}()

	logger := ctxlog.FromContext(ctx)
	restored := []ident.ModuleIdentifier{}
	for _, id := range slices.Sorted(maps.Keys(snapshots)) {
		m, ok := g.ModuleByIdentifier(id)
		if !ok {
			continue
		}
		if _, failed := m.FirstError(); !failed {
			continue
		}
		prior := snapshots[id]
		if err := g.MutateModule(id, func(m *graph.Module) { m.BuildMeta = prior }); err != nil {
			return restored, fmt.Errorf("restore build meta of %s: %w", id, err)
		}
		logger.Debug("restored build meta", "module", string(id), "exports_type", prior.ExportsType.String())
		restored = append(restored, id)
	}
	return restored, nil
}
