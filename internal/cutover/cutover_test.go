package cutover

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/jsgraph/internal/diag"
	"github.com/roach88/jsgraph/internal/graph"
	"github.com/roach88/jsgraph/internal/ident"
)

var (
	esmMeta    = graph.BuildMeta{ExportsType: graph.MetaExportsNamespace, ESM: true}
	brokenMeta = graph.BuildMeta{}
)

func newGraph(t *testing.T, paths ...string) *graph.Graph {
	t.Helper()
	g := graph.New()
	for _, p := range paths {
		_, err := g.AddModule(&graph.Module{Identifier: id(p), BuildMeta: esmMeta})
		require.NoError(t, err)
	}
	return g
}

func id(path string) ident.ModuleIdentifier {
	return ident.NewModuleIdentifier(ident.TypeJavaScriptAuto, path)
}

// rebuild simulates a rebuild writing fresh meta and diagnostics.
func rebuild(t *testing.T, g *graph.Graph, path string, meta graph.BuildMeta, failed bool) {
	t.Helper()
	require.NoError(t, g.MutateModule(id(path), func(m *graph.Module) {
		m.BuildMeta = meta
		m.Diagnostics = nil
		if failed {
			m.Diagnostics = []diag.Diagnostic{diag.Error(diag.KindParse, m.Identifier, "Unexpected token")}
		}
	}))
}

func TestFailedRebuildRestoresSnapshot(t *testing.T) {
	g := newGraph(t, "/src/a.js")
	f := New()

	took, err := f.AnalyzeForceBuildModule(g, id("/src/a.js"))
	require.NoError(t, err)
	assert.True(t, took)

	rebuild(t, g, "/src/a.js", brokenMeta, true)
	restored, err := f.FixArtifact(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, []ident.ModuleIdentifier{id("/src/a.js")}, restored)

	m, _ := g.ModuleByIdentifier(id("/src/a.js"))
	assert.Equal(t, esmMeta, m.BuildMeta)
	assert.Len(t, m.Diagnostics, 1, "diagnostics stay; only the shape is restored")
}

func TestSuccessfulRebuildKeepsFreshMeta(t *testing.T) {
	g := newGraph(t, "/src/a.js")
	f := New()
	_, err := f.AnalyzeForceBuildModule(g, id("/src/a.js"))
	require.NoError(t, err)

	fresh := graph.BuildMeta{ExportsType: graph.MetaExportsDynamic}
	rebuild(t, g, "/src/a.js", fresh, false)
	restored, err := f.FixArtifact(context.Background(), g)
	require.NoError(t, err)
	assert.Empty(t, restored)

	m, _ := g.ModuleByIdentifier(id("/src/a.js"))
	assert.Equal(t, fresh, m.BuildMeta)
}

func TestFirstSnapshotWins(t *testing.T) {
	g := newGraph(t, "/src/a.js")
	f := New()
	_, err := f.AnalyzeForceBuildModule(g, id("/src/a.js"))
	require.NoError(t, err)

	// The module changes shape before a second analyze in the same pass.
	rebuild(t, g, "/src/a.js", graph.BuildMeta{ExportsType: graph.MetaExportsDynamic}, false)
	took, err := f.AnalyzeForceBuildModule(g, id("/src/a.js"))
	require.NoError(t, err)
	assert.False(t, took)

	snap, ok := f.Snapshot(id("/src/a.js"))
	require.True(t, ok)
	assert.Equal(t, esmMeta, snap)

	rebuild(t, g, "/src/a.js", brokenMeta, true)
	_, err = f.FixArtifact(context.Background(), g)
	require.NoError(t, err)
	m, _ := g.ModuleByIdentifier(id("/src/a.js"))
	assert.Equal(t, esmMeta, m.BuildMeta)
}

func TestOnlyRecordedModulesAreRestored(t *testing.T) {
	g := newGraph(t, "/src/a.js", "/src/b.js")
	f := New()
	_, err := f.AnalyzeForceBuildModule(g, id("/src/a.js"))
	require.NoError(t, err)

	rebuild(t, g, "/src/a.js", brokenMeta, true)
	rebuild(t, g, "/src/b.js", brokenMeta, true)

	restored, err := f.FixArtifact(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, []ident.ModuleIdentifier{id("/src/a.js")}, restored)

	b, _ := g.ModuleByIdentifier(id("/src/b.js"))
	assert.Equal(t, brokenMeta, b.BuildMeta, "no snapshot, first build: keep fresh meta")
}

func TestRemovedModulesAreSkipped(t *testing.T) {
	g := newGraph(t, "/src/a.js")
	f := New()
	_, err := f.AnalyzeForceBuildModule(g, id("/src/a.js"))
	require.NoError(t, err)
	require.True(t, g.RemoveModule(id("/src/a.js")))

	restored, err := f.FixArtifact(context.Background(), g)
	require.NoError(t, err)
	assert.Empty(t, restored)
}

func TestUnknownModuleIsIgnored(t *testing.T) {
	f := New()
	took, err := f.AnalyzeForceBuildModule(graph.New(), id("/src/none.js"))
	require.NoError(t, err)
	assert.False(t, took)
	assert.Equal(t, 0, f.Len())
}

func TestSnapshotSetIsConsumedOnce(t *testing.T) {
	g := newGraph(t, "/src/a.js")
	f := New()
	_, err := f.FixArtifact(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, Done, f.State())

	_, err = f.FixArtifact(context.Background(), g)
	assert.True(t, errors.Is(err, diag.ErrAlreadyApplied))

	_, err = f.AnalyzeForceBuildModule(g, id("/src/a.js"))
	assert.True(t, errors.Is(err, diag.ErrAlreadyApplied))
}

// failingArtifact rejects every write.
type failingArtifact struct {
	*graph.Graph
	err error
}

func (a failingArtifact) MutateModule(ident.ModuleIdentifier, func(*graph.Module)) error {
	return a.err
}

func TestFailedRestoreStillConsumesSet(t *testing.T) {
	g := newGraph(t, "/src/a.js")
	f := New()
	_, err := f.AnalyzeForceBuildModule(g, id("/src/a.js"))
	require.NoError(t, err)
	rebuild(t, g, "/src/a.js", brokenMeta, true)

	boom := errors.New("module removed")
	restored, err := f.FixArtifact(context.Background(), failingArtifact{Graph: g, err: boom})
	require.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "restore build meta of "+string(id("/src/a.js")))
	assert.Empty(t, restored)
	assert.Equal(t, Done, f.State())

	_, err = f.FixArtifact(context.Background(), g)
	assert.ErrorIs(t, err, diag.ErrAlreadyApplied)
}

func TestRestoreInvalidatesExportsInfo(t *testing.T) {
	g := graph.New()
	_, err := g.AddModule(&graph.Module{
		Identifier: id("/src/a.js"),
		BuildMeta:  esmMeta,
		BuildInfo:  graph.BuildInfo{NamedExports: []string{"x"}},
	})
	require.NoError(t, err)
	f := New()
	_, err = f.AnalyzeForceBuildModule(g, id("/src/a.js"))
	require.NoError(t, err)

	rebuild(t, g, "/src/a.js", brokenMeta, true)
	broken, err := g.GetPrefetchedExportsInfo(id("/src/a.js"), graph.PrefetchFull(), "")
	require.NoError(t, err)
	assert.Equal(t, graph.ProvisionUnknown, broken.OtherProvided)

	_, err = f.FixArtifact(context.Background(), g)
	require.NoError(t, err)
	fixed, err := g.GetPrefetchedExportsInfo(id("/src/a.js"), graph.PrefetchFull(), "")
	require.NoError(t, err)
	assert.Equal(t, graph.NotProvided, fixed.OtherProvided)
	assert.Equal(t, []string{"x"}, fixed.ProvidedNames())
}
