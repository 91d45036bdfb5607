package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/jsgraph/internal/ident"
	"github.com/roach88/jsgraph/internal/journal"
	"github.com/roach88/jsgraph/internal/testutil"
)

// builtProject builds the app fixture n times and returns its directory.
func builtProject(t *testing.T, n int) string {
	t.Helper()
	dir := testutil.MustProject(t, "app")
	for range n {
		_, err := run(t, NewBuildCommand(&RootOptions{Format: "text"}), dir)
		require.NoError(t, err)
	}
	return dir
}

func TestHistoryListsPasses(t *testing.T) {
	dir := builtProject(t, 3)

	out, err := run(t, NewHistoryCommand(&RootOptions{Format: "json"}), dir)
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   []journal.Pass `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 3)
	for i, p := range resp.Data {
		assert.Equal(t, int64(i+1), p.Seq)
		assert.Equal(t, "build", p.Kind)
		assert.Equal(t, 3, p.Modules)
	}
	assert.Equal(t, resp.Data[0].Hash, resp.Data[2].Hash, "unchanged sources hash the same")

	out, err = run(t, NewHistoryCommand(&RootOptions{Format: "json"}), "--limit", "1", dir)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, int64(3), resp.Data[0].Seq)
}

func TestHistoryShowsLatestPass(t *testing.T) {
	dir := builtProject(t, 1)

	out, err := run(t, NewHistoryCommand(&RootOptions{Format: "json"}), "--pass", "latest", dir)
	require.NoError(t, err)

	resp := decodePass(t, out)
	assert.Equal(t, "build", resp.Data.Kind)
	assert.Equal(t, 3, resp.Data.Built)
	assert.Equal(t, []string{"main.js", "src_lazy_js.js"}, assetNamesOf(resp.Data))
}

func TestHistoryUnknownPass(t *testing.T) {
	dir := builtProject(t, 1)

	out, err := run(t, NewHistoryCommand(&RootOptions{Format: "text"}), "--pass", "nope", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, `pass "nope" not found`)
}

func TestHistoryOfModule(t *testing.T) {
	dir := builtProject(t, 2)
	index := ident.NewModuleIdentifier(ident.TypeJavaScriptAuto, filepath.ToSlash(filepath.Join(dir, "src", "index.js")))

	out, err := run(t, NewHistoryCommand(&RootOptions{Format: "json"}), "--module", string(index), dir)
	require.NoError(t, err)

	var resp struct {
		Data ModuleTimeline `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, string(index), resp.Data.Module)
	var seqs []int64
	for _, e := range resp.Data.Events {
		if e.Event == journal.EventBuilt {
			seqs = append(seqs, e.Seq)
		}
	}
	assert.Equal(t, []int64{1, 2}, seqs)
}

func TestHistoryPassAndModuleAreExclusive(t *testing.T) {
	dir := builtProject(t, 1)
	_, err := run(t, NewHistoryCommand(&RootOptions{Format: "text"}), "--pass", "latest", "--module", "x", dir)
	assert.Error(t, err)
}

func TestHistoryWithoutJournal(t *testing.T) {
	dir := testutil.MustProject(t, "nojournal")

	out, err := run(t, NewHistoryCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "no journal configured")
}
