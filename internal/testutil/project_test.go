package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProject(t *testing.T) {
	p, err := LoadProject("app")
	require.NoError(t, err)
	assert.Equal(t, "app", p.Name)
	assert.Equal(t, []string{"jsgraph.cue", "package.json", "src/greet.js", "src/index.js", "src/lazy.js"}, p.Paths())
}

func TestLoadProjectUnknownFixture(t *testing.T) {
	_, err := LoadProject("nope")
	assert.ErrorContains(t, err, "failed to read fixture nope")
}

func TestParseProjectRejectsInvalidFixtures(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "name: x\nfile:\n  a.js: ''\n", "field file not found"},
		{"no name", "files:\n  a.js: ''\n", "name is required"},
		{"no files", "name: x\n", "files must be non-empty"},
		{"absolute path", "name: x\nfiles:\n  /etc/a.js: ''\n", "must be relative"},
		{"escaping path", "name: x\nfiles:\n  ../a.js: ''\n", "must be relative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProject([]byte(tt.yaml))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestWriteMaterializesFiles(t *testing.T) {
	dir := MustProject(t, "broken")
	data, err := os.ReadFile(filepath.Join(dir, "src", "index.js"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "./missing.js")
}
