// Package testutil provides fixture projects for tests that run the
// compiler against a real directory.
//
// A fixture is a YAML file under testdata/projects naming the files of a
// project:
//
//	name: app
//	description: entry with a lazy chunk
//	files:
//	  src/index.js: |
//	    import('./lazy.js');
//
// Write materializes it into a temporary directory.
package testutil

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

//go:embed testdata/projects/*.yaml
var projects embed.FS

// Project is a fixture project.
type Project struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Files       map[string]string `yaml:"files"`
}

// LoadProject parses the fixture named name.
func LoadProject(name string) (*Project, error) {
	data, err := projects.ReadFile(path.Join("testdata/projects", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture %s: %w", name, err)
	}
	return ParseProject(data)
}

// ParseProject parses a fixture, rejecting unknown fields.
func ParseProject(data []byte) (*Project, error) {
	var p Project
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("invalid fixture: %w", err)
	}
	return &p, nil
}

func (p *Project) validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(p.Files) == 0 {
		return fmt.Errorf("files must be non-empty")
	}
	for name := range p.Files {
		if path.IsAbs(name) || strings.HasPrefix(path.Clean(name), "..") {
			return fmt.Errorf("file %q must be relative to the project", name)
		}
	}
	return nil
}

// Paths returns the fixture's file names, sorted.
func (p *Project) Paths() []string {
	out := make([]string, 0, len(p.Files))
	for name := range p.Files {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Write materializes the project in a new temporary directory and returns
// the directory.
func (p *Project) Write(t testing.TB) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range p.Paths() {
		WriteFile(t, dir, name, p.Files[name])
	}
	return dir
}

// WriteFile writes one file of a project, creating its directory.
func WriteFile(t testing.TB, dir, name, content string) {
	t.Helper()
	full := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("create %s: %v", filepath.Dir(full), err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", full, err)
	}
}

// MustProject loads and writes the fixture named name.
func MustProject(t testing.TB, name string) string {
	t.Helper()
	p, err := LoadProject(name)
	if err != nil {
		t.Fatal(err)
	}
	return p.Write(t)
}
