package resolve

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
)

// Package is a parsed package.json.
type Package struct {
	Dir                  string            `json:"-"`
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Type                 string            `json:"type"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`

	raw map[string]json.RawMessage
}

// Field returns a string-valued top-level field such as "main".
func (p *Package) Field(name string) (string, bool) {
	msg, ok := p.raw[name]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(msg, &s); err != nil || s == "" {
		return "", false
	}
	return s, true
}

// IsModule reports whether the package declares "type": "module".
func (p *Package) IsModule() bool { return p.Type == "module" }

// ReadPackage reads dir/package.json. It returns (nil, nil) when there is
// none.
func ReadPackage(fsys ReadableFS, dir string) (*Package, error) {
	data, err := fsys.ReadFile(path.Join(dir, "package.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p := &Package{Dir: dir}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse %s/package.json: %w", dir, err)
	}
	if err := json.Unmarshal(data, &p.raw); err != nil {
		return nil, fmt.Errorf("parse %s/package.json: %w", dir, err)
	}
	return p, nil
}

// FindPackage returns the nearest package.json at or above dir.
func FindPackage(fsys ReadableFS, dir string) (*Package, error) {
	for d := path.Clean(dir); ; d = path.Dir(d) {
		p, err := ReadPackage(fsys, d)
		if err != nil || p != nil {
			return p, err
		}
		if d == "/" || d == "." {
			return nil, nil
		}
	}
}
