package resolve

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// ReadableFS is the file system the resolver and the build read from.
// Paths are absolute and slash separated.
type ReadableFS interface {
	ReadFile(name string) ([]byte, error)
	Stat(name string) (fs.FileInfo, error)
	ReadDir(name string) ([]fs.DirEntry, error)
}

// OSFS reads the real file system.
type OSFS struct{}

func (OSFS) ReadFile(name string) ([]byte, error)       { return os.ReadFile(filepath.FromSlash(name)) }
func (OSFS) Stat(name string) (fs.FileInfo, error)      { return os.Stat(filepath.FromSlash(name)) }
func (OSFS) ReadDir(name string) ([]fs.DirEntry, error) { return os.ReadDir(filepath.FromSlash(name)) }

// MapFS is an in-memory file system keyed by absolute path. Directories are
// implied by the files below them. Safe for concurrent use; Write and
// Remove make it usable as the backing store of watch tests.
type MapFS struct {
	mu    sync.RWMutex
	files map[string]mapFile
}

type mapFile struct {
	data    []byte
	modTime time.Time
}

// NewMapFS creates a file system holding files.
func NewMapFS(files map[string]string) *MapFS {
	m := &MapFS{files: make(map[string]mapFile, len(files))}
	for name, data := range files {
		m.files[path.Clean(name)] = mapFile{data: []byte(data)}
	}
	return m
}

// Write creates or replaces a file.
func (m *MapFS) Write(name, data string, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path.Clean(name)] = mapFile{data: []byte(data), modTime: modTime}
}

// Remove deletes a file.
func (m *MapFS) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path.Clean(name))
}

func (m *MapFS) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[path.Clean(name)]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	return slices.Clone(f.data), nil
}

func (m *MapFS) Stat(name string) (fs.FileInfo, error) {
	name = path.Clean(name)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if f, ok := m.files[name]; ok {
		return mapInfo{name: path.Base(name), size: int64(len(f.data)), modTime: f.modTime}, nil
	}
	if m.isDirLocked(name) {
		return mapInfo{name: path.Base(name), dir: true}, nil
	}
	return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
}

func (m *MapFS) ReadDir(name string) ([]fs.DirEntry, error) {
	name = path.Clean(name)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.isDirLocked(name) {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	prefix := strings.TrimSuffix(name, "/") + "/"
	seen := make(map[string]mapInfo)
	for file, f := range m.files {
		rest, ok := strings.CutPrefix(file, prefix)
		if !ok {
			continue
		}
		if child, _, nested := strings.Cut(rest, "/"); nested {
			seen[child] = mapInfo{name: child, dir: true}
		} else {
			seen[rest] = mapInfo{name: rest, size: int64(len(f.data)), modTime: f.modTime}
		}
	}
	out := make([]fs.DirEntry, 0, len(seen))
	for _, info := range seen {
		out = append(out, fs.FileInfoToDirEntry(info))
	}
	slices.SortFunc(out, func(a, b fs.DirEntry) int { return strings.Compare(a.Name(), b.Name()) })
	return out, nil
}

func (m *MapFS) isDirLocked(name string) bool {
	if name == "/" {
		return len(m.files) > 0
	}
	prefix := name + "/"
	for file := range m.files {
		if strings.HasPrefix(file, prefix) {
			return true
		}
	}
	return false
}

type mapInfo struct {
	name    string
	size    int64
	modTime time.Time
	dir     bool
}

func (i mapInfo) Name() string       { return i.name }
func (i mapInfo) Size() int64        { return i.size }
func (i mapInfo) ModTime() time.Time { return i.modTime }
func (i mapInfo) IsDir() bool        { return i.dir }
func (i mapInfo) Sys() any           { return nil }

func (i mapInfo) Mode() fs.FileMode {
	if i.dir {
		return fs.ModeDir | 0o755
	}
	return 0o644
}
