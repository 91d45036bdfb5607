package watch

import (
	"context"
	"errors"
	"io/fs"
	"path"
	"slices"
	"time"

	"github.com/roach88/jsgraph/internal/resolve"
)

// stamp is what the poller compares to tell whether a file changed.
type stamp struct {
	modTime time.Time
	size    int64
}

// snapshot maps file paths under the root to their stamps.
type snapshot map[string]stamp

// scan walks root and stamps every file, skipping directories whose name
// is in skip and any file or directory whose path is in skipPaths. A root
// that does not exist scans as empty.
func scan(ctx context.Context, fsys resolve.ReadableFS, root string, skip, skipPaths map[string]bool) (snapshot, error) {
	out := make(snapshot)
	stack := []string{root}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		entries, err := fsys.ReadDir(dir)
		if err != nil {
			if dir == root && errors.Is(err, fs.ErrNotExist) {
				return out, nil
			}
			// a directory removed mid-scan
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		for _, e := range entries {
			p := path.Join(dir, e.Name())
			if skipPaths[p] {
				continue
			}
			if e.IsDir() {
				if !skip[e.Name()] {
					stack = append(stack, p)
				}
				continue
			}
			info, err := e.Info()
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return nil, err
			}
			out[p] = stamp{modTime: info.ModTime(), size: info.Size()}
		}
	}
	return out, nil
}

// diff returns the files added, modified or removed between two
// snapshots, sorted.
func diff(prev, next snapshot) []string {
	var out []string
	for p, s := range next {
		old, ok := prev[p]
		if !ok || !old.modTime.Equal(s.modTime) || old.size != s.size {
			out = append(out, p)
		}
	}
	for p := range prev {
		if _, ok := next[p]; !ok {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return out
}
