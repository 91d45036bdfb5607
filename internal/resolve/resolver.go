// Package resolve turns the requests found in modules into file paths. It
// implements the subset of node resolution a bundler core needs: relative
// and absolute paths, extensions, directory indexes, package.json main
// fields, node_modules lookup and aliases.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roach88/jsgraph/internal/ident"
)

// Result is a resolved request.
type Result struct {
	Path    string // absolute path of the resolved file, empty when ignored
	Ignored bool   // an alias maps the request to false
}

// Resolver resolves a request issued from a directory.
type Resolver interface {
	Resolve(ctx context.Context, dir, request string) (Result, error)
}

// Alias rewrites a request prefix. An ignored alias resolves every matching
// request to an empty module.
type Alias struct {
	Target  string
	Ignored bool
}

// Options configure an FSResolver.
type Options struct {
	Extensions []string
	Alias      map[string]Alias
	MainFields []string
	Modules    []string
	CacheSize  int
}

// DefaultOptions resolve like a browser-targeting webpack config.
func DefaultOptions() Options {
	return Options{
		Extensions: []string{".js", ".mjs", ".cjs", ".ts", ".json"},
		MainFields: []string{"browser", "module", "main"},
		Modules:    []string{"node_modules"},
		CacheSize:  4096,
	}
}

// NotFoundError is returned when no candidate exists.
type NotFoundError struct {
	Dir     string
	Request string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Can't resolve '%s' in '%s'", e.Request, e.Dir)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// FSResolver resolves against a ReadableFS. Successful resolutions are
// cached by interned (dir, request) key until Purge; misses are not, so a
// file created later is found by the next attempt.
type FSResolver struct {
	fs    ReadableFS
	opts  Options
	keys  *ident.Interner
	cache *lru.Cache[ident.RequestKey, Result]
}

func New(fsys ReadableFS, opts Options) (*FSResolver, error) {
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultOptions().CacheSize
	}
	cache, err := lru.New[ident.RequestKey, Result](size)
	if err != nil {
		return nil, fmt.Errorf("create resolve cache: %w", err)
	}
	if len(opts.Modules) == 0 {
		opts.Modules = []string{"node_modules"}
	}
	return &FSResolver{fs: fsys, opts: opts, keys: ident.NewInterner(), cache: cache}, nil
}

// Purge drops every cached resolution. Rebuilds call it when files were
// added or removed.
func (r *FSResolver) Purge() { r.cache.Purge() }

// FS returns the file system the resolver reads.
func (r *FSResolver) FS() ReadableFS { return r.fs }

func (r *FSResolver) Resolve(ctx context.Context, dir, request string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	key := r.keys.Intern(dir, request)
	if res, ok := r.cache.Get(key); ok {
		return res, nil
	}
	res, err := r.resolve(dir, request)
	if err != nil {
		return Result{}, err
	}
	r.cache.Add(key, res)
	return res, nil
}

func (r *FSResolver) resolve(dir, request string) (Result, error) {
	target, alias, ok := r.alias(request)
	if ok && alias.Ignored {
		return Result{Ignored: true}, nil
	}
	var p string
	switch {
	case strings.HasPrefix(target, "/"):
		p = path.Clean(target)
	case target == "." || target == ".." || strings.HasPrefix(target, "./") || strings.HasPrefix(target, "../"):
		p = path.Join(dir, target)
	default:
		if found, ok := r.resolveModule(dir, target); ok {
			return Result{Path: found}, nil
		}
		return Result{}, &NotFoundError{Dir: dir, Request: request}
	}
	if found, ok := r.resolvePath(p); ok {
		return Result{Path: found}, nil
	}
	return Result{}, &NotFoundError{Dir: dir, Request: request}
}

// alias applies the longest matching alias: an exact key, or a key followed
// by "/" and a subpath.
func (r *FSResolver) alias(request string) (string, Alias, bool) {
	best := ""
	for key := range r.opts.Alias {
		if (request == key || strings.HasPrefix(request, key+"/")) && len(key) > len(best) {
			best = key
		}
	}
	if best == "" {
		return request, Alias{}, false
	}
	a := r.opts.Alias[best]
	return a.Target + strings.TrimPrefix(request, best), a, true
}

func (r *FSResolver) resolvePath(p string) (string, bool) {
	if found, ok := r.tryFile(p); ok {
		return found, true
	}
	return r.tryDirectory(p)
}

func (r *FSResolver) isFile(p string) bool {
	info, err := r.fs.Stat(p)
	return err == nil && !info.IsDir()
}

func (r *FSResolver) tryFile(p string) (string, bool) {
	if r.isFile(p) {
		return p, true
	}
	for _, ext := range r.opts.Extensions {
		if r.isFile(p + ext) {
			return p + ext, true
		}
	}
	return "", false
}

func (r *FSResolver) tryDirectory(dir string) (string, bool) {
	if pkg, err := ReadPackage(r.fs, dir); err == nil && pkg != nil {
		for _, field := range r.opts.MainFields {
			main, ok := pkg.Field(field)
			if !ok {
				continue
			}
			p := path.Join(dir, main)
			if found, ok := r.tryFile(p); ok {
				return found, true
			}
			if found, ok := r.tryFile(path.Join(p, "index")); ok {
				return found, true
			}
		}
	}
	return r.tryFile(path.Join(dir, "index"))
}

// resolveModule searches the module directories of dir and its ancestors.
func (r *FSResolver) resolveModule(dir, request string) (string, bool) {
	for d := path.Clean(dir); ; d = path.Dir(d) {
		for _, modules := range r.opts.Modules {
			if path.Base(d) == modules {
				continue
			}
			if found, ok := r.resolvePath(path.Join(d, modules, request)); ok {
				return found, true
			}
		}
		if d == "/" || d == "." {
			return "", false
		}
	}
}

// PackageName returns the package part of a bare request: "lodash" for
// "lodash/fp", "@scope/pkg" for "@scope/pkg/sub". It returns "" for
// relative and absolute requests.
func PackageName(request string) string {
	if request == "" || strings.HasPrefix(request, ".") || strings.HasPrefix(request, "/") {
		return ""
	}
	parts := strings.SplitN(request, "/", 3)
	if strings.HasPrefix(request, "@") {
		if len(parts) < 2 {
			return ""
		}
		return parts[0] + "/" + parts[1]
	}
	return parts[0]
}
