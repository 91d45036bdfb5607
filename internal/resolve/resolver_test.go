package resolve

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func project() *MapFS {
	return NewMapFS(map[string]string{
		"/app/package.json":                         `{"name": "app", "type": "module", "dependencies": {"lodash": "^4.17.0"}}`,
		"/app/src/index.js":                         "",
		"/app/src/util.ts":                          "",
		"/app/src/data.json":                        "{}",
		"/app/src/lib/index.js":                     "",
		"/app/src/shim.js":                          "",
		"/app/node_modules/lodash/package.json":     `{"name": "lodash", "version": "4.17.21", "main": "lodash.js"}`,
		"/app/node_modules/lodash/lodash.js":        "",
		"/app/node_modules/lodash/fp.js":            "",
		"/app/node_modules/@scope/pkg/package.json": `{"name": "@scope/pkg", "version": "1.0.0", "module": "esm/index.js", "main": "cjs/index.js"}`,
		"/app/node_modules/@scope/pkg/esm/index.js": "",
		"/app/node_modules/@scope/pkg/cjs/index.js": "",
		"/app/node_modules/nomain/index.js":         "",
		"/app/src/node_modules/local-only/index.js": "",
	})
}

func newResolver(t *testing.T, fsys ReadableFS, mutate func(*Options)) *FSResolver {
	t.Helper()
	opts := DefaultOptions()
	if mutate != nil {
		mutate(&opts)
	}
	r, err := New(fsys, opts)
	require.NoError(t, err)
	return r
}

func TestResolve(t *testing.T) {
	r := newResolver(t, project(), func(o *Options) {
		o.Alias = map[string]Alias{
			"@shim": {Target: "/app/src/shim.js"},
			"@lib":  {Target: "/app/src/lib"},
			"fs":    {Ignored: true},
		}
	})

	tests := []struct {
		name    string
		dir     string
		request string
		want    Result
	}{
		{"relative with extension", "/app/src", "./index.js", Result{Path: "/app/src/index.js"}},
		{"relative without extension", "/app/src", "./util", Result{Path: "/app/src/util.ts"}},
		{"json", "/app/src", "./data", Result{Path: "/app/src/data.json"}},
		{"directory index", "/app/src", "./lib", Result{Path: "/app/src/lib/index.js"}},
		{"parent directory", "/app/src/lib", "../index", Result{Path: "/app/src/index.js"}},
		{"absolute", "/", "/app/src/util", Result{Path: "/app/src/util.ts"}},
		{"package main", "/app/src", "lodash", Result{Path: "/app/node_modules/lodash/lodash.js"}},
		{"package subpath", "/app/src", "lodash/fp", Result{Path: "/app/node_modules/lodash/fp.js"}},
		{"main fields in order", "/app/src", "@scope/pkg", Result{Path: "/app/node_modules/@scope/pkg/esm/index.js"}},
		{"package without main", "/app/src", "nomain", Result{Path: "/app/node_modules/nomain/index.js"}},
		{"nearest node_modules", "/app/src/lib", "local-only", Result{Path: "/app/src/node_modules/local-only/index.js"}},
		{"exact alias", "/app/src", "@shim", Result{Path: "/app/src/shim.js"}},
		{"alias subpath", "/app/src", "@lib/index", Result{Path: "/app/src/lib/index.js"}},
		{"ignored alias", "/app/src", "fs", Result{Ignored: true}},
		{"ignored alias subpath", "/app/src", "fs/promises", Result{Ignored: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(context.Background(), tt.dir, tt.request)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveNotFound(t *testing.T) {
	r := newResolver(t, project(), nil)

	for _, request := range []string{"./missing", "missing-pkg", "/app/src/lib/nope"} {
		_, err := r.Resolve(context.Background(), "/app/src", request)
		require.Error(t, err, request)
		assert.True(t, IsNotFound(err), request)
	}
	_, err := r.Resolve(context.Background(), "/app/src", "./missing")
	assert.EqualError(t, err, "Can't resolve './missing' in '/app/src'")
}

func TestResolveCachesUntilPurge(t *testing.T) {
	fsys := project()
	r := newResolver(t, fsys, nil)
	ctx := context.Background()

	got, err := r.Resolve(ctx, "/app/src", "./util")
	require.NoError(t, err)
	assert.Equal(t, "/app/src/util.ts", got.Path)

	fsys.Write("/app/src/util.js", "", time.Unix(1, 0))
	got, err = r.Resolve(ctx, "/app/src", "./util")
	require.NoError(t, err)
	assert.Equal(t, "/app/src/util.ts", got.Path, "cached")

	r.Purge()
	got, err = r.Resolve(ctx, "/app/src", "./util")
	require.NoError(t, err)
	assert.Equal(t, "/app/src/util.js", got.Path)
}

func TestResolveDoesNotCacheMisses(t *testing.T) {
	fsys := project()
	r := newResolver(t, fsys, nil)
	ctx := context.Background()

	_, err := r.Resolve(ctx, "/app/src", "./later")
	require.Error(t, err)

	fsys.Write("/app/src/later.js", "", time.Unix(1, 0))
	got, err := r.Resolve(ctx, "/app/src", "./later")
	require.NoError(t, err)
	assert.Equal(t, "/app/src/later.js", got.Path)
}

func TestResolveCanceled(t *testing.T) {
	r := newResolver(t, project(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Resolve(ctx, "/app/src", "./index")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPackageName(t *testing.T) {
	tests := map[string]string{
		"lodash":           "lodash",
		"lodash/fp":        "lodash",
		"@scope/pkg":       "@scope/pkg",
		"@scope/pkg/a/b":   "@scope/pkg",
		"@scope":           "",
		"./local":          "",
		"../up":            "",
		"/abs":             "",
		"react-dom/client": "react-dom",
	}
	for request, want := range tests {
		assert.Equal(t, want, PackageName(request), request)
	}
}

func TestFindPackage(t *testing.T) {
	fsys := project()

	pkg, err := FindPackage(fsys, "/app/src/lib")
	require.NoError(t, err)
	require.NotNil(t, pkg)
	assert.Equal(t, "app", pkg.Name)
	assert.Equal(t, "/app", pkg.Dir)
	assert.True(t, pkg.IsModule())
	assert.Equal(t, "^4.17.0", pkg.Dependencies["lodash"])

	pkg, err = FindPackage(fsys, "/app/node_modules/@scope/pkg/esm")
	require.NoError(t, err)
	main, ok := pkg.Field("main")
	assert.True(t, ok)
	assert.Equal(t, "cjs/index.js", main)
	_, ok = pkg.Field("browser")
	assert.False(t, ok)

	pkg, err = FindPackage(fsys, "/elsewhere")
	require.NoError(t, err)
	assert.Nil(t, pkg)
}

func TestReadPackageInvalid(t *testing.T) {
	fsys := NewMapFS(map[string]string{"/bad/package.json": "{"})
	_, err := ReadPackage(fsys, "/bad")
	assert.ErrorContains(t, err, "parse /bad/package.json")
}

func TestMapFS(t *testing.T) {
	fsys := NewMapFS(map[string]string{
		"/a/b.js":   "b",
		"/a/c/d.js": "d",
	})

	entries, err := fsys.ReadDir("/a")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b.js", entries[0].Name())
	assert.False(t, entries[0].IsDir())
	assert.Equal(t, "c", entries[1].Name())
	assert.True(t, entries[1].IsDir())

	info, err := fsys.Stat("/a/c")
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = fsys.ReadFile("/a/x.js")
	assert.ErrorContains(t, err, "file does not exist")

	fsys.Remove("/a/b.js")
	_, err = fsys.Stat("/a/b.js")
	assert.Error(t, err)
}
