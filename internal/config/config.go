// Package config loads a project's jsgraph.cue into compiler options.
//
// The file is unified with an embedded #Config definition that fills in
// defaults and rejects unknown fields. Environment variables, read from the
// process or from a .env file next to the config, override a few settings:
//
//	JSGRAPH_PARALLELISM  parallelism
//	JSGRAPH_JOURNAL      journal
//	JSGRAPH_MINIFY       output.minify
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/jsgraph/internal/chunk"
	"github.com/roach88/jsgraph/internal/compilation"
	"github.com/roach88/jsgraph/internal/resolve"
	"github.com/roach88/jsgraph/internal/sharing"
)

// FileName is the config file looked up in the project directory.
const FileName = "jsgraph.cue"

//go:embed schema.cue
var schemaCUE string

// Error codes of LoadError.
const (
	ErrCodeGeneric     = "E001"
	ErrCodeLoadFailed  = "E004"
	ErrCodeNotFound    = "E005"
	ErrCodeBuildFailed = "E006"
	ErrCodeInvalid     = "E201" // value rejected by #Config
	ErrCodeInvalidEnv  = "E202" // unparseable environment override
)

// LoadError is a config failure, with the CUE position when known.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Config is a loaded project configuration.
type Config struct {
	// Dir is the absolute directory the config was loaded from.
	Dir string
	// OutputPath is the absolute directory assets are written to.
	OutputPath string
	// Journal is the absolute journal path, or "" when disabled.
	Journal     string
	Compilation compilation.Options
}

// file mirrors #Config. resolve.alias is read separately since its values
// are either strings or false.
type file struct {
	Context string            `json:"context"`
	Entry   map[string]string `json:"entry"`
	Output  struct {
		Path               string `json:"path"`
		PublicPath         string `json:"publicPath"`
		Pathinfo           bool   `json:"pathinfo"`
		ArrowFunctions     bool   `json:"arrowFunctions"`
		Minify             bool   `json:"minify"`
		AsyncChunkName     bool   `json:"asyncChunkName"`
		ChunkLoadingGlobal string `json:"chunkLoadingGlobal"`
		UniqueName         string `json:"uniqueName"`
		TrustedTypes       string `json:"trustedTypes"`
	} `json:"output"`
	Resolve struct {
		Extensions []string `json:"extensions"`
		MainFields []string `json:"mainFields"`
	} `json:"resolve"`
	ModuleIDs   string `json:"moduleIds"`
	Parallelism int    `json:"parallelism"`
	Bail        bool   `json:"bail"`
	Shared      map[string]struct {
		RequiredVersion string `json:"requiredVersion"`
		Singleton       bool   `json:"singleton"`
		StrictVersion   bool   `json:"strictVersion"`
	} `json:"shared"`
	Journal string `json:"journal"`
}

// Load reads the config of the project in dir. A project without a
// jsgraph.cue gets the defaults. getenv looks up overrides before the .env
// file; nil means os.LookupEnv.
func Load(dir string, getenv func(string) (string, bool)) (*Config, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("resolve %s: %v", dir, err)}
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("project directory not found: %s", dir)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	ctx := cuecontext.New()
	value, err := loadValue(ctx, dir)
	if err != nil {
		return nil, err
	}
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("compile schema: %v", err)}
	}
	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, invalid(err)
	}

	var f file
	if err := v.Decode(&f); err != nil {
		return nil, invalid(err)
	}
	alias, err := decodeAlias(v.LookupPath(cue.ParsePath("resolve.alias")))
	if err != nil {
		return nil, err
	}

	env, err := newEnv(dir, getenv)
	if err != nil {
		return nil, err
	}
	if err := env.apply(&f); err != nil {
		return nil, err
	}
	return build(dir, f, alias), nil
}

// loadValue builds the config file, or an empty value when there is none.
func loadValue(ctx *cue.Context, dir string) (cue.Value, error) {
	if _, err := os.Stat(filepath.Join(dir, FileName)); errors.Is(err, os.ErrNotExist) {
		return ctx.CompileString("{}"), nil
	}
	instances := load.Instances([]string{FileName}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading %s: %v", FileName, inst.Err)}
	}
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return cue.Value{}, positioned(ErrCodeBuildFailed, err)
	}
	return value, nil
}

func decodeAlias(v cue.Value) (map[string]resolve.Alias, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, invalid(err)
	}
	out := make(map[string]resolve.Alias)
	for iter.Next() {
		val := iter.Value()
		if val.Kind() == cue.BoolKind {
			// only false passes the schema
			out[iter.Label()] = resolve.Alias{Ignored: true}
			continue
		}
		target, err := val.String()
		if err != nil {
			return nil, invalid(err)
		}
		out[iter.Label()] = resolve.Alias{Target: target}
	}
	return out, nil
}

func build(dir string, f file, alias map[string]resolve.Alias) *Config {
	abs := func(p string) string {
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Join(dir, p)
	}
	root := abs(f.Context)

	opts := compilation.Options{
		Context: filepath.ToSlash(root),
		Entry:   f.Entry,
		Output: compilation.Output{
			PublicPath:         f.Output.PublicPath,
			Pathinfo:           f.Output.Pathinfo,
			ArrowFunctions:     f.Output.ArrowFunctions,
			Minify:             f.Output.Minify,
			AsyncChunkName:     f.Output.AsyncChunkName,
			ChunkLoadingGlobal: f.Output.ChunkLoadingGlobal,
			UniqueName:         f.Output.UniqueName,
			TrustedTypes:       f.Output.TrustedTypes,
		},
		Resolve:     resolve.DefaultOptions(),
		IDs:         chunk.IDs(f.ModuleIDs),
		Parallelism: f.Parallelism,
		Bail:        f.Bail,
	}
	opts.Resolve.Extensions = f.Resolve.Extensions
	opts.Resolve.MainFields = f.Resolve.MainFields
	if len(alias) > 0 {
		opts.Resolve.Alias = alias
	}
	if len(f.Shared) > 0 {
		opts.Shared = make(map[string]sharing.Config, len(f.Shared))
		for key, s := range f.Shared {
			opts.Shared[key] = sharing.Config{
				RequiredVersion: s.RequiredVersion,
				Singleton:       s.Singleton,
				StrictVersion:   s.StrictVersion,
			}
		}
	}

	cfg := &Config{
		Dir:         dir,
		OutputPath:  filepath.Join(root, f.Output.Path),
		Compilation: opts,
	}
	if filepath.IsAbs(f.Output.Path) {
		cfg.OutputPath = filepath.Clean(f.Output.Path)
	}
	if f.Journal != "" {
		cfg.Journal = abs(f.Journal)
	}
	return cfg
}

// Entries returns the entry names in order.
func (c *Config) Entries() []string {
	names := make([]string, 0, len(c.Compilation.Entry))
	for name := range c.Compilation.Entry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// invalid converts a schema violation into a LoadError at its first
// position.
func invalid(err error) *LoadError {
	return positioned(ErrCodeInvalid, err)
}

func positioned(code string, err error) *LoadError {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{Code: code, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
