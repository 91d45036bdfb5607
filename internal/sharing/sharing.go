// Package sharing checks packages shared with other builds. A module that
// imports a shared package records the version range it requires; the range
// is checked against the version of the package the build resolved.
package sharing

import (
	"maps"
	"path"
	"slices"
	"strings"

	semver "github.com/Masterminds/semver/v3"

	"github.com/roach88/jsgraph/internal/dependency"
	"github.com/roach88/jsgraph/internal/diag"
	"github.com/roach88/jsgraph/internal/ident"
	"github.com/roach88/jsgraph/internal/resolve"
)

// Config is the sharing configuration of one package.
type Config struct {
	// RequiredVersion is a semver range. When empty it is read from the
	// dependencies of the importer's package.json.
	RequiredVersion string
	Singleton       bool
	// StrictVersion turns version mismatches into errors.
	StrictVersion bool
}

// Consumer matches requests against the shared packages.
type Consumer struct {
	fs     resolve.ReadableFS
	shared map[string]Config
}

func NewConsumer(fsys resolve.ReadableFS, shared map[string]Config) *Consumer {
	return &Consumer{fs: fsys, shared: shared}
}

// Match returns the share key and config of a bare request whose package
// is shared.
func (c *Consumer) Match(request string) (string, Config, bool) {
	name := resolve.PackageName(request)
	if name == "" {
		return "", Config{}, false
	}
	cfg, ok := c.shared[name]
	return name, cfg, ok
}

// Config returns the configuration of a share key.
func (c *Consumer) Config(shareKey string) (Config, bool) {
	cfg, ok := c.shared[shareKey]
	return cfg, ok
}

var dependencyFields = []func(*resolve.Package) map[string]string{
	func(p *resolve.Package) map[string]string { return p.OptionalDependencies },
	func(p *resolve.Package) map[string]string { return p.Dependencies },
	func(p *resolve.Package) map[string]string { return p.PeerDependencies },
	func(p *resolve.Package) map[string]string { return p.DevDependencies },
}

func requiredFromPackage(p *resolve.Package, name string) (string, bool) {
	for _, field := range dependencyFields {
		if v, ok := field(p)[name]; ok {
			return v, true
		}
	}
	return "", false
}

// RequiredVersion returns the range module requires of shareKey. Without a
// configured range it walks package.json files up from dir and takes the
// first one that either is the package itself (a self reference requires
// nothing) or lists it in optionalDependencies, dependencies,
// peerDependencies or devDependencies, in that order.
func (c *Consumer) RequiredVersion(module ident.ModuleIdentifier, dir, shareKey string) (string, []diag.Diagnostic) {
	if cfg, ok := c.shared[shareKey]; ok && cfg.RequiredVersion != "" {
		return cfg.RequiredVersion, nil
	}
	var checked []string
	for d := path.Clean(dir); ; d = path.Dir(d) {
		p, err := resolve.ReadPackage(c.fs, d)
		if err == nil && p != nil {
			if p.Name == shareKey {
				return "", nil
			}
			if v, ok := requiredFromPackage(p, shareKey); ok {
				return v, nil
			}
			checked = append(checked, path.Join(d, "package.json"))
		}
		if d == "/" || d == "." {
			break
		}
	}
	const prefix = "No required version specified and unable to automatically determine one. "
	if len(checked) == 0 {
		return "", []diag.Diagnostic{diag.Warning(diag.KindSharing, module,
			prefix+"Unable to find description file in %s file: shared module %s", dir, shareKey)}
	}
	return "", []diag.Diagnostic{diag.Warning(diag.KindSharing, module,
		prefix+"Unable to find required version for %q in description file/s\n%s\nIt need to be in dependencies, devDependencies or peerDependencies. file: shared module %s",
		shareKey, strings.Join(checked, "\n"), shareKey)}
}

// ProvidedVersion returns the version of the package shareKey that contains
// the resolved file, or "" when no such package.json is found.
func ProvidedVersion(fsys resolve.ReadableFS, resolved, shareKey string) string {
	for d := path.Dir(resolved); ; d = path.Dir(d) {
		p, err := resolve.ReadPackage(fsys, d)
		if err == nil && p != nil && p.Name == shareKey {
			return p.Version
		}
		if d == "/" || d == "." {
			return ""
		}
	}
}

// Check compares a consume against the version that was provided.
func Check(module ident.ModuleIdentifier, d *dependency.ConsumeShared, cfg Config, provided string) []diag.Diagnostic {
	if d.RequiredVersion == "" || provided == "" {
		return nil
	}
	report := diag.Warning
	if cfg.StrictVersion {
		report = diag.Error
	}
	constraint, err := semver.NewConstraint(d.RequiredVersion)
	if err != nil {
		return []diag.Diagnostic{diag.Warning(diag.KindSharing, module,
			"Invalid required version %q of shared module %s: %v", d.RequiredVersion, d.ShareKey, err)}
	}
	version, err := semver.NewVersion(provided)
	if err != nil {
		return []diag.Diagnostic{diag.Warning(diag.KindSharing, module,
			"Invalid version %q of shared module %s: %v", provided, d.ShareKey, err)}
	}
	if constraint.Check(version) {
		return nil
	}
	kind := "shared module"
	if d.Singleton {
		kind = "shared singleton module"
	}
	return []diag.Diagnostic{report(diag.KindSharing, module,
		"Unsatisfied version %s of %s %s (required %s)", provided, kind, d.ShareKey, d.RequiredVersion).
		With("shareKey", d.ShareKey)}
}

// Singletons reports singleton packages the build provided in more than one
// version. provided maps share keys to the versions seen.
func Singletons(shared map[string]Config, provided map[string][]string) []diag.Diagnostic {
	var out []diag.Diagnostic
	for _, key := range slices.Sorted(maps.Keys(provided)) {
		cfg, ok := shared[key]
		if !ok || !cfg.Singleton {
			continue
		}
		versions := sortVersions(provided[key])
		if len(versions) < 2 {
			continue
		}
		out = append(out, diag.Warning(diag.KindSharing, "",
			"Multiple versions of shared singleton module %s: %s", key, strings.Join(versions, ", ")))
	}
	return out
}

// sortVersions dedupes versions and orders them by semver precedence.
// Unparseable versions sort after valid ones, by text.
func sortVersions(in []string) []string {
	out := slices.Clone(in)
	slices.SortFunc(out, func(a, b string) int {
		va, errA := semver.NewVersion(a)
		vb, errB := semver.NewVersion(b)
		switch {
		case errA == nil && errB == nil:
			if c := va.Compare(vb); c != 0 {
				return c
			}
		case errA == nil:
			return -1
		case errB == nil:
			return 1
		}
		return strings.Compare(a, b)
	})
	return slices.Compact(out)
}
