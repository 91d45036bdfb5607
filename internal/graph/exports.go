package graph

import (
	"maps"
	"slices"
	"strings"

	"github.com/roach88/jsgraph/internal/dependency"
	"github.com/roach88/jsgraph/internal/diag"
	"github.com/roach88/jsgraph/internal/ident"
)

// Provision says whether a module provides an export.
type Provision uint8

const (
	ProvisionUnknown Provision = iota
	Provided
	NotProvided
)

func (p Provision) String() string {
	switch p {
	case Provided:
		return "provided"
	case NotProvided:
		return "not provided"
	}
	return "unknown"
}

// Usage says how importers in a runtime use an export.
type Usage uint8

const (
	Unused Usage = iota
	Used
	UsedInUnknownWay
)

func (u Usage) String() string {
	switch u {
	case Used:
		return "used"
	case UsedInUnknownWay:
		return "used in unknown way"
	}
	return "unused"
}

// ExportTarget is where a re-exported name comes from.
type ExportTarget struct {
	Module ident.ModuleIdentifier
	Export []string
}

// ExportInfo is the provided and used state of one export.
type ExportInfo struct {
	Name     string
	Provided Provision
	Used     Usage
	Target   *ExportTarget
}

// PrefetchMode selects how much of a module's exports to compute.
type PrefetchMode struct {
	names []string
	full  bool
}

// PrefetchFull computes every export of the module.
func PrefetchFull() PrefetchMode { return PrefetchMode{full: true} }

// PrefetchNested computes only the named exports, following re-export chains
// for those names alone.
func PrefetchNested(names ...string) PrefetchMode {
	sorted := slices.Clone(names)
	slices.Sort(sorted)
	return PrefetchMode{names: slices.Compact(sorted)}
}

// IsFull reports whether the mode covers every export.
func (p PrefetchMode) IsFull() bool { return p.full }

func (p PrefetchMode) key() string {
	if p.full {
		return "*"
	}
	return "=" + strings.Join(p.names, "\x00")
}

// PrefetchedExportsInfo is the exports state of a module under a runtime.
// It is shared between callers and must not be modified.
type PrefetchedExportsInfo struct {
	Module  ident.ModuleIdentifier
	Runtime string
	Mode    PrefetchMode
	// Exports are the computed exports sorted by name.
	Exports []ExportInfo
	// OtherProvided and OtherUsed describe names not in Exports. They are
	// only meaningful in full mode.
	OtherProvided Provision
	OtherUsed     Usage
}

// Export returns the state of name. In nested mode a name outside the
// requested set is reported as unknown.
func (p *PrefetchedExportsInfo) Export(name string) ExportInfo {
	i, ok := slices.BinarySearchFunc(p.Exports, name, func(e ExportInfo, n string) int {
		return strings.Compare(e.Name, n)
	})
	if ok {
		return p.Exports[i]
	}
	if !p.Mode.full {
		return ExportInfo{Name: name, Provided: ProvisionUnknown, Used: UsedInUnknownWay}
	}
	return ExportInfo{Name: name, Provided: p.OtherProvided, Used: p.OtherUsed}
}

// ProvidedNames lists the exports known to be provided, sorted.
func (p *PrefetchedExportsInfo) ProvidedNames() []string {
	var out []string
	for _, e := range p.Exports {
		if e.Provided == Provided {
			out = append(out, e.Name)
		}
	}
	return out
}

// IsUsed reports whether name may be read by an importer.
func (p *PrefetchedExportsInfo) IsUsed(name string) bool {
	return p.Export(name).Used != Unused
}

type exportsKey struct {
	module  ident.ModuleIdentifier
	runtime string
	mode    string
}

type exportsEntry struct {
	version uint64
	metaGen uint64
	info    *PrefetchedExportsInfo
}

// GetPrefetchedExportsInfo returns the exports state of a module under a
// runtime ("" for all runtimes). Results are memoized; an entry is reused
// only while neither the graph version nor the module's build meta changed.
// Concurrent callers may compute the same entry twice; both results are
// equal.
func (g *Graph) GetPrefetchedExportsInfo(id ident.ModuleIdentifier, mode PrefetchMode, runtime string) (*PrefetchedExportsInfo, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.modules[id]
	if !ok {
		return nil, diag.NewUnknownModuleError(id)
	}
	key := exportsKey{module: id, runtime: runtime, mode: mode.key()}
	version := g.version.Current()
	if e, ok := g.exports.Get(key); ok && e.version == version && e.metaGen == m.metaGen {
		return e.info, nil
	}
	info := g.computeExportsLocked(m, mode, runtime)
	g.exports.Add(key, &exportsEntry{version: version, metaGen: m.metaGen, info: info})
	return info, nil
}

func (g *Graph) computeExportsLocked(m *Module, mode PrefetchMode, runtime string) *PrefetchedExportsInfo {
	w := &exportsWalker{g: g, runtime: runtime, using: make(map[string]bool)}
	info := &PrefetchedExportsInfo{Module: m.Identifier, Runtime: runtime, Mode: mode}

	var provided map[string]ExportInfo
	if mode.full {
		provided, info.OtherProvided = w.provided(m, nil, map[ident.ModuleIdentifier]bool{})
	} else {
		provided, info.OtherProvided = w.provided(m, mode.names, map[ident.ModuleIdentifier]bool{})
	}

	names := mode.names
	if mode.full {
		names = slices.Sorted(maps.Keys(provided))
		info.OtherUsed = w.otherUsage(m.Identifier)
	}
	for _, name := range names {
		e, ok := provided[name]
		if !ok {
			e = ExportInfo{Name: name, Provided: info.OtherProvided}
		}
		e.Used = w.usage(m.Identifier, name)
		info.Exports = append(info.Exports, e)
	}
	return info
}

type exportsWalker struct {
	g       *Graph
	runtime string
	using   map[string]bool
}

// provided computes the provided exports of m, restricted to names unless
// names is nil. visiting guards star re-export cycles.
func (w *exportsWalker) provided(m *Module, names []string, visiting map[ident.ModuleIdentifier]bool) (map[string]ExportInfo, Provision) {
	out := make(map[string]ExportInfo)
	wanted := func(n string) bool {
		if names == nil {
			return true
		}
		_, ok := slices.BinarySearch(names, n)
		return ok
	}

	switch m.BuildMeta.ExportsType {
	case MetaExportsUnset:
		return out, ProvisionUnknown
	case MetaExportsNamespace:
	default:
		for _, n := range m.BuildInfo.NamedExports {
			if wanted(n) {
				out[n] = ExportInfo{Name: n, Provided: Provided}
			}
		}
		return out, ProvisionUnknown
	}

	visiting[m.Identifier] = true
	defer delete(visiting, m.Identifier)

	for _, n := range m.BuildInfo.NamedExports {
		if wanted(n) {
			out[n] = ExportInfo{Name: n, Provided: Provided}
		}
	}

	other := NotProvided
	fromStar := make(map[string]ident.ModuleIdentifier)
	ambiguous := make(map[string]bool)
	for _, depID := range m.Dependencies {
		re, ok := w.g.deps[depID].(*dependency.ESMExportImportedSpecifier)
		if !ok {
			continue
		}
		targetID, resolved := w.g.targets[depID]
		target, present := w.g.modules[targetID]
		if !re.Star {
			if e, ok := out[re.Name]; ok && resolved {
				e.Target = &ExportTarget{Module: targetID, Export: slices.Clone(re.Ids)}
				out[re.Name] = e
			}
			continue
		}
		if !resolved || !present {
			other = ProvisionUnknown
			continue
		}
		if visiting[targetID] {
			continue
		}
		starNames, starOther := w.provided(target, names, visiting)
		if starOther == ProvisionUnknown {
			other = ProvisionUnknown
		}
		for n, e := range starNames {
			if n == "default" || e.Provided != Provided || m.BuildInfo.HasExport(n) {
				continue
			}
			if prev, ok := fromStar[n]; ok && prev != targetID {
				ambiguous[n] = true
				continue
			}
			fromStar[n] = targetID
			out[n] = ExportInfo{Name: n, Provided: Provided, Target: &ExportTarget{Module: targetID, Export: []string{n}}}
		}
	}
	for n := range ambiguous {
		delete(out, n)
	}
	return out, other
}

func maxUsage(a, b Usage) Usage {
	if b > a {
		return b
	}
	return a
}

// usage computes how importers in the walker's runtime use name of m.
func (w *exportsWalker) usage(id ident.ModuleIdentifier, name string) Usage {
	key := string(id) + "\x00" + name
	if w.using[key] {
		return Unused
	}
	w.using[key] = true
	defer delete(w.using, key)

	u := Unused
	for _, c := range w.g.incomingLocked(id) {
		if !w.g.inRuntimeLocked(c.Origin, w.runtime) {
			continue
		}
		switch d := w.g.deps[c.Dependency].(type) {
		case *dependency.ESMImportSpecifier:
			if len(d.Ids) == 0 {
				u = UsedInUnknownWay
			} else if d.Ids[0] == name {
				u = maxUsage(u, Used)
			}
		case *dependency.ESMExportImportedSpecifier:
			switch {
			case d.Star:
				if name != "default" {
					u = maxUsage(u, w.usage(c.Origin, name))
				}
			case len(d.Ids) == 0:
				if w.usage(c.Origin, d.Name) != Unused {
					u = UsedInUnknownWay
				}
			case d.Ids[0] == name:
				u = maxUsage(u, w.usage(c.Origin, d.Name))
			}
		case *dependency.ESMImportSideEffect, *dependency.ConsumeShared:
		default:
			if _, ok := dependency.AsModuleDependency(d); ok {
				u = UsedInUnknownWay
			}
		}
		if u == UsedInUnknownWay {
			return u
		}
	}
	return u
}

// otherUsage is the usage of names nobody imports by name.
func (w *exportsWalker) otherUsage(id ident.ModuleIdentifier) Usage {
	key := string(id) + "\x00*"
	if w.using[key] {
		return Unused
	}
	w.using[key] = true
	defer delete(w.using, key)

	for _, c := range w.g.incomingLocked(id) {
		if !w.g.inRuntimeLocked(c.Origin, w.runtime) {
			continue
		}
		switch d := w.g.deps[c.Dependency].(type) {
		case *dependency.ESMImportSpecifier:
			if len(d.Ids) == 0 {
				return UsedInUnknownWay
			}
		case *dependency.ESMExportImportedSpecifier:
			if d.Star && w.otherUsage(c.Origin) != Unused {
				return UsedInUnknownWay
			}
			if !d.Star && len(d.Ids) == 0 && w.usage(c.Origin, d.Name) != Unused {
				return UsedInUnknownWay
			}
		case *dependency.ESMImportSideEffect, *dependency.ConsumeShared:
		default:
			if _, ok := dependency.AsModuleDependency(d); ok {
				return UsedInUnknownWay
			}
		}
	}
	return Unused
}
