package codegen

import (
	"cmp"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/jsgraph/internal/runtime"
)

// Stage orders init fragments coarsely; Position orders them within a stage.
type Stage int

const (
	StageConstants Stage = iota * 10
	StageAsyncBoundary
	StageESMExports
	StageESMImports
	StageProvides
	StageAsyncDependencies
	StageAsyncESMImports
)

// InitFragment is code placed around a module's rendered source. Content goes
// before the source and EndContent after it, in reverse fragment order.
type InitFragment interface {
	Key() string
	Stage() Stage
	Position() int
	Content(ctx *TemplateContext) string
	EndContent(ctx *TemplateContext) string
}

// merger is implemented by fragments that combine with a later fragment of
// the same key instead of being replaced by it.
type merger interface {
	Merge(next InitFragment) InitFragment
}

// Fragment is a plain init fragment. A later Fragment with the same key
// replaces the earlier one's text but keeps its place.
type Fragment struct {
	K       string
	S       Stage
	Pos     int
	Text    string
	EndText string
}

func (f *Fragment) Key() string                        { return f.K }
func (f *Fragment) Stage() Stage                       { return f.S }
func (f *Fragment) Position() int                      { return f.Pos }
func (f *Fragment) Content(*TemplateContext) string    { return f.Text }
func (f *Fragment) EndContent(*TemplateContext) string { return f.EndText }

// ExportFragment defines getters on the exports object. Fragments of the
// same exports argument merge into a single __webpack_require__.d call.
type ExportFragment struct {
	ExportsArgument string
	// Getters maps an export name to the expression its getter returns.
	Getters map[string]string
}

// NewExportFragment creates an export fragment with one getter.
func NewExportFragment(exportsArgument, name, expr string) *ExportFragment {
	return &ExportFragment{ExportsArgument: exportsArgument, Getters: map[string]string{name: expr}}
}

func (f *ExportFragment) Key() string   { return "esm exports " + f.ExportsArgument }
func (f *ExportFragment) Stage() Stage  { return StageESMExports }
func (f *ExportFragment) Position() int { return 1 }

// Merge unions the getters. On a name clash the earlier getter stays.
func (f *ExportFragment) Merge(next InitFragment) InitFragment {
	other, ok := next.(*ExportFragment)
	if !ok {
		return f
	}
	merged := &ExportFragment{ExportsArgument: f.ExportsArgument, Getters: maps.Clone(f.Getters)}
	for name, expr := range other.Getters {
		if _, exists := merged.Getters[name]; !exists {
			merged.Getters[name] = expr
		}
	}
	return merged
}

func (f *ExportFragment) Content(ctx *TemplateContext) string {
	if len(f.Getters) == 0 {
		return ""
	}
	names := slices.Sorted(maps.Keys(f.Getters))
	lines := make([]string, len(names))
	for i, name := range names {
		lines[i] = "/* ESM export */   " + quote(name) + ": " + ctx.returningFunction(f.Getters[name])
	}
	return "/* ESM exports */ " + runtime.DefinePropertyGetters.Name() + "(" + f.ExportsArgument + ", {\n" +
		strings.Join(lines, ",\n") + "\n/* ESM exports */ });\n"
}

func (f *ExportFragment) EndContent(*TemplateContext) string { return "" }

type indexedFragment struct {
	InitFragment
	index int
}

// foldFragments orders fragments by stage, position, then insertion order and
// collapses fragments sharing a key into the first one's slot.
func foldFragments(fragments []InitFragment) []InitFragment {
	indexed := make([]indexedFragment, len(fragments))
	for i, f := range fragments {
		indexed[i] = indexedFragment{InitFragment: f, index: i}
	}
	slices.SortStableFunc(indexed, func(a, b indexedFragment) int {
		return cmp.Or(
			cmp.Compare(a.Stage(), b.Stage()),
			cmp.Compare(a.Position(), b.Position()),
			cmp.Compare(a.index, b.index),
		)
	})

	out := make([]InitFragment, 0, len(indexed))
	slot := make(map[string]int, len(indexed))
	for _, f := range indexed {
		key := f.Key()
		if key == "" {
			out = append(out, f.InitFragment)
			continue
		}
		i, seen := slot[key]
		if !seen {
			slot[key] = len(out)
			out = append(out, f.InitFragment)
			continue
		}
		if m, ok := out[i].(merger); ok {
			out[i] = m.Merge(f.InitFragment)
		} else {
			out[i] = f.InitFragment
		}
	}
	return out
}

// renderWithFragments places folded fragments around source.
func renderWithFragments(ctx *TemplateContext, source string, fragments []InitFragment) string {
	if len(fragments) == 0 {
		return source
	}
	folded := foldFragments(fragments)
	var b strings.Builder
	for _, f := range folded {
		b.WriteString(f.Content(ctx))
	}
	b.WriteString(source)
	for i := len(folded) - 1; i >= 0; i-- {
		b.WriteString(folded[i].EndContent(ctx))
	}
	return b.String()
}
