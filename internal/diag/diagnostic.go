// Package diag holds the diagnostics a compilation pass reports and the typed
// errors its operations return.
package diag

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/jsgraph/internal/ident"
)

// Severity of a diagnostic.
type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityWarning
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// Kind classifies where a diagnostic came from.
type Kind string

const (
	KindResolve  Kind = "resolve"
	KindParse    Kind = "parse"
	KindSemantic Kind = "semantic"
	KindCritical Kind = "critical"
	KindCutover  Kind = "cutover"
	KindCodegen  Kind = "codegen"
	KindCycle    Kind = "cycle"
	KindSharing  Kind = "sharing"
	KindInternal Kind = "internal"
)

// Location is a byte range in a module's source plus the 1-based line and
// column of its start, when known.
type Location struct {
	Start  int `json:"start"`
	End    int `json:"end"`
	Line   int `json:"line,omitempty"`
	Column int `json:"column,omitempty"`
}

// Diagnostic is a single error or warning surfaced to the user after a pass.
type Diagnostic struct {
	Severity Severity               `json:"-"`
	Kind     Kind                   `json:"kind"`
	Message  string                 `json:"message"`
	Module   ident.ModuleIdentifier `json:"module,omitempty"`
	Loc      *Location              `json:"loc,omitempty"`
	// Details holds free-form context such as the failing request.
	Details map[string]string `json:"details,omitempty"`
}

// Error creates an error-severity diagnostic.
func Error(kind Kind, module ident.ModuleIdentifier, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: SeverityError, Kind: kind, Module: module, Message: fmt.Sprintf(format, args...)}
}

// Warning creates a warning-severity diagnostic.
func Warning(kind Kind, module ident.ModuleIdentifier, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: SeverityWarning, Kind: kind, Module: module, Message: fmt.Sprintf(format, args...)}
}

// At attaches a source location and returns the diagnostic.
func (d Diagnostic) At(loc Location) Diagnostic {
	d.Loc = &loc
	return d
}

// With adds a detail entry and returns the diagnostic.
func (d Diagnostic) With(key, value string) Diagnostic {
	details := make(map[string]string, len(d.Details)+1)
	for k, v := range d.Details {
		details[k] = v
	}
	details[key] = value
	d.Details = details
	return d
}

// IsError reports whether the diagnostic has error severity.
func (d Diagnostic) IsError() bool { return d.Severity == SeverityError }

func (d Diagnostic) String() string {
	var b strings.Builder
	b.WriteString(d.Severity.String())
	b.WriteString("[")
	b.WriteString(string(d.Kind))
	b.WriteString("]")
	if d.Module != "" {
		b.WriteString(" ")
		b.WriteString(d.Module.Resource())
		if d.Loc != nil && d.Loc.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", d.Loc.Line, d.Loc.Column)
		}
	}
	b.WriteString(": ")
	b.WriteString(d.Message)
	return b.String()
}

// Collector accumulates diagnostics for a pass. Not safe for concurrent use;
// the single writer that merges build results owns it.
type Collector struct {
	items []Diagnostic
}

// Add appends diagnostics.
func (c *Collector) Add(ds ...Diagnostic) {
	c.items = append(c.items, ds...)
}

// Len returns the number of diagnostics collected.
func (c *Collector) Len() int { return len(c.items) }

// HasErrors reports whether any error-severity diagnostic was collected.
func (c *Collector) HasErrors() bool {
	return slices.ContainsFunc(c.items, Diagnostic.IsError)
}

// Sorted returns the diagnostics ordered by module, start offset, severity,
// then message, so reports are stable regardless of build completion order.
func (c *Collector) Sorted() []Diagnostic {
	out := slices.Clone(c.items)
	slices.SortStableFunc(out, Compare)
	if out == nil {
		out = []Diagnostic{}
	}
	return out
}

// Errors returns the error-severity diagnostics in sorted order.
func (c *Collector) Errors() []Diagnostic {
	return filter(c.Sorted(), SeverityError)
}

// Warnings returns the warning-severity diagnostics in sorted order.
func (c *Collector) Warnings() []Diagnostic {
	return filter(c.Sorted(), SeverityWarning)
}

func filter(ds []Diagnostic, s Severity) []Diagnostic {
	out := []Diagnostic{}
	for _, d := range ds {
		if d.Severity == s {
			out = append(out, d)
		}
	}
	return out
}

// Compare orders diagnostics deterministically.
func Compare(a, b Diagnostic) int {
	if c := strings.Compare(string(a.Module), string(b.Module)); c != 0 {
		return c
	}
	if c := startOf(a) - startOf(b); c != 0 {
		return c
	}
	if c := int(a.Severity) - int(b.Severity); c != 0 {
		return c
	}
	return strings.Compare(a.Message, b.Message)
}

func startOf(d Diagnostic) int {
	if d.Loc == nil {
		return -1
	}
	return d.Loc.Start
}

// FirstError returns the first error-severity diagnostic in ds, if any.
func FirstError(ds []Diagnostic) (Diagnostic, bool) {
	for _, d := range ds {
		if d.IsError() {
			return d, true
		}
	}
	return Diagnostic{}, false
}
