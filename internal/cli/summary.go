package cli

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/jsgraph/internal/compilation"
	"github.com/roach88/jsgraph/internal/diag"
	"github.com/roach88/jsgraph/internal/journal"
)

var printer = message.NewPrinter(language.English)

// PassSummary is the printable view of a pass.
type PassSummary struct {
	ID          string              `json:"id" yaml:"id"`
	Pass        int64               `json:"pass,omitempty" yaml:"pass,omitempty"`
	Kind        string              `json:"kind" yaml:"kind"`
	Hash        string              `json:"hash" yaml:"hash"`
	Modules     int                 `json:"modules" yaml:"modules"`
	Built       int                 `json:"built" yaml:"built"`
	Restored    int                 `json:"restored" yaml:"restored"`
	Rendered    int                 `json:"rendered" yaml:"rendered"`
	Removed     int                 `json:"removed" yaml:"removed"`
	Duration    string              `json:"duration" yaml:"duration"`
	Assets      []AssetSummary      `json:"assets" yaml:"assets"`
	Diagnostics []DiagnosticSummary `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
}

// AssetSummary is an emitted file.
type AssetSummary struct {
	Name     string `json:"name" yaml:"name"`
	Chunk    string `json:"chunk" yaml:"chunk"`
	Size     int    `json:"size" yaml:"size"`
	HasError bool   `json:"has_error,omitempty" yaml:"has_error,omitempty"`
}

// DiagnosticSummary flattens a diagnostic for structured output.
type DiagnosticSummary struct {
	Severity string            `json:"severity" yaml:"severity"`
	Kind     string            `json:"kind" yaml:"kind"`
	Module   string            `json:"module,omitempty" yaml:"module,omitempty"`
	Line     int               `json:"line,omitempty" yaml:"line,omitempty"`
	Column   int               `json:"column,omitempty" yaml:"column,omitempty"`
	Message  string            `json:"message" yaml:"message"`
	Details  map[string]string `json:"details,omitempty" yaml:"details,omitempty"`
	text     string
}

func summarizeDiagnostics(ds []diag.Diagnostic) []DiagnosticSummary {
	if len(ds) == 0 {
		return nil
	}
	out := make([]DiagnosticSummary, len(ds))
	for i, d := range ds {
		s := DiagnosticSummary{
			Severity: d.Severity.String(),
			Kind:     string(d.Kind),
			Module:   string(d.Module),
			Message:  d.Message,
			Details:  d.Details,
			text:     d.String(),
		}
		if d.Loc != nil {
			s.Line, s.Column = d.Loc.Line, d.Loc.Column
		}
		out[i] = s
	}
	return out
}

func (d DiagnosticSummary) String() string { return d.text }

// summarizeResult builds the summary of a pass that just ran.
func summarizeResult(r *compilation.Result) PassSummary {
	s := PassSummary{
		ID:          r.ID,
		Pass:        r.Pass,
		Kind:        r.Kind.String(),
		Hash:        r.Hash,
		Modules:     r.Modules,
		Built:       len(r.Built),
		Restored:    len(r.Restored),
		Rendered:    len(r.Rendered),
		Removed:     len(r.Removed),
		Duration:    r.Duration.Round(time.Microsecond).String(),
		Assets:      make([]AssetSummary, len(r.Assets)),
		Diagnostics: summarizeDiagnostics(r.Diagnostics),
	}
	for i, a := range r.Assets {
		s.Assets[i] = AssetSummary{Name: a.Name, Chunk: string(a.Chunk), Size: a.Size, HasError: a.HasError}
	}
	return s
}

// summarizeRecorded builds the summary of a pass read back from the journal.
func summarizeRecorded(p journal.PassDetail) PassSummary {
	s := PassSummary{
		ID:          p.ID,
		Pass:        p.Seq,
		Kind:        p.Kind,
		Hash:        p.Hash,
		Modules:     p.Modules,
		Built:       len(p.Events[journal.EventBuilt]),
		Restored:    len(p.Events[journal.EventRestored]),
		Rendered:    len(p.Events[journal.EventRendered]),
		Removed:     len(p.Events[journal.EventRemoved]),
		Duration:    p.Duration.Round(time.Microsecond).String(),
		Assets:      make([]AssetSummary, len(p.Assets)),
		Diagnostics: summarizeDiagnostics(p.Diagnostics),
	}
	for i, a := range p.Assets {
		s.Assets[i] = AssetSummary(a)
	}
	return s
}

// Errors counts the error diagnostics.
func (s PassSummary) Errors() int {
	n := 0
	for _, d := range s.Diagnostics {
		if d.Severity == diag.SeverityError.String() {
			n++
		}
	}
	return n
}

func (s PassSummary) String() string {
	var b strings.Builder
	errs := s.Errors()
	printer.Fprintf(&b, "%s %s %s in %s: %d modules (%d built, %d restored, %d rendered, %d removed)",
		s.Kind, s.ID, shortHash(s.Hash), s.Duration, s.Modules, s.Built, s.Restored, s.Rendered, s.Removed)
	for _, a := range s.Assets {
		printer.Fprintf(&b, "\n  %-24s %8d bytes  [%s]", a.Name, a.Size, a.Chunk)
		if a.HasError {
			b.WriteString(" has errors")
		}
	}
	for _, d := range s.Diagnostics {
		fmt.Fprintf(&b, "\n%s", d)
	}
	if errs > 0 {
		printer.Fprintf(&b, "\n%d error(s), %d warning(s)", errs, len(s.Diagnostics)-errs)
	} else if len(s.Diagnostics) > 0 {
		printer.Fprintf(&b, "\n%d warning(s)", len(s.Diagnostics))
	}
	return b.String()
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// PassList is a list of journal passes.
type PassList []journal.Pass

func (l PassList) String() string {
	if len(l) == 0 {
		return "No passes recorded"
	}
	var b strings.Builder
	for i, p := range l {
		if i > 0 {
			b.WriteString("\n")
		}
		printer.Fprintf(&b, "%4d  %-8s %s  %s  %d modules  %d errors  %d warnings  %s",
			p.Seq, p.Kind, p.ID, shortHash(p.Hash), p.Modules, p.Errors, p.Warnings, p.Duration.Round(time.Microsecond))
	}
	return b.String()
}

// ModuleTimeline is the journal history of one module.
type ModuleTimeline struct {
	Module string                `json:"module" yaml:"module"`
	Events []journal.ModuleEvent `json:"events" yaml:"events"`
}

func (m ModuleTimeline) String() string {
	if len(m.Events) == 0 {
		return fmt.Sprintf("No passes touched %s", m.Module)
	}
	var b strings.Builder
	b.WriteString(m.Module)
	for _, e := range m.Events {
		fmt.Fprintf(&b, "\n%4d  %-8s %s", e.Seq, e.Event, e.PassID)
	}
	return b.String()
}
