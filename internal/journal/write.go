package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/jsgraph/internal/compilation"
	"github.com/roach88/jsgraph/internal/diag"
	"github.com/roach88/jsgraph/internal/ident"
)

var _ compilation.Recorder = (*Journal)(nil)

// Module events recorded per pass.
const (
	EventBuilt    = "built"
	EventRestored = "restored"
	EventRendered = "rendered"
	EventRemoved  = "removed"
)

// RecordPass writes a finished pass in one transaction. A pass id already
// in the journal is left as it was.
func (j *Journal) RecordPass(ctx context.Context, r *compilation.Result) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record pass: begin tx: %w", err)
	}
	defer tx.Rollback()

	var errs, warnings int
	for _, d := range r.Diagnostics {
		if d.IsError() {
			errs++
		} else {
			warnings++
		}
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO passes
		(id, seq, kind, hash, modules, errors, warnings, duration_us)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		r.ID,
		r.Pass,
		r.Kind.String(),
		r.Hash,
		r.Modules,
		errs,
		warnings,
		r.Duration.Microseconds(),
	)
	if err != nil {
		return fmt.Errorf("record pass %s: %w", r.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record pass %s: rows affected: %w", r.ID, err)
	}
	if n == 0 {
		return nil
	}

	events := []struct {
		name    string
		modules []ident.ModuleIdentifier
	}{
		{EventBuilt, r.Built},
		{EventRestored, r.Restored},
		{EventRendered, r.Rendered},
		{EventRemoved, r.Removed},
	}
	for _, e := range events {
		for _, m := range e.modules {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO pass_modules (pass_id, event, module)
				VALUES (?, ?, ?)
				ON CONFLICT DO NOTHING
			`, r.ID, e.name, string(m)); err != nil {
				return fmt.Errorf("record pass %s: module %s: %w", r.ID, m, err)
			}
		}
	}

	for _, a := range r.Assets {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pass_assets (pass_id, name, chunk, size, has_error)
			VALUES (?, ?, ?, ?, ?)
		`, r.ID, a.Name, string(a.Chunk), a.Size, a.HasError); err != nil {
			return fmt.Errorf("record pass %s: asset %s: %w", r.ID, a.Name, err)
		}
	}

	for i, d := range r.Diagnostics {
		loc, details, err := marshalDiagnostic(d)
		if err != nil {
			return fmt.Errorf("record pass %s: %w", r.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO diagnostics (pass_id, ordinal, severity, kind, module, message, loc, details)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, r.ID, i, d.Severity.String(), string(d.Kind), string(d.Module), d.Message, loc, details); err != nil {
			return fmt.Errorf("record pass %s: diagnostic %d: %w", r.ID, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record pass %s: commit: %w", r.ID, err)
	}
	return nil
}

// marshalDiagnostic encodes the optional parts of d. Absent parts are NULL.
func marshalDiagnostic(d diag.Diagnostic) (loc, details any, err error) {
	if d.Loc != nil {
		b, err := json.Marshal(d.Loc)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal location: %w", err)
		}
		loc = string(b)
	}
	if len(d.Details) > 0 {
		// map keys marshal sorted
		b, err := json.Marshal(d.Details)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal details: %w", err)
		}
		details = string(b)
	}
	return loc, details, nil
}
