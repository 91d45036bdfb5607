package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/jsgraph/internal/diag"
	"github.com/roach88/jsgraph/internal/ident"
)

// ErrPassNotFound is returned when a pass id is not in the journal.
var ErrPassNotFound = errors.New("pass not found")

// Pass is the summary row of a recorded pass.
type Pass struct {
	ID       string        `json:"id" yaml:"id"`
	Seq      int64         `json:"seq" yaml:"seq"`
	Kind     string        `json:"kind" yaml:"kind"`
	Hash     string        `json:"hash" yaml:"hash"`
	Modules  int           `json:"modules" yaml:"modules"`
	Errors   int           `json:"errors" yaml:"errors"`
	Warnings int           `json:"warnings" yaml:"warnings"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// PassDetail is a pass with everything recorded for it.
type PassDetail struct {
	Pass        `yaml:",inline"`
	Events      map[string][]ident.ModuleIdentifier `json:"events" yaml:"events"`
	Assets      []Asset                             `json:"assets" yaml:"assets"`
	Diagnostics []diag.Diagnostic                   `json:"diagnostics" yaml:"diagnostics"`
}

// Asset is an emitted file of a pass.
type Asset struct {
	Name     string `json:"name" yaml:"name"`
	Chunk    string `json:"chunk" yaml:"chunk"`
	Size     int    `json:"size" yaml:"size"`
	HasError bool   `json:"has_error,omitempty" yaml:"has_error,omitempty"`
}

// ModuleEvent is one thing a pass did to a module.
type ModuleEvent struct {
	PassID string `json:"pass" yaml:"pass"`
	Seq    int64  `json:"seq" yaml:"seq"`
	Event  string `json:"event" yaml:"event"`
}

// LastSeq returns the highest recorded pass number, or 0 for an empty
// journal.
func (j *Journal) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := j.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM passes`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last pass: %w", err)
	}
	return seq, nil
}

// Passes returns the last limit passes, oldest first. limit <= 0 returns
// every pass.
func (j *Journal) Passes(ctx context.Context, limit int) ([]Pass, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, seq, kind, hash, modules, errors, warnings, duration_us
		FROM (
			SELECT * FROM passes
			ORDER BY seq DESC, id COLLATE BINARY DESC
			LIMIT ?
		)
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query passes: %w", err)
	}
	defer rows.Close()

	passes := []Pass{}
	for rows.Next() {
		p, err := scanPass(rows)
		if err != nil {
			return nil, err
		}
		passes = append(passes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passes: %w", err)
	}
	return passes, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPass(s scanner) (Pass, error) {
	var p Pass
	var us int64
	if err := s.Scan(&p.ID, &p.Seq, &p.Kind, &p.Hash, &p.Modules, &p.Errors, &p.Warnings, &us); err != nil {
		return Pass{}, fmt.Errorf("scan pass: %w", err)
	}
	p.Duration = time.Duration(us) * time.Microsecond
	return p, nil
}

// ReadPass returns a pass with its module events, assets and diagnostics.
// It returns ErrPassNotFound for unknown ids.
func (j *Journal) ReadPass(ctx context.Context, id string) (PassDetail, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT id, seq, kind, hash, modules, errors, warnings, duration_us
		FROM passes
		WHERE id = ?
	`, id)
	p, err := scanPass(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PassDetail{}, fmt.Errorf("%w: %s", ErrPassNotFound, id)
	}
	if err != nil {
		return PassDetail{}, err
	}

	d := PassDetail{Pass: p}
	if d.Events, err = j.readEvents(ctx, id); err != nil {
		return PassDetail{}, err
	}
	if d.Assets, err = j.readAssets(ctx, id); err != nil {
		return PassDetail{}, err
	}
	if d.Diagnostics, err = j.readDiagnostics(ctx, id); err != nil {
		return PassDetail{}, err
	}
	return d, nil
}

// Latest returns the most recent pass, or ErrPassNotFound for an empty
// journal.
func (j *Journal) Latest(ctx context.Context) (PassDetail, error) {
	var id string
	err := j.db.QueryRowContext(ctx, `
		SELECT id FROM passes
		ORDER BY seq DESC, id COLLATE BINARY DESC
		LIMIT 1
	`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return PassDetail{}, ErrPassNotFound
	}
	if err != nil {
		return PassDetail{}, fmt.Errorf("query latest pass: %w", err)
	}
	return j.ReadPass(ctx, id)
}

func (j *Journal) readEvents(ctx context.Context, id string) (map[string][]ident.ModuleIdentifier, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT event, module
		FROM pass_modules
		WHERE pass_id = ?
		ORDER BY event COLLATE BINARY ASC, module COLLATE BINARY ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query module events: %w", err)
	}
	defer rows.Close()

	out := map[string][]ident.ModuleIdentifier{}
	for rows.Next() {
		var event, module string
		if err := rows.Scan(&event, &module); err != nil {
			return nil, fmt.Errorf("scan module event: %w", err)
		}
		out[event] = append(out[event], ident.ModuleIdentifier(module))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate module events: %w", err)
	}
	return out, nil
}

func (j *Journal) readAssets(ctx context.Context, id string) ([]Asset, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT name, chunk, size, has_error
		FROM pass_assets
		WHERE pass_id = ?
		ORDER BY name COLLATE BINARY ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	out := []Asset{}
	for rows.Next() {
		var a Asset
		if err := rows.Scan(&a.Name, &a.Chunk, &a.Size, &a.HasError); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assets: %w", err)
	}
	return out, nil
}

func (j *Journal) readDiagnostics(ctx context.Context, id string) ([]diag.Diagnostic, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT severity, kind, module, message, loc, details
		FROM diagnostics
		WHERE pass_id = ?
		ORDER BY ordinal ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query diagnostics: %w", err)
	}
	defer rows.Close()

	out := []diag.Diagnostic{}
	for rows.Next() {
		var severity, kind, module string
		var loc, details sql.NullString
		var d diag.Diagnostic
		if err := rows.Scan(&severity, &kind, &module, &d.Message, &loc, &details); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		d.Severity = diag.SeverityWarning
		if severity == diag.SeverityError.String() {
			d.Severity = diag.SeverityError
		}
		d.Kind = diag.Kind(kind)
		d.Module = ident.ModuleIdentifier(module)
		if loc.Valid {
			d.Loc = &diag.Location{}
			if err := json.Unmarshal([]byte(loc.String), d.Loc); err != nil {
				return nil, fmt.Errorf("unmarshal location: %w", err)
			}
		}
		if details.Valid {
			if err := json.Unmarshal([]byte(details.String), &d.Details); err != nil {
				return nil, fmt.Errorf("unmarshal details: %w", err)
			}
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diagnostics: %w", err)
	}
	return out, nil
}

// ModuleHistory returns what every recorded pass did to module, in pass
// order.
func (j *Journal) ModuleHistory(ctx context.Context, module ident.ModuleIdentifier) ([]ModuleEvent, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT m.pass_id, p.seq, m.event
		FROM pass_modules m
		JOIN passes p ON p.id = m.pass_id
		WHERE m.module = ?
		ORDER BY p.seq ASC, m.pass_id COLLATE BINARY ASC, m.event COLLATE BINARY ASC
	`, string(module))
	if err != nil {
		return nil, fmt.Errorf("query module history: %w", err)
	}
	defer rows.Close()

	out := []ModuleEvent{}
	for rows.Next() {
		var e ModuleEvent
		if err := rows.Scan(&e.PassID, &e.Seq, &e.Event); err != nil {
			return nil, fmt.Errorf("scan module event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate module history: %w", err)
	}
	return out, nil
}
