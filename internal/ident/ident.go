// Package ident defines the stable identifiers of a compilation and the
// content-addressed hashing they are derived from.
//
// Module identifiers are readable (module type plus resource, like
// "javascript/auto|/src/index.js"); dependency and block ids are SHA-256
// digests over canonical JSON so they stay stable across rebuilds of
// unchanged content.
package ident

import (
	"cmp"
	"encoding/json"
	"strconv"
	"strings"
)

// ModuleIdentifier uniquely names a module within a compilation.
type ModuleIdentifier string

// DependencyID uniquely names a dependency within a compilation.
type DependencyID string

// BlockID uniquely names an async dependencies block.
type BlockID string

// Module type prefixes used in module identifiers.
const (
	TypeJavaScriptAuto = "javascript/auto"
	TypeJavaScriptESM  = "javascript/esm"
	TypeJavaScriptCJS  = "javascript/dynamic"
	TypeJSON           = "json"
	TypeContext        = "context"
)

// NewModuleIdentifier derives a module identifier from its module type,
// resource path, and optional qualifiers. Qualifiers are joined in the order
// given; callers pass them in a fixed order.
func NewModuleIdentifier(moduleType, resource string, qualifiers ...string) ModuleIdentifier {
	var b strings.Builder
	b.WriteString(moduleType)
	b.WriteByte('|')
	b.WriteString(resource)
	for _, q := range qualifiers {
		b.WriteByte('|')
		b.WriteString(q)
	}
	return ModuleIdentifier(b.String())
}

// Resource returns the resource part of a module identifier.
func (m ModuleIdentifier) Resource() string {
	parts := strings.SplitN(string(m), "|", 3)
	if len(parts) < 2 {
		return string(m)
	}
	return parts[1]
}

// Short returns a truncated id for log lines.
func (d DependencyID) Short() string {
	if len(d) > 12 {
		return string(d[:12])
	}
	return string(d)
}

// OutputID is a module or chunk id as it appears in emitted code.
// Purely numeric ids are emitted as JSON numbers, everything else as strings.
type OutputID string

// IsNumeric reports whether the id is emitted as a JSON number.
func (o OutputID) IsNumeric() bool {
	if o == "" {
		return false
	}
	if len(o) > 1 && o[0] == '0' {
		return false
	}
	_, err := strconv.ParseUint(string(o), 10, 53)
	return err == nil
}

// JSON renders the id with the JSON encoder.
func (o OutputID) JSON() string {
	if o.IsNumeric() {
		return string(o)
	}
	return QuoteJSON(string(o))
}

// CompareOutputID orders ids the way chunk lists are emitted: numeric ids
// first by value, then string ids lexically.
func CompareOutputID(a, b OutputID) int {
	an, bn := a.IsNumeric(), b.IsNumeric()
	switch {
	case an && bn:
		x, _ := strconv.ParseUint(string(a), 10, 53)
		y, _ := strconv.ParseUint(string(b), 10, 53)
		return cmp.Compare(x, y)
	case an:
		return -1
	case bn:
		return 1
	}
	return strings.Compare(string(a), string(b))
}

// QuoteJSON returns s as a JSON string literal suitable for embedding in
// generated JavaScript. HTML characters are left alone; U+2028 and U+2029
// stay escaped because older engines reject them inside string literals.
func QuoteJSON(s string) string {
	encoded, err := encodeJSONString(s)
	if err != nil {
		// encoding/json cannot fail on a Go string.
		b, _ := json.Marshal(s)
		return string(b)
	}
	return string(encoded)
}
