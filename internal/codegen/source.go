package codegen

import (
	"cmp"
	"slices"
	"strings"
)

// replacement swaps original[Start:End) for Content. Start == End inserts.
type replacement struct {
	Start, End uint32
	Content    string
	index      int
}

// ReplaceSource collects replacements against an immutable original text.
// Replacements may be added in any order; Source applies them sorted by
// start, then end, then insertion order.
type ReplaceSource struct {
	original     []byte
	replacements []replacement
}

// NewReplaceSource wraps original. The slice is not copied and must not be
// modified afterwards.
func NewReplaceSource(original []byte) *ReplaceSource {
	return &ReplaceSource{original: original}
}

// Replace swaps original[start:end) for content. Ranges are clamped to the
// original text.
func (s *ReplaceSource) Replace(start, end uint32, content string) {
	n := uint32(len(s.original))
	start, end = min(start, n), min(end, n)
	if end < start {
		end = start
	}
	s.replacements = append(s.replacements, replacement{
		Start:   start,
		End:     end,
		Content: content,
		index:   len(s.replacements),
	})
}

// Insert adds content before original[pos].
func (s *ReplaceSource) Insert(pos uint32, content string) {
	s.Replace(pos, pos, content)
}

// Len returns the number of recorded replacements.
func (s *ReplaceSource) Len() int { return len(s.replacements) }

// Original returns original[start:end).
func (s *ReplaceSource) Original(start, end uint32) string {
	n := uint32(len(s.original))
	start, end = min(start, n), min(end, n)
	if end < start {
		return ""
	}
	return string(s.original[start:end])
}

// Source applies the replacements. With none recorded the result is the
// original text, byte for byte. When two replacements overlap, the later one
// in sorted order only removes what the earlier one left.
func (s *ReplaceSource) Source() string {
	if len(s.replacements) == 0 {
		return string(s.original)
	}
	sorted := slices.Clone(s.replacements)
	slices.SortFunc(sorted, func(a, b replacement) int {
		return cmp.Or(
			cmp.Compare(a.Start, b.Start),
			cmp.Compare(a.End, b.End),
			cmp.Compare(a.index, b.index),
		)
	})

	var b strings.Builder
	b.Grow(len(s.original))
	pos := uint32(0)
	for _, r := range sorted {
		if r.Start > pos {
			b.Write(s.original[pos:r.Start])
			pos = r.Start
		}
		b.WriteString(r.Content)
		pos = max(pos, r.End)
	}
	b.Write(s.original[pos:])
	return b.String()
}
