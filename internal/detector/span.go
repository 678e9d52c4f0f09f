// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package detector

import "sort"

// Span is a half-open byte range [Start, End) into the normalized text.
type Span struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// Len returns the span width in bytes.
func (s Span) Len() int {
	return s.End - s.Start
}

// Valid reports whether 0 <= Start < End <= n.
func (s Span) Valid(n int) bool {
	return s.Start >= 0 && s.Start < s.End && s.End <= n
}

// Overlaps reports whether the two spans share at least one byte.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Contains reports whether o lies entirely within s.
func (s Span) Contains(o Span) bool {
	return s.Start <= o.Start && o.End <= s.End
}

// SortEntities orders entities by start offset, then by layer rank,
// category priority and length so the most specific candidate comes first.
func SortEntities(entities []Entity) {
	sort.SliceStable(entities, func(i, j int) bool {
		a, b := entities[i], entities[j]
		if a.Span.Start != b.Span.Start {
			return a.Span.Start < b.Span.Start
		}
		if a.Layer.Rank() != b.Layer.Rank() {
			return a.Layer.Rank() > b.Layer.Rank()
		}
		if a.Category != b.Category {
			return a.Category.Outranks(b.Category)
		}
		return a.Span.End > b.Span.End
	})
}

// OverlapsAny reports whether span overlaps any entity in the list.
func OverlapsAny(span Span, entities []Entity) bool {
	for _, e := range entities {
		if e.Span.Overlaps(span) {
			return true
		}
	}
	return false
}

// ValidEntities drops entities whose span does not fit a text of length n
// or whose raw value disagrees with the text.
func ValidEntities(text string, entities []Entity) []Entity {
	out := entities[:0:0]
	for _, e := range entities {
		if !e.Span.Valid(len(text)) {
			continue
		}
		if e.Raw != "" && text[e.Span.Start:e.Span.End] != e.Raw {
			continue
		}
		out = append(out, e)
	}
	return out
}
