// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

// Package redact applies entity decisions to text: placeholder substitution,
// emergency hard masking and masked previews of original values for reports.
package redact

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"lexredact/internal/detector"
)

// MaskRune replaces every rune of a hard-redacted span
const MaskRune = '█'

var (
	// ErrInvalidSpan is returned for a replacement outside the text
	ErrInvalidSpan = errors.New("replacement span outside text")
	// ErrOverlap is returned when two replacements claim the same bytes
	ErrOverlap = errors.New("overlapping replacements")
	// ErrMismatch is returned when the text at a span is not the expected value
	ErrMismatch = errors.New("text at span does not match expected value")
)

// Replacement substitutes Token for the bytes of Span. When Expect is set the
// text at Span must equal it.
type Replacement struct {
	Span   detector.Span
	Token  string
	Expect string
}

// Mapping records where one replacement landed
type Mapping struct {
	Original detector.Span `json:"original" yaml:"original"`
	Redacted detector.Span `json:"redacted" yaml:"redacted"`
	Token    string        `json:"token" yaml:"token"`
}

// Apply performs the replacements from right to left so earlier offsets
// stay valid, and returns the new text with one mapping per replacement in
// document order.
func Apply(text string, reps []Replacement) (string, []Mapping, error) {
	if len(reps) == 0 {
		return text, []Mapping{}, nil
	}

	sorted := make([]Replacement, len(reps))
	copy(sorted, reps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Span.Start < sorted[j].Span.Start })

	for i, r := range sorted {
		if !r.Span.Valid(len(text)) {
			return "", nil, fmt.Errorf("%w: [%d,%d) in %d bytes", ErrInvalidSpan, r.Span.Start, r.Span.End, len(text))
		}
		if i > 0 && sorted[i-1].Span.Overlaps(r.Span) {
			return "", nil, fmt.Errorf("%w: [%d,%d) and [%d,%d)", ErrOverlap,
				sorted[i-1].Span.Start, sorted[i-1].Span.End, r.Span.Start, r.Span.End)
		}
		if r.Expect != "" && text[r.Span.Start:r.Span.End] != r.Expect {
			return "", nil, fmt.Errorf("%w at [%d,%d)", ErrMismatch, r.Span.Start, r.Span.End)
		}
	}

	out := text
	for i := len(sorted) - 1; i >= 0; i-- {
		r := sorted[i]
		out = out[:r.Span.Start] + r.Token + out[r.Span.End:]
	}

	mappings := make([]Mapping, 0, len(sorted))
	delta := 0
	for _, r := range sorted {
		start := r.Span.Start + delta
		mappings = append(mappings, Mapping{
			Original: r.Span,
			Redacted: detector.Span{Start: start, End: start + len(r.Token)},
			Token:    r.Token,
		})
		delta += len(r.Token) - r.Span.Len()
	}
	return out, mappings, nil
}

// Mask overwrites every rune inside the spans with MaskRune. It is the
// emergency hard-redaction path and carries no placeholder semantics.
func Mask(text string, spans []detector.Span) (string, error) {
	if len(spans) == 0 {
		return text, nil
	}

	reps := make([]Replacement, 0, len(spans))
	sorted := make([]detector.Span, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	for _, s := range sorted {
		if !s.Valid(len(text)) {
			return "", fmt.Errorf("%w: [%d,%d) in %d bytes", ErrInvalidSpan, s.Start, s.End, len(text))
		}
		// overlapping residuals are widened into one span
		if n := len(reps); n > 0 && reps[n-1].Span.End > s.Start {
			reps[n-1].Span.End = max(reps[n-1].Span.End, s.End)
			continue
		}
		reps = append(reps, Replacement{Span: s})
	}
	for i := range reps {
		n := utf8.RuneCountInString(text[reps[i].Span.Start:reps[i].Span.End])
		reps[i].Token = strings.Repeat(string(MaskRune), n)
	}

	out, _, err := Apply(text, reps)
	return out, err
}

// Placeholders builds the placeholder replacements for a set of entities
// whose tokens are already known.
func Placeholders(text string, entities []detector.Entity, token func(detector.Entity) string) []Replacement {
	reps := make([]Replacement, 0, len(entities))
	for _, e := range entities {
		reps = append(reps, Replacement{Span: e.Span, Token: token(e), Expect: text[e.Span.Start:e.Span.End]})
	}
	return reps
}
