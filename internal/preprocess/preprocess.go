// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

// Package preprocess normalizes extracted document text while keeping a
// byte-level map back to the extracted offsets.
package preprocess

import (
	"strings"
	"unicode/utf8"

	"lexredact/internal/detector"

	"golang.org/x/text/unicode/norm"
)

// OffsetMap maps byte offsets of the normalized text to byte offsets of the
// extracted text. It holds one entry per normalized byte plus the end offset.
type OffsetMap struct {
	orig []int
}

// Original returns the extracted-text offset of normalized offset i.
func (m *OffsetMap) Original(i int) int {
	if m == nil || len(m.orig) == 0 {
		return i
	}
	if i < 0 {
		return 0
	}
	if i >= len(m.orig) {
		return m.orig[len(m.orig)-1]
	}
	return m.orig[i]
}

// OriginalSpan maps a normalized span to the extracted text. The end is
// resolved through the last byte of the span so dropped characters that
// follow the span are not pulled in.
func (m *OffsetMap) OriginalSpan(s detector.Span) detector.Span {
	if s.End <= s.Start {
		start := m.Original(s.Start)
		return detector.Span{Start: start, End: start}
	}
	return detector.Span{Start: m.Original(s.Start), End: m.Original(s.End-1) + 1}
}

// Len returns the length of the normalized text the map covers.
func (m *OffsetMap) Len() int {
	if m == nil || len(m.orig) == 0 {
		return 0
	}
	return len(m.orig) - 1
}

// Result is the output of Normalize.
type Result struct {
	Text    string
	Offsets *OffsetMap

	// Changes counts substituted or removed characters
	Changes int
}

// Normalize applies NFC composition and whitespace, quote and dash
// canonicalization to extracted text.
func Normalize(extracted string) Result {
	var out strings.Builder
	out.Grow(len(extracted))
	orig := make([]int, 0, len(extracted)+1)
	changes := 0

	emit := func(s string, at int) {
		out.WriteString(s)
		for range len(s) {
			orig = append(orig, at)
		}
	}

	var it norm.Iter
	it.InitString(norm.NFC, extracted)
	for !it.Done() {
		segStart := it.Pos()
		seg := it.Next()
		segEnd := it.Pos()
		identical := string(seg) == extracted[segStart:segEnd]
		if !identical {
			changes++
		}
		segOut := len(orig)

		for k := 0; k < len(seg); {
			r, size := utf8.DecodeRune(seg[k:])
			at := segStart
			if identical {
				at = segStart + k
			}

			repl, changed := substitute(r)
			if r == '\r' {
				if segEnd < len(extracted) && extracted[segEnd] == '\n' && k+size == len(seg) {
					repl = ""
				} else {
					repl = "\n"
				}
				changed = true
			}

			if changed {
				changes++
				if repl != "" {
					emit(repl, at)
				}
			} else if identical {
				out.Write(seg[k : k+size])
				for j := range size {
					orig = append(orig, at+j)
				}
			} else {
				emit(string(seg[k:k+size]), at)
			}
			k += size
		}
		if !identical && len(orig) > segOut {
			// the last byte of a recomposed segment closes over the whole input run
			orig[len(orig)-1] = segEnd - 1
		}
	}
	orig = append(orig, len(extracted))

	return Result{
		Text:    out.String(),
		Offsets: &OffsetMap{orig: orig},
		Changes: changes,
	}
}

func substitute(r rune) (string, bool) {
	switch r {
	case '\t', '\u00A0', '\u1680', '\u202F', '\u205F', '\u3000':
		return " ", true
	case '\u200B', '\u200C', '\u200D', '\u2060', '\uFEFF', '\u00AD':
		return "", true
	case '\u2018', '\u2019', '\u201A', '\u2032':
		return "'", true
	case '\u201C', '\u201D', '\u201E', '\u2033', '\u00AB', '\u00BB':
		return `"`, true
	case '\u2010', '\u2011', '\u2012', '\u2013', '\u2014', '\u2212':
		return "-", true
	case '\u2028', '\u2029', '\u0085':
		return "\n", true
	}
	if r >= '\u2000' && r <= '\u200A' {
		return " ", true
	}
	return "", false
}
