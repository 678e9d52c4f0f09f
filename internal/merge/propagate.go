// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package merge

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"lexredact/internal/detector"
)

const (
	// minPropagationRunes is the shortest surface form searched elsewhere
	minPropagationRunes = 5
	// minPropagationDigits is the shortest all-digit surface form searched elsewhere
	minPropagationDigits = 6
)

type surface struct {
	text   string
	source int
}

// propagate finds further occurrences of accepted values and returns them as
// propagated entities sharing the source's category and normalized value.
func propagate(text string, kept []detector.Entity, vocab detector.Vocabulary) []detector.Entity {
	var surfaces []surface
	seen := map[string]bool{}
	for i, e := range kept {
		if !propagates(e.Category) {
			continue
		}
		for _, c := range e.Candidates {
			c = strings.TrimSpace(c)
			key := detector.FoldText(c)
			if seen[key] || !searchable(e.Category, c, vocab) {
				continue
			}
			seen[key] = true
			surfaces = append(surfaces, surface{text: c, source: i})
		}
	}
	sort.SliceStable(surfaces, func(i, j int) bool { return len(surfaces[i].text) > len(surfaces[j].text) })

	occupied := append([]detector.Entity(nil), kept...)
	var added []detector.Entity
	for _, s := range surfaces {
		src := kept[s.source]
		re := surfacePattern(s.text)
		for _, loc := range re.FindAllStringIndex(text, -1) {
			span := detector.Span{Start: loc[0], End: loc[1]}
			if !wordBounded(text, span) || detector.OverlapsAny(span, occupied) {
				continue
			}
			e := detector.Entity{
				Category:   src.Category,
				Span:       span,
				Raw:        text[span.Start:span.End],
				Normalized: src.Normalized,
				Confidence: src.Confidence,
				Layer:      detector.LayerPropagated,
				Candidates: []string{text[span.Start:span.End]},
				Pattern:    "propagated",
			}
			occupied = append(occupied, e)
			added = append(added, e)
		}
	}
	return added
}

// propagates reports whether other occurrences of the category's values
// are values too. Signature marks are generic text.
func propagates(c detector.Category) bool {
	switch c {
	case detector.Signature, detector.Stamp, detector.Fingerprint:
		return false
	}
	return true
}

func searchable(c detector.Category, s string, vocab detector.Vocabulary) bool {
	if utf8.RuneCountInString(s) < minPropagationRunes {
		return false
	}
	// a lone surname or given name may belong to someone else
	if c == detector.Person && len(strings.Fields(s)) < 2 {
		return false
	}
	if d := detector.DigitsOnly(s); len(d) == len(strings.ReplaceAll(s, " ", "")) {
		return len(d) >= minPropagationDigits
	}
	return !vocab.AllExcluded(s)
}

var accentClasses = map[rune]string{
	'a': "aáàä", 'e': "eéèë", 'i': "iíìï", 'o': "oóòö", 'u': "uúùü", 'n': "nñ",
}

// surfacePattern matches s case- and accent-insensitively with flexible
// whitespace between words.
func surfacePattern(s string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?i)")
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space {
			b.WriteString(`\s+`)
			space = false
		}
		folded := []rune(detector.FoldAccents(string(r)))
		if len(folded) == 0 {
			continue
		}
		if class, ok := accentClasses[unicode.ToLower(folded[0])]; ok {
			b.WriteString("[" + class + "]")
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(r)))
	}
	return regexp.MustCompile(b.String())
}

func wordBounded(text string, span detector.Span) bool {
	if span.Start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:span.Start])
		if isWordRune(r) {
			return false
		}
	}
	if span.End < len(text) {
		r, _ := utf8.DecodeRuneInString(text[span.End:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
