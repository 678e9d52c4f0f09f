// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package detector

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize returns the deduplication key for a raw value of the category.
func Normalize(c Category, raw string) string {
	switch c {
	case NationalID, TaxID, ForeignID, Account:
		return DigitsOnly(raw)
	case Phone:
		d := DigitsOnly(raw)
		if len(d) == 11 && strings.HasPrefix(d, "51") && d[2] == '9' {
			d = d[2:]
		}
		return d
	case Email:
		return strings.ToLower(strings.TrimSpace(raw))
	case CaseNumber, Plate, Mailbox, RecordNumber, Resolution, RegistryEntry, BarRegistration:
		return strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return -1
			}
			return unicode.ToUpper(r)
		}, FoldAccents(raw))
	default:
		return FoldText(raw)
	}
}

// FoldText upper-cases, strips accents, collapses whitespace and trims edge punctuation.
func FoldText(s string) string {
	s = strings.ToUpper(FoldAccents(s))
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) && r != '.'
	})
}

// FoldAccents removes combining marks after canonical decomposition.
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// DigitsOnly keeps the ASCII digits of s.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
