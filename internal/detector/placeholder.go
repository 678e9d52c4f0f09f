// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package detector

import (
	"fmt"
	"regexp"
	"strconv"
)

// PlaceholderPattern matches rendered placeholder tokens.
var PlaceholderPattern = regexp.MustCompile(`\{\{([A-Z_]+)_(\d+)\}\}`)

// Placeholder renders the token for the n-th value of a category.
func Placeholder(c Category, n int) string {
	return fmt.Sprintf("{{%s_%d}}", c, n)
}

// ParsePlaceholder reverses Placeholder.
func ParsePlaceholder(token string) (Category, int, bool) {
	m := PlaceholderPattern.FindStringSubmatch(token)
	if m == nil || m[0] != token {
		return CategoryUnknown, 0, false
	}
	c, ok := ParseCategory(m[1])
	if !ok {
		return CategoryUnknown, 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil || n < 1 {
		return CategoryUnknown, 0, false
	}
	return c, n, true
}

// PlaceholderSpans returns the spans of every token in text.
func PlaceholderSpans(text string) []Span {
	locs := PlaceholderPattern.FindAllStringIndex(text, -1)
	spans := make([]Span, 0, len(locs))
	for _, l := range locs {
		spans = append(spans, Span{Start: l[0], End: l[1]})
	}
	return spans
}
