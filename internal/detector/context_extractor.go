// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package detector

import (
	"regexp"
	"strings"
)

// ContextInfo stores the text surrounding a span
type ContextInfo struct {
	BeforeText string
	AfterText  string

	// Line containing the span
	FullLine string
}

// ContextExtractor extracts context from normalized text around a span
type ContextExtractor struct {
	// Number of bytes before and after the span to consider
	ContextChars int
}

// NewContextExtractor creates a new context extractor with default settings
func NewContextExtractor() *ContextExtractor {
	return &ContextExtractor{ContextChars: 50}
}

// WithContextChars sets the number of context characters
func (ce *ContextExtractor) WithContextChars(chars int) *ContextExtractor {
	ce.ContextChars = chars
	return ce
}

// Around returns the context of span inside text.
func (ce *ContextExtractor) Around(text string, span Span) ContextInfo {
	before, after := Window(text, span, ce.ContextChars)

	lineStart := strings.LastIndexByte(text[:span.Start], '\n') + 1
	lineEnd := strings.IndexByte(text[span.End:], '\n')
	if lineEnd < 0 {
		lineEnd = len(text)
	} else {
		lineEnd += span.End
	}

	return ContextInfo{
		BeforeText: before,
		AfterText:  after,
		FullLine:   text[lineStart:lineEnd],
	}
}

// Matches reports whether pattern matches the before or after window.
func (ci ContextInfo) Matches(pattern *regexp.Regexp) bool {
	return pattern.MatchString(ci.BeforeText) || pattern.MatchString(ci.AfterText)
}

// Window returns up to chars bytes of text before and after the span,
// widened to rune boundaries.
func Window(text string, span Span, chars int) (before, after string) {
	start := max(span.Start-chars, 0)
	for start > 0 && !isRuneStart(text[start]) {
		start--
	}
	end := min(span.End+chars, len(text))
	for end < len(text) && !isRuneStart(text[end]) {
		end++
	}
	return text[start:span.Start], text[span.End:end]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
