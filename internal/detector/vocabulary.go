// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package detector

// Vocabulary is the read-only legal vocabulary the layers consult. One
// instance is built per pipeline and shared by every layer.
type Vocabulary interface {
	// IsExcludedWord reports whether a single word never forms a name.
	IsExcludedWord(word string) bool

	// AllExcluded reports whether every word of phrase is excluded. An
	// empty phrase counts as excluded.
	AllExcluded(phrase string) bool

	// Enclosing returns the allowlisted phrase of text that contains span,
	// when there is one.
	Enclosing(text string, span Span) (string, bool)
}
