// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package suppressions

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"

	"lexredact/internal/detector"
)

//go:embed allowlist.yaml
var embeddedAllowlist []byte

// FuzzyMinLength is the shortest allowlist entry compared with edit distance
const FuzzyMinLength = 6

// AllowlistFile is the YAML layout of an allowlist
type AllowlistFile struct {
	Version       string   `yaml:"version"`
	Exact         []string `yaml:"exact"`
	Patterns      []string `yaml:"patterns"`
	LegalVerbs    []string `yaml:"legal_verbs"`
	Connectors    []string `yaml:"connectors"`
	Titles        []string `yaml:"titles"`
	ExcludedWords []string `yaml:"excluded_words"`
}

// Allowlist is the read-only legal vocabulary. Every comparison is made on
// accent-folded, upper-cased, whitespace-collapsed text.
type Allowlist struct {
	exact      map[string]struct{}
	fuzzy      []string
	patterns   []*regexp.Regexp
	verbs      map[string]struct{}
	connectors map[string]struct{}
	titles     []string
	excluded   map[string]struct{}
	maxWords   int // longest exact entry, in words
}

var _ detector.Vocabulary = (*Allowlist)(nil)

var (
	defaultAllowlist     *Allowlist
	defaultAllowlistOnce sync.Once
)

// DefaultAllowlist returns the embedded allowlist. It is parsed once and
// shared; callers must not modify it.
func DefaultAllowlist() *Allowlist {
	defaultAllowlistOnce.Do(func() {
		al, err := LoadAllowlist(embeddedAllowlist)
		if err != nil {
			panic(fmt.Sprintf("embedded allowlist is invalid: %v", err))
		}
		defaultAllowlist = al
	})
	return defaultAllowlist
}

// LoadAllowlist parses an allowlist YAML document.
func LoadAllowlist(data []byte) (*Allowlist, error) {
	var f AllowlistFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse allowlist: %w", err)
	}

	al := &Allowlist{
		exact:      make(map[string]struct{}, len(f.Exact)),
		verbs:      make(map[string]struct{}, len(f.LegalVerbs)),
		connectors: make(map[string]struct{}, len(f.Connectors)),
		excluded:   make(map[string]struct{}, len(f.ExcludedWords)),
	}
	for _, e := range f.Exact {
		key := fold(e)
		if _, dup := al.exact[key]; dup || key == "" {
			continue
		}
		al.exact[key] = struct{}{}
		al.maxWords = max(al.maxWords, len(strings.Fields(key)))
		if len([]rune(key)) >= FuzzyMinLength {
			al.fuzzy = append(al.fuzzy, key)
		}
	}
	for _, p := range f.Patterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, fmt.Errorf("invalid allowlist pattern %q: %w", p, err)
		}
		al.patterns = append(al.patterns, re)
	}
	for _, v := range f.LegalVerbs {
		al.verbs[fold(v)] = struct{}{}
	}
	for _, c := range f.Connectors {
		al.connectors[fold(c)] = struct{}{}
	}
	for _, t := range f.Titles {
		al.titles = append(al.titles, fold(t))
	}
	for _, w := range f.ExcludedWords {
		al.excluded[fold(w)] = struct{}{}
	}
	return al, nil
}

func fold(s string) string {
	return detector.FoldText(s)
}

// Size returns the number of distinct exact entries
func (al *Allowlist) Size() int {
	return len(al.exact)
}

// IsExact reports whether value is an allowlist entry
func (al *Allowlist) IsExact(value string) bool {
	_, ok := al.exact[fold(value)]
	return ok
}

// FuzzyMatch returns the entry within edit distance one of value. Only
// entries of at least FuzzyMinLength runes take part.
func (al *Allowlist) FuzzyMatch(value string) (string, bool) {
	v := []rune(fold(value))
	if len(v) < FuzzyMinLength-1 {
		return "", false
	}
	for _, entry := range al.fuzzy {
		e := []rune(entry)
		if abs(len(e)-len(v)) > 1 {
			continue
		}
		if editDistance(v, e) <= 1 {
			return entry, true
		}
	}
	return "", false
}

// MatchesPattern reports whether the trimmed value starts with a legal reference
func (al *Allowlist) MatchesPattern(value string) bool {
	v := strings.ToUpper(strings.TrimSpace(value))
	for _, re := range al.patterns {
		if re.MatchString(v) {
			return true
		}
	}
	return false
}

// ContainsLegalVerb reports whether any word of value is a procedural verb
func (al *Allowlist) ContainsLegalVerb(value string) bool {
	for _, w := range strings.Fields(fold(value)) {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if _, ok := al.verbs[w]; ok {
			return true
		}
	}
	return false
}

// IsConnector reports whether value is a discourse connector
func (al *Allowlist) IsConnector(value string) bool {
	_, ok := al.connectors[fold(value)]
	return ok
}

// IsTitle reports whether value is or starts with a section title
func (al *Allowlist) IsTitle(value string) bool {
	v := fold(value)
	for _, t := range al.titles {
		if v == t || strings.HasPrefix(v, t+" ") {
			return true
		}
	}
	return false
}

// IsExcludedWord reports whether a single word never forms a name
func (al *Allowlist) IsExcludedWord(word string) bool {
	_, ok := al.excluded[fold(word)]
	return ok
}

// AllExcluded reports whether every word of value is excluded. An empty
// value counts as excluded.
func (al *Allowlist) AllExcluded(value string) bool {
	for _, w := range strings.Fields(fold(value)) {
		if _, ok := al.excluded[strings.Trim(w, ".,;:")]; !ok {
			return false
		}
	}
	return true
}

// Enclosing returns the exact entry that occurs in text around span. Only
// word-aligned windows on the line of span, no longer than the longest
// entry, are compared.
func (al *Allowlist) Enclosing(text string, span detector.Span) (string, bool) {
	if span.Start < 0 || span.End > len(text) || span.Start >= span.End {
		return "", false
	}
	lineStart := strings.LastIndexByte(text[:span.Start], '\n') + 1
	lineEnd := len(text)
	if i := strings.IndexByte(text[span.End:], '\n'); i >= 0 {
		lineEnd = span.End + i
	}

	starts := []int{span.Start}
	for i := span.Start - 1; i >= lineStart && len(starts) <= al.maxWords; i-- {
		if !isBlank(text[i]) && (i == lineStart || isBlank(text[i-1])) {
			starts = append(starts, i)
		}
	}
	ends := []int{span.End}
	for i := span.End + 1; i <= lineEnd && len(ends) <= al.maxWords; i++ {
		if !isBlank(text[i-1]) && (i == lineEnd || isBlank(text[i])) {
			ends = append(ends, i)
		}
	}

	for _, s := range starts {
		for _, e := range ends {
			window := strings.TrimRight(text[s:e], ".,;:")
			if len(strings.Fields(window)) > al.maxWords {
				continue
			}
			if key := fold(window); key != "" {
				if _, ok := al.exact[key]; ok {
					return key, true
				}
			}
		}
	}
	return "", false
}

func isBlank(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r'
}

// Check reports the first allowlist reason that applies to phrase.
func (al *Allowlist) Check(phrase string) (Reason, bool) {
	switch {
	case al.IsExact(phrase):
		return ReasonWhitelistExact, true
	case al.MatchesPattern(phrase):
		return ReasonWhitelistPattern, true
	case al.IsConnector(phrase):
		return ReasonLegalConnector, true
	case al.IsTitle(phrase):
		return ReasonLegalTitle, true
	case al.ContainsLegalVerb(phrase):
		return ReasonLegalVerb, true
	case al.AllExcluded(phrase):
		return ReasonAllExcluded, true
	}
	if _, ok := al.FuzzyMatch(phrase); ok {
		return ReasonWhitelistFuzzy, true
	}
	return "", false
}

// editDistance is the Levenshtein distance between two rune slices
func editDistance(s1, s2 []rune) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	matrix := make([][]int, len(s1)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(s2)+1)
	}
	for i := 0; i <= len(s1); i++ {
		matrix[i][0] = i
	}
	for j := 0; j <= len(s2); j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len(s1); i++ {
		for j := 1; j <= len(s2); j++ {
			cost := 0
			if s1[i-1] != s2[j-1] {
				cost = 1
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}
	return matrix[len(s1)][len(s2)]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
