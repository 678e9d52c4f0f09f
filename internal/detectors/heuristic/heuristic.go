// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

// Package heuristic finds person, address and institution mentions from the
// trigger phrases of Peruvian legal writing.
package heuristic

import (
	"context"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"lexredact/internal/detector"
	"lexredact/internal/observability"
	"lexredact/internal/suppressions"
)

const (
	// TriggerWindow is how far before an upper-case run a trigger is looked for
	TriggerWindow = 100

	upperRunConfidence        = 0.8
	upperRunTriggerConfidence = 0.7
	weakDomicileConfidence    = 0.6
)

// Detector implements detector.Detector with the legal-context triggers.
type Detector struct {
	patternManager *PatternManager
	vocab          detector.Vocabulary
	observer       *observability.StandardObserver
}

// NewDetector creates a detector with the built-in trigger patterns over
// vocab. A nil vocab uses the embedded allowlist.
func NewDetector(vocab detector.Vocabulary) *Detector {
	if vocab == nil {
		vocab = suppressions.DefaultAllowlist()
	}
	return &Detector{patternManager: NewPatternManager(), vocab: vocab}
}

// SetObserver sets the observability component
func (d *Detector) SetObserver(observer *observability.StandardObserver) {
	d.observer = observer
}

func (d *Detector) Name() string {
	return "heuristic"
}

func (d *Detector) Layer() detector.Layer {
	return detector.LayerHeuristic
}

// Detect implements detector.Detector.
func (d *Detector) Detect(_ context.Context, doc detector.Document, _ []detector.Entity) detector.Contribution {
	var finishTiming func(bool, map[string]interface{})
	if d.observer != nil {
		finishTiming = d.observer.StartTiming("heuristic", "detect", doc.Name)
	}

	entities := d.Find(doc.Text)

	if finishTiming != nil {
		finishTiming(true, map[string]interface{}{"entities": len(entities)})
	}
	return detector.Found(entities)
}

// Find returns every trigger-based candidate in text. Candidates of the
// same category on the same span are reported once, at the highest
// confidence.
func (d *Detector) Find(text string) []detector.Entity {
	var found []detector.Entity
	for _, p := range d.patternManager.Patterns() {
		for _, m := range p.Pattern.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[2*p.Group], m[2*p.Group+1]
			if start < 0 {
				continue
			}
			if p.PlaceGroup > 0 && m[2*p.PlaceGroup] < 0 && !startsWithDigit(text[start:end]) {
				continue
			}
			if ent, ok := d.candidate(text, p, start, end); ok {
				found = append(found, ent)
			}
		}
	}
	found = append(found, d.upperCaseRuns(text)...)
	return dedupe(found)
}

func (d *Detector) candidate(text string, p TriggerPattern, start, end int) (detector.Entity, bool) {
	confidence := p.Confidence
	switch p.Category {
	case detector.Person:
		start, end = d.trimExcludedEdges(text, start, end)
		if end <= start || d.vocab.AllExcluded(text[start:end]) || d.inAllowlistedPhrase(text, start, end) {
			return detector.Entity{}, false
		}
		if strings.IndexFunc(text[start:end], unicode.IsSpace) < 0 && utf8.RuneCountInString(text[start:end]) < 3 {
			return detector.Entity{}, false
		}
	case detector.Address:
		end = start + addressEnd(text[start:end])
		start, end = trimSpace(text, start, end)
		if end-start < 6 {
			return detector.Entity{}, false
		}
		value := text[start:end]
		hasIndicator := addressIndicator.MatchString(value)
		if p.Name == "address_indicator" && !strings.ContainsAny(value, "0123456789") {
			return detector.Entity{}, false
		}
		if p.Name == "domicile" && !hasIndicator && !strings.ContainsAny(value, "0123456789") {
			confidence = weakDomicileConfidence
		}
	default:
		start, end = trimSpace(text, start, end)
	}
	if end <= start {
		return detector.Entity{}, false
	}
	return detector.NewEntity(p.Category, text, start, end, confidence, detector.LayerHeuristic, p.Name), true
}

// upperCaseRuns reports runs of upper-case words as names: three or more
// words on their own, two words only with a person trigger nearby.
func (d *Detector) upperCaseRuns(text string) []detector.Entity {
	var out []detector.Entity
	for _, m := range upperRun.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], m[3]
		if end < len(text) {
			if r, _ := utf8.DecodeRuneInString(text[end:]); unicode.IsLetter(r) || unicode.IsDigit(r) {
				continue
			}
		}
		start, end = d.trimExcludedEdges(text, start, end)
		if end <= start || d.vocab.AllExcluded(text[start:end]) || d.inAllowlistedPhrase(text, start, end) {
			continue
		}
		switch words := len(strings.Fields(text[start:end])); {
		case words >= 3:
			out = append(out, detector.NewEntity(detector.Person, text, start, end, upperRunConfidence, detector.LayerHeuristic, "upper_case_run"))
		case words == 2 && hasTriggerNearby(text, start):
			out = append(out, detector.NewEntity(detector.Person, text, start, end, upperRunTriggerConfidence, detector.LayerHeuristic, "upper_case_run_trigger"))
		}
	}
	return out
}

func hasTriggerNearby(text string, start int) bool {
	before, _ := detector.Window(text, detector.Span{Start: start, End: start}, TriggerWindow)
	return triggerNearby.MatchString(before)
}

// inAllowlistedPhrase reports a candidate that is part of an allowlisted
// phrase once its edges are trimmed, e.g. "REGISTROS" inside
// "SUPERINTENDENCIA NACIONAL DE LOS REGISTROS PUBLICOS".
func (d *Detector) inAllowlistedPhrase(text string, start, end int) bool {
	_, ok := d.vocab.Enclosing(text, detector.Span{Start: start, End: end})
	return ok
}

// trimExcludedEdges drops legal words at either end of a name candidate,
// e.g. "SEÑOR JUAN PEREZ" becomes "JUAN PEREZ".
func (d *Detector) trimExcludedEdges(text string, start, end int) (int, int) {
	for start < end {
		word, next := firstWord(text[start:end])
		if !d.vocab.IsExcludedWord(word) {
			break
		}
		start += next
	}
	for end > start {
		i := strings.LastIndexAny(text[start:end], " \t\n")
		if i < 0 {
			if d.vocab.IsExcludedWord(text[start:end]) {
				return start, start
			}
			break
		}
		if !d.vocab.IsExcludedWord(text[start+i+1 : end]) {
			break
		}
		end = start + i
	}
	return trimSpace(text, start, end)
}

func firstWord(s string) (word string, next int) {
	i := strings.IndexAny(s, " \t\n")
	if i < 0 {
		return s, len(s)
	}
	j := i
	for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n') {
		j++
	}
	return s[:i], j
}

func trimSpace(text string, start, end int) (int, int) {
	for start < end && strings.ContainsRune(" \t\n,:;-", rune(text[start])) {
		start++
	}
	for end > start && strings.ContainsRune(" \t\n,:;-.", rune(text[end-1])) {
		end--
	}
	// keep a closing period that belongs to an abbreviation, e.g. "Mz. B Lt."
	if end < len(text) && text[end] == '.' && end > start && addressAbbrev[strings.ToUpper(lastWord(text[start:end]))] {
		end++
	}
	return start, end
}

// addressEnd cuts an address capture at a clause break or a sentence period.
func addressEnd(s string) int {
	end := len(s)
	if loc := addressStop.FindStringIndex(s); loc != nil {
		end = loc[0]
	}
	for i := 0; i < end; i++ {
		if s[i] != '.' {
			continue
		}
		if i+1 < len(s) && s[i+1] != ' ' && s[i+1] != '\t' {
			continue
		}
		if addressAbbrev[strings.ToUpper(lastWord(s[:i]))] {
			continue
		}
		return i
	}
	return end
}

func lastWord(s string) string {
	i := strings.LastIndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	return s[i+1:]
}

func startsWithDigit(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}

// dedupe keeps one entity per category and span, preferring confidence.
func dedupe(entities []detector.Entity) []detector.Entity {
	sort.SliceStable(entities, func(i, j int) bool {
		a, b := entities[i], entities[j]
		if a.Span.Start != b.Span.Start {
			return a.Span.Start < b.Span.Start
		}
		if a.Span.End != b.Span.End {
			return a.Span.End > b.Span.End
		}
		return a.Confidence > b.Confidence
	})
	out := entities[:0]
	for _, e := range entities {
		if n := len(out); n > 0 && out[n-1].Span == e.Span && out[n-1].Category == e.Category {
			continue
		}
		out = append(out, e)
	}
	return out
}
