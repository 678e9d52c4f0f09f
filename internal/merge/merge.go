// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

// Package merge consolidates the entities of every layer into one
// non-overlapping set and assigns stable placeholder tokens.
package merge

import (
	"sort"

	"lexredact/internal/detector"
	"lexredact/internal/observability"
	"lexredact/internal/redact"
	"lexredact/internal/suppressions"
)

// Placed is a final entity with its placeholder
type Placed struct {
	detector.Entity
	Number int    `json:"number" yaml:"number"`
	Token  string `json:"token" yaml:"token"`
}

// Conflict records a value seen under more than one category
type Conflict struct {
	Value      string              `json:"value" yaml:"value"`
	Categories []detector.Category `json:"categories" yaml:"categories"`
	Winner     detector.Category   `json:"winner" yaml:"winner"`
}

// Result is the consolidated entity set of one document
type Result struct {
	Entities   []Placed
	Conflicts  []Conflict
	Propagated int
	Assigner   *Assigner
}

// Tokens returns the placeholder of every entity, keyed by span
func (r *Result) Tokens() map[detector.Span]string {
	out := make(map[detector.Span]string, len(r.Entities))
	for _, p := range r.Entities {
		out[p.Span] = p.Token
	}
	return out
}

// Replacements returns the substitutions that produce the redacted text
func (r *Result) Replacements() []redact.Replacement {
	reps := make([]redact.Replacement, 0, len(r.Entities))
	for _, p := range r.Entities {
		reps = append(reps, redact.Replacement{Span: p.Span, Token: p.Token, Expect: p.Raw})
	}
	return reps
}

// Merger is the merge and canonicalization stage
type Merger struct {
	propagate bool
	vocab     detector.Vocabulary
	observer  *observability.StandardObserver
}

// NewMerger creates a merger with value propagation enabled over the
// embedded allowlist
func NewMerger() *Merger {
	return &Merger{propagate: true, vocab: suppressions.DefaultAllowlist()}
}

// SetPropagation enables or disables propagation of accepted values
func (m *Merger) SetPropagation(enabled bool) {
	m.propagate = enabled
}

// SetVocabulary sets the vocabulary that decides which values are too
// generic to propagate
func (m *Merger) SetVocabulary(vocab detector.Vocabulary) {
	if vocab != nil {
		m.vocab = vocab
	}
}

// SetObserver sets the observability component
func (m *Merger) SetObserver(observer *observability.StandardObserver) {
	m.observer = observer
}

// Merge resolves overlaps, settles category conflicts, propagates accepted
// values to their other occurrences and assigns placeholders in document order.
func (m *Merger) Merge(text string, entities []detector.Entity) *Result {
	var finishTiming func(bool, map[string]interface{})
	if m.observer != nil {
		finishTiming = m.observer.StartTiming("merge", "merge", "entities")
	}

	kept := resolveOverlaps(detector.ValidEntities(text, entities))
	conflicts := resolveConflicts(kept)

	propagated := 0
	if m.propagate {
		extra := propagate(text, kept, m.vocab)
		propagated = len(extra)
		kept = append(kept, extra...)
	}
	detector.SortEntities(kept)

	result := &Result{
		Entities:   make([]Placed, 0, len(kept)),
		Conflicts:  conflicts,
		Propagated: propagated,
		Assigner:   NewAssigner(),
	}
	// tokens already in the document keep their numbers
	result.Assigner.ReserveTokens(text)
	for _, e := range kept {
		a := result.Assigner.Assign(e.Key())
		result.Entities = append(result.Entities, Placed{Entity: e, Number: a.Number, Token: a.Token})
	}

	if finishTiming != nil {
		finishTiming(true, map[string]interface{}{
			"input":      len(entities),
			"entities":   len(result.Entities),
			"values":     result.Assigner.Len(),
			"conflicts":  len(conflicts),
			"propagated": propagated,
		})
	}
	return result
}

// resolveOverlaps keeps at most one entity per byte. Entities are visited
// most specific first; a newcomer replaces the entities it overlaps only
// when it beats every one of them.
func resolveOverlaps(entities []detector.Entity) []detector.Entity {
	sorted := make([]detector.Entity, len(entities))
	copy(sorted, entities)
	detector.SortEntities(sorted)

	var kept []detector.Entity
	for _, e := range sorted {
		var overlapping []int
		for i, k := range kept {
			if k.Span.Overlaps(e.Span) {
				overlapping = append(overlapping, i)
			}
		}
		if len(overlapping) == 0 {
			kept = append(kept, e)
			continue
		}

		wins := true
		for _, i := range overlapping {
			if !beats(e, kept[i]) {
				wins = false
				break
			}
		}

		if !wins {
			for _, i := range overlapping {
				if kept[i].Category == e.Category {
					absorb(&kept[i], e)
					break
				}
			}
			continue
		}

		for _, i := range overlapping {
			if kept[i].Category == e.Category {
				absorb(&e, kept[i])
			}
		}
		kept = removeIndexes(kept, overlapping)
		kept = append(kept, e)
	}
	return kept
}

// beats reports whether e should replace k. Same-category overlaps keep the
// wider span; across categories the more specific layer wins, then the
// category priority.
func beats(e, k detector.Entity) bool {
	if e.Category == k.Category {
		return e.Span.Len() > k.Span.Len()
	}
	if e.Layer.Rank() != k.Layer.Rank() {
		return e.Layer.Rank() > k.Layer.Rank()
	}
	return e.Category.Outranks(k.Category)
}

func absorb(winner *detector.Entity, loser detector.Entity) {
	for _, c := range loser.Candidates {
		winner.AddCandidate(c)
	}
	winner.Confidence = max(winner.Confidence, loser.Confidence)
	if winner.Section == "" {
		winner.Section = loser.Section
	}
}

func removeIndexes(entities []detector.Entity, idx []int) []detector.Entity {
	drop := make(map[int]bool, len(idx))
	for _, i := range idx {
		drop[i] = true
	}
	out := entities[:0]
	for i, e := range entities {
		if !drop[i] {
			out = append(out, e)
		}
	}
	return out
}

// resolveConflicts relabels a normalized value seen under several categories
// to the highest-priority one and records the conflict.
func resolveConflicts(entities []detector.Entity) []Conflict {
	byValue := make(map[string][]int)
	var order []string
	for i, e := range entities {
		if e.Normalized == "" {
			continue
		}
		if _, seen := byValue[e.Normalized]; !seen {
			order = append(order, e.Normalized)
		}
		byValue[e.Normalized] = append(byValue[e.Normalized], i)
	}

	var conflicts []Conflict
	for _, value := range order {
		idx := byValue[value]
		categories := map[detector.Category]bool{}
		winner := entities[idx[0]].Category
		for _, i := range idx {
			c := entities[i].Category
			categories[c] = true
			if c.Outranks(winner) {
				winner = c
			}
		}
		if len(categories) < 2 {
			continue
		}

		conflict := Conflict{Winner: winner}
		for c := range categories {
			conflict.Categories = append(conflict.Categories, c)
		}
		sort.Slice(conflict.Categories, func(i, j int) bool {
			return conflict.Categories[i].Outranks(conflict.Categories[j])
		})
		for _, i := range idx {
			e := &entities[i]
			if conflict.Value == "" && e.Category == winner {
				conflict.Value = redact.MaskValue(winner, e.Raw)
			}
			e.Category = winner
		}
		conflicts = append(conflicts, conflict)
	}
	return conflicts
}
