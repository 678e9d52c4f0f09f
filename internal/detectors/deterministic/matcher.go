// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

// Package deterministic reports identifiers with a rigid surface shape.
// Every match is reported at confidence 1.0; the matcher cannot be disabled.
package deterministic

import (
	"context"
	"sort"

	"lexredact/internal/detector"
	"lexredact/internal/observability"
)

// Matcher implements detector.Detector over a fixed rule table.
type Matcher struct {
	rules    []Rule
	observer *observability.StandardObserver
}

// NewMatcher creates a matcher with the built-in rules.
func NewMatcher() *Matcher {
	return &Matcher{rules: DefaultRules()}
}

// NewMatcherWithRules creates a matcher over a custom rule table.
func NewMatcherWithRules(rules []Rule) *Matcher {
	return &Matcher{rules: rules}
}

// SetObserver sets the observability component
func (m *Matcher) SetObserver(observer *observability.StandardObserver) {
	m.observer = observer
}

func (m *Matcher) Name() string {
	return "deterministic"
}

func (m *Matcher) Layer() detector.Layer {
	return detector.LayerDeterministic
}

// Detect implements detector.Detector.
func (m *Matcher) Detect(_ context.Context, doc detector.Document, _ []detector.Entity) detector.Contribution {
	var finishTiming func(bool, map[string]interface{})
	if m.observer != nil {
		finishTiming = m.observer.StartTiming("deterministic", "detect", doc.Name)
	}

	entities := m.Match(doc.Text)

	if finishTiming != nil {
		finishTiming(true, map[string]interface{}{"entities": len(entities)})
	}
	return detector.Found(entities)
}

type candidate struct {
	entity   detector.Entity
	anchored bool
}

// Match runs every rule over text and resolves overlaps between structural
// matches: the longer match wins, then keyword-anchored rules, then category
// priority.
func (m *Matcher) Match(text string) []detector.Entity {
	var found []candidate
	for _, rule := range m.rules {
		for _, loc := range rule.Regex.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[0], loc[1]
			if rule.Group > 0 {
				if 2*rule.Group+1 >= len(loc) || loc[2*rule.Group] < 0 {
					continue
				}
				start, end = loc[2*rule.Group], loc[2*rule.Group+1]
			}
			if start >= end {
				continue
			}
			span := detector.Span{Start: start, End: end}
			if rule.Accept != nil && !rule.Accept(text, span) {
				continue
			}
			found = append(found, candidate{
				entity:   detector.NewEntity(rule.Category, text, start, end, 1.0, detector.LayerDeterministic, rule.Name),
				anchored: rule.Group > 0,
			})
		}
	}
	return resolveOverlaps(found)
}

func resolveOverlaps(found []candidate) []detector.Entity {
	sort.SliceStable(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if a.entity.Span.Len() != b.entity.Span.Len() {
			return a.entity.Span.Len() > b.entity.Span.Len()
		}
		if a.anchored != b.anchored {
			return a.anchored
		}
		if a.entity.Category != b.entity.Category {
			return a.entity.Category.Outranks(b.entity.Category)
		}
		return a.entity.Span.Start < b.entity.Span.Start
	})

	kept := make([]detector.Entity, 0, len(found))
	for _, c := range found {
		if detector.OverlapsAny(c.entity.Span, kept) {
			continue
		}
		kept = append(kept, c.entity)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Span.Start < kept[j].Span.Start })
	return kept
}
