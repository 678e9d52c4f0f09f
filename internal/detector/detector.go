// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package detector

import (
	"context"
)

// Document is the immutable text snapshot every stage works on.
type Document struct {
	// ID is the per-run identifier assigned by the pipeline
	ID string
	// Name is the caller-facing document name (usually the file name)
	Name string
	// Text is the normalized text all spans point into
	Text string
}

// Detector is one candidate-producing layer of the pipeline.
//
// Implementations must treat the document and prior entities as read-only
// and return only the entities they add. A detector that cannot run returns
// Skip or Failed instead of blocking the pipeline.
type Detector interface {
	// Name returns the detector identifier used in logs and reports
	Name() string

	// Layer returns the provenance recorded on produced entities
	Layer() Layer

	// Detect returns the detector's contribution for the document
	Detect(ctx context.Context, doc Document, prior []Entity) Contribution
}

// Contribution is the result of one detector run. It distinguishes
// "nothing found", "did not run" and "failed".
type Contribution struct {
	Entities []Entity
	Skipped  bool
	Reason   string
	Err      error
}

// Found wraps entities produced by a successful run.
func Found(entities []Entity) Contribution {
	return Contribution{Entities: entities}
}

// Skip reports that the detector was disabled or unavailable.
func Skip(reason string) Contribution {
	return Contribution{Skipped: true, Reason: reason}
}

// Failed reports a detector error. The pipeline records it and continues.
func Failed(err error) Contribution {
	return Contribution{Err: err}
}

// Degraded reports whether the detector produced no usable result.
func (c Contribution) Degraded() bool {
	return c.Skipped || c.Err != nil
}

// Entity is one detected PII instance.
type Entity struct {
	Category   Category `json:"category" yaml:"category"`
	Span       Span     `json:"span" yaml:"span"`
	Raw        string   `json:"-" yaml:"-"`
	Normalized string   `json:"-" yaml:"-"`
	Confidence float64  `json:"confidence" yaml:"confidence"`
	Layer      Layer    `json:"layer" yaml:"layer"`
	Candidates []string `json:"-" yaml:"-"`

	// Section is the header that forced extraction, empty outside mandatory sections
	Section string `json:"section,omitempty" yaml:"section,omitempty"`

	// Pattern names the rule or trigger that produced the entity
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// NewEntity builds an entity for text[start:end] with its normalized value.
func NewEntity(category Category, text string, start, end int, confidence float64, layer Layer, pattern string) Entity {
	raw := text[start:end]
	return Entity{
		Category:   category,
		Span:       Span{Start: start, End: end},
		Raw:        raw,
		Normalized: Normalize(category, raw),
		Confidence: clampConfidence(confidence),
		Layer:      layer,
		Candidates: []string{raw},
		Pattern:    pattern,
	}
}

// Key is the placeholder grouping key of the entity.
func (e Entity) Key() ValueKey {
	return ValueKey{Category: e.Category, Normalized: e.Normalized}
}

// AddCandidate records another surface form for the same value.
func (e *Entity) AddCandidate(raw string) {
	for _, c := range e.Candidates {
		if c == raw {
			return
		}
	}
	e.Candidates = append(e.Candidates, raw)
}

// Clear wipes the PII carried by the entity.
func (e *Entity) Clear() {
	e.Raw = ""
	e.Normalized = ""
	for i := range e.Candidates {
		e.Candidates[i] = ""
	}
	e.Candidates = nil
}

// ValueKey identifies one distinct value of one category.
type ValueKey struct {
	Category   Category
	Normalized string
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
