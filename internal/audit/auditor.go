// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

// Package audit re-scans redacted text for residual PII, fixes what it finds
// with the run's placeholder assignment and reports whether the document is
// leak-free.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"lexredact/internal/detector"
	"lexredact/internal/merge"
	"lexredact/internal/observability"
	"lexredact/internal/redact"
	"lexredact/internal/suppressions"
)

// State is the outcome of an audit
type State string

const (
	StateClean      State = "CLEAN"
	StateAutoFixed  State = "AUTO_FIXED"
	StateUnresolved State = "UNRESOLVED"
)

// ErrFallbackFailed means emergency hard-redaction could not remove every
// residual. The document must not be released.
var ErrFallbackFailed = errors.New("emergency hard-redaction failed")

// placeholderMask hides placeholder tokens from the residual scan without
// moving offsets
const placeholderMask = '#'

// Residual is one PII match found in redacted text
type Residual struct {
	Category detector.Category `json:"category" yaml:"category"`
	Span     detector.Span     `json:"span" yaml:"span"`
	Pattern  string            `json:"pattern" yaml:"pattern"`
	Layer    detector.Layer    `json:"layer" yaml:"layer"`
	Value    string            `json:"value" yaml:"value"`
	Fixed    bool              `json:"fixed" yaml:"fixed"`
	Token    string            `json:"token,omitempty" yaml:"token,omitempty"`

	raw        string
	normalized string
}

// Result is the audit outcome for one document
type Result struct {
	State            State      `json:"state" yaml:"state"`
	LeakFree         bool       `json:"leak_free" yaml:"leak_free"`
	Text             string     `json:"-" yaml:"-"`
	Residuals        []Residual `json:"residuals" yaml:"residuals"`
	Remaining        []Residual `json:"remaining,omitempty" yaml:"remaining,omitempty"`
	Fixes            int        `json:"fixes" yaml:"fixes"`
	EmergencyApplied bool       `json:"emergency_applied" yaml:"emergency_applied"`
	Excluded         int        `json:"excluded" yaml:"excluded"`
}

// Auditor is the final audit stage. It re-runs the structural and
// legal-context layers, filtered like the main pipeline.
type Auditor struct {
	detectors []detector.Detector
	filter    *suppressions.Filter
	emergency bool
	observer  *observability.StandardObserver
}

// NewAuditor creates an auditor over the given layers
func NewAuditor(filter *suppressions.Filter, detectors ...detector.Detector) *Auditor {
	if filter == nil {
		filter = suppressions.NewFilter(nil, nil, 0)
	}
	return &Auditor{detectors: detectors, filter: filter}
}

// SetEmergency enables emergency hard-redaction of unresolved residuals
func (a *Auditor) SetEmergency(enabled bool) {
	a.emergency = enabled
}

// SetObserver sets the observability component
func (a *Auditor) SetObserver(observer *observability.StandardObserver) {
	a.observer = observer
}

// Audit checks doc.Text, the text with every agreed replacement applied.
// Residuals are replaced using assigner, which may be nil for text that was
// redacted elsewhere. One fix pass is attempted before the document is
// declared unresolved.
func (a *Auditor) Audit(ctx context.Context, doc detector.Document, assigner *merge.Assigner) (*Result, error) {
	var finishTiming func(bool, map[string]interface{})
	if a.observer != nil {
		finishTiming = a.observer.StartTiming("audit", "audit", doc.Name)
	}

	result, err := a.audit(ctx, doc, assigner)

	if finishTiming != nil {
		meta := map[string]interface{}{}
		if result != nil {
			meta["state"] = string(result.State)
			meta["residuals"] = len(result.Residuals)
			meta["fixes"] = result.Fixes
			meta["emergency"] = result.EmergencyApplied
		}
		finishTiming(err == nil, meta)
	}
	return result, err
}

func (a *Auditor) audit(ctx context.Context, doc detector.Document, assigner *merge.Assigner) (*Result, error) {
	if assigner == nil {
		assigner = merge.NewAssigner()
	}
	assigner.ReserveTokens(doc.Text)

	residuals, excludedCount := a.Scan(ctx, doc)
	result := &Result{Text: doc.Text, Residuals: residuals, Excluded: excludedCount}
	if len(residuals) == 0 {
		result.State, result.LeakFree = StateClean, true
		return result, nil
	}

	reps := make([]redact.Replacement, 0, len(residuals))
	for i := range residuals {
		r := &residuals[i]
		got := assigner.Assign(detector.ValueKey{Category: r.Category, Normalized: r.normalized})
		r.Token = got.Token
		reps = append(reps, redact.Replacement{Span: r.Span, Token: got.Token, Expect: r.raw})
	}
	fixed, _, err := redact.Apply(doc.Text, reps)
	if err != nil {
		return nil, fmt.Errorf("failed to apply audit fixes: %w", err)
	}

	remaining, _ := a.Scan(ctx, detector.Document{ID: doc.ID, Name: doc.Name, Text: fixed})
	for i := range residuals {
		residuals[i].Fixed = true
	}
	result.Text = fixed
	result.Fixes = len(residuals)
	if len(remaining) == 0 {
		result.State, result.LeakFree = StateAutoFixed, true
		return result, nil
	}

	result.State = StateUnresolved
	result.Remaining = remaining
	if !a.emergency {
		return result, nil
	}

	spans := make([]detector.Span, 0, len(remaining))
	for _, r := range remaining {
		spans = append(spans, r.Span)
	}
	masked, err := redact.Mask(fixed, spans)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFallbackFailed, err)
	}
	if left, _ := a.Scan(ctx, detector.Document{ID: doc.ID, Name: doc.Name, Text: masked}); len(left) > 0 {
		return nil, fmt.Errorf("%w: %d residuals survived masking", ErrFallbackFailed, len(left))
	}
	result.Text = masked
	result.EmergencyApplied = true
	return result, nil
}

// Scan returns the residual PII in doc.Text, ignoring placeholder tokens and
// values whose context shows they are not identifiers. It also returns how
// many candidates were excluded by context.
func (a *Auditor) Scan(ctx context.Context, doc detector.Document) ([]Residual, int) {
	masked := maskPlaceholders(doc.Text)
	scanDoc := detector.Document{ID: doc.ID, Name: doc.Name, Text: masked}

	var found []detector.Entity
	for _, d := range a.detectors {
		c := d.Detect(ctx, scanDoc, found)
		if c.Degraded() {
			continue
		}
		found = append(found, c.Entities...)
	}
	kept, _ := a.filter.Apply(masked, detector.ValidEntities(masked, found))

	placeholders := detector.PlaceholderSpans(doc.Text)
	var residuals []Residual
	excludedCount := 0
	for _, e := range kept {
		if overlapsSpans(e.Span, placeholders) {
			continue
		}
		if excluded(masked, e) != "" {
			excludedCount++
			continue
		}
		raw := doc.Text[e.Span.Start:e.Span.End]
		residuals = append(residuals, Residual{
			Category:   e.Category,
			Span:       e.Span,
			Pattern:    e.Pattern,
			Layer:      e.Layer,
			Value:      redact.MaskValue(e.Category, raw),
			raw:        raw,
			normalized: e.Normalized,
		})
	}
	return nonOverlapping(residuals), excludedCount
}

func maskPlaceholders(text string) string {
	spans := detector.PlaceholderSpans(text)
	if len(spans) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, s := range spans {
		b.WriteString(text[last:s.Start])
		b.WriteString(strings.Repeat(string(placeholderMask), s.Len()))
		last = s.End
	}
	b.WriteString(text[last:])
	return b.String()
}

func overlapsSpans(span detector.Span, spans []detector.Span) bool {
	for _, s := range spans {
		if s.Overlaps(span) {
			return true
		}
	}
	return false
}

// nonOverlapping keeps the most specific residual for every byte, in
// document order.
func nonOverlapping(residuals []Residual) []Residual {
	sort.SliceStable(residuals, func(i, j int) bool {
		a, b := residuals[i], residuals[j]
		if a.Layer.Rank() != b.Layer.Rank() {
			return a.Layer.Rank() > b.Layer.Rank()
		}
		if a.Span.Len() != b.Span.Len() {
			return a.Span.Len() > b.Span.Len()
		}
		return a.Span.Start < b.Span.Start
	})

	var out []Residual
	for _, r := range residuals {
		clash := false
		for _, o := range out {
			if o.Span.Overlaps(r.Span) {
				clash = true
				break
			}
		}
		if !clash {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Span.Start < out[j].Span.Start })
	return out
}
