// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

// Package report assembles the per-document audit report handed to callers.
// Original values only appear masked unless the caller asks for originals.
package report

import (
	"fmt"
	"time"

	"lexredact/internal/audit"
	"lexredact/internal/detector"
	"lexredact/internal/merge"
	"lexredact/internal/redact"
	"lexredact/internal/suppressions"
	"lexredact/internal/version"
)

// Warning texts shared with the text formatter
const (
	WarnNotSafe       = "DOCUMENT MARKED AS NOT SAFE - manual review required"
	warnUnresolved    = "CRITICAL: %d leaks could not be auto-fixed"
	warnAutoFixed     = "Applied %d emergency auto-fixes"
	warnEmergency     = "Emergency hard-redaction masked %d spans; those values have no placeholder"
	warnHeuristic     = "%d %s values were found only by legal-context heuristics; review recommended"
	warnLayerSkipped  = "Layer %s skipped: %s"
	warnLayerFailed   = "Layer %s failed: %s"
	warnLayerDegraded = "Layer %s degraded: %s"
)

// StageStatus is the outcome of one pipeline stage
type StageStatus string

const (
	StageOK      StageStatus = "ok"
	StageSkipped StageStatus = "skipped"
	StageFailed  StageStatus = "failed"
)

// Stage records what one pipeline stage did
type Stage struct {
	Name       string      `json:"name" yaml:"name"`
	Status     StageStatus `json:"status" yaml:"status"`
	Entities   int         `json:"entities" yaml:"entities"`
	DurationMS int64       `json:"duration_ms" yaml:"duration_ms"`
	Reason     string      `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// StageFromContribution converts a detector contribution into a stage record.
func StageFromContribution(name string, c detector.Contribution, elapsed time.Duration) Stage {
	s := Stage{Name: name, Status: StageOK, Entities: len(c.Entities), DurationMS: elapsed.Milliseconds(), Reason: c.Reason}
	switch {
	case c.Err != nil:
		s.Status, s.Reason = StageFailed, c.Err.Error()
	case c.Skipped:
		s.Status = StageSkipped
	}
	return s
}

// EntityRecord is one final entity as shown to callers
type EntityRecord struct {
	Token      string            `json:"token" yaml:"token"`
	Category   detector.Category `json:"category" yaml:"category"`
	Span       detector.Span     `json:"span" yaml:"span"`
	Layer      detector.Layer    `json:"layer" yaml:"layer"`
	Confidence float64           `json:"confidence" yaml:"confidence"`
	Value      string            `json:"value" yaml:"value"`
	Section    string            `json:"section,omitempty" yaml:"section,omitempty"`
	Pattern    string            `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// Replacement is one placeholder and the value it stands for
type Replacement struct {
	Token       string            `json:"token" yaml:"token"`
	Category    detector.Category `json:"category" yaml:"category"`
	Value       string            `json:"value" yaml:"value"`
	Occurrences int               `json:"occurrences" yaml:"occurrences"`
	Source      string            `json:"source" yaml:"source"`
}

// AuditReport is the per-run record of one document
type AuditReport struct {
	RunID            string               `json:"run_id" yaml:"run_id"`
	Version          string               `json:"version" yaml:"version"`
	Document         string               `json:"document" yaml:"document"`
	GeneratedAt      time.Time            `json:"generated_at" yaml:"generated_at"`
	State            audit.State          `json:"state" yaml:"state"`
	LeakFree         bool                 `json:"leak_free" yaml:"leak_free"`
	TotalEntities    int                  `json:"total_entities" yaml:"total_entities"`
	Counts           map[string]int       `json:"counts" yaml:"counts"`
	DistinctValues   map[string]int       `json:"distinct_values" yaml:"distinct_values"`
	Entities         []EntityRecord       `json:"entities" yaml:"entities"`
	Replacements     []Replacement        `json:"replacements" yaml:"replacements"`
	Residuals        []audit.Residual     `json:"residuals" yaml:"residuals"`
	Remaining        []audit.Residual     `json:"remaining,omitempty" yaml:"remaining,omitempty"`
	Fixes            int                  `json:"fixes" yaml:"fixes"`
	Propagated       int                  `json:"propagated" yaml:"propagated"`
	Conflicts        []merge.Conflict     `json:"conflicts" yaml:"conflicts"`
	FilterDecisions  suppressions.Summary `json:"filter_decisions" yaml:"filter_decisions"`
	Stages           []Stage              `json:"stages" yaml:"stages"`
	Quality          Quality              `json:"quality" yaml:"quality"`
	Warnings         []string             `json:"warnings" yaml:"warnings"`
	EmergencyApplied bool                 `json:"emergency_applied" yaml:"emergency_applied"`
}

// Input is everything one run produced
type Input struct {
	RunID         string
	Document      string
	Merge         *merge.Result
	Audit         *audit.Result
	Decisions     []suppressions.Decision
	Stages        []Stage
	Allowlist     *suppressions.Allowlist
	ShowOriginals bool
	Now           func() time.Time
}

// Build assembles the report of one run.
func Build(in Input) *AuditReport {
	now := time.Now
	if in.Now != nil {
		now = in.Now
	}

	r := &AuditReport{
		RunID:           in.RunID,
		Version:         version.Short(),
		Document:        in.Document,
		GeneratedAt:     now().UTC(),
		Counts:          map[string]int{},
		DistinctValues:  map[string]int{},
		Entities:        []EntityRecord{},
		Replacements:    []Replacement{},
		Residuals:       []audit.Residual{},
		Conflicts:       []merge.Conflict{},
		FilterDecisions: suppressions.Summarize(in.Decisions),
		Stages:          in.Stages,
		Warnings:        []string{},
	}
	if r.Stages == nil {
		r.Stages = []Stage{}
	}

	if in.Merge != nil {
		r.addEntities(in.Merge, in.ShowOriginals)
		r.Propagated = in.Merge.Propagated
		if in.Merge.Conflicts != nil {
			r.Conflicts = in.Merge.Conflicts
		}
	}

	if in.Audit != nil {
		r.State = in.Audit.State
		r.LeakFree = in.Audit.LeakFree
		r.Fixes = in.Audit.Fixes
		r.Remaining = in.Audit.Remaining
		r.EmergencyApplied = in.Audit.EmergencyApplied
		if in.Audit.Residuals != nil {
			r.Residuals = in.Audit.Residuals
		}
		r.addFixes(in.Audit.Residuals)
	}

	r.Quality = Assess(in.Merge, in.Audit, in.Decisions, in.Allowlist)
	if !in.ShowOriginals {
		for i, o := range r.Quality.OverRedacted {
			r.Quality.OverRedacted[i].Value = redact.MaskValue(detector.Person, o.Value)
		}
	}

	r.Warnings = append(warnings(r, in.Merge), r.Quality.Warnings...)
	return r
}

func (r *AuditReport) addEntities(m *merge.Result, showOriginals bool) {
	byToken := make(map[string]int)
	for _, p := range m.Entities {
		value := redact.MaskValue(p.Category, p.Raw)
		if showOriginals {
			value = p.Raw
		}
		r.Entities = append(r.Entities, EntityRecord{
			Token:      p.Token,
			Category:   p.Category,
			Span:       p.Span,
			Layer:      p.Layer,
			Confidence: p.Confidence,
			Value:      value,
			Section:    p.Section,
			Pattern:    p.Pattern,
		})
		r.Counts[p.Category.String()]++

		if i, ok := byToken[p.Token]; ok {
			r.Replacements[i].Occurrences++
			continue
		}
		byToken[p.Token] = len(r.Replacements)
		r.Replacements = append(r.Replacements, Replacement{
			Token:       p.Token,
			Category:    p.Category,
			Value:       value,
			Occurrences: 1,
			Source:      "pipeline",
		})
	}
	r.TotalEntities = len(m.Entities)
	if m.Assigner != nil {
		for c, n := range m.Assigner.Counts() {
			r.DistinctValues[c.String()] = n
		}
	}
}

// addFixes lists the placeholders the auditor introduced
func (r *AuditReport) addFixes(residuals []audit.Residual) {
	seen := make(map[string]int, len(r.Replacements))
	for i, rep := range r.Replacements {
		seen[rep.Token] = i
	}
	for _, res := range residuals {
		if !res.Fixed || res.Token == "" {
			continue
		}
		if i, ok := seen[res.Token]; ok {
			r.Replacements[i].Occurrences++
			continue
		}
		seen[res.Token] = len(r.Replacements)
		r.Replacements = append(r.Replacements, Replacement{
			Token:       res.Token,
			Category:    res.Category,
			Value:       res.Value,
			Occurrences: 1,
			Source:      "audit",
		})
	}
}

func warnings(r *AuditReport, m *merge.Result) []string {
	out := []string{}

	switch r.State {
	case audit.StateUnresolved:
		out = append(out, fmt.Sprintf(warnUnresolved, len(r.Remaining)), WarnNotSafe)
		if r.EmergencyApplied {
			out = append(out, fmt.Sprintf(warnEmergency, len(r.Remaining)))
		}
	case audit.StateAutoFixed:
		out = append(out, fmt.Sprintf(warnAutoFixed, r.Fixes))
	}

	if m != nil {
		heuristic := map[detector.Category]int{}
		for _, p := range m.Entities {
			if p.Layer == detector.LayerHeuristic && (p.Category == detector.Person || p.Category == detector.Address) {
				heuristic[p.Category]++
			}
		}
		for _, c := range []detector.Category{detector.Person, detector.Address} {
			if n := heuristic[c]; n > 0 {
				out = append(out, fmt.Sprintf(warnHeuristic, n, c))
			}
		}
	}

	for _, s := range r.Stages {
		switch {
		case s.Status == StageFailed:
			out = append(out, fmt.Sprintf(warnLayerFailed, s.Name, s.Reason))
		case s.Status == StageSkipped && s.Reason != "disabled":
			out = append(out, fmt.Sprintf(warnLayerSkipped, s.Name, s.Reason))
		case s.Status == StageOK && s.Reason != "":
			out = append(out, fmt.Sprintf(warnLayerDegraded, s.Name, s.Reason))
		}
	}
	return out
}

// Critical reports whether the document was marked as not safe
func (r *AuditReport) Critical() bool {
	return r.State == audit.StateUnresolved
}
