// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

// Package core composes the redaction stages into one pipeline run per
// document.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"lexredact/internal/audit"
	"lexredact/internal/config"
	"lexredact/internal/detector"
	"lexredact/internal/merge"
	"lexredact/internal/observability"
	"lexredact/internal/preprocess"
	"lexredact/internal/redact"
	"lexredact/internal/report"
	"lexredact/internal/suppressions"
)

// Pipeline runs preprocessing, the detector layers, filtering, merging,
// substitution and the final audit. It holds only read-only configuration
// and may serve several documents concurrently.
type Pipeline struct {
	detectors     []detector.Detector
	filter        *suppressions.Filter
	merger        *merge.Merger
	auditor       *audit.Auditor
	observer      *observability.StandardObserver
	showOriginals bool
}

// Result is the outcome of one document run
type Result struct {
	RunID string

	// Normalized is the preprocessed text every span points into
	Normalized string

	// Offsets maps normalized offsets back to the extracted text
	Offsets *preprocess.OffsetMap

	// Text is the redacted text that passed the audit
	Text string

	Entities []merge.Placed
	Mappings []redact.Mapping
	Audit    *audit.Result
	Report   *report.AuditReport
}

// LeakFree reports the audit verdict
func (r *Result) LeakFree() bool {
	return r.Audit != nil && r.Audit.LeakFree
}

// Clear wipes the original values the result still carries.
func (r *Result) Clear() {
	for i := range r.Entities {
		r.Entities[i].Entity.Clear()
	}
	r.Normalized = ""
}

// NewPipeline builds a pipeline from cfg. A nil observer disables timing.
func NewPipeline(cfg *config.Config, observer *observability.StandardObserver) *Pipeline {
	return NewPipelineWithDetectors(cfg, observer, BuildDetectorSet(cfg, observer))
}

// NewPipelineWithDetectors builds a pipeline over an explicit layer list.
func NewPipelineWithDetectors(cfg *config.Config, observer *observability.StandardObserver, detectors []detector.Detector) *Pipeline {
	if cfg == nil {
		cfg = config.Default()
	}
	if observer == nil {
		observer = observability.NewNopObserver()
	}

	filter := BuildFilter(cfg, observer)

	merger := merge.NewMerger()
	merger.SetPropagation(cfg.Pipeline.Propagation)
	merger.SetVocabulary(filter.Allowlist())
	merger.SetObserver(observer)

	auditor := audit.NewAuditor(filter, BuildAuditLayers(filter.Allowlist(), observer)...)
	auditor.SetEmergency(cfg.Pipeline.EmergencyRedaction)
	auditor.SetObserver(observer)

	return &Pipeline{
		detectors:     detectors,
		filter:        filter,
		merger:        merger,
		auditor:       auditor,
		observer:      observer,
		showOriginals: cfg.Output.ShowOriginals,
	}
}

// Detectors returns the configured layers in run order
func (p *Pipeline) Detectors() []detector.Detector {
	return p.detectors
}

// Close releases detector resources such as loaded models.
func (p *Pipeline) Close() error {
	var errs []error
	for _, d := range p.detectors {
		if c, ok := d.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close %s: %w", d.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// Run redacts one document. Only a cancelled context, an inconsistent
// substitution or a failed emergency fallback are returned as errors;
// every other condition is reported in the result's report.
func (p *Pipeline) Run(ctx context.Context, name, extracted string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ctx, finishTiming := p.observer.StartSpan(ctx, "pipeline", "run", name)
	logger := p.observer.Logger().With().Str("run_id", runID).Str("document", name).Logger()

	result, err := p.run(ctx, runID, name, extracted)
	meta := map[string]interface{}{"run_id": runID}
	if result != nil {
		meta["state"] = string(result.Audit.State)
		meta["entities"] = len(result.Entities)
	}
	finishTiming(err == nil, meta)

	if err != nil {
		logger.Error().Err(err).Msg("pipeline run failed")
		return nil, err
	}
	if !result.LeakFree() {
		logger.Warn().Str("state", string(result.Audit.State)).Int("remaining", len(result.Audit.Remaining)).Msg(report.WarnNotSafe)
	}
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, runID, name, extracted string) (*Result, error) {
	var stages []report.Stage
	logger := p.observer.Logger()

	start := time.Now()
	pre := preprocess.Normalize(extracted)
	stages = append(stages, report.Stage{Name: "preprocess", Status: report.StageOK, DurationMS: time.Since(start).Milliseconds()})

	doc := detector.Document{ID: runID, Name: name, Text: pre.Text}

	var entities []detector.Entity
	for _, d := range p.detectors {
		start := time.Now()
		c := d.Detect(ctx, doc, entities)
		c.Entities = detector.ValidEntities(doc.Text, c.Entities)
		stages = append(stages, report.StageFromContribution(d.Name(), c, time.Since(start)))

		switch {
		case c.Err != nil:
			logger.Warn().Str("layer", d.Name()).Err(c.Err).Msg("detector layer failed, continuing without it")
		case c.Skipped:
			logger.Debug().Str("layer", d.Name()).Str("reason", c.Reason).Msg("detector layer skipped")
		case c.Reason != "":
			logger.Warn().Str("layer", d.Name()).Str("reason", c.Reason).Msg("detector layer degraded")
		}
		if debug := p.observer.DebugObserver; debug != nil {
			debug.LogMetric(d.Name(), "entities", len(c.Entities))
		}
		entities = append(entities, c.Entities...)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("pipeline cancelled: %w", err)
	}

	start = time.Now()
	kept, decisions := p.filter.Apply(doc.Text, entities)
	stages = append(stages, report.Stage{Name: "filter", Status: report.StageOK, Entities: len(kept), DurationMS: time.Since(start).Milliseconds()})

	start = time.Now()
	merged := p.merger.Merge(doc.Text, kept)
	stages = append(stages, report.Stage{Name: "merge", Status: report.StageOK, Entities: len(merged.Entities), DurationMS: time.Since(start).Milliseconds()})

	redacted, mappings, err := redact.Apply(doc.Text, merged.Replacements())
	if err != nil {
		return nil, fmt.Errorf("failed to apply replacements: %w", err)
	}

	start = time.Now()
	audited, err := p.auditor.Audit(ctx, detector.Document{ID: runID, Name: name, Text: redacted}, merged.Assigner)
	if err != nil {
		return nil, fmt.Errorf("final audit failed: %w", err)
	}
	stages = append(stages, report.Stage{Name: "audit", Status: report.StageOK, Entities: len(audited.Residuals), DurationMS: time.Since(start).Milliseconds()})
	if debug := p.observer.DebugObserver; debug != nil {
		debug.LogDetail("audit", fmt.Sprintf("%s, %d residuals, %d fixes", audited.State, len(audited.Residuals), audited.Fixes))
	}

	rep := report.Build(report.Input{
		RunID:         runID,
		Document:      name,
		Merge:         merged,
		Audit:         audited,
		Decisions:     decisions,
		Stages:        stages,
		Allowlist:     p.filter.Allowlist(),
		ShowOriginals: p.showOriginals,
	})

	return &Result{
		RunID:      runID,
		Normalized: pre.Text,
		Offsets:    pre.Offsets,
		Text:       audited.Text,
		Entities:   merged.Entities,
		Mappings:   mappings,
		Audit:      audited,
		Report:     rep,
	}, nil
}

// Audit runs only the final auditor over text that was redacted elsewhere.
func (p *Pipeline) Audit(ctx context.Context, name, text string) (*Result, error) {
	runID := uuid.NewString()
	pre := preprocess.Normalize(text)

	start := time.Now()
	audited, err := p.auditor.Audit(ctx, detector.Document{ID: runID, Name: name, Text: pre.Text}, nil)
	if err != nil {
		return nil, fmt.Errorf("final audit failed: %w", err)
	}

	rep := report.Build(report.Input{
		RunID:    runID,
		Document: name,
		Audit:    audited,
		Stages: []report.Stage{{
			Name: "audit", Status: report.StageOK, Entities: len(audited.Residuals),
			DurationMS: time.Since(start).Milliseconds(),
		}},
		Allowlist:     p.filter.Allowlist(),
		ShowOriginals: p.showOriginals,
	})
	return &Result{
		RunID:      runID,
		Normalized: pre.Text,
		Offsets:    pre.Offsets,
		Text:       audited.Text,
		Audit:      audited,
		Report:     rep,
	}, nil
}
