// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"lexredact/internal/config"
	"lexredact/internal/detector"
	"lexredact/internal/detectors/deterministic"
	"lexredact/internal/detectors/heuristic"
	"lexredact/internal/detectors/llm"
	"lexredact/internal/detectors/ner"
	"lexredact/internal/detectors/sections"
	"lexredact/internal/observability"
	"lexredact/internal/security"
	"lexredact/internal/suppressions"
)

type observable interface {
	SetObserver(observer *observability.StandardObserver)
}

// BuildDetectorSet constructs the ordered detector layers from cfg. The
// deterministic matcher is always present; the statistical and remote
// layers are included even when disabled so their stage is reported.
func BuildDetectorSet(cfg *config.Config, observer *observability.StandardObserver) []detector.Detector {
	if cfg == nil {
		cfg = config.Default()
	}

	vocab := legalVocabulary()
	set := []detector.Detector{
		deterministic.NewMatcher(),
		sections.NewExtractor(vocab, cfg.Pipeline.SectionMaxLines, cfg.Pipeline.SectionMaxChars),
		heuristic.NewDetector(vocab),
		ner.New(ner.Options{
			Enabled:        cfg.NER.Enabled,
			ModelDir:       cfg.NER.ModelDir,
			LibraryPath:    cfg.NER.LibraryPath,
			SequenceLength: cfg.NER.MaxSequenceLength,
			MinConfidence:  cfg.NER.MinConfidence,
		}),
		llm.New(llm.Options{
			Enabled:           cfg.LLM.Enabled,
			Endpoint:          cfg.LLM.Endpoint,
			Model:             cfg.LLM.Model,
			APIKey:            security.FromEnv(cfg.LLM.APIKeyEnv),
			Timeout:           cfg.LLM.Timeout,
			MaxRetries:        cfg.LLM.MaxRetries,
			ChunkChars:        cfg.LLM.ChunkChars,
			Concurrency:       cfg.LLM.Concurrency,
			RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		}),
	}

	setObserver(observer, set...)
	return set
}

// BuildAuditLayers returns the layers the final auditor re-runs.
func BuildAuditLayers(vocab detector.Vocabulary, observer *observability.StandardObserver) []detector.Detector {
	set := []detector.Detector{deterministic.NewMatcher(), heuristic.NewDetector(vocab)}
	setObserver(observer, set...)
	return set
}

// BuildFilter constructs the anti-over-redaction filter with the operator
// rules file named in cfg, when one is configured.
func BuildFilter(cfg *config.Config, observer *observability.StandardObserver) *suppressions.Filter {
	if cfg == nil {
		cfg = config.Default()
	}
	var rules *suppressions.SuppressionManager
	if cfg.Allowlist.RulesFile != "" {
		rules = suppressions.NewSuppressionManager(cfg.Allowlist.RulesFile)
	}
	f := suppressions.NewFilter(legalVocabulary(), rules, cfg.Pipeline.ConfidenceThreshold)
	if observer != nil {
		f.SetObserver(observer)
	}
	return f
}

// legalVocabulary is the one read-only allowlist the layers, the filter
// and the merger consult
func legalVocabulary() *suppressions.Allowlist {
	return suppressions.DefaultAllowlist()
}

func setObserver(observer *observability.StandardObserver, detectors ...detector.Detector) {
	if observer == nil {
		return
	}
	for _, d := range detectors {
		if o, ok := d.(observable); ok {
			o.SetObserver(observer)
		}
	}
}
