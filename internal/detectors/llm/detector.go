// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

// Package llm asks an OpenAI-compatible model for additional candidates.
// Text is pre-redacted with the entities already found before it leaves
// the process, and every failure contributes zero entities.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"lexredact/internal/detector"
	"lexredact/internal/observability"
	"lexredact/internal/resilience"
	"lexredact/internal/security"
)

// Confidence recorded on model-reported entities
const Confidence = 0.75

// Options configures the remote detector.
type Options struct {
	Enabled           bool
	Endpoint          string
	Model             string
	APIKey            *security.SecureString
	Timeout           time.Duration
	MaxRetries        int
	ChunkChars        int
	Concurrency       int
	RequestsPerSecond float64

	// HTTPClient overrides the default client
	HTTPClient *http.Client
}

// Detector implements detector.Detector over a chat completions endpoint.
type Detector struct {
	opts     Options
	client   *Client
	limiter  *rate.Limiter
	breaker  *resilience.CircuitBreaker
	retry    resilience.RetryConfig
	observer *observability.StandardObserver
}

// New creates a remote detector.
func New(opts Options) *Detector {
	if opts.ChunkChars <= 0 {
		opts.ChunkChars = 6000
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}

	cbConfig := resilience.DefaultCircuitBreakerConfig("llm")
	cbConfig.OnStateChange = func(name string, from, to resilience.CircuitBreakerState) {
		log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
	}

	return &Detector{
		opts:    opts,
		client:  NewClient(opts.Endpoint, opts.Model, opts.APIKey, opts.Timeout, opts.HTTPClient),
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		breaker: resilience.NewCircuitBreaker(cbConfig),
		retry:   resilience.RemoteRetryConfig(opts.MaxRetries),
	}
}

// SetObserver sets the observability component
func (d *Detector) SetObserver(observer *observability.StandardObserver) {
	d.observer = observer
}

func (d *Detector) Name() string {
	return "llm"
}

func (d *Detector) Layer() detector.Layer {
	return detector.LayerLLM
}

type chunkResult struct {
	entities []detector.Entity
	err      error
}

// Detect implements detector.Detector.
func (d *Detector) Detect(ctx context.Context, doc detector.Document, prior []detector.Entity) detector.Contribution {
	switch {
	case !d.opts.Enabled:
		return detector.Skip("disabled")
	case d.opts.Endpoint == "" || d.opts.Model == "":
		return detector.Skip("llm endpoint or model not configured")
	}

	var finishTiming func(bool, map[string]interface{})
	if d.observer != nil {
		finishTiming = d.observer.StartTiming("llm", "detect", doc.Name)
	}

	redacted := preRedact(doc.Text, prior)
	chunks := splitChunks(redacted.text, d.opts.ChunkChars)
	results := make([]chunkResult, len(chunks))
	var failed atomic.Int32

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)
	for _, c := range chunks {
		g.Go(func() error {
			entities, err := d.detectChunk(gCtx, c)
			if err != nil {
				failed.Add(1)
				log.Warn().
					Str("component", "llm").
					Int("chunk", c.index).
					Str("error_type", resilience.ClassifyError(err).Type.String()).
					Msg("chunk failed, contributing no entities")
			}
			results[c.index] = chunkResult{entities: entities, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var (
		entities []detector.Entity
		errs     []error
		seen     = make(map[detector.Span]bool)
	)
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		for _, e := range r.entities {
			orig, ok := redacted.original(e.Span)
			if !ok || seen[orig] {
				continue
			}
			seen[orig] = true
			entities = append(entities, detector.NewEntity(e.Category, doc.Text, orig.Start, orig.End, Confidence, detector.LayerLLM, "llm"))
		}
	}
	sort.SliceStable(entities, func(i, j int) bool { return entities[i].Span.Start < entities[j].Span.Start })

	n := int(failed.Load())
	if finishTiming != nil {
		finishTiming(n == 0, map[string]interface{}{
			"chunks":        len(chunks),
			"failed_chunks": n,
			"entities":      len(entities),
		})
	}

	if len(chunks) > 0 && n == len(chunks) {
		return detector.Failed(fmt.Errorf("all %d chunks failed: %w", n, errors.Join(errs...)))
	}
	c := detector.Found(entities)
	if n > 0 {
		c.Reason = fmt.Sprintf("%d of %d chunks failed", n, len(chunks))
	}
	return c
}

// detectChunk returns entities with spans relative to the redacted text.
func (d *Detector) detectChunk(ctx context.Context, c chunk) ([]detector.Entity, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	found, err := resilience.RetryWithResult(ctx, d.retry, d.breaker, func(ctx context.Context) ([]llmEntity, error) {
		content, err := d.client.Complete(ctx, systemPrompt, c.text)
		if err != nil {
			return nil, err
		}
		return parseEntities(content)
	})
	if err != nil {
		return nil, err
	}

	var out []detector.Entity
	for _, f := range found {
		category, ok := categoryFor(f.Type)
		if !ok {
			continue
		}
		for _, s := range locate(c.text, f.Value) {
			out = append(out, detector.Entity{
				Category: category,
				Span:     detector.Span{Start: c.offset + s.Start, End: c.offset + s.End},
			})
		}
	}
	return out, nil
}
