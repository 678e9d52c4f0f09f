// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

// Package ner wraps an ONNX token-classification model as a candidate
// source. Every failure degrades to a skipped or failed contribution.
package ner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"lexredact/internal/detector"
	"lexredact/internal/observability"
)

// Options configures the NER detector.
type Options struct {
	Enabled        bool
	ModelDir       string
	LibraryPath    string
	SequenceLength int
	MinConfidence  float64
}

type engine struct {
	model     Model
	tokenizer *Tokenizer
	labels    []string
}

// Detector implements detector.Detector over a lazily loaded model.
type Detector struct {
	opts     Options
	observer *observability.StandardObserver

	once    sync.Once
	eng     *engine
	loadErr error
	load    func(Options) (*engine, error)
}

// New creates a detector that loads its model on first use.
func New(opts Options) *Detector {
	if opts.SequenceLength <= 0 {
		opts.SequenceLength = 512
	}
	return &Detector{opts: opts, load: loadEngine}
}

// NewWithModel creates a detector over an already loaded model.
func NewWithModel(model Model, tokenizer *Tokenizer, labels []string, opts Options) *Detector {
	d := New(opts)
	d.load = func(Options) (*engine, error) {
		return &engine{model: model, tokenizer: tokenizer, labels: labels}, nil
	}
	return d
}

// SetObserver sets the observability component
func (d *Detector) SetObserver(observer *observability.StandardObserver) {
	d.observer = observer
}

func (d *Detector) Name() string {
	return "ner"
}

func (d *Detector) Layer() detector.Layer {
	return detector.LayerNER
}

// Close releases the model if it was loaded.
func (d *Detector) Close() error {
	if d.eng != nil && d.eng.model != nil {
		return d.eng.model.Close()
	}
	return nil
}

// Detect implements detector.Detector.
func (d *Detector) Detect(ctx context.Context, doc detector.Document, _ []detector.Entity) (c detector.Contribution) {
	if !d.opts.Enabled {
		return detector.Skip("disabled")
	}

	d.once.Do(func() {
		d.eng, d.loadErr = d.load(d.opts)
	})
	if d.loadErr != nil {
		if errors.Is(d.loadErr, ErrModelNotFound) {
			return detector.Skip(d.loadErr.Error())
		}
		return detector.Failed(d.loadErr)
	}

	var finishTiming func(bool, map[string]interface{})
	if d.observer != nil {
		finishTiming = d.observer.StartTiming("ner", "detect", doc.Name)
	}

	defer func() {
		if r := recover(); r != nil {
			c = detector.Failed(fmt.Errorf("ner inference panicked: %v", r))
		}
		if finishTiming != nil {
			finishTiming(c.Err == nil, map[string]interface{}{"entities": len(c.Entities)})
		}
	}()

	entities, err := d.eng.find(ctx, doc.Text, d.opts.SequenceLength, d.opts.MinConfidence)
	if err != nil {
		return detector.Failed(err)
	}
	return detector.Found(entities)
}

// find runs the model over successive windows and keeps entities at or above minConfidence.
func (e *engine) find(ctx context.Context, text string, seqLen int, minConfidence float64) ([]detector.Entity, error) {
	if len(e.labels) == 0 {
		return nil, errors.New("ner model has no labels")
	}

	var out []detector.Entity
	for _, window := range windows(e.tokenizer.Tokenize(text), seqLen-2) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ids, mask, index := e.tokenizer.Encode(window, seqLen)
		logits, err := e.model.Run(ids, mask)
		if err != nil {
			return nil, err
		}
		for _, ent := range decodeBIO(text, tagPieces(window, index, logits, e.labels)) {
			if ent.Confidence >= minConfidence {
				out = append(out, ent)
			}
		}
	}
	return out, nil
}

func loadEngine(opts Options) (*engine, error) {
	if opts.ModelDir == "" {
		return nil, fmt.Errorf("%w: ner.model_dir is not set", ErrModelNotFound)
	}
	if info, err := os.Stat(opts.ModelDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, opts.ModelDir)
	}

	labels, err := loadLabels(filepath.Join(opts.ModelDir, "labels.json"))
	if err != nil {
		return nil, fmt.Errorf("%w: labels: %v", ErrModelNotFound, err)
	}
	tokenizer, err := LoadTokenizer(opts.ModelDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelNotFound, err)
	}
	model, err := loadONNXModel(opts.ModelDir, opts.LibraryPath, opts.SequenceLength, len(labels))
	if err != nil {
		return nil, err
	}
	return &engine{model: model, tokenizer: tokenizer, labels: labels}, nil
}
