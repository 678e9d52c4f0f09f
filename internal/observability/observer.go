// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of pipeline spans.
const TracerName = "lexredact/pipeline"

// StandardObserver implements observability for all components
type StandardObserver struct {
	level         ObservabilityLevel
	logger        zerolog.Logger
	tracer        trace.Tracer
	DebugObserver *DebugObserver // Reference to debug observer when in debug mode
}

type ObservabilityLevel int

const (
	ObservabilityOff     ObservabilityLevel = 0
	ObservabilityMetrics ObservabilityLevel = 1
	ObservabilityDebug   ObservabilityLevel = 2
)

// NewStandardObserver creates observability component
func NewStandardObserver(level ObservabilityLevel, logger zerolog.Logger) *StandardObserver {
	return &StandardObserver{
		level:  level,
		logger: logger,
		tracer: otel.Tracer(TracerName),
	}
}

// NewNopObserver returns an observer that records nothing.
func NewNopObserver() *StandardObserver {
	return NewStandardObserver(ObservabilityOff, zerolog.Nop())
}

// Logger returns the observer's logger.
func (o *StandardObserver) Logger() zerolog.Logger {
	return o.logger
}

// StartTiming returns a function to complete timing
func (o *StandardObserver) StartTiming(component, operation, target string) func(success bool, metadata map[string]interface{}) {
	_, finish := o.StartSpan(context.Background(), component, operation, target)
	return finish
}

// StartSpan opens a trace span for the operation and returns the derived
// context together with the finish function.
func (o *StandardObserver) StartSpan(ctx context.Context, component, operation, target string) (context.Context, func(success bool, metadata map[string]interface{})) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, component+"."+operation,
		trace.WithAttributes(
			attribute.String("lexredact.component", component),
			attribute.String("lexredact.target", target),
		))

	return ctx, func(success bool, metadata map[string]interface{}) {
		duration := time.Since(start)

		for k, v := range metadata {
			span.SetAttributes(attributeFor(k, v))
		}
		if !success {
			span.SetStatus(codes.Error, operation+" failed")
		}
		span.End()

		o.LogOperation(StandardObservabilityData{
			Component:  component,
			Operation:  operation,
			Target:     target,
			DurationMs: duration.Milliseconds(),
			Success:    success,
			Metadata:   metadata,
		})
	}
}

// LogOperation logs operation data
func (o *StandardObserver) LogOperation(data StandardObservabilityData) {
	if o.level == ObservabilityOff {
		return
	}

	level := zerolog.DebugLevel
	if !data.Success {
		level = zerolog.WarnLevel
	}
	event := o.logger.WithLevel(level).
		Str("component", data.Component).
		Str("operation", data.Operation).
		Int64("duration_ms", data.DurationMs).
		Bool("success", data.Success)
	if data.Target != "" {
		event = event.Str("target", data.Target)
	}
	if data.Error != "" {
		event = event.Str("error", data.Error)
	}
	if len(data.Metadata) > 0 {
		event = event.Fields(data.Metadata)
	}
	event.Msg("operation")
}

// StandardObservabilityData for all components
type StandardObservabilityData struct {
	Component  string                 `json:"component"`
	Operation  string                 `json:"operation"`
	Target     string                 `json:"target,omitempty"`
	DurationMs int64                  `json:"duration_ms,omitempty"`
	Success    bool                   `json:"success"`
	Error      string                 `json:"error,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

func attributeFor(key string, value interface{}) attribute.KeyValue {
	key = "lexredact." + key
	switch v := value.(type) {
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case string:
		return attribute.String(key, v)
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}
