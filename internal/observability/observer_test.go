// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartTimingLogsOperation(t *testing.T) {
	var buf bytes.Buffer
	obs := NewStandardObserver(ObservabilityDebug, zerolog.New(&buf).Level(zerolog.DebugLevel))

	finish := obs.StartTiming("deterministic", "detect", "demanda.docx")
	finish(true, map[string]interface{}{"entities": 3})

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "deterministic", line["component"])
	assert.Equal(t, "detect", line["operation"])
	assert.Equal(t, "demanda.docx", line["target"])
	assert.Equal(t, true, line["success"])
	assert.EqualValues(t, 3, line["entities"])
}

func TestFailedOperationLogsWarning(t *testing.T) {
	var buf bytes.Buffer
	obs := NewStandardObserver(ObservabilityMetrics, zerolog.New(&buf))

	_, finish := obs.StartSpan(context.Background(), "ner", "detect", "doc")
	finish(false, nil)

	assert.Contains(t, buf.String(), `"level":"warn"`)
}

func TestObservabilityOffIsSilent(t *testing.T) {
	var buf bytes.Buffer
	obs := NewStandardObserver(ObservabilityOff, zerolog.New(&buf))
	obs.StartTiming("merge", "canonicalize", "doc")(true, nil)
	assert.Empty(t, buf.String())
}

func TestDebugObserverSteps(t *testing.T) {
	var out bytes.Buffer
	d := NewDebugObserver(&out, zerolog.Nop())

	outer := d.StartStep("pipeline", "run", "doc")
	inner := d.StartStep("audit", "scan", "doc")
	d.LogMetric("audit", "residuals", 0)
	inner(true, "clean")
	outer(false, "")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[1], "  > audit"))
	assert.Contains(t, lines[2], "residuals = 0")
	assert.Contains(t, lines[4], "FAILED")
	assert.Same(t, d, d.StandardObserver.DebugObserver)
}
