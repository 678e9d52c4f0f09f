// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexredact/internal/audit"
	"lexredact/internal/detector"
	"lexredact/internal/merge"
	"lexredact/internal/suppressions"
	"lexredact/internal/version"
)

func mergeResult(t *testing.T, text string, entities ...detector.Entity) *merge.Result {
	t.Helper()
	m := merge.NewMerger()
	m.SetPropagation(false)
	return m.Merge(text, entities)
}

func entityAt(t *testing.T, text, value string, c detector.Category, layer detector.Layer) detector.Entity {
	t.Helper()
	i := strings.Index(text, value)
	require.GreaterOrEqual(t, i, 0, value)
	return detector.NewEntity(c, text, i, i+len(value), 0.9, layer, "test")
}

func TestBuildMasksOriginals(t *testing.T) {
	text := "DNI 45678912 de María Quispe, correo mq@estudio.pe"
	res := mergeResult(t, text,
		entityAt(t, text, "45678912", detector.NationalID, detector.LayerDeterministic),
		entityAt(t, text, "María Quispe", detector.Person, detector.LayerSection),
		entityAt(t, text, "mq@estudio.pe", detector.Email, detector.LayerDeterministic),
	)

	r := Build(Input{
		RunID:    "run-1",
		Document: "escrito.docx",
		Merge:    res,
		Audit:    &audit.Result{State: audit.StateClean, LeakFree: true},
	})

	assert.Equal(t, "run-1", r.RunID)
	assert.True(t, r.LeakFree)
	assert.Equal(t, 3, r.TotalEntities)
	assert.Equal(t, map[string]int{"NATIONAL_ID": 1, "PERSON": 1, "EMAIL": 1}, r.Counts)
	require.Len(t, r.Replacements, 3)

	values := map[string]string{}
	for _, rep := range r.Replacements {
		values[rep.Token] = rep.Value
		assert.Equal(t, "pipeline", rep.Source)
	}
	assert.Equal(t, "45****12", values["{{NATIONAL_ID_1}}"])
	assert.Equal(t, "Ma*** Qu****", values["{{PERSON_1}}"])
	assert.Equal(t, "mq***@estudio.pe", values["{{EMAIL_1}}"])
	for _, e := range r.Entities {
		assert.NotContains(t, e.Value, "45678912")
	}
	assert.Empty(t, r.Warnings)
}

func TestBuildShowOriginals(t *testing.T) {
	text := "DNI 45678912 y DNI 45678912"
	first := entityAt(t, text, "45678912", detector.NationalID, detector.LayerDeterministic)
	second := detector.NewEntity(detector.NationalID, text, strings.LastIndex(text, "45678912"), len(text), 1, detector.LayerDeterministic, "dni")

	r := Build(Input{Merge: mergeResult(t, text, first, second), ShowOriginals: true})
	require.Len(t, r.Replacements, 1)
	assert.Equal(t, "45678912", r.Replacements[0].Value)
	assert.Equal(t, 2, r.Replacements[0].Occurrences)
	assert.Equal(t, 1, r.DistinctValues["NATIONAL_ID"])
}

func TestBuildWarnings(t *testing.T) {
	text := "el señor Pedro Ramos vive en Jr. Cusco 120"
	res := mergeResult(t, text,
		entityAt(t, text, "Pedro Ramos", detector.Person, detector.LayerHeuristic),
		entityAt(t, text, "Jr. Cusco 120", detector.Address, detector.LayerHeuristic),
	)

	tests := []struct {
		name   string
		audit  *audit.Result
		stages []Stage
		want   []string
	}{
		{
			name:  "auto fixed",
			audit: &audit.Result{State: audit.StateAutoFixed, LeakFree: true, Fixes: 2},
			want: []string{
				"Applied 2 emergency auto-fixes",
				"1 PERSON values were found only by legal-context heuristics; review recommended",
				"1 ADDRESS values were found only by legal-context heuristics; review recommended",
			},
		},
		{
			name: "unresolved",
			audit: &audit.Result{State: audit.StateUnresolved, Remaining: []audit.Residual{
				{Category: detector.Phone}, {Category: detector.Email},
			}},
			want: []string{"CRITICAL: 2 leaks could not be auto-fixed", WarnNotSafe},
		},
		{
			name:  "degraded layers",
			audit: &audit.Result{State: audit.StateClean, LeakFree: true},
			stages: []Stage{
				{Name: "ner", Status: StageSkipped, Reason: "ner model not found"},
				{Name: "llm", Status: StageSkipped, Reason: "disabled"},
				{Name: "remote", Status: StageFailed, Reason: "timeout"},
			},
			want: []string{"Layer ner skipped: ner model not found", "Layer remote failed: timeout"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := Build(Input{Merge: res, Audit: tc.audit, Stages: tc.stages})
			for _, w := range tc.want {
				assert.Contains(t, r.Warnings, w)
			}
			assert.Equal(t, tc.audit.State == audit.StateUnresolved, r.Critical())
		})
	}
}

func TestBuildListsAuditFixes(t *testing.T) {
	r := Build(Input{
		Merge: &merge.Result{},
		Audit: &audit.Result{State: audit.StateAutoFixed, LeakFree: true, Fixes: 1, Residuals: []audit.Residual{
			{Category: detector.NationalID, Value: "45****12", Fixed: true, Token: "{{NATIONAL_ID_1}}"},
		}},
	})
	require.Len(t, r.Replacements, 1)
	assert.Equal(t, "audit", r.Replacements[0].Source)
	assert.Equal(t, "45****12", r.Replacements[0].Value)
}

func TestBuildSummarizesDecisions(t *testing.T) {
	r := Build(Input{Decisions: []suppressions.Decision{
		{Accepted: true, Reason: suppressions.ReasonStructured},
		{Accepted: false, Reason: suppressions.ReasonWhitelistExact},
		{Accepted: false, Reason: suppressions.ReasonWhitelistExact},
	}, Now: func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }})

	assert.Equal(t, 3, r.FilterDecisions.Total)
	assert.Equal(t, 2, r.FilterDecisions.ByReason[suppressions.ReasonWhitelistExact].Rejected)
	assert.Equal(t, 2024, r.GeneratedAt.Year())
	assert.Equal(t, version.Short(), r.Version)
	assert.NotNil(t, r.Stages)
	assert.NotNil(t, r.Entities)
}

func TestStageFromContribution(t *testing.T) {
	s := StageFromContribution("ner", detector.Failed(errors.New("boom")), 3*time.Millisecond)
	assert.Equal(t, StageFailed, s.Status)
	assert.Equal(t, "boom", s.Reason)
	assert.Equal(t, int64(3), s.DurationMS)

	s = StageFromContribution("llm", detector.Skip("disabled"), 0)
	assert.Equal(t, StageSkipped, s.Status)

	c := detector.Found(make([]detector.Entity, 2))
	c.Reason = "1 of 2 chunks failed"
	s = StageFromContribution("llm", c, 0)
	assert.Equal(t, StageOK, s.Status)
	assert.Equal(t, 2, s.Entities)
}
