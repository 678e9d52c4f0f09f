// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package suppressions

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexredact/internal/detector"
)

func entityOf(c detector.Category, value string, conf float64, layer detector.Layer) detector.Entity {
	text := "xx " + value + " xx"
	return detector.NewEntity(c, text, 3, 3+len(value), conf, layer, "test")
}

func TestFilterDecisions(t *testing.T) {
	f := NewFilter(nil, nil, 0)

	cases := []struct {
		name     string
		entity   detector.Entity
		accepted bool
		reason   Reason
		conf     float64
	}{
		{"proper name raised", entityOf(detector.Person, "Juan Pérez", 0.75, detector.LayerHeuristic), true, ReasonProperName, 0.9},
		{"possible name capped", entityOf(detector.Person, "Rosa quispe", 0.8, detector.LayerNER), true, ReasonPossibleName, 0.7},
		{"exact boilerplate", entityOf(detector.Person, "Señor Juez", 0.85, detector.LayerHeuristic), false, ReasonWhitelistExact, 0.85},
		{"ocr typo of boilerplate", entityOf(detector.Person, "Señr Juez", 0.8, detector.LayerNER), false, ReasonWhitelistFuzzy, 0.8},
		{"article reference", entityOf(detector.Person, "Artículo 123", 0.8, detector.LayerNER), false, ReasonWhitelistPattern, 0.8},
		{"procedural verb", entityOf(detector.Person, "Solicito Juan Quispe", 0.8, detector.LayerNER), false, ReasonLegalVerb, 0.8},
		{"role word", entityOf(detector.Person, "Demandante", 0.8, detector.LayerNER), false, ReasonAllExcluded, 0.8},
		{"single given name", entityOf(detector.Person, "Maria", 0.8, detector.LayerNER), false, ReasonDefaultRejectPerson, 0.8},
		{"address with number", entityOf(detector.Address, "Av. Arequipa 123", 0.85, detector.LayerHeuristic), true, ReasonAddressPattern, 0.85},
		{"address without marker", entityOf(detector.Address, "la ciudad", 0.8, detector.LayerHeuristic), false, ReasonNoAddressPattern, 0.8},
		{"court", entityOf(detector.Court, "2° Juzgado de Familia de Lima", 0.8, detector.LayerHeuristic), true, ReasonLegalEntity, 0.8},
		{"institution", entityOf(detector.Organization, "Poder Judicial", 0.9, detector.LayerNER), false, ReasonWhitelistExact, 0.9},
		{"city alone", entityOf(detector.Location, "Lima", 0.9, detector.LayerNER), false, ReasonAllExcluded, 0.9},
		{"district", entityOf(detector.Location, "Lima Norte", 0.9, detector.LayerNER), true, ReasonDefaultAccept, 0.9},
		{"weak organization", entityOf(detector.Organization, "Inversiones Andinas", 0.5, detector.LayerNER), false, ReasonBelowThreshold, 0.5},
		{"signature", entityOf(detector.Signature, "[Firma]", 0.9, detector.LayerHeuristic), true, ReasonSignatureMark, 0.9},
		{"deterministic", entityOf(detector.NationalID, "45678912", 1, detector.LayerDeterministic), true, ReasonStructured, 1},
		{"structural from heuristic", entityOf(detector.Phone, "987654321", 0.6, detector.LayerHeuristic), true, ReasonStructured, 0.6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := f.Decide(tc.entity)
			assert.Equal(t, tc.accepted, d.Accepted)
			assert.Equal(t, tc.reason, d.Reason)
			assert.InDelta(t, tc.conf, d.AdjustedConfidence, 1e-9)
		})
	}
}

func TestFilterSectionEntitiesAreNeverRemoved(t *testing.T) {
	f := NewFilter(nil, nil, 0)

	d := f.Decide(entityOf(detector.Person, "Demandante", 0.6, detector.LayerSection))
	assert.True(t, d.Accepted)
	assert.Equal(t, ReasonSectionDownWeighted, d.Reason)
	assert.Equal(t, ReasonAllExcluded, d.Detail)
	assert.InDelta(t, 0.3, d.AdjustedConfidence, 1e-9)

	d = f.Decide(entityOf(detector.Person, "María Quispe Mamani", 0.6, detector.LayerSection))
	assert.True(t, d.Accepted)
	assert.Equal(t, ReasonSectionExempt, d.Reason)
	assert.Equal(t, ReasonProperName, d.Detail)
	assert.InDelta(t, 0.9, d.AdjustedConfidence, 1e-9)
}

func TestFilterApplyKeepsAdjustedConfidence(t *testing.T) {
	f := NewFilter(nil, nil, 0)
	in := []detector.Entity{
		entityOf(detector.Person, "Juan Pérez", 0.75, detector.LayerHeuristic),
		entityOf(detector.Person, "Señor Juez", 0.85, detector.LayerHeuristic),
		entityOf(detector.NationalID, "45678912", 1, detector.LayerDeterministic),
	}

	kept, decisions := f.Apply("", in)
	require.Len(t, decisions, 3)
	require.Len(t, kept, 2)
	assert.Equal(t, detector.Person, kept[0].Category)
	assert.InDelta(t, 0.9, kept[0].Confidence, 1e-9)
	assert.Equal(t, detector.NationalID, kept[1].Category)

	s := Summarize(decisions)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Accepted)
	assert.Equal(t, 1, s.Rejected)
	assert.Equal(t, ReasonCount{Count: 1, Rejected: 1}, s.ByReason[ReasonWhitelistExact])
	assert.Equal(t, []Reason{ReasonProperName, ReasonStructured, ReasonWhitelistExact}, s.Reasons())
}

func TestFilterOperatorRules(t *testing.T) {
	sm := NewSuppressionManager(filepath.Join(t.TempDir(), "rules.yaml"))
	rule, err := sm.AddSuppression("Juan Pérez", "public official", "tester", nil)
	require.NoError(t, err)

	f := NewFilter(nil, sm, 0)

	d := f.Decide(entityOf(detector.Person, "JUAN PEREZ", 0.9, detector.LayerNER))
	assert.False(t, d.Accepted)
	assert.Equal(t, ReasonWhitelistExact, d.Reason)
	assert.Equal(t, rule.ID, d.RuleID)

	// operator rules never remove structured identifiers
	d = f.Decide(entityOf(detector.Email, "juan@correo.pe", 1, detector.LayerDeterministic))
	assert.True(t, d.Accepted)
	assert.Empty(t, d.RuleID)
}

func TestFilterCustomThreshold(t *testing.T) {
	f := NewFilter(nil, nil, 0.4)
	d := f.Decide(entityOf(detector.Organization, "Inversiones Andinas", 0.5, detector.LayerNER))
	assert.True(t, d.Accepted)
	assert.Equal(t, ReasonDefaultAccept, d.Reason)
}

func TestFilterRejectsPartOfAllowlistedPhrase(t *testing.T) {
	f := NewFilter(nil, nil, 0)
	text := "demandado: Ministerio de Justicia y Derechos Humanos"
	value := "Justicia y Derechos Humanos"
	start := strings.Index(text, value)
	e := detector.NewEntity(detector.Person, text, start, start+len(value), 0.75, detector.LayerHeuristic, "role")

	// the value alone looks like a name
	assert.True(t, f.Decide(e).Accepted)

	d := f.DecideIn(text, e)
	assert.False(t, d.Accepted)
	assert.Equal(t, ReasonWhitelistEnclosing, d.Reason)

	kept, decisions := f.Apply(text, []detector.Entity{e})
	assert.Empty(t, kept)
	require.Len(t, decisions, 1)
	assert.Equal(t, ReasonWhitelistEnclosing, decisions[0].Reason)

	// section entities are only down-weighted
	e.Layer = detector.LayerSection
	d = f.DecideIn(text, e)
	assert.True(t, d.Accepted)
	assert.Equal(t, ReasonSectionDownWeighted, d.Reason)
	assert.Equal(t, ReasonWhitelistEnclosing, d.Detail)
}
