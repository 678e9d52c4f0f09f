// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package suppressions

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexredact/internal/detector"
)

func TestDefaultAllowlistSize(t *testing.T) {
	al := DefaultAllowlist()
	assert.GreaterOrEqual(t, al.Size(), 200)
	assert.Same(t, al, DefaultAllowlist())
}

func TestAllowlistCheck(t *testing.T) {
	al := DefaultAllowlist()

	cases := []struct {
		phrase string
		want   Reason
		ok     bool
	}{
		{"Poder Judicial", ReasonWhitelistExact, true},
		{"señor   juez", ReasonWhitelistExact, true},
		{"MINISTERIO PUBLCO", ReasonWhitelistFuzzy, true},
		{"Código Procesl Civil", ReasonWhitelistFuzzy, true},
		{"Artículo 123", ReasonWhitelistPattern, true},
		{"Ley N° 27444", ReasonWhitelistPattern, true},
		{"Fundamentos de Hecho y Derecho", ReasonLegalTitle, true},
		{"Interpongo Recurso", ReasonLegalVerb, true},
		{"Demandante", ReasonAllExcluded, true},
		{"Juan Pérez", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.phrase, func(t *testing.T) {
			got, ok := al.Check(tc.phrase)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFuzzyMatchSkipsShortEntries(t *testing.T) {
	al, err := LoadAllowlist([]byte("exact: [\"AUTO\", \"ANEXOS\"]\n"))
	require.NoError(t, err)

	_, ok := al.FuzzyMatch("AUTA")
	assert.False(t, ok)

	entry, ok := al.FuzzyMatch("ANEXO")
	assert.True(t, ok)
	assert.Equal(t, "ANEXOS", entry)
}

func TestLoadAllowlistRejectsBadPattern(t *testing.T) {
	_, err := LoadAllowlist([]byte("patterns: [\"(unclosed\"]\n"))
	assert.Error(t, err)
}

func TestEditDistance(t *testing.T) {
	assert.Equal(t, 0, editDistance([]rune("JUEZ"), []rune("JUEZ")))
	assert.Equal(t, 1, editDistance([]rune("SENOR"), []rune("SENR")))
	assert.Equal(t, 3, editDistance([]rune(""), []rune("ABC")))
	assert.Equal(t, 3, editDistance([]rune("KITTEN"), []rune("SITTING")))
}

func TestAllowlistEnclosing(t *testing.T) {
	al := DefaultAllowlist()

	cases := []struct {
		name  string
		text  string
		value string
		entry string
		ok    bool
	}{
		{"tail of ministry", "demandado: Ministerio de Justicia y Derechos Humanos", "Justicia y Derechos Humanos",
			"MINISTERIO DE JUSTICIA Y DERECHOS HUMANOS", true},
		{"head of registry", "SE NOTIFICA A LA SUPERINTENDENCIA NACIONAL DE LOS REGISTROS PUBLICOS.", "SUPERINTENDENCIA NACIONAL DE LOS REGISTROS",
			"SUPERINTENDENCIA NACIONAL DE LOS REGISTROS PUBLICOS", true},
		{"whole entry", "ante el Poder Judicial", "Poder Judicial", "PODER JUDICIAL", true},
		{"name next to institution", "Juan Pérez Ramos, Poder Judicial", "Juan Pérez Ramos", "", false},
		{"entry on another line", "Justicia y Derechos Humanos\nMinisterio de", "Justicia y Derechos Humanos", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start := strings.Index(tc.text, tc.value)
			require.GreaterOrEqual(t, start, 0)
			entry, ok := al.Enclosing(tc.text, detector.Span{Start: start, End: start + len(tc.value)})
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.entry, entry)
		})
	}
}

func TestAllowlistAllExcludedIgnoresPunctuation(t *testing.T) {
	al := DefaultAllowlist()
	assert.True(t, al.AllExcluded("DEMANDANTE: JUZGADO,"))
	assert.True(t, al.AllExcluded(""))
	assert.False(t, al.AllExcluded("JUZGADO QUISPE"))
}
