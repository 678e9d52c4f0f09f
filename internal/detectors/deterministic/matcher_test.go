// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package deterministic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexredact/internal/detector"
)

func TestMatchSingleIdentifiers(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		category detector.Category
		raw      string
	}{
		{"dni", "identificado con DNI 12345678, domiciliado", detector.NationalID, "12345678"},
		{"ruc", "con RUC 20123456789 inscrita", detector.TaxID, "20123456789"},
		{"carne de extranjeria", "Carné de Extranjería N° 001234567", detector.ForeignID, "001234567"},
		{"email", "notificar a contacto@estudio.pe hoy", detector.Email, "contacto@estudio.pe"},
		{"mobile with country code", "celular +51 987 654 321.", detector.Phone, "+51 987 654 321"},
		{"mobile dashed", "teléfono 987-654-321", detector.Phone, "987-654-321"},
		{"lima landline", "teléfono (01) 234-5678", detector.Phone, "(01) 234-5678"},
		{"full docket", "Exp. 00123-2023-0-1801-JR-CI-01", detector.CaseNumber, "00123-2023-0-1801-JR-CI-01"},
		{"short docket", "en el proceso 04567-2019 seguido", detector.CaseNumber, "04567-2019"},
		{"carpeta fiscal", "Carpeta Fiscal N° 506-2022", detector.CaseNumber, "506-2022"},
		{"casilla", "casilla electrónica N° 12345", detector.Mailbox, "12345"},
		{"acta", "Acta de Nacimiento N° 2020-123", detector.RecordNumber, "2020-123"},
		{"resolucion", "Resolución N° 0123-2024-JUS", detector.Resolution, "0123-2024-JUS"},
		{"colegiatura", "abogado con CAL N° 45678", detector.BarRegistration, "45678"},
		{"placa", "vehículo de placa ABC-123", detector.Plate, "ABC-123"},
	}

	m := NewMatcher()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Match(tt.text)
			require.Len(t, got, 1, "entities: %+v", got)
			assert.Equal(t, tt.category, got[0].Category)
			assert.Equal(t, tt.raw, got[0].Raw)
			assert.Equal(t, tt.raw, tt.text[got[0].Span.Start:got[0].Span.End])
			assert.Equal(t, 1.0, got[0].Confidence)
			assert.Equal(t, detector.LayerDeterministic, got[0].Layer)
		})
	}
}

func TestKeywordAnchoredRuleWinsIdenticalSpan(t *testing.T) {
	m := NewMatcher()

	got := m.Match("Expediente N° 987654321")
	require.Len(t, got, 1)
	assert.Equal(t, detector.CaseNumber, got[0].Category)
	assert.Equal(t, "987654321", got[0].Raw)

	got = m.Match("Partida Electrónica N° 11223344")
	require.Len(t, got, 1)
	assert.Equal(t, detector.RegistryEntry, got[0].Category)
}

func TestLongerMatchWins(t *testing.T) {
	got := NewMatcher().Match("Exp. N° 00123-2023-0-1801-JR-CI-01 del juzgado")
	require.Len(t, got, 1)
	assert.Equal(t, "00123-2023-0-1801-JR-CI-01", got[0].Raw)
}

func TestGluedDigitsAreNotIdentifiers(t *testing.T) {
	m := NewMatcher()
	assert.Empty(t, m.Match("código interno 1234-12345678"))
	assert.Empty(t, m.Match("serie 12345678.90"))
}

func TestAccountNumberDigitsBounds(t *testing.T) {
	m := NewMatcher()

	got := m.Match("cuenta de ahorros N° 191-12345678-0-12")
	require.Len(t, got, 1)
	assert.Equal(t, detector.Account, got[0].Category)
	assert.Equal(t, "19112345678012", got[0].Normalized)
}

func TestMatcherIgnoresContext(t *testing.T) {
	// quantity look-alikes are left to the final audit
	got := NewMatcher().Match("monto de S/ 12345678 soles")
	require.Len(t, got, 1)
	assert.Equal(t, detector.NationalID, got[0].Category)
}

func TestMatchOrderAndNoOverlap(t *testing.T) {
	text := "DNI 12345678 y DNI 87654321, correo a@b.pe"
	got := NewMatcher().Match(text)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1].Span.End, got[i].Span.Start+1)
	}
	assert.Equal(t, "87654321", got[1].Raw)
}

func TestDetectReportsFound(t *testing.T) {
	m := NewMatcher()
	assert.Equal(t, "deterministic", m.Name())
	assert.Equal(t, detector.LayerDeterministic, m.Layer())

	c := m.Detect(context.Background(), detector.Document{Name: "doc", Text: "DNI 12345678"}, nil)
	assert.False(t, c.Degraded())
	require.Len(t, c.Entities, 1)
}

func TestCustomRules(t *testing.T) {
	rules := DefaultRules()[:1]
	m := NewMatcherWithRules(rules)
	assert.Empty(t, m.Match("contacto@estudio.pe"))
	assert.Len(t, m.Match("DNI 12345678"), 1)
}
