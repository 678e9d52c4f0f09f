// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexredact/internal/detector"
)

func TestApply(t *testing.T) {
	text := "DNI 12345678 de Juan Pérez."
	reps := []Replacement{
		{Span: detector.Span{Start: 16, End: 27}, Token: "{{PERSON_1}}", Expect: "Juan Pérez"},
		{Span: detector.Span{Start: 4, End: 12}, Token: "{{NATIONAL_ID_1}}", Expect: "12345678"},
	}

	out, mappings, err := Apply(text, reps)
	require.NoError(t, err)
	assert.Equal(t, "DNI {{NATIONAL_ID_1}} de {{PERSON_1}}.", out)

	require.Len(t, mappings, 2)
	assert.Equal(t, "{{NATIONAL_ID_1}}", out[mappings[0].Redacted.Start:mappings[0].Redacted.End])
	assert.Equal(t, "{{PERSON_1}}", out[mappings[1].Redacted.Start:mappings[1].Redacted.End])
	assert.Equal(t, detector.Span{Start: 4, End: 12}, mappings[0].Original)
}

func TestApplyErrors(t *testing.T) {
	text := "abcdef"

	_, _, err := Apply(text, []Replacement{{Span: detector.Span{Start: 2, End: 9}, Token: "x"}})
	assert.ErrorIs(t, err, ErrInvalidSpan)

	_, _, err = Apply(text, []Replacement{
		{Span: detector.Span{Start: 0, End: 3}, Token: "x"},
		{Span: detector.Span{Start: 2, End: 4}, Token: "y"},
	})
	assert.ErrorIs(t, err, ErrOverlap)

	_, _, err = Apply(text, []Replacement{{Span: detector.Span{Start: 0, End: 3}, Token: "x", Expect: "abd"}})
	assert.ErrorIs(t, err, ErrMismatch)

	out, mappings, err := Apply(text, nil)
	require.NoError(t, err)
	assert.Equal(t, text, out)
	assert.Empty(t, mappings)
}

func TestMask(t *testing.T) {
	text := "Sr. Núñez 12345678"
	out, err := Mask(text, []detector.Span{{Start: 4, End: 11}, {Start: 12, End: 20}, {Start: 16, End: 20}})
	require.NoError(t, err)
	assert.Equal(t, "Sr. █████ ████████", out)

	_, err = Mask(text, []detector.Span{{Start: 5, End: 50}})
	assert.ErrorIs(t, err, ErrInvalidSpan)
}

func TestMaskValue(t *testing.T) {
	cases := []struct {
		category detector.Category
		raw      string
		want     string
	}{
		{detector.NationalID, "45678912", "45****12"},
		{detector.TaxID, "20123456789", "20*******89"},
		{detector.Email, "maria.q@correo.pe", "ma***@correo.pe"},
		{detector.Phone, "+51 987 654 321", "987***21"},
		{detector.Phone, "987-654-321", "987***21"},
		{detector.Person, "María Quispe", "Ma*** Qu****"},
		{detector.Address, "Av. Los Próceres 123", "Av***"},
		{detector.NationalID, "123", "***"},
		{detector.Person, "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.category.String()+"/"+tc.raw, func(t *testing.T) {
			assert.Equal(t, tc.want, MaskValue(tc.category, tc.raw))
		})
	}
}

func TestPlaceholders(t *testing.T) {
	text := "correo a@b.pe"
	e := detector.NewEntity(detector.Email, text, 7, 13, 1, detector.LayerDeterministic, "email")
	reps := Placeholders(text, []detector.Entity{e}, func(detector.Entity) string { return "{{EMAIL_1}}" })
	require.Len(t, reps, 1)
	assert.Equal(t, "a@b.pe", reps[0].Expect)

	out, _, err := Apply(text, reps)
	require.NoError(t, err)
	assert.Equal(t, "correo {{EMAIL_1}}", out)
}
