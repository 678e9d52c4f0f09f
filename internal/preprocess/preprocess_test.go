// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package preprocess

import (
	"testing"

	"lexredact/internal/detector"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeIdentityKeepsOffsets(t *testing.T) {
	in := "DNI 12345678 de Juan Pérez"
	res := Normalize(in)
	assert.Equal(t, in, res.Text)
	assert.Zero(t, res.Changes)
	for i := 0; i <= len(in); i++ {
		assert.Equal(t, i, res.Offsets.Original(i))
	}
}

func TestNormalizeSubstitutions(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"crlf", "linea uno\r\nlinea dos", "linea uno\nlinea dos"},
		{"lone cr", "a\rb", "a\nb"},
		{"nbsp", "N°\u00a0123", "N° 123"},
		{"tab", "DNI\t123", "DNI 123"},
		{"zero width", "12\u200b345", "12345"},
		{"soft hyphen", "deman\u00addante", "demandante"},
		{"typographic quotes", "\u201cel texto\u201d", `"el texto"`},
		{"en dash docket", "00123\u20132023", "00123-2023"},
		{"combining accent", "Pe\u0301rez", "Pérez"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Normalize(tc.in)
			assert.Equal(t, tc.want, res.Text)
			assert.Equal(t, len(res.Text), res.Offsets.Len())
			assert.NotZero(t, res.Changes)
		})
	}
}

func TestOffsetMapPointsBackIntoExtractedText(t *testing.T) {
	in := "Sr.\u00a0Juan\r\nPérez con DNI\u200b 12345678"
	res := Normalize(in)
	require.Equal(t, "Sr. Juan\nPérez con DNI 12345678", res.Text)

	start := len("Sr. Juan\nPérez con DNI ")
	span := detector.Span{Start: start, End: start + 8}
	require.Equal(t, "12345678", res.Text[span.Start:span.End])

	orig := res.Offsets.OriginalSpan(span)
	assert.Equal(t, "12345678", in[orig.Start:orig.End])

	name := detector.Span{Start: len("Sr. "), End: len("Sr. Juan")}
	origName := res.Offsets.OriginalSpan(name)
	assert.Equal(t, "Juan", in[origName.Start:origName.End])
}

func TestOffsetMapComposedCharacter(t *testing.T) {
	in := "Sra. Pe\u0301rez"
	res := Normalize(in)
	require.Equal(t, "Sra. Pérez", res.Text)

	span := detector.Span{Start: len("Sra. "), End: len(res.Text)}
	orig := res.Offsets.OriginalSpan(span)
	assert.Equal(t, "Pe\u0301rez", in[orig.Start:orig.End])
}

func TestNilOffsetMapIsIdentity(t *testing.T) {
	var m *OffsetMap
	assert.Equal(t, 7, m.Original(7))
	assert.Zero(t, m.Len())
}
