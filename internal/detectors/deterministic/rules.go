// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package deterministic

import (
	"regexp"
	"strconv"

	"lexredact/internal/detector"
)

// Rule is one structural pattern. Group selects the capture group holding
// the value; zero means the whole match.
type Rule struct {
	Name     string
	Category detector.Category
	Regex    *regexp.Regexp
	Group    int

	// Accept rejects shape look-alikes the regex alone cannot exclude.
	// It only inspects the matched value and its immediate delimiters.
	Accept func(text string, span detector.Span) bool
}

// number marker: N°, Nº, No., N., Nro., Número
const numberMarker = `(?:n(?:[°º]|o\.?|ro\.?|\.|úmero|umero)?\s*)?:?\s*`

// DefaultRules returns the built-in rule table.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "dni",
			Category: detector.NationalID,
			Regex:    regexp.MustCompile(`\b\d{8}\b`),
			Accept:   notGluedToDigits,
		},
		{
			Name:     "ruc",
			Category: detector.TaxID,
			Regex:    regexp.MustCompile(`\b(?:10|15|17|20)\d{9}\b`),
			Accept:   notGluedToDigits,
		},
		{
			Name:     "carne_extranjeria",
			Category: detector.ForeignID,
			Regex:    regexp.MustCompile(`(?i)\b(?:carn[eé]t?\s+de\s+extranjer[ií]a|C\.\s?E\.)\s*` + numberMarker + `(\d{9})\b`),
			Group:    1,
		},
		{
			Name:     "email",
			Category: detector.Email,
			Regex:    regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
		},
		{
			Name:     "phone_mobile",
			Category: detector.Phone,
			Regex:    regexp.MustCompile(`(?:\+51[\s\-]?|\b)9\d{2}[\s\-]?\d{3}[\s\-]?\d{3}\b`),
			Accept:   notGluedToDigits,
		},
		{
			Name:     "phone_lima",
			Category: detector.Phone,
			Regex:    regexp.MustCompile(`(?:\(01\)\s?|\b01[\s\-])\d{3}[\s\-]?\d{4}\b`),
		},
		{
			Name:     "phone_province",
			Category: detector.Phone,
			Regex:    regexp.MustCompile(`(?:\(0?\d{2}\)\s?|\b0\d{2}[\s\-])\d{6}\b`),
		},
		{
			Name:     "account_keyword",
			Category: detector.Account,
			Regex: regexp.MustCompile(`(?i)\b(?:cuenta(?:\s+(?:corriente|de\s+ahorros?|bancaria|sueldo))?|cta\.?(?:\s*cte\.?)?)\s*` +
				numberMarker + `(\d[\d\-]{8,26}\d)`),
			Group:  1,
			Accept: digitCount(10, 20),
		},
		{
			Name:     "cci",
			Category: detector.Account,
			Regex:    regexp.MustCompile(`(?i)\bCCI\s*` + numberMarker + `(\d{3}-?\d{3}-?\d{12}-?\d{2})\b`),
			Group:    1,
		},
		{
			Name:     "account_dashed",
			Category: detector.Account,
			Regex:    regexp.MustCompile(`\b\d{3}[\- ]\d{3}[\- ]\d{10,14}\b`),
		},
		{
			Name:     "docket_full",
			Category: detector.CaseNumber,
			Regex:    regexp.MustCompile(`\b\d{5}-\d{4}-\d{1,3}-\d{4}-[A-Z]{2}-[A-Z]{2}-\d{2}\b`),
		},
		{
			Name:     "docket_keyword",
			Category: detector.CaseNumber,
			Regex: regexp.MustCompile(`(?i)\b(?:expediente|exp\.)\s*(?:judicial\s*)?` + numberMarker +
				`(\d[\d\-]*\d(?:-[A-Z]{2}-[A-Z]{2}-\d{2})?)`),
			Group: 1,
		},
		{
			Name:     "docket_short",
			Category: detector.CaseNumber,
			Regex:    regexp.MustCompile(`\b\d{5,6}-(\d{4})(?:-\d{1,3})?\b`),
			Accept:   plausibleDocketYear,
		},
		{
			Name:     "carpeta_fiscal",
			Category: detector.CaseNumber,
			Regex:    regexp.MustCompile(`(?i)\bcarpeta\s+fiscal\s*` + numberMarker + `(\d[\d\-]*\d)`),
			Group:    1,
		},
		{
			Name:     "casilla",
			Category: detector.Mailbox,
			Regex:    regexp.MustCompile(`(?i)\bcasilla\s+(?:electr[oó]nica\s+)?(?:judicial\s+)?` + numberMarker + `(\d{3,})`),
			Group:    1,
		},
		{
			Name:     "acta",
			Category: detector.RecordNumber,
			Regex: regexp.MustCompile(`(?i)\bacta\s+(?:de\s+[a-záéíóúñ]+(?:\s+[a-záéíóúñ]+){0,2}\s+)?` +
				`n(?:[°º]|o\.?|ro\.?|\.|úmero|umero)\s*:?\s*(\d+(?:-\d+)*)`),
			Group: 1,
		},
		{
			Name:     "registro_constancia",
			Category: detector.RecordNumber,
			Regex:    regexp.MustCompile(`(?i)\b(?:registro|constancia|certificado)\s+n(?:[°º]|o\.?|ro\.?|\.)\s*:?\s*(\d+(?:-\d+)*)`),
			Group:    1,
		},
		{
			Name:     "resolucion",
			Category: detector.Resolution,
			Regex: regexp.MustCompile(`(?i)\b(?:resoluci[oó]n|auto|oficio|c[eé]dula)(?:\s+[a-záéíóúñ]+){0,2}\s+` +
				`(?:n[uú]mero|n(?:[°º]|o\.?|ro\.?|\.))\s*:?\s*(\d+-\d{4}(?:-[A-Z0-9]+)*)`),
			Group: 1,
		},
		{
			Name:     "partida",
			Category: detector.RegistryEntry,
			Regex:    regexp.MustCompile(`(?i)\bpartida\s+(?:electr[oó]nica|registral)\s*` + numberMarker + `(\d{6,})`),
			Group:    1,
		},
		{
			Name:     "asiento_ficha",
			Category: detector.RegistryEntry,
			Regex:    regexp.MustCompile(`(?i)\b(?:asiento|ficha(?:\s+registral)?)\s*` + numberMarker + `([A-Z]?\d{4,})`),
			Group:    1,
		},
		{
			Name:     "colegiatura",
			Category: detector.BarRegistration,
			Regex: regexp.MustCompile(`(?i)\b(?:C\.?A\.?L\.?|C\.?M\.?P\.?|C\.?I\.?P\.?|colegiatura|registro\s+CAL)\s*` +
				numberMarker + `(\d{3,6})\b`),
			Group: 1,
		},
		{
			Name:     "placa",
			Category: detector.Plate,
			Regex: regexp.MustCompile(`(?i)\b(?:placa(?:\s+de\s+rodaje)?|veh[ií]culo\s+de\s+placa)\s*` + numberMarker +
				`([A-Z]{1,3}\d?[\s\-]?\d{3,4}|[A-Z]\d[A-Z][\s\-]?\d{3})\b`),
			Group:  1,
			Accept: hasLetterAndDigit,
		},
	}
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// notGluedToDigits rejects values that continue into more digits through a
// single separator, such as segments of dotted or dashed numbers.
func notGluedToDigits(text string, span detector.Span) bool {
	if s := span.Start; s >= 2 {
		if sep := text[s-1]; (sep == '-' || sep == '.' || sep == '/') && isDigit(text[s-2]) {
			return false
		}
	}
	if e := span.End; e+1 < len(text) {
		if sep := text[e]; (sep == '-' || sep == '.' || sep == '/') && isDigit(text[e+1]) {
			return false
		}
	}
	return true
}

func digitCount(lo, hi int) func(string, detector.Span) bool {
	return func(text string, span detector.Span) bool {
		n := len(detector.DigitsOnly(text[span.Start:span.End]))
		return n >= lo && n <= hi
	}
}

var docketYear = regexp.MustCompile(`-(\d{4})`)

func plausibleDocketYear(text string, span detector.Span) bool {
	m := docketYear.FindStringSubmatch(text[span.Start:span.End])
	if m == nil {
		return false
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return false
	}
	return year >= 1950 && year <= 2100 && notGluedToDigits(text, span)
}

func hasLetterAndDigit(text string, span detector.Span) bool {
	var letter, digit bool
	for _, r := range text[span.Start:span.End] {
		switch {
		case r >= '0' && r <= '9':
			digit = true
		case (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z'):
			letter = true
		}
	}
	return letter && digit
}
