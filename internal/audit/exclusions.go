// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"regexp"
	"strings"
	"time"

	"lexredact/internal/detector"
)

const (
	moneyWindow = 40
	legalWindow = 30
)

var (
	moneyContext = regexp.MustCompile(`(?i)(?:S/\.?|US\$|\$|%|\bPEN\b|\bUSD\b|\bsoles\b|\bd[oó]lares\b|\bporcentaje\b|\bpuntos\b|` +
		`\bcuotas\b|\bmeses\b|\bd[ií]as\b|\baños\b|\bhoras\b|\bmetros\b|\bkilos\b|\bgramos\b)`)

	legalNumberContext = regexp.MustCompile(`(?i)(?:art[ií]culo|\bart\.|\binciso|\bnumeral|\bliteral|\bley\b|\bdecreto|` +
		`\bexpediente|\bexp\.|\bcasilla|resoluci[oó]n|\bfolios?\b|p[aá]gina|\bcuaderno|\btomo|\blegajo)`)

	exampleDomains = []string{"example.com", "example.org", "test.com"}
)

// bareNumber reports categories whose shape is a plain digit run and can be
// mistaken for a quantity, a date or a legal reference.
func bareNumber(c detector.Category) bool {
	switch c {
	case detector.NationalID, detector.TaxID, detector.ForeignID, detector.Phone, detector.Account:
		return true
	}
	return false
}

// excluded reports why a residual candidate is not a leak, or "" when it is.
func excluded(text string, e detector.Entity) string {
	if e.Category == detector.Email {
		domain := strings.ToLower(e.Raw[strings.LastIndexByte(e.Raw, '@')+1:])
		for _, d := range exampleDomains {
			if domain == d {
				return "example_domain"
			}
		}
		return ""
	}
	if !bareNumber(e.Category) {
		return ""
	}

	if before, after := detector.Window(text, e.Span, moneyWindow); moneyContext.MatchString(before) || moneyContext.MatchString(after) {
		return "money_context"
	}
	if before, _ := detector.Window(text, e.Span, legalWindow); legalNumberContext.MatchString(before) {
		return "legal_number_context"
	}
	if e.Category == detector.NationalID && isCompactDate(detector.DigitsOnly(e.Raw)) {
		return "date"
	}
	return ""
}

// isCompactDate reports an 8-digit YYYYMMDD date between 1900 and 2100
func isCompactDate(d string) bool {
	if len(d) != 8 {
		return false
	}
	t, err := time.Parse("20060102", d)
	if err != nil {
		return false
	}
	return t.Year() >= 1900 && t.Year() <= 2100
}
