// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package redact

import (
	"strings"

	"lexredact/internal/detector"
)

// MaskValue returns a preview of an original value that keeps just enough
// of it for a reviewer to recognise it.
func MaskValue(category detector.Category, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	switch category {
	case detector.NationalID, detector.TaxID, detector.ForeignID, detector.Account:
		return maskDigits(detector.DigitsOnly(raw), 2, 2)
	case detector.Phone:
		d := detector.Normalize(detector.Phone, raw)
		if len(d) < 6 {
			return strings.Repeat("*", len(d))
		}
		return d[:3] + "***" + d[len(d)-2:]
	case detector.Email:
		return maskEmail(raw)
	case detector.Person, detector.Organization:
		return maskWords(raw)
	default:
		return keepPrefix(raw, 2) + "***"
	}
}

func maskDigits(d string, head, tail int) string {
	if len(d) <= head+tail {
		return strings.Repeat("*", len(d))
	}
	return d[:head] + strings.Repeat("*", len(d)-head-tail) + d[len(d)-tail:]
}

func maskEmail(raw string) string {
	user, domain, ok := strings.Cut(raw, "@")
	if !ok {
		return keepPrefix(raw, 2) + "***"
	}
	return keepPrefix(user, 2) + "***@" + domain
}

func maskWords(raw string) string {
	words := strings.Fields(raw)
	for i, w := range words {
		r := []rune(w)
		if len(r) <= 2 {
			continue
		}
		words[i] = string(r[:2]) + strings.Repeat("*", len(r)-2)
	}
	return strings.Join(words, " ")
}

func keepPrefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
