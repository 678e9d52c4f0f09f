// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package sections

import (
	"regexp"
	"strings"

	"lexredact/internal/detector"
)

// DefaultHeaders are the section titles that introduce party data.
var DefaultHeaders = []string{
	"DATOS DEL DEMANDANTE",
	"DATOS DE LA DEMANDANTE",
	"DATOS DE LOS DEMANDANTES",
	"DATOS DEL DEMANDADO",
	"DATOS DE LA DEMANDADA",
	"DATOS DE LOS DEMANDADOS",
	"DATOS DEL SOLICITANTE",
	"DATOS DE LOS SOLICITANTES",
	"DATOS DEL DENUNCIANTE",
	"DATOS DEL IMPUTADO",
	"DATOS DEL AGRAVIADO",
	"DATOS PERSONALES",
	"DATOS DE LAS PARTES",
	"IDENTIFICACIÓN DE LAS PARTES",
	"PARTES PROCESALES",
	"DATOS DEL ABOGADO",
	"DATOS DEL APODERADO",
	"DATOS DEL REPRESENTANTE",
	"INFORMACIÓN DE LAS PARTES",
	"NOMBRE Y DIRECCIÓN DEL DEMANDADO",
	"NOMBRE DEL INVITADO",
	"OTRAS PERSONAS CON DERECHO ALIMENTARIO",
	"PARTY INFORMATION",
}

// numbering in front of a heading: "1.", "II)", "a.", "-"
var headingPrefix = regexp.MustCompile(`^(?:(?:\d{1,2}|[IVXLC]{1,5}|[a-zA-Z])[.)\-]\s*|[\-•*]\s*)`)

// numbered heading of any kind, such as "II. PETITORIO" or "PRIMERO:"
var numberedHeading = regexp.MustCompile(`^(?:\d{1,2}|[IVXLC]{1,5})[.)\-]\s+\S`)

var ordinalHeading = regexp.MustCompile(`^(?:PRIMERO|SEGUNDO|TERCERO|CUARTO|QUINTO|SEXTO|SEPTIMO|OCTAVO|NOVENO|DECIMO)\b`)

// headerSet matches folded heading lines against the configured titles.
type headerSet struct {
	titles map[string]string
}

func newHeaderSet(headers []string) headerSet {
	hs := headerSet{titles: make(map[string]string, len(headers))}
	for _, h := range headers {
		hs.titles[foldHeading(h)] = h
	}
	return hs
}

// match reports whether line is one of the titles. rest is the byte offset
// within line where the body starts when the title is followed by a colon
// and a value on the same line, or -1.
func (hs headerSet) match(line string) (title string, rest int, ok bool) {
	trimmed := strings.TrimSpace(line)
	lead := len(line) - len(strings.TrimLeft(line, " \t"))
	if loc := headingPrefix.FindStringIndex(trimmed); loc != nil {
		trimmed = trimmed[loc[1]:]
		lead += loc[1]
	}

	head, body, hasColon := strings.Cut(trimmed, ":")
	if t, found := hs.titles[foldHeading(head)]; found {
		if hasColon && strings.TrimSpace(body) != "" {
			return t, lead + len(head) + 1, true
		}
		return t, -1, true
	}
	return "", -1, false
}

// isHeading reports whether line starts a new block of the document.
func (hs headerSet) isHeading(line string) bool {
	if _, _, ok := hs.match(line); ok {
		return true
	}
	trimmed := strings.TrimSpace(line)
	if ordinalHeading.MatchString(detector.FoldAccents(trimmed)) {
		return true
	}
	if trimmed == "" || strings.IndexFunc(trimmed, isLower) >= 0 {
		return false
	}
	if numberedHeading.MatchString(trimmed) {
		return true
	}
	// bare upper-case title ending in a colon, e.g. "PETITORIO:"
	return strings.HasSuffix(trimmed, ":") && !strings.ContainsAny(trimmed, "0123456789")
}

func foldHeading(s string) string {
	return strings.TrimRight(detector.FoldText(s), ": ")
}

func isLower(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'à' && r <= 'ÿ'
}
