// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"lexredact/internal/detector"
	"lexredact/internal/resilience"
)

const systemPrompt = `Eres un asistente que identifica datos personales en documentos legales peruanos.
Devuelve exclusivamente JSON con la forma {"entities":[{"type":"PERSON","value":"texto exacto"}]}.
Tipos permitidos: PERSON, ADDRESS, ORGANIZATION, LOCATION, NATIONAL_ID, TAX_ID, PHONE, EMAIL, ACCOUNT, PLATE.
Copia cada valor exactamente como aparece en el texto. No incluyas marcadores {{...}}, cargos,
nombres de juzgados, leyes, artículos ni expresiones procesales.`

type llmEntity struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type llmResult struct {
	Entities []llmEntity `json:"entities"`
}

// parseEntities decodes the assistant content, tolerating code fences and
// prose around the JSON object.
func parseEntities(content string) ([]llmEntity, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end < start {
		return nil, resilience.NewPermanentError("malformed entity list: no JSON object", nil)
	}

	var out llmResult
	if err := json.Unmarshal([]byte(content[start:end+1]), &out); err != nil {
		return nil, resilience.NewPermanentError("malformed entity list", err)
	}
	return out.Entities, nil
}

// categoryFor maps a model-reported type to a category.
func categoryFor(typ string) (detector.Category, bool) {
	t := strings.ToUpper(strings.TrimSpace(typ))
	switch t {
	case "PER", "PERSONA", "NAME", "NOMBRE":
		return detector.Person, true
	case "DIRECCION", "DIRECCIÓN", "DOMICILIO":
		return detector.Address, true
	case "ORG", "ORGANIZACION", "ORGANIZACIÓN":
		return detector.Organization, true
	case "LOC", "LUGAR":
		return detector.Location, true
	case "DNI":
		return detector.NationalID, true
	case "RUC":
		return detector.TaxID, true
	}
	return detector.ParseCategory(t)
}

// locate returns every word-bounded occurrence of value in text, matching
// case-insensitively with flexible whitespace.
func locate(text, value string) []detector.Span {
	value = strings.TrimSpace(value)
	if utf8.RuneCountInString(value) < 2 || detector.PlaceholderPattern.MatchString(value) {
		return nil
	}
	parts := strings.Fields(value)
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	re, err := regexp.Compile(`(?i)` + strings.Join(parts, `\s+`))
	if err != nil {
		return nil
	}

	var spans []detector.Span
	for _, loc := range re.FindAllStringIndex(text, -1) {
		if wordBounded(text, loc[0], loc[1]) {
			spans = append(spans, detector.Span{Start: loc[0], End: loc[1]})
		}
	}
	return spans
}

func wordBounded(text string, start, end int) bool {
	if start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(text[:start]); isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		if r, _ := utf8.DecodeRuneInString(text[end:]); isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
