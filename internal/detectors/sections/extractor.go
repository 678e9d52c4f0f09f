// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

// Package sections forces extraction of party data inside the section
// headers of a legal document that introduce it.
package sections

import (
	"context"
	"regexp"
	"strings"

	"lexredact/internal/detector"
	"lexredact/internal/observability"
	"lexredact/internal/suppressions"
)

const (
	// DefaultMaxLines bounds a region after its header
	DefaultMaxLines = 12
	// DefaultMaxChars bounds a region after its header
	DefaultMaxChars = 1500
	// Confidence is reported for every forced entity
	Confidence = 0.6
)

// Region is the body of one mandatory section.
type Region struct {
	Header string
	Span   detector.Span
}

// Extractor implements detector.Detector for mandatory sections.
type Extractor struct {
	headers  headerSet
	vocab    detector.Vocabulary
	maxLines int
	maxChars int
	observer *observability.StandardObserver
}

// NewExtractor creates an extractor with the default headers. A nil vocab
// uses the embedded allowlist; non-positive bounds fall back to the defaults.
func NewExtractor(vocab detector.Vocabulary, maxLines, maxChars int) *Extractor {
	return NewExtractorWithHeaders(vocab, DefaultHeaders, maxLines, maxChars)
}

// NewExtractorWithHeaders creates an extractor over custom headers.
func NewExtractorWithHeaders(vocab detector.Vocabulary, headers []string, maxLines, maxChars int) *Extractor {
	if vocab == nil {
		vocab = suppressions.DefaultAllowlist()
	}
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Extractor{
		headers:  newHeaderSet(headers),
		vocab:    vocab,
		maxLines: maxLines,
		maxChars: maxChars,
	}
}

// SetObserver sets the observability component
func (e *Extractor) SetObserver(observer *observability.StandardObserver) {
	e.observer = observer
}

func (e *Extractor) Name() string {
	return "sections"
}

func (e *Extractor) Layer() detector.Layer {
	return detector.LayerSection
}

// Detect implements detector.Detector.
func (e *Extractor) Detect(_ context.Context, doc detector.Document, _ []detector.Entity) detector.Contribution {
	var finishTiming func(bool, map[string]interface{})
	if e.observer != nil {
		finishTiming = e.observer.StartTiming("sections", "detect", doc.Name)
	}

	regions := e.Regions(doc.Text)
	var entities []detector.Entity
	for _, r := range regions {
		entities = append(entities, e.extractRegion(doc.Text, r)...)
	}

	if finishTiming != nil {
		finishTiming(true, map[string]interface{}{"regions": len(regions), "entities": len(entities)})
	}
	return detector.Found(entities)
}

type line struct {
	start, end int
}

func splitLines(text string) []line {
	var lines []line
	start := 0
	for start <= len(text) {
		i := strings.IndexByte(text[start:], '\n')
		if i < 0 {
			lines = append(lines, line{start, len(text)})
			break
		}
		lines = append(lines, line{start, start + i})
		start += i + 1
	}
	return lines
}

// Regions returns the bodies of every mandatory section in text. A body
// runs from the end of its header to the next heading, bounded by the line
// and character ceilings.
func (e *Extractor) Regions(text string) []Region {
	lines := splitLines(text)
	var regions []Region
	for i := 0; i < len(lines); i++ {
		l := lines[i]
		title, rest, ok := e.headers.match(text[l.start:l.end])
		if !ok {
			continue
		}

		start := l.end
		first := i + 1
		if rest >= 0 {
			start = l.start + rest
			first = i
		}
		end := start
		used := 0
		j := first
		for ; j < len(lines) && used < e.maxLines; j++ {
			cur := lines[j]
			if j > i && e.headers.isHeading(text[cur.start:cur.end]) {
				break
			}
			if strings.TrimSpace(text[cur.start:cur.end]) != "" {
				used++
			}
			end = cur.end
		}
		if end-start > e.maxChars {
			end = start + e.maxChars
			for end > start && !isRuneStart(text[end]) {
				end--
			}
		}
		if end > start {
			regions = append(regions, Region{Header: title, Span: detector.Span{Start: start, End: end}})
		}
		if j > i+1 {
			i = j - 1
		}
	}
	return regions
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

var labelLine = regexp.MustCompile(`^[ \t]*(?:[\-•*][ \t]*)?([\p{L}][\p{L} .°º/]{1,40}?)[ \t]*:[ \t]*(\S.*?)[ \t]*$`)

var (
	digitsValue = regexp.MustCompile(`\+?\d[\d \-()]*\d`)
	emailValue  = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	nameRun     = regexp.MustCompile(`(?:^|[^\p{L}\d])(\p{Lu}[\p{L}'\-]+(?:[ \t]+\p{Lu}[\p{L}'\-]+){1,4})`)
)

// labels maps folded label prefixes to the category of their value.
var labels = []struct {
	prefix   string
	category detector.Category
}{
	{"NOMBRES Y APELLIDOS", detector.Person},
	{"APELLIDOS Y NOMBRES", detector.Person},
	{"NOMBRE", detector.Person},
	{"APELLIDO", detector.Person},
	{"DEMANDANTE", detector.Person},
	{"DEMANDAD", detector.Person},
	{"SOLICITANTE", detector.Person},
	{"INVITADO", detector.Person},
	{"APODERAD", detector.Person},
	{"ABOGAD", detector.Person},
	{"REPRESENTANTE", detector.Person},
	{"RAZON SOCIAL", detector.Organization},
	{"DOMICILIO", detector.Address},
	{"DIRECCION", detector.Address},
	{"RESIDENCIA", detector.Address},
	{"D.N.I", detector.NationalID},
	{"DNI", detector.NationalID},
	{"DOCUMENTO DE IDENTIDAD", detector.NationalID},
	{"RUC", detector.TaxID},
	{"R.U.C", detector.TaxID},
	{"TELEFONO", detector.Phone},
	{"CELULAR", detector.Phone},
	{"CORREO", detector.Email},
	{"E-MAIL", detector.Email},
	{"EMAIL", detector.Email},
	{"CASILLA", detector.Mailbox},
}

func labelCategory(label string) (detector.Category, bool) {
	folded := detector.FoldText(label)
	for _, l := range labels {
		if strings.HasPrefix(folded, l.prefix) {
			return l.category, true
		}
	}
	return detector.CategoryUnknown, false
}

// extractRegion forces entities out of one region.
func (e *Extractor) extractRegion(text string, r Region) []detector.Entity {
	var out []detector.Entity
	add := func(c detector.Category, start, end int, pattern string) {
		for end > start && strings.ContainsRune(" \t.,;:", rune(text[end-1])) {
			end--
		}
		if end <= start {
			return
		}
		ent := detector.NewEntity(c, text, start, end, Confidence, detector.LayerSection, pattern)
		ent.Section = r.Header
		out = append(out, ent)
	}

	for _, l := range splitLines(text[r.Span.Start:r.Span.End]) {
		ls, le := r.Span.Start+l.start, r.Span.Start+l.end
		lineText := text[ls:le]

		scanFrom := ls
		if m := labelLine.FindStringSubmatchIndex(lineText); m != nil {
			vs, ve := ls+m[4], ls+m[5]
			label := lineText[m[2]:m[3]]
			if c, ok := labelCategory(label); ok {
				e.extractLabeled(text, c, vs, ve, add)
				continue
			}
			// short unknown labels ("Estado civil") are not names themselves
			if len(strings.Fields(label)) <= 3 {
				scanFrom = vs
			}
		}

		for _, m := range nameRun.FindAllStringSubmatchIndex(text[scanFrom:le], -1) {
			s, en := scanFrom+m[2], scanFrom+m[3]
			if e.vocab.AllExcluded(text[s:en]) {
				continue
			}
			add(detector.Person, s, en, "section_name_run")
		}
	}
	return out
}

func (e *Extractor) extractLabeled(text string, c detector.Category, vs, ve int, add func(detector.Category, int, int, string)) {
	value := text[vs:ve]
	switch c {
	case detector.NationalID, detector.TaxID, detector.Phone, detector.Mailbox:
		if loc := digitsValue.FindStringIndex(value); loc != nil {
			add(c, vs+loc[0], vs+loc[1], "section_label")
		}
	case detector.Email:
		if loc := emailValue.FindStringIndex(value); loc != nil {
			add(c, vs+loc[0], vs+loc[1], "section_label")
		}
	case detector.Address:
		if cut := strings.IndexAny(value, ";("); cut >= 0 {
			ve = vs + cut
		}
		add(c, vs, ve, "section_label")
	default:
		if cut := strings.IndexAny(value, ",;("); cut >= 0 {
			ve = vs + cut
		}
		if lower := strings.Index(strings.ToLower(text[vs:ve]), " identificad"); lower >= 0 {
			ve = vs + lower
		}
		if e.vocab.AllExcluded(text[vs:ve]) {
			return
		}
		add(c, vs, ve, "section_label")
	}
}
