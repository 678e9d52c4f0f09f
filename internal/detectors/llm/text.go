// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"sort"
	"strings"

	"lexredact/internal/detector"
)

// segment maps a run of the pre-redacted text back to the original text.
type segment struct {
	redStart, redEnd int
	origStart        int
	token            bool
}

// redactedText is the document with prior entities replaced by placeholders.
type redactedText struct {
	text     string
	segments []segment
}

// preRedact replaces every prior entity with a placeholder so known values
// never leave the process. Overlapping entities collapse into one token.
func preRedact(text string, prior []detector.Entity) redactedText {
	entities := detector.ValidEntities(text, prior)
	sort.SliceStable(entities, func(i, j int) bool {
		if entities[i].Span.Start != entities[j].Span.Start {
			return entities[i].Span.Start < entities[j].Span.Start
		}
		return entities[i].Span.Len() > entities[j].Span.Len()
	})

	type region struct {
		span detector.Span
		key  detector.ValueKey
	}
	var regions []region
	for _, e := range entities {
		if n := len(regions); n > 0 && e.Span.Start < regions[n-1].span.End {
			regions[n-1].span.End = max(regions[n-1].span.End, e.Span.End)
			continue
		}
		regions = append(regions, region{span: e.Span, key: e.Key()})
	}

	numbers := make(map[detector.ValueKey]int)
	perCategory := make(map[detector.Category]int)
	var (
		b        strings.Builder
		segments []segment
		pos      int
	)
	plain := func(end int) {
		if end > pos {
			start := b.Len()
			b.WriteString(text[pos:end])
			segments = append(segments, segment{redStart: start, redEnd: b.Len(), origStart: pos})
		}
	}
	for _, r := range regions {
		plain(r.span.Start)
		n, ok := numbers[r.key]
		if !ok {
			perCategory[r.key.Category]++
			n = perCategory[r.key.Category]
			numbers[r.key] = n
		}
		start := b.Len()
		b.WriteString(detector.Placeholder(r.key.Category, n))
		segments = append(segments, segment{redStart: start, redEnd: b.Len(), origStart: r.span.Start, token: true})
		pos = r.span.End
	}
	plain(len(text))

	return redactedText{text: b.String(), segments: segments}
}

// original maps a span of the redacted text to the original text. Spans
// touching a placeholder or crossing segments are not mappable.
func (r redactedText) original(s detector.Span) (detector.Span, bool) {
	i := sort.Search(len(r.segments), func(i int) bool { return r.segments[i].redEnd > s.Start })
	if i == len(r.segments) {
		return detector.Span{}, false
	}
	seg := r.segments[i]
	if seg.token || s.Start < seg.redStart || s.End > seg.redEnd {
		return detector.Span{}, false
	}
	delta := seg.origStart - seg.redStart
	return detector.Span{Start: s.Start + delta, End: s.End + delta}, true
}

// chunk is a slice of the redacted text with its offset.
type chunk struct {
	index  int
	offset int
	text   string
}

// splitChunks cuts text into pieces of at most maxChars bytes, preferring
// paragraph breaks, then line breaks, then spaces.
func splitChunks(text string, maxChars int) []chunk {
	if maxChars <= 0 {
		maxChars = len(text)
	}
	var chunks []chunk
	start := 0
	for start < len(text) {
		end := len(text)
		if end-start > maxChars {
			end = cutPoint(text, start, start+maxChars)
		}
		if strings.TrimSpace(text[start:end]) != "" {
			chunks = append(chunks, chunk{index: len(chunks), offset: start, text: text[start:end]})
		}
		start = end
	}
	return chunks
}

func cutPoint(text string, start, limit int) int {
	window := text[start:limit]
	for _, sep := range []string{"\n\n", "\n", " "} {
		if i := strings.LastIndex(window, sep); i > 0 {
			return start + i + len(sep)
		}
	}
	for limit > start+1 && !isRuneStart(text[limit]) {
		limit--
	}
	return limit
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
