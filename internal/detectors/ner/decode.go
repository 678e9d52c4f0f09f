// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package ner

import (
	"math"
	"strings"

	"lexredact/internal/detector"
)

// categoryForLabel maps a BIO entity type to a category. Unknown types are dropped.
func categoryForLabel(typ string) (detector.Category, bool) {
	switch strings.ToUpper(typ) {
	case "PER", "PERS", "PERSON":
		return detector.Person, true
	case "LOC", "LOCATION":
		return detector.Location, true
	case "ORG", "ORGANIZATION":
		return detector.Organization, true
	case "ADDR", "DIR", "ADDRESS":
		return detector.Address, true
	default:
		return detector.CategoryUnknown, false
	}
}

func splitLabel(lbl string) (prefix, typ string) {
	lbl = strings.TrimSpace(lbl)
	if lbl == "" || strings.EqualFold(lbl, "O") {
		return "", ""
	}
	if parts := strings.SplitN(lbl, "-", 2); len(parts) == 2 {
		return strings.ToUpper(parts[0]), parts[1]
	}
	return "", lbl
}

type tagged struct {
	piece Piece
	label string
	score float64
}

// tagPieces assigns the argmax label and its softmax probability to each piece.
func tagPieces(pieces []Piece, index []int, logits []float32, labels []string) []tagged {
	numLabels := len(labels)
	out := make([]tagged, 0, len(pieces))
	for pos, pi := range index {
		if pi < 0 || pi >= len(pieces) {
			continue
		}
		base := pos * numLabels
		if base+numLabels > len(logits) {
			break
		}
		best, prob := argmaxSoftmax(logits[base : base+numLabels])
		out = append(out, tagged{piece: pieces[pi], label: labels[best], score: prob})
	}
	return out
}

func argmaxSoftmax(row []float32) (int, float64) {
	best := 0
	for i, v := range row {
		if v > row[best] {
			best = i
		}
	}
	var sum float64
	for _, v := range row {
		sum += math.Exp(float64(v - row[best]))
	}
	if sum == 0 {
		return best, 0
	}
	return best, 1 / sum
}

type span struct {
	category   detector.Category
	start, end int
	scores     []float64
}

// decodeBIO merges tagged pieces into entities. Continuation pieces follow
// the label of their word's first piece.
func decodeBIO(text string, tags []tagged) []detector.Entity {
	var (
		out []detector.Entity
		cur *span
	)
	flush := func() {
		if cur != nil {
			var total float64
			for _, s := range cur.scores {
				total += s
			}
			conf := total / float64(len(cur.scores))
			out = append(out, detector.NewEntity(cur.category, text, cur.start, cur.end, conf, detector.LayerNER, "ner"))
			cur = nil
		}
	}

	for _, t := range tags {
		if t.piece.Sub {
			if cur != nil {
				cur.end = max(cur.end, t.piece.End)
				cur.scores = append(cur.scores, t.score)
			}
			continue
		}
		prefix, typ := splitLabel(t.label)
		category, ok := categoryForLabel(typ)
		if !ok {
			flush()
			continue
		}
		if prefix == "B" || cur == nil || cur.category != category {
			flush()
			cur = &span{category: category, start: t.piece.Start, end: t.piece.End, scores: []float64{t.score}}
			continue
		}
		cur.end = max(cur.end, t.piece.End)
		cur.scores = append(cur.scores, t.score)
	}
	flush()
	return out
}
