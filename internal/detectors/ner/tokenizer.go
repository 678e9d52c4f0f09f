// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package ner

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// Piece is one WordPiece token with byte offsets into the source text.
type Piece struct {
	ID    int64
	Start int
	End   int
	// Word is the index of the pre-tokenized word the piece belongs to
	Word int
	// Sub is set on ## continuation pieces
	Sub bool
}

// Tokenizer is a BERT-style WordPiece tokenizer that keeps offsets.
type Tokenizer struct {
	vocab        map[string]int64
	lowerCase    bool
	clsID        int64
	sepID        int64
	padID        int64
	unkID        int64
	continuation string
}

// NewTokenizer builds a tokenizer over an in-memory vocabulary.
func NewTokenizer(vocab map[string]int64, lowerCase bool) *Tokenizer {
	return &Tokenizer{
		vocab:        vocab,
		lowerCase:    lowerCase,
		continuation: "##",
		clsID:        vocab["[CLS]"],
		sepID:        vocab["[SEP]"],
		padID:        vocab["[PAD]"],
		unkID:        vocab["[UNK]"],
	}
}

// LoadTokenizer loads vocab.txt or tokenizer.json from a model directory.
func LoadTokenizer(dir string) (*Tokenizer, error) {
	vocabPath := filepath.Join(dir, "vocab.txt")
	if _, err := os.Stat(vocabPath); err == nil {
		return loadVocabTxt(vocabPath)
	}
	jsonPath := filepath.Join(dir, "tokenizer.json")
	if _, err := os.Stat(jsonPath); err == nil {
		return loadTokenizerJSON(jsonPath)
	}
	return nil, fmt.Errorf("tokenizer assets not found in %s (vocab.txt or tokenizer.json)", dir)
}

func loadVocabTxt(path string) (*Tokenizer, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open vocab: %w", err)
	}
	defer f.Close()

	vocab := make(map[string]int64)
	sc := bufio.NewScanner(f)
	var idx int64
	for sc.Scan() {
		token := strings.TrimSpace(sc.Text())
		if token == "" {
			continue
		}
		vocab[token] = idx
		idx++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan vocab: %w", err)
	}
	return NewTokenizer(vocab, true), nil
}

func loadTokenizerJSON(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read tokenizer.json: %w", err)
	}
	var raw struct {
		Normalizer struct {
			Lowercase *bool `json:"lowercase"`
		} `json:"normalizer"`
		Model struct {
			Type  string           `json:"type"`
			Vocab map[string]int64 `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode tokenizer.json: %w", err)
	}
	if t := strings.ToLower(raw.Model.Type); t != "" && t != "wordpiece" {
		return nil, fmt.Errorf("unsupported tokenizer model %q", raw.Model.Type)
	}
	if len(raw.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer.json missing vocab")
	}
	lower := true
	if raw.Normalizer.Lowercase != nil {
		lower = *raw.Normalizer.Lowercase
	}
	return NewTokenizer(raw.Model.Vocab, lower), nil
}

type word struct {
	text       string
	start, end int
}

// splitWords splits on whitespace and isolates punctuation, like BERT's basic tokenizer.
func splitWords(text string) []word {
	var words []word
	start := -1
	flush := func(end int) {
		if start >= 0 {
			words = append(words, word{text: text[start:end], start: start, end: end})
			start = -1
		}
	}
	for idx, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush(idx)
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush(idx)
			end := idx + len(string(r))
			words = append(words, word{text: text[idx:end], start: idx, end: end})
		default:
			if start < 0 {
				start = idx
			}
		}
	}
	flush(len(text))
	return words
}

// Tokenize returns the pieces of text with absolute byte offsets.
func (t *Tokenizer) Tokenize(text string) []Piece {
	var pieces []Piece
	for wi, w := range splitWords(text) {
		token := w.text
		if t.lowerCase {
			token = strings.ToLower(token)
		}
		if len(token) != len(w.text) {
			// case mapping changed byte width; offsets inside the word are unusable
			id, ok := t.vocab[token]
			if !ok {
				id = t.unkID
			}
			pieces = append(pieces, Piece{ID: id, Start: w.start, End: w.end, Word: wi})
			continue
		}
		for _, p := range t.wordPiece(token) {
			p.Start += w.start
			p.End += w.start
			p.Word = wi
			pieces = append(pieces, p)
		}
	}
	return pieces
}

func (t *Tokenizer) wordPiece(token string) []Piece {
	if id, ok := t.vocab[token]; ok {
		return []Piece{{ID: id, Start: 0, End: len(token)}}
	}

	var pieces []Piece
	start := 0
	for start < len(token) {
		end := len(token)
		found := false
		for end > start {
			sub := token[start:end]
			if start > 0 {
				sub = t.continuation + sub
			}
			if id, ok := t.vocab[sub]; ok {
				pieces = append(pieces, Piece{ID: id, Start: start, End: end, Sub: start > 0})
				start = end
				found = true
				break
			}
			end--
		}
		if !found {
			return []Piece{{ID: t.unkID, Start: 0, End: len(token)}}
		}
	}
	return pieces
}

// Encode frames pieces with [CLS]/[SEP] and pads to seqLen. The returned
// index maps each sequence position to its piece, -1 for special tokens.
func (t *Tokenizer) Encode(pieces []Piece, seqLen int) (ids, mask []int64, index []int) {
	ids = make([]int64, seqLen)
	mask = make([]int64, seqLen)
	index = make([]int, seqLen)
	for i := range ids {
		ids[i] = t.padID
		index[i] = -1
	}
	if seqLen < 2 {
		return ids, mask, index
	}

	ids[0], mask[0] = t.clsID, 1
	n := min(len(pieces), seqLen-2)
	for i := 0; i < n; i++ {
		ids[i+1] = pieces[i].ID
		mask[i+1] = 1
		index[i+1] = i
	}
	ids[n+1], mask[n+1] = t.sepID, 1
	return ids, mask, index
}

// windows groups pieces into runs of at most size pieces without splitting
// a word, unless a single word alone exceeds size.
func windows(pieces []Piece, size int) [][]Piece {
	if size <= 0 || len(pieces) == 0 {
		return nil
	}
	var out [][]Piece
	start := 0
	for start < len(pieces) {
		end := min(start+size, len(pieces))
		if end < len(pieces) {
			cut := end
			for cut > start && pieces[cut].Word == pieces[cut-1].Word {
				cut--
			}
			if cut > start {
				end = cut
			}
		}
		out = append(out, pieces[start:end])
		start = end
	}
	return out
}
