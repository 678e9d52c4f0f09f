// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// countPages validates the PDF structure and returns its page count
func countPages(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid PDF: %v", ErrCorrupt, err)
	}
	return ctx.PageCount, nil
}

func extractPDF(data []byte, limits Limits) (string, int, error) {
	pages, err := countPages(data)
	if err != nil {
		return "", 0, err
	}
	if limits.MaxPDFPages > 0 && pages > limits.MaxPDFPages {
		return "", pages, fmt.Errorf("%w: %d pages > %d", ErrTooManyPages, pages, limits.MaxPDFPages)
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", pages, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	text := extractPages(r)

	if utf8.RuneCountInString(strings.TrimSpace(text)) < limits.MinTextChars {
		return "", pages, fmt.Errorf("%w: %d characters extracted from %d pages", ErrScannedPDF, utf8.RuneCountInString(text), pages)
	}
	return text, pages, nil
}

// extractPages reads pages in parallel and reassembles them in order.
// Pages that fail to parse are skipped.
func extractPages(r *pdf.Reader) string {
	type pageResult struct {
		pageNum int
		text    string
		err     error
	}

	count := r.NumPage()
	resultChan := make(chan pageResult, count)
	for i := 1; i <= count; i++ {
		go func(pageNum int) {
			defer func() {
				if rec := recover(); rec != nil {
					resultChan <- pageResult{pageNum: pageNum, err: fmt.Errorf("page %d: %v", pageNum, rec)}
				}
			}()
			p := r.Page(pageNum)
			if p.V.IsNull() {
				resultChan <- pageResult{pageNum: pageNum, err: fmt.Errorf("null page")}
				return
			}
			text, err := pageText(p)
			resultChan <- pageResult{pageNum: pageNum, text: text, err: err}
		}(i)
	}

	pageTexts := make(map[int]string, count)
	for i := 0; i < count; i++ {
		result := <-resultChan
		if result.err == nil {
			pageTexts[result.pageNum] = result.text
		}
	}

	var buf strings.Builder
	for i := 1; i <= count; i++ {
		text, ok := pageTexts[i]
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(strings.TrimRight(text, "\n"))
	}
	return buf.String()
}

// pageText rebuilds rows top to bottom, falling back to plain text
func pageText(p pdf.Page) (string, error) {
	rows, err := p.GetTextByRow()
	if err != nil {
		return p.GetPlainText(nil)
	}

	sorted := make([]*pdf.Row, 0, len(rows))
	for _, row := range rows {
		if row != nil && len(row.Content) > 0 {
			sorted = append(sorted, row)
		}
	}
	// PDF y grows upward
	sort.SliceStable(sorted, func(i, j int) bool {
		return averageY(sorted[i].Content) > averageY(sorted[j].Content)
	})

	var buf strings.Builder
	for _, row := range sorted {
		line := rowText(row.Content)
		if strings.TrimSpace(line) != "" {
			buf.WriteString(line)
			buf.WriteString("\n")
		}
	}
	return buf.String(), nil
}

func averageY(texts []pdf.Text) float64 {
	var total float64
	for _, t := range texts {
		total += t.Y
	}
	return total / float64(len(texts))
}

// rowText joins glyph runs left to right, inserting a space where the gap
// exceeds a fifth of the font size
func rowText(texts []pdf.Text) string {
	sorted := make([]pdf.Text, len(texts))
	copy(sorted, texts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	var buf strings.Builder
	for i, t := range sorted {
		buf.WriteString(t.S)
		if i == len(sorted)-1 {
			break
		}
		fontSize := t.FontSize
		if fontSize <= 0 {
			fontSize = 12
		}
		if sorted[i+1].X-(t.X+t.W) > fontSize*0.2 && !strings.HasSuffix(t.S, " ") {
			buf.WriteString(" ")
		}
	}
	return buf.String()
}
