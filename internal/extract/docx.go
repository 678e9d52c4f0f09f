// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

const documentPart = "word/document.xml"

func isDOCX(data []byte) bool {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, file := range reader.File {
		if file.Name == documentPart {
			return true
		}
	}
	return false
}

// extractDOCX returns the body text followed by headers and footers,
// one paragraph per line
func extractDOCX(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var documentFile *zip.File
	var extraFiles []*zip.File
	for _, file := range reader.File {
		switch {
		case file.Name == documentPart:
			documentFile = file
		case isHeaderOrFooter(file.Name):
			extraFiles = append(extraFiles, file)
		}
	}
	if documentFile == nil {
		return "", fmt.Errorf("%w: %s not found in the archive", ErrCorrupt, documentPart)
	}
	sort.Slice(extraFiles, func(i, j int) bool { return extraFiles[i].Name < extraFiles[j].Name })

	var paragraphs []string
	for _, file := range append([]*zip.File{documentFile}, extraFiles...) {
		parts, err := readParagraphs(file)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrCorrupt, file.Name, err)
		}
		paragraphs = append(paragraphs, parts...)
	}
	return strings.Join(paragraphs, "\n"), nil
}

func isHeaderOrFooter(name string) bool {
	if !strings.HasSuffix(name, ".xml") {
		return false
	}
	return strings.HasPrefix(name, "word/header") || strings.HasPrefix(name, "word/footer")
}

// readParagraphs walks a WordprocessingML part token by token. Text runs
// inside one w:p form a line; tabs and breaks keep their whitespace.
func readParagraphs(file *zip.File) ([]string, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
		inPara     bool
	)
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inPara = true
				current.Reset()
			case "t":
				inText = true
			case "tab":
				current.WriteString("\t")
			case "br", "cr":
				current.WriteString(" ")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if inPara {
					if line := strings.TrimRight(current.String(), " \t"); line != "" {
						paragraphs = append(paragraphs, line)
					}
				}
				inPara = false
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return paragraphs, nil
}
