// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

// Package extract turns an input file into the plain text the redaction
// pipeline consumes. It validates the file by magic bytes and size before
// any parser touches it.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Format identifies a supported input format
type Format string

const (
	FormatDOCX Format = "docx"
	FormatPDF  Format = "pdf"
	FormatText Format = "text"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrFileTooLarge      = errors.New("file exceeds size limit")
	ErrTooManyPages      = errors.New("pdf exceeds page limit")
	ErrScannedPDF        = errors.New("pdf has no extractable text")
	ErrCorrupt           = errors.New("file could not be parsed")
)

// Error codes reported to callers
const (
	CodeFormat    = "FORMAT_ERROR"
	CodeParse     = "PARSE_ERROR"
	CodeScanned   = "PDF_SCANNED"
	CodeSize      = "SIZE_ERROR"
	CodePageLimit = "PAGE_LIMIT"
)

// Error is an extraction failure with a stable code and a short id for
// support correlation.
type Error struct {
	Code string
	ID   string
	File string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s [%s] %s: %v", e.Code, e.ID, e.File, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(file string, err error) *Error {
	code := CodeParse
	switch {
	case errors.Is(err, ErrUnsupportedFormat):
		code = CodeFormat
	case errors.Is(err, ErrFileTooLarge):
		code = CodeSize
	case errors.Is(err, ErrTooManyPages):
		code = CodePageLimit
	case errors.Is(err, ErrScannedPDF):
		code = CodeScanned
	}
	return &Error{
		Code: code,
		ID:   strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		File: filepath.Base(file),
		Err:  err,
	}
}

// Limits bounds accepted input
type Limits struct {
	MaxFileMB    int
	MaxPDFPages  int
	MinTextChars int
}

// DefaultLimits mirrors the configuration defaults
func DefaultLimits() Limits {
	return Limits{MaxFileMB: 10, MaxPDFPages: 50, MinTextChars: 100}
}

// Document is the extracted text of one input file
type Document struct {
	Name   string
	Format Format
	Text   string
	Pages  int
}

// File reads and extracts path. Every failure is an *Error.
func File(path string, limits Limits) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, newError(path, fmt.Errorf("%w: %v", ErrCorrupt, err))
	}
	if limits.MaxFileMB > 0 && info.Size() > int64(limits.MaxFileMB)<<20 {
		return nil, newError(path, fmt.Errorf("%w: %d bytes > %d MB", ErrFileTooLarge, info.Size(), limits.MaxFileMB))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newError(path, fmt.Errorf("%w: %v", ErrCorrupt, err))
	}
	doc, err := Bytes(filepath.Base(path), data, limits)
	if err != nil {
		var extractErr *Error
		if errors.As(err, &extractErr) {
			return nil, extractErr
		}
		return nil, newError(path, err)
	}
	return doc, nil
}

// Bytes extracts an in-memory document
func Bytes(name string, data []byte, limits Limits) (*Document, error) {
	if limits.MaxFileMB > 0 && len(data) > limits.MaxFileMB<<20 {
		return nil, newError(name, fmt.Errorf("%w: %d bytes > %d MB", ErrFileTooLarge, len(data), limits.MaxFileMB))
	}

	format, err := Detect(data)
	if err != nil {
		return nil, newError(name, err)
	}

	doc := &Document{Name: name, Format: format, Pages: 1}
	switch format {
	case FormatDOCX:
		doc.Text, err = extractDOCX(data)
	case FormatPDF:
		doc.Text, doc.Pages, err = extractPDF(data, limits)
	default:
		doc.Text = string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))
	}
	if err != nil {
		return nil, newError(name, err)
	}
	return doc, nil
}

var (
	zipMagic = []byte("PK\x03\x04")
	pdfMagic = []byte("%PDF-")
)

// Detect identifies the format from magic bytes. A zip archive is only
// accepted when it carries word/document.xml.
func Detect(data []byte) (Format, error) {
	switch {
	case bytes.HasPrefix(data, pdfMagic):
		return FormatPDF, nil
	case bytes.HasPrefix(data, zipMagic):
		if !isDOCX(data) {
			return "", fmt.Errorf("%w: zip archive without word/document.xml", ErrUnsupportedFormat)
		}
		return FormatDOCX, nil
	case len(data) > 0 && utf8.Valid(data) && !bytes.ContainsRune(data, 0):
		return FormatText, nil
	}
	return "", ErrUnsupportedFormat
}
