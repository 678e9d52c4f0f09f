// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

func buildDOCX(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range parts {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func paragraph(runs ...string) string {
	var b strings.Builder
	b.WriteString("<w:p>")
	for _, r := range runs {
		b.WriteString(`<w:r><w:t xml:space="preserve">` + r + "</w:t></w:r>")
	}
	b.WriteString("</w:p>")
	return b.String()
}

func TestDetect(t *testing.T) {
	docx := buildDOCX(t, map[string]string{documentPart: "<w:document " + wordNS + "/>"})

	tests := []struct {
		name    string
		data    []byte
		want    Format
		wantErr bool
	}{
		{"docx", docx, FormatDOCX, false},
		{"pdf", []byte("%PDF-1.7\n..."), FormatPDF, false},
		{"utf8 text", []byte("Demandante: María Quispe"), FormatText, false},
		{"plain zip", buildDOCX(t, map[string]string{"readme.txt": "hola"}), "", true},
		{"binary", []byte{0xff, 0xfe, 0x00, 0x01}, "", true},
		{"empty", nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Detect(tt.data)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractDOCX(t *testing.T) {
	body := "<w:document " + wordNS + "><w:body>" +
		paragraph("DATOS DEL DEMANDANTE") +
		paragraph("Nombre: ", "María ", "Quispe") +
		"<w:p></w:p>" +
		paragraph("DNI:", "45678912") +
		"</w:body></w:document>"
	footer := "<w:ftr " + wordNS + ">" + paragraph("Estudio Rojas &amp; Asociados") + "</w:ftr>"
	header := "<w:hdr " + wordNS + ">" + paragraph("Expediente 00123-2024") + "</w:hdr>"

	data := buildDOCX(t, map[string]string{
		documentPart:          body,
		"word/footer1.xml":    footer,
		"word/header1.xml":    header,
		"word/styles.xml":     "<w:styles " + wordNS + ">" + paragraph("ignored") + "</w:styles>",
		"[Content_Types].xml": "<Types/>",
	})

	doc, err := Bytes("demanda.docx", data, DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, FormatDOCX, doc.Format)
	assert.Equal(t, "DATOS DEL DEMANDANTE\nNombre: María Quispe\nDNI:45678912\nEstudio Rojas & Asociados\nExpediente 00123-2024", doc.Text)
	assert.NotContains(t, doc.Text, "ignored")
}

func TestExtractDOCXCorrupt(t *testing.T) {
	data := buildDOCX(t, map[string]string{documentPart: "<w:document " + wordNS + "><w:body><w:p>"})

	_, err := Bytes("roto.docx", data, DefaultLimits())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)

	var extractErr *Error
	require.True(t, errors.As(err, &extractErr))
	assert.Equal(t, CodeParse, extractErr.Code)
}

func TestExtractText(t *testing.T) {
	doc, err := Bytes("nota.txt", []byte("\xef\xbb\xbfDNI 45678912"), DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, FormatText, doc.Format)
	assert.Equal(t, "DNI 45678912", doc.Text)
}

func TestErrorCodes(t *testing.T) {
	idPattern := regexp.MustCompile(`^[0-9a-f]{8}$`)

	t.Run("unsupported", func(t *testing.T) {
		_, err := Bytes("foto.bin", []byte{0x00, 0x01, 0x02}, DefaultLimits())
		var extractErr *Error
		require.True(t, errors.As(err, &extractErr))
		assert.Equal(t, CodeFormat, extractErr.Code)
		assert.Regexp(t, idPattern, extractErr.ID)
		assert.Contains(t, err.Error(), "FORMAT_ERROR")
	})

	t.Run("size", func(t *testing.T) {
		limits := Limits{MaxFileMB: 1, MaxPDFPages: 50, MinTextChars: 100}
		_, err := Bytes("grande.txt", bytes.Repeat([]byte("a"), 1<<20+1), limits)
		var extractErr *Error
		require.True(t, errors.As(err, &extractErr))
		assert.Equal(t, CodeSize, extractErr.Code)
		assert.ErrorIs(t, err, ErrFileTooLarge)
	})

	t.Run("broken pdf", func(t *testing.T) {
		_, err := Bytes("roto.pdf", []byte("%PDF-1.4\nnot really a pdf"), DefaultLimits())
		var extractErr *Error
		require.True(t, errors.As(err, &extractErr))
		assert.Equal(t, CodeParse, extractErr.Code)
	})
}

func TestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "escrito.txt")
	require.NoError(t, os.WriteFile(path, []byte("Señor Juez: Juan Pérez"), 0o600))

	doc, err := File(path, DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, "escrito.txt", doc.Name)
	assert.Equal(t, "Señor Juez: Juan Pérez", doc.Text)

	_, err = File(filepath.Join(dir, "missing.pdf"), DefaultLimits())
	var extractErr *Error
	require.True(t, errors.As(err, &extractErr))
	assert.Equal(t, "missing.pdf", extractErr.File)
}
