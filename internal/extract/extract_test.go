package extract

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		filename    string
		want        Kind
	}{
		{"pdf by type", "application/pdf", "report.bin", KindPDF},
		{"pdf by extension", "application/octet-stream", "report.pdf", KindPDF},
		{"docx by type", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", "x", KindWord},
		{"docx by extension", "", "handbook.docx", KindWord},
		{"html by type", "text/html", "page.bin", KindHTML},
		{"html with charset param", "text/html; charset=utf-8", "page", KindHTML},
		{"html by extension", "", "page.htm", KindHTML},
		{"plain text", "text/plain", "notes", KindPlainText},
		{"markdown by extension", "application/octet-stream", "README.md", KindPlainText},
		{"csv by extension", "", "data.CSV", KindPlainText},
		{"image rejected", "image/png", "photo.png", KindUnsupported},
		{"archive rejected", "application/octet-stream", "bundle.zip", KindUnsupported},
		{"legacy doc rejected", "application/msword", "old.doc", KindUnsupported},
		{"unknown is best effort", "application/octet-stream", "mystery.dat", KindUnknown},
		{"empty everything", "", "", KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.contentType, tt.filename))
		})
	}
}

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestExtract_PlainText(t *testing.T) {
	path := writeTemp(t, "policy.txt", []byte("Employees accrue 20 days of leave.\n"))

	got, err := NewEngine(nil).Extract(path, "text/plain")
	require.NoError(t, err)
	assert.Contains(t, got, "20 days of leave")
}

func TestExtract_HTML(t *testing.T) {
	html := `<html><head><style>body{color:red}</style>
		<script>alert("nope")</script></head>
		<body><h1>Security Policy</h1><p>Rotate credentials quarterly.</p></body></html>`
	path := writeTemp(t, "policy.html", []byte(html))

	got, err := NewEngine(nil).Extract(path, "text/html")
	require.NoError(t, err)
	assert.Contains(t, got, "Security Policy")
	assert.Contains(t, got, "Rotate credentials quarterly.")
	assert.NotContains(t, got, "alert")
	assert.NotContains(t, got, "color:red")
}

func TestExtract_UnknownTypeLossyDecode(t *testing.T) {
	// Invalid UTF-8 bytes interleaved with real text must not fail the read.
	data := append([]byte("usable text "), 0xff, 0xfe, 0xfd)
	data = append(data, []byte(" more text")...)
	path := writeTemp(t, "mystery.dat", data)

	got, err := NewEngine(nil).Extract(path, "application/octet-stream")
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(got))
	assert.Contains(t, got, "usable text")
	assert.Contains(t, got, "more text")
}

func TestExtract_EmptyFileIsError(t *testing.T) {
	path := writeTemp(t, "empty.txt", nil)

	_, err := NewEngine(nil).Extract(path, "text/plain")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestExtract_WhitespaceOnlyIsError(t *testing.T) {
	path := writeTemp(t, "blank.txt", []byte("  \n\t\n  "))

	_, err := NewEngine(nil).Extract(path, "text/plain")
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestExtract_UnsupportedType(t *testing.T) {
	path := writeTemp(t, "photo.png", []byte{0x89, 0x50, 0x4e, 0x47})

	_, err := NewEngine(nil).Extract(path, "image/png")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestExtract_MissingFile(t *testing.T) {
	_, err := NewEngine(nil).Extract(filepath.Join(t.TempDir(), "gone.txt"), "text/plain")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoContent))
}

func TestExtract_CorruptPDF(t *testing.T) {
	path := writeTemp(t, "broken.pdf", []byte("%PDF-1.4 not actually a pdf"))

	_, err := NewEngine(nil).Extract(path, "application/pdf")
	assert.Error(t, err)
}

func TestWordXMLText(t *testing.T) {
	content := `<w:document><w:body>` +
		`<w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Second</w:t></w:r><w:r><w:t xml:space="preserve"> half.</w:t></w:r></w:p>` +
		`</w:body></w:document>`

	got, err := wordXMLText(content)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(got), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "First paragraph.", lines[0])
	assert.Equal(t, "Second half.", lines[1])
}
