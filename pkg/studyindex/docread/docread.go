// Package docread turns office documents into an ordered list of styled
// paragraphs.
package docread

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cognicore/studyindex/pkg/studyindex/internalerr"
)

// Paragraph is one body paragraph.
type Paragraph struct {
	Text  string
	Style string
	// PageBreak is set when the paragraph holds a hard or rendered page
	// break.
	PageBreak bool
}

// Document is the readable content of a file.
type Document struct {
	Paragraphs []Paragraph
	// Header holds the lines of the first section's running header.
	Header []string
}

// Format identifies a supported input format.
type Format string

const (
	FormatDocx Format = "docx"
	FormatHTML Format = "html"
)

// DetectFormat picks a reader from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".docx", ".docm":
		return FormatDocx, nil
	case ".htm", ".html":
		return FormatHTML, nil
	}
	return "", fmt.Errorf("%s: %w", filepath.Base(path), internalerr.ErrUnsupportedFormat)
}

// Open reads the document at path.
func Open(path string) (*Document, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatDocx:
		return ReadDocx(path)
	default:
		return ReadHTMLFile(path)
	}
}

// Text joins paragraphs [start, end) with spaces.
func (d *Document) Text(start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(d.Paragraphs) {
		end = len(d.Paragraphs)
	}
	parts := make([]string, 0, end-start)
	for _, p := range d.Paragraphs[start:end] {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, " ")
}

// Len is the paragraph count.
func (d *Document) Len() int { return len(d.Paragraphs) }
