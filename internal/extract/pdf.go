// Package extract turns uploaded PDF bytes into plain text.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrNotPDF means the payload does not start with a PDF header.
	ErrNotPDF = errors.New("extract: not a pdf document")
	// ErrUnreadable wraps parser failures, including parser panics on corrupt input.
	ErrUnreadable = errors.New("extract: unreadable pdf")
	// ErrNoText means the document parsed but contained no text.
	ErrNoText = errors.New("extract: no text in pdf")
)

var pdfMagic = []byte("%PDF-")

// LooksLikePDF reports whether data carries the PDF header within the first
// kilobyte, where readers are required to look for it.
func LooksLikePDF(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.Contains(head, pdfMagic)
}

// PDFExtractor reads text page by page with ledongthuc/pdf.
type PDFExtractor struct {
	// MaxPages caps how many pages are read; 0 means all.
	MaxPages int
}

// NewPDFExtractor returns an extractor with no page cap.
func NewPDFExtractor() *PDFExtractor { return &PDFExtractor{} }

type result struct {
	text string
	err  error
}

// Extract returns the document text with pages separated by newlines.
// The parser is not context-aware, so it runs on its own goroutine and
// Extract returns as soon as ctx is done.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	if !LooksLikePDF(data) {
		return "", ErrNotPDF
	}
	done := make(chan result, 1)
	go func() {
		text, err := e.read(data)
		done <- result{text, err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.text, r.err
	}
}

func (e *PDFExtractor) read(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: %v", ErrUnreadable, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	total := reader.NumPage()
	if e.MaxPages > 0 && total > e.MaxPages {
		total = e.MaxPages
	}

	var pages []string
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		raw, err := page.GetPlainText(nil)
		if err != nil {
			// Skip problematic pages instead of failing entirely.
			continue
		}
		if t := normalizeText(raw); t != "" {
			pages = append(pages, t)
		}
	}
	if len(pages) == 0 {
		return "", ErrNoText
	}
	return strings.Join(pages, "\n"), nil
}

// normalizeText keeps line structure (lab reports are tabular) but collapses
// runs of spaces inside each line and drops blank lines.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	text = norm.NFC.String(text)

	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, ln := range lines {
		if t := strings.Join(strings.Fields(ln), " "); t != "" {
			out = append(out, t)
		}
	}
	return strings.Join(out, "\n")
}
