// Package report renders an analysis into a downloadable PDF document.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Title is the heading printed on every report.
const Title = "DogBloodGPT Analysis Report"

// Disclaimer is appended to every report.
const Disclaimer = "This analysis is for educational purposes only and should not replace professional veterinary consultation. Always consult with a qualified veterinarian for medical advice."

// ErrEmptyAnalysis is returned when there is nothing to render.
var ErrEmptyAnalysis = errors.New("report: empty analysis")

// Input is what a report is built from.
type Input struct {
	OwnerName string
	Date      time.Time
	Analysis  string
}

// PDFRenderer lays reports out on US Letter pages with the core Helvetica
// font. Text is transcoded to Windows-1252, the encoding core fonts use.
type PDFRenderer struct{}

// NewPDFRenderer returns a renderer.
func NewPDFRenderer() *PDFRenderer { return &PDFRenderer{} }

type result struct {
	pdf []byte
	err error
}

// Render returns the PDF bytes for in. Layout is CPU-bound and not
// interruptible, so it runs on its own goroutine and Render returns early
// when ctx is done.
func (r *PDFRenderer) Render(ctx context.Context, in Input) ([]byte, error) {
	if strings.TrimSpace(in.Analysis) == "" {
		return nil, ErrEmptyAnalysis
	}
	done := make(chan result, 1)
	go func() {
		b, err := render(in)
		done <- result{b, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		return res.pdf, res.err
	}
}

func render(in Input) (out []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, fmt.Errorf("report: render panic: %v", rec)
		}
	}()

	enc := encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder())
	tr := func(s string) string {
		b, err := enc.String(s)
		if err != nil {
			return s
		}
		return b
	}

	doc := fpdf.New("P", "mm", "Letter", "")
	doc.SetTitle(Title, true)
	doc.SetCreator("DogBloodGPT", true)
	doc.SetMargins(20, 20, 20)
	doc.SetAutoPageBreak(true, 20)
	doc.AddPage()

	// Title
	doc.SetFont("Helvetica", "B", 24)
	doc.SetTextColor(0, 0, 139)
	doc.CellFormat(0, 12, tr(Title), "", 1, "C", false, 0, "")
	doc.Ln(8)

	// Metadata
	doc.SetTextColor(0, 0, 0)
	metaLine(doc, tr, "Pet Owner:", in.OwnerName)
	metaLine(doc, tr, "Analysis Date:", in.Date.Format("2006-01-02"))
	doc.Ln(8)

	// Analysis
	doc.SetFont("Helvetica", "B", 16)
	doc.CellFormat(0, 9, tr("Blood Test Analysis:"), "", 1, "L", false, 0, "")
	doc.Ln(4)
	for _, para := range Paragraphs(in.Analysis) {
		if heading, ok := strings.CutPrefix(para, "#"); ok {
			doc.SetFont("Helvetica", "B", 12)
			doc.MultiCell(0, 6, tr(strings.TrimLeft(heading, "# ")), "", "L", false)
		} else {
			doc.SetFont("Helvetica", "", 11)
			doc.MultiCell(0, 5.5, tr(para), "", "L", false)
		}
		doc.Ln(4)
	}

	// Disclaimer
	doc.Ln(6)
	left, top, right, _ := doc.GetMargins()
	doc.SetLeftMargin(left + 7)
	doc.SetRightMargin(right + 7)
	doc.SetX(left + 7)
	doc.SetTextColor(200, 0, 0)
	doc.SetFont("Helvetica", "B", 10)
	doc.MultiCell(0, 5, tr("DISCLAIMER: "+Disclaimer), "", "L", false)
	doc.SetMargins(left, top, right)

	if err := doc.Error(); err != nil {
		return nil, fmt.Errorf("report: layout: %w", err)
	}
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("report: output: %w", err)
	}
	return buf.Bytes(), nil
}

func metaLine(doc *fpdf.Fpdf, tr func(string) string, label, value string) {
	doc.SetFont("Helvetica", "B", 11)
	w := doc.GetStringWidth(label) + 2
	doc.CellFormat(w, 6, tr(label), "", 0, "L", false, 0, "")
	doc.SetFont("Helvetica", "", 11)
	doc.CellFormat(0, 6, tr(value), "", 1, "L", false, 0, "")
}

// Paragraphs splits analysis text on blank lines, drops empty blocks and
// removes markdown emphasis markers the model tends to emit.
func Paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(strings.ReplaceAll(block, "**", ""))
		if block != "" {
			out = append(out, block)
		}
	}
	return out
}
