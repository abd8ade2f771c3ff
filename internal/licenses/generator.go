package licenses

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
)

const (
	pageMargin      = 18.0
	lineHeight      = 6.0
	clauseIndent    = 7.0
	bottomMargin    = 20.0
	titleFontSize   = 18.0
	headingFontSize = 12.0
	bodyFontSize    = 10.0
	fontFamily      = "Helvetica"
)

// Generator renders agreements to PDF.
type Generator struct {
	now func() time.Time
}

func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// NewGeneratorWithClock fixes the date used when an input carries no IssuedAt.
func NewGeneratorWithClock(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now}
}

// Generate renders the agreement for in as a PDF document.
func (g *Generator) Generate(in ContractInput) ([]byte, error) {
	if in.IssuedAt.IsZero() {
		in.IssuedAt = g.now()
	}
	lines, err := ContractLines(in)
	if err != nil {
		return nil, err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, bottomMargin)
	pdf.SetTitle(fmt.Sprintf("License Agreement %s", in.OrderID), true)
	pdf.SetCreator(brandHeader, true)
	pdf.SetCreationDate(in.IssuedAt)
	pdf.SetModificationDate(in.IssuedAt)
	pdf.SetCatalogSort(true)
	pdf.AddPage()

	// Core fonts are cp1252; the translator maps UTF-8 text such as "£".
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	for _, line := range lines {
		renderLine(pdf, tr, line)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render license pdf: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write license pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func renderLine(pdf *fpdf.Fpdf, tr func(string) string, line Line) {
	switch line.Style {
	case StyleTitle:
		pdf.SetFont(fontFamily, "B", titleFontSize)
		pdf.CellFormat(0, lineHeight+3, tr(line.Text), "", 1, "C", false, 0, "")
	case StyleHeading:
		pdf.SetFont(fontFamily, "BU", headingFontSize)
		pdf.CellFormat(0, lineHeight+1, tr(line.Text), "", 1, "L", false, 0, "")
	case StyleField:
		pdf.SetFont(fontFamily, "", headingFontSize)
		pdf.MultiCell(0, lineHeight, tr(line.Text), "", "L", false)
	case StyleClause:
		pdf.SetFont(fontFamily, "", bodyFontSize)
		left, _, _, _ := pdf.GetMargins()
		pdf.SetX(left + clauseIndent)
		pdf.MultiCell(0, lineHeight-1, tr(line.Text), "", "L", false)
	case StyleSignature:
		pdf.SetFont(fontFamily, "B", headingFontSize)
		pdf.CellFormat(0, lineHeight, tr(line.Text), "", 1, "R", false, 0, "")
	case StyleSpacer:
		pdf.Ln(lineHeight / 2)
	}
}
