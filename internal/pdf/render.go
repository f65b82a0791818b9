package pdf

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
)

const summaryTitle = "Case Summary"

// RenderSummary produces a PDF document for a summary string: A4, 50pt
// margins, centered title, justified body. The core Helvetica font ships with
// fpdf, so no external font resource is needed, and the creation date is
// pinned so identical input yields identical bytes.
func RenderSummary(summary string) ([]byte, error) {
	doc := fpdf.New("P", "pt", "A4", "")
	doc.SetCatalogSort(true)
	doc.SetCreationDate(time.Unix(0, 0).UTC())
	doc.SetModificationDate(time.Unix(0, 0).UTC())
	doc.SetMargins(50, 50, 50)
	doc.SetAutoPageBreak(true, 50)
	doc.AddPage()

	tr := doc.UnicodeTranslatorFromDescriptor("")

	doc.SetFont("Helvetica", "B", 16)
	doc.CellFormat(0, 20, tr(summaryTitle), "", 1, "C", false, 0, "")
	doc.Ln(20)

	doc.SetFont("Helvetica", "", 12)
	doc.MultiCell(0, 17, tr(summary), "", "J", false)

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render summary pdf: %w", err)
	}
	return buf.Bytes(), nil
}
