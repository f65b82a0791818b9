// Package pdf converts uploaded documents to plain text and renders summary
// PDFs.
package pdf

import (
	"bytes"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"

	"github.com/ozanyurt/caseflow/internal/apperr"
)

// Extract reads PDF bytes and returns normalized plain text. Summarization
// quality depends on dense, punctuation-preserving input, so every run of
// whitespace (including page-layout newlines) collapses to a single space.
func Extract(data []byte) (string, error) {
	reader := bytes.NewReader(data)
	doc, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", apperr.E(apperr.KindValidation, "pdf.extract", fmt.Errorf("new pdf reader: %w", err))
	}
	var builder strings.Builder
	total := doc.NumPage()
	for page := 1; page <= total; page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return "", apperr.E(apperr.KindValidation, "pdf.extract", fmt.Errorf("page %d: %w", page, err))
		}
		builder.WriteString(content)
		builder.WriteString("\n")
	}
	return Normalize(builder.String()), nil
}

// Normalize collapses whitespace runs to single spaces and trims the ends.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
