package extract

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF reads page text in order, joined by blank lines. Pages that fail
// to decode are skipped; the document only fails when no page yields text, so
// one corrupt page does not sink an otherwise readable file.
func extractPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	var pages []string
	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if t := strings.TrimSpace(text); t != "" {
			pages = append(pages, t)
		}
	}

	if len(pages) == 0 {
		return "", fmt.Errorf("%w: no readable pages out of %d", ErrNoContent, total)
	}
	return strings.Join(pages, "\n\n"), nil
}
