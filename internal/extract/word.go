package extract

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"

	godocx "github.com/fumiama/go-docx"
	legacydocx "github.com/nguyenthenguyen/docx"
)

// extractWord pulls paragraph and table text out of a .docx file. The
// structured parser handles well-formed files; when it chokes, the raw
// WordprocessingML text runs are decoded as a fallback so slightly malformed
// documents still ingest.
func (e *Engine) extractWord(path string) (string, error) {
	text, err := extractWordStructured(path)
	if err == nil {
		return text, nil
	}

	e.logger.Debug("structured docx parse failed, falling back to raw text runs",
		"file", path, "error", err)

	text, fbErr := extractWordRaw(path)
	if fbErr != nil {
		return "", fmt.Errorf("parsing docx: %w (fallback: %v)", err, fbErr)
	}
	return text, nil
}

func extractWordStructured(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	doc, err := godocx.Parse(f, info.Size())
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *godocx.Paragraph:
			if line := strings.TrimSpace(it.String()); line != "" {
				b.WriteString(line)
				b.WriteString("\n")
			}
		case *godocx.Table:
			// Cells joined with pipes so a row reads as one line of text.
			for _, row := range it.TableRows {
				var cells []string
				for _, cell := range row.TableCells {
					var parts []string
					for _, p := range cell.Paragraphs {
						if s := strings.TrimSpace(p.String()); s != "" {
							parts = append(parts, s)
						}
					}
					cells = append(cells, strings.Join(parts, " "))
				}
				if line := strings.TrimSpace(strings.Join(cells, " | ")); line != "" {
					b.WriteString(line)
					b.WriteString("\n")
				}
			}
		}
	}

	return b.String(), nil
}

func extractWordRaw(path string) (string, error) {
	r, err := legacydocx.ReadDocxFile(path)
	if err != nil {
		return "", err
	}
	defer r.Close()

	return wordXMLText(r.Editable().GetContent())
}

// wordXMLText collects the character data of w:t runs, inserting a newline at
// each paragraph close.
func wordXMLText(content string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(content))

	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			inText = t.Name.Local == "t"
		case xml.EndElement:
			inText = false
			if t.Name.Local == "p" {
				b.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}
