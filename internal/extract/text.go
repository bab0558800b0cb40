package extract

import (
	"os"
	"strings"
)

// extractText reads a plain-text file verbatim.
func extractText(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// extractLossy is the best-effort path for files of unknown type: read as
// text, replacing invalid UTF-8 sequences rather than failing on them.
func extractLossy(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(b), "�"), nil
}
