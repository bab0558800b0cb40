// Package chunk splits extracted document text into bounded, overlapping
// spans for embedding.
//
// Split is a pure function: identical input always yields an identical chunk
// sequence. Reprocessing a document therefore regenerates the exact same
// chunks, and tests can assert on byte-identical output.
package chunk

import (
	"strings"
	"unicode/utf8"
)

// Config controls chunk sizing. Size is the target maximum chunk length in
// bytes; Overlap is the amount of trailing context each chunk shares with its
// successor.
type Config struct {
	Size    int
	Overlap int
}

// DefaultConfig returns the standard chunking parameters.
func DefaultConfig() Config {
	return Config{Size: 1000, Overlap: 200}
}

// separators is the split hierarchy, coarsest first: paragraph break,
// line break, sentence enders, word break. A unit that none of these can
// subdivide is atomic and is kept intact even when it exceeds Config.Size.
var separators = []string{"\n\n", "\n", ". ", "! ", "? ", " "}

// Split divides text into ordered chunks of at most cfg.Size bytes, except
// for atomic oversized units. Adjacent chunks share cfg.Overlap bytes of
// context. Empty or whitespace-only input yields no chunks.
func Split(text string, cfg Config) []string {
	if cfg.Size <= 0 {
		cfg = DefaultConfig()
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}
	if cfg.Overlap >= cfg.Size {
		cfg.Overlap = cfg.Size / 2
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	units := subdivide(text, separators, cfg.Size)
	return merge(units, cfg)
}

// subdivide recursively splits text on the first applicable separator until
// every unit fits in size. Separators are retained (SplitAfter) so no
// characters are ever dropped between units.
func subdivide(text string, seps []string, size int) []string {
	if len(text) <= size {
		return []string{text}
	}
	if len(seps) == 0 {
		// Atomic unit larger than the target size: keep intact.
		return []string{text}
	}

	sep := seps[0]
	rest := seps[1:]
	if !strings.Contains(text, sep) {
		return subdivide(text, rest, size)
	}

	parts := strings.SplitAfter(text, sep)
	units := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		if len(part) > size {
			units = append(units, subdivide(part, rest, size)...)
		} else {
			units = append(units, part)
		}
	}
	return units
}

// merge packs units into chunks up to cfg.Size, carrying cfg.Overlap bytes of
// the previous chunk into the next.
func merge(units []string, cfg Config) []string {
	var chunks []string
	var cur strings.Builder

	flush := func() string {
		chunk := strings.TrimSpace(cur.String())
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		cur.Reset()
		return chunk
	}

	for _, unit := range units {
		if cur.Len() > 0 && cur.Len()+len(unit) > cfg.Size {
			emitted := flush()
			if cfg.Overlap > 0 && emitted != "" {
				carry := overlapSuffix(emitted, cfg.Overlap)
				// The carried context must not push the next chunk past
				// the size bound; keep only what the unit leaves room for.
				if room := cfg.Size - len(unit); len(carry) > room {
					carry = overlapSuffix(carry, room)
				}
				cur.WriteString(carry)
			}
		}
		cur.WriteString(unit)
	}
	flush()

	return chunks
}

// overlapSuffix returns at most the trailing n bytes of s, advanced forward
// to the nearest rune boundary so multi-byte characters are never split and
// the result never exceeds n.
func overlapSuffix(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}

// TokenCount approximates the number of model tokens in s. No tokenizer
// library ships with the embedding provider SDK; the 4-characters-per-token
// heuristic is close enough for the accounting this value feeds.
func TokenCount(s string) int {
	if s == "" {
		return 0
	}
	n := utf8.RuneCountInString(s) / 4
	if n == 0 {
		n = 1
	}
	return n
}
