// Package pdftext pulls page counts and bounded text excerpts out of PDF
// files for classification and extraction prompts. Scans with no embedded
// text layer yield an empty excerpt, not an error.
package pdftext

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// Info summarizes a parsed document.
type Info struct {
	PageCount int
	Excerpt   string
}

// Inspect opens a PDF and returns its page count together with a plain-text
// excerpt capped at maxChars runes. A malformed file returns an error; an
// image-only file returns a zero-length excerpt.
func Inspect(path string, maxChars int) (Info, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	info := Info{PageCount: reader.NumPage()}

	text, err := reader.GetPlainText()
	if err != nil {
		// Page count alone is still useful when the text layer is broken.
		return info, nil
	}
	raw, err := io.ReadAll(io.LimitReader(text, 4<<20))
	if err != nil {
		return info, nil
	}
	info.Excerpt = Truncate(normalize(string(raw)), maxChars)
	return info, nil
}

// normalize collapses runs of whitespace so prompts stay compact and
// deterministic regardless of PDF layout quirks.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// Truncate caps s at maxChars runes, cutting at the last word boundary when
// one exists in the final quarter of the window.
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	cut := string(runes[:maxChars])
	if idx := strings.LastIndex(cut, " "); idx > maxChars*3/4 {
		cut = cut[:idx]
	}
	return cut
}
