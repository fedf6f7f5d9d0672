package pdftext

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	got := normalize("  Invoice\n\n#4411\t\tAmount   due ")
	want := "Invoice #4411 Amount due"
	if got != want {
		t.Fatalf("normalize = %q, want %q", got, want)
	}
}

func TestTruncateShortInputUnchanged(t *testing.T) {
	if got := Truncate("short text", 100); got != "short text" {
		t.Fatalf("unexpected truncation: %q", got)
	}
}

func TestTruncateCutsAtWordBoundary(t *testing.T) {
	s := strings.Repeat("word ", 50)
	got := Truncate(s, 23)
	if len([]rune(got)) > 23 {
		t.Fatalf("truncated text too long: %d runes", len([]rune(got)))
	}
	if strings.HasSuffix(got, "wor") {
		t.Fatalf("expected cut at word boundary, got %q", got)
	}
}

func TestTruncateZeroLimitDisabled(t *testing.T) {
	s := strings.Repeat("x", 500)
	if got := Truncate(s, 0); got != s {
		t.Fatal("zero limit must not truncate")
	}
}

func TestInspectRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-pdf.pdf")
	if err := os.WriteFile(path, []byte("plain text, no pdf header"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Inspect(path, 1000); err == nil {
		t.Fatal("expected error for non-PDF input")
	}
}
