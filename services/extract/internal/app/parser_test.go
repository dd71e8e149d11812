package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestExtractPlainTextKeepsParagraphs(t *testing.T) {
	path := writeTempFile(t, "cours.txt", "Premier  paragraphe\navec retour.\n\nSecond paragraphe.\n")
	got, err := extractPlainText(path)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	want := "Premier paragraphe avec retour.\n\nSecond paragraphe."
	if got != want {
		t.Fatalf("unexpected text:\n got %q\nwant %q", got, want)
	}
}

func TestExtractPlainTextEmptyFails(t *testing.T) {
	path := writeTempFile(t, "vide.txt", "   \n\n  ")
	if _, err := extractPlainText(path); err == nil {
		t.Fatalf("expected error for empty file")
	}
}

func TestExtractHTMLDropsMarkupAndScripts(t *testing.T) {
	path := writeTempFile(t, "page.html", `<html><head><style>p{color:red}</style></head><body><h1>Titre</h1><p>Un <b>texte</b>.</p><script>alert(1)</script></body></html>`)
	got, err := extractHTMLFile(path)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if strings.Contains(got, "alert") || strings.Contains(got, "color") {
		t.Fatalf("script or style leaked: %q", got)
	}
	if !strings.Contains(got, "Titre") || !strings.Contains(got, "Un texte .") && !strings.Contains(got, "Un texte.") {
		t.Fatalf("text missing: %q", got)
	}
}

func TestBoundContentTruncatesAtRuneBoundary(t *testing.T) {
	long := strings.Repeat("é", maxContentChars+100)
	got := boundContent(long)
	if len([]rune(got)) != maxContentChars {
		t.Fatalf("expected %d runes, got %d", maxContentChars, len([]rune(got)))
	}
	if !strings.HasSuffix(got, "é") {
		t.Fatalf("truncation broke rune boundary")
	}
}

func TestNormalizeTextStripsControlBytes(t *testing.T) {
	got := normalizeText("a\x00b   c\n")
	if got != "a b c" {
		t.Fatalf("unexpected normalization: %q", got)
	}
}
