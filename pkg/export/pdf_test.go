package export

import (
	"bytes"
	"strings"
	"testing"
)

func TestDocumentPDFProducesValidHeader(t *testing.T) {
	data, err := DocumentPDF("Cours de maths", "Premier paragraphe.\n\nSecond paragraphe.")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("expected PDF magic header, got %q", data[:8])
	}
}

func TestDocumentPDFEmptyContentStillRenders(t *testing.T) {
	data, err := DocumentPDF("Document vide", "")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty pdf for empty document")
	}
}

func TestDocumentPDFBoundsContent(t *testing.T) {
	huge := strings.Repeat("a", maxRenderChars+10_000)
	data, err := DocumentPDF("Gros document", huge)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected pdf output")
	}
}

func TestFlattenHTMLKeepsTextDropsMarkup(t *testing.T) {
	in := "<html><body><h1>Titre</h1><p>Un <b>texte</b> riche.</p><script>alert(1)</script></body></html>"
	got := flattenHTML(in)
	if strings.Contains(got, "<") || strings.Contains(got, "alert") {
		t.Fatalf("markup leaked into output: %q", got)
	}
	if !strings.Contains(got, "Titre") || !strings.Contains(got, "Un texte riche.") {
		t.Fatalf("text dropped from output: %q", got)
	}
}

func TestLooksLikeHTML(t *testing.T) {
	if !looksLikeHTML("<p>hello</p>") {
		t.Fatalf("expected html detection for tagged input")
	}
	if looksLikeHTML("x < y and y > z") {
		t.Fatalf("plain text with comparisons is not html")
	}
	if looksLikeHTML("plain paragraph") {
		t.Fatalf("plain text is not html")
	}
}
