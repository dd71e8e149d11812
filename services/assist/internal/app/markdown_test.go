package app

import (
	"strings"
	"testing"
)

func TestMarkdownToHTMLHeadersAndParagraphs(t *testing.T) {
	in := "# Titre\n\nPremier paragraphe.\nSuite du paragraphe.\n\n## Partie A\nContenu."
	got := markdownToHTML(in)
	for _, want := range []string{
		"<h1>Titre</h1>",
		"<p>Premier paragraphe.<br>Suite du paragraphe.</p>",
		"<h2>Partie A</h2>",
		"<p>Contenu.</p>",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in output:\n%s", want, got)
		}
	}
}

func TestMarkdownToHTMLEscapesRawHTML(t *testing.T) {
	got := markdownToHTML("Attention aux <script>balises</script>.")
	if strings.Contains(got, "<script>") {
		t.Fatalf("raw html leaked: %q", got)
	}
	if !strings.Contains(got, "&lt;script&gt;") {
		t.Fatalf("expected escaped markup, got %q", got)
	}
}

func TestMarkdownToHTMLBoldSpans(t *testing.T) {
	got := markdownToHTML("Un mot **important** ici.")
	if !strings.Contains(got, "<strong>important</strong>") {
		t.Fatalf("expected strong span, got %q", got)
	}
}

func TestMarkdownToHTMLUnclosedBoldStillCloses(t *testing.T) {
	got := markdownToHTML("Un **début sans fin")
	if !strings.HasSuffix(strings.TrimSuffix(got, "</p>"), "</strong>") {
		t.Fatalf("expected closed strong tag, got %q", got)
	}
}

func TestHeaderLineRequiresSpace(t *testing.T) {
	if level, _ := headerLine("#pas-un-titre"); level != 0 {
		t.Fatalf("hash without space must not be a header")
	}
	if level, text := headerLine("### Sous-partie"); level != 3 || text != "Sous-partie" {
		t.Fatalf("unexpected header parse: %d %q", level, text)
	}
}
