package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"golang.org/x/net/html"
)

// maxRenderChars bounds how much document text one export will render.
const maxRenderChars = 500_000

// DocumentPDF renders a document's extracted text as a printable PDF.
// Content that looks like HTML is flattened to plain paragraphs first.
// An empty document still yields a valid PDF with a notice page.
func DocumentPDF(title, content string) ([]byte, error) {
	content = strings.TrimSpace(content)
	if looksLikeHTML(content) {
		content = flattenHTML(content)
	}
	content = truncateRunes(content, maxRenderChars)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 16)
	pdf.MultiCell(0, 8, tr(title), "", "L", false)
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 11)
	if content == "" {
		pdf.SetTextColor(120, 120, 120)
		pdf.MultiCell(0, 6, tr("Aucun contenu disponible pour ce document."), "", "L", false)
	} else {
		for _, para := range splitParagraphs(content) {
			pdf.MultiCell(0, 6, tr(para), "", "L", false)
			pdf.Ln(2)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func looksLikeHTML(s string) bool {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "<") {
		return false
	}
	return strings.Contains(s, "</") || strings.Contains(strings.ToLower(s), "<br")
}

// flattenHTML strips markup and keeps block boundaries as paragraph breaks.
func flattenHTML(s string) string {
	node, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
		case html.ElementNode:
			switch n.Data {
			case "script", "style":
				return
			case "br":
				b.WriteString("\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && isBlockTag(n.Data) {
			b.WriteString("\n\n")
		}
	}
	walk(node)
	return strings.TrimSpace(b.String())
}

func isBlockTag(tag string) bool {
	switch tag {
	case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "li", "tr", "section", "article", "blockquote", "pre":
		return true
	}
	return false
}

func splitParagraphs(s string) []string {
	var out []string
	for _, chunk := range strings.Split(s, "\n\n") {
		chunk = strings.TrimSpace(chunk)
		if chunk != "" {
			out = append(out, chunk)
		}
	}
	if len(out) == 0 {
		return []string{s}
	}
	return out
}

func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
