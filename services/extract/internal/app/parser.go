package app

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// maxContentChars bounds how much extracted text is kept per document.
const maxContentChars = 500_000

func (a *App) extractText(filename, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return extractPDF(path)
	case ".html", ".htm":
		return extractHTMLFile(path)
	default:
		return extractPlainText(path)
	}
}

func extractPDF(path string) (string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()
	totalPages := reader.NumPage()
	var pages []string
	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip problematic pages instead of failing entirely
			continue
		}
		text = normalizeText(text)
		if text != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("no text extracted from PDF")
	}
	return boundContent(strings.Join(pages, "\n\n")), nil
}

func extractHTMLFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	text := normalizeParagraphs(extractNodeText(doc))
	if text == "" {
		return "", fmt.Errorf("no text extracted from HTML")
	}
	return boundContent(text), nil
}

func extractPlainText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	text := normalizeParagraphs(string(data))
	if text == "" {
		return "", fmt.Errorf("file contains no text")
	}
	return boundContent(text), nil
}

// normalizeText collapses all whitespace inside a block to single spaces.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}

// normalizeParagraphs keeps blank-line paragraph boundaries and normalizes
// whitespace inside each paragraph.
func normalizeParagraphs(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, para := range strings.Split(text, "\n\n") {
		para = normalizeText(para)
		if para != "" {
			out = append(out, para)
		}
	}
	return strings.Join(out, "\n\n")
}

func boundContent(text string) string {
	runes := []rune(text)
	if len(runes) <= maxContentChars {
		return text
	}
	return strings.TrimSpace(string(runes[:maxContentChars]))
}

func extractNodeText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			buf.WriteString(node.Data)
			buf.WriteString(" ")
		case html.ElementNode:
			if node.Data == "script" || node.Data == "style" {
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if node.Type == html.ElementNode {
			switch node.Data {
			case "p", "div", "li", "h1", "h2", "h3", "h4", "h5", "h6", "section", "article":
				buf.WriteString("\n\n")
			case "br":
				buf.WriteString("\n")
			}
		}
	}
	walk(n)
	return buf.String()
}
