package app

import (
	"fmt"
	"html"
	"strings"
)

// markdownToHTML converts the model's markdown-ish output to simple HTML
// the web client can render directly. Only headers, bold spans and
// paragraphs are handled; anything else passes through escaped.
func markdownToHTML(src string) string {
	var b strings.Builder
	var para []string

	flush := func() {
		if len(para) == 0 {
			return
		}
		b.WriteString("<p>")
		b.WriteString(strings.Join(para, "<br>"))
		b.WriteString("</p>\n")
		para = para[:0]
	}

	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		if level, text := headerLine(trimmed); level > 0 {
			flush()
			b.WriteString(fmt.Sprintf("<h%d>%s</h%d>\n", level, inlineHTML(text), level))
			continue
		}
		para = append(para, inlineHTML(trimmed))
	}
	flush()
	return strings.TrimSpace(b.String())
}

func headerLine(line string) (int, string) {
	level := 0
	for level < len(line) && level < 4 && line[level] == '#' {
		level++
	}
	if level == 0 || level >= len(line) || line[level] != ' ' {
		return 0, ""
	}
	return level, strings.TrimSpace(line[level:])
}

// inlineHTML escapes the text and renders **bold** spans.
func inlineHTML(text string) string {
	escaped := html.EscapeString(text)
	var b strings.Builder
	open := false
	for {
		idx := strings.Index(escaped, "**")
		if idx < 0 {
			break
		}
		b.WriteString(escaped[:idx])
		if open {
			b.WriteString("</strong>")
		} else {
			b.WriteString("<strong>")
		}
		open = !open
		escaped = escaped[idx+2:]
	}
	b.WriteString(escaped)
	if open {
		b.WriteString("</strong>")
	}
	return b.String()
}
