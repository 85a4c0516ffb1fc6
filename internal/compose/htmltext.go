package compose

import (
	"strings"

	"golang.org/x/net/html"
)

var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "header": true, "footer": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "li": true, "table": true, "tr": true, "blockquote": true,
	"pre": true, "hr": true,
}

// htmlToText flattens an HTML document into readable plain text. Block
// elements become paragraphs, list items get a "- " prefix and links keep
// their target in parentheses.
func htmlToText(src string) (string, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	var walk func(n *html.Node, pre bool)
	walk = func(n *html.Node, pre bool) {
		switch n.Type {
		case html.TextNode:
			if pre {
				b.WriteString(n.Data)
				return
			}
			writeCollapsed(&b, n.Data)
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "head", "title":
				return
			case "br":
				b.WriteString("\n")
				return
			case "li":
				newline(&b)
				b.WriteString("- ")
			default:
				if blockElements[n.Data] {
					paragraph(&b)
				}
			}
		}

		start := b.Len()
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, pre || (n.Type == html.ElementNode && n.Data == "pre"))
		}

		if n.Type == html.ElementNode {
			if n.Data == "a" {
				href := strings.TrimPrefix(attr(n, "href"), "mailto:")
				if href != "" && strings.TrimSpace(b.String()[start:]) != href {
					b.WriteString(" (" + href + ")")
				}
			}
			if blockElements[n.Data] && n.Data != "li" {
				paragraph(&b)
			}
		}
	}
	walk(doc, false)

	return tidy(b.String()), nil
}

func writeCollapsed(b *strings.Builder, s string) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		if s != "" && !endsWithSpace(b) {
			b.WriteByte(' ')
		}
		return
	}
	if isSpace(s[0]) && !endsWithSpace(b) {
		b.WriteByte(' ')
	}
	b.WriteString(strings.Join(fields, " "))
	if isSpace(s[len(s)-1]) {
		b.WriteByte(' ')
	}
}

func newline(b *strings.Builder) {
	if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
		b.WriteByte('\n')
	}
}

func paragraph(b *strings.Builder) {
	if b.Len() == 0 {
		return
	}
	s := b.String()
	switch {
	case strings.HasSuffix(s, "\n\n"):
	case strings.HasSuffix(s, "\n"):
		b.WriteByte('\n')
	default:
		b.WriteString("\n\n")
	}
}

func endsWithSpace(b *strings.Builder) bool {
	s := b.String()
	return s == "" || isSpace(s[len(s)-1])
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// tidy trims trailing spaces per line and collapses runs of blank lines.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.TrimRight(l, " \t")
		l = strings.TrimLeft(l, " ")
		if l == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
