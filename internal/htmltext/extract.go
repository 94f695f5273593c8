// Package htmltext turns a saved fact sheet page into the plain text the
// browser would have read from the report element.
package htmltext

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// containerSelectors are tried in order; the first match is the report body.
var containerSelectors = []string{
	"#dvReport",
	"div[class*='report']",
	".ui-dialog-content, .modal-body",
	"body",
}

var blockElements = map[string]bool{
	"address": true, "article": true, "br": true, "dd": true, "div": true,
	"dl": true, "dt": true, "fieldset": true, "form": true, "h1": true,
	"h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "hr": true,
	"li": true, "ol": true, "p": true, "pre": true, "section": true,
	"table": true, "tbody": true, "thead": true, "tfoot": true, "tr": true,
	"ul": true,
}

// Extract returns the visible text of the report container in r.
func Extract(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()

	container := doc.Selection
	for _, sel := range containerSelectors {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			container = found
			break
		}
	}

	var sb strings.Builder
	for _, n := range container.Nodes {
		walk(n, &sb)
	}
	return clean(norm.NFKC.String(sb.String())), nil
}

// ExtractString is Extract over an in-memory document.
func ExtractString(doc string) (string, error) {
	return Extract(strings.NewReader(doc))
}

// walk writes the text under root, breaking lines around block elements.
// It keeps its own stack so arbitrarily deep markup is rendered in full.
func walk(root *html.Node, sb *strings.Builder) {
	type frame struct {
		n    *html.Node
		exit bool
	}
	stack := []frame{{n: root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := f.n

		if f.exit {
			sb.WriteString("\n")
			continue
		}
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			continue
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template", "head":
				continue
			case "td", "th":
				sb.WriteString(" ")
			}
			if blockElements[n.Data] {
				sb.WriteString("\n")
				stack = append(stack, frame{n: n, exit: true})
			}
		}

		for c := n.LastChild; c != nil; c = c.PrevSibling {
			stack = append(stack, frame{n: c})
		}
	}
}

// clean collapses runs of spaces inside lines and drops blank lines.
func clean(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
