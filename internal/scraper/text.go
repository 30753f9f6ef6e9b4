package scraper

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// nodeText concatenates the descendant text of n. Script, style and template bodies are
// not text. With strip set every text piece is trimmed first.
func nodeText(n *html.Node, strip bool) string {
	var b strings.Builder
	collectText(n, strip, &b)
	return b.String()
}

func collectText(n *html.Node, strip bool, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		s := n.Data
		if strip {
			s = strings.TrimSpace(s)
		}
		b.WriteString(s)
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "template":
			return
		}
	case html.DocumentNode:
	default:
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, strip, b)
	}
}

// strippedText is the text of every node in sel with each piece trimmed and joined
// without separators.
func strippedText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		collectText(n, true, &b)
	}
	return b.String()
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// hasClass reports whether the class attribute of sel matches re.
func hasClass(sel *goquery.Selection, re *regexp.Regexp) bool {
	class, ok := sel.Attr("class")
	return ok && re.MatchString(class)
}

// firstWithClass returns the first element of sel whose class matches re.
func firstWithClass(sel *goquery.Selection, re *regexp.Regexp) *goquery.Selection {
	return sel.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return hasClass(s, re)
	}).First()
}
