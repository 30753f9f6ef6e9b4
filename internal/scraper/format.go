package scraper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	boldStars      = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	boldUnderscore = regexp.MustCompile(`__([^_]+)__`)
	markdownLink   = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	dotCapital     = regexp.MustCompile(`\.([A-Z])`)
	sourceRef      = regexp.MustCompile(`\[(\d+)\s*\]`)
)

const minSentenceLength = 10

// FormatText flattens an element's inline markup: bold becomes **text**, links are padded
// with spaces, line breaks become spaces and whitespace is collapsed.
func FormatText(sel *goquery.Selection) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	return formatNode(sel.Nodes[0])
}

func formatNode(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			b.WriteString(c.Data)
			continue
		case html.ElementNode:
		default:
			continue
		}

		switch c.Data {
		case "strong", "b":
			b.WriteString("**" + nodeText(c, false) + "**")
		case "a":
			b.WriteString(" " + nodeText(c, false) + " ")
		case "br":
			b.WriteString(" ")
		case "span", "div", "p":
			b.WriteString(formatNode(c))
		default:
			b.WriteString(nodeText(c, false))
		}
	}
	return collapseSpaces(b.String())
}

// FormatHTML reflows plain text into <p> sentences with <strong> emphasis.
// Every paragraph ends with a period unless it ends with bold text.
func FormatHTML(text string) string {
	if text == "" {
		return ""
	}

	text = collapseRuns(text)
	text = boldStars.ReplaceAllString(text, "<strong>$1</strong>")
	text = boldUnderscore.ReplaceAllString(text, "<strong>$1</strong>")
	text = markdownLink.ReplaceAllString(text, "$1")
	text = dotCapital.ReplaceAllString(text, ". $1")

	var paragraphs []string
	for _, sentence := range splitSentences(text) {
		sentence = strings.TrimSpace(sentence)
		if utf8.RuneCountInString(sentence) <= minSentenceLength {
			continue
		}
		if !strings.HasSuffix(sentence, ".") && !strings.HasSuffix(sentence, "</strong>") {
			sentence += "."
		}
		paragraphs = append(paragraphs, "<p>"+sentence+"</p>")
	}
	if len(paragraphs) == 0 {
		return "<p>" + strings.TrimSpace(text) + "</p>"
	}
	return strings.Join(paragraphs, "\n")
}

// SourceRef is the link target for a numbered [n] reference.
type SourceRef struct {
	Link   string
	Domain string
}

// LinkSourceRefs replaces [n] markers (1-based) with links to the matching source.
// Out-of-range markers are left as they are.
func LinkSourceRefs(text string, sources []SourceRef) string {
	if len(sources) == 0 {
		return text
	}
	return sourceRef.ReplaceAllStringFunc(text, func(m string) string {
		idx, err := strconv.Atoi(strings.TrimSpace(m[1 : len(m)-1]))
		if err != nil || idx < 1 || idx > len(sources) {
			return m
		}
		src := sources[idx-1]
		link := src.Link
		if link == "" {
			link = "#"
		}
		return fmt.Sprintf(`<a href="%s" class="article-source" target="_blank">%s</a>`, link, src.Domain)
	})
}

// splitSentences splits after a period where whitespace is followed by a capital letter.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 1; i < len(text); i++ {
		if text[i] != ' ' || text[i-1] != '.' {
			continue
		}
		j := i
		for j < len(text) && text[j] == ' ' {
			j++
		}
		if j < len(text) && text[j] >= 'A' && text[j] <= 'Z' {
			out = append(out, text[start:i])
			start = j
			i = j
		}
	}
	return append(out, text[start:])
}

// collapseRuns turns every whitespace run into one space without trimming.
func collapseRuns(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte(' ')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// collapseSpaces collapses whitespace runs and trims the ends.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
