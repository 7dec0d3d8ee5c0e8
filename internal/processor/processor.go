// Package processor reduces fetched HTML pages to readable Markdown.
package processor

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// mainSelectors are tried in order to locate the article body.
var mainSelectors = []string{
	"#mw-content-text .mw-parser-output",
	"#mw-content-text",
	"main article",
	"article",
	"main",
	"body",
}

// noiseSelectors are removed from the article body before conversion.
var noiseSelectors = []string{
	"script", "style", "noscript",
	".reference", ".references", ".reflist", ".mw-references-wrap",
	".navbox", ".vertical-navbox", ".infobox", ".sidebar", ".metadata",
	".mw-editsection", ".hatnote", ".thumb", "figure", "table.ambox",
	"#toc", ".toc", "nav", "footer",
}

// Processor converts HTML content to Markdown.
type Processor struct{}

// New creates a new HTML to Markdown processor.
func New() *Processor {
	return &Processor{}
}

// Convert transforms HTML content into Markdown.
func (p *Processor) Convert(htmlContent string) (string, error) {
	if htmlContent == "" {
		return "", nil
	}

	markdown, err := htmltomarkdown.ConvertString(htmlContent)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(markdown), nil
}

// MainContent returns the HTML of the page's article body with references,
// navigation boxes and other page furniture removed.
func (p *Processor) MainContent(htmlContent string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	var main *goquery.Selection
	for _, sel := range mainSelectors {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			main = found
			break
		}
	}
	if main == nil {
		return "", nil
	}

	main.Find(strings.Join(noiseSelectors, ", ")).Remove()

	out, err := main.Html()
	if err != nil {
		return "", fmt.Errorf("failed to render HTML: %w", err)
	}
	return out, nil
}

// Markdown extracts the main content of htmlContent and converts it,
// truncating the result to maxLen bytes when maxLen is positive.
func (p *Processor) Markdown(htmlContent string, maxLen int) (string, error) {
	main, err := p.MainContent(htmlContent)
	if err != nil {
		return "", err
	}

	md, err := p.Convert(main)
	if err != nil {
		return "", fmt.Errorf("failed to convert to markdown: %w", err)
	}

	if maxLen > 0 && len(md) > maxLen {
		md = truncate(md, maxLen) + "..."
	}
	return md, nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	for n > 0 && n < len(s) && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
