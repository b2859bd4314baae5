// Package extract turns scraped pages into readable text.
package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/go-shiori/go-readability"
)

type Page struct {
	URL     string
	Title   string
	Excerpt string
	Text    string
	// Markdown is the main content converted to markdown, links included.
	Markdown string
}

func (p Page) Words() int {
	return len(strings.Fields(p.Text))
}

var redundantNewLines = regexp.MustCompile(`\n{3,}`)

// Readable extracts the main content of an HTML page. pageURL is used to
// resolve relative links and may be empty.
func Readable(pageURL, html string) (Page, error) {
	var base *url.URL
	if pageURL != "" {
		u, err := url.Parse(pageURL)
		if err != nil {
			return Page{}, fmt.Errorf("parse page url: %w", err)
		}
		base = u
	}

	doc, err := readability.FromReader(strings.NewReader(html), base)
	if err != nil {
		return Page{}, fmt.Errorf("extract %s: %w", pageURL, err)
	}

	markdown, err := htmltomarkdown.ConvertString(doc.Content)
	if err != nil {
		return Page{}, fmt.Errorf("convert %s to markdown: %w", pageURL, err)
	}

	return Page{
		URL:      pageURL,
		Title:    strings.TrimSpace(doc.Title),
		Excerpt:  strings.TrimSpace(doc.Excerpt),
		Text:     cleanupText(doc.TextContent),
		Markdown: cleanupText(markdown),
	}, nil
}

func cleanupText(text string) string {
	return strings.TrimSpace(redundantNewLines.ReplaceAllString(text, "\n"))
}
