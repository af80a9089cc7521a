// Package extractor pulls hyperlink targets out of page content.
package extractor

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// DefaultContentSelector matches the article body of a MediaWiki page
const DefaultContentSelector = "#bodyContent"

// ErrNoContent means the page has no element matching the content selector
var ErrNoContent = errors.New("no content found")

// Extractor returns the raw href values of the anchors in a page's main content
type Extractor interface {
	ExtractAnchors(content []byte) ([]string, error)
}

// Selector extracts anchors below the first element matching a CSS selector
type Selector struct {
	content string
}

// New creates a Selector. An empty selector uses the whole document.
func New(contentSelector string) *Selector {
	if contentSelector == "" {
		contentSelector = "html"
	}
	return &Selector{content: contentSelector}
}

// ExtractAnchors returns every href under the content element, in document
// order and without deduplication.
func (s *Selector) ExtractAnchors(content []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	root := doc.Find(s.content).First()
	if root.Length() == 0 {
		return nil, fmt.Errorf("selector %q: %w", s.content, ErrNoContent)
	}

	var hrefs []string
	root.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		hrefs = append(hrefs, href)
	})
	return hrefs, nil
}
