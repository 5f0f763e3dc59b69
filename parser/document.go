package parser

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"tgstat-bot/models"
	"tgstat-bot/scraper"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Node adapts a goquery selection to scraper.Node so that saved result
// pages go through the same extraction as live ones.
type Node struct {
	sel  *goquery.Selection
	base *url.URL
}

// NewDocument parses an HTML page. baseURL resolves relative links the way
// a browser resolves the href property; it may be empty.
func NewDocument(r io.Reader, baseURL string) (*Node, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var base *url.URL
	if baseURL != "" {
		base, err = url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
	}

	return &Node{sel: doc.Selection, base: base}, nil
}

// Text implements scraper.Node
func (n *Node) Text() (string, error) {
	return n.sel.Text(), nil
}

// Property implements scraper.Node. Only attribute-backed properties are
// available; href and src are resolved against the base URL.
func (n *Node) Property(name string) (string, error) {
	value, ok := n.sel.Attr(name)
	if !ok {
		return "", fmt.Errorf("property %q is not set", name)
	}

	if (name == "href" || name == "src") && n.base != nil {
		ref, err := url.Parse(strings.TrimSpace(value))
		if err != nil {
			return "", fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
		return n.base.ResolveReference(ref).String(), nil
	}

	return value, nil
}

// Find implements scraper.Node
func (n *Node) Find(selector string) (scraper.Node, error) {
	found := n.sel.Find(selector).First()
	if found.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", scraper.ErrElementNotFound, selector)
	}
	return &Node{sel: found, base: n.base}, nil
}

// FindAll implements scraper.Node
func (n *Node) FindAll(selector string) ([]scraper.Node, error) {
	var nodes []scraper.Node
	n.sel.Find(selector).Each(func(i int, s *goquery.Selection) {
		nodes = append(nodes, &Node{sel: s, base: n.base})
	})
	return nodes, nil
}

// ParseResultsHTML extracts posts from a saved tgstat search result page.
func ParseResultsHTML(htmlContent, baseURL string, log *zap.Logger) ([]models.PostData, error) {
	doc, err := NewDocument(strings.NewReader(htmlContent), baseURL)
	if err != nil {
		return nil, err
	}

	return scraper.NewExtractor(scraper.DefaultSelectors(), log).ExtractAll(doc)
}
