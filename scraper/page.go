package scraper

import (
	"context"
	"time"
)

// Node is a read-only view of a DOM node.
type Node interface {
	// Text returns the text content of the node.
	Text() (string, error)
	// Property returns a DOM property (e.g. "href", which is absolute).
	Property(name string) (string, error)
	// Find returns the first matching descendant or ErrElementNotFound.
	Find(selector string) (Node, error)
	// FindAll returns every matching descendant in document order.
	FindAll(selector string) ([]Node, error)
}

// Element is a node of a live page that can be interacted with.
type Element interface {
	Node
	Parent() (Element, error)
	Click(ctx context.Context, timeout time.Duration) error
	Input(text string) error
}

// Page is a single browser tab.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	// WaitElement waits up to timeout for selector to appear.
	WaitElement(ctx context.Context, selector string, timeout time.Duration) (Element, error)
	// Element looks selector up once, without waiting.
	Element(ctx context.Context, selector string) (Element, error)
	// Document returns the root node of the current document.
	Document() Node
}

// Browser is one running browser instance.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Cookies(ctx context.Context) ([]Cookie, error)
	SetCookies(ctx context.Context, cookies []Cookie) error
	Close() error
}

// Launcher starts browser instances.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}
