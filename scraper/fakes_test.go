package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// fakeNode is an in-memory DOM node; children are keyed by the selector
// that matches them.
type fakeNode struct {
	text     string
	props    map[string]string
	children map[string][]*fakeNode
	parent   *fakeNode

	clicks   int
	input    string
	clickErr error
	onClick  func()
}

func (n *fakeNode) Text() (string, error) {
	return n.text, nil
}

func (n *fakeNode) Property(name string) (string, error) {
	v, ok := n.props[name]
	if !ok {
		return "", fmt.Errorf("property %q is not set", name)
	}
	return v, nil
}

func (n *fakeNode) Find(selector string) (Node, error) {
	matches := n.children[selector]
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return matches[0], nil
}

func (n *fakeNode) FindAll(selector string) ([]Node, error) {
	var nodes []Node
	for _, c := range n.children[selector] {
		nodes = append(nodes, c)
	}
	return nodes, nil
}

func (n *fakeNode) Parent() (Element, error) {
	if n.parent == nil {
		return nil, errors.New("no parent")
	}
	return n.parent, nil
}

func (n *fakeNode) Click(ctx context.Context, timeout time.Duration) error {
	n.clicks++
	if n.onClick != nil {
		n.onClick()
	}
	return n.clickErr
}

func (n *fakeNode) Input(text string) error {
	n.input = text
	return nil
}

// fakePage serves top-level elements by selector. Missing selectors behave
// like a wait that ran out of time.
type fakePage struct {
	elements map[string]*fakeNode
	doc      *fakeNode

	navigated []string
	reloads   int
	waits     map[string]time.Duration
	onReload  func(p *fakePage)
}

func newFakePage() *fakePage {
	return &fakePage{
		elements: map[string]*fakeNode{},
		doc:      &fakeNode{children: map[string][]*fakeNode{}},
		waits:    map[string]time.Duration{},
	}
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.navigated = append(p.navigated, url)
	return nil
}

func (p *fakePage) Reload(ctx context.Context) error {
	p.reloads++
	if p.onReload != nil {
		p.onReload(p)
	}
	return nil
}

func (p *fakePage) WaitElement(ctx context.Context, selector string, timeout time.Duration) (Element, error) {
	p.waits[selector] = timeout
	return p.Element(ctx, selector)
}

func (p *fakePage) Element(ctx context.Context, selector string) (Element, error) {
	el, ok := p.elements[selector]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return el, nil
}

func (p *fakePage) Document() Node {
	return p.doc
}

type fakeBrowser struct {
	page       *fakePage
	cookies    []Cookie
	cookiesErr error
	setCookies []Cookie
	pageErr    error
	closes     int
}

func (b *fakeBrowser) NewPage(ctx context.Context) (Page, error) {
	if b.pageErr != nil {
		return nil, b.pageErr
	}
	return b.page, nil
}

func (b *fakeBrowser) Cookies(ctx context.Context) ([]Cookie, error) {
	if b.cookiesErr != nil {
		return nil, b.cookiesErr
	}
	return b.cookies, nil
}

func (b *fakeBrowser) SetCookies(ctx context.Context, cookies []Cookie) error {
	b.setCookies = cookies
	return nil
}

func (b *fakeBrowser) Close() error {
	b.closes++
	return nil
}

type fakeLauncher struct {
	browser  *fakeBrowser
	err      error
	launches int
}

func (l *fakeLauncher) Launch(ctx context.Context) (Browser, error) {
	l.launches++
	if l.err != nil {
		return nil, l.err
	}
	return l.browser, nil
}

// postNode builds a well-formed result container for channel segment and post id.
func postNode(sel Selectors, segment, id string) *fakeNode {
	leaf := func(text string) []*fakeNode {
		return []*fakeNode{{text: text}}
	}
	return &fakeNode{children: map[string][]*fakeNode{
		sel.Title: {{
			text:  "\n  Кнопка " + segment + "  \n",
			props: map[string]string{"href": "https://tgstat.ru/channel/" + segment},
		}},
		sel.Date:    leaf("12 мар 2024, 14:05"),
		sel.Views:   leaf(" 12.4k "),
		sel.Reposts: leaf(" 31 "),
		sel.PostLink: {{
			props: map[string]string{"href": "https://tgstat.ru/channel/" + segment + "/" + id},
		}},
	}}
}

// readyPage returns a page where the search form works and n posts are rendered.
func readyPage(sel Selectors, posts ...*fakeNode) *fakePage {
	p := newFakePage()
	p.elements[sel.SearchInput] = &fakeNode{}
	p.elements[sel.SubmitButton] = &fakeNode{}

	label := &fakeNode{}
	p.elements[sel.SortByViews] = &fakeNode{parent: label}
	label.onClick = func() {
		p.elements[sel.SortSettled] = &fakeNode{}
	}

	if len(posts) > 0 {
		p.elements[sel.PostList] = posts[0]
	}
	p.doc.children[sel.PostList] = posts
	return p
}

func testTimeouts() Timeouts {
	return Timeouts{
		Input:     time.Second,
		Submit:    time.Minute,
		Sort:      time.Second,
		Results:   30 * time.Second,
		Lookup:    time.Second,
		AuthPause: time.Minute,
	}
}
