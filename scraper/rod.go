package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// RodOptions configure the headless Chrome launched for each search
type RodOptions struct {
	Headless    bool
	BrowserBin  string // empty: look for a system Chrome, then let rod download Chromium
	UserDataDir string
	Lookup      time.Duration
}

// RodLauncher launches Chrome through go-rod.
type RodLauncher struct {
	opts RodOptions
	log  *zap.Logger
}

// NewRodLauncher creates a RodLauncher
func NewRodLauncher(opts RodOptions, log *zap.Logger) *RodLauncher {
	if opts.Lookup <= 0 {
		opts.Lookup = DefaultTimeouts().Lookup
	}
	return &RodLauncher{opts: opts, log: log}
}

// Common Chrome/Chromium install locations
var browserPaths = []string{
	"/usr/bin/google-chrome",
	"/usr/bin/google-chrome-stable",
	"/usr/bin/chromium",
	"/usr/bin/chromium-browser",
	"/snap/bin/chromium",
	`C:\Program Files\Google\Chrome\Application\chrome.exe`,
	`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
}

// Launch implements Launcher
func (rl *RodLauncher) Launch(ctx context.Context) (Browser, error) {
	l := launcher.New().
		Context(ctx).
		Headless(rl.opts.Headless).
		Set("disable-blink-features", "AutomationControlled").
		NoSandbox(true).
		Leakless(false).
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-extensions").
		Set("disable-background-networking").
		Set("disable-renderer-backgrounding").
		Set("disable-sync").
		Set("disable-translate").
		Set("mute-audio").
		Set("disable-features", "TranslateUI,BlinkGenPropertyTrees")

	if rl.opts.UserDataDir != "" {
		if err := os.MkdirAll(rl.opts.UserDataDir, 0o755); err != nil {
			rl.log.Warn("Failed to create browser data directory", zap.String("dir", rl.opts.UserDataDir), zap.Error(err))
		} else {
			l = l.UserDataDir(rl.opts.UserDataDir)
		}
	}

	if bin := rl.browserBin(); bin != "" {
		l = l.Bin(bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	rl.log.Debug("Browser launched", zap.String("control_url", controlURL))
	return &rodBrowser{browser: browser, launcher: l, lookup: rl.opts.Lookup}, nil
}

func (rl *RodLauncher) browserBin() string {
	if rl.opts.BrowserBin != "" {
		return rl.opts.BrowserBin
	}
	for _, path := range browserPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

type rodBrowser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	lookup   time.Duration
}

func (b *rodBrowser) NewPage(ctx context.Context) (Page, error) {
	page, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, err
	}
	return &rodPage{page: page, lookup: b.lookup}, nil
}

func (b *rodBrowser) Cookies(ctx context.Context) ([]Cookie, error) {
	cookies, err := b.browser.Context(ctx).GetCookies()
	if err != nil {
		return nil, err
	}

	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return out, nil
}

func (b *rodBrowser) SetCookies(ctx context.Context, cookies []Cookie) error {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		param := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
		}
		// Session cookies are stored with -1 and must be sent without expiry
		if c.Expires > 0 {
			param.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		params = append(params, param)
	}
	return b.browser.Context(ctx).SetCookies(params)
}

func (b *rodBrowser) Close() error {
	err := b.browser.Close()
	b.launcher.Kill()
	return err
}

type rodPage struct {
	page   *rod.Page
	lookup time.Duration
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return err
	}
	return page.WaitLoad()
}

func (p *rodPage) Reload(ctx context.Context) error {
	page := p.page.Context(ctx)
	if err := page.Reload(); err != nil {
		return err
	}
	return page.WaitLoad()
}

func (p *rodPage) WaitElement(ctx context.Context, selector string, timeout time.Duration) (Element, error) {
	el, err := p.page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return nil, lookupError(selector, err)
	}
	return &rodElement{el: el.CancelTimeout(), lookup: p.lookup}, nil
}

func (p *rodPage) Element(ctx context.Context, selector string) (Element, error) {
	has, el, err := p.page.Context(ctx).Has(selector)
	if err != nil {
		return nil, lookupError(selector, err)
	}
	if !has {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return &rodElement{el: el, lookup: p.lookup}, nil
}

func (p *rodPage) Document() Node {
	return &rodDocument{page: p}
}

// rodDocument is the page as a Node rooted at <html>.
type rodDocument struct {
	page *rodPage
}

func (d *rodDocument) root() (*rodElement, error) {
	el, err := d.page.Element(d.page.page.GetContext(), "html")
	if err != nil {
		return nil, err
	}
	return el.(*rodElement), nil
}

func (d *rodDocument) Text() (string, error) {
	root, err := d.root()
	if err != nil {
		return "", err
	}
	return root.Text()
}

func (d *rodDocument) Property(name string) (string, error) {
	root, err := d.root()
	if err != nil {
		return "", err
	}
	return root.Property(name)
}

func (d *rodDocument) Find(selector string) (Node, error) {
	el, err := d.page.page.Timeout(d.page.lookup).Element(selector)
	if err != nil {
		return nil, lookupError(selector, err)
	}
	return &rodElement{el: el.CancelTimeout(), lookup: d.page.lookup}, nil
}

func (d *rodDocument) FindAll(selector string) ([]Node, error) {
	els, err := d.page.page.Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrapElements(els, d.page.lookup), nil
}

type rodElement struct {
	el     *rod.Element
	lookup time.Duration
}

func (e *rodElement) Text() (string, error) {
	return e.el.Text()
}

func (e *rodElement) Property(name string) (string, error) {
	v, err := e.el.Property(name)
	if err != nil {
		return "", err
	}
	if v.Nil() {
		return "", fmt.Errorf("property %q is not set", name)
	}
	return v.Str(), nil
}

func (e *rodElement) Find(selector string) (Node, error) {
	el, err := e.el.Timeout(e.lookup).Element(selector)
	if err != nil {
		return nil, lookupError(selector, err)
	}
	return &rodElement{el: el.CancelTimeout(), lookup: e.lookup}, nil
}

func (e *rodElement) FindAll(selector string) ([]Node, error) {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrapElements(els, e.lookup), nil
}

func (e *rodElement) Parent() (Element, error) {
	parent, err := e.el.Parent()
	if err != nil {
		return nil, err
	}
	return &rodElement{el: parent, lookup: e.lookup}, nil
}

func (e *rodElement) Click(ctx context.Context, timeout time.Duration) error {
	el := e.el.Context(ctx).Timeout(timeout)
	defer el.CancelTimeout()
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) Input(text string) error {
	return e.el.Input(text)
}

func wrapElements(els rod.Elements, lookup time.Duration) []Node {
	nodes := make([]Node, 0, len(els))
	for _, el := range els {
		nodes = append(nodes, &rodElement{el: el, lookup: lookup})
	}
	return nodes
}

func lookupError(selector string, err error) error {
	var notFound *rod.ElementNotFoundError
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return fmt.Errorf("lookup %s: %w", selector, err)
}
