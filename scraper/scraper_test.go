package scraper

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type harness struct {
	sel      Selectors
	page     *fakePage
	browser  *fakeBrowser
	launcher *fakeLauncher
	cookies  *CookieStore
	scraper  *Scraper
	pauses   []time.Duration
	links    []string
}

func newHarness(t *testing.T, page *fakePage) *harness {
	t.Helper()
	h := &harness{
		sel:     DefaultSelectors(),
		page:    page,
		browser: &fakeBrowser{page: page},
		cookies: NewCookieStore(filepath.Join(t.TempDir(), "cookies.json")),
	}
	h.launcher = &fakeLauncher{browser: h.browser}

	opts := Options{
		BaseURL:        "https://tgstat.ru/search",
		Selectors:      h.sel,
		Timeouts:       testTimeouts(),
		OnAuthRequired: func(link string) { h.links = append(h.links, link) },
	}
	h.scraper = New(NewSessionManager(h.launcher, h.cookies, zap.NewNop()), opts, zap.NewNop())
	h.scraper.recovery.sleep = func(ctx context.Context, d time.Duration) error {
		h.pauses = append(h.pauses, d)
		return nil
	}
	return h
}

func fivePosts(sel Selectors) []*fakeNode {
	return []*fakeNode{
		postNode(sel, "@one", "1"),
		postNode(sel, "@two", "2"),
		postNode(sel, "Three", "3"),
		postNode(sel, "@four", "4"),
		postNode(sel, "@five", "5"),
	}
}

func TestSearchSuccess(t *testing.T) {
	sel := DefaultSelectors()
	h := newHarness(t, readyPage(sel, fivePosts(sel)...))

	posts, err := h.scraper.Search(context.Background(), "наушники")
	require.NoError(t, err)
	require.Len(t, posts, 5)

	assert.Equal(t, []string{"https://tgstat.ru/search"}, h.page.navigated)
	assert.Equal(t, "https://t.me/+Three/3", posts[2].PostURL)
	assert.Empty(t, h.pauses)
	assert.Equal(t, 1, h.browser.closes)
}

func TestSearchSkipsMalformedPost(t *testing.T) {
	sel := DefaultSelectors()
	containers := fivePosts(sel)
	delete(containers[3].children, sel.Date)
	h := newHarness(t, readyPage(sel, containers...))

	log, logs := observedLogger()
	h.scraper.extractor = NewExtractor(sel, log)

	posts, err := h.scraper.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, posts, 4)
	assert.Equal(t, 1, logs.FilterMessage("Failed to extract post").Len())
}

func TestSearchResultTimeout(t *testing.T) {
	sel := DefaultSelectors()
	h := newHarness(t, readyPage(sel))

	posts, err := h.scraper.Search(context.Background(), "q")
	assert.ErrorIs(t, err, ErrResultTimeout)
	assert.Nil(t, posts)
	assert.Equal(t, 1, h.browser.closes)
}

func TestSearchRecoversFromAuthOnce(t *testing.T) {
	sel := DefaultSelectors()
	page := readyPage(sel, fivePosts(sel)...)
	page.elements[sel.AuthButton] = &fakeNode{props: map[string]string{"href": "https://tgstat.ru/auth/L"}}
	page.onReload = func(p *fakePage) {
		delete(p.elements, sel.AuthButton)
	}

	h := newHarness(t, page)
	h.browser.cookies = []Cookie{{Name: "tgstat_sirk", Value: "authorized", Domain: ".tgstat.ru", Path: "/", Expires: -1}}

	posts, err := h.scraper.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, posts, 5)

	assert.Equal(t, []time.Duration{time.Minute}, h.pauses)
	assert.Equal(t, []string{"https://tgstat.ru/auth/L"}, h.links)
	assert.Equal(t, 1, page.reloads)
	assert.Equal(t, 2, page.elements[sel.SubmitButton].clicks)
	assert.Equal(t, 1, h.browser.closes)

	saved, err := h.cookies.Load()
	require.NoError(t, err)
	assert.Equal(t, h.browser.cookies, saved)
}

func TestSearchAuthUnrecovered(t *testing.T) {
	sel := DefaultSelectors()
	page := readyPage(sel, fivePosts(sel)...)
	page.elements[sel.AuthButton] = &fakeNode{props: map[string]string{"href": "https://tgstat.ru/auth/L2"}}

	h := newHarness(t, page)

	posts, err := h.scraper.Search(context.Background(), "q")
	require.Error(t, err)
	assert.Nil(t, posts)
	assert.ErrorIs(t, err, ErrAuthenticationUnrecovered)

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "https://tgstat.ru/auth/L2", authErr.Link)

	// exactly one recovery cycle, no third attempt
	assert.Len(t, h.pauses, 1)
	assert.Equal(t, 1, page.reloads)
	assert.Equal(t, 2, page.elements[sel.SubmitButton].clicks)
	assert.Equal(t, 1, h.browser.closes)
}

func TestSearchRetriesWhenCookiesCannotBeSaved(t *testing.T) {
	sel := DefaultSelectors()
	page := readyPage(sel, fivePosts(sel)...)
	page.elements[sel.AuthButton] = &fakeNode{props: map[string]string{"href": "https://tgstat.ru/auth/L"}}
	page.onReload = func(p *fakePage) {
		delete(p.elements, sel.AuthButton)
	}

	h := newHarness(t, page)
	h.browser.cookiesErr = errors.New("target closed")
	log, logs := observedLogger()
	h.scraper.recovery.log = log

	posts, err := h.scraper.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, posts, 5)

	assert.Equal(t, 1, logs.FilterMessage("Failed to save cookies after authorization pause").Len())
	assert.Equal(t, 1, page.reloads)
	assert.Equal(t, 2, page.elements[sel.SubmitButton].clicks)

	saved, err := h.cookies.Load()
	require.NoError(t, err)
	assert.Nil(t, saved)
}

func TestSearchRetryResultTimeout(t *testing.T) {
	sel := DefaultSelectors()
	page := readyPage(sel)
	page.elements[sel.AuthButton] = &fakeNode{props: map[string]string{"href": "https://tgstat.ru/auth/L"}}
	page.onReload = func(p *fakePage) {
		delete(p.elements, sel.AuthButton)
	}

	h := newHarness(t, page)

	posts, err := h.scraper.Search(context.Background(), "q")
	assert.Nil(t, posts)
	assert.ErrorIs(t, err, ErrResultTimeout)
	assert.NotErrorIs(t, err, ErrAuthenticationUnrecovered)

	assert.Len(t, h.pauses, 1)
	assert.Equal(t, 1, page.reloads)
	assert.Equal(t, 2, page.elements[sel.SubmitButton].clicks)
	assert.Equal(t, 1, h.browser.closes)
}

func TestSearchLaunchFailure(t *testing.T) {
	h := newHarness(t, newFakePage())
	h.launcher.err = errors.New("chrome not found")

	_, err := h.scraper.Search(context.Background(), "q")
	assert.ErrorIs(t, err, ErrSessionLaunch)
	assert.Equal(t, 1, h.launcher.launches)
	assert.Zero(t, h.browser.closes)
}

func TestSessionAcquireAppliesStoredCookies(t *testing.T) {
	h := newHarness(t, newFakePage())
	stored := []Cookie{{Name: "a", Value: "1", Domain: "tgstat.ru", Path: "/", Expires: 1893456000, SameSite: "Lax"}}
	require.NoError(t, h.cookies.Save(stored))

	session, err := NewSessionManager(h.launcher, h.cookies, zap.NewNop()).Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stored, h.browser.setCookies)

	require.NoError(t, session.Release())
	require.NoError(t, session.Release())
	assert.Equal(t, 1, h.browser.closes)
}

func TestSessionAcquireWithoutSnapshot(t *testing.T) {
	h := newHarness(t, newFakePage())

	session, err := NewSessionManager(h.launcher, h.cookies, zap.NewNop()).Acquire(context.Background())
	require.NoError(t, err)
	defer session.Release()

	assert.Nil(t, h.browser.setCookies)
	assert.Same(t, h.page, session.Page())
}

func TestSessionAcquirePageFailureReleasesBrowser(t *testing.T) {
	h := newHarness(t, newFakePage())
	h.browser.pageErr = errors.New("target crashed")

	_, err := NewSessionManager(h.launcher, h.cookies, zap.NewNop()).Acquire(context.Background())
	assert.ErrorIs(t, err, ErrSessionLaunch)
	assert.Equal(t, 1, h.browser.closes)
}
