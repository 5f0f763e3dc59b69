package scraper

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// SessionManager creates browser sessions seeded from the cookie snapshot.
type SessionManager struct {
	launcher Launcher
	cookies  *CookieStore
	log      *zap.Logger
}

// NewSessionManager creates a SessionManager
func NewSessionManager(launcher Launcher, cookies *CookieStore, log *zap.Logger) *SessionManager {
	return &SessionManager{
		launcher: launcher,
		cookies:  cookies,
		log:      log,
	}
}

// Session is one browser plus one page, owned by a single search.
type Session struct {
	browser Browser
	page    Page
	cookies *CookieStore
	log     *zap.Logger

	releaseOnce sync.Once
	releaseErr  error
}

// Acquire launches a browser, applies the stored cookies (if any) and opens a page.
// Launch failures wrap ErrSessionLaunch and are not retried.
func (m *SessionManager) Acquire(ctx context.Context) (*Session, error) {
	browser, err := m.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionLaunch, err)
	}

	s := &Session{
		browser: browser,
		cookies: m.cookies,
		log:     m.log,
	}

	cookies, err := m.cookies.Load()
	if err != nil {
		// A broken snapshot only costs us the authorization, not the search.
		m.log.Warn("Ignoring cookie snapshot", zap.String("path", m.cookies.Path()), zap.Error(err))
	} else if len(cookies) > 0 {
		if err := browser.SetCookies(ctx, cookies); err != nil {
			s.Release()
			return nil, fmt.Errorf("%w: set cookies: %w", ErrSessionLaunch, err)
		}
		m.log.Debug("Loaded cookies", zap.Int("count", len(cookies)))
	}

	page, err := browser.NewPage(ctx)
	if err != nil {
		s.Release()
		return nil, fmt.Errorf("%w: open page: %w", ErrSessionLaunch, err)
	}
	s.page = page

	return s, nil
}

// Page returns the session page
func (s *Session) Page() Page {
	return s.page
}

// PersistCookies overwrites the snapshot with the browser's current cookies.
func (s *Session) PersistCookies(ctx context.Context) error {
	cookies, err := s.browser.Cookies(ctx)
	if err != nil {
		return fmt.Errorf("failed to read browser cookies: %w", err)
	}
	if err := s.cookies.Save(cookies); err != nil {
		return err
	}
	s.log.Info("Cookies saved", zap.Int("count", len(cookies)), zap.String("path", s.cookies.Path()))
	return nil
}

// Release closes the browser. Only the first call has an effect.
func (s *Session) Release() error {
	s.releaseOnce.Do(func() {
		s.releaseErr = s.browser.Close()
		if s.releaseErr != nil {
			s.log.Warn("Failed to close browser", zap.Error(s.releaseErr))
		}
	})
	return s.releaseErr
}
