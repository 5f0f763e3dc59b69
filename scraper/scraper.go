package scraper

import (
	"context"
	"fmt"
	"time"

	"tgstat-bot/models"

	"go.uber.org/zap"
)

// Options configure a Scraper.
type Options struct {
	BaseURL   string
	Selectors Selectors
	Timeouts  Timeouts
	// OnAuthRequired is called with the authorization link before the pause.
	OnAuthRequired AuthHook
}

// Scraper searches tgstat for posts. Each Search owns one browser session;
// callers must not run searches sharing a cookie snapshot concurrently.
type Scraper struct {
	baseURL   string
	sessions  *SessionManager
	executor  *SearchExecutor
	recovery  *AuthRecovery
	extractor *Extractor
	log       *zap.Logger
}

// New creates a Scraper
func New(sessions *SessionManager, opts Options, log *zap.Logger) *Scraper {
	executor := NewSearchExecutor(opts.Selectors, opts.Timeouts, log.Named("search"))

	return &Scraper{
		baseURL:   opts.BaseURL,
		sessions:  sessions,
		executor:  executor,
		recovery:  NewAuthRecovery(executor, opts.Timeouts.AuthPause, opts.OnAuthRequired, log.Named("auth")),
		extractor: NewExtractor(opts.Selectors, log.Named("extract")),
		log:       log,
	}
}

// Search runs query on tgstat and returns the posts found, most viewed first
// when sorting succeeded. The browser is closed before Search returns.
func (s *Scraper) Search(ctx context.Context, query string) ([]models.PostData, error) {
	start := time.Now()
	log := s.log.With(zap.String("query", query))

	session, err := s.sessions.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Release()

	page := session.Page()
	if err := page.Navigate(ctx, s.baseURL); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.baseURL, err)
	}

	outcome, err := s.executor.Run(ctx, page, query)
	if err != nil {
		return nil, err
	}
	if outcome.Kind == OutcomeAuthRequired {
		if err := s.recovery.Recover(ctx, session, query, outcome.AuthLink); err != nil {
			return nil, err
		}
	}

	posts, err := s.extractor.ExtractAll(page.Document())
	if err != nil {
		return nil, err
	}

	log.Info("Search completed", zap.Int("posts", len(posts)), zap.Duration("took", time.Since(start)))
	return posts, nil
}
