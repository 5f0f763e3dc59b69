package scraper

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// AuthHook is told about every authorization link tgstat asks for.
type AuthHook func(link string)

// AuthRecovery gives an operator one chance to authorize the session.
type AuthRecovery struct {
	executor *SearchExecutor
	pause    time.Duration
	hook     AuthHook
	log      *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewAuthRecovery creates an AuthRecovery that retries through executor
func NewAuthRecovery(executor *SearchExecutor, pause time.Duration, hook AuthHook, log *zap.Logger) *AuthRecovery {
	return &AuthRecovery{
		executor: executor,
		pause:    pause,
		hook:     hook,
		log:      log,
		sleep:    sleepContext,
	}
}

// Recover waits for manual authorization through link, saves the session
// cookies, reloads the page and runs the search once more. A second
// authorization request is returned as *AuthError.
func (r *AuthRecovery) Recover(ctx context.Context, session *Session, query, link string) error {
	r.log.Warn("Authorization required", zap.String("link", link), zap.Duration("pause", r.pause))
	if r.hook != nil {
		r.hook(link)
	}

	if err := r.sleep(ctx, r.pause); err != nil {
		return err
	}

	if err := session.PersistCookies(ctx); err != nil {
		r.log.Error("Failed to save cookies after authorization pause", zap.Error(err))
	}

	if err := session.Page().Reload(ctx); err != nil {
		return fmt.Errorf("failed to reload search page: %w", err)
	}

	outcome, err := r.executor.Run(ctx, session.Page(), query)
	if err != nil {
		return err
	}
	if outcome.Kind == OutcomeAuthRequired {
		return &AuthError{Link: outcome.AuthLink}
	}

	r.log.Info("Authorization recovered")
	return nil
}
