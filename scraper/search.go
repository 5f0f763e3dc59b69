package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Selectors are the CSS selectors of the tgstat search page.
type Selectors struct {
	SearchInput  string
	SubmitButton string
	AuthButton   string
	SortByViews  string
	SortSettled  string
	PostList     string

	// Inside a single post container
	Title    string
	Date     string
	Views    string
	Reposts  string
	PostLink string
}

// DefaultSelectors returns the selectors of the current tgstat layout.
func DefaultSelectors() Selectors {
	return Selectors{
		SearchInput:  "input.form-control.form-control-lg",
		SubmitButton: "button.btn-info",
		AuthButton:   "a.auth-btn",
		SortByViews:  `input.sort-button-js[data-metric="views"]`,
		SortSettled:  `div.posts-list[style*="opacity: 1;"]`,
		PostList:     "div.post-container",

		Title:    "a.text-dark",
		Date:     "p.text-muted.m-0 > small",
		Views:    "div.col.col-12.d-flex > a",
		Reposts:  "div.col.col-12.d-flex > span",
		PostLink: "div.ml-auto > a.btn",
	}
}

// Timeouts bound every wait of a search.
type Timeouts struct {
	Input     time.Duration
	Submit    time.Duration
	Settle    time.Duration
	Sort      time.Duration
	Results   time.Duration
	Lookup    time.Duration
	AuthPause time.Duration
}

// DefaultTimeouts returns the production bounds.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Input:     10 * time.Second,
		Submit:    60 * time.Second,
		Settle:    300 * time.Millisecond,
		Sort:      10 * time.Second,
		Results:   30 * time.Second,
		Lookup:    2 * time.Second,
		AuthPause: 60 * time.Second,
	}
}

// SearchState is a step of a single search attempt.
type SearchState int

const (
	StateIdle SearchState = iota
	StateInputFilled
	StateSubmitted
	StateAuthRequired
	StateSortAttempted
	StateReady
)

func (s SearchState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInputFilled:
		return "input_filled"
	case StateSubmitted:
		return "submitted"
	case StateAuthRequired:
		return "auth_required"
	case StateSortAttempted:
		return "sort_attempted"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// OutcomeKind tags the result of a search attempt.
type OutcomeKind int

const (
	OutcomeReady OutcomeKind = iota
	OutcomeAuthRequired
)

// Outcome is the result of a search attempt that did not fail.
type Outcome struct {
	Kind     OutcomeKind
	AuthLink string // set for OutcomeAuthRequired
}

// SearchExecutor fills and submits the search form on a page.
type SearchExecutor struct {
	sel      Selectors
	timeouts Timeouts
	log      *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewSearchExecutor creates a SearchExecutor
func NewSearchExecutor(sel Selectors, timeouts Timeouts, log *zap.Logger) *SearchExecutor {
	return &SearchExecutor{
		sel:      sel,
		timeouts: timeouts,
		log:      log,
		sleep:    sleepContext,
	}
}

// Run performs one search attempt. It returns OutcomeAuthRequired when tgstat
// shows the authorization button, OutcomeReady once posts are rendered, and
// ErrResultTimeout when they never appear.
func (e *SearchExecutor) Run(ctx context.Context, page Page, query string) (Outcome, error) {
	state := StateIdle

	input, err := page.WaitElement(ctx, e.sel.SearchInput, e.timeouts.Input)
	if err != nil {
		return Outcome{}, e.fail(state, "find search input", err)
	}
	if err := input.Input(query); err != nil {
		return Outcome{}, e.fail(state, "type query", err)
	}
	state = StateInputFilled

	button, err := page.Element(ctx, e.sel.SubmitButton)
	if err != nil {
		return Outcome{}, e.fail(state, "find search button", err)
	}
	if err := button.Click(ctx, e.timeouts.Submit); err != nil {
		return Outcome{}, e.fail(state, "click search button", err)
	}
	if err := e.sleep(ctx, e.timeouts.Settle); err != nil {
		return Outcome{}, err
	}
	state = StateSubmitted

	if link, ok := e.authLink(ctx, page); ok {
		e.log.Debug("Search interrupted", zap.Stringer("state", StateAuthRequired))
		return Outcome{Kind: OutcomeAuthRequired, AuthLink: link}, nil
	}

	if err := e.sortByViews(ctx, page); err != nil {
		e.log.Warn("Failed to sort by popularity", zap.Error(err))
	}
	state = StateSortAttempted

	if _, err := page.WaitElement(ctx, e.sel.PostList, e.timeouts.Results); err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		return Outcome{}, fmt.Errorf("%w (after %s): %w", ErrResultTimeout, e.timeouts.Results, err)
	}

	e.log.Debug("Search results ready", zap.Stringer("from", state), zap.Stringer("state", StateReady))
	return Outcome{Kind: OutcomeReady}, nil
}

func (e *SearchExecutor) authLink(ctx context.Context, page Page) (string, bool) {
	authButton, err := page.Element(ctx, e.sel.AuthButton)
	if err != nil {
		if !errors.Is(err, ErrElementNotFound) {
			e.log.Warn("Failed to check authorization button", zap.Error(err))
		}
		return "", false
	}

	link, err := authButton.Property("href")
	if err != nil {
		e.log.Warn("Authorization button has no link", zap.Error(err))
	}
	return link, true
}

// sortByViews clicks the label of the "views" sort radio and waits for the
// list to fade back in.
func (e *SearchExecutor) sortByViews(ctx context.Context, page Page) error {
	radio, err := page.WaitElement(ctx, e.sel.SortByViews, e.timeouts.Sort)
	if err != nil {
		return fmt.Errorf("find sort control: %w", err)
	}
	label, err := radio.Parent()
	if err != nil {
		return fmt.Errorf("find sort label: %w", err)
	}
	if err := label.Click(ctx, e.timeouts.Sort); err != nil {
		return fmt.Errorf("click sort control: %w", err)
	}
	if _, err := page.WaitElement(ctx, e.sel.SortSettled, e.timeouts.Sort); err != nil {
		return fmt.Errorf("wait for sorted list: %w", err)
	}
	return nil
}

func (e *SearchExecutor) fail(state SearchState, step string, err error) error {
	return fmt.Errorf("search failed in state %s: %s: %w", state, step, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
