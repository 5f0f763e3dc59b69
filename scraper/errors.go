package scraper

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionLaunch is returned when the browser or its page cannot be started.
	ErrSessionLaunch = errors.New("failed to launch browser session")

	// ErrAuthenticationUnrecovered is returned when tgstat still asks for
	// authorization after the single recovery attempt.
	ErrAuthenticationUnrecovered = errors.New("authorization required after recovery")

	// ErrResultTimeout is returned when the result list never appeared.
	ErrResultTimeout = errors.New("search results did not appear in time")

	// ErrElementNotFound is returned by lookups that matched nothing.
	ErrElementNotFound = errors.New("element not found")
)

// AuthError carries the authorization link of an unrecovered challenge.
type AuthError struct {
	Link string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%v, authorize via %s", ErrAuthenticationUnrecovered, e.Link)
}

func (e *AuthError) Unwrap() error {
	return ErrAuthenticationUnrecovered
}

// ExtractionError describes why a single result element was skipped.
type ExtractionError struct {
	Index int
	Field string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("post #%d: %s: %v", e.Index, e.Field, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
