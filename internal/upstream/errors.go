package upstream

import (
	"errors"
	"fmt"
)

// ErrEmptyCompletion is returned for a successful response carrying no text.
var ErrEmptyCompletion = errors.New("upstream returned an empty completion")

// StatusError is a non-2xx upstream response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

// RetryError reports that every attempt failed. Err is the last failure.
type RetryError struct {
	Provider string
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("provider %s failed after %d attempt(s): %v", e.Provider, e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }
