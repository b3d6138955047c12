package subscription

import (
	"errors"
	"fmt"
)

var (
	// ErrFetchInFlight is returned by LoadMore while another page is loading
	ErrFetchInFlight = errors.New("page fetch already in flight")
	// ErrNotStarted is returned before the first SetFilter
	ErrNotStarted = errors.New("subscription not started")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("subscription manager closed")
)

// PageError reports a failed snapshot fetch. The collection keeps its last
// good state and the page cursor is not advanced, so the same page is
// requested again on retry.
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("fetch page %d: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}
