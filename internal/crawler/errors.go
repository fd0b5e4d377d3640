package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidKey is returned when a PageKey lacks the fields of its kind.
	ErrInvalidKey = errors.New("invalid page key")
	// ErrNotFound is returned by caches when a page has not been stored.
	ErrNotFound = errors.New("page not cached")
)

// LoadFailure describes a page that could not be retrieved. The crawl skips the page and continues.
type LoadFailure struct {
	Key    PageKey
	URL    string
	Reason string
	Err    error
}

func (e *LoadFailure) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("load %s (%s): %s", e.Key, e.URL, e.Reason)
	}
	return fmt.Sprintf("load %s (%s): %s: %v", e.Key, e.URL, e.Reason, e.Err)
}

func (e *LoadFailure) Unwrap() error {
	return e.Err
}
