package domain

import (
	"fmt"
	"regexp"
)

// FetchError is a transport failure or a non-2xx answer on a required fetch.
// StatusCode is zero when no response was received.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// MarkupError means an expected element was missing from a scraped page, or
// the page could not be parsed at all.
type MarkupError struct {
	URL    string
	Reason string
	Err    error
}

func (e *MarkupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("markup %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("markup %s: %s", e.URL, e.Reason)
}

func (e *MarkupError) Unwrap() error { return e.Err }

// IdentifierError means no station identifier could be extracted from URL.
type IdentifierError struct {
	URL     string
	Pattern string
}

// NewIdentifierError builds an IdentifierError for url and pattern.
func NewIdentifierError(url string, pattern *regexp.Regexp) *IdentifierError {
	e := &IdentifierError{URL: url}
	if pattern != nil {
		e.Pattern = pattern.String()
	}
	return e
}

func (e *IdentifierError) Error() string {
	return fmt.Sprintf("no station identifier in %s (pattern %s)", e.URL, e.Pattern)
}

// PersistError is an I/O failure while writing a snapshot.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("write snapshot %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
