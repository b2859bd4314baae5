package source

import (
	"errors"
	"fmt"

	"github.com/0x0BSoD/turfoo/internal/model"
)

// FeedTransportError is a network level failure while retrieving a feed:
// DNS, TLS, timeout or a non-2xx response.
type FeedTransportError struct {
	Feed model.FeedType
	URL  string
	Err  error
}

func (e *FeedTransportError) Error() string {
	return fmt.Sprintf("fetch %s feed %s: %v", e.Feed, e.URL, e.Err)
}

func (e *FeedTransportError) Unwrap() error {
	return e.Err
}

// FeedParseError means the document was retrieved but the parser rejected it.
// Err carries the parser diagnostic.
type FeedParseError struct {
	Feed model.FeedType
	Err  error
}

func (e *FeedParseError) Error() string {
	return fmt.Sprintf("malformed %s feed: %v", e.Feed, e.Err)
}

func (e *FeedParseError) Unwrap() error {
	return e.Err
}

// FeedEmptyError means the document parsed but carries no entries.
type FeedEmptyError struct {
	Feed model.FeedType
}

func (e *FeedEmptyError) Error() string {
	return fmt.Sprintf("%s feed contains no entries", e.Feed)
}

type LinkScrapeError struct {
	URL string
	Err error
}

func (e *LinkScrapeError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.URL, e.Err)
}

func (e *LinkScrapeError) Unwrap() error {
	return e.Err
}

// StatusError is the cause recorded for non-2xx responses.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %s", e.Status)
}

// Retryable reports whether retrying the same operation right away may help.
// Only transport failures qualify: a malformed or empty document will still
// be malformed or empty a few seconds later.
func Retryable(err error) bool {
	var te *FeedTransportError
	return errors.As(err, &te)
}
