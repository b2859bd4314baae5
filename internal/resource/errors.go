package resource

import (
	"errors"
	"fmt"
)

// ErrNotFound matches every *NotFoundError with errors.Is.
var ErrNotFound = errors.New("not found")

// ConnectionError means a resource could not be reached at connect time.
// The resource stays unusable until Connect succeeds.
type ConnectionError struct {
	Resource string
	Addr     string
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("connect %s: %v", e.Resource, e.Err)
	}
	return fmt.Sprintf("connect %s at %s: %v", e.Resource, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("key %q: %s", e.Key, ErrNotFound)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
