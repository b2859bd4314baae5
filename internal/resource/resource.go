// Package resource defines the capability contracts implemented by stateful
// resources such as the cache, the blob store, feed sources and scrapers.
//
// A resource implements only the capabilities it supports. Consumers depend on
// the smallest set of capabilities they need, never on a concrete resource.
package resource

import (
	"context"
	"iter"
	"time"
)

// Connectable resources hold a connection that must be opened before use.
// Connect returns a *ConnectionError when the resource can't be reached.
// Disconnect is idempotent and best-effort: it never fails the caller.
type Connectable interface {
	Connect(ctx context.Context) error
	Disconnect()
}

// HealthCheckable resources report whether they are usable right now.
// Healthy must be side-effect-free and must not panic on network failures.
type HealthCheckable interface {
	Healthy(ctx context.Context) bool
}

type Readable interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Writable stores a value under key. A zero ttl means no expiry.
type Writable interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type Deletable interface {
	Delete(ctx context.Context, key string) error
}

type Listable interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// Fetchable produces a forward-only, finite sequence of items. The consumer may
// stop early; implementations release their connections either way. A failure
// is yielded once as the error half of the pair and ends the sequence.
type Fetchable[P, T any] interface {
	Fetch(ctx context.Context, params P) iter.Seq2[T, error]
}

// Storable persists binary payloads. Store overwrites or creates, Load returns
// a *NotFoundError for absent keys and Exists has no side effects.
type Storable interface {
	Store(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}
