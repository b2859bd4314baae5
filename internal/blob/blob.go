// Package blob persists raw feed and page payloads so they can be replayed
// without hitting the upstream source again.
//
// Object keys:
//
//	<feed-type>/<timestamp>.raw       raw feed documents
//	pages/<sha1(url)>/<timestamp>.raw raw scraped pages
//	pages/<sha1(url)>/<timestamp>.md  readable page text as markdown
//
// Timestamps are ISO-8601 in UTC with a fixed width, so keys sort by time.
package blob

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/0x0BSoD/turfoo/internal/model"
	"github.com/0x0BSoD/turfoo/internal/resource"
)

const (
	timestampLayout = "2006-01-02T15:04:05.000000Z"
	rawSuffix       = ".raw"
	textSuffix      = ".md"
	pagesPrefix     = "pages/"
)

func FeedKey(ft model.FeedType, at time.Time) string {
	return FeedPrefix(ft) + at.UTC().Format(timestampLayout) + rawSuffix
}

func FeedPrefix(ft model.FeedType) string {
	return string(ft) + "/"
}

func PageKey(url string, at time.Time) string {
	return pageStem(url, at) + rawSuffix
}

// PageTextKey is the key of the text extracted from the page stored under
// PageKey(url, at).
func PageTextKey(url string, at time.Time) string {
	return pageStem(url, at) + textSuffix
}

func pageStem(url string, at time.Time) string {
	sum := sha1.Sum([]byte(url)) //nolint:gosec
	return pagesPrefix + hex.EncodeToString(sum[:]) + "/" + at.UTC().Format(timestampLayout)
}

// KeyTime returns the fetch timestamp encoded in a key.
func KeyTime(key string) (time.Time, error) {
	i := strings.LastIndex(key, "/")
	if i < 0 || !strings.HasSuffix(key, rawSuffix) {
		return time.Time{}, fmt.Errorf("malformed blob key %q", key)
	}
	return time.Parse(timestampLayout, strings.TrimSuffix(key[i+1:], rawSuffix))
}

type lister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// Latest returns the most recent key under prefix.
func Latest(ctx context.Context, store lister, prefix string) (string, error) {
	keys, err := store.List(ctx, prefix)
	if err != nil {
		return "", err
	}

	keys = slices.DeleteFunc(keys, func(k string) bool {
		return !strings.HasSuffix(k, rawSuffix)
	})
	if len(keys) == 0 {
		return "", &resource.NotFoundError{Key: prefix}
	}
	return slices.Max(keys), nil
}
