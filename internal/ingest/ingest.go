// Package ingest holds the task handlers run by the worker: fetching the
// three turfoo feeds, scraping the pages linked from the results feed and
// replaying stored payloads.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/0x0BSoD/turfoo/internal/blob"
	"github.com/0x0BSoD/turfoo/internal/extract"
	"github.com/0x0BSoD/turfoo/internal/model"
	"github.com/0x0BSoD/turfoo/internal/resource"
	"github.com/0x0BSoD/turfoo/internal/scheduler"
	"github.com/0x0BSoD/turfoo/internal/source"
)

const (
	TaskFetchProgram  = "fetch_program_feed"
	TaskFetchNews     = "fetch_news_feed"
	TaskFetchResults  = "fetch_results_feed"
	TaskScrapeResults = "scrape_results_links"
	TaskReplay        = "replay_feed"

	unknownTitle = "Unknown"

	releaseTimeout = 5 * time.Second
)

// FetchTask returns the task name fetching the given feed type.
func FetchTask(ft model.FeedType) string {
	return "fetch_" + string(ft) + "_feed"
}

func InflightKey(ft model.FeedType) string {
	return "feed:" + string(ft) + ":inflight"
}

func LastResultKey(ft model.FeedType) string {
	return "feed:" + string(ft) + ":last"
}

func scrapeInflightKey(ft model.FeedType) string {
	return "scrape:" + string(ft) + ":inflight"
}

type FeedSource interface {
	Retrieve(ctx context.Context, ft model.FeedType) ([]byte, error)
	Parse(ft model.FeedType, raw []byte) (*source.Feed, error)
}

type PageFetcher interface {
	Fetch(ctx context.Context, urls []string) iter.Seq2[string, error]
}

type Cache interface {
	resource.Readable
	resource.Writable
	Claim(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, owner string) (bool, error)
}

type BlobStore interface {
	resource.Storable
	resource.Listable
}

type Registrar interface {
	Register(task string, h scheduler.Handler)
}

// LastResult is memoized per feed type after every successful fetch.
type LastResult struct {
	Entries   int       `json:"entries"`
	Title     string    `json:"title"`
	Digest    string    `json:"digest"`
	BlobKey   string    `json:"blob_key,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

type Service struct {
	feeds     FeedSource
	pages     PageFetcher
	cache     Cache
	blobs     BlobStore
	markerTTL time.Duration
	now       func() time.Time
}

func New(feeds FeedSource, pages PageFetcher, cache Cache, blobs BlobStore, markerTTL time.Duration) *Service {
	return &Service{
		feeds:     feeds,
		pages:     pages,
		cache:     cache,
		blobs:     blobs,
		markerTTL: markerTTL,
		now:       time.Now,
	}
}

func (s *Service) Register(r Registrar) {
	for _, ft := range model.FeedTypes() {
		r.Register(FetchTask(ft), func(ctx context.Context, job scheduler.Job) (scheduler.Summary, error) {
			return s.FetchFeed(ctx, job, ft)
		})
	}
	r.Register(TaskScrapeResults, s.ScrapeResultLinks)
	r.Register(TaskReplay, s.Replay)
}

// FetchFeed downloads, stores and validates one feed. Only one job per feed
// type runs at a time; the others are skipped. The marker is released when
// the job returns and expires after the marker TTL if the process dies.
func (s *Service) FetchFeed(ctx context.Context, job scheduler.Job, ft model.FeedType) (scheduler.Summary, error) {
	if err := s.claim(ctx, InflightKey(ft), job); err != nil {
		return scheduler.Summary{}, err
	}
	defer s.release(ctx, InflightKey(ft), job)

	feed, key, err := s.retrieve(ctx, ft)
	if err != nil {
		return scheduler.Summary{}, err
	}

	count, digest, err := s.walk(ctx, feed)
	if err != nil {
		return scheduler.Summary{}, err
	}

	summary := scheduler.Summary{Entries: count, Title: feedTitle(feed)}
	s.remember(ctx, ft, LastResult{
		Entries:   count,
		Title:     summary.Title,
		Digest:    digest,
		BlobKey:   key,
		FetchedAt: s.now().UTC(),
	})

	slog.Info("feed fetched", "feed", ft, "job", job.ID, "entries", count, "title", summary.Title)
	return summary, nil
}

// retrieve downloads the feed, stores the raw payload and parses it. The
// payload is stored even when it fails to parse so it can be inspected.
func (s *Service) retrieve(ctx context.Context, ft model.FeedType) (*source.Feed, string, error) {
	raw, err := s.feeds.Retrieve(ctx, ft)
	if err != nil {
		return nil, "", err
	}

	key := s.store(ctx, blob.FeedKey(ft, s.now()), raw)

	feed, err := s.feeds.Parse(ft, raw)
	if err != nil {
		return nil, key, err
	}
	return feed, key, nil
}

// walk consumes the entries, stopping at the first checkpoint after the soft
// time limit.
func (s *Service) walk(ctx context.Context, feed *source.Feed) (int, string, error) {
	var (
		count int
		hash  = sha256.New()
	)
	for entry := range feed.Entries() {
		if err := scheduler.Checkpoint(ctx); err != nil {
			return 0, "", err
		}
		count++
		fmt.Fprintf(hash, "%s\x00%s\x00%s\n", entry.ID, entry.Title, entry.Published)
	}
	return count, hex.EncodeToString(hash.Sum(nil)), nil
}

// ScrapeResultLinks downloads every page linked from the results feed, in
// feed order, stopping at the first failing link. A page in flight when the
// soft time limit passes is finished before the job stops.
func (s *Service) ScrapeResultLinks(ctx context.Context, job scheduler.Job) (scheduler.Summary, error) {
	if err := s.claim(ctx, scrapeInflightKey(model.FeedResults), job); err != nil {
		return scheduler.Summary{}, err
	}
	defer s.release(ctx, scrapeInflightKey(model.FeedResults), job)

	feed, _, err := s.retrieve(ctx, model.FeedResults)
	if err != nil {
		return scheduler.Summary{}, err
	}

	var links []string
	for entry := range feed.Entries() {
		links = append(links, entry.Link)
	}
	links = lo.Uniq(lo.Compact(links))

	scraped, words := 0, 0
	for page, err := range s.pages.Fetch(ctx, links) {
		if err != nil {
			return scheduler.Summary{}, fmt.Errorf("scraped %d of %d links: %w", scraped, len(links), err)
		}

		url, at := links[scraped], s.now()
		scraped++
		s.store(ctx, blob.PageKey(url, at), []byte(page))

		if text, err := extract.Readable(url, page); err != nil {
			slog.Warn("failed to extract page text", "url", url, "err", err)
		} else {
			words += text.Words()
			s.store(ctx, blob.PageTextKey(url, at), []byte(text.Markdown))
		}

		if scraped < len(links) {
			if err := scheduler.Checkpoint(ctx); err != nil {
				return scheduler.Summary{}, fmt.Errorf("scraped %d of %d links: %w", scraped, len(links), err)
			}
		}
	}

	slog.Info("result links scraped", "job", job.ID, "pages", scraped, "words", words)
	return scheduler.Summary{Entries: scraped, Title: feedTitle(feed)}, nil
}

// Replay parses a stored feed payload again without touching the network.
// Payload keys: "feed" (required) and "key" (defaults to the latest payload).
func (s *Service) Replay(ctx context.Context, job scheduler.Job) (scheduler.Summary, error) {
	ft, err := model.ParseFeedType(job.Payload["feed"])
	if err != nil {
		return scheduler.Summary{}, err
	}
	if s.blobs == nil {
		return scheduler.Summary{}, errors.New("replay needs a blob store")
	}

	key := job.Payload["key"]
	if key == "" {
		key, err = blob.Latest(ctx, s.blobs, blob.FeedPrefix(ft))
		if err != nil {
			return scheduler.Summary{}, fmt.Errorf("find latest %s payload: %w", ft, err)
		}
	}

	raw, err := s.blobs.Load(ctx, key)
	if err != nil {
		return scheduler.Summary{}, err
	}

	feed, err := s.feeds.Parse(ft, raw)
	if err != nil {
		return scheduler.Summary{}, err
	}

	count, _, err := s.walk(ctx, feed)
	if err != nil {
		return scheduler.Summary{}, err
	}

	slog.Info("feed replayed", "feed", ft, "key", key, "entries", count)
	return scheduler.Summary{Entries: count, Title: feedTitle(feed)}, nil
}

// Last returns the memoized result of the last successful fetch.
func (s *Service) Last(ctx context.Context, ft model.FeedType) (LastResult, error) {
	var last LastResult

	raw, err := s.cache.Get(ctx, LastResultKey(ft))
	if err != nil {
		return last, err
	}
	if err := json.Unmarshal(raw, &last); err != nil {
		return last, fmt.Errorf("decode %s: %w", LastResultKey(ft), err)
	}
	return last, nil
}

func (s *Service) claim(ctx context.Context, key string, job scheduler.Job) error {
	ok, err := s.cache.Claim(ctx, key, job.ID, s.markerTTL)
	if err != nil {
		return fmt.Errorf("claim %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s is held by another job", scheduler.ErrSkipped, key)
	}
	return nil
}

// release deletes the marker if job still owns it. It runs after the job's
// context may already be cancelled.
func (s *Service) release(ctx context.Context, key string, job scheduler.Job) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	ok, err := s.cache.Release(ctx, key, job.ID)
	switch {
	case err != nil:
		slog.Warn("failed to release marker", "key", key, "job", job.ID, "err", err)
	case !ok:
		slog.Debug("marker already gone", "key", key, "job", job.ID)
	}
}

func (s *Service) remember(ctx context.Context, ft model.FeedType, last LastResult) {
	prev, err := s.Last(ctx, ft)
	switch {
	case err == nil && prev.Digest == last.Digest:
		slog.Info("feed unchanged since last fetch", "feed", ft, "last_fetched_at", prev.FetchedAt)
	case err != nil && !errors.Is(err, resource.ErrNotFound):
		slog.Warn("failed to read last result", "feed", ft, "err", err)
	}

	raw, err := json.Marshal(last)
	if err != nil {
		slog.Error("failed to encode last result", "feed", ft, "err", err)
		return
	}
	if err := s.cache.Set(ctx, LastResultKey(ft), raw, 0); err != nil {
		slog.Warn("failed to memoize last result", "feed", ft, "err", err)
	}
}

// store persists a raw payload and returns its key, or "" when it was not
// stored. Blob failures never fail the task.
func (s *Service) store(ctx context.Context, key string, data []byte) string {
	if s.blobs == nil {
		return ""
	}
	if err := s.blobs.Store(ctx, key, data); err != nil {
		slog.Warn("failed to store raw payload", "key", key, "err", err)
		return ""
	}
	return key
}

func feedTitle(feed *source.Feed) string {
	return lo.Ternary(feed.Title != "", feed.Title, unknownTitle)
}
