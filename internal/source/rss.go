// Package source retrieves remote feeds and pages. RSSFeed turns a feed type
// into normalized model.FeedEntry values, LinkScraper returns raw page text.
package source

import (
	"context"
	"iter"
	"strings"

	"github.com/SlyMarbo/rss"
	"github.com/samber/lo"

	"github.com/0x0BSoD/turfoo/internal/model"
	"github.com/0x0BSoD/turfoo/internal/resource"
)

var _ resource.Fetchable[model.FeedType, model.FeedEntry] = (*RSSFeed)(nil)

type RSSFeed struct {
	endpoints model.Endpoints
	http      getter
}

func NewRSSFeed(endpoints model.Endpoints, opts Options) *RSSFeed {
	return &RSSFeed{
		endpoints: endpoints,
		http:      newGetter(opts),
	}
}

// Feed is a parsed, validated feed document. It always holds at least one item.
type Feed struct {
	Type     model.FeedType
	URL      string
	Title    string
	Language string
	Raw      []byte

	items []rawItem
}

func (f *Feed) Len() int {
	return len(f.items)
}

// Entries maps the raw items to entries lazily, in document order.
func (f *Feed) Entries() iter.Seq[model.FeedEntry] {
	return func(yield func(model.FeedEntry) bool) {
		for _, item := range f.items {
			if !yield(f.entry(item)) {
				return
			}
		}
	}
}

// Fetch retrieves, validates and yields the entries of the feed. A failure is
// yielded once, before any entry.
func (s *RSSFeed) Fetch(ctx context.Context, ft model.FeedType) iter.Seq2[model.FeedEntry, error] {
	return func(yield func(model.FeedEntry, error) bool) {
		feed, err := s.Load(ctx, ft)
		if err != nil {
			yield(model.FeedEntry{}, err)
			return
		}

		for entry := range feed.Entries() {
			if !yield(entry, nil) {
				return
			}
		}
	}
}

func (s *RSSFeed) Load(ctx context.Context, ft model.FeedType) (*Feed, error) {
	raw, err := s.Retrieve(ctx, ft)
	if err != nil {
		return nil, err
	}
	return s.Parse(ft, raw)
}

// Retrieve downloads the feed document without parsing it.
func (s *RSSFeed) Retrieve(ctx context.Context, ft model.FeedType) ([]byte, error) {
	url, err := s.endpoints.URL(ft)
	if err != nil {
		return nil, err
	}

	raw, err := s.http.get(ctx, url)
	if err != nil {
		return nil, &FeedTransportError{Feed: ft, URL: url, Err: err}
	}
	return raw, nil
}

// Parse validates a raw document of the given feed type. It returns a
// *FeedParseError for documents the parser rejects and a *FeedEmptyError for
// documents without entries.
func (s *RSSFeed) Parse(ft model.FeedType, raw []byte) (*Feed, error) {
	url, err := s.endpoints.URL(ft)
	if err != nil {
		return nil, err
	}

	parsed, err := rss.Parse(raw)
	if err != nil {
		return nil, &FeedParseError{Feed: ft, Err: err}
	}

	items, err := decodeItems(raw)
	if err != nil {
		return nil, &FeedParseError{Feed: ft, Err: err}
	}
	if len(items) == 0 {
		return nil, &FeedEmptyError{Feed: ft}
	}

	return &Feed{
		Type:     ft,
		URL:      url,
		Title:    strings.TrimSpace(parsed.Title),
		Language: parsed.Language,
		Raw:      raw,
		items:    items,
	}, nil
}

func (f *Feed) entry(item rawItem) model.FeedEntry {
	summary := itemText(item)

	links := []model.Link{}
	if item.Link != "" {
		links = append(links, model.Link{Rel: "alternate", Type: "text/html", Href: item.Link})
	}
	links = append(links, lo.Map(item.Enclosures, func(enc rawEnclosure, _ int) model.Link {
		return model.Link{Rel: "enclosure", Type: enc.Type, Href: enc.URL}
	})...)

	return model.FeedEntry{
		Title:           item.Title,
		TitleDetail:     f.detail(item.Title),
		Links:           links,
		Link:            item.Link,
		Published:       item.Published,
		PublishedParsed: parseDate(item.Published).UTC(),
		ID:              item.ID,
		GUIDIsLink:      item.ID != "" && item.ID == item.Link,
		Summary:         summary,
		SummaryDetail:   f.detail(summary),
	}
}

func (f *Feed) detail(value string) model.Detail {
	contentType := "text/plain"
	if strings.Contains(value, "<") && strings.Contains(value, ">") {
		contentType = "text/html"
	}
	return model.Detail{
		Type:     contentType,
		Language: f.Language,
		Base:     f.URL,
		Value:    value,
	}
}

// itemText returns the short description of an item, falling back to the
// full content for feeds that only publish a body.
func itemText(item rawItem) string {
	return lo.CoalesceOrEmpty(item.Summary, item.Content)
}
