package source

import (
	"context"
	"iter"

	"github.com/0x0BSoD/turfoo/internal/resource"
)

var (
	_ resource.Fetchable[[]string, string] = (*LinkScraper)(nil)
	_ resource.Readable                    = (*LinkScraper)(nil)
)

// LinkScraper downloads linked pages one at a time, in input order.
type LinkScraper struct {
	http getter
}

func NewLinkScraper(opts Options) *LinkScraper {
	return &LinkScraper{http: newGetter(opts)}
}

// Fetch yields the text of every page in the order of urls. The first failing
// URL is yielded as a *LinkScrapeError and ends the sequence: later URLs are
// never requested. Cancellation is checked before each request.
func (s *LinkScraper) Fetch(ctx context.Context, urls []string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, url := range urls {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}

			page, err := s.Get(ctx, url)
			if err != nil {
				yield("", err)
				return
			}

			if !yield(string(page), nil) {
				return
			}
		}
	}
}

// Get downloads a single page.
func (s *LinkScraper) Get(ctx context.Context, url string) ([]byte, error) {
	page, err := s.http.get(ctx, url)
	if err != nil {
		return nil, &LinkScrapeError{URL: url, Err: err}
	}
	return page, nil
}
