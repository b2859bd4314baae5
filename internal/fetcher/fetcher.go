package fetcher

import (
	"context"
	"log"
	"sync"

	"github.com/0x0BSoD/turfoo/internal/ingest"
	"github.com/0x0BSoD/turfoo/internal/model"
	"github.com/0x0BSoD/turfoo/internal/scheduler"
)

type Submitter interface {
	Submit(ctx context.Context, task string, payload map[string]string) (<-chan scheduler.Result, error)
}

// Fetcher fans out one fetch job per feed type and waits for all of them.
// The worker runs it once at startup, before the cron schedules take over.
type Fetcher struct {
	pool  Submitter
	feeds []model.FeedType
}

func New(pool Submitter, feeds ...model.FeedType) *Fetcher {
	if len(feeds) == 0 {
		feeds = model.FeedTypes()
	}
	return &Fetcher{pool: pool, feeds: feeds}
}

// Fetch returns the final results in feed order. Submission errors are
// logged and reported as FAILED results.
func (f *Fetcher) Fetch(ctx context.Context) []scheduler.Result {
	var (
		wg      sync.WaitGroup
		results = make([]scheduler.Result, len(f.feeds))
	)

	for i, ft := range f.feeds {
		wg.Add(1)

		go func(i int, task string) {
			defer wg.Done()

			results[i] = f.run(ctx, task)
			if results[i].State != scheduler.StateSucceeded {
				log.Printf("[ERROR] %s finished %s: %s", task, results[i].State, results[i].ErrorText())
				return
			}
			log.Printf("[INFO] %s: %d entries from %q", task, results[i].Summary.Entries, results[i].Summary.Title)
		}(i, ingest.FetchTask(ft))
	}
	wg.Wait()

	return results
}

func (f *Fetcher) run(ctx context.Context, task string) scheduler.Result {
	done, err := f.pool.Submit(ctx, task, nil)
	if err != nil {
		return scheduler.Result{Task: task, State: scheduler.StateFailed, Err: err}
	}

	select {
	case res, ok := <-done:
		if !ok {
			return scheduler.Result{Task: task, State: scheduler.StateFailed, Err: scheduler.ErrPoolStopped}
		}
		return res
	case <-ctx.Done():
		return scheduler.Result{Task: task, State: scheduler.StateFailed, Err: ctx.Err()}
	}
}
