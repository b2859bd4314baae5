package resource

import (
	"context"
	"sort"
	"sync"
)

// Health is the outcome of polling a set of named resources.
type Health struct {
	OK        bool            `json:"ok"`
	Resources map[string]bool `json:"resources"`
}

// Unhealthy returns the names of the failing resources in lexical order.
func (h Health) Unhealthy() []string {
	var out []string
	for name, ok := range h.Resources {
		if !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// CheckHealth polls every checker concurrently and reports the aggregate.
// A nil checker counts as unhealthy.
func CheckHealth(ctx context.Context, checkers map[string]HealthCheckable) Health {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		health = Health{OK: true, Resources: make(map[string]bool, len(checkers))}
	)

	for name, checker := range checkers {
		wg.Add(1)
		go func(name string, checker HealthCheckable) {
			defer wg.Done()

			ok := checker != nil && checker.Healthy(ctx)

			mu.Lock()
			defer mu.Unlock()
			health.Resources[name] = ok
			if !ok {
				health.OK = false
			}
		}(name, checker)
	}
	wg.Wait()

	return health
}
