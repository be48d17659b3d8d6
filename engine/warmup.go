package engine

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
)

// warmer issues at most one connection-priming hint per origin for the
// lifetime of the engine. Priming is best-effort: errors are logged at debug
// level and otherwise ignored.
type warmer struct {
	pre    Preconnector
	logger *slog.Logger

	mu      sync.Mutex
	visited map[string]struct{}
	wg      sync.WaitGroup
}

func newWarmer(pre Preconnector, logger *slog.Logger) *warmer {
	return &warmer{pre: pre, logger: logger, visited: make(map[string]struct{})}
}

// warm primes every origin referenced by locators that has not been primed
// before. Each hint runs on its own goroutine.
func (w *warmer) warm(ctx context.Context, locators []string) {
	if w.pre == nil {
		return
	}
	var fresh []string
	w.mu.Lock()
	for _, l := range locators {
		o, ok := originOf(l)
		if !ok {
			continue
		}
		if _, seen := w.visited[o]; seen {
			continue
		}
		w.visited[o] = struct{}{}
		fresh = append(fresh, o)
	}
	w.wg.Add(len(fresh))
	w.mu.Unlock()

	for _, o := range fresh {
		go func(origin string) {
			defer w.wg.Done()
			if err := w.pre.Preconnect(ctx, origin); err != nil {
				w.logger.Debug("preconnect failed", "origin", origin, "error", err)
			}
		}(o)
	}
}

// wait blocks until every issued hint has returned.
func (w *warmer) wait() { w.wg.Wait() }

// primed reports whether origin has been hinted.
func (w *warmer) primed(origin string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.visited[origin]
	return ok
}

// originOf extracts "scheme://host[:port]" from an absolute locator.
func originOf(locator string) (string, bool) {
	u, err := url.Parse(locator)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), true
}
