/*
watcher.go - Book change watcher

PURPOSE:
  The desktop software rewrites the JSON books behind the service's back.
  The watcher polls book modification times and bumps the report cache
  version when any book is added, removed or rewritten, so no stale report
  outlives a change by more than one interval.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - The first check only records a baseline
  - Errors are logged and retried on the next tick

USAGE:
  w := NewChangeWatcher(jsonStore, cache, log)
  w.Start()
  // ... later
  w.Stop()

SEE ALSO:
  - cache.go: ReportCache.Bump
  - store/jsonfile: ModTimes
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ModTimer reports the modification time of every book.
type ModTimer interface {
	ModTimes(ctx context.Context) (map[string]time.Time, error)
}

// ChangeWatcher bumps the cache when books change on disk.
type ChangeWatcher struct {
	Source        ModTimer
	Cache         *ReportCache
	Log           *logrus.Logger
	CheckInterval time.Duration
	Enabled       bool

	seen   map[string]time.Time
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewChangeWatcher creates a watcher with a 5 second interval.
func NewChangeWatcher(src ModTimer, cache *ReportCache, log *logrus.Logger) *ChangeWatcher {
	return &ChangeWatcher{
		Source:        src,
		Cache:         cache,
		Log:           log,
		CheckInterval: 5 * time.Second,
		Enabled:       true,
		stop:          make(chan struct{}),
	}
}

// Start begins polling.
func (cw *ChangeWatcher) Start() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if !cw.Enabled || cw.CheckInterval <= 0 {
		cw.Log.Info("Watcher.Disabled")
		return
	}
	if cw.ticker != nil {
		return
	}

	cw.ticker = time.NewTicker(cw.CheckInterval)
	cw.wg.Add(1)
	go cw.run()

	cw.Log.WithField("interval", cw.CheckInterval.String()).Info("Watcher.Started")
}

// Stop stops polling and waits for an in-flight check.
func (cw *ChangeWatcher) Stop() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.ticker != nil {
		cw.ticker.Stop()
		close(cw.stop)
		cw.wg.Wait()
		cw.ticker = nil
		cw.Log.Info("Watcher.Stopped")
	}
}

func (cw *ChangeWatcher) run() {
	defer cw.wg.Done()

	cw.check()

	for {
		select {
		case <-cw.ticker.C:
			cw.check()
		case <-cw.stop:
			return
		}
	}
}

func (cw *ChangeWatcher) check() {
	ctx, cancel := context.WithTimeout(context.Background(), cw.CheckInterval)
	defer cancel()

	changed, err := cw.Check(ctx)
	if err != nil {
		cw.Log.WithError(err).Warn("Watcher.CheckFailed")
		return
	}
	if len(changed) > 0 {
		cw.Log.WithField("books", changed).Info("Watcher.BooksChanged")
	}
}

// Check compares modification times with the previous check and bumps the
// cache when anything changed. It returns the changed book names.
func (cw *ChangeWatcher) Check(ctx context.Context) ([]string, error) {
	current, err := cw.Source.ModTimes(ctx)
	if err != nil {
		return nil, err
	}

	if cw.seen == nil {
		cw.seen = current
		return nil, nil
	}

	var changed []string
	for book, mod := range current {
		if prev, ok := cw.seen[book]; !ok || !prev.Equal(mod) {
			changed = append(changed, book)
		}
	}
	for book := range cw.seen {
		if _, ok := current[book]; !ok {
			changed = append(changed, book)
		}
	}
	cw.seen = current

	if len(changed) == 0 {
		return nil, nil
	}
	if err := cw.Cache.Bump(ctx); err != nil {
		return changed, err
	}
	return changed, nil
}
