// Package aggregate runs per chunk tasks on a bounded worker pool and
// reduces their tallies into one.
package aggregate

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

// Task computes the tally of a single work item.
type Task[T any] func(ctx context.Context, item T) (Tally, error)

type Harness struct {
	workers  int
	progress time.Duration
	logger   *log.Logger
}

// New returns a Harness running at most workers tasks at a time. Zero
// workers means one per CPU. A positive progress interval logs the number
// of finished tasks periodically.
func New(workers int, progress time.Duration, logger *log.Logger) *Harness {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Harness{
		workers:  workers,
		progress: progress,
		logger:   logger,
	}
}

func (h *Harness) Workers() int {
	return h.workers
}

// Run executes task for every item and merges the results as they
// complete. The first failing task cancels the remaining ones and its
// error is returned; no partial result is returned in that case.
func Run[T any](ctx context.Context, h *Harness, items []T, task Task[T]) (Tally, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.workers)

	results := make(chan Tally)
	errc := make(chan error, 1)

	go func() {
		for _, item := range items {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				t, err := task(gctx, item)
				if err != nil {
					return fmt.Errorf("task %v failed: %w", item, err)
				}
				select {
				case results <- t:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}
		errc <- g.Wait()
		close(results)
	}()

	h.logger.Info("submitted tasks", "tasks", len(items), "workers", h.workers)

	var tick <-chan time.Time
	if h.progress > 0 {
		ticker := time.NewTicker(h.progress)
		defer ticker.Stop()
		tick = ticker.C
	}

	start := time.Now()
	total := NewTally()
	done := 0
	for open := true; open; {
		select {
		case t, ok := <-results:
			if !ok {
				open = false
				continue
			}
			total.Merge(t)
			done++
			h.logger.Debug("task finished", "done", done, "tasks", len(items))
		case <-tick:
			h.logger.Info("progress", "done", done, "tasks", len(items), "elapsed", time.Since(start).Round(time.Second))
		}
	}

	if err := <-errc; err != nil {
		return nil, err
	}
	h.logger.Info("all tasks finished", "tasks", len(items), "duration", time.Since(start).Round(time.Millisecond))
	return total, nil
}
