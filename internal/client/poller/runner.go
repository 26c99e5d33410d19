// Package poller schedules the background work: the followed and pinned
// resource polls and the auth health probe. Each poller is re-entrancy
// guarded and batches its upstream calls, so one slow item cannot serialize
// a run and a stuck run cannot pile up behind itself.
package poller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pulldeck/pulldeck/internal/client/models"
	"github.com/pulldeck/pulldeck/internal/logging"
)

// DefaultBatchSize bounds concurrent upstream calls per run.
const DefaultBatchSize = 5

// Result summarizes one run. An overlapped invocation returns the zero
// Result with Skipped set.
type Result struct {
	Processed int
	Errors    []error
	Skipped   bool
}

// Source yields the items one run processes.
type Source interface {
	Items(ctx context.Context) ([]models.FollowedResource, error)
	ProcessPoll(ctx context.Context, res models.FollowedResource) error
}

// Runner drives one Source on a fixed interval. Stop only prevents future
// ticks; an in-flight run completes.
type Runner struct {
	name      string
	source    Source
	log       logging.Logger
	interval  time.Duration
	batchSize int

	inFlight atomic.Bool

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

func NewRunner(name string, source Source, log logging.Logger, interval time.Duration, batchSize int) *Runner {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Runner{
		name:      name,
		source:    source,
		log:       log,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Start launches the tick loop. No-op when already running.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	stopCh := r.stopCh
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.Run(ctx)
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop prevents future ticks. Idempotent.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.running = false
	close(r.stopCh)
}

// Run executes one poll cycle. A call overlapping an in-flight run no-ops
// and reports Skipped rather than queueing.
func (r *Runner) Run(ctx context.Context) Result {
	if !r.inFlight.CompareAndSwap(false, true) {
		r.log.Debug(ctx, "poll already in progress, skipping", "poller", r.name)
		return Result{Skipped: true}
	}
	defer r.inFlight.Store(false)

	items, err := r.source.Items(ctx)
	if err != nil {
		r.log.Error(ctx, "failed to list poll items", "poller", r.name, "error", err)
		return Result{Errors: []error{err}}
	}

	var res Result
	for start := 0; start < len(items); start += r.batchSize {
		end := start + r.batchSize
		if end > len(items) {
			end = len(items)
		}
		res.merge(r.processBatch(ctx, items[start:end]))
	}

	if len(res.Errors) > 0 {
		r.log.Warn(ctx, "poll finished with errors", "poller", r.name,
			"processed", res.Processed, "errors", len(res.Errors))
	} else {
		r.log.Debug(ctx, "poll finished", "poller", r.name, "processed", res.Processed)
	}
	return res
}

// processBatch runs one fixed-size batch, wait-all-then-next. A failing item
// is recorded and never aborts its siblings.
func (r *Runner) processBatch(ctx context.Context, batch []models.FollowedResource) Result {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		res  Result
	)
	for _, item := range batch {
		wg.Add(1)
		go func(item models.FollowedResource) {
			defer wg.Done()
			err := r.source.ProcessPoll(ctx, item)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("%s: %w", item.ID, err))
				return
			}
			res.Processed++
		}(item)
	}
	wg.Wait()
	return res
}

func (r *Result) merge(o Result) {
	r.Processed += o.Processed
	r.Errors = append(r.Errors, o.Errors...)
}
