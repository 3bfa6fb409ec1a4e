// Package runner fans a keyword batch out over a bounded pool of collection
// workers and aggregates their results.
package runner

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lbarthel/tubewatch/internal/collector"
	"github.com/lbarthel/tubewatch/internal/logging"
)

// Collector runs one keyword to completion.
type Collector interface {
	Collect(ctx context.Context, keyword string) collector.Result
}

// EpochResetter clears identity usage between batches.
type EpochResetter interface {
	ClearEpoch()
}

// Report aggregates one batch.
type Report struct {
	Results  []collector.Result
	Accepted int
	Blocked  int
	Failed   int
}

// Runner executes keyword batches.
type Runner struct {
	log     *zap.Logger
	col     Collector
	workers int
	epochs  EpochResetter
}

// New builds a Runner. epochs may be nil when identity rotation is off.
func New(log *zap.Logger, col Collector, workers int, epochs EpochResetter) *Runner {
	if workers <= 0 {
		workers = 1
	}
	return &Runner{log: logging.Named(log, "runner"), col: col, workers: workers, epochs: epochs}
}

// Run collects every keyword, at most `workers` concurrently, and returns
// the batch report. A panicking worker fails its keyword without taking the
// batch down. Results keep the input keyword order.
func (r *Runner) Run(ctx context.Context, keywords []string) Report {
	results := make([]collector.Result, len(keywords))
	sem := make(chan struct{}, r.workers)
	var wg sync.WaitGroup

	for i, kw := range keywords {
		select {
		case <-ctx.Done():
			results[i] = collector.Result{
				Keyword: kw,
				Status:  collector.StatusFailed,
				Err:     ctx.Err(),
			}
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, kw string) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if rec := recover(); rec != nil {
					r.log.Error("collection worker panicked",
						zap.String("keyword", kw),
						zap.Any("panic", rec))
					results[i] = collector.Result{
						Keyword: kw,
						Status:  collector.StatusFailed,
						Err:     fmt.Errorf("worker panic: %v", rec),
					}
				}
			}()
			results[i] = r.col.Collect(ctx, kw)
		}(i, kw)
	}
	wg.Wait()

	if r.epochs != nil {
		r.epochs.ClearEpoch()
	}

	report := Report{Results: results}
	for _, res := range results {
		report.Accepted += res.Accepted
		switch res.Status {
		case collector.StatusBlocked:
			report.Blocked++
		case collector.StatusFailed:
			report.Failed++
		}
	}
	r.log.Info("batch finished",
		zap.Int("keywords", len(keywords)),
		zap.Int("accepted", report.Accepted),
		zap.Int("blocked", report.Blocked),
		zap.Int("failed", report.Failed))
	return report
}
