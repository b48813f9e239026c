package pipeline

import (
	"context"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// BatchProcessor scans several targets concurrently, each in its own Loop.
// It uses errgroup to manage goroutines and respect concurrency limits.
//
// Design decision: We use a separate BatchProcessor rather than seeding one
// Loop with every target because:
// 1. Each target gets its own spider tracker, so scope and dedup state never leak
// 2. A failing target does not stop the others
type BatchProcessor struct {
	// loopFactory creates a fresh loop for each target.
	loopFactory func(target string) (*Loop, error)

	// concurrency is the maximum number of concurrent scans.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithConcurrency sets the maximum number of concurrent scans.
// Default is 4 if not specified.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
//
// The loopFactory function is called once per target. It must return a loop
// over a new engine and tracker scoped to that target.
func NewBatchProcessor(loopFactory func(target string) (*Loop, error), opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		loopFactory: loopFactory,
		concurrency: 4,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(bp)
	}
	return bp
}

// ProcessBatch scans every target and returns one summary per target, in
// the order of targets. A target that fails leaves a partial or zero summary
// and is logged; only cancellation of ctx is returned as an error.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, targets []string) ([]Summary, error) {
	bp.logger.Info("starting batch processing",
		"total_targets", len(targets),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	// Each goroutine writes only its own index.
	results := make([]Summary, len(targets))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, target := range targets {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Info("scanning target",
				"target", target,
				"index", i+1,
				"total", len(targets),
			)

			loop, err := bp.loopFactory(target)
			if err != nil {
				bp.logger.Warn("failed to set up scan", "target", target, "error", err)
				return nil
			}

			summary, err := loop.Run(ctx, []string{target})
			results[i] = summary
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				bp.logger.Warn("scan failed", "target", target, "error", err)
				return nil
			}

			bp.logger.Info("scan completed",
				"target", target,
				"fetched", summary.Fetched,
			)
			return nil
		})
	}

	err := g.Wait()

	bp.logger.Info("batch processing complete",
		"total_targets", len(targets),
		"elapsed", time.Since(startTime),
	)
	return results, err
}
