package pipeline

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/nao1215/excavate/internal/excavate"
	"github.com/nao1215/excavate/internal/model"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of fetch workers of a Loop.
const DefaultConcurrency = 10

// Fetcher retrieves the page of a URL event.
//
// Implementations return an error only for transport failures; HTTP error
// statuses are valid transactions.
type Fetcher interface {
	Fetch(ctx context.Context, target *model.Event) (*model.Transaction, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, target *model.Event) (*model.Transaction, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, target *model.Event) (*model.Transaction, error) {
	return f(ctx, target)
}

// Summary describes a finished scan.
type Summary struct {
	// Seeds is the number of seeds that were registered.
	Seeds int `json:"seeds"`

	// Fetched is the number of pages fetched and processed.
	Fetched int `json:"fetched"`

	// Failed is the number of pages that could not be fetched or processed.
	Failed int `json:"failed"`

	// Promoted is the number of discovered URLs queued for fetching.
	Promoted int `json:"promoted"`

	// Elapsed is the wall time of the scan.
	Elapsed time.Duration `json:"elapsed"`
}

// Loop is the fetch-and-extract cycle of one scan.
type Loop struct {
	engine      *excavate.Engine
	fetcher     Fetcher
	concurrency int
	maxPages    int
	logger      *slog.Logger
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLoopConcurrency sets the number of fetch workers.
func WithLoopConcurrency(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// WithMaxPages stops dispatching after n pages. Zero means no limit.
func WithMaxPages(n int) LoopOption {
	return func(l *Loop) {
		if n >= 0 {
			l.maxPages = n
		}
	}
}

// WithLoopLogger sets the logger.
func WithLoopLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoop creates a Loop that fetches with fetcher and extracts with engine.
func NewLoop(engine *excavate.Engine, fetcher Fetcher, opts ...LoopOption) (*Loop, error) {
	if engine == nil {
		return nil, ErrNilEngine
	}
	if fetcher == nil {
		return nil, ErrNilFetcher
	}
	l := &Loop{
		engine:      engine,
		fetcher:     fetcher,
		concurrency: DefaultConcurrency,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// outcome is the result of visiting one URL.
type outcome struct {
	promoted []*model.Event
	fetched  bool
	failed   bool
}

// Run seeds the engine and spiders until the queue is empty, the page limit
// is reached or ctx is canceled.
//
// Invalid or duplicate seeds are logged and skipped. On cancellation the
// tracker is stopped, queued URLs are dropped and Run waits for in-flight
// pages before returning ctx.Err() together with the partial summary.
func (l *Loop) Run(ctx context.Context, seeds []string) (Summary, error) {
	start := time.Now()
	var summary Summary

	var pending []*model.Event
	for _, seed := range seeds {
		d, err := l.engine.Seed(ctx, seed)
		if err != nil {
			l.logger.Warn("skipping seed", "seed", seed, "error", err)
			continue
		}
		summary.Seeds++
		pending = append(pending, d.Event)
	}
	if len(pending) == 0 {
		return summary, ErrNoSeeds
	}

	l.logger.Info("starting scan",
		"seeds", summary.Seeds,
		"concurrency", l.concurrency,
		"max_pages", l.maxPages,
	)

	work := make(chan *model.Event)
	results := make(chan outcome)

	var g errgroup.Group
	for range l.concurrency {
		g.Go(func() error {
			for target := range work {
				results <- l.visit(ctx, target)
			}
			return nil
		})
	}

	inFlight, dispatched := 0, 0
	canceled := false
	// done is nil for contexts that cannot be canceled, and set to nil after
	// cancellation so the select stops firing on it.
	done := ctx.Done()
	for len(pending) > 0 || inFlight > 0 {
		var (
			next *model.Event
			send chan<- *model.Event
		)
		if len(pending) > 0 && (l.maxPages == 0 || dispatched < l.maxPages) {
			next, send = pending[0], work
		} else if inFlight == 0 {
			l.logger.Info("page limit reached", "max_pages", l.maxPages, "dropped", len(pending))
			break
		}

		select {
		case send <- next:
			pending = pending[1:]
			inFlight++
			dispatched++
		case o := <-results:
			inFlight--
			if o.fetched {
				summary.Fetched++
			}
			if o.failed {
				summary.Failed++
			}
			if !canceled {
				summary.Promoted += len(o.promoted)
				pending = append(pending, o.promoted...)
			}
		case <-done:
			l.logger.Warn("scan canceled", "in_flight", inFlight, "dropped", len(pending))
			l.engine.Tracker().Stop()
			pending = nil
			canceled = true
			done = nil
		}
	}
	close(work)
	_ = g.Wait() //nolint:errcheck // workers never fail
	if ctx.Err() != nil {
		l.engine.Tracker().Stop()
	}

	summary.Elapsed = time.Since(start)
	l.logger.Info("scan complete",
		"fetched", summary.Fetched,
		"failed", summary.Failed,
		"promoted", summary.Promoted,
		"elapsed", summary.Elapsed,
	)
	return summary, ctx.Err()
}

// visit fetches one URL and runs the engine over the transaction.
func (l *Loop) visit(ctx context.Context, target *model.Event) outcome {
	tx, err := l.fetcher.Fetch(ctx, target)
	if err != nil {
		if ctx.Err() == nil {
			l.logger.Warn("fetch failed", "url", target.String(), "error", err)
		}
		return outcome{failed: true}
	}

	res, err := l.engine.Process(ctx, tx)
	if err != nil {
		if ctx.Err() == nil {
			l.logger.Warn("extraction failed", "url", tx.URL, "error", err)
		}
		return outcome{fetched: true, failed: true, promoted: res.Promoted}
	}

	l.logger.Debug("page processed",
		"url", tx.URL,
		"status", tx.StatusCode,
		"events", res.Emitted,
		"promoted", len(res.Promoted),
	)
	return outcome{fetched: true, promoted: res.Promoted}
}
