package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestNewBatchProcessor(t *testing.T) {
	t.Parallel()

	t.Run("creates processor with defaults", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(nil)
		if bp.concurrency != 4 {
			t.Errorf("expected default concurrency 4, got %d", bp.concurrency)
		}
		if bp.logger == nil {
			t.Error("expected non-nil logger")
		}
	})

	t.Run("ignores non-positive concurrency", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(nil, WithConcurrency(0), WithBatchLogger(nil))
		if bp.concurrency != 4 {
			t.Errorf("expected concurrency 4, got %d", bp.concurrency)
		}
		if bp.logger == nil {
			t.Error("expected non-nil logger")
		}
	})
}

func TestBatchProcessorProcessBatch(t *testing.T) {
	t.Parallel()

	t.Run("scans every target in isolation", func(t *testing.T) {
		t.Parallel()

		var created atomic.Int32
		bp := NewBatchProcessor(func(target string) (*Loop, error) {
			created.Add(1)
			engine, _ := newTestEngine(t, target)
			return NewLoop(engine, testSite)
		}, WithConcurrency(2))

		targets := []string{"http://example.com/", "http://example.org/", "http://example.net/"}
		results, err := bp.ProcessBatch(context.Background(), targets)
		if err != nil {
			t.Fatalf("failed to process batch: %v", err)
		}
		if created.Load() != 3 {
			t.Errorf("expected 3 loops, got %d", created.Load())
		}
		if len(results) != len(targets) {
			t.Fatalf("expected %d results, got %d", len(targets), len(results))
		}
		for i, s := range results {
			if s.Seeds != 1 || s.Fetched != 1 {
				t.Errorf("target %d: expected 1 seed and 1 fetched page, got %+v", i, s)
			}
		}
	})

	t.Run("continues after a failing target", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func(target string) (*Loop, error) {
			if target == "bad" {
				return nil, errors.New("setup failed")
			}
			engine, _ := newTestEngine(t, target)
			return NewLoop(engine, testSite)
		})

		results, err := bp.ProcessBatch(context.Background(), []string{"bad", "http://example.com/"})
		if err != nil {
			t.Fatalf("failed to process batch: %v", err)
		}
		if results[0].Fetched != 0 {
			t.Errorf("expected empty summary for failed target, got %+v", results[0])
		}
		if results[1].Fetched != 1 {
			t.Errorf("expected 1 fetched page, got %+v", results[1])
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		bp := NewBatchProcessor(func(target string) (*Loop, error) {
			engine, _ := newTestEngine(t, target)
			return NewLoop(engine, testSite)
		})
		if _, err := bp.ProcessBatch(ctx, []string{"http://example.com/"}); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}
