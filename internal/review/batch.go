package review

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zombor/estimate-analyzer/internal/scanning"
	"github.com/zombor/estimate-analyzer/internal/supervisor"
)

// BatchItem is one document submitted to AnalyzeBatch
type BatchItem struct {
	Filename    string
	Data        []byte
	ContentType string
	Source      scanning.DocumentType
}

// BatchOutcome is the result for one BatchItem. Review may be set alongside
// Err when only the final write failed.
type BatchOutcome struct {
	Filename string
	Review   *Review
	Err      error
}

// BatchOptions configures AnalyzeBatch
type BatchOptions struct {
	// Concurrency bounds in-flight analyses. Zero or less means one at a time.
	Concurrency int
	// ClearLog empties the supervisor log once the batch summary is taken
	ClearLog bool
}

// BatchResult collects every outcome in input order
type BatchResult struct {
	Outcomes  []BatchOutcome
	Succeeded int
	Failed    int
	Summary   supervisor.Summary
	Elapsed   time.Duration
}

// AnalyzeBatch uploads and analyzes every item. A failing item does not stop
// the others.
func (s *Service) AnalyzeBatch(ctx context.Context, items []BatchItem, opts BatchOptions) (*BatchResult, error) {
	start := s.timeSource.Now()
	concurrency := max(opts.Concurrency, 1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64
	outcomes := make([]BatchOutcome, len(items))

	for i, item := range items {
		g.Go(func() error {
			review, err := s.Upload(gctx, item.Filename, item.Data, item.ContentType, item.Source)
			outcomes[i] = BatchOutcome{Filename: item.Filename, Review: review, Err: err}
			if err != nil {
				failed.Add(1)
				return nil
			}
			succeeded.Add(1)
			slog.Info("Batch item analyzed",
				"filename", item.Filename,
				"review_id", review.ID,
				"classification", review.Classification.Classification,
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch processing: %w", err)
	}

	result := &BatchResult{
		Outcomes:  outcomes,
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		Summary:   s.supervisor.Summary(),
		Elapsed:   s.timeSource.Now().Sub(start),
	}

	slog.Info("Batch complete",
		"documents", len(items),
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"retries", result.Summary.Retries,
		"elapsed_ms", result.Elapsed.Milliseconds(),
	)

	if opts.ClearLog {
		s.supervisor.Clear()
	}
	return result, nil
}
