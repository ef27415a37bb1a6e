package analysis

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultBatchSize is used when a runner is created with a non-positive size
const DefaultBatchSize = 50

// ItemFunc processes the i-th item of a run. A returned error counts the item as
// failed; the run continues.
type ItemFunc func(ctx context.Context, i int) error

// BatchRunner processes items in batches, reporting progress after every batch
type BatchRunner struct {
	Name       string
	BatchSize  int
	OnProgress ProgressFunc

	log *zap.Logger
	now func() time.Time
}

// NewBatchRunner creates a new batch runner
func NewBatchRunner(name string, batchSize int, log *zap.Logger) *BatchRunner {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BatchRunner{
		Name:      name,
		BatchSize: batchSize,
		log:       log.With(zap.String("runner", name)),
		now:       time.Now,
	}
}

// Run calls process for items 0..total-1. Cancellation is checked between items, so
// an item that has started always completes. On cancellation the progress so far is
// returned together with ctx.Err().
func (r *BatchRunner) Run(ctx context.Context, total int, process ItemFunc) (Progress, error) {
	start := r.now()
	processed, failed := 0, 0

	if total == 0 {
		p := newProgress(0, 0, 0, 0)
		r.report(p)
		return p, nil
	}

	for offset := 0; offset < total; offset += r.BatchSize {
		end := offset + r.BatchSize
		if end > total {
			end = total
		}

		for i := offset; i < end; i++ {
			select {
			case <-ctx.Done():
				p := newProgress(processed, total, failed, r.now().Sub(start))
				p.Message = "cancelled"
				r.report(p)
				r.log.Info("batch run cancelled", zap.Int("processed", processed), zap.Int("total", total))
				return p, ctx.Err()
			default:
			}

			if err := process(ctx, i); err != nil {
				failed++
				r.log.Warn("item failed", zap.Int("index", i), zap.Error(err))
			}
			processed++
		}

		r.report(newProgress(processed, total, failed, r.now().Sub(start)))
	}

	p := newProgress(processed, total, failed, r.now().Sub(start))
	r.log.Info("batch run completed",
		zap.Int("processed", processed),
		zap.Int("failed", failed),
		zap.Duration("elapsed", r.now().Sub(start)))
	return p, nil
}

func (r *BatchRunner) report(p Progress) {
	if r.OnProgress != nil {
		r.OnProgress(p)
	}
}
