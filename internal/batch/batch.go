// File: internal/batch/batch.go
package batch

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"
)

// Run processes n items in contiguous fixed-size batches. All items of a
// batch run concurrently; batch k+1 does not start until every task in
// batch k has settled. A non-zero pause is inserted between batches, which
// the health monitor uses to avoid bursting the target services.
//
// fn must contain its own error handling; Run never aborts a batch because
// a sibling failed. Run returns early only when ctx is canceled.
func Run(ctx context.Context, n, size int, pause time.Duration, fn func(ctx context.Context, i int)) error {
	if size < 1 {
		size = 1
	}

	for start := 0; start < n; start += size {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := start + size
		if end > n {
			end = n
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				fn(gctx, i)
				return nil
			})
		}
		// Workers never return errors, so this only waits for settlement.
		_ = g.Wait()

		if pause > 0 && end < n {
			if err := Sleep(ctx, pause); err != nil {
				return err
			}
		}
	}
	return nil
}

// NumBatches returns how many batches Run will process for n items.
func NumBatches(n, size int) int {
	if size < 1 {
		size = 1
	}
	return (n + size - 1) / size
}

// Sleep waits for d or until ctx is canceled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Jitter sleeps for a random duration in [min, max]. Randomized pauses keep
// the automated interaction pattern from looking mechanical and spread out
// retries.
func Jitter(ctx context.Context, min, max time.Duration) error {
	if max < min {
		max = min
	}
	d := min
	if span := max - min; span > 0 {
		d += time.Duration(rand.Int63n(int64(span) + 1))
	}
	return Sleep(ctx, d)
}
