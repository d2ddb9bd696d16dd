package loader

import (
	"context"
	"runtime"
)

// Scheduler marks the suspension point between chunks of work. The pipeline
// never processes more than one chunk between Yield calls, so the host stays
// responsive no matter how large the dataset is.
type Scheduler interface {
	Yield(ctx context.Context) error
}

// TickScheduler hands the processor back to the Go scheduler on every yield.
type TickScheduler struct{}

func (TickScheduler) Yield(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	runtime.Gosched()
	return nil
}
