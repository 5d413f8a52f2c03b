package database

import (
	"context"
	"time"
)

// retry runs fn once plus up to extra more times, doubling the wait between
// attempts. It stops early when ctx is done and returns the last error.
func retry(ctx context.Context, extra int, wait time.Duration, fn func(context.Context) error) error {
	err := fn(ctx)
	for attempt := 0; err != nil && attempt < extra; attempt++ {
		select {
		case <-ctx.Done():
			return err
		case <-time.After(wait):
		}
		wait *= 2
		err = fn(ctx)
	}
	return err
}
