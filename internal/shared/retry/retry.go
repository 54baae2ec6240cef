// Package retry wraps cenkalti/backoff with the linear delay used for core calls and probes.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Linear waits step, 2*step, 3*step ... between attempts.
type Linear struct {
	Step time.Duration
	n    int
}

func (b *Linear) NextBackOff() time.Duration {
	b.n++
	return b.Step * time.Duration(b.n)
}

func (b *Linear) Reset() { b.n = 0 }

// Do runs fn once plus up to retries more times while it keeps failing.
// A cancelled ctx stops the loop and its error is returned.
func Do[T any](ctx context.Context, retries int, step time.Duration, fn func() (T, error)) (T, error) {
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(&Linear{Step: step}, uint64(retries)), ctx)
	return backoff.RetryWithData(fn, b)
}
