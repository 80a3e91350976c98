package scholar

import (
	"context"
	"math/rand"
	"time"
)

const (
	defaultRetries     = 5
	defaultBackoffBase = 600 * time.Millisecond
	defaultJitter      = 200 * time.Millisecond
)

// Retrier wraps a PapersSource with exponential backoff: the delay before
// retry n is base*2^(n-1) plus a uniform jitter draw. The sleeper and the
// jitter source are injectable so tests can verify the schedule without
// waiting it out.
type Retrier struct {
	source  PapersSource
	retries int
	base    time.Duration
	jitter  time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	random  func() float64
}

var _ PapersSource = (*Retrier)(nil)

// NewRetrier wraps source with the default backoff budget.
func NewRetrier(source PapersSource) *Retrier {
	return &Retrier{
		source:  source,
		retries: defaultRetries,
		base:    defaultBackoffBase,
		jitter:  defaultJitter,
		sleep:   sleepContext,
		random:  rand.Float64,
	}
}

// PapersFor delegates to the wrapped source, retrying until the budget is
// spent. The last error comes back unwrapped so callers can still branch on
// the sentinel.
func (r *Retrier) PapersFor(ctx context.Context, name, affiliation string) ([]Paper, error) {
	var lastErr error

	for attempt := 1; ; attempt++ {
		papers, err := r.source.PapersFor(ctx, name, affiliation)
		if err == nil {
			return papers, nil
		}

		lastErr = err

		if attempt > r.retries {
			return nil, lastErr
		}

		delay := r.base*time.Duration(1<<uint(attempt-1)) + time.Duration(r.random()*float64(r.jitter))

		if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
			return nil, lastErr
		}
	}
}
