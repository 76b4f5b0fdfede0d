package timekeeping

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrPollTimeout is returned by Poll when the budget runs out before the probe succeeds.
var ErrPollTimeout = errors.New("poll budget exhausted")

var errNotYet = errors.New("condition not met")

// PollConfig bounds a constant-interval polling loop.
type PollConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Poll calls probe immediately and then every Interval until it reports done,
// returns an error, the Timeout elapses, or ctx is cancelled.
// A probe error aborts polling and is returned as-is.
func Poll(ctx context.Context, cfg PollConfig, probe func(ctx context.Context) (bool, error)) error {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}
	pctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	_, err := backoff.Retry(pctx, func() (struct{}, error) {
		done, err := probe(pctx)
		if err != nil {
			if pctx.Err() != nil {
				return struct{}{}, errNotYet
			}
			return struct{}{}, backoff.Permanent(err)
		}
		if !done {
			return struct{}{}, errNotYet
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(cfg.Interval)),
		backoff.WithMaxElapsedTime(cfg.Timeout),
	)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, errNotYet), errors.Is(err, context.DeadlineExceeded):
		return ErrPollTimeout
	default:
		return err
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
