package poll

import (
	"context"
	"errors"
	"time"
)

var ErrExhausted = errors.New("poll attempts exhausted")

type Verdict int

const (
	Continue Verdict = iota
	Done
	Fail
)

type Options struct {
	Interval    time.Duration
	MaxAttempts int
}

var (
	DepositConfirmation = Options{Interval: 2 * time.Second, MaxAttempts: 30}
	RelayStatus         = Options{Interval: 5 * time.Second, MaxAttempts: 120}
)

// Until calls fetch every Interval until classify returns Done or Fail, or
// MaxAttempts fetches have been made. A fetch error uses up an attempt.
// On Fail the value and classify's error are returned. On exhaustion the
// last value is returned with an error wrapping ErrExhausted and the last
// fetch error, if any.
func Until[T any](
	ctx context.Context,
	opts Options,
	fetch func(ctx context.Context) (T, error),
	classify func(T) (Verdict, error),
) (T, error) {
	var (
		last    T
		lastErr error
	)
	if opts.MaxAttempts <= 0 {
		return last, ErrExhausted
	}

	timer := time.NewTimer(opts.Interval)
	defer timer.Stop()

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-timer.C:
		}

		v, err := fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			lastErr = err
		} else {
			last, lastErr = v, nil
			verdict, cerr := classify(v)
			switch verdict {
			case Done:
				return v, nil
			case Fail:
				if cerr == nil {
					cerr = errors.New("poll: terminal failure")
				}
				return v, cerr
			}
		}
		timer.Reset(opts.Interval)
	}

	if lastErr != nil {
		return last, errors.Join(ErrExhausted, lastErr)
	}
	return last, ErrExhausted
}
