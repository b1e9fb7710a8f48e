package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/nao1215/mentionscan/internal/analytics"
	"github.com/nao1215/mentionscan/internal/config"
)

// ErrExhausted is returned when the attempt ceiling is reached while the
// service keeps rate limiting. It wraps the last attempt's error, so
// errors.Is(err, analytics.ErrRateLimited) still holds on the result.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy controls how rate-limited requests are retried.
//
// Design decision: The policy is a value, not a builder. Callers derive
// one from config, tweak fields directly, and pass it by value; there is
// no shared state to guard.
type Policy struct {
	// MaxAttempts is the total number of tries, first attempt included.
	MaxAttempts int

	// Base is the starting backoff; the wait before retry n is
	// Base * 2^(n-1) plus jitter.
	Base time.Duration

	// MaxDelay caps a single wait, jitter included.
	MaxDelay time.Duration

	// Jitter is the exclusive upper bound of the random extra wait added
	// to each backoff so synchronized clients spread out.
	Jitter time.Duration

	// Logger receives a debug line per backoff. Nil disables logging.
	Logger *slog.Logger

	// sleep is replaced in tests to observe waits without serving them.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns the policy the report pipeline runs with.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: config.DefaultMaxAttempts,
		Base:        config.DefaultRetryBase,
		MaxDelay:    config.DefaultRetryMaxDelay,
		Jitter:      config.DefaultRetryJitter,
	}
}

// withDefaults fills unset fields so a zero or partially set Policy
// still behaves sanely.
func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = config.DefaultMaxAttempts
	}
	if p.Base <= 0 {
		p.Base = config.DefaultRetryBase
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = config.DefaultRetryMaxDelay
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.sleep == nil {
		p.sleep = sleepContext
	}
	return p
}

// Do runs fn until it returns anything other than a rate-limit error or
// the attempt ceiling is reached. It returns how many times fn ran
// together with the final error.
//
// Success and every non-rate-limit failure end the loop on the spot;
// only an explicit 429 earns another attempt. On exhaustion the returned
// error wraps both ErrExhausted and the last rate-limit error. The op
// string only labels log lines.
func (p Policy) Do(ctx context.Context, op string, fn func(context.Context) error) (int, error) {
	p = p.withDefaults()

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt, err
		}

		lastErr = fn(ctx)
		if analytics.Classify(lastErr) != analytics.ClassRateLimited {
			return attempt + 1, lastErr
		}

		// Ceiling reached: no point sleeping before giving up.
		if attempt == p.MaxAttempts-1 {
			break
		}

		wait := p.backoff(attempt)
		if hint := analytics.RetryAfterHint(lastErr); hint > wait {
			wait = hint
		}
		if p.Logger != nil {
			p.Logger.Debug("rate limited, backing off",
				"operation", op,
				"attempt", attempt+1,
				"wait", wait.String(),
			)
		}
		if err := p.sleep(ctx, wait); err != nil {
			return attempt + 1, err
		}
	}
	return p.MaxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, p.MaxAttempts, lastErr)
}

// backoff computes the wait after 0-based attempt n: Base * 2^n plus a
// uniform jitter in [0, Jitter), capped at MaxDelay.
func (p Policy) backoff(attempt int) time.Duration {
	wait := p.Base << uint(attempt)
	// The shift overflows once attempt grows past the int64 range; the
	// ceiling keeps attempts tiny, but clamp so a bad config cannot
	// produce a negative wait.
	if wait <= 0 || wait > p.MaxDelay {
		wait = p.MaxDelay
	}
	if p.Jitter > 0 {
		wait += rand.N(p.Jitter)
	}
	if wait > p.MaxDelay {
		wait = p.MaxDelay
	}
	return wait
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
