package fetch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/bizdir-scraper/pkg/config"
	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
)

// RetryPolicy bounds the attempts made for one unit of work
type RetryPolicy struct {
	MaxAttempts int           // Total attempts including the first; values < 1 mean 1
	MinDelay    time.Duration // Lower bound of the wait between attempts
	MaxDelay    time.Duration // Upper bound of the wait between attempts
}

// PolicyFromConfig builds the per-URL retry policy shared by discovery and harvesting
func PolicyFromConfig(cfg *config.AppConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		MinDelay:    cfg.RetryMinDelay,
		MaxDelay:    cfg.RetryMaxDelay,
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Jittered returns a delay drawn uniformly from [MinDelay, MaxDelay]
func (p RetryPolicy) Jittered() time.Duration {
	lo, hi := p.MinDelay, p.MaxDelay
	if lo < 0 {
		lo = 0
	}
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)+1))
}

// exponential returns MinDelay*2^(retry-1) capped at MaxDelay, with +/-10% jitter
func (p RetryPolicy) exponential(retry int) time.Duration {
	delay := time.Duration(float64(p.MinDelay) * math.Pow(2, float64(retry-1)))
	if delay <= 0 || delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if spread := int64(delay) / 5; spread > 0 {
		delay += time.Duration(rand.Int63n(spread)) - delay/10
	}
	if delay < 0 {
		return 0
	}
	return delay
}

// IsPermanent reports errors that another attempt cannot fix
func IsPermanent(err error) bool {
	return errors.Is(err, utils.ErrEmptyResult) ||
		errors.Is(err, utils.ErrRobotsDisallowed) ||
		errors.Is(err, utils.ErrContextTeardown) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Retry runs op until it succeeds, returns a permanent error, or the policy's attempts are used up.
// Waits between attempts are uniform in [MinDelay, MaxDelay] and abort on ctx cancellation.
// Exhaustion returns ErrRetryFailed wrapping the last error.
func Retry(ctx context.Context, policy RetryPolicy, log *logrus.Entry, op func(ctx context.Context, attempt int) error) error {
	maxAttempts := policy.attempts()
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			wait := policy.Jittered()
			log.WithFields(logrus.Fields{"attempt": attempt, "max_attempts": maxAttempts, "delay": wait}).
				Warnf("Retrying after error: %v", lastErr)
			if err := sleepCtx(ctx, wait); err != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
		}

		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return err
		}

		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) {
			return lastErr
		}
	}

	log.WithField("error_type", utils.CategorizeError(lastErr)).Errorf("All %d attempts failed: %v", maxAttempts, lastErr)
	return fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
}

// sleepCtx waits for d or until ctx is done, whichever comes first
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
