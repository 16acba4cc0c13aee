package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
)

// Fetcher performs plain HTTP requests with retry on transient failures (network errors, 5xx, 429)
type Fetcher struct {
	client *http.Client
	policy RetryPolicy
	log    *logrus.Entry
}

// NewFetcher creates a Fetcher; waits between attempts back off exponentially from policy.MinDelay
func NewFetcher(client *http.Client, policy RetryPolicy, log *logrus.Entry) *Fetcher {
	return &Fetcher{
		client: client,
		policy: policy,
		log:    log,
	}
}

// FetchWithRetry sends req under ctx, retrying per the fetcher's policy.
// On success the caller owns resp.Body. Non-retryable 4xx and other statuses return
// both the response and an error; the caller must close that body too.
func (f *Fetcher) FetchWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	reqLog := f.log.WithField("url", req.URL.String())
	maxAttempts := f.policy.attempts()
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, fmt.Errorf("context cancelled (%v) during retry backoff after error: %w", err, lastErr)
			}
			return nil, fmt.Errorf("context cancelled before first attempt: %w", err)
		}

		if attempt > 1 {
			delay := f.policy.exponential(attempt - 1)
			reqLog.WithFields(logrus.Fields{"attempt": attempt, "max_attempts": maxAttempts, "delay": delay}).Warn("Retrying request...")
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, fmt.Errorf("context cancelled (%v) during retry delay after error: %w", err, lastErr)
			}
		}

		resp, err := f.client.Do(req.WithContext(ctx))
		if err != nil {
			drain(resp)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			reqLog.WithField("attempt", attempt).Warnf("Network error: %v", err)
			lastErr = err
			continue
		}

		retryable, statusErr := classifyStatus(resp)
		if statusErr == nil {
			return resp, nil
		}
		if !retryable {
			reqLog.WithField("status_code", resp.StatusCode).Warn("Non-retryable status")
			return resp, statusErr
		}
		reqLog.WithFields(logrus.Fields{"status_code": resp.StatusCode, "attempt": attempt}).Warn("Retryable status")
		drain(resp)
		lastErr = statusErr
	}

	reqLog.Errorf("All %d fetch attempts failed. Last error: %v", maxAttempts, lastErr)
	if lastErr == nil {
		return nil, utils.ErrRetryFailed
	}
	return nil, fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
}

// classifyStatus maps a response status to (retryable, error); 2xx yields a nil error
func classifyStatus(resp *http.Response) (bool, error) {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return false, nil
	case code >= 500:
		return true, fmt.Errorf("%w: status %d %s", utils.ErrServerHTTPError, code, resp.Status)
	case code == http.StatusTooManyRequests:
		return true, fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, code, resp.Status)
	case code >= 400:
		return false, fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, code, resp.Status)
	default:
		return false, fmt.Errorf("%w: status %d %s", utils.ErrOtherHTTPError, code, resp.Status)
	}
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
