package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
)

// retryPolicy holds the waits before each retry, per failure class. A turn is
// interactive, so the waits are short and the attempts few.
type retryPolicy struct {
	maxAttempts      int
	rateLimitWaits   []time.Duration
	serverErrorWaits []time.Duration
}

func interactiveRetryPolicy(maxRetries int) retryPolicy {
	return retryPolicy{
		maxAttempts:      max(1, maxRetries+1),
		rateLimitWaits:   []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second},
		serverErrorWaits: []time.Duration{1 * time.Second, 3 * time.Second, 6 * time.Second},
	}
}

func (p retryPolicy) wait(waits []time.Duration, attempt int) time.Duration {
	if len(waits) == 0 {
		return 0
	}
	return waits[min(attempt, len(waits)-1)]
}

// withRetry runs call after the rate limiter admits it and retries rate-limit and
// server errors with the policy's waits.
func withRetry[T any](ctx context.Context, c *Client, call func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < c.retry.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return zero, err
		}

		resp, err := call()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var wait time.Duration
		switch {
		case isRateLimitError(err):
			wait = c.retry.wait(c.retry.rateLimitWaits, attempt)
		case isServerError(err):
			wait = c.retry.wait(c.retry.serverErrorWaits, attempt)
		default:
			return zero, err
		}
		if attempt == c.retry.maxAttempts-1 {
			break
		}

		log.Printf("⚠️  [LLM] Attempt %d failed, retrying in %s: %v", attempt+1, wait, err)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, fmt.Errorf("failed after %d attempts: %w", c.retry.maxAttempts, lastErr)
}

func statusCode(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	if statusCode(err) == http.StatusTooManyRequests {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	if code := statusCode(err); code >= 500 {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "server_error")
}
