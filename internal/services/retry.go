package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"shop-assistant/internal/metrics"
	"shop-assistant/internal/ragerr"
)

// retryPolicy runs provider calls with a client-side rate limit, a per-attempt
// deadline and exponential backoff on rate limits and transient failures
type retryPolicy struct {
	attempts    int
	baseBackoff time.Duration
	timeout     time.Duration
	limiter     *rate.Limiter
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

func newRetryPolicy(attempts int, baseBackoff, timeout time.Duration, requestsPerMinute int, logger *zap.Logger, m *metrics.Metrics) *retryPolicy {
	if attempts < 1 {
		attempts = 1
	}
	if baseBackoff <= 0 {
		baseBackoff = time.Second
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	var limiter *rate.Limiter
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute)
	}

	return &retryPolicy{
		attempts:    attempts,
		baseBackoff: baseBackoff,
		timeout:     timeout,
		limiter:     limiter,
		logger:      logger,
		metrics:     m,
	}
}

// do invokes call until it succeeds, fails permanently or attempts run out.
// The returned error is always a *ragerr.Error.
func (p *retryPolicy) do(ctx context.Context, op string, call func(ctx context.Context) error) error {
	backoff := p.baseBackoff
	var lastErr *ragerr.Error

	for attempt := 1; attempt <= p.attempts; attempt++ {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				lastErr = ragerr.Timeout(op, p.timeout, err)
				break
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err := call(callCtx)
		deadlineHit := errors.Is(callCtx.Err(), context.DeadlineExceeded)
		cancel()

		if err == nil {
			p.metrics.LLMRequest(op, nil)
			return nil
		}

		var retry bool
		lastErr, retry = classifyProviderError(op, err, deadlineHit && ctx.Err() == nil, p.timeout)
		if ctx.Err() != nil {
			lastErr = ragerr.Timeout(op, p.timeout, ctx.Err())
			retry = false
		}
		if !retry || attempt == p.attempts {
			break
		}

		wait := backoff
		if lastErr.RetryAfter > wait {
			wait = lastErr.RetryAfter
		}
		p.metrics.LLMRetry()
		p.logger.Debug("Retrying LLM call",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.String("kind", lastErr.Code()),
			zap.Error(err))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.metrics.LLMRequest(op, ctx.Err())
			return ragerr.Timeout(op, p.timeout, ctx.Err())
		case <-timer.C:
		}
		backoff *= 2
	}

	p.metrics.LLMRequest(op, lastErr)
	return lastErr
}

// permanentError marks a failure that must not be retried, such as a stream
// that broke after tokens were already delivered
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// classifyProviderError maps go-openai errors onto the pipeline taxonomy and
// reports whether the call may be retried
func classifyProviderError(op string, err error, callTimedOut bool, timeout time.Duration) (*ragerr.Error, bool) {
	var permanent *permanentError
	if errors.As(err, &permanent) {
		if callTimedOut {
			return ragerr.Timeout(op, timeout, err), false
		}
		return ragerr.LLMProvider(op, "", err), false
	}

	if callTimedOut || errors.Is(err, context.DeadlineExceeded) {
		return ragerr.Timeout(op, timeout, err), false
	}
	if errors.Is(err, context.Canceled) {
		return ragerr.Timeout(op, timeout, err), false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests || fmt.Sprint(apiErr.Code) == "rate_limit_exceeded" {
			return ragerr.LLMRateLimit(op, 0, err), true
		}
		return ragerr.LLMProvider(op, apiErr.Message, err), apiErr.HTTPStatusCode >= 500
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			return ragerr.LLMRateLimit(op, 0, err), true
		}
		return ragerr.LLMProvider(op, "", err), reqErr.HTTPStatusCode >= 500 || reqErr.HTTPStatusCode == 0
	}

	var kindErr *ragerr.Error
	if errors.As(err, &kindErr) {
		return kindErr, kindErr.Retryable()
	}

	// transport failures (connection refused, reset) are transient
	return ragerr.LLMProvider(op, "", err), true
}

