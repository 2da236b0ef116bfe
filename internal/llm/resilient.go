package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"golang.org/x/time/rate"

	"docrag/internal/contextutil"
)

// ResilientEmbedder retries transient embedding failures with exponential
// backoff and optionally rate limits outgoing requests.
type ResilientEmbedder struct {
	next        Embedder
	maxAttempts int
	limiter     *rate.Limiter
	newBackOff  func() backoff.BackOff
}

// NewResilientEmbedder wraps next. maxAttempts counts the first try; rps <= 0 disables rate limiting.
func NewResilientEmbedder(next Embedder, maxAttempts int, rps float64) *ResilientEmbedder {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var limiter *rate.Limiter
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &ResilientEmbedder{
		next:        next,
		maxAttempts: maxAttempts,
		limiter:     limiter,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = 30 * time.Second
			return b
		},
	}
}

// WithBackOff replaces the retry schedule.
func (r *ResilientEmbedder) WithBackOff(newBackOff func() backoff.BackOff) *ResilientEmbedder {
	r.newBackOff = newBackOff
	return r
}

// Embed delegates to the wrapped embedder, retrying transient failures.
func (r *ResilientEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	logger := contextutil.LoggerFromContext(ctx)

	var vectors [][]float32
	attempt := 0
	operation := func() error {
		attempt++
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		out, err := r.next.Embed(ctx, texts)
		if err != nil {
			if !isTransient(err) {
				return backoff.Permanent(err)
			}
			logger.WarnContext(ctx, "embedding attempt failed", "attempt", attempt, "error", err)
			return err
		}
		vectors = out
		return nil
	}

	b := backoff.WithMaxRetries(r.newBackOff(), uint64(r.maxAttempts-1))
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return vectors, nil
}

// isTransient reports whether an embedding error is worth retrying:
// rate limits, server errors and transport failures.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrVectorSize) {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusTooManyRequests || statusErr.Code >= 500
	}
	return errors.Is(err, ErrEmbeddingUnavailable)
}
