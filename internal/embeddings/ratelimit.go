package embeddings

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Provider with a token-bucket rate limiter. Each
// embed call consumes one token regardless of batch size, which matches
// how hosted APIs meter requests.
type RateLimited struct {
	inner   Provider
	limiter *rate.Limiter
}

var _ Provider = (*RateLimited)(nil)

// NewRateLimited wraps provider so at most rps requests per second are
// issued, with the given burst. A burst below 1 is raised to 1.
func NewRateLimited(provider Provider, rps float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		inner:   provider,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// EmbedPassages waits for a token, then delegates to the wrapped provider.
func (r *RateLimited) EmbedPassages(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return r.inner.EmbedPassages(ctx, texts)
}

// EmbedQueries waits for a token, then delegates to the wrapped provider.
func (r *RateLimited) EmbedQueries(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return r.inner.EmbedQueries(ctx, texts)
}

// Dimension returns the wrapped provider's dimension.
func (r *RateLimited) Dimension() int {
	return r.inner.Dimension()
}

// ModelName returns the wrapped provider's model identifier.
func (r *RateLimited) ModelName() string {
	return r.inner.ModelName()
}

// Close closes the wrapped provider.
func (r *RateLimited) Close() error {
	return r.inner.Close()
}
