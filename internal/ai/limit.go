package ai

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/FrancescoCarrabino/feelghost/internal/analyzer"
)

// LimitedClient spaces model requests with a token bucket. Waiting callers
// give up when their context ends.
type LimitedClient struct {
	next    Client
	limiter *rate.Limiter
}

// NewLimitedClient allows perSecond requests on average with bursts of burst.
func NewLimitedClient(next Client, perSecond float64, burst int) *LimitedClient {
	return &LimitedClient{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), max(burst, 1)),
	}
}

func (c *LimitedClient) GetSuggestion(ctx context.Context, info *analyzer.ContextInfo) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return c.next.GetSuggestion(ctx, info)
}

func (c *LimitedClient) Identify() string {
	return c.next.Identify()
}
