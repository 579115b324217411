package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/ports"
)

// Provider throttles calls to a wrapped AI provider. Waiting honours the
// caller's context, so a document deadline also bounds time spent queued.
type Provider struct {
	next    ports.AIProvider
	limiter *rate.Limiter
}

// Wrap returns next unchanged when rps is not positive.
func Wrap(next ports.AIProvider, rps float64, burst int) ports.AIProvider {
	if rps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	return &Provider{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (p *Provider) Name() string {
	return p.next.Name()
}

func (p *Provider) Submit(ctx context.Context, prompt string, content ports.AIContent) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%s rate limit wait: %w", p.next.Name(), err)
	}
	return p.next.Submit(ctx, prompt, content)
}
