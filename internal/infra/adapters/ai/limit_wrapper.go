package ai

import (
	"context"

	"gold-trading-insight/internal/domain/ports/adapter"
)

var _ adapter.ModelClient = (*limitedClient)(nil)

// limitedClient caps concurrent model calls so a burst of flow steps
// cannot exhaust the provider's rate limit.
type limitedClient struct {
	inner adapter.ModelClient
	sem   chan struct{}
}

func NewLimitedClient(inner adapter.ModelClient, maxConcurrent int) adapter.ModelClient {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedClient{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedClient) Complete(ctx context.Context, messages []adapter.Message) (string, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.Complete(ctx, messages)
}

func (l *limitedClient) CountTokens(ctx context.Context, messages []adapter.Message) (int, error) {
	return l.inner.CountTokens(ctx, messages)
}
