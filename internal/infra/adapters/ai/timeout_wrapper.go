package ai

import (
	"context"
	"time"

	"gold-trading-insight/internal/domain/ports/adapter"
)

var _ adapter.ModelClient = (*timeoutClient)(nil)

// timeoutClient bounds every completion call so a stalled provider
// cannot hang a pipeline step forever.
type timeoutClient struct {
	inner adapter.ModelClient
	d     time.Duration
}

func NewTimeoutClient(inner adapter.ModelClient, d time.Duration) adapter.ModelClient {
	if d <= 0 {
		return inner
	}
	return &timeoutClient{inner: inner, d: d}
}

func (t *timeoutClient) Complete(ctx context.Context, messages []adapter.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.inner.Complete(ctx, messages)
}

func (t *timeoutClient) CountTokens(ctx context.Context, messages []adapter.Message) (int, error) {
	return t.inner.CountTokens(ctx, messages)
}
