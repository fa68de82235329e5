package ai

import (
	"context"
	"time"

	"gold-trading-insight/internal/domain/ports/adapter"
	"gold-trading-insight/internal/infra/metrics"
)

var _ adapter.ModelClient = (*meteredClient)(nil)

// meteredClient records token and latency metrics around every model
// call.
type meteredClient struct {
	inner    adapter.ModelClient
	provider string
	model    string
}

func NewMeteredClient(inner adapter.ModelClient, provider, model string) adapter.ModelClient {
	return &meteredClient{inner: inner, provider: provider, model: model}
}

func (m *meteredClient) Complete(ctx context.Context, messages []adapter.Message) (string, error) {
	tokensIn, _ := m.inner.CountTokens(ctx, messages)
	start := time.Now()
	text, err := m.inner.Complete(ctx, messages)
	metrics.ObserveModelCall(m.provider, m.model, tokensIn, int(time.Since(start).Milliseconds()), err == nil)
	return text, err
}

func (m *meteredClient) CountTokens(ctx context.Context, messages []adapter.Message) (int, error) {
	return m.inner.CountTokens(ctx, messages)
}
