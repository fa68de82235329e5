// File: internal/infra/adapters/ai/noop_ai.go
package ai

import (
	"context"
	"time"

	"gold-trading-insight/internal/domain/ports/adapter"
)

var _ adapter.ModelClient = (*NoopClient)(nil)

// NoopClient stands in for a real model in local development. It
// answers every prompt with a fixed string after a small delay.
type NoopClient struct{}

func NewNoopClient() *NoopClient {
	return &NoopClient{}
}

func (a *NoopClient) Complete(ctx context.Context, messages []adapter.Message) (string, error) {
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "这是本地开发环境的模拟回复。", nil
}

func (a *NoopClient) CountTokens(_ context.Context, messages []adapter.Message) (int, error) {
	total := 0
	for _, m := range messages {
		total += len([]rune(m.Content)) / 4
	}
	return total, nil
}
