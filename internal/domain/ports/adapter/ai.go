package adapter

import "context"

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// ModelClient is the port for LLM completions. A call may fail or time
// out; callers decide how to degrade.
type ModelClient interface {
	// Complete returns only the assistant text for the given messages.
	Complete(ctx context.Context, messages []Message) (string, error)

	// CountTokens returns prompt tokens for the provided messages
	// (provider-specific counting; best-effort when exact isn't available).
	CountTokens(ctx context.Context, messages []Message) (int, error)
}
