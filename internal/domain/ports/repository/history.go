package repository

import "context"

// HistoryMessage is one remembered turn used to build flow context.
type HistoryMessage struct {
	Role      string  `json:"role"`
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp"`
}

// HistoryStore keeps a short-lived copy of conversation turns in a
// fast store so pipelines can build their prompt context without
// touching the relational repository.
type HistoryStore interface {
	Append(ctx context.Context, conversationID, role, content string) error
	History(ctx context.Context, conversationID string) ([]HistoryMessage, error)
	Clear(ctx context.Context, conversationID string) error
}
