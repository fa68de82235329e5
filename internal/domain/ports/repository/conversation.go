package repository

import (
	"context"

	"gold-trading-insight/internal/domain/model"
)

// -----------------------------
// Conversations
// -----------------------------

type ConversationRepository interface {
	Create(ctx context.Context, conv *model.Conversation) error
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	// ListByUser returns conversation summaries (with message counts),
	// most recently updated first.
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.Conversation, error)
	UpdateTitle(ctx context.Context, id, title string) error

	CreateMessage(ctx context.Context, msg *model.ChatMessage) error
	// UpdateMessage fills in a placeholder message's content.
	UpdateMessage(ctx context.Context, messageID, content string) error
	// Messages returns all messages of a conversation ordered by creation time.
	Messages(ctx context.Context, conversationID string) ([]model.ChatMessage, error)
}
