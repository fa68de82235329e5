package model

import (
	"strings"
	"time"
)

const defaultConversationTitle = "New Conversation"

// ChatMessage is one turn in a conversation.
type ChatMessage struct {
	ID             string
	ConversationID string
	Role           string // "user" | "assistant"
	Content        string
	CreatedAt      time.Time
}

// Conversation is a logical thread of messages owned by one user.
// The assistant reply for each user message is created empty and
// filled in once its flow completes.
type Conversation struct {
	ID           string
	UserID       string
	Title        string
	MessageCount int
	Messages     []ChatMessage
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func NewConversation(id, userID, firstQuery string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        id,
		UserID:    userID,
		Title:     TitleForQuery(firstQuery),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TitleForQuery derives a conversation title from the first query text.
func TitleForQuery(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return defaultConversationTitle
	}
	runes := []rune(query)
	if len(runes) > 30 {
		return string(runes[:30]) + "..."
	}
	return query
}

// HasCustomTitle reports whether the title has moved past the placeholder.
func (c *Conversation) HasCustomTitle() bool {
	return c.Title != defaultConversationTitle
}
