// File: internal/infra/db/postgres/conversation_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"gold-trading-insight/internal/domain"
	"gold-trading-insight/internal/domain/model"
	"gold-trading-insight/internal/domain/ports/repository"
)

var _ repository.ConversationRepository = (*ConversationRepo)(nil)

// ConversationRepo persists conversations and their messages. Message
// ordering relies on created_at, so inserts always set it explicitly.
type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

func (r *ConversationRepo) Create(ctx context.Context, conv *model.Conversation) error {
	const q = `
INSERT INTO conversations (id, user_id, title, created_at, updated_at)
VALUES ($1,$2,$3,COALESCE($4,NOW()),COALESCE($5,NOW()));`
	_, err := r.pool.Exec(ctx, q, conv.ID, conv.UserID, conv.Title, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepo) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	const q = `
SELECT c.id, c.user_id, c.title, c.created_at, c.updated_at,
       (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
  FROM conversations c
 WHERE c.id = $1;`
	var conv model.Conversation
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt, &conv.MessageCount)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	return &conv, nil
}

func (r *ConversationRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.Conversation, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT c.id, c.user_id, c.title, c.created_at, c.updated_at,
       (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
  FROM conversations c
 WHERE c.user_id = $1
 ORDER BY c.updated_at DESC
 LIMIT $2 OFFSET $3;`
	rows, err := r.pool.Query(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()
	var out []*model.Conversation
	for rows.Next() {
		var conv model.Conversation
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt, &conv.MessageCount); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, &conv)
	}
	return out, rows.Err()
}

func (r *ConversationRepo) UpdateTitle(ctx context.Context, id, title string) error {
	const q = `UPDATE conversations SET title=$2, updated_at=NOW() WHERE id=$1;`
	tag, err := r.pool.Exec(ctx, q, id, title)
	if err != nil {
		return fmt.Errorf("update title: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ConversationRepo) CreateMessage(ctx context.Context, msg *model.ChatMessage) error {
	const q = `
INSERT INTO messages (id, conversation_id, role, content, created_at)
VALUES ($1,$2,$3,$4,COALESCE($5,NOW()));`
	_, err := r.pool.Exec(ctx, q, msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("create message: %w", err)
	}
	const touch = `UPDATE conversations SET updated_at=NOW() WHERE id=$1;`
	if _, err := r.pool.Exec(ctx, touch, msg.ConversationID); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepo) UpdateMessage(ctx context.Context, messageID, content string) error {
	const q = `UPDATE messages SET content=$2 WHERE id=$1;`
	tag, err := r.pool.Exec(ctx, q, messageID, content)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ConversationRepo) Messages(ctx context.Context, conversationID string) ([]model.ChatMessage, error) {
	const q = `
SELECT id, conversation_id, role, content, created_at
  FROM messages
 WHERE conversation_id = $1
 ORDER BY created_at ASC;`
	rows, err := r.pool.Query(ctx, q, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()
	var out []model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
