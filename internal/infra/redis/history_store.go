package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gold-trading-insight/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
)

var _ repository.HistoryStore = (*HistoryStore)(nil)

const historyKeyPrefix = "gold_trading:conversation:"

// HistoryStore keeps recent conversation turns in Redis so pipelines can
// build prompt context cheaply. Entries share the job retention window.
type HistoryStore struct {
	client RedisClient
	ttl    time.Duration
}

func NewHistoryStore(client RedisClient, ttl time.Duration) *HistoryStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &HistoryStore{client: client, ttl: ttl}
}

func (s *HistoryStore) historyKey(conversationID string) string {
	return historyKeyPrefix + conversationID + ":history"
}

func (s *HistoryStore) Append(ctx context.Context, conversationID, role, content string) error {
	msg := repository.HistoryMessage{
		Role:      role,
		Content:   content,
		Timestamp: float64(time.Now().UnixMilli()) / 1000,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	key := s.historyKey(conversationID)
	if err := s.client.RPush(ctx, key, data); err != nil {
		return err
	}
	return s.client.Expire(ctx, key, s.ttl)
}

func (s *HistoryStore) History(ctx context.Context, conversationID string) ([]repository.HistoryMessage, error) {
	entries, err := s.client.LRange(ctx, s.historyKey(conversationID), 0, -1)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]repository.HistoryMessage, 0, len(entries))
	for _, e := range entries {
		var msg repository.HistoryMessage
		if err := json.Unmarshal([]byte(e), &msg); err != nil {
			continue // skip malformed entries rather than losing the whole history
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *HistoryStore) Clear(ctx context.Context, conversationID string) error {
	return s.client.Del(ctx, s.historyKey(conversationID))
}
