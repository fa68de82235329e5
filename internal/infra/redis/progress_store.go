package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gold-trading-insight/internal/domain/model"
	"gold-trading-insight/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
)

var _ repository.ProgressStore = (*ProgressStore)(nil)

const jobKeyPrefix = "gold_trading:job:"

// ProgressStore keeps per-job progress records in Redis. Records are
// overwritten whole on every update and expire after the retention TTL,
// so there is no deletion API.
type ProgressStore struct {
	client RedisClient
	ttl    time.Duration
}

func NewProgressStore(client RedisClient, ttl time.Duration) *ProgressStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &ProgressStore{client: client, ttl: ttl}
}

func (s *ProgressStore) jobKey(jobID string) string {
	return jobKeyPrefix + jobID
}

func (s *ProgressStore) Save(ctx context.Context, jobID string, rec model.JobRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.jobKey(jobID), data, s.ttl)
}

// Get returns the current record for jobID. Unseen or expired jobs come
// back as a zero record; "not yet written" is not an error for readers
// that start polling before the pipeline's first checkpoint.
func (s *ProgressStore) Get(ctx context.Context, jobID string) (model.JobRecord, error) {
	data, err := s.client.Get(ctx, s.jobKey(jobID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.JobRecord{Status: model.JobStatusStarted}, nil
		}
		return model.JobRecord{}, err
	}
	var rec model.JobRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return model.JobRecord{}, err
	}
	return rec, nil
}

func (s *ProgressStore) UpdateProgress(ctx context.Context, jobID string, progress int, output string) error {
	return s.Save(ctx, jobID, model.JobRecord{
		Progress:      progress,
		CurrentOutput: output,
		Status:        model.StatusForProgress(progress),
	})
}
