package repository

import (
	"context"

	"gold-trading-insight/internal/domain/model"
)

// ProgressStore is the port for per-job progress records. Each job has
// exactly one writer (its own pipeline) and any number of concurrent
// readers, so no locking is required on top of the store.
type ProgressStore interface {
	// Save overwrites the record for jobID and refreshes its retention TTL.
	Save(ctx context.Context, jobID string, rec model.JobRecord) error
	// Get returns the current record. An unseen or expired job yields a
	// zero record (progress 0, empty output), never an error.
	Get(ctx context.Context, jobID string) (model.JobRecord, error)
	// UpdateProgress derives the status from progress and delegates to Save.
	UpdateProgress(ctx context.Context, jobID string, progress int, output string) error
}
