package repository

import (
	"context"
	"time"

	"tle_zone_judge/internal/domain/model"
)

// ExecutionJobRepository is the job queue as seen by services and workers.
// Jobs live in Redis; queue.JobQueue is the implementation.
type ExecutionJobRepository interface {
	Enqueue(ctx context.Context, job *model.ExecutionJob) error
	Pop(ctx context.Context, partition string, timeout time.Duration) (*model.ExecutionJob, error)
	Get(ctx context.Context, id string) (*model.ExecutionJob, error)
	State(ctx context.Context, id string) (string, error)
	Cancel(ctx context.Context, id string) (*model.ExecutionJob, error)
	Finish(ctx context.Context, id string) (bool, error)
	Stale(ctx context.Context, olderThan time.Duration) ([]*model.ExecutionJob, error)
}
