package service

import (
	"context"
	"fmt"
	"time"

	"tle_zone_judge/internal/common"
	"tle_zone_judge/internal/domain/model"
	"tle_zone_judge/internal/domain/repository"
	"tle_zone_judge/internal/judge/language"
	"tle_zone_judge/internal/platform/logger"

	"github.com/google/uuid"
)

// Admission bounds the number of jobs a user can have queued or running.
type Admission interface {
	Acquire(ctx context.Context, userID int64, max int) (bool, error)
	Release(ctx context.Context, userID int64) error
}

// RunResultStore keeps ephemeral run reports.
type RunResultStore interface {
	Put(ctx context.Context, jobID string, report *model.RunReport) error
	Get(ctx context.Context, jobID string) (*model.RunReport, error)
}

type JobLimits struct {
	MaxInflight        int
	MaxInflightPremium int
}

type ExecutionJobService struct {
	jobs      repository.ExecutionJobRepository
	admission Admission
	langs     *language.Registry
	limits    JobLimits
	hub       *completionHub
	now       func() time.Time
}

func NewExecutionJobService(jobs repository.ExecutionJobRepository, admission Admission, langs *language.Registry, limits JobLimits) *ExecutionJobService {
	return &ExecutionJobService{
		jobs:      jobs,
		admission: admission,
		langs:     langs,
		limits:    limits,
		hub:       newCompletionHub(),
		now:       time.Now,
	}
}

func (s *ExecutionJobService) limitFor(user *model.User) int {
	if user.IsPremium {
		return s.limits.MaxInflightPremium
	}
	return s.limits.MaxInflight
}

// Admit takes an admission slot for the user. The slot is released when the
// job finishes or is cancelled, or by Abandon if it is never pushed.
func (s *ExecutionJobService) Admit(ctx context.Context, user *model.User) error {
	ok, err := s.admission.Acquire(ctx, user.ID, s.limitFor(user))
	if err != nil {
		return fmt.Errorf("admission for user %d: %w", user.ID, err)
	}
	if !ok {
		return common.ErrTooManyRequests
	}
	return nil
}

func (s *ExecutionJobService) Abandon(ctx context.Context, user *model.User) {
	s.release(ctx, user.ID)
}

// Push puts an admitted job onto its language partition. It fills in ID,
// Partition and EnqueuedAt.
func (s *ExecutionJobService) Push(ctx context.Context, user *model.User, job *model.ExecutionJob) error {
	if _, err := s.langs.Recipe(job.Language); err != nil {
		return err
	}
	job.ID = uuid.NewString()
	job.UserID = user.ID
	job.Partition = s.langs.Partition(job.Language)
	job.EnqueuedAt = s.now().UTC()

	if err := s.jobs.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	logger.FromContext(ctx).Info("job enqueued", "job_id", job.ID, "mode", job.Mode, "partition", job.Partition, "submission_id", job.SubmissionID)
	return nil
}

// Enqueue is Admit followed by Push.
func (s *ExecutionJobService) Enqueue(ctx context.Context, user *model.User, job *model.ExecutionJob) error {
	if err := s.Admit(ctx, user); err != nil {
		return err
	}
	if err := s.Push(ctx, user, job); err != nil {
		s.Abandon(ctx, user)
		return err
	}
	return nil
}

// Cancel drops a job that no worker has claimed and frees its slot.
func (s *ExecutionJobService) Cancel(ctx context.Context, jobID string) (*model.ExecutionJob, error) {
	job, err := s.jobs.Cancel(ctx, jobID)
	if err != nil {
		return nil, err
	}
	s.release(ctx, job.UserID)
	logger.FromContext(ctx).Info("job cancelled", "job_id", jobID, "submission_id", job.SubmissionID)
	return job, nil
}

// Done is called once a claimed job's result is stored. The admission slot is
// released by whichever of worker and reaper finishes the job first.
func (s *ExecutionJobService) Done(ctx context.Context, job *model.ExecutionJob) {
	owned, err := s.jobs.Finish(ctx, job.ID)
	if err != nil {
		logger.FromContext(ctx).Warn("could not mark job done", "job_id", job.ID, "error", err)
		owned = true
	}
	if owned {
		s.release(ctx, job.UserID)
	}
}

func (s *ExecutionJobService) Get(ctx context.Context, jobID string) (*model.ExecutionJob, error) {
	return s.jobs.Get(ctx, jobID)
}

func (s *ExecutionJobService) release(ctx context.Context, userID int64) {
	if err := s.admission.Release(ctx, userID); err != nil {
		logger.FromContext(ctx).Warn("could not release admission slot", "user_id", userID, "error", err)
	}
}

func submissionKey(id int64) string { return fmt.Sprintf("submission:%d", id) }
func runKey(jobID string) string    { return "run:" + jobID }
