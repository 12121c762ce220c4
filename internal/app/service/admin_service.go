package service

import (
	"context"

	"tle_zone_judge/internal/domain/model"
	"tle_zone_judge/internal/domain/repository"
	"tle_zone_judge/internal/platform/logger"
)

type AdminService struct {
	users   repository.UserRepository
	jobs    *ExecutionJobService
	results *ResultService
}

func NewAdminService(users repository.UserRepository, jobs *ExecutionJobService, results *ResultService) *AdminService {
	return &AdminService{users: users, jobs: jobs, results: results}
}

func (s *AdminService) BanUser(ctx context.Context, userID int64) error {
	if err := s.users.Ban(ctx, userID); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("user banned", "user_id", userID)
	return nil
}

// CancelJob drops a queued job. A cancelled submission gets the terminal
// Cancelled verdict so it does not hold up contest finalisation.
func (s *AdminService) CancelJob(ctx context.Context, jobID string) (*model.ExecutionJob, error) {
	job, err := s.jobs.Cancel(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Mode == model.ModeSubmit {
		j := model.Judgement{
			Verdict: model.VerdictCancelled,
			Details: model.JudgeDetails{Samples: []model.SampleVerdict{}, Error: "cancelled by an administrator"},
		}
		if err := s.results.RecordVerdict(ctx, job.SubmissionID, j); err != nil {
			return nil, err
		}
	}
	return job, nil
}
