package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tle_zone_judge/internal/domain/model"
	"tle_zone_judge/internal/domain/repository"
	"tle_zone_judge/internal/notify"
	"tle_zone_judge/internal/platform/database"
	"tle_zone_judge/internal/platform/logger"
)

// ExecutionResult is what a worker hands back for one job. Exactly one of the
// fields is set, matching the job's mode.
type ExecutionResult struct {
	Judgement *model.Judgement
	Report    *model.RunReport
}

// JudgeErrorMessage is shown for jobs the judge could not evaluate.
const JudgeErrorMessage = "the judge could not evaluate this submission"

// JudgeErrorResult is the terminal result of a job that could not be judged.
func JudgeErrorResult(job *model.ExecutionJob, msg string) ExecutionResult {
	if job.Mode == model.ModeRun {
		return ExecutionResult{Report: &model.RunReport{
			Verdict: model.VerdictJudgeError,
			Samples: []model.SampleRun{},
			Error:   msg,
		}}
	}
	return ExecutionResult{Judgement: &model.Judgement{
		Verdict: model.VerdictJudgeError,
		Details: model.JudgeDetails{Samples: []model.SampleVerdict{}, Error: msg},
	}}
}

type ResultService struct {
	submissions repository.SubmissionRepository
	aggregator  *ContestAggregator
	runs        RunResultStore
	notifier    notify.Notifier
	jobs        *ExecutionJobService
	tx          database.Transactor
	now         func() time.Time
}

func NewResultService(
	submissions repository.SubmissionRepository,
	aggregator *ContestAggregator,
	runs RunResultStore,
	notifier notify.Notifier,
	jobs *ExecutionJobService,
	tx database.Transactor,
) *ResultService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &ResultService{
		submissions: submissions,
		aggregator:  aggregator,
		runs:        runs,
		notifier:    notifier,
		jobs:        jobs,
		tx:          tx,
		now:         time.Now,
	}
}

func (s *ResultService) HandleExecutionResult(ctx context.Context, job *model.ExecutionJob, res ExecutionResult) error {
	switch job.Mode {
	case model.ModeRun:
		if res.Report == nil {
			return fmt.Errorf("run job %s finished without a report", job.ID)
		}
		if err := s.runs.Put(ctx, job.ID, res.Report); err != nil {
			return err
		}
		s.jobs.hub.signal(runKey(job.ID))
		return nil
	case model.ModeSubmit:
		if res.Judgement == nil {
			return fmt.Errorf("submit job %s finished without a judgement", job.ID)
		}
		return s.RecordVerdict(ctx, job.SubmissionID, *res.Judgement)
	default:
		return fmt.Errorf("job %s has unknown mode %q", job.ID, job.Mode)
	}
}

// RecordVerdict stores the terminal verdict of a submission, refolds the
// contest standings it touches and announces it. A submission that already
// has a verdict is left untouched.
func (s *ResultService) RecordVerdict(ctx context.Context, submissionID int64, j model.Judgement) error {
	log := logger.FromContext(ctx)

	sub, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("record verdict: %w", err)
	}

	var written bool
	err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		written, err = s.submissions.SetVerdict(ctx, tx, submissionID, j, s.now().UTC())
		if err != nil || !written {
			return err
		}
		if sub.ContestID != nil {
			_, err = s.aggregator.ApplyTx(ctx, tx, *sub.ContestID, sub.UserID, sub.ProblemID)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("record verdict for submission %d: %w", submissionID, err)
	}
	if !written {
		log.Warn("submission already judged, keeping first verdict", "submission_id", submissionID)
		s.jobs.hub.signal(submissionKey(submissionID))
		return nil
	}
	log.Info("submission judged", "submission_id", submissionID, "verdict", j.Verdict, "runtime_ms", j.RuntimeMs)

	sub, err = s.submissions.FindByID(ctx, submissionID)
	if err == nil {
		if nerr := s.notifier.Notify(ctx, notify.EventFromSubmission(sub)); nerr != nil {
			log.Warn("notification failed", "submission_id", submissionID, "error", nerr)
		}
	}
	s.jobs.hub.signal(submissionKey(submissionID))
	return nil
}

// ReapStale ends jobs that were claimed more than olderThan ago and never
// finished, typically because their worker died. Each gets JudgeError and
// its admission slot back. It returns how many jobs were ended.
func (s *ResultService) ReapStale(ctx context.Context, olderThan time.Duration) (int, error) {
	log := logger.FromContext(ctx)
	stale, err := s.jobs.jobs.Stale(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	reaped := 0
	for _, job := range stale {
		if err := s.HandleExecutionResult(ctx, job, JudgeErrorResult(job, JudgeErrorMessage)); err != nil {
			log.Error("could not end stale job", "job_id", job.ID, "error", err)
			continue
		}
		s.jobs.Done(ctx, job)
		log.Warn("stale job ended as judge error", "job_id", job.ID, "mode", job.Mode, "submission_id", job.SubmissionID)
		reaped++
	}
	return reaped, nil
}
