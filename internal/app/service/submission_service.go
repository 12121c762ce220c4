package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tle_zone_judge/internal/common"
	"tle_zone_judge/internal/domain/model"
	"tle_zone_judge/internal/domain/repository"
)

type SubmissionService struct {
	submissions repository.SubmissionRepository
	problems    repository.ProblemRepository
	contests    repository.ContestRepository
	users       repository.UserRepository
	jobs        *ExecutionJobService
	runs        RunResultStore

	maxSourceBytes int
	wait           time.Duration
	now            func() time.Time
}

func NewSubmissionService(
	submissions repository.SubmissionRepository,
	problems repository.ProblemRepository,
	contests repository.ContestRepository,
	users repository.UserRepository,
	jobs *ExecutionJobService,
	runs RunResultStore,
	maxSourceBytes int,
	wait time.Duration,
) *SubmissionService {
	return &SubmissionService{
		submissions:    submissions,
		problems:       problems,
		contests:       contests,
		users:          users,
		jobs:           jobs,
		runs:           runs,
		maxSourceBytes: maxSourceBytes,
		wait:           wait,
		now:            time.Now,
	}
}

type SubmitRequest struct {
	ProblemID int64  `json:"problemId"`
	Language  string `json:"language"`
	Code      string `json:"code"`
}

type RunRequest struct {
	ProblemID int64   `json:"problemId"`
	Language  string  `json:"language"`
	Code      string  `json:"code"`
	Stdin     *string `json:"stdin,omitempty"`
}

// SubmissionView is the client-facing shape of a submission.
type SubmissionView struct {
	SubmissionID  int64                 `json:"submission_id"`
	ProblemID     int64                 `json:"problem_id"`
	ContestID     *int64                `json:"contest_id,omitempty"`
	Language      model.Language        `json:"language"`
	Verdict       model.Verdict         `json:"verdict"`
	Samples       []model.SampleVerdict `json:"samples"`
	HiddenFailed  *int                  `json:"hidden_failed,omitempty"`
	RuntimeMs     *int                  `json:"runtime_ms,omitempty"`
	MemoryKb      *int                  `json:"memory_kb,omitempty"`
	CompileOutput string                `json:"compile_output,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
}

func (v *SubmissionView) Judging() bool {
	return v.Verdict == model.VerdictJudging
}

func newSubmissionView(sub *model.Submission) *SubmissionView {
	v := &SubmissionView{
		SubmissionID: sub.ID,
		ProblemID:    sub.ProblemID,
		ContestID:    sub.ContestID,
		Language:     sub.Language,
		Verdict:      model.VerdictJudging,
		Samples:      []model.SampleVerdict{},
		RuntimeMs:    sub.RuntimeMs,
		MemoryKb:     sub.MemoryKb,
		CreatedAt:    sub.CreatedAt,
	}
	if sub.Verdict != nil {
		v.Verdict = *sub.Verdict
	}
	if sub.Details != nil {
		if sub.Details.Samples != nil {
			v.Samples = sub.Details.Samples
		}
		v.HiddenFailed = sub.Details.HiddenFailed
		v.CompileOutput = sub.Details.CompileOutput
	}
	return v
}

// RunView is the client-facing shape of a run. Verdict is Judging until the
// report is available.
type RunView struct {
	JobID         string            `json:"job_id"`
	Verdict       model.Verdict     `json:"verdict"`
	Samples       []model.SampleRun `json:"samples"`
	Custom        *model.CustomRun  `json:"custom,omitempty"`
	CompileOutput string            `json:"compile_output,omitempty"`
	Error         string            `json:"error,omitempty"`
}

func (v *RunView) Judging() bool {
	return v.Verdict == model.VerdictJudging
}

func newRunView(jobID string, report *model.RunReport) *RunView {
	if report == nil {
		return &RunView{JobID: jobID, Verdict: model.VerdictJudging, Samples: []model.SampleRun{}}
	}
	return &RunView{
		JobID:         jobID,
		Verdict:       report.Verdict,
		Samples:       report.Samples,
		Custom:        report.Custom,
		CompileOutput: report.CompileOutput,
		Error:         report.Error,
	}
}

func (s *SubmissionService) validate(language, code string) (model.Language, error) {
	lang, err := model.ParseLanguage(language)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("code must not be empty: %w", common.ErrValidation)
	}
	if s.maxSourceBytes > 0 && len(code) > s.maxSourceBytes {
		return "", fmt.Errorf("%d bytes, limit %d: %w", len(code), s.maxSourceBytes, common.ErrCodeTooLarge)
	}
	return lang, nil
}

func (s *SubmissionService) loadUser(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("user %d is unknown: %w", userID, common.ErrUnauthorized)
		}
		return nil, err
	}
	return user, nil
}

// loadProblem maps an unknown problem to a bad request; it is caller input.
func (s *SubmissionService) loadProblem(ctx context.Context, problemID int64, requirePublished bool) (*model.Problem, error) {
	problem, err := s.problems.FindByID(ctx, problemID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("problem %d does not exist: %w", problemID, common.ErrBadRequest)
		}
		return nil, err
	}
	if requirePublished && !problem.Published {
		return nil, fmt.Errorf("problem %d does not exist: %w", problemID, common.ErrBadRequest)
	}
	return problem, nil
}

// Submit judges against a problem outside any contest.
func (s *SubmissionService) Submit(ctx context.Context, userID int64, req SubmitRequest) (*SubmissionView, error) {
	lang, err := s.validate(req.Language, req.Code)
	if err != nil {
		return nil, err
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadProblem(ctx, req.ProblemID, true); err != nil {
		return nil, err
	}
	return s.persistAndWait(ctx, user, &model.Submission{
		UserID:    user.ID,
		ProblemID: req.ProblemID,
		Language:  lang,
		Code:      req.Code,
		Mode:      model.ModeSubmit,
		CreatedAt: s.now().UTC(),
	})
}

// SubmitToContest refuses submissions outside [start, end) with
// common.ErrContestNotActive. The same clock reading decides the window and
// becomes created_at, so an accepted submission is always inside it.
func (s *SubmissionService) SubmitToContest(ctx context.Context, userID, contestID int64, req SubmitRequest) (*SubmissionView, error) {
	lang, err := s.validate(req.Language, req.Code)
	if err != nil {
		return nil, err
	}
	contest, err := s.contests.FindByID(ctx, contestID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if !contest.Active(now) {
		return nil, common.ErrContestNotActive
	}
	if !contest.HasProblem(req.ProblemID) {
		return nil, fmt.Errorf("problem %d is not part of contest %d: %w", req.ProblemID, contestID, common.ErrBadRequest)
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadProblem(ctx, req.ProblemID, false); err != nil {
		return nil, err
	}
	return s.persistAndWait(ctx, user, &model.Submission{
		UserID:    user.ID,
		ProblemID: req.ProblemID,
		ContestID: &contest.ID,
		Language:  lang,
		Code:      req.Code,
		Mode:      model.ModeSubmit,
		CreatedAt: now,
	})
}

func (s *SubmissionService) persistAndWait(ctx context.Context, user *model.User, sub *model.Submission) (*SubmissionView, error) {
	if err := s.jobs.Admit(ctx, user); err != nil {
		return nil, err
	}
	if err := s.submissions.Create(ctx, nil, sub); err != nil {
		s.jobs.Abandon(ctx, user)
		return nil, err
	}

	job := &model.ExecutionJob{
		Mode:         model.ModeSubmit,
		SubmissionID: sub.ID,
		ProblemID:    sub.ProblemID,
		Language:     sub.Language,
	}
	if err := s.jobs.Push(ctx, user, job); err != nil {
		s.jobs.Abandon(ctx, user)
		// A row left pending would block rating updates for its contest.
		details := model.JudgeDetails{Samples: []model.SampleVerdict{}, Error: "not queued"}
		if _, cerr := s.submissions.SetVerdict(ctx, nil, sub.ID, model.Judgement{Verdict: model.VerdictCancelled, Details: details}, s.now().UTC()); cerr != nil {
			return nil, errors.Join(err, cerr)
		}
		return nil, err
	}

	return s.await(ctx, sub.ID)
}

func (s *SubmissionService) await(ctx context.Context, id int64) (*SubmissionView, error) {
	var latest *model.Submission
	_, err := s.jobs.hub.wait(ctx, submissionKey(id), s.wait, func(ctx context.Context) (bool, error) {
		sub, err := s.submissions.FindByID(ctx, id)
		if err != nil {
			return false, err
		}
		latest = sub
		return !sub.Pending(), nil
	})
	if err != nil {
		return nil, err
	}
	return newSubmissionView(latest), nil
}

// Get returns a submission to its owner or an admin. Others see not found.
func (s *SubmissionService) Get(ctx context.Context, userID int64, role string, id int64) (*SubmissionView, error) {
	sub, err := s.submissions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID && role != model.RoleAdmin {
		return nil, common.ErrNotFound
	}
	return newSubmissionView(sub), nil
}

// Run executes the samples and optional custom stdin. Nothing is persisted.
func (s *SubmissionService) Run(ctx context.Context, userID int64, req RunRequest) (*RunView, error) {
	lang, err := s.validate(req.Language, req.Code)
	if err != nil {
		return nil, err
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadProblem(ctx, req.ProblemID, false); err != nil {
		return nil, err
	}

	job := &model.ExecutionJob{
		Mode:      model.ModeRun,
		ProblemID: req.ProblemID,
		Language:  lang,
		Run:       &model.RunPayload{Code: req.Code, Stdin: req.Stdin},
	}
	if err := s.jobs.Enqueue(ctx, user, job); err != nil {
		return nil, err
	}

	var report *model.RunReport
	_, err = s.jobs.hub.wait(ctx, runKey(job.ID), s.wait, func(ctx context.Context) (bool, error) {
		r, err := s.runs.Get(ctx, job.ID)
		if errors.Is(err, common.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		report = r
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return newRunView(job.ID, report), nil
}

// GetRun fetches a run that was still judging when Run returned.
func (s *SubmissionService) GetRun(ctx context.Context, userID int64, jobID string) (*RunView, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID || job.Mode != model.ModeRun {
		return nil, common.ErrNotFound
	}
	report, err := s.runs.Get(ctx, jobID)
	if errors.Is(err, common.ErrNotFound) {
		switch state, _ := s.jobs.jobs.State(ctx, jobID); state {
		case model.JobStatusDone:
			return nil, fmt.Errorf("run %s has expired: %w", jobID, common.ErrNotFound)
		case model.JobStatusCancelled:
			return &RunView{JobID: jobID, Verdict: model.VerdictCancelled, Samples: []model.SampleRun{}}, nil
		}
		return newRunView(jobID, nil), nil
	}
	if err != nil {
		return nil, err
	}
	return newRunView(jobID, report), nil
}
