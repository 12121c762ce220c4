package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tle_zone_judge/internal/app/service"
	"tle_zone_judge/internal/domain/model"
	"tle_zone_judge/internal/domain/repository"
	"tle_zone_judge/internal/judge"
	"tle_zone_judge/internal/judge/sandbox"
	"tle_zone_judge/internal/platform/logger"
	"tle_zone_judge/internal/platform/objectstore"

	"golang.org/x/sync/errgroup"
)

// attempts is how many times a job is executed before it is given up as
// JudgeError. Only infrastructure failures are retried.
const attempts = 2

const popBackoff = time.Second

const recordBackoff = 50 * time.Millisecond

type JobSource interface {
	Pop(ctx context.Context, partition string, timeout time.Duration) (*model.ExecutionJob, error)
}

type Judger interface {
	Submit(ctx context.Context, req judge.Request) (*model.Judgement, error)
	Run(ctx context.Context, req judge.Request) (*model.RunReport, error)
}

type ResultHandler interface {
	HandleExecutionResult(ctx context.Context, job *model.ExecutionJob, res service.ExecutionResult) error
}

type JobFinisher interface {
	Done(ctx context.Context, job *model.ExecutionJob)
}

// StaleReaper ends claimed jobs that nobody finished in time.
type StaleReaper interface {
	ReapStale(ctx context.Context, olderThan time.Duration) (int, error)
}

type Options struct {
	// Workers maps a partition to the number of goroutines serving it.
	Workers     map[string]int
	PollTimeout time.Duration
	// Reaper is run every ReapInterval for jobs running longer than
	// StaleAfter. Nil disables it.
	Reaper       StaleReaper
	StaleAfter   time.Duration
	ReapInterval time.Duration
}

type ExecutionWorker struct {
	source      JobSource
	problems    repository.ProblemRepository
	submissions repository.SubmissionRepository
	judge       Judger
	results     ResultHandler
	finisher    JobFinisher
	blobs       objectstore.Fetcher // nil when test data lives only in the database
	opts        Options
}

func NewExecutionWorker(
	source JobSource,
	problems repository.ProblemRepository,
	submissions repository.SubmissionRepository,
	j Judger,
	results ResultHandler,
	finisher JobFinisher,
	blobs objectstore.Fetcher,
	opts Options,
) *ExecutionWorker {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 5 * time.Second
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 15 * time.Minute
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = time.Minute
	}
	return &ExecutionWorker{
		source:      source,
		problems:    problems,
		submissions: submissions,
		judge:       j,
		results:     results,
		finisher:    finisher,
		blobs:       blobs,
		opts:        opts,
	}
}

// Start blocks until ctx is cancelled. A job already picked up is finished
// even if shutdown begins while it runs.
func (w *ExecutionWorker) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for partition, n := range w.opts.Workers {
		for i := 0; i < n; i++ {
			g.Go(func() error {
				w.loop(ctx, partition, i)
				return nil
			})
		}
	}
	if w.opts.Reaper != nil {
		g.Go(func() error {
			w.reap(ctx)
			return nil
		})
	}
	return g.Wait()
}

// reap ends jobs whose worker died, including workers in other processes.
func (w *ExecutionWorker) reap(ctx context.Context) {
	log := logger.FromContext(ctx)
	ticker := time.NewTicker(w.opts.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n, err := w.opts.Reaper.ReapStale(ctx, w.opts.StaleAfter)
		if err != nil {
			log.Error("failed to reap stale jobs", "error", err)
			continue
		}
		if n > 0 {
			log.Warn("reaped stale jobs", "count", n)
		}
	}
}

func (w *ExecutionWorker) loop(ctx context.Context, partition string, id int) {
	log := logger.FromContext(ctx).With("partition", partition, "worker", id)
	log.Info("execution worker started")
	defer log.Info("execution worker stopped")

	for ctx.Err() == nil {
		job, err := w.source.Pop(ctx, partition, w.opts.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("failed to pop job", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(popBackoff):
			}
			continue
		}
		if job == nil {
			continue
		}
		w.Process(context.WithoutCancel(ctx), job)
	}
}

// Process judges one claimed job, records the outcome and frees the
// submitter's admission slot. A job whose result cannot be stored is left
// running for the reaper.
func (w *ExecutionWorker) Process(ctx context.Context, job *model.ExecutionJob) {
	log := logger.FromContext(ctx).With("job_id", job.ID, "mode", job.Mode, "language", job.Language)
	ctx = logger.WithLogger(ctx, log)

	started := time.Now()
	res := w.execute(ctx, job)
	if err := w.record(ctx, job, res); err != nil {
		log.Error("failed to record result, leaving job to the reaper", "error", err)
		return
	}
	w.finisher.Done(ctx, job)
	log.Info("job finished", "elapsed", time.Since(started))
}

// record stores res, retrying transient failures. If res itself keeps being
// rejected, JudgeError is stored in its place.
func (w *ExecutionWorker) record(ctx context.Context, job *model.ExecutionJob, res service.ExecutionResult) error {
	log := logger.FromContext(ctx)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = w.results.HandleExecutionResult(ctx, job, res); err == nil {
			return nil
		}
		log.Warn("failed to record result", "attempt", attempt, "error", err)
		if attempt < attempts {
			time.Sleep(recordBackoff)
		}
	}
	return w.results.HandleExecutionResult(ctx, job, failed(job, fmt.Errorf("%w: %v", sandbox.ErrInfrastructure, err)))
}

func (w *ExecutionWorker) execute(ctx context.Context, job *model.ExecutionJob) service.ExecutionResult {
	log := logger.FromContext(ctx)

	for attempt := 1; ; attempt++ {
		job.Attempts = attempt
		var res service.ExecutionResult
		req, err := w.request(ctx, job)
		if err == nil {
			if job.Mode == model.ModeRun {
				res.Report, err = w.judge.Run(ctx, req)
			} else {
				res.Judgement, err = w.judge.Submit(ctx, req)
			}
		}
		if err == nil {
			return res
		}
		if attempt >= attempts {
			log.Error("judging failed, giving up", "attempt", attempt, "error", err)
			return failed(job, err)
		}
		log.Warn("judging failed, retrying", "attempt", attempt, "error", err)
	}
}

func (w *ExecutionWorker) request(ctx context.Context, job *model.ExecutionJob) (judge.Request, error) {
	problem, err := w.problems.FindByID(ctx, job.ProblemID)
	if err != nil {
		return judge.Request{}, fmt.Errorf("load problem %d: %w", job.ProblemID, err)
	}
	tests, err := w.problems.ListTestCases(ctx, job.ProblemID)
	if err != nil {
		return judge.Request{}, fmt.Errorf("load tests for problem %d: %w", job.ProblemID, err)
	}
	if w.blobs != nil {
		if err := objectstore.Hydrate(ctx, w.blobs, tests); err != nil {
			return judge.Request{}, fmt.Errorf("fetch tests for problem %d: %w", job.ProblemID, err)
		}
	}
	samples, hidden := model.SplitTests(tests)

	req := judge.Request{
		Language: job.Language,
		Limits:   sandbox.Limits{TimeMs: problem.TimeLimitMs, MemoryKb: problem.MemoryLimitKb}.WithDefaults(),
		Samples:  samples,
		Hidden:   hidden,
	}

	switch job.Mode {
	case model.ModeRun:
		if job.Run == nil {
			return judge.Request{}, errors.New("run job without payload")
		}
		req.Code = job.Run.Code
		req.Stdin = job.Run.Stdin
	case model.ModeSubmit:
		sub, err := w.submissions.FindByID(ctx, job.SubmissionID)
		if err != nil {
			return judge.Request{}, fmt.Errorf("load submission %d: %w", job.SubmissionID, err)
		}
		req.Code = sub.Code
		req.Language = sub.Language
	default:
		return judge.Request{}, fmt.Errorf("unknown mode %q", job.Mode)
	}
	return req, nil
}

// failed is the terminal outcome of a job the judge could not evaluate.
func failed(job *model.ExecutionJob, err error) service.ExecutionResult {
	msg := err.Error()
	if errors.Is(err, sandbox.ErrInfrastructure) {
		msg = service.JudgeErrorMessage
	}
	return service.JudgeErrorResult(job, msg)
}
