package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"tle_zone_judge/internal/common"
	"tle_zone_judge/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmissionService_SubmitWaitsForVerdict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	workerErr := make(chan error, 1)
	go func() {
		workerErr <- f.workOne(ctx, "native", func(job *model.ExecutionJob) ExecutionResult {
			return ExecutionResult{Judgement: &model.Judgement{
				Verdict:   model.VerdictAccepted,
				RuntimeMs: 12,
				MemoryKb:  2048,
				Details:   model.JudgeDetails{Samples: []model.SampleVerdict{{Index: 1, Verdict: model.VerdictAccepted}}, TestsRun: 2},
			}}
		})
	}()

	view, err := f.subs.Submit(ctx, 1, SubmitRequest{ProblemID: 10, Language: "cpp", Code: "int main(){}"})
	require.NoError(t, err)
	require.NoError(t, <-workerErr)

	assert.Equal(t, model.VerdictAccepted, view.Verdict)
	assert.Equal(t, []model.SampleVerdict{{Index: 1, Verdict: model.VerdictAccepted}}, view.Samples)
	assert.Equal(t, 1, f.notifier.count())

	n, err := f.limit.InFlight(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n, "slot must be released after judging")
}

func TestSubmissionService_SubmitReturnsJudgingAfterWait(t *testing.T) {
	f := newFixture(t)
	f.subs.wait = 20 * time.Millisecond

	view, err := f.subs.Submit(context.Background(), 1, SubmitRequest{ProblemID: 10, Language: "python", Code: "print(3)"})
	require.NoError(t, err)
	assert.True(t, view.Judging())
	assert.Equal(t, model.VerdictJudging, view.Verdict)
	assert.NotZero(t, view.SubmissionID)

	n, err := f.queue.Len(context.Background(), "script")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSubmissionService_RejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.subs.Submit(ctx, 1, SubmitRequest{ProblemID: 10, Language: "brainfuck", Code: "+"})
	assert.ErrorIs(t, err, common.ErrUnsupportedLanguage)
	assert.Equal(t, 400, common.HTTPStatusFromError(err))

	_, err = f.subs.Submit(ctx, 1, SubmitRequest{ProblemID: 10, Language: "cpp", Code: strings.Repeat("x", 2048)})
	assert.ErrorIs(t, err, common.ErrCodeTooLarge)

	_, err = f.subs.Submit(ctx, 1, SubmitRequest{ProblemID: 404, Language: "cpp", Code: "int main(){}"})
	assert.Equal(t, 400, common.HTTPStatusFromError(err))

	_, err = f.subs.Submit(ctx, 1, SubmitRequest{ProblemID: 12, Language: "cpp", Code: "int main(){}"})
	assert.Equal(t, 400, common.HTTPStatusFromError(err), "unpublished problems are not submittable")

	_, err = f.subs.Submit(ctx, 1, SubmitRequest{ProblemID: 10, Language: "cpp", Code: "   "})
	assert.ErrorIs(t, err, common.ErrValidation)

	n, err := f.queue.Len(ctx, "native")
	require.NoError(t, err)
	assert.Zero(t, n, "nothing may be enqueued for rejected input")
}

func TestSubmissionService_AdmissionLimit(t *testing.T) {
	f := newFixture(t)
	f.subs.wait = 10 * time.Millisecond
	ctx := context.Background()
	req := SubmitRequest{ProblemID: 10, Language: "cpp", Code: "int main(){}"}

	for i := 0; i < 2; i++ {
		_, err := f.subs.Submit(ctx, 1, req)
		require.NoError(t, err)
	}
	_, err := f.subs.Submit(ctx, 1, req)
	assert.ErrorIs(t, err, common.ErrTooManyRequests)
	assert.Equal(t, 429, common.HTTPStatusFromError(err))

	// Premium users get a larger allowance.
	for i := 0; i < 3; i++ {
		_, err := f.subs.Submit(ctx, 3, req)
		require.NoError(t, err)
	}

	n, err := f.queue.Len(ctx, "native")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestSubmissionService_ContestWindow(t *testing.T) {
	f := newFixture(t)
	f.subs.wait = 10 * time.Millisecond
	ctx := context.Background()
	c := f.createContest(t, "Weekly Round 1", contestStart)
	req := SubmitRequest{ProblemID: 10, Language: "cpp", Code: "int main(){}"}

	f.setNow(contestStart.Add(-time.Second))
	_, err := f.subs.SubmitToContest(ctx, 1, c.ID, req)
	assert.ErrorIs(t, err, common.ErrContestNotActive)

	f.setNow(c.EndTime)
	_, err = f.subs.SubmitToContest(ctx, 1, c.ID, req)
	assert.ErrorIs(t, err, common.ErrContestNotActive)
	assert.Equal(t, 403, common.HTTPStatusFromError(err))
	assert.Equal(t, "Contest not active", common.PublicMessage(err))

	f.setNow(contestStart)
	view, err := f.subs.SubmitToContest(ctx, 1, c.ID, req)
	require.NoError(t, err)
	require.NotNil(t, view.ContestID)
	assert.Equal(t, c.ID, *view.ContestID)

	_, err = f.subs.SubmitToContest(ctx, 1, c.ID, SubmitRequest{ProblemID: 12, Language: "cpp", Code: "x"})
	assert.ErrorIs(t, err, common.ErrBadRequest, "problem outside the contest")

	_, err = f.subs.SubmitToContest(ctx, 1, 999, req)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSubmissionService_LateSubmissionNeverRanks(t *testing.T) {
	f := newFixture(t)
	f.subs.wait = 10 * time.Millisecond
	ctx := context.Background()
	c := f.createContest(t, "Late Round", contestStart)

	f.setNow(c.EndTime.Add(time.Minute))
	_, err := f.subs.SubmitToContest(ctx, 1, c.ID, SubmitRequest{ProblemID: 10, Language: "cpp", Code: "int main(){}"})
	require.ErrorIs(t, err, common.ErrContestNotActive)

	board, err := f.contests.Leaderboard(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, board)
}

func TestSubmissionService_GetChecksOwnership(t *testing.T) {
	f := newFixture(t)
	f.subs.wait = 10 * time.Millisecond
	ctx := context.Background()

	view, err := f.subs.Submit(ctx, 1, SubmitRequest{ProblemID: 10, Language: "java", Code: "class Main{}"})
	require.NoError(t, err)

	_, err = f.subs.Get(ctx, 1, model.RoleUser, view.SubmissionID)
	assert.NoError(t, err)
	_, err = f.subs.Get(ctx, 9, model.RoleAdmin, view.SubmissionID)
	assert.NoError(t, err)
	_, err = f.subs.Get(ctx, 2, model.RoleUser, view.SubmissionID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSubmissionService_VerdictIsWrittenOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.createContest(t, "Once", contestStart)
	id := f.addSubmission(t, c.ID, 1, 10, contestStart.Add(5*time.Minute))

	f.judge(t, id, model.VerdictWrongAnswer)
	f.judge(t, id, model.VerdictAccepted)

	view, err := f.subs.Get(ctx, 1, model.RoleUser, id)
	require.NoError(t, err)
	assert.Equal(t, model.VerdictWrongAnswer, view.Verdict)
	assert.Equal(t, 1, f.notifier.count())
}

func TestSubmissionService_Run(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stdin := "7 8"

	workerErr := make(chan error, 1)
	go func() {
		workerErr <- f.workOne(ctx, "script", func(job *model.ExecutionJob) ExecutionResult {
			if job.Run == nil || job.Run.Stdin == nil {
				return ExecutionResult{Report: &model.RunReport{Verdict: model.VerdictJudgeError}}
			}
			return ExecutionResult{Report: &model.RunReport{
				Verdict: model.VerdictAccepted,
				Samples: []model.SampleRun{{Sample: "1 2", Output: "3", Expected: "3", Verdict: model.VerdictAccepted}},
				Custom:  &model.CustomRun{Input: *job.Run.Stdin, Output: "15", Verdict: model.VerdictAccepted},
			}}
		})
	}()

	view, err := f.subs.Run(ctx, 1, RunRequest{ProblemID: 10, Language: "javascript", Code: "console.log(3)", Stdin: &stdin})
	require.NoError(t, err)
	require.NoError(t, <-workerErr)

	assert.Equal(t, model.VerdictAccepted, view.Verdict)
	require.Len(t, view.Samples, 1)
	require.NotNil(t, view.Custom)
	assert.Equal(t, "15", view.Custom.Output)

	again, err := f.subs.GetRun(ctx, 1, view.JobID)
	require.NoError(t, err)
	assert.Equal(t, view, again)

	_, err = f.subs.GetRun(ctx, 2, view.JobID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSubmissionService_RunStillJudging(t *testing.T) {
	f := newFixture(t)
	f.subs.wait = 10 * time.Millisecond
	ctx := context.Background()

	view, err := f.subs.Run(ctx, 1, RunRequest{ProblemID: 10, Language: "cpp", Code: "int main(){}"})
	require.NoError(t, err)
	assert.True(t, view.Judging())

	again, err := f.subs.GetRun(ctx, 1, view.JobID)
	require.NoError(t, err)
	assert.True(t, again.Judging())
}
