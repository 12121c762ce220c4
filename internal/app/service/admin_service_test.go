package service

import (
	"context"
	"testing"
	"time"

	"tle_zone_judge/internal/common"
	"tle_zone_judge/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminService_CancelQueuedSubmission(t *testing.T) {
	f := newFixture(t)
	f.subs.wait = 10 * time.Millisecond
	ctx := context.Background()

	view, err := f.subs.Submit(ctx, 1, SubmitRequest{ProblemID: 10, Language: "cpp", Code: "int main(){}"})
	require.NoError(t, err)
	require.True(t, view.Judging())

	ids, err := f.mr.List("test:queue:native")
	require.NoError(t, err)
	require.Len(t, ids, 1)

	job, err := f.admin.CancelJob(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, view.SubmissionID, job.SubmissionID)

	got, err := f.subs.Get(ctx, 1, model.RoleUser, view.SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, model.VerdictCancelled, got.Verdict)

	n, err := f.limit.InFlight(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)

	popped, err := f.queue.Pop(ctx, "native", 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, popped, "cancelled jobs are never handed to a worker")
}

func TestAdminService_CancelStartedJob(t *testing.T) {
	f := newFixture(t)
	f.subs.wait = 10 * time.Millisecond
	ctx := context.Background()

	_, err := f.subs.Submit(ctx, 1, SubmitRequest{ProblemID: 10, Language: "cpp", Code: "int main(){}"})
	require.NoError(t, err)
	job, err := f.queue.Pop(ctx, "native", time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)

	_, err = f.admin.CancelJob(ctx, job.ID)
	assert.ErrorIs(t, err, common.ErrJobAlreadyStarted)
	assert.Equal(t, 409, common.HTTPStatusFromError(err))

	_, err = f.admin.CancelJob(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestAdminService_CancelledContestSubmissionDoesNotBlockRatings(t *testing.T) {
	f := newFixture(t)
	f.subs.wait = 10 * time.Millisecond
	ctx := context.Background()
	c := f.createContest(t, "Cancel", contestStart)
	playRound(t, f, c.ID)

	_, err := f.subs.SubmitToContest(ctx, 2, c.ID, SubmitRequest{ProblemID: 10, Language: "cpp", Code: "int main(){}"})
	require.NoError(t, err)
	ids, err := f.mr.List("test:queue:native")
	require.NoError(t, err)
	require.Len(t, ids, 1)
	_, err = f.admin.CancelJob(ctx, ids[0])
	require.NoError(t, err)

	f.setNow(c.EndTime)
	update, err := f.ratings.UpdateRatings(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, update.Inserted)
}
