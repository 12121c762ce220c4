package queue

import (
	"context"
	"testing"
	"time"

	"tle_zone_judge/internal/common"
	"tle_zone_judge/internal/domain/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func testJob(id, partition string) *model.ExecutionJob {
	return &model.ExecutionJob{
		ID:           id,
		Mode:         model.ModeSubmit,
		SubmissionID: 42,
		UserID:       7,
		ProblemID:    3,
		Language:     model.LanguageCpp,
		Partition:    partition,
		EnqueuedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestJobQueue_EnqueuePopFIFO(t *testing.T) {
	_, rdb := newTestRedis(t)
	q := NewJobQueue(rdb, "test")
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testJob("a", "native")))
	require.NoError(t, q.Enqueue(ctx, testJob("b", "native")))

	first, err := q.Pop(ctx, "native", time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "a", first.ID)
	assert.Equal(t, int64(42), first.SubmissionID)

	state, err := q.State(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, state)

	second, err := q.Pop(ctx, "native", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "b", second.ID)
}

func TestJobQueue_PartitionsAreIndependent(t *testing.T) {
	_, rdb := newTestRedis(t)
	q := NewJobQueue(rdb, "test")
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testJob("java-1", "jvm")))

	n, err := q.Len(ctx, "native")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = q.Len(ctx, "jvm")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestJobQueue_CancelQueued(t *testing.T) {
	_, rdb := newTestRedis(t)
	q := NewJobQueue(rdb, "test")
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testJob("a", "script")))

	job, err := q.Cancel(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(42), job.SubmissionID)

	state, err := q.State(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, state)

	n, err := q.Len(ctx, "script")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestJobQueue_CancelAfterClaimFails(t *testing.T) {
	_, rdb := newTestRedis(t)
	q := NewJobQueue(rdb, "test")
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testJob("a", "native")))
	_, err := q.Pop(ctx, "native", time.Second)
	require.NoError(t, err)

	_, err = q.Cancel(ctx, "a")
	assert.ErrorIs(t, err, common.ErrJobAlreadyStarted)

	_, err = q.Cancel(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestJobQueue_PopSkipsCancelledJob(t *testing.T) {
	_, rdb := newTestRedis(t)
	q := NewJobQueue(rdb, "test")
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testJob("a", "native")))
	// Simulate a cancel that lost the race with LREM.
	require.NoError(t, rdb.Set(ctx, q.stateKey("a"), model.JobStatusCancelled, 0).Err())

	job, err := q.Pop(ctx, "native", time.Second)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestJobQueue_FinishExpires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	q := NewJobQueue(rdb, "test")
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testJob("a", "native")))
	_, err := q.Pop(ctx, "native", time.Second)
	require.NoError(t, err)
	first, err := q.Finish(ctx, "a")
	require.NoError(t, err)
	assert.True(t, first)
	again, err := q.Finish(ctx, "a")
	require.NoError(t, err)
	assert.False(t, again, "only the first finisher owns the job")

	state, err := q.State(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDone, state)

	mr.FastForward(2 * time.Hour)
	_, err = q.State(ctx, "a")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestJobQueue_StaleListsOldClaims(t *testing.T) {
	_, rdb := newTestRedis(t)
	q := NewJobQueue(rdb, "test")
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testJob("a", "native")))
	require.NoError(t, q.Enqueue(ctx, testJob("b", "native")))
	_, err := q.Pop(ctx, "native", time.Second)
	require.NoError(t, err)

	stale, err := q.Stale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, stale)

	stale, err = q.Stale(ctx, -time.Second)
	require.NoError(t, err)
	require.Len(t, stale, 1, "queued jobs are never stale")
	assert.Equal(t, "a", stale[0].ID)

	_, err = q.Finish(ctx, "a")
	require.NoError(t, err)
	stale, err = q.Stale(ctx, -time.Second)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestJobQueue_StaleDropsVanishedPayload(t *testing.T) {
	_, rdb := newTestRedis(t)
	q := NewJobQueue(rdb, "test")
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testJob("a", "native")))
	_, err := q.Pop(ctx, "native", time.Second)
	require.NoError(t, err)
	require.NoError(t, rdb.Del(ctx, q.jobKey("a")).Err())

	stale, err := q.Stale(ctx, -time.Second)
	require.NoError(t, err)
	assert.Empty(t, stale)
	n, err := rdb.ZCard(ctx, q.runningKey()).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLimiter_AcquireRelease(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := NewLimiter(rdb, "test", time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Acquire(ctx, 7, 2)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Acquire(ctx, 7, 2)
	require.NoError(t, err)
	assert.False(t, ok, "third slot must be refused")

	n, err := l.InFlight(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Other users are unaffected.
	ok, err = l.Acquire(ctx, 8, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, l.Release(ctx, 7))
	ok, err = l.Acquire(ctx, 7, 2)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLimiter_ReleaseNeverGoesNegative(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := NewLimiter(rdb, "test", time.Minute)
	ctx := context.Background()

	require.NoError(t, l.Release(ctx, 7))
	require.NoError(t, l.Release(ctx, 7))

	n, err := l.InFlight(ctx, 7)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLimiter_SlotsExpire(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewLimiter(rdb, "test", time.Minute)
	ctx := context.Background()

	ok, err := l.Acquire(ctx, 7, 1)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = l.Acquire(ctx, 7, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLock_ExclusiveAndOwnedRelease(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	lock, err := AcquireLock(ctx, rdb, "test:lock", time.Minute)
	require.NoError(t, err)

	_, err = AcquireLock(ctx, rdb, "test:lock", time.Minute)
	assert.ErrorIs(t, err, common.ErrJobLockFailed)

	released, err := lock.Release(ctx)
	require.NoError(t, err)
	assert.True(t, released)

	// An expired lock taken over by another owner is left alone.
	lock, err = AcquireLock(ctx, rdb, "test:lock", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)
	other, err := AcquireLock(ctx, rdb, "test:lock", time.Minute)
	require.NoError(t, err)

	released, err = lock.Release(ctx)
	require.NoError(t, err)
	assert.False(t, released)
	assert.True(t, mr.Exists("test:lock"))

	released, err = other.Release(ctx)
	require.NoError(t, err)
	assert.True(t, released)
}

func TestResultStore_PutGet(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewResultStore(rdb, "test", time.Minute)
	ctx := context.Background()

	_, err := s.Get(ctx, "nope")
	assert.ErrorIs(t, err, common.ErrNotFound)

	report := &model.RunReport{
		Verdict: model.VerdictWrongAnswer,
		Samples: []model.SampleRun{{Sample: "1 2", Output: "4", Expected: "3", Verdict: model.VerdictWrongAnswer}},
	}
	require.NoError(t, s.Put(ctx, "job-1", report))

	got, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, report, got)

	mr.FastForward(2 * time.Minute)
	_, err = s.Get(ctx, "job-1")
	assert.ErrorIs(t, err, common.ErrNotFound)
}
