package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"tle_zone_judge/internal/domain/model"
	"tle_zone_judge/internal/domain/repository/memrepo"
	"tle_zone_judge/internal/judge/language"
	"tle_zone_judge/internal/notify"
	"tle_zone_judge/internal/platform/database"
	"tle_zone_judge/internal/platform/queue"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var contestStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type fixture struct {
	mr    *miniredis.Miniredis
	rdb   *redis.Client
	store *memrepo.Store
	queue *queue.JobQueue
	limit *queue.Limiter
	runs  *queue.ResultStore

	jobs     *ExecutionJobService
	agg      *ContestAggregator
	results  *ResultService
	subs     *SubmissionService
	contests *ContestService
	ratings  *RatingService
	admin    *AdminService
	problems *ProblemService
	notifier *recordingNotifier

	mu  sync.Mutex
	now time.Time
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) setNow(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store := memrepo.New()
	for _, u := range []model.User{
		{ID: 1, Username: "alice", Role: model.RoleUser},
		{ID: 2, Username: "bob", Role: model.RoleUser},
		{ID: 3, Username: "carol", Role: model.RoleUser, IsPremium: true},
		{ID: 9, Username: "root", Role: model.RoleAdmin},
	} {
		store.AddUser(u)
	}
	store.AddProblem(model.Problem{ID: 10, Title: "A+B", Slug: "a-plus-b", Difficulty: model.DifficultyEasy, Published: true},
		model.TestCase{Ordinal: 1, Input: "1 2", Expected: "3", Visibility: model.VisibilitySample},
		model.TestCase{Ordinal: 2, Input: "5 5", Expected: "10", Visibility: model.VisibilityHidden},
	)
	store.AddProblem(model.Problem{ID: 11, Title: "Graphs", Slug: "graphs", Difficulty: model.DifficultyHard, Published: true})
	store.AddProblem(model.Problem{ID: 12, Title: "Draft", Slug: "draft", Difficulty: model.DifficultyMedium})

	f := &fixture{
		mr:       mr,
		rdb:      rdb,
		store:    store,
		queue:    queue.NewJobQueue(rdb, "test"),
		limit:    queue.NewLimiter(rdb, "test", time.Minute),
		runs:     queue.NewResultStore(rdb, "test", time.Minute),
		notifier: &recordingNotifier{},
		now:      contestStart.Add(30 * time.Minute),
	}

	f.jobs = NewExecutionJobService(f.queue, f.limit, language.Default(), JobLimits{MaxInflight: 2, MaxInflightPremium: 5})
	f.agg = NewContestAggregator(store.Contests(), store.Submissions(), database.NoTx{})
	f.results = NewResultService(store.Submissions(), f.agg, f.runs, f.notifier, f.jobs, database.NoTx{})
	f.subs = NewSubmissionService(store.Submissions(), store.Problems(), store.Contests(), store.Users(), f.jobs, f.runs, 1024, 2*time.Second)
	f.subs.now = f.clock
	f.contests = NewContestService(store.Contests(), store.Problems(), store.Users(), store.Ratings())
	f.ratings = NewRatingService(store.Contests(), store.Submissions(), store.Users(), store.Ratings(), rdb, "test", time.Minute, 150)
	f.ratings.now = f.clock
	f.admin = NewAdminService(store.Users(), f.jobs, f.results)
	f.problems = NewProblemService(store.Problems(), rdb)
	f.problems.now = f.clock
	return f
}

// createContest opens a two hour contest over problems 10 and 11.
func (f *fixture) createContest(t *testing.T, name string, start time.Time) *model.Contest {
	t.Helper()
	c, err := f.contests.Create(context.Background(), CreateContestRequest{
		Name:       name,
		StartTime:  start,
		EndTime:    start.Add(2 * time.Hour),
		ProblemIDs: []int64{10, 11},
	})
	require.NoError(t, err)
	return c
}

// addSubmission stores a contest submission directly, bypassing the queue.
func (f *fixture) addSubmission(t *testing.T, contestID, userID, problemID int64, at time.Time) int64 {
	t.Helper()
	sub := &model.Submission{
		UserID: userID, ProblemID: problemID, ContestID: &contestID,
		Language: model.LanguageCpp, Code: "int main(){}", Mode: model.ModeSubmit, CreatedAt: at,
	}
	require.NoError(t, f.store.Submissions().Create(context.Background(), nil, sub))
	return sub.ID
}

func (f *fixture) judge(t *testing.T, submissionID int64, v model.Verdict) {
	t.Helper()
	require.NoError(t, f.results.RecordVerdict(context.Background(), submissionID, model.Judgement{
		Verdict: v, RuntimeMs: 5, MemoryKb: 1024, Details: model.JudgeDetails{Samples: []model.SampleVerdict{}},
	}))
}

// workOne plays the worker: it pops one job from the partition and answers it.
func (f *fixture) workOne(ctx context.Context, partition string, answer func(*model.ExecutionJob) ExecutionResult) error {
	for i := 0; i < 5; i++ {
		job, err := f.queue.Pop(ctx, partition, time.Second)
		if err != nil {
			return err
		}
		if job == nil {
			continue
		}
		if err := f.results.HandleExecutionResult(ctx, job, answer(job)); err != nil {
			return err
		}
		f.jobs.Done(ctx, job)
		return nil
	}
	return context.DeadlineExceeded
}
