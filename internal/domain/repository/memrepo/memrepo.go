// Package memrepo keeps every repository in process memory for service tests.
package memrepo

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"tle_zone_judge/internal/common"
	"tle_zone_judge/internal/domain/model"
	"tle_zone_judge/internal/domain/repository"
)

type stateKey struct {
	contestID, userID, problemID int64
}

type ratingKey struct {
	contestID, userID int64
}

type Store struct {
	mu sync.Mutex

	users       map[int64]model.User
	problems    map[int64]model.Problem
	tests       map[int64][]model.TestCase
	contests    map[int64]model.Contest
	submissions map[int64]model.Submission
	states      map[stateKey]model.ProblemState
	ratings     map[ratingKey]model.RatingRecord

	nextSubmission int64
	nextContest    int64
}

func New() *Store {
	return &Store{
		users:       make(map[int64]model.User),
		problems:    make(map[int64]model.Problem),
		tests:       make(map[int64][]model.TestCase),
		contests:    make(map[int64]model.Contest),
		submissions: make(map[int64]model.Submission),
		states:      make(map[stateKey]model.ProblemState),
		ratings:     make(map[ratingKey]model.RatingRecord),
	}
}

func (s *Store) AddUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *Store) AddProblem(p model.Problem, tests ...model.TestCase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.problems[p.ID] = p
	for i := range tests {
		tests[i].ProblemID = p.ID
	}
	s.tests[p.ID] = tests
}

// AddRating seeds a historical rating record.
func (s *Store) AddRating(rec model.RatingRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratings[ratingKey{rec.ContestID, rec.UserID}] = rec
}

func (s *Store) Submissions() repository.SubmissionRepository { return submissions{s} }
func (s *Store) Problems() repository.ProblemRepository       { return problems{s} }
func (s *Store) Users() repository.UserRepository             { return users{s} }
func (s *Store) Contests() repository.ContestRepository       { return contests{s} }
func (s *Store) Ratings() repository.RatingRepository         { return ratings{s} }

type submissions struct{ s *Store }

func (r submissions) Create(_ context.Context, _ *sql.Tx, sub *model.Submission) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextSubmission++
	sub.ID = r.s.nextSubmission
	r.s.submissions[sub.ID] = *sub
	return nil
}

func (r submissions) FindByID(_ context.Context, id int64) (*model.Submission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.submissions[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &sub, nil
}

func (r submissions) SetVerdict(_ context.Context, _ *sql.Tx, id int64, j model.Judgement, judgedAt time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.submissions[id]
	if !ok || sub.Verdict != nil {
		return false, nil
	}
	v, rt, mem, details := j.Verdict, j.RuntimeMs, j.MemoryKb, j.Details
	sub.Verdict, sub.RuntimeMs, sub.MemoryKb, sub.Details, sub.JudgedAt = &v, &rt, &mem, &details, &judgedAt
	r.s.submissions[id] = sub
	return true, nil
}

func (r submissions) ListForContestUserProblem(_ context.Context, _ *sql.Tx, contestID, userID, problemID int64) ([]model.Submission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Submission
	for _, sub := range r.s.submissions {
		if sub.ContestID != nil && *sub.ContestID == contestID && sub.UserID == userID &&
			sub.ProblemID == problemID && sub.Mode == model.ModeSubmit {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r submissions) CountPendingInContest(_ context.Context, contestID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, sub := range r.s.submissions {
		if sub.ContestID != nil && *sub.ContestID == contestID && sub.Verdict == nil {
			n++
		}
	}
	return n, nil
}

type problems struct{ s *Store }

func (r problems) FindByID(_ context.Context, id int64) (*model.Problem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.problems[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &p, nil
}

func (r problems) ListTestCases(_ context.Context, problemID int64) ([]model.TestCase, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tests := append([]model.TestCase(nil), r.s.tests[problemID]...)
	sort.Slice(tests, func(i, j int) bool { return tests[i].Ordinal < tests[j].Ordinal })
	return tests, nil
}

func (r problems) published() []model.Problem {
	var out []model.Problem
	for _, p := range r.s.problems {
		if p.Published {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r problems) CountPublished(context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.published()), nil
}

func (r problems) FindPublishedByOffset(_ context.Context, offset int) (*model.Problem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	pub := r.published()
	if offset < 0 || offset >= len(pub) {
		return nil, common.ErrNotFound
	}
	return &pub[offset], nil
}

type users struct{ s *Store }

func (r users) FindByID(_ context.Context, id int64) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &u, nil
}

func (r users) ListBannedIDs(context.Context) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []int64
	for id, u := range r.s.users {
		if u.IsBanned {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r users) Ban(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return common.ErrNotFound
	}
	u.IsBanned = true
	r.s.users[id] = u
	return nil
}

func (r users) UsernamesByID(_ context.Context, ids []int64) (map[int64]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	names := make(map[int64]string, len(ids))
	for _, id := range ids {
		if u, ok := r.s.users[id]; ok {
			names[id] = u.Username
		}
	}
	return names, nil
}

type contests struct{ s *Store }

func (r contests) Create(_ context.Context, _ *sql.Tx, c *model.Contest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.contests {
		if existing.Slug == c.Slug {
			return common.ErrConflict
		}
	}
	r.s.nextContest++
	c.ID = r.s.nextContest
	c.CreatedAt = time.Now()
	for i := range c.Problems {
		c.Problems[i].ContestID = c.ID
		if p, ok := r.s.problems[c.Problems[i].ProblemID]; ok {
			c.Problems[i].Difficulty = p.Difficulty
		}
	}
	stored := *c
	stored.Problems = append([]model.ContestProblem(nil), c.Problems...)
	r.s.contests[c.ID] = stored
	return nil
}

func (r contests) FindByID(_ context.Context, id int64) (*model.Contest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.contests[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	c.Problems = append([]model.ContestProblem(nil), c.Problems...)
	sort.Slice(c.Problems, func(i, j int) bool { return c.Problems[i].Index < c.Problems[j].Index })
	return &c, nil
}

func (r contests) LockProblemState(_ context.Context, _ *sql.Tx, contestID, userID, problemID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := stateKey{contestID, userID, problemID}
	if _, ok := r.s.states[k]; !ok {
		r.s.states[k] = model.ProblemState{ContestID: contestID, UserID: userID, ProblemID: problemID}
	}
	return nil
}

func (r contests) SaveProblemState(_ context.Context, _ *sql.Tx, st model.ProblemState) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.states[stateKey{st.ContestID, st.UserID, st.ProblemID}] = st
	return nil
}

func (r contests) list(match func(stateKey) bool) []model.ProblemState {
	var out []model.ProblemState
	for k, st := range r.s.states {
		if match(k) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].ProblemID < out[j].ProblemID
	})
	return out
}

func (r contests) ListProblemStates(_ context.Context, contestID int64) ([]model.ProblemState, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.list(func(k stateKey) bool { return k.contestID == contestID }), nil
}

func (r contests) ListUserProblemStates(_ context.Context, contestID, userID int64) ([]model.ProblemState, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.list(func(k stateKey) bool { return k.contestID == contestID && k.userID == userID }), nil
}

type ratings struct{ s *Store }

func (r ratings) ListByContest(_ context.Context, contestID int64) ([]model.RatingRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.RatingRecord{}
	for k, rec := range r.s.ratings {
		if k.contestID == contestID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RatingChange != out[j].RatingChange {
			return out[i].RatingChange > out[j].RatingChange
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (r ratings) LatestBefore(_ context.Context, userID int64, before time.Time) (int, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var (
		best    model.RatingRecord
		bestEnd time.Time
		found   bool
	)
	for k, rec := range r.s.ratings {
		if k.userID != userID {
			continue
		}
		c, ok := r.s.contests[k.contestID]
		if !ok || !c.EndTime.Before(before) {
			continue
		}
		if !found || c.EndTime.After(bestEnd) {
			best, bestEnd, found = rec, c.EndTime, true
		}
	}
	return best.RatingAfter, found, nil
}

func (r ratings) InsertIfAbsent(_ context.Context, rec model.RatingRecord) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := ratingKey{rec.ContestID, rec.UserID}
	if _, ok := r.s.ratings[k]; ok {
		return false, nil
	}
	rec.CreatedAt = time.Now()
	r.s.ratings[k] = rec
	return true, nil
}
