package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"tle_zone_judge/internal/domain/model"
	"tle_zone_judge/internal/domain/repository"
	"tle_zone_judge/internal/domain/standings"
	"tle_zone_judge/internal/platform/database"

	"github.com/puzpuzpuz/xsync/v3"
)

type stateKey struct {
	contestID, userID, problemID int64
}

// ContestAggregator keeps contest_problem_states in step with judged
// submissions. Every apply re-reads the key's submissions and folds them from
// scratch, so the order in which verdicts arrive does not matter.
type ContestAggregator struct {
	contests    repository.ContestRepository
	submissions repository.SubmissionRepository
	tx          database.Transactor

	// Row locks serialize across processes; this serializes within one
	// process for stores without row locks. Entries live while in use.
	locks *xsync.MapOf[stateKey, *keyLock]
}

type keyLock struct {
	sync.Mutex
	refs int
}

func NewContestAggregator(contests repository.ContestRepository, submissions repository.SubmissionRepository, tx database.Transactor) *ContestAggregator {
	return &ContestAggregator{
		contests:    contests,
		submissions: submissions,
		tx:          tx,
		locks:       xsync.NewMapOf[stateKey, *keyLock](),
	}
}

func (a *ContestAggregator) Apply(ctx context.Context, contestID, userID, problemID int64) (model.ProblemState, error) {
	var st model.ProblemState
	err := a.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		var err error
		st, err = a.ApplyTx(ctx, tx, contestID, userID, problemID)
		return err
	})
	return st, err
}

// ApplyTx refolds one (contest, user, problem) key inside tx.
func (a *ContestAggregator) ApplyTx(ctx context.Context, tx *sql.Tx, contestID, userID, problemID int64) (model.ProblemState, error) {
	key := stateKey{contestID, userID, problemID}
	mu := a.lock(key)
	defer a.unlock(key, mu)

	contest, err := a.contests.FindByID(ctx, contestID)
	if err != nil {
		return model.ProblemState{}, fmt.Errorf("aggregate contest %d: %w", contestID, err)
	}
	if err := a.contests.LockProblemState(ctx, tx, contestID, userID, problemID); err != nil {
		return model.ProblemState{}, err
	}
	subs, err := a.submissions.ListForContestUserProblem(ctx, tx, contestID, userID, problemID)
	if err != nil {
		return model.ProblemState{}, err
	}

	st := standings.FoldProblem(contest, userID, problemID, subs)
	if err := a.contests.SaveProblemState(ctx, tx, st); err != nil {
		return model.ProblemState{}, err
	}
	return st, nil
}

func (a *ContestAggregator) lock(key stateKey) *keyLock {
	l, _ := a.locks.Compute(key, func(old *keyLock, loaded bool) (*keyLock, bool) {
		if !loaded {
			old = &keyLock{}
		}
		old.refs++
		return old, false
	})
	l.Lock()
	return l
}

func (a *ContestAggregator) unlock(key stateKey, l *keyLock) {
	l.Unlock()
	a.locks.Compute(key, func(old *keyLock, loaded bool) (*keyLock, bool) {
		old.refs--
		return old, old.refs == 0
	})
}
