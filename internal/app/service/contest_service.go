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
	"tle_zone_judge/internal/domain/standings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gosimple/slug"
)

type ContestService struct {
	contests repository.ContestRepository
	problems repository.ProblemRepository
	users    repository.UserRepository
	ratings  repository.RatingRepository
}

func NewContestService(
	contests repository.ContestRepository,
	problems repository.ProblemRepository,
	users repository.UserRepository,
	ratings repository.RatingRepository,
) *ContestService {
	return &ContestService{contests: contests, problems: problems, users: users, ratings: ratings}
}

type CreateContestRequest struct {
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	ProblemIDs []int64   `json:"problem_ids"`
}

// Create stores a contest. Problems are indexed from 1 in the order given.
func (s *ContestService) Create(ctx context.Context, req CreateContestRequest) (*model.Contest, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("contest name is required: %w", common.ErrValidation)
	}
	if !req.EndTime.After(req.StartTime) {
		return nil, fmt.Errorf("end_time must be after start_time: %w", common.ErrValidation)
	}
	if len(req.ProblemIDs) == 0 {
		return nil, fmt.Errorf("a contest needs at least one problem: %w", common.ErrValidation)
	}

	seen := mapset.NewThreadUnsafeSet[int64]()
	contest := &model.Contest{
		Name:      name,
		Slug:      slug.Make(name),
		StartTime: req.StartTime.UTC(),
		EndTime:   req.EndTime.UTC(),
	}
	for i, id := range req.ProblemIDs {
		if !seen.Add(id) {
			return nil, fmt.Errorf("problem %d listed twice: %w", id, common.ErrValidation)
		}
		p, err := s.problems.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return nil, fmt.Errorf("problem %d does not exist: %w", id, common.ErrValidation)
			}
			return nil, err
		}
		contest.Problems = append(contest.Problems, model.ContestProblem{
			Index:      i + 1,
			ProblemID:  id,
			Difficulty: p.Difficulty,
		})
	}

	if err := s.contests.Create(ctx, nil, contest); err != nil {
		return nil, err
	}
	return contest, nil
}

func (s *ContestService) Get(ctx context.Context, id int64) (*model.Contest, error) {
	return s.contests.FindByID(ctx, id)
}

func (s *ContestService) bannedSet(ctx context.Context) (mapset.Set[int64], error) {
	ids, err := s.users.ListBannedIDs(ctx)
	if err != nil {
		return nil, err
	}
	return mapset.NewSet(ids...), nil
}

// Leaderboard ranks everyone who attempted at least one problem. Banned users
// are left out before ranks are assigned.
func (s *ContestService) Leaderboard(ctx context.Context, contestID int64) ([]model.LeaderboardEntry, error) {
	if _, err := s.contests.FindByID(ctx, contestID); err != nil {
		return nil, err
	}
	states, err := s.contests.ListProblemStates(ctx, contestID)
	if err != nil {
		return nil, err
	}
	banned, err := s.bannedSet(ctx)
	if err != nil {
		return nil, err
	}

	entries := standings.Rank(states, banned)
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.UserID
	}
	names, err := s.users.UsernamesByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Username = names[entries[i].UserID]
	}
	return entries, nil
}

func (s *ContestService) Results(ctx context.Context, contestID, userID int64) ([]model.ProblemResult, error) {
	contest, err := s.contests.FindByID(ctx, contestID)
	if err != nil {
		return nil, err
	}
	states, err := s.contests.ListUserProblemStates(ctx, contestID, userID)
	if err != nil {
		return nil, err
	}
	return standings.Results(contest, states), nil
}

func (s *ContestService) Ratings(ctx context.Context, contestID int64) ([]model.RatingRecord, error) {
	if _, err := s.contests.FindByID(ctx, contestID); err != nil {
		return nil, err
	}
	return s.ratings.ListByContest(ctx, contestID)
}
