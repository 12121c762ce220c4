package service

import (
	"context"
	"fmt"
	"time"

	"tle_zone_judge/internal/common"
	"tle_zone_judge/internal/domain/model"
	"tle_zone_judge/internal/domain/rating"
	"tle_zone_judge/internal/domain/repository"
	"tle_zone_judge/internal/domain/standings"
	"tle_zone_judge/internal/platform/logger"
	"tle_zone_judge/internal/platform/queue"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/redis/go-redis/v9"
)

type RatingService struct {
	contests    repository.ContestRepository
	submissions repository.SubmissionRepository
	users       repository.UserRepository
	ratings     repository.RatingRepository
	rdb         *redis.Client

	lockPrefix string
	lockTTL    time.Duration
	maxDelta   int
	now        func() time.Time
}

func NewRatingService(
	contests repository.ContestRepository,
	submissions repository.SubmissionRepository,
	users repository.UserRepository,
	ratings repository.RatingRepository,
	rdb *redis.Client,
	lockPrefix string,
	lockTTL time.Duration,
	maxDelta int,
) *RatingService {
	return &RatingService{
		contests:    contests,
		submissions: submissions,
		users:       users,
		ratings:     ratings,
		rdb:         rdb,
		lockPrefix:  lockPrefix,
		lockTTL:     lockTTL,
		maxDelta:    maxDelta,
		now:         time.Now,
	}
}

type RatingUpdate struct {
	ContestID    int64                `json:"contest_id"`
	Participants int                  `json:"participants"`
	Inserted     int                  `json:"inserted"`
	Records      []model.RatingRecord `json:"records"`
}

// UpdateRatings writes one rating record per ranked participant of an ended
// contest. It can be re-run safely: existing records are never touched and
// the computation is deterministic, so an interrupted run completes with the
// same numbers.
func (s *RatingService) UpdateRatings(ctx context.Context, contestID int64) (*RatingUpdate, error) {
	log := logger.FromContext(ctx).With("contest_id", contestID)

	contest, err := s.contests.FindByID(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if !contest.Ended(s.now()) {
		return nil, common.ErrContestRunning
	}

	lock, err := queue.AcquireLock(ctx, s.rdb, fmt.Sprintf("%s:rating-lock:%d", s.lockPrefix, contestID), s.lockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if held, err := lock.Release(ctx); err != nil || !held {
			log.Warn("rating lock was not released cleanly", "held", held, "error", err)
		}
	}()

	pending, err := s.submissions.CountPendingInContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if pending > 0 {
		return nil, fmt.Errorf("%d pending: %w", pending, common.ErrContestStillJudging)
	}

	states, err := s.contests.ListProblemStates(ctx, contestID)
	if err != nil {
		return nil, err
	}
	bannedIDs, err := s.users.ListBannedIDs(ctx)
	if err != nil {
		return nil, err
	}
	ranked := standings.Rank(states, mapset.NewSet(bannedIDs...))

	existing, err := s.ratings.ListByContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	done := mapset.NewThreadUnsafeSet[int64]()
	for _, rec := range existing {
		done.Add(rec.UserID)
	}

	update := &RatingUpdate{ContestID: contestID, Participants: len(ranked)}
	missing := false
	for _, e := range ranked {
		if !done.Contains(e.UserID) {
			missing = true
			break
		}
	}
	if !missing {
		update.Records = existing
		log.Info("ratings already up to date", "participants", len(ranked))
		return update, nil
	}

	participants := make([]rating.Participant, 0, len(ranked))
	for _, e := range ranked {
		before, ok, err := s.ratings.LatestBefore(ctx, e.UserID, contest.EndTime)
		if err != nil {
			return nil, err
		}
		if !ok {
			before = model.DefaultRating
		}
		participants = append(participants, rating.Participant{UserID: e.UserID, Rank: e.Rank, Rating: before})
	}

	for _, c := range rating.Compute(participants, s.maxDelta) {
		if done.Contains(c.UserID) {
			continue
		}
		inserted, err := s.ratings.InsertIfAbsent(ctx, model.RatingRecord{
			ContestID:    contestID,
			UserID:       c.UserID,
			RatingBefore: c.Before,
			RatingAfter:  c.After,
			RatingChange: c.Delta,
		})
		if err != nil {
			return nil, err
		}
		if inserted {
			update.Inserted++
		}
	}

	update.Records, err = s.ratings.ListByContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	log.Info("ratings updated", "participants", len(ranked), "inserted", update.Inserted)
	return update, nil
}
