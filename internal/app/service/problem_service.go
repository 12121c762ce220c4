package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tle_zone_judge/internal/common"
	"tle_zone_judge/internal/domain/model"
	"tle_zone_judge/internal/domain/repository"
	"tle_zone_judge/internal/platform/logger"
	"tle_zone_judge/internal/platform/queue"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	dailyCacheGrace = time.Hour
	dailyFillLock   = 10 * time.Second
	dailyFillWait   = 50 * time.Millisecond
	dailyFillTries  = 40
)

// ProblemService serves the problem of the day. The pick is a pure function
// of the UTC date, so a cache miss can always be recomputed.
type ProblemService struct {
	problems repository.ProblemRepository
	rdb      *redis.Client
	group    singleflight.Group
	now      func() time.Time
}

func NewProblemService(problems repository.ProblemRepository, rdb *redis.Client) *ProblemService {
	return &ProblemService{problems: problems, rdb: rdb, now: time.Now}
}

// DailyIndex picks the offset into the id-ordered published problems.
func DailyIndex(day time.Time, published int) int {
	if published <= 0 {
		return 0
	}
	days := day.UTC().Unix() / int64(24*time.Hour/time.Second)
	return int(days % int64(published))
}

func dailyKey(day time.Time) string {
	return "potd:" + day.UTC().Format(time.DateOnly)
}

// untilCacheExpiry runs to the next UTC midnight plus a grace period.
func untilCacheExpiry(now time.Time) time.Duration {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return midnight.Sub(now) + dailyCacheGrace
}

func (s *ProblemService) Daily(ctx context.Context) (*model.Problem, error) {
	now := s.now()
	key := dailyKey(now)
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.daily(ctx, key, now)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Problem), nil
}

func (s *ProblemService) daily(ctx context.Context, key string, now time.Time) (*model.Problem, error) {
	if p, err := s.cached(ctx, key); err != nil || p != nil {
		return p, err
	}

	lock, err := queue.AcquireLock(ctx, s.rdb, key+":lock", dailyFillLock)
	if errors.Is(err, common.ErrJobLockFailed) {
		// Another process is filling the cache; wait for it briefly.
		for i := 0; i < dailyFillTries; i++ {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(dailyFillWait):
			}
			if p, err := s.cached(ctx, key); err != nil || p != nil {
				return p, err
			}
		}
		return s.derive(ctx, now)
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if _, err := lock.Release(ctx); err != nil {
			logger.FromContext(ctx).Warn("could not release daily problem lock", "error", err)
		}
	}()

	p, err := s.derive(ctx, now)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("daily problem: %w", err)
	}
	if err := s.rdb.Set(ctx, key, b, untilCacheExpiry(now)).Err(); err != nil {
		logger.FromContext(ctx).Warn("could not cache daily problem", "key", key, "error", err)
	}
	return p, nil
}

func (s *ProblemService) cached(ctx context.Context, key string) (*model.Problem, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("daily problem cache: %w", err)
	}
	var p model.Problem
	if err := json.Unmarshal(b, &p); err != nil {
		// A corrupt entry is rebuilt from the date.
		return nil, nil
	}
	return &p, nil
}

func (s *ProblemService) derive(ctx context.Context, now time.Time) (*model.Problem, error) {
	n, err := s.problems.CountPublished(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("no published problems: %w", common.ErrNotFound)
	}
	return s.problems.FindPublishedByOffset(ctx, DailyIndex(now, n))
}
