package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tle_zone_judge/internal/common"
	"tle_zone_judge/internal/domain/model"

	"github.com/redis/go-redis/v9"
)

// ResultStore holds run-mode reports until they expire. Nothing about a run
// is written to the database.
type ResultStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewResultStore(rdb *redis.Client, prefix string, ttl time.Duration) *ResultStore {
	return &ResultStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *ResultStore) key(jobID string) string {
	return fmt.Sprintf("%s:result:%s", s.prefix, jobID)
}

func (s *ResultStore) Put(ctx context.Context, jobID string, report *model.RunReport) error {
	b, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("results.Put: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(jobID), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("results.Put: %w", err)
	}
	return nil
}

func (s *ResultStore) Get(ctx context.Context, jobID string) (*model.RunReport, error) {
	b, err := s.rdb.Get(ctx, s.key(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("results.Get: %w", err)
	}
	var report model.RunReport
	if err := json.Unmarshal(b, &report); err != nil {
		return nil, fmt.Errorf("results.Get: %w", err)
	}
	return &report, nil
}
