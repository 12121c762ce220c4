package service

import (
	"context"
	"testing"
	"time"

	"tle_zone_judge/internal/common"
	"tle_zone_judge/internal/domain/model"
	"tle_zone_judge/internal/domain/repository/memrepo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyIndex(t *testing.T) {
	epoch := time.Unix(0, 0).UTC()
	assert.Equal(t, 0, DailyIndex(epoch, 7))
	assert.Equal(t, 1, DailyIndex(epoch.Add(24*time.Hour), 7))
	assert.Equal(t, 0, DailyIndex(epoch.Add(7*24*time.Hour), 7))
	assert.Equal(t, DailyIndex(epoch.Add(3*time.Hour), 7), DailyIndex(epoch.Add(23*time.Hour), 7), "same UTC day")
	assert.Equal(t, 0, DailyIndex(epoch, 0))
}

func TestUntilCacheExpiry(t *testing.T) {
	now := time.Date(2024, 3, 1, 22, 30, 0, 0, time.UTC)
	assert.Equal(t, 90*time.Minute+time.Hour, untilCacheExpiry(now))
}

func TestProblemService_DailyIsCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.problems.Daily(ctx)
	require.NoError(t, err)
	want := []int64{10, 11}[DailyIndex(f.clock(), 2)]
	assert.Equal(t, want, p.ID)

	key := "potd:2024-03-01"
	assert.True(t, f.mr.Exists(key))
	assert.Equal(t, untilCacheExpiry(f.clock()), f.mr.TTL(key))

	// A newly published problem does not change the pick until the day rolls over.
	f.store.AddProblem(model.Problem{ID: 13, Title: "Late", Slug: "late", Difficulty: model.DifficultyEasy, Published: true})
	again, err := f.problems.Daily(ctx)
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)

	f.setNow(f.clock().Add(24 * time.Hour))
	next, err := f.problems.Daily(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11, 13}[DailyIndex(f.clock(), 3)], next.ID)
	assert.True(t, f.mr.Exists("potd:2024-03-02"))
}

func TestProblemService_DailyRebuildsCorruptCache(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mr.Set("potd:2024-03-01", "{not json"))

	p, err := f.problems.Daily(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11}[DailyIndex(f.clock(), 2)], p.ID)
}

func TestProblemService_DailyWithoutProblems(t *testing.T) {
	f := newFixture(t)
	svc := NewProblemService(memrepo.New().Problems(), f.rdb)

	_, err := svc.Daily(context.Background())
	assert.ErrorIs(t, err, common.ErrNotFound)
}
