package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"tle_zone_judge/internal/common"
	"tle_zone_judge/internal/domain/model"

	"github.com/redis/go-redis/v9"
)

// finishedJobTTL bounds how long payload and state linger after a job ends.
const finishedJobTTL = time.Hour

// claimScript moves a job from queued to running and records the claim time
// in the running set. Anything else means the job was cancelled while it sat
// in the list and must be dropped.
var claimScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == "queued" then
    redis.call("set", KEYS[1], "running")
    redis.call("zadd", KEYS[2], ARGV[1], ARGV[2])
    return 1
else
    return 0
end
`)

// cancelScript returns 1 when a queued job was cancelled, 0 when it already
// left the queue and -1 when the job is unknown.
var cancelScript = redis.NewScript(`
local state = redis.call("get", KEYS[1])
if not state then
    return -1
end
if state == "queued" then
    redis.call("set", KEYS[1], "cancelled")
    redis.call("lrem", KEYS[2], 0, ARGV[1])
    redis.call("expire", KEYS[1], ARGV[2])
    redis.call("expire", KEYS[3], ARGV[2])
    return 1
end
return 0
`)

// JobQueue keeps one Redis list per language partition. Job payloads and their
// state live in separate keys so that a cancel never races a pop. Claimed jobs
// stay in a sorted set scored by claim time until they are finished, which is
// how jobs orphaned by a dead worker are found again.
type JobQueue struct {
	rdb    *redis.Client
	prefix string
}

func NewJobQueue(rdb *redis.Client, prefix string) *JobQueue {
	return &JobQueue{rdb: rdb, prefix: prefix}
}

func (q *JobQueue) listKey(partition string) string {
	return fmt.Sprintf("%s:queue:%s", q.prefix, partition)
}

func (q *JobQueue) runningKey() string {
	return q.prefix + ":running"
}

func (q *JobQueue) jobKey(id string) string {
	return fmt.Sprintf("%s:job:%s", q.prefix, id)
}

func (q *JobQueue) stateKey(id string) string {
	return fmt.Sprintf("%s:job:%s:state", q.prefix, id)
}

func (q *JobQueue) Enqueue(ctx context.Context, job *model.ExecutionJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue.Enqueue: marshal job %s: %w", job.ID, err)
	}
	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, q.jobKey(job.ID), payload, 0)
		p.Set(ctx, q.stateKey(job.ID), model.JobStatusQueued, 0)
		p.LPush(ctx, q.listKey(job.Partition), job.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("queue.Enqueue: push job %s: %w", job.ID, err)
	}
	return nil
}

// Pop blocks up to timeout for the next job of a partition and claims it.
// It returns (nil, nil) when the wait times out or the popped job had been
// cancelled.
func (q *JobQueue) Pop(ctx context.Context, partition string, timeout time.Duration) (*model.ExecutionJob, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.listKey(partition)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(res) < 2 || res[1] == "" {
		return nil, nil
	}
	id := res[1]

	keys := []string{q.stateKey(id), q.runningKey()}
	claimed, err := claimScript.Run(ctx, q.rdb, keys, time.Now().UnixMilli(), id).Int()
	if err != nil {
		return nil, fmt.Errorf("queue.Pop: claim job %s: %w", id, err)
	}
	if claimed == 0 {
		return nil, nil
	}

	job, err := q.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("queue.Pop: %w", err)
	}
	return job, nil
}

func (q *JobQueue) Get(ctx context.Context, id string) (*model.ExecutionJob, error) {
	raw, err := q.rdb.Get(ctx, q.jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	var job model.ExecutionJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

func (q *JobQueue) State(ctx context.Context, id string) (string, error) {
	state, err := q.rdb.Get(ctx, q.stateKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", common.ErrNotFound
		}
		return "", fmt.Errorf("queue.State: %w", err)
	}
	return state, nil
}

// Cancel removes a job that no worker has claimed yet.
func (q *JobQueue) Cancel(ctx context.Context, id string) (*model.ExecutionJob, error) {
	job, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	keys := []string{q.stateKey(id), q.listKey(job.Partition), q.jobKey(id)}
	res, err := cancelScript.Run(ctx, q.rdb, keys, id, int(finishedJobTTL.Seconds())).Int()
	if err != nil {
		return nil, fmt.Errorf("queue.Cancel: %w", err)
	}
	switch res {
	case 1:
		return job, nil
	case -1:
		return nil, common.ErrNotFound
	default:
		return nil, common.ErrJobAlreadyStarted
	}
}

// Finish marks a claimed job done and lets its keys expire. It reports whether
// this call took the job out of the running set, so that of a worker and a
// reaper finishing the same job only one sees true.
func (q *JobQueue) Finish(ctx context.Context, id string) (bool, error) {
	var removed *redis.IntCmd
	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		removed = p.ZRem(ctx, q.runningKey(), id)
		p.Set(ctx, q.stateKey(id), model.JobStatusDone, finishedJobTTL)
		p.Expire(ctx, q.jobKey(id), finishedJobTTL)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("queue.Finish: %w", err)
	}
	return removed.Val() == 1, nil
}

// Stale lists running jobs claimed more than olderThan ago. A running entry
// whose payload is gone is dropped from the set.
func (q *JobQueue) Stale(ctx context.Context, olderThan time.Duration) ([]*model.ExecutionJob, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	ids, err := q.rdb.ZRangeByScore(ctx, q.runningKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("queue.Stale: %w", err)
	}

	jobs := make([]*model.ExecutionJob, 0, len(ids))
	for _, id := range ids {
		job, err := q.Get(ctx, id)
		if errors.Is(err, common.ErrNotFound) {
			q.rdb.ZRem(ctx, q.runningKey(), id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("queue.Stale: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (q *JobQueue) Len(ctx context.Context, partition string) (int64, error) {
	return q.rdb.LLen(ctx, q.listKey(partition)).Result()
}
