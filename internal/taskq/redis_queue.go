package taskq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	readyKey   = "taskq:ready"
	delayedKey = "taskq:delayed"
)

// RedisQueue keeps ready tasks in a list and delayed tasks in a sorted set
// scored by their due time. Dequeue promotes due tasks before blocking.
type RedisQueue struct {
	client *goredis.Client
}

func NewRedisQueue(client *goredis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Enqueue(ctx context.Context, t *Task, delay time.Duration) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if delay > 0 {
		due := float64(time.Now().Add(delay).UnixMilli())
		if err := q.client.ZAdd(ctx, delayedKey, goredis.Z{Score: due, Member: raw}).Err(); err != nil {
			return fmt.Errorf("enqueue delayed task: %w", err)
		}
		return nil
	}
	if err := q.client.LPush(ctx, readyKey, raw).Err(); err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

// promoteDue moves every delayed task whose due time has passed onto the
// ready list. Races between workers are harmless: ZRem reports whether this
// worker won the member, and only the winner pushes.
func (q *RedisQueue) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	members, err := q.client.ZRangeByScore(ctx, delayedKey, &goredis.ZRangeBy{
		Min: "-inf", Max: now,
	}).Result()
	if err != nil {
		return err
	}
	for _, m := range members {
		removed, err := q.client.ZRem(ctx, delayedKey, m).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, readyKey, m).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Task, error) {
	if err := q.promoteDue(ctx); err != nil {
		return nil, fmt.Errorf("promote delayed tasks: %w", err)
	}

	res, err := q.client.BRPop(ctx, timeout, readyKey).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue task: %w", err)
	}
	// BRPop returns [key, value].
	var t Task
	if err := json.Unmarshal([]byte(res[1]), &t); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	return &t, nil
}
