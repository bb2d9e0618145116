// Package queue carries encoded sample requests between the enqueuing CLI
// and distributed workers over a Redis list.
package queue

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEmpty is returned by Pop when nothing arrived before the timeout.
var ErrEmpty = stderrors.New("queue empty")

type RedisQueue struct {
	rdb       *redis.Client
	queueName string
}

func NewRedisQueue(rdb *redis.Client, queueName string) *RedisQueue {
	return &RedisQueue{rdb: rdb, queueName: queueName}
}

func (q *RedisQueue) Name() string { return q.queueName }

// Push appends payloads in order; LPUSH with BRPOP keeps the list FIFO.
func (q *RedisQueue) Push(ctx context.Context, payloads ...[]byte) error {
	if len(payloads) == 0 {
		return nil
	}
	vals := make([]any, len(payloads))
	for i, p := range payloads {
		vals[i] = p
	}
	return q.rdb.LPush(ctx, q.queueName, vals...).Err()
}

// Pop blocks up to timeout for the next payload (BRPOP). A zero timeout
// blocks until ctx is done.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.queueName).Result()
	if stderrors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, err
	}
	if len(res) < 2 {
		return nil, ErrEmpty
	}
	return []byte(res[1]), nil
}

// Len is the number of queued payloads.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.queueName).Result()
}
