package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/common"
)

const dequeueBlock = 5 * time.Second

// RedisQueue is a Redis list used as a FIFO job queue: LPUSH to enqueue,
// BRPOP to dequeue.
type RedisQueue struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

func NewRedis(cfg common.RedisConfig, logger *slog.Logger) *RedisQueue {
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisQueue{client: client, key: cfg.QueueKey, logger: logger}
}

// NewRedisWithClient wires an existing client, used by tests.
func NewRedisWithClient(client *redis.Client, key string, logger *slog.Logger) *RedisQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisQueue{client: client, key: key, logger: logger}
}

func (q *RedisQueue) Enqueue(ctx context.Context, documentID uuid.UUID) error {
	if err := q.client.LPush(ctx, q.key, documentID.String()).Err(); err != nil {
		return fmt.Errorf("enqueue document %s: %w", documentID, err)
	}
	q.logger.Debug("queue.enqueued", "document_id", documentID)
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (uuid.UUID, error) {
	res, err := q.client.BRPop(ctx, dequeueBlock, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, ErrEmpty
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("dequeue: %w", err)
	}
	// BRPop returns [key, value].
	id, err := uuid.Parse(res[1])
	if err != nil {
		q.logger.Warn("queue.bad_payload", "payload", res[1])
		return uuid.Nil, ErrEmpty
	}
	return id, nil
}

// Len reports the number of jobs waiting in the list.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return n, nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
