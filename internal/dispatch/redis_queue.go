package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Brandonkhumalo/refuse-tracker/internal/models"
)

// brpopTimeout bounds each blocking pop so workers notice context
// cancellation promptly.
const brpopTimeout = 1 * time.Second

// RedisQueue is a Redis-list backed Queue. Jobs are LPUSHed onto the key and
// BRPOPed by workers; exhausted jobs land on "<key>:dead" for inspection.
type RedisQueue struct {
	client  *redis.Client
	key     string
	deadKey string
	logger  *zap.Logger
}

// NewRedisQueue connects to Redis and returns the queue.
func NewRedisQueue(ctx context.Context, url, key string, logger *zap.Logger) (*RedisQueue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger = logger.With(zap.String("component", "alert_queue"))
	logger.Info("Connected to Redis", zap.String("queue", key))

	return &RedisQueue{
		client:  client,
		key:     key,
		deadKey: key + ":dead",
		logger:  logger,
	}, nil
}

// Client exposes the underlying client for health probes.
func (q *RedisQueue) Client() *redis.Client {
	return q.client
}

// Close releases the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// Enqueue serializes the job and pushes it onto the list.
func (q *RedisQueue) Enqueue(ctx context.Context, job models.ProximityAlertJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal alert job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue alert job: %w", err)
	}
	return nil
}

// Dequeue blocks until a job arrives or the context is done. Jobs that fail
// to decode are dead-lettered rather than returned.
func (q *RedisQueue) Dequeue(ctx context.Context) (models.ProximityAlertJob, error) {
	for {
		if err := ctx.Err(); err != nil {
			return models.ProximityAlertJob{}, err
		}

		res, err := q.client.BRPop(ctx, brpopTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return models.ProximityAlertJob{}, fmt.Errorf("failed to dequeue alert job: %w", err)
		}

		// BRPop returns [key, value].
		var job models.ProximityAlertJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			q.logger.Error("Discarding undecodable alert job", zap.Error(err))
			_ = q.client.LPush(ctx, q.deadKey, res[1]).Err()
			continue
		}
		return job, nil
	}
}

// DeadLetter parks the job on the dead list.
func (q *RedisQueue) DeadLetter(ctx context.Context, job models.ProximityAlertJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal dead-letter job: %w", err)
	}
	if err := q.client.LPush(ctx, q.deadKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to dead-letter alert job: %w", err)
	}
	q.logger.Warn("Dead-lettered alert job",
		zap.Int64("truck_id", job.TruckID),
		zap.Int("attempts", job.Attempt))
	return nil
}
