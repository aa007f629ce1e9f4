package offline

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds offline queue configuration.
type Config struct {
	Address   string        `mapstructure:"address"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	MaxLen    int64         `mapstructure:"max_len"`
	Retention time.Duration `mapstructure:"retention"`
}

// RedisQueue keeps one redis list per recipient under
// "user:<id>:offline".
type RedisQueue struct {
	client    *redis.Client
	maxLen    int64
	retention time.Duration
}

// NewRedisQueue connects to redis and verifies connectivity.
func NewRedisQueue(cfg Config) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisQueueFromClient(client, cfg.MaxLen, cfg.Retention), nil
}

// NewRedisQueueFromClient wraps an existing client.
func NewRedisQueueFromClient(client *redis.Client, maxLen int64, retention time.Duration) *RedisQueue {
	if maxLen <= 0 {
		maxLen = 500
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &RedisQueue{client: client, maxLen: maxLen, retention: retention}
}

func queueKey(userID string) string {
	return fmt.Sprintf("user:%s:offline", userID)
}

// Enqueue appends, trims to the newest maxLen entries and refreshes the
// retention TTL, all in one pipeline.
func (q *RedisQueue) Enqueue(ctx context.Context, userID string, payload []byte) error {
	key := queueKey(userID)

	pipe := q.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.LTrim(ctx, key, -q.maxLen, -1)
	pipe.Expire(ctx, key, q.retention)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue offline payload: %w", err)
	}
	return nil
}

// DrainAndClear reads and deletes the queue in one MULTI/EXEC, so a
// concurrent enqueue serialises entirely before or after the drain.
func (q *RedisQueue) DrainAndClear(ctx context.Context, userID string) ([][]byte, error) {
	key := queueKey(userID)

	pipe := q.client.TxPipeline()
	rangeCmd := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to drain offline queue: %w", err)
	}

	entries := rangeCmd.Val()
	payloads := make([][]byte, len(entries))
	for i, e := range entries {
		payloads[i] = []byte(e)
	}
	return payloads, nil
}

// Len returns the recipient's current queue length.
func (q *RedisQueue) Len(ctx context.Context, userID string) (int64, error) {
	n, err := q.client.LLen(ctx, queueKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read offline queue length: %w", err)
	}
	return n, nil
}

// Close closes the redis client.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
