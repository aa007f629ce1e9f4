package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/driftchat/delivery/internal/domain"
)

// Config holds redis cache configuration.
type Config struct {
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// RedisChatListCache stores serialized chat lists under
// "user:<id>:chats".
type RedisChatListCache struct {
	client *redis.Client
}

// NewRedisChatListCache connects to redis and verifies connectivity.
func NewRedisChatListCache(cfg Config) (*RedisChatListCache, error) {
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

	return &RedisChatListCache{client: client}, nil
}

// NewRedisChatListCacheFromClient wraps an existing client (shared with
// the offline queue in the default wiring).
func NewRedisChatListCacheFromClient(client *redis.Client) *RedisChatListCache {
	return &RedisChatListCache{client: client}
}

func chatListKey(userID string) string {
	return fmt.Sprintf("user:%s:chats", userID)
}

// Get returns the cached chat list or ErrCacheMiss.
func (c *RedisChatListCache) Get(ctx context.Context, userID string) ([]domain.ChatSummary, error) {
	data, err := c.client.Get(ctx, chatListKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var chats []domain.ChatSummary
	if err := json.Unmarshal(data, &chats); err != nil {
		// A corrupt entry behaves like a miss; it will be overwritten
		// on repopulation.
		return nil, ErrCacheMiss
	}

	return chats, nil
}

// Set stores the chat list with the given TTL.
func (c *RedisChatListCache) Set(ctx context.Context, userID string, chats []domain.ChatSummary, ttl time.Duration) error {
	data, err := json.Marshal(chats)
	if err != nil {
		return fmt.Errorf("failed to marshal chat list: %w", err)
	}

	if err := c.client.Set(ctx, chatListKey(userID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

// Invalidate drops the entries for the given users in one round trip.
func (c *RedisChatListCache) Invalidate(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = chatListKey(id)
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate chat lists: %w", err)
	}
	return nil
}

// Close closes the redis client.
func (c *RedisChatListCache) Close() error {
	return c.client.Close()
}
