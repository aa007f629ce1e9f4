package cache

import (
	"context"
	"errors"
	"time"

	"github.com/driftchat/delivery/internal/domain"
)

// ErrCacheMiss is returned when the key is absent. Callers must rebuild
// from the durable store; any other error is treated the same way (the
// cache fails open and never blocks the pipeline).
var ErrCacheMiss = errors.New("cache miss")

// ChatListCache is the materialized per-user chat list. An entry is at
// most TTL stale relative to the last invalidation for its key.
type ChatListCache interface {
	Get(ctx context.Context, userID string) ([]domain.ChatSummary, error)
	Set(ctx context.Context, userID string, chats []domain.ChatSummary, ttl time.Duration) error

	// Invalidate drops the entries for the given users. A lost
	// invalidation is tolerated (staleness stays bounded by TTL).
	Invalidate(ctx context.Context, userIDs ...string) error

	Close() error
}
