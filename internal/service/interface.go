// Package service implements the delivery pipeline: message sends, read
// receipts, typing relays, and the connect/disconnect flows that stitch
// the registry, cache, offline queue and bus together.
package service

import (
	"context"
	"errors"

	"github.com/driftchat/delivery/internal/domain"
)

var (
	// ErrEmptyMessage rejects sends whose text is empty after trimming.
	ErrEmptyMessage = errors.New("message text is empty")

	// ErrNotMember rejects requests from users outside the chat.
	ErrNotMember = errors.New("user is not a member of this chat")
)

// MessageBuffer is the write-back buffer the pipeline appends accepted
// messages to. Persistence happens later, in batches; the read path can
// force a flush so receipts target persisted rows.
type MessageBuffer interface {
	Append(chatID string, msg *domain.Message)
	Flush(ctx context.Context, chatID string) error
}

// PresenceNotifier publishes a user's offline/online transitions.
type PresenceNotifier interface {
	UserOnline(ctx context.Context, userID string) error
	UserOffline(ctx context.Context, userID string) error
}

// RemotePresence is the view of users online on other nodes.
type RemotePresence interface {
	IsOnlineRemote(userID string) bool
	OnlineRemote() []string
}
