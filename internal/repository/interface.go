package repository

import (
	"context"
	"errors"
	"time"

	"github.com/driftchat/delivery/internal/domain"
)

var (
	ErrChatNotFound = errors.New("chat not found")
)

// ChatRepository reads chat metadata owned by the chat-management
// service and maintains the delivery-side columns.
type ChatRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Chat, error)

	// ListByMember returns all chats that include userID, most recently
	// updated first. Used to rebuild the chat-list cache on a miss.
	ListByMember(ctx context.Context, userID string) ([]domain.Chat, error)

	// TouchLastMessage bumps the chat's last message pointer and
	// updated-at stamp.
	TouchLastMessage(ctx context.Context, chatID, messageID string, at time.Time) error
}

// MessageRepository persists messages and read receipts.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	CreateInBatches(ctx context.Context, messages []*domain.Message) error

	ListByIDs(ctx context.Context, chatID string, ids []string) ([]domain.Message, error)

	// ListUnread returns messages in the chat that readerID has not
	// read and did not send.
	ListUnread(ctx context.Context, chatID, readerID string) ([]domain.Message, error)

	// MarkRead appends readerID to the read-by set of the given
	// messages, skipping those already marked.
	MarkRead(ctx context.Context, ids []string, readerID string) error

	// LatestByChat returns the newest message of a chat, or nil when
	// the chat has none.
	LatestByChat(ctx context.Context, chatID string) (*domain.Message, error)
}
