package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/driftchat/delivery/internal/domain"
	pkglog "github.com/driftchat/delivery/pkg/log"
)

// GormChatRepository implements ChatRepository using GORM.
type GormChatRepository struct {
	db *gorm.DB
}

// NewGormChatRepository creates a GORM-based chat repository.
func NewGormChatRepository(db *gorm.DB) *GormChatRepository {
	return &GormChatRepository{db: db}
}

// GetByID retrieves a chat by ID.
func (r *GormChatRepository) GetByID(ctx context.Context, id string) (*domain.Chat, error) {
	var chat domain.Chat
	result := r.db.WithContext(ctx).First(&chat, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		pkglog.Ctx(ctx).Error().Err(result.Error).Str(pkglog.FieldChatID, id).Msg("failed to get chat")
		return nil, result.Error
	}
	return &chat, nil
}

// membershipPattern matches a user ID inside the JSON members column.
// Members is a JSON array of quoted IDs on every supported driver, so a
// LIKE over the quoted ID is exact (IDs are UUIDs, no substring
// collisions).
func membershipPattern(userID string) string {
	return fmt.Sprintf(`%%"%s"%%`, userID)
}

// ListByMember returns the user's chats, most recently updated first.
func (r *GormChatRepository) ListByMember(ctx context.Context, userID string) ([]domain.Chat, error) {
	var chats []domain.Chat
	result := r.db.WithContext(ctx).
		Where("members LIKE ?", membershipPattern(userID)).
		Order("updated_at DESC").
		Find(&chats)
	if result.Error != nil {
		pkglog.Ctx(ctx).Error().Err(result.Error).Str(pkglog.FieldUserID, userID).Msg("failed to list chats by member")
		return nil, result.Error
	}
	return chats, nil
}

// TouchLastMessage bumps the chat's last-message pointer and updated-at.
func (r *GormChatRepository) TouchLastMessage(ctx context.Context, chatID, messageID string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Chat{}).
		Where("id = ?", chatID).
		Updates(map[string]interface{}{
			"last_message_id": messageID,
			"updated_at":      at,
		})
	if result.Error != nil {
		pkglog.Ctx(ctx).Error().Err(result.Error).Str(pkglog.FieldChatID, chatID).Msg("failed to touch chat")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrChatNotFound
	}
	return nil
}

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a GORM-based message repository.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// Create persists a single message.
func (r *GormMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		pkglog.Ctx(ctx).Error().Err(err).Str(pkglog.FieldMsgID, msg.ID).Msg("failed to create message")
		return err
	}
	return nil
}

// CreateInBatches persists a flushed batch as one bulk write. Conflicts
// on the primary key are ignored so a retried batch that partially
// landed does not duplicate rows.
func (r *GormMessageRepository) CreateInBatches(ctx context.Context, messages []*domain.Message) error {
	if len(messages) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(messages, len(messages)).Error
	if err != nil {
		pkglog.Ctx(ctx).Error().Err(err).Int("count", len(messages)).Msg("failed to bulk-create messages")
		return err
	}
	return nil
}

// ListByIDs returns the chat's messages matching the given IDs.
func (r *GormMessageRepository) ListByIDs(ctx context.Context, chatID string, ids []string) ([]domain.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var messages []domain.Message
	result := r.db.WithContext(ctx).
		Where("chat_id = ? AND id IN ?", chatID, ids).
		Order("created_at ASC").
		Find(&messages)
	if result.Error != nil {
		pkglog.Ctx(ctx).Error().Err(result.Error).Str(pkglog.FieldChatID, chatID).Msg("failed to list messages by id")
		return nil, result.Error
	}
	return messages, nil
}

// ListUnread returns the chat's messages readerID has not read and did
// not send. The LIKE narrows the scan; the in-memory check is the
// authoritative filter.
func (r *GormMessageRepository) ListUnread(ctx context.Context, chatID, readerID string) ([]domain.Message, error) {
	var candidates []domain.Message
	result := r.db.WithContext(ctx).
		Where("chat_id = ? AND sender_id <> ?", chatID, readerID).
		Where("read_by IS NULL OR read_by NOT LIKE ?", membershipPattern(readerID)).
		Order("created_at ASC").
		Find(&candidates)
	if result.Error != nil {
		pkglog.Ctx(ctx).Error().Err(result.Error).Str(pkglog.FieldChatID, chatID).Msg("failed to list unread messages")
		return nil, result.Error
	}

	unread := candidates[:0]
	for _, m := range candidates {
		if !m.ReadBy.Contains(readerID) {
			unread = append(unread, m)
		}
	}
	return unread, nil
}

// MarkRead appends readerID to the read-by set of each message. The
// read-modify-write runs in one transaction per call; double marking is
// a no-op.
func (r *GormMessageRepository) MarkRead(ctx context.Context, ids []string, readerID string) error {
	if len(ids) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var messages []domain.Message
		if err := tx.Where("id IN ?", ids).Find(&messages).Error; err != nil {
			return err
		}

		for i := range messages {
			m := &messages[i]
			if m.ReadBy.Contains(readerID) {
				continue
			}
			m.ReadBy = append(m.ReadBy, readerID)
			if err := tx.Model(&domain.Message{}).
				Where("id = ?", m.ID).
				Update("read_by", m.ReadBy).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// LatestByChat returns the chat's newest message, nil when empty.
func (r *GormMessageRepository) LatestByChat(ctx context.Context, chatID string) (*domain.Message, error) {
	var msg domain.Message
	result := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC").
		First(&msg)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		pkglog.Ctx(ctx).Error().Err(result.Error).Str(pkglog.FieldChatID, chatID).Msg("failed to get latest message")
		return nil, result.Error
	}
	return &msg, nil
}
