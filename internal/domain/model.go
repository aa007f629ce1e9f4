package domain

import (
	"time"

	"github.com/driftchat/delivery/pkg/database"
)

// Chat types.
const (
	ChatTypeDirect = "chat"
	ChatTypeGroup  = "group"
)

// Chat is the durable conversation record. Membership changes are owned
// by the chat-management service; the delivery pipeline only reads
// Members to compute fan-out and updates LastMessageID/UpdatedAt.
type Chat struct {
	ID            string               `gorm:"primaryKey;size:36" json:"id"`
	Name          string               `gorm:"size:128" json:"name"`
	Type          string               `gorm:"size:16;default:chat" json:"type"`
	Creator       string               `gorm:"size:36" json:"creator"`
	Members       database.StringArray `gorm:"type:text" json:"members"`
	LastMessageID string               `gorm:"size:36" json:"last_message_id"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `gorm:"index" json:"updated_at"`
}

// HasMember reports whether userID is a current member.
func (c *Chat) HasMember(userID string) bool {
	return c.Members.Contains(userID)
}

// Message is a durable chat message. Content is immutable after
// creation; only ReadBy grows.
type Message struct {
	ID        string               `gorm:"primaryKey;size:36" json:"id"`
	ChatID    string               `gorm:"index;size:36" json:"chat_id"`
	SenderID  string               `gorm:"size:36" json:"sender_id"`
	Content   string               `json:"content"`
	ReadBy    database.StringArray `gorm:"type:text" json:"read_by"`
	CreatedAt time.Time            `json:"created_at"`
}

// ChatSummary is one entry in a user's chat list: the chat plus its most
// recent message. This is what the chat-list cache stores.
type ChatSummary struct {
	Chat        Chat     `json:"chat"`
	LastMessage *Message `json:"last_message,omitempty"`
}
