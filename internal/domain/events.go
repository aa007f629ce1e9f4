package domain

import "encoding/json"

// WebSocket event types from client.
const (
	MsgTypeUserConnected = "user_connected"
	MsgTypeSendMessage   = "send_message"
	MsgTypeReadMessage   = "read_message"
	MsgTypeTyping        = "typing_status"
)

// WebSocket event types to client.
const (
	MsgTypeLogin           = "login"
	MsgTypeReceiveMessage  = "receive_message"
	MsgTypeMessageRead     = "message_read"
	MsgTypeUserTyping      = "user_typing"
	MsgTypeUserStatus      = "user_status"
	MsgTypeOfflineMessages = "offline_messages"
	MsgTypeAck             = "ack"
	MsgTypeError           = "error"
)

// Error codes carried in error events and acks.
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// BaseMessage is decoded first to pick the concrete schema. Frames whose
// type is unknown, or that fail their schema, are answered with an error
// event; they never terminate the connection.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server events

type SendMessageIn struct {
	Type   string `json:"type"`
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type ReadMessageIn struct {
	Type       string   `json:"type"`
	ChatID     string   `json:"chat_id"`
	MessageIDs []string `json:"message_ids,omitempty"`
}

type TypingIn struct {
	Type     string `json:"type"`
	ChatID   string `json:"chat_id"`
	IsTyping bool   `json:"is_typing"`
}

// Server -> Client events

type LoginOut struct {
	Type        string        `json:"type"`
	Chats       []ChatSummary `json:"chats"`
	OnlineUsers []string      `json:"online_users"`
}

type ReceiveMessageOut struct {
	Type    string   `json:"type"`
	ChatID  string   `json:"chat_id"`
	Message *Message `json:"message"`
}

type MessageReadOut struct {
	Type     string    `json:"type"`
	ChatID   string    `json:"chat_id"`
	ReaderID string    `json:"reader_id"`
	Messages []Message `json:"messages"`
}

type UserTypingOut struct {
	Type     string `json:"type"`
	ChatID   string `json:"chat_id"`
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

type UserStatusOut struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	IsOnline bool   `json:"is_online"`
}

// OfflineMessagesOut delivers everything queued while the user had no
// live connection, once, right after connect. Entries are the exact
// payloads that would have been pushed live.
type OfflineMessagesOut struct {
	Type     string            `json:"type"`
	Messages []json.RawMessage `json:"messages"`
}

// AckOut answers a client request. Data carries the result on success;
// Code and Message describe the failure otherwise.
type AckOut struct {
	Type    string      `json:"type"`
	Event   string      `json:"event"`
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

type ErrorOut struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorOut builds an error event.
func NewErrorOut(code, message string) *ErrorOut {
	return &ErrorOut{Type: MsgTypeError, Code: code, Message: message}
}
