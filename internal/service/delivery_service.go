package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/driftchat/delivery/internal/cache"
	"github.com/driftchat/delivery/internal/config"
	"github.com/driftchat/delivery/internal/domain"
	"github.com/driftchat/delivery/internal/hub"
	"github.com/driftchat/delivery/internal/offline"
	"github.com/driftchat/delivery/internal/registry"
	"github.com/driftchat/delivery/internal/repository"
	"github.com/driftchat/delivery/pkg/log"
	"github.com/driftchat/delivery/pkg/pubsub"
)

// connectTimeout bounds the work done for a single connect/disconnect
// hook, which runs outside any request context.
const connectTimeout = 10 * time.Second

// Deps collects the collaborators of the delivery pipeline.
type Deps struct {
	Chats    repository.ChatRepository
	Messages repository.MessageRepository
	Cache    cache.ChatListCache
	Offline  offline.Queue
	Buffer   MessageBuffer
	Bus      pubsub.Publisher
	Registry registry.Registry
	Remote   RemotePresence
	Presence PresenceNotifier
}

// DeliveryService routes chat traffic: it validates and accepts sends,
// fans events out to online recipients through the bus, queues for
// offline ones, and serves the connect flow (chat list, online users,
// offline catch-up).
type DeliveryService struct {
	chats    repository.ChatRepository
	messages repository.MessageRepository
	cache    cache.ChatListCache
	offline  offline.Queue
	buffer   MessageBuffer
	bus      pubsub.Publisher
	registry registry.Registry
	remote   RemotePresence
	presence PresenceNotifier

	cacheTTL       time.Duration
	lookupAttempts int
	lookupBackoff  time.Duration

	rebuild singleflight.Group
}

// New wires a delivery service.
func New(deps Deps, delivery config.DeliveryConfig, cacheTTL time.Duration) *DeliveryService {
	attempts := delivery.LookupAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &DeliveryService{
		chats:          deps.Chats,
		messages:       deps.Messages,
		cache:          deps.Cache,
		offline:        deps.Offline,
		buffer:         deps.Buffer,
		bus:            deps.Bus,
		registry:       deps.Registry,
		remote:         deps.Remote,
		presence:       deps.Presence,
		cacheTTL:       cacheTTL,
		lookupAttempts: attempts,
		lookupBackoff:  delivery.LookupBackoff,
	}
}

// Send accepts a message for delivery. The message is buffered for
// write-back persistence, every member's chat list entry is
// invalidated, and each recipient either gets a live push through the
// bus or an offline-queue entry. The returned message is what the
// sender's ack should carry; fan-out is best effort and never blocks
// the ack.
func (s *DeliveryService) Send(ctx context.Context, chatID, senderID, text string) (*domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	chat, err := s.lookupChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasMember(senderID) {
		return nil, ErrNotMember
	}

	msg := &domain.Message{
		ID:        uuid.New().String(),
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   text,
		CreatedAt: time.Now().UTC(),
	}

	s.buffer.Append(chatID, msg)

	if err := s.chats.TouchLastMessage(ctx, chatID, msg.ID, msg.CreatedAt); err != nil {
		log.L().Error().Err(err).
			Str(log.FieldChatID, chatID).
			Msg("failed to bump chat last message")
	}
	if err := s.cache.Invalidate(ctx, chat.Members...); err != nil {
		log.L().Warn().Err(err).
			Str(log.FieldChatID, chatID).
			Msg("chat list invalidation failed, entries stay until TTL")
	}

	s.fanOutMessage(ctx, chat, msg)

	return msg, nil
}

func (s *DeliveryService) fanOutMessage(ctx context.Context, chat *domain.Chat, msg *domain.Message) {
	frame, err := json.Marshal(domain.ReceiveMessageOut{
		Type:    domain.MsgTypeReceiveMessage,
		ChatID:  chat.ID,
		Message: msg,
	})
	if err != nil {
		log.L().Error().Err(err).Str(log.FieldMsgID, msg.ID).Msg("failed to encode message frame")
		return
	}

	for _, member := range chat.Members {
		if member == msg.SenderID {
			continue
		}
		if !s.isOnline(member) {
			s.enqueueOffline(ctx, member, msg.ID, frame)
			continue
		}
		event := &pubsub.Event{
			Type:      pubsub.EventReceiveMessage,
			Key:       member,
			Payload:   frame,
			Timestamp: msg.CreatedAt,
		}
		if err := s.bus.Publish(ctx, pubsub.ChannelChatEvents, event); err != nil {
			log.L().Error().Err(err).
				Str(log.FieldUserID, member).
				Str(log.FieldMsgID, msg.ID).
				Msg("bus publish failed, falling back to offline queue")
			s.enqueueOffline(ctx, member, msg.ID, frame)
		}
	}
}

func (s *DeliveryService) enqueueOffline(ctx context.Context, userID, msgID string, frame []byte) {
	if err := s.offline.Enqueue(ctx, userID, frame); err != nil {
		log.L().Error().Err(err).
			Str(log.FieldUserID, userID).
			Str(log.FieldMsgID, msgID).
			Msg("offline enqueue failed")
	}
}

// MarkRead records a read receipt. With explicit messageIDs only those
// messages are marked; otherwise everything in the chat the reader has
// not read (and did not send) is. Members are notified through the bus.
// The chat's pending batch is flushed first so receipts always target
// persisted rows.
func (s *DeliveryService) MarkRead(ctx context.Context, chatID, readerID string, messageIDs []string) ([]domain.Message, error) {
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasMember(readerID) {
		return nil, ErrNotMember
	}

	if err := s.buffer.Flush(ctx, chatID); err != nil {
		return nil, fmt.Errorf("flush pending messages: %w", err)
	}

	var msgs []domain.Message
	if len(messageIDs) > 0 {
		msgs, err = s.messages.ListByIDs(ctx, chatID, messageIDs)
	} else {
		msgs, err = s.messages.ListUnread(ctx, chatID, readerID)
	}
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	if err := s.messages.MarkRead(ctx, ids, readerID); err != nil {
		return nil, err
	}
	for i := range msgs {
		if !msgs[i].ReadBy.Contains(readerID) {
			msgs[i].ReadBy = append(msgs[i].ReadBy, readerID)
		}
	}

	s.broadcastToMembers(ctx, chat, "", pubsub.EventMessageRead, domain.MessageReadOut{
		Type:     domain.MsgTypeMessageRead,
		ChatID:   chatID,
		ReaderID: readerID,
		Messages: msgs,
	})

	return msgs, nil
}

// Typing relays a typing indicator to the chat's online members. It is
// never persisted or queued; recipients missing it is fine.
func (s *DeliveryService) Typing(ctx context.Context, chatID, userID string, isTyping bool) error {
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.HasMember(userID) {
		return ErrNotMember
	}

	s.broadcastToMembers(ctx, chat, userID, pubsub.EventUserTyping, domain.UserTypingOut{
		Type:     domain.MsgTypeUserTyping,
		ChatID:   chatID,
		UserID:   userID,
		IsTyping: isTyping,
	})
	return nil
}

// broadcastToMembers publishes a frame to every online member except
// excludeID. Offline members are skipped, not queued.
func (s *DeliveryService) broadcastToMembers(ctx context.Context, chat *domain.Chat, excludeID, eventType string, payload interface{}) {
	frame, err := json.Marshal(payload)
	if err != nil {
		log.L().Error().Err(err).Str(log.FieldChatID, chat.ID).Msg("failed to encode broadcast frame")
		return
	}
	for _, member := range chat.Members {
		if member == excludeID || !s.isOnline(member) {
			continue
		}
		event := &pubsub.Event{
			Type:      eventType,
			Key:       member,
			Payload:   frame,
			Timestamp: time.Now(),
		}
		if err := s.bus.Publish(ctx, pubsub.ChannelChatEvents, event); err != nil {
			log.L().Warn().Err(err).
				Str(log.FieldUserID, member).
				Str(log.FieldEvent, eventType).
				Msg("bus publish failed")
		}
	}
}

// Connected runs when a session lands on this node. It announces the
// offline -> online transition when it is the user's first session
// anywhere on this node, sends the login snapshot, and drains the
// offline queue into the new session exactly once.
func (s *DeliveryService) Connected(client *hub.Client, first bool) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if first {
		if err := s.presence.UserOnline(ctx, client.UserID); err != nil {
			log.L().Warn().Err(err).Str(log.FieldUserID, client.UserID).Msg("failed to announce user online")
		}
	}

	chats, err := s.ChatList(ctx, client.UserID)
	if err != nil {
		log.L().Error().Err(err).Str(log.FieldUserID, client.UserID).Msg("chat list load failed on connect")
	}
	if chats == nil {
		chats = []domain.ChatSummary{}
	}

	if err := sendToSession(client, domain.LoginOut{
		Type:        domain.MsgTypeLogin,
		Chats:       chats,
		OnlineUsers: s.onlineUsers(),
	}); err != nil {
		log.L().Warn().Err(err).Str(log.FieldConnID, client.ID).Msg("failed to send login snapshot")
	}

	s.deliverOffline(ctx, client)
}

// Disconnected runs when a session leaves this node.
func (s *DeliveryService) Disconnected(client *hub.Client, last bool) {
	if !last {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := s.presence.UserOffline(ctx, client.UserID); err != nil {
		log.L().Warn().Err(err).Str(log.FieldUserID, client.UserID).Msg("failed to announce user offline")
	}
}

func (s *DeliveryService) deliverOffline(ctx context.Context, client *hub.Client) {
	payloads, err := s.offline.DrainAndClear(ctx, client.UserID)
	if err != nil {
		log.L().Error().Err(err).Str(log.FieldUserID, client.UserID).Msg("offline drain failed")
		return
	}
	if len(payloads) == 0 {
		return
	}

	raw := make([]json.RawMessage, len(payloads))
	for i, p := range payloads {
		raw[i] = json.RawMessage(p)
	}
	if err := sendToSession(client, domain.OfflineMessagesOut{
		Type:     domain.MsgTypeOfflineMessages,
		Messages: raw,
	}); err != nil {
		log.L().Warn().Err(err).
			Str(log.FieldConnID, client.ID).
			Int("count", len(raw)).
			Msg("failed to deliver offline backlog")
	}
}

// sendToSession delivers a frame through the hub so the write races
// cleanly with the session's removal. The connect hooks run detached and
// may outlive their client; writing to the send channel directly here
// could hit a closed channel.
func sendToSession(client *hub.Client, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	client.Hub.SendToConn(client.ID, data)
	return nil
}

// ChatList returns the user's chat list, newest activity first, from
// the cache when fresh and rebuilt from the store otherwise. Concurrent
// rebuilds for the same user collapse into one.
func (s *DeliveryService) ChatList(ctx context.Context, userID string) ([]domain.ChatSummary, error) {
	if summaries, err := s.cache.Get(ctx, userID); err == nil {
		return summaries, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		log.L().Warn().Err(err).Str(log.FieldUserID, userID).Msg("chat list cache read failed")
	}

	v, err, _ := s.rebuild.Do(userID, func() (interface{}, error) {
		return s.rebuildChatList(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.ChatSummary), nil
}

func (s *DeliveryService) rebuildChatList(ctx context.Context, userID string) ([]domain.ChatSummary, error) {
	chats, err := s.chats.ListByMember(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.ChatSummary, 0, len(chats))
	for _, chat := range chats {
		last, err := s.messages.LatestByChat(ctx, chat.ID)
		if err != nil {
			log.L().Warn().Err(err).Str(log.FieldChatID, chat.ID).Msg("failed to load last message")
		}
		summaries = append(summaries, domain.ChatSummary{Chat: chat, LastMessage: last})
	}

	if err := s.cache.Set(ctx, userID, summaries, s.cacheTTL); err != nil {
		log.L().Warn().Err(err).Str(log.FieldUserID, userID).Msg("chat list cache write failed")
	}
	return summaries, nil
}

// lookupChat fetches the chat, retrying transient store errors a fixed
// number of times. A missing chat is terminal and never retried.
func (s *DeliveryService) lookupChat(ctx context.Context, chatID string) (*domain.Chat, error) {
	var lastErr error
	for attempt := 0; attempt < s.lookupAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.lookupBackoff):
			}
		}
		chat, err := s.chats.GetByID(ctx, chatID)
		if err == nil {
			return chat, nil
		}
		if errors.Is(err, repository.ErrChatNotFound) {
			return nil, err
		}
		lastErr = err
		log.L().Warn().Err(err).
			Str(log.FieldChatID, chatID).
			Int("attempt", attempt+1).
			Msg("chat lookup failed")
	}
	return nil, fmt.Errorf("chat lookup failed after %d attempts: %w", s.lookupAttempts, lastErr)
}

func (s *DeliveryService) isOnline(userID string) bool {
	return s.registry.IsOnline(userID) || s.remote.IsOnlineRemote(userID)
}

func (s *DeliveryService) onlineUsers() []string {
	seen := make(map[string]struct{})
	for _, id := range s.registry.OnlineUserIDs() {
		seen[id] = struct{}{}
	}
	for _, id := range s.remote.OnlineRemote() {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
