// Package subscriber consumes the shared bus and completes fan-out on
// this node: chat events go to the addressed user's local sessions,
// presence events update the remote view and are pushed to everyone
// connected here.
package subscriber

import (
	"context"
	"encoding/json"

	"github.com/driftchat/delivery/internal/domain"
	"github.com/driftchat/delivery/internal/hub"
	"github.com/driftchat/delivery/internal/presence"
	"github.com/driftchat/delivery/pkg/log"
	"github.com/driftchat/delivery/pkg/pubsub"
)

type Subscriber struct {
	bus     pubsub.Subscriber
	hub     *hub.Hub
	tracker *presence.Tracker
}

func New(bus pubsub.Subscriber, h *hub.Hub, tracker *presence.Tracker) *Subscriber {
	return &Subscriber{bus: bus, hub: h, tracker: tracker}
}

// Run subscribes to both channels and dispatches until ctx is
// cancelled. Malformed events are logged and skipped, never fatal.
func (s *Subscriber) Run(ctx context.Context) error {
	chatCh, err := s.bus.Subscribe(ctx, pubsub.ChannelChatEvents)
	if err != nil {
		return err
	}
	presenceCh, err := s.bus.Subscribe(ctx, pubsub.ChannelPresence)
	if err != nil {
		return err
	}

	log.L().Info().Msg("bus subscriber running")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-chatCh:
			if !ok {
				return nil
			}
			s.handleChatEvent(event)
		case event, ok := <-presenceCh:
			if !ok {
				return nil
			}
			s.handlePresenceEvent(event)
		}
	}
}

// handleChatEvent forwards the frame to the addressed user's sessions
// on this node. Nodes without sessions for the user simply drop it.
func (s *Subscriber) handleChatEvent(event *pubsub.Event) {
	if event == nil || event.Key == "" || len(event.Payload) == 0 {
		log.L().Warn().Msg("skipping malformed chat event")
		return
	}
	if !s.hub.HasLocalSessions(event.Key) {
		return
	}
	s.hub.SendToUser(event.Key, event.Payload)
}

func (s *Subscriber) handlePresenceEvent(event *pubsub.Event) {
	if event == nil {
		return
	}
	var status presence.StatusEvent
	if err := event.UnmarshalPayload(&status); err != nil || status.UserID == "" {
		log.L().Warn().Err(err).Msg("skipping malformed presence event")
		return
	}

	s.tracker.Apply(status)

	frame, err := json.Marshal(domain.UserStatusOut{
		Type:     domain.MsgTypeUserStatus,
		UserID:   status.UserID,
		IsOnline: status.IsOnline,
	})
	if err != nil {
		log.L().Error().Err(err).Msg("failed to encode user status frame")
		return
	}
	s.hub.Broadcast(frame)
}
