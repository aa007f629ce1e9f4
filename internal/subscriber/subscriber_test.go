package subscriber

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/driftchat/delivery/internal/config"
	"github.com/driftchat/delivery/internal/domain"
	"github.com/driftchat/delivery/internal/hub"
	"github.com/driftchat/delivery/internal/presence"
	"github.com/driftchat/delivery/internal/registry"
	"github.com/driftchat/delivery/pkg/pubsub"
)

type fakeBus struct {
	mu    sync.Mutex
	chans map[string]chan *pubsub.Event
}

func newFakeBus() *fakeBus {
	return &fakeBus{chans: make(map[string]chan *pubsub.Event)}
}

func (b *fakeBus) Subscribe(_ context.Context, channel string) (<-chan *pubsub.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan *pubsub.Event, 16)
	b.chans[channel] = ch
	return ch, nil
}

func (b *fakeBus) Unsubscribe(string) error { return nil }

func (b *fakeBus) subscribed(channel string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chans[channel] != nil
}

func (b *fakeBus) push(channel string, event *pubsub.Event) {
	b.mu.Lock()
	ch := b.chans[channel]
	b.mu.Unlock()
	ch <- event
}

type env struct {
	bus     *fakeBus
	hub     *hub.Hub
	tracker *presence.Tracker
	client  *hub.Client
	cancel  context.CancelFunc
}

func newEnv(t *testing.T) *env {
	t.Helper()

	h := hub.NewHub(registry.NewMemoryRegistry())
	h.SetHandlers(func(*hub.Client, bool) {}, func(*hub.Client, bool) {})
	go h.Run()

	client := hub.NewClient("conn-1", "bob", h, nil, config.WebSocketConfig{})
	h.Register(client)
	waitFor(t, func() bool { return h.HasLocalSessions("bob") })

	bus := newFakeBus()
	tracker := presence.NewTracker("node-1")
	sub := New(bus, h, tracker)

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	go func() {
		close(ready)
		_ = sub.Run(ctx)
	}()
	<-ready
	waitFor(t, func() bool {
		return bus.subscribed(pubsub.ChannelChatEvents) && bus.subscribed(pubsub.ChannelPresence)
	})

	t.Cleanup(cancel)
	return &env{bus: bus, hub: h, tracker: tracker, client: client, cancel: cancel}
}

func TestChatEventReachesLocalSessions(t *testing.T) {
	e := newEnv(t)

	event, err := pubsub.NewEvent(pubsub.EventReceiveMessage, "bob", domain.ReceiveMessageOut{
		Type:   domain.MsgTypeReceiveMessage,
		ChatID: "c1",
	})
	require.NoError(t, err)
	e.bus.push(pubsub.ChannelChatEvents, event)

	frame := receive(t, e.client)
	var out domain.ReceiveMessageOut
	require.NoError(t, json.Unmarshal(frame, &out))
	require.Equal(t, "c1", out.ChatID)
}

func TestChatEventForRemoteUserIsDropped(t *testing.T) {
	e := newEnv(t)

	event, err := pubsub.NewEvent(pubsub.EventReceiveMessage, "carol", domain.ReceiveMessageOut{
		Type:   domain.MsgTypeReceiveMessage,
		ChatID: "c1",
	})
	require.NoError(t, err)
	e.bus.push(pubsub.ChannelChatEvents, event)

	requireNoFrame(t, e.client)
}

func TestMalformedChatEventIsSkipped(t *testing.T) {
	e := newEnv(t)

	e.bus.push(pubsub.ChannelChatEvents, &pubsub.Event{Type: pubsub.EventReceiveMessage})

	requireNoFrame(t, e.client)
}

func TestPresenceEventUpdatesTrackerAndBroadcasts(t *testing.T) {
	e := newEnv(t)

	event, err := pubsub.NewEvent(pubsub.EventUserStatus, "alice", presence.StatusEvent{
		UserID:   "alice",
		IsOnline: true,
		NodeID:   "node-2",
	})
	require.NoError(t, err)
	e.bus.push(pubsub.ChannelPresence, event)

	frame := receive(t, e.client)
	var out domain.UserStatusOut
	require.NoError(t, json.Unmarshal(frame, &out))
	require.Equal(t, domain.MsgTypeUserStatus, out.Type)
	require.Equal(t, "alice", out.UserID)
	require.True(t, out.IsOnline)

	require.True(t, e.tracker.IsOnlineRemote("alice"))
}

func receive(t *testing.T, client *hub.Client) []byte {
	t.Helper()
	select {
	case frame := <-client.Send:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func requireNoFrame(t *testing.T, client *hub.Client) {
	t.Helper()
	select {
	case frame := <-client.Send:
		t.Fatalf("unexpected frame: %s", frame)
	case <-time.After(100 * time.Millisecond):
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}
