// Package presence publishes online/offline transitions on the shared
// bus and maintains this node's view of who is online elsewhere. The
// local session registry is never queried by other nodes; all cross-node
// presence flows through bus events.
package presence

import (
	"context"
	"sync"

	"github.com/driftchat/delivery/pkg/pubsub"
)

// StatusEvent is the payload of a user_status bus event. NodeID
// identifies the origin so nodes can keep their own sessions out of the
// remote view.
type StatusEvent struct {
	UserID   string `json:"user_id"`
	IsOnline bool   `json:"is_online"`
	NodeID   string `json:"node_id"`
}

// Broadcaster publishes presence transitions. Only empty->non-empty and
// non-empty->empty session-set transitions reach it; intermediate
// device connects emit nothing.
type Broadcaster struct {
	bus    pubsub.Publisher
	nodeID string
}

// NewBroadcaster creates a broadcaster identified by nodeID.
func NewBroadcaster(bus pubsub.Publisher, nodeID string) *Broadcaster {
	return &Broadcaster{bus: bus, nodeID: nodeID}
}

// UserOnline publishes the user's offline -> online transition.
func (b *Broadcaster) UserOnline(ctx context.Context, userID string) error {
	return b.publish(ctx, userID, true)
}

// UserOffline publishes the user's online -> offline transition.
func (b *Broadcaster) UserOffline(ctx context.Context, userID string) error {
	return b.publish(ctx, userID, false)
}

func (b *Broadcaster) publish(ctx context.Context, userID string, online bool) error {
	event, err := pubsub.NewEvent(pubsub.EventUserStatus, userID, StatusEvent{
		UserID:   userID,
		IsOnline: online,
		NodeID:   b.nodeID,
	})
	if err != nil {
		return err
	}
	return b.bus.Publish(ctx, pubsub.ChannelPresence, event)
}

// Tracker is the remote-presence view, fed by the bus subscriber. It
// records which other nodes currently hold sessions for a user; a user
// is online cluster-wide when either the local registry or this view
// says so.
type Tracker struct {
	mu     sync.RWMutex
	nodeID string
	remote map[string]map[string]struct{} // userID -> set of nodeID
}

// NewTracker creates a tracker that ignores events from nodeID.
func NewTracker(nodeID string) *Tracker {
	return &Tracker{
		nodeID: nodeID,
		remote: make(map[string]map[string]struct{}),
	}
}

// Apply folds a user_status event into the remote view. Events from
// this node are skipped; the local registry already covers them.
func (t *Tracker) Apply(ev StatusEvent) {
	if ev.NodeID == t.nodeID {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if ev.IsOnline {
		nodes, ok := t.remote[ev.UserID]
		if !ok {
			nodes = make(map[string]struct{})
			t.remote[ev.UserID] = nodes
		}
		nodes[ev.NodeID] = struct{}{}
		return
	}

	if nodes, ok := t.remote[ev.UserID]; ok {
		delete(nodes, ev.NodeID)
		if len(nodes) == 0 {
			delete(t.remote, ev.UserID)
		}
	}
}

// IsOnlineRemote reports whether any other node holds sessions for the
// user.
func (t *Tracker) IsOnlineRemote(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.remote[userID]) > 0
}

// OnlineRemote returns a snapshot of users online on other nodes.
func (t *Tracker) OnlineRemote() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.remote))
	for id := range t.remote {
		ids = append(ids, id)
	}
	return ids
}
