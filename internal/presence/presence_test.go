package presence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrackerIgnoresOwnNode(t *testing.T) {
	tr := NewTracker("node-1")

	tr.Apply(StatusEvent{UserID: "alice", IsOnline: true, NodeID: "node-1"})

	require.False(t, tr.IsOnlineRemote("alice"))
}

func TestTrackerTracksRemoteNodes(t *testing.T) {
	tr := NewTracker("node-1")

	tr.Apply(StatusEvent{UserID: "alice", IsOnline: true, NodeID: "node-2"})
	tr.Apply(StatusEvent{UserID: "alice", IsOnline: true, NodeID: "node-3"})

	require.True(t, tr.IsOnlineRemote("alice"))

	tr.Apply(StatusEvent{UserID: "alice", IsOnline: false, NodeID: "node-2"})
	require.True(t, tr.IsOnlineRemote("alice"), "still online on node-3")

	tr.Apply(StatusEvent{UserID: "alice", IsOnline: false, NodeID: "node-3"})
	require.False(t, tr.IsOnlineRemote("alice"))
}

func TestTrackerOfflineForUnknownUser(t *testing.T) {
	tr := NewTracker("node-1")

	tr.Apply(StatusEvent{UserID: "ghost", IsOnline: false, NodeID: "node-2"})

	require.False(t, tr.IsOnlineRemote("ghost"))
	require.Empty(t, tr.OnlineRemote())
}

func TestTrackerSnapshot(t *testing.T) {
	tr := NewTracker("node-1")

	tr.Apply(StatusEvent{UserID: "alice", IsOnline: true, NodeID: "node-2"})
	tr.Apply(StatusEvent{UserID: "bob", IsOnline: true, NodeID: "node-2"})

	require.ElementsMatch(t, []string{"alice", "bob"}, tr.OnlineRemote())
}
