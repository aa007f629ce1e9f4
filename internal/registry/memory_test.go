package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnectDisconnectTransitions(t *testing.T) {
	req := require.New(t)
	r := NewMemoryRegistry()

	// First device: offline -> online.
	req.True(r.Connect("alice", "c1"))
	req.True(r.IsOnline("alice"))
	req.Equal(1, r.ConnectionCount("alice"))

	// Second device: already online, no transition.
	req.False(r.Connect("alice", "c2"))
	req.Equal(2, r.ConnectionCount("alice"))

	// Dropping one of two devices: still online, no transition.
	req.False(r.Disconnect("alice", "c1"))
	req.True(r.IsOnline("alice"))

	// Dropping the last device: online -> offline.
	req.True(r.Disconnect("alice", "c2"))
	req.False(r.IsOnline("alice"))
	req.Equal(0, r.ConnectionCount("alice"))
}

func TestDisconnectUnknownSession(t *testing.T) {
	req := require.New(t)
	r := NewMemoryRegistry()

	req.False(r.Disconnect("ghost", "c1"))

	r.Connect("bob", "c1")
	req.False(r.Disconnect("bob", "other-conn"))
	req.True(r.IsOnline("bob"))
}

func TestDuplicateConnect(t *testing.T) {
	req := require.New(t)
	r := NewMemoryRegistry()

	req.True(r.Connect("alice", "c1"))
	req.False(r.Connect("alice", "c1"))
	req.Equal(1, r.ConnectionCount("alice"))

	req.True(r.Disconnect("alice", "c1"))
}

func TestOnlineUserIDs(t *testing.T) {
	req := require.New(t)
	r := NewMemoryRegistry()

	req.Empty(r.OnlineUserIDs())

	r.Connect("alice", "c1")
	r.Connect("bob", "c2")
	r.Connect("bob", "c3")

	req.ElementsMatch([]string{"alice", "bob"}, r.OnlineUserIDs())

	r.Disconnect("bob", "c2")
	r.Disconnect("bob", "c3")
	req.ElementsMatch([]string{"alice"}, r.OnlineUserIDs())
}

func TestConcurrentConnectDisconnect(t *testing.T) {
	req := require.New(t)
	r := NewMemoryRegistry()

	const devices = 50
	var wg sync.WaitGroup
	for i := 0; i < devices; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			connID := fmt.Sprintf("c%d", i)
			r.Connect("alice", connID)
			r.Disconnect("alice", connID)
		}(i)
	}
	wg.Wait()

	req.False(r.IsOnline("alice"))
	req.Equal(0, r.ConnectionCount("alice"))
}
