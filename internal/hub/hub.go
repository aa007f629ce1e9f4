package hub

import (
	"encoding/json"
	"sync"

	"github.com/driftchat/delivery/internal/registry"
	pkglog "github.com/driftchat/delivery/pkg/log"
)

// ConnectFunc is invoked after a client registers. first is true when
// this was the user's offline -> online transition.
type ConnectFunc func(client *Client, first bool)

// DisconnectFunc is invoked after a client unregisters. last is true
// when this was the user's online -> offline transition.
type DisconnectFunc func(client *Client, last bool)

// Hub owns every live websocket client on this node and the per-user
// index used for delivery. Registration runs through channels on a
// single loop; the session registry is the authority for presence
// transitions.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]*Client            // connID -> client
	userConns map[string]map[string]*Client // userID -> connID -> client

	registry registry.Registry

	register   chan *Client
	unregister chan *Client

	onConnect    ConnectFunc
	onDisconnect DisconnectFunc
}

// NewHub creates a hub backed by the given session registry.
func NewHub(reg registry.Registry) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		userConns:  make(map[string]map[string]*Client),
		registry:   reg,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
	}
}

// SetHandlers installs the connect/disconnect hooks. Call before Run.
func (h *Hub) SetHandlers(onConnect ConnectFunc, onDisconnect DisconnectFunc) {
	h.onConnect = onConnect
	h.onDisconnect = onDisconnect
}

// Run processes registration events until the register channel closes.
func (h *Hub) Run() {
	for {
		select {
		case client, ok := <-h.register:
			if !ok {
				return
			}
			h.addClient(client)

		case client, ok := <-h.unregister:
			if !ok {
				return
			}
			h.removeClient(client)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	conns, ok := h.userConns[client.UserID]
	if !ok {
		conns = make(map[string]*Client)
		h.userConns[client.UserID] = conns
	}
	conns[client.ID] = client
	h.mu.Unlock()

	first := h.registry.Connect(client.UserID, client.ID)

	pkglog.L().Debug().
		Str(pkglog.FieldUserID, client.UserID).
		Str(pkglog.FieldConnID, client.ID).
		Bool("first_session", first).
		Msg("client registered")

	if h.onConnect != nil {
		// Hooks do I/O (cache rebuild, offline drain, bus publish);
		// keep them off the registration loop.
		go h.onConnect(client, first)
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, known := h.clients[client.ID]; !known {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.ID)
	if conns, ok := h.userConns[client.UserID]; ok {
		delete(conns, client.ID)
		if len(conns) == 0 {
			delete(h.userConns, client.UserID)
		}
	}
	close(client.Send)
	h.mu.Unlock()

	last := h.registry.Disconnect(client.UserID, client.ID)

	pkglog.L().Debug().
		Str(pkglog.FieldUserID, client.UserID).
		Str(pkglog.FieldConnID, client.ID).
		Bool("last_session", last).
		Msg("client unregistered")

	if h.onDisconnect != nil {
		go h.onDisconnect(client, last)
	}
}

// Register queues a client for registration.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister queues a client for removal.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// SendToUser writes a payload to every local session of a user. Slow
// sessions are skipped rather than blocking delivery; missed events are
// recovered through the usual catch-up paths.
func (h *Hub) SendToUser(userID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.userConns[userID] {
		select {
		case client.Send <- payload:
		default:
			pkglog.L().Warn().
				Str(pkglog.FieldUserID, userID).
				Str(pkglog.FieldConnID, client.ID).
				Msg("send buffer full, dropping event")
		}
	}
}

// SendToConn writes a payload to one specific session.
func (h *Hub) SendToConn(connID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if client, ok := h.clients[connID]; ok {
		select {
		case client.Send <- payload:
		default:
			pkglog.L().Warn().
				Str(pkglog.FieldConnID, connID).
				Msg("send buffer full, dropping event")
		}
	}
}

// Broadcast writes a payload to every local session of every user.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

// SendJSONToUser marshals v and delivers it to all of a user's local
// sessions.
func (h *Hub) SendJSONToUser(userID string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.SendToUser(userID, data)
	return nil
}

// HasLocalSessions reports whether the user is connected to this node.
func (h *Hub) HasLocalSessions(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userConns[userID]) > 0
}

// LocalClientCount returns the number of live sessions on this node.
func (h *Hub) LocalClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
