// Package registry tracks which users have live connections on this
// node. It is node-local by design: routing decisions made here are
// authoritative for local delivery only, and cross-node presence is
// derived from bus events, never from another node's registry.
package registry

// Registry is the session registry contract. A user is online iff its
// session set is non-empty; multiple connections per user are normal
// (multi-device).
type Registry interface {
	// Connect adds a session and reports whether this was the user's
	// first live connection (offline -> online transition).
	Connect(userID, connID string) (first bool)

	// Disconnect removes a session and reports whether it was the
	// user's last live connection (online -> offline transition).
	Disconnect(userID, connID string) (last bool)

	// IsOnline reports whether the user has at least one session.
	IsOnline(userID string) bool

	// OnlineUserIDs returns a snapshot of all online user IDs.
	OnlineUserIDs() []string

	// ConnectionCount returns the user's current session count.
	ConnectionCount(userID string) int
}
