// Package offline holds events addressed to users with no live
// connection anywhere. The queue is shared across nodes (redis), bounded
// per recipient, and expires as a whole after a retention horizon.
package offline

import "context"

// Queue is the per-user offline holding area.
//
// Policy, resolving the two observed variants: both knobs are enforced.
// Enqueue keeps at most MaxLen entries per recipient (oldest evicted
// first) and refreshes a whole-queue retention TTL; a queue untouched
// for the full horizon disappears entirely. Size cap wins on conflict
// since it is applied on every enqueue.
type Queue interface {
	// Enqueue appends a payload to the recipient's queue, evicting the
	// oldest entries beyond the length cap.
	Enqueue(ctx context.Context, userID string, payload []byte) error

	// DrainAndClear atomically returns all queued payloads in enqueue
	// order and empties the queue. An enqueue racing the drain either
	// lands before it (and is returned) or after it (and survives for
	// the next connection); it is never lost.
	DrainAndClear(ctx context.Context, userID string) ([][]byte, error)

	// Len returns the current queue length for the recipient.
	Len(ctx context.Context, userID string) (int64, error)

	Close() error
}
