// Package buffer implements the write-back batch buffer: new messages
// accumulate per chat and are flushed to the durable store as one bulk
// write when a size threshold or a time trigger fires, whichever comes
// first. Buffering serialises persistence per chat, which is what keeps
// per-chat send order stable under concurrent senders.
package buffer

import (
	"context"
	"sync"
	"time"

	"github.com/driftchat/delivery/internal/domain"
	pkglog "github.com/driftchat/delivery/pkg/log"
)

// BulkPersister is the durable-store side of a flush.
type BulkPersister interface {
	CreateInBatches(ctx context.Context, messages []*domain.Message) error
}

// Config holds batch buffer configuration.
type Config struct {
	Size     int           `mapstructure:"size"`
	Interval time.Duration `mapstructure:"interval"`
}

// BatchBuffer accumulates pending messages per chat. At most one timer
// is armed per chat (started by the first unflushed append) and at most
// one flush runs per chat at a time. A size-triggered flush cancels the
// pending timer so the batch is never flushed twice.
type BatchBuffer struct {
	mu       sync.Mutex
	cond     *sync.Cond
	pending  map[string][]*domain.Message
	timers   map[string]*time.Timer
	inflight map[string]bool

	size      int
	interval  time.Duration
	persister BulkPersister
}

// New creates a batch buffer flushing into persister.
func New(cfg Config, persister BulkPersister) *BatchBuffer {
	size := cfg.Size
	if size <= 0 {
		size = 20
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	b := &BatchBuffer{
		pending:   make(map[string][]*domain.Message),
		timers:    make(map[string]*time.Timer),
		inflight:  make(map[string]bool),
		size:      size,
		interval:  interval,
		persister: persister,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Append buffers a message for its chat and schedules a flush: right
// away once the buffered count reaches the size threshold, otherwise on
// the timer armed by the chat's first unflushed append.
func (b *BatchBuffer) Append(chatID string, msg *domain.Message) {
	b.mu.Lock()
	b.pending[chatID] = append(b.pending[chatID], msg)

	if len(b.pending[chatID]) >= b.size {
		b.stopTimerLocked(chatID)
		b.mu.Unlock()
		go b.flush(context.Background(), chatID)
		return
	}

	if _, armed := b.timers[chatID]; !armed {
		b.armTimerLocked(chatID)
	}
	b.mu.Unlock()
}

// Flush drains and persists everything buffered for a chat, waiting out
// any flush already in progress so the chat's buffer really is empty
// (or a persist error surfaced) when it returns. Flushing a chat with
// nothing buffered is a no-op.
func (b *BatchBuffer) Flush(ctx context.Context, chatID string) error {
	for {
		if err := b.flush(ctx, chatID); err != nil {
			return err
		}

		b.mu.Lock()
		if !b.inflight[chatID] && len(b.pending[chatID]) == 0 {
			b.mu.Unlock()
			return nil
		}
		if b.inflight[chatID] {
			b.cond.Wait()
		}
		b.mu.Unlock()
	}
}

func (b *BatchBuffer) flush(ctx context.Context, chatID string) error {
	b.mu.Lock()
	if b.inflight[chatID] {
		b.mu.Unlock()
		return nil
	}
	b.inflight[chatID] = true
	b.mu.Unlock()

	err := b.drain(ctx, chatID)

	b.mu.Lock()
	delete(b.inflight, chatID)
	// An append that raced the final empty check hit the inflight guard
	// and scheduled nothing; reschedule its trigger here.
	if n := len(b.pending[chatID]); n > 0 && err == nil {
		if n >= b.size {
			go b.flush(context.Background(), chatID)
		} else if _, armed := b.timers[chatID]; !armed {
			b.armTimerLocked(chatID)
		}
	}
	b.cond.Broadcast()
	b.mu.Unlock()

	return err
}

// drain loops batches out of the chat's buffer until it observes it
// empty. Caller holds the chat's inflight flag.
func (b *BatchBuffer) drain(ctx context.Context, chatID string) error {
	for {
		b.mu.Lock()
		batch := b.pending[chatID]
		delete(b.pending, chatID)
		b.stopTimerLocked(chatID)
		b.mu.Unlock()

		if len(batch) == 0 {
			return nil
		}

		if err := b.persister.CreateInBatches(ctx, batch); err != nil {
			// Put the batch back in front of anything appended since
			// the drain; it stays re-flushable and nothing is written
			// twice. The re-armed timer retries later.
			b.mu.Lock()
			b.pending[chatID] = append(batch, b.pending[chatID]...)
			b.armTimerLocked(chatID)
			b.mu.Unlock()

			pkglog.L().Error().Err(err).
				Str(pkglog.FieldChatID, chatID).
				Int("batch_size", len(batch)).
				Msg("batch flush failed, batch preserved for retry")
			return err
		}
	}
}

// FlushAll synchronously flushes every chat with pending messages.
func (b *BatchBuffer) FlushAll(ctx context.Context) {
	b.mu.Lock()
	chatIDs := make([]string, 0, len(b.pending))
	for id := range b.pending {
		chatIDs = append(chatIDs, id)
	}
	b.mu.Unlock()

	for _, id := range chatIDs {
		if err := b.Flush(ctx, id); err != nil {
			pkglog.L().Error().Err(err).Str(pkglog.FieldChatID, id).Msg("flush-all failed for chat")
		}
	}
}

// PendingCount returns how many messages are buffered for a chat.
func (b *BatchBuffer) PendingCount(chatID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending[chatID])
}

// Close stops all timers and flushes everything still buffered.
func (b *BatchBuffer) Close(ctx context.Context) {
	b.mu.Lock()
	for id, t := range b.timers {
		t.Stop()
		delete(b.timers, id)
	}
	b.mu.Unlock()

	b.FlushAll(ctx)
}

// armTimerLocked arms the chat's time trigger. Caller holds b.mu.
func (b *BatchBuffer) armTimerLocked(chatID string) {
	b.timers[chatID] = time.AfterFunc(b.interval, func() {
		b.mu.Lock()
		delete(b.timers, chatID)
		b.mu.Unlock()
		b.flush(context.Background(), chatID)
	})
}

// stopTimerLocked cancels a pending time trigger. Caller holds b.mu.
func (b *BatchBuffer) stopTimerLocked(chatID string) {
	if t, ok := b.timers[chatID]; ok {
		t.Stop()
		delete(b.timers, chatID)
	}
}
