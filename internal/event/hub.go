// Package event provides in-memory fan-out of message change
// notifications to subscribers (the realtime broadcast side channel).
package event

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/crmlat/wabot/internal/messages"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// MessageChanged is published after every successful message create or
// status mutation.
type MessageChanged struct {
	Message      messages.Message `json:"message"`
	StatusChange bool             `json:"change"`
}

// Hub is an in-memory pub/sub for MessageChanged events. It decouples
// the webhook core from the realtime transport: the core only publishes.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]chan MessageChanged
	logger      *slog.Logger
}

// NewHub creates a hub. Pass nil logger for the default.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		subscribers: make(map[string]chan MessageChanged),
		logger:      log.With(slog.String("component", "event_hub")),
	}
}

// PublishMessageChanged implements messages.Publisher. Non-blocking:
// events are dropped for subscribers whose channels are full. The read
// lock is held across the sends so Unsubscribe cannot close a channel
// mid-publish.
func (h *Hub) PublishMessageChanged(msg messages.Message, statusChange bool) {
	evt := MessageChanged{Message: msg, StatusChange: statusChange}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- evt:
		default:
			h.logger.Warn("subscriber buffer full, event dropped",
				slog.String("wam_id", msg.WamID), slog.Bool("change", statusChange))
		}
	}
}

// Subscribe registers a subscriber and returns its event channel. The
// subscription is removed when ctx is cancelled.
func (h *Hub) Subscribe(ctx context.Context) (<-chan MessageChanged, string) {
	subID := uuid.New().String()
	ch := make(chan MessageChanged, subscriberBufferSize)

	h.mu.Lock()
	h.subscribers[subID] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.Unsubscribe(subID)
	}()

	return ch, subID
}

// Unsubscribe removes a subscriber and closes its channel. Closing
// under the write lock keeps it ordered after any in-flight publish.
func (h *Hub) Unsubscribe(subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[subID]; ok {
		delete(h.subscribers, subID)
		close(ch)
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
