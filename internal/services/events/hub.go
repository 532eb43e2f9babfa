package events

import (
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/veoflow/veoflow/internal/interfaces"
	"golang.org/x/time/rate"
)

const subscriberBuffer = 64

// Hub fans task status events out to subscribers (websocket handlers,
// tests). Publishing never blocks: a subscriber that stops draining loses
// events rather than stalling the orchestrator.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[int]chan interfaces.TaskEvent
	nextID      int
	limiter     *rate.Limiter
	logger      arbor.ILogger
}

// NewHub creates an event hub. throttle caps the broadcast rate; completion
// and failure events bypass the throttle so terminal status is never lost.
func NewHub(throttle time.Duration, logger arbor.ILogger) *Hub {
	limit := rate.Inf
	if throttle > 0 {
		limit = rate.Every(throttle)
	}
	return &Hub{
		subscribers: make(map[int]chan interfaces.TaskEvent),
		limiter:     rate.NewLimiter(limit, 1),
		logger:      logger,
	}
}

// Publish broadcasts an event to all subscribers
func (h *Hub) Publish(event interfaces.TaskEvent) {
	if !event.Status.IsTerminal() && !h.limiter.Allow() {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			h.logger.Debug().
				Int("subscriber", id).
				Str("task_id", event.TaskID).
				Msg("Dropped event for slow subscriber")
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called to release the channel.
func (h *Hub) Subscribe() (<-chan interfaces.TaskEvent, func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	ch := make(chan interfaces.TaskEvent, subscriberBuffer)
	h.subscribers[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if existing, ok := h.subscribers[id]; ok {
			delete(h.subscribers, id)
			close(existing)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Close drops all subscribers
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subscribers {
		delete(h.subscribers, id)
		close(ch)
	}
}
