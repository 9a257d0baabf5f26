// Package realtime is the in-process live-push channel. It keeps a registry
// of currently connected subscribers grouped by role and identity and
// delivers named events to them best-effort. It knows nothing about the
// transport on top (SSE, WebSocket); the api package adapts it.
package realtime

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/talentbridge/platform/internal/metrics"
	"github.com/talentbridge/platform/internal/notify"
)

// Event is one named payload delivered to a subscriber.
type Event struct {
	Name    string `json:"event"`
	Payload any    `json:"payload"`
}

type subscriber struct {
	id          uuid.UUID
	recipientID *int64
	ch          chan Event
}

// Subscription is a live registration handle. Events arrives on C until
// Unsubscribe, which closes it.
type Subscription struct {
	ID     uuid.UUID
	Target notify.Target
	C      <-chan Event
}

// Hub is the process-wide subscriber registry. Connection handlers mutate
// it; the dispatcher only reads it to select emit targets.
type Hub struct {
	mu     sync.RWMutex
	byRole map[string]map[uuid.UUID]*subscriber
	logger *zap.Logger
	buffer int
}

// NewHub creates a hub whose subscriber channels buffer up to buffer
// events. A subscriber that falls further behind loses events; durability
// is the store's job, not the hub's.
func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		byRole: make(map[string]map[uuid.UUID]*subscriber),
		logger: logger,
		buffer: buffer,
	}
}

// Subscribe registers a connected client for the given target. A target
// with a RecipientID receives targeted events for that identity plus role
// broadcasts; a role-only target receives role broadcasts only.
func (h *Hub) Subscribe(target notify.Target) *Subscription {
	sub := &subscriber{
		id:          uuid.New(),
		recipientID: target.RecipientID,
		ch:          make(chan Event, h.buffer),
	}

	h.mu.Lock()
	if h.byRole[target.Role] == nil {
		h.byRole[target.Role] = make(map[uuid.UUID]*subscriber)
	}
	h.byRole[target.Role][sub.id] = sub
	total := h.countLocked()
	h.mu.Unlock()

	metrics.SetRealtimeSubscribers(total)
	h.logger.Debug("subscriber registered",
		zap.String("subscriber_id", sub.id.String()),
		zap.String("role", target.Role),
		zap.Bool("broadcast_only", target.RecipientID == nil),
	)

	return &Subscription{ID: sub.id, Target: target, C: sub.ch}
}

// Unsubscribe removes a registration and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	subs := h.byRole[sub.Target.Role]
	s, ok := subs[sub.ID]
	if ok {
		delete(subs, sub.ID)
		close(s.ch)
	}
	total := h.countLocked()
	h.mu.Unlock()

	if ok {
		metrics.SetRealtimeSubscribers(total)
	}
}

// Emit delivers a named event to subscribers matching the target. With a
// RecipientID it reaches only subscribers registered under that exact
// (role, id) pair; without one it reaches every subscriber of the role.
// Sends never block: a full subscriber buffer drops the event.
func (h *Hub) Emit(event string, payload any, target notify.Target) {
	ev := Event{Name: event, Payload: payload}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, s := range h.byRole[target.Role] {
		if target.RecipientID != nil {
			if s.recipientID == nil || *s.recipientID != *target.RecipientID {
				continue
			}
		}
		select {
		case s.ch <- ev:
		default:
			metrics.RecordRealtimeDropped()
			h.logger.Warn("subscriber buffer full, event dropped",
				zap.String("subscriber_id", s.id.String()),
				zap.String("role", target.Role),
				zap.String("event", event),
			)
		}
	}
}

// SubscriberCount returns the number of currently connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.countLocked()
}

func (h *Hub) countLocked() int {
	n := 0
	for _, subs := range h.byRole {
		n += len(subs)
	}
	return n
}
