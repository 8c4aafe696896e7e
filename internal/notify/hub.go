// Package notify fans monitor output out to live subscribers (websocket
// clients) and to static sinks such as the MQTT publisher.
package notify

import (
	"context"
	"sync"

	"caregiver-companion/internal/models"

	"go.uber.org/zap"
)

type EventType string

const (
	EventView         EventType = "view"
	EventNotification EventType = "notification"
	EventAlert        EventType = "alert"
)

type Event struct {
	Type         EventType              `json:"type"`
	View         *models.View           `json:"view,omitempty"`
	Notification *models.Notification   `json:"notification,omitempty"`
	Alert        *models.EmergencyAlert `json:"alert,omitempty"`
}

// Sink receives every view and notification. Sinks must not block.
type Sink interface {
	Render(v models.View)
	Notify(n models.Notification)
}

type subscriber struct {
	ownerID string
	events  chan Event
}

type Hub struct {
	logger *zap.Logger
	buffer int

	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
	sinks  []Sink
	latest models.View
}

func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		logger: logger,
		buffer: buffer,
		subs:   make(map[int]*subscriber),
		latest: models.View{Snapshot: models.NewPlaceholderSnapshot()},
	}
}

func (h *Hub) AddSink(s Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks = append(h.sinks, s)
}

// Subscribe returns a channel of events for ownerID and a cancel function
// that closes it. The current view is delivered first.
func (h *Hub) Subscribe(ownerID string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	sub := &subscriber{ownerID: ownerID, events: make(chan Event, h.buffer)}
	h.subs[id] = sub

	if h.latest.OwnerID == ownerID {
		view := h.latest
		sub.events <- Event{Type: EventView, View: &view}
	}

	var once sync.Once
	return sub.events, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(sub.events)
		})
	}
}

// Latest is the most recently rendered view.
func (h *Hub) Latest() models.View {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

func (h *Hub) Render(v models.View) {
	h.mu.Lock()
	h.latest = v
	sinks := h.sinks
	h.broadcastLocked(v.OwnerID, Event{Type: EventView, View: &v})
	h.mu.Unlock()

	for _, s := range sinks {
		s.Render(v)
	}
}

func (h *Hub) Notify(n models.Notification) {
	h.mu.Lock()
	sinks := h.sinks
	h.broadcastLocked(n.OwnerID, Event{Type: EventNotification, Notification: &n})
	h.mu.Unlock()

	for _, s := range sinks {
		s.Notify(n)
	}
}

// PublishAlert pushes an alert to the patient's live subscribers.
func (h *Hub) PublishAlert(_ context.Context, alert models.EmergencyAlert) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(alert.OwnerID, Event{Type: EventAlert, Alert: &alert})
	return nil
}

// broadcastLocked delivers only to the event owner's subscribers. Events
// without an owner reach nobody.
func (h *Hub) broadcastLocked(ownerID string, ev Event) {
	for _, sub := range h.subs {
		if ownerID == "" || sub.ownerID != ownerID {
			continue
		}
		select {
		case sub.events <- ev:
		default:
			h.logger.Debug("dropping event for slow subscriber",
				zap.String("owner_id", sub.ownerID),
				zap.String("type", string(ev.Type)))
		}
	}
}
