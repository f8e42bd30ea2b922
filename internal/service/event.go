package service

import (
	"context"
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	// System events
	EventTypeServiceStarted EventType = "service.started"
	EventTypeServiceStopped EventType = "service.stopped"
	EventTypeServiceError   EventType = "service.error"

	// Camera events
	EventTypeCameraConnected    EventType = "camera.connected"
	EventTypeCameraDisconnected EventType = "camera.disconnected"

	// Capture events
	EventTypeFrameCaptured EventType = "capture.frame"
	EventTypeCaptureFatal  EventType = "capture.fatal"

	// Detection events
	EventTypeThreatDetected  EventType = "detection.threat"
	EventTypeThreatCleared   EventType = "detection.cleared"
	EventTypeDetectorOffline EventType = "detection.offline"

	// Incident events
	EventTypeIncidentOpened   EventType = "incident.opened"
	EventTypeIncidentFlushed  EventType = "incident.flushed"
	EventTypeIncidentDegraded EventType = "incident.degraded"

	// Storage events
	EventTypeStorageFull    EventType = "storage.full"
	EventTypeStorageWarning EventType = "storage.warning"
)

// Event represents an event in the system
type Event struct {
	Type      EventType
	Source    string // Service that emitted the event
	Timestamp time.Time
	Data      map[string]interface{} // Event-specific data
}

// EventBus provides inter-service communication via events
type EventBus struct {
	subscribers map[EventType][]chan Event
	mu          sync.RWMutex
	bufferSize  int
}

// NewEventBus creates a new event bus
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe subscribes to events of a specific type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll subscribes to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan Event, eb.bufferSize)
	for eventType := range eb.subscribers {
		eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	}
	return ch
}

// Publish publishes an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			select {
			case sub <- event:
			default:
				// Channel full, skip (non-blocking)
			}
		}
	}
}

// Unsubscribe removes a subscription. Channels obtained via SubscribeAll are
// registered under every event type; the channel is only closed once its last
// registration is gone.
func (eb *EventBus) Unsubscribe(eventType EventType, ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.subscribers[eventType]
	for i, sub := range subs {
		if sub == ch {
			eb.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			if !eb.registeredLocked(sub) {
				close(sub)
			}
			break
		}
	}
}

// UnsubscribeAll removes every registration of ch and closes it.
func (eb *EventBus) UnsubscribeAll(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	var closed chan Event
	for eventType, subs := range eb.subscribers {
		for i, sub := range subs {
			if sub == ch {
				eb.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				closed = sub
				break
			}
		}
	}
	if closed != nil {
		close(closed)
	}
}

func (eb *EventBus) registeredLocked(ch chan Event) bool {
	for _, subs := range eb.subscribers {
		for _, sub := range subs {
			if sub == ch {
				return true
			}
		}
	}
	return false
}

// Close closes all subscriptions and cleans up. A channel registered under
// multiple event types is closed exactly once.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	seen := make(map[chan Event]bool)
	for eventType, subs := range eb.subscribers {
		for _, sub := range subs {
			if !seen[sub] {
				seen[sub] = true
				close(sub)
			}
		}
		delete(eb.subscribers, eventType)
	}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// SubscribeWithHandler subscribes to events and handles them with a function
func (eb *EventBus) SubscribeWithHandler(ctx context.Context, eventType EventType, handler EventHandler) {
	ch := eb.Subscribe(eventType)
	go func() {
		defer eb.Unsubscribe(eventType, ch)
		for {
			select {
			case event, ok := <-ch:
				if !ok {
					return
				}
				if err := handler(ctx, event); err != nil {
					_ = err
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
