package sse

import (
	"context"
	"sync"

	"ms-booking/internal/notify"
)

// AvailabilityEmitter fans booking notifications out to clients watching an
// event. It is a notify.Sink so it can sit next to the mail or Kafka sink.
type AvailabilityEmitter struct {
	mu      sync.RWMutex
	clients map[string][]chan notify.Notification
}

func NewAvailabilityEmitter() *AvailabilityEmitter {
	return &AvailabilityEmitter{clients: make(map[string][]chan notify.Notification)}
}

// Subscribe registers a client for eventID until ctx is done, at which point
// the returned channel is closed.
func (e *AvailabilityEmitter) Subscribe(ctx context.Context, eventID string) <-chan notify.Notification {
	ch := make(chan notify.Notification, 10)

	e.mu.Lock()
	e.clients[eventID] = append(e.clients[eventID], ch)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(eventID, ch)
	}()
	return ch
}

// Deliver broadcasts n to the event's subscribers. Slow clients miss updates
// rather than block the dispatcher.
func (e *AvailabilityEmitter) Deliver(_ context.Context, n notify.Notification) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, ch := range e.clients[n.EventID] {
		select {
		case ch <- n:
		default:
		}
	}
	return nil
}

func (e *AvailabilityEmitter) remove(eventID string, ch chan notify.Notification) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[eventID]
	for i, c := range clients {
		if c == ch {
			e.clients[eventID] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}
	if len(e.clients[eventID]) == 0 {
		delete(e.clients, eventID)
	}
}

// ClientCount returns the number of clients currently watching eventID
func (e *AvailabilityEmitter) ClientCount(eventID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[eventID])
}
