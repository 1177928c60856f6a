package server

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ashita-ai/archdoc/internal/service/designs"
)

// Broker fans out view events from the designs service to SSE subscribers.
// It implements designs.Publisher. Publish never blocks: a subscriber whose
// buffer is full misses the event.
type Broker struct {
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[chan []byte]string // channel -> view filter ("" = all)
}

// NewBroker creates a new SSE broker.
func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{
		logger:      logger,
		subscribers: make(map[chan []byte]string),
	}
}

// Publish formats ev as an SSE message and broadcasts it.
func (b *Broker) Publish(ev designs.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.Warn("broker: marshal event", "type", ev.Type, "error", err)
		return
	}
	b.broadcast(ev.ViewID, formatSSE(ev.Type, string(payload)))
}

// Subscribe returns a channel of SSE-formatted events. A non-empty viewID
// limits delivery to that view's events. The caller must Unsubscribe.
func (b *Broker) Subscribe(viewID string) chan []byte {
	ch := make(chan []byte, 64)
	b.mu.Lock()
	b.subscribers[ch] = viewID
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	b.mu.Unlock()
	close(ch)
}

// Subscribers returns the number of connected subscribers.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *Broker) broadcast(viewID string, event []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch, filter := range b.subscribers {
		if filter != "" && filter != viewID {
			continue
		}
		select {
		case ch <- event:
		default:
		}
	}
}

// formatSSE formats an event as a Server-Sent Events message.
func formatSSE(eventType, data string) []byte {
	return []byte("event: " + eventType + "\ndata: " + data + "\n\n")
}
