// Package bus fans application events out to connected sync clients.
package bus

import (
	"encoding/json"
	"sync"

	"github.com/donahelp/fluxo-sync-go/internal/domain"
	"github.com/donahelp/fluxo-sync-go/internal/infra/observability"

	"go.uber.org/zap"
)

// subscriberBuffer is the per-client send queue depth. A client that
// falls this far behind loses events and must resync on reconnect.
const subscriberBuffer = 64

// Subscriber is one connected client's view of the event stream.
type Subscriber struct {
	ch chan []byte
}

// C returns the channel of marshaled event frames for this subscriber.
func (s *Subscriber) C() <-chan []byte { return s.ch }

// Hub is an in-process broadcast bus. Publish never blocks: frames for
// slow subscribers are dropped, not queued without bound.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*Subscriber]struct{}
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(metrics *observability.Metrics, logger *zap.Logger) *Hub {
	return &Hub{
		subs:    make(map[*Subscriber]struct{}),
		metrics: metrics,
		logger:  logger,
	}
}

// Subscribe registers a new client and returns its event stream.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{ch: make(chan []byte, subscriberBuffer)}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	h.metrics.ClientConnected()
	return sub
}

// Unsubscribe removes a client and closes its stream. Safe to call once
// per subscriber.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	_, ok := h.subs[sub]
	if ok {
		delete(h.subs, sub)
	}
	h.mu.Unlock()

	if ok {
		close(sub.ch)
		h.metrics.ClientDisconnected()
	}
}

// Publish marshals the event once and hands it to every subscriber.
// Each subscriber sees events in publish order. Frames are dropped for subscribers whose buffer
// is full; the publisher never waits on a client.
func (h *Hub) Publish(ev domain.Event) {
	frame, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal event", zap.String("event", ev.Name), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs {
		select {
		case sub.ch <- frame:
			h.metrics.IncrEventBroadcast(ev.Name)
		default:
			h.metrics.IncrEventDropped(ev.Name)
			h.logger.Warn("dropped event for slow client", zap.String("event", ev.Name))
		}
	}
}

// Len reports the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
