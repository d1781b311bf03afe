package registry

import (
	"sync"
	"time"

	"github.com/davidvanstory/MultiplayerGame/internal/platform/telemetry/metrics"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/broadcast"
)

const (
	// subscriberBuffer is the per-subscriber channel depth before the drop
	// policy applies.
	subscriberBuffer = 16
	// broadcastWait bounds how long a fanout waits on one full subscriber
	// before dropping the message for that subscriber.
	broadcastWait = 5 * time.Millisecond
)

// Subscription receives a room's broadcasts for one attached client.
type Subscription struct {
	hub *Hub
	ch  chan broadcast.Message
}

// Events is the stream of broadcasts in commit order. The channel closes
// when the subscription or its hub is closed.
func (s *Subscription) Events() <-chan broadcast.Message {
	return s.ch
}

// Close detaches the subscription from its hub.
func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.hub.unsubscribe(s)
}

// Hub fans committed broadcasts out to a room's subscribers.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

func newHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscribe attaches a buffered subscription. Returns nil when the hub has
// already been closed.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	sub := &Subscription{
		hub: h,
		ch:  make(chan broadcast.Message, subscriberBuffer),
	}
	h.subs[sub] = struct{}{}
	metrics.Subscribers.Inc()
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
	metrics.Subscribers.Dec()
}

// Broadcast delivers msg to every subscriber. A subscriber whose buffer
// stays full past the bounded wait loses this message; the commit path never
// stalls indefinitely on a slow consumer.
func (h *Hub) Broadcast(msg broadcast.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var timer *time.Timer
	for sub := range h.subs {
		select {
		case sub.ch <- msg:
			continue
		default:
		}

		if timer == nil {
			timer = time.NewTimer(broadcastWait)
		} else {
			timer.Reset(broadcastWait)
		}
		select {
		case sub.ch <- msg:
			if !timer.Stop() {
				<-timer.C
			}
		case <-timer.C:
			metrics.BroadcastDrops.Inc()
		}
	}
	if timer != nil {
		timer.Stop()
	}
}

// Subscribers reports the number of attached subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close detaches every subscriber and closes their channels. Further
// Subscribe calls return nil.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		close(sub.ch)
		delete(h.subs, sub)
		metrics.Subscribers.Dec()
	}
}
