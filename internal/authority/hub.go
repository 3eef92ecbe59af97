package authority

import (
	"log/slog"
	"sync"
)

// DefaultSubscriptionBuffer is the channel depth handed to subscribers that
// do not ask for one.
const DefaultSubscriptionBuffer = 64

// Subscription is one consumer's ordered view of record changes. Changes
// arrive on C in publish order; Cancel detaches the subscription and closes
// the channel.
type Subscription struct {
	C   <-chan Change
	id  int
	ch  chan Change
	hub *hub
}

// Cancel detaches the subscription. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.hub.remove(s.id)
}

// hub fans record changes out to subscribers. Each subscriber gets its own
// buffered FIFO channel so per-subscriber ordering holds; a subscriber that
// stops draining loses changes rather than blocking the writer, which is safe
// because every consumer re-renders from the record, and remote consumers
// recover via reconnect replay.
type hub struct {
	mu     sync.Mutex
	log    *slog.Logger
	next   int
	subs   map[int]chan Change
	closed bool
}

func newHub(log *slog.Logger) *hub {
	return &hub{log: log, subs: make(map[int]chan Change)}
}

func (h *hub) subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultSubscriptionBuffer
	}
	ch := make(chan Change, buffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	if h.closed {
		close(ch)
	} else {
		h.subs[id] = ch
	}
	return &Subscription{C: ch, id: id, ch: ch, hub: h}
}

func (h *hub) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(ch)
}

func (h *hub) publish(c Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- c:
		default:
			h.log.Warn("subscriber buffer full, change dropped",
				slog.Int("subscriber", id),
				slog.String("slot", string(c.Slot)))
		}
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
