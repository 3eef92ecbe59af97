package authority

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"broadcast-director/internal/pipeline"
)

// OwnershipState is a peer's derived view of one live slot, computed from the
// replicated record plus its own identity.
type OwnershipState int

const (
	// StateIdle means the record is inactive.
	StateIdle OwnershipState = iota
	// StateOwnedLocally means the record is active and owned by this peer.
	StateOwnedLocally
	// StateOwnedRemotely means the record is active and owned by another peer.
	StateOwnedRemotely
)

// String returns the state name for logs.
func (s OwnershipState) String() string {
	switch s {
	case StateOwnedLocally:
		return "owned_locally"
	case StateOwnedRemotely:
		return "owned_remotely"
	default:
		return "idle"
	}
}

// ListenerID identifies a registered mirror listener.
type ListenerID int

// Mirror is a peer's local replicated copy of the authority records. Changes
// are applied in arrival order and fanned out synchronously to registered
// listeners. All state transitions are driven exclusively by applied changes:
// a peer's own control request only takes effect here once it round-trips
// through the authority, including on the requester itself.
type Mirror struct {
	mu        sync.Mutex
	log       *slog.Logger
	peerID    string
	records   map[pipeline.Slot]Record
	next      ListenerID
	listeners map[ListenerID]func(Change)
}

// NewMirror returns an empty mirror for the peer.
func NewMirror(peerID string, log *slog.Logger) *Mirror {
	if log == nil {
		log = slog.Default()
	}
	return &Mirror{
		log:       log,
		peerID:    peerID,
		records:   make(map[pipeline.Slot]Record),
		listeners: make(map[ListenerID]func(Change)),
	}
}

// PeerID returns the identity the mirror derives ownership against.
func (m *Mirror) PeerID() string { return m.peerID }

// AddListener registers a synchronous change consumer. Listeners run on the
// goroutine that applies the change, in registration order.
func (m *Mirror) AddListener(fn func(Change)) ListenerID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.next
	m.next++
	m.listeners[id] = fn
	return id
}

// RemoveListener deterministically unregisters a listener.
func (m *Mirror) RemoveListener(id ListenerID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, id)
}

// Apply stores the change's current record and notifies listeners. Listeners
// are invoked outside the mirror lock so they may query the mirror.
func (m *Mirror) Apply(c Change) {
	m.mu.Lock()
	m.records[c.Slot] = c.Current
	ids := make([]ListenerID, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.listeners[id])
	}
	m.mu.Unlock()

	m.log.Debug("record change applied",
		slog.String("slot", string(c.Slot)),
		slog.String("description", c.Description),
		slog.Bool("replayed", c.Replayed))
	for _, fn := range fns {
		fn(c)
	}
}

// State derives the ownership state of a slot for this peer.
func (m *Mirror) State(slot pipeline.Slot) OwnershipState {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[slot]
	if !ok || !rec.Active {
		return StateIdle
	}
	if rec.OwnerID == m.peerID {
		return StateOwnedLocally
	}
	return StateOwnedRemotely
}

// OwnsLocally reports whether this peer currently owns the slot.
func (m *Mirror) OwnsLocally(slot pipeline.Slot) bool {
	return m.State(slot) == StateOwnedLocally
}

// RemotelyOwned reports whether another peer currently owns the slot. It
// satisfies the pipeline's ownership view.
func (m *Mirror) RemotelyOwned(slot pipeline.Slot) bool {
	return m.State(slot) == StateOwnedRemotely
}

// Owner returns the active owner of a slot, if any.
func (m *Mirror) Owner(slot pipeline.Slot) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[slot]
	if !ok || !rec.Active {
		return "", false
	}
	return rec.OwnerID, true
}

// SessionID returns the current fencing token of a slot; empty when
// inactive. Consumers that hold an older token must discard that session's
// stragglers.
func (m *Mirror) SessionID(slot pipeline.Slot) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[slot].SessionID
}

// Record returns the mirrored record for a slot.
func (m *Mirror) Record(slot pipeline.Slot) Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[slot]
	if !ok {
		return inactiveRecord(slot)
	}
	return rec
}

// Pump applies changes from the subscription until the context ends or the
// subscription is cancelled.
func Pump(ctx context.Context, sub *Subscription, apply func(Change)) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-sub.C:
			if !ok {
				return
			}
			apply(c)
		}
	}
}
