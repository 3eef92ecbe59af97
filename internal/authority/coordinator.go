package authority

import (
	"errors"
	"log/slog"
	"sync"

	"broadcast-director/internal/pipeline"
	"broadcast-director/internal/platform/id"
	"broadcast-director/internal/platform/metrics"
)

var (
	// ErrUnsupportedSlot is returned when control is requested for a slot
	// outside the supported live set.
	ErrUnsupportedSlot = errors.New("slot is not a supported live slot")

	// ErrNotReady is returned while the network session is not up.
	ErrNotReady = errors.New("coordinator is not ready")

	// ErrMissingSource is returned for a control request without a source
	// identifier.
	ErrMissingSource = errors.New("source identifier is required")

	// ErrMissingRequester is returned for a control request without a peer
	// identifier.
	ErrMissingRequester = errors.New("requester identifier is required")
)

// Config carries the dependencies of a Coordinator.
type Config struct {
	// SupportedSlots is the set of live slots control can be requested for.
	// Defaults to both live slots.
	SupportedSlots []pipeline.Slot
	Log            *slog.Logger
	Metrics        *metrics.Metrics // nil disables metric recording
	// SessionIDs generates the fencing token written on every activation.
	// Defaults to the platform session-token generator.
	SessionIDs func(slot pipeline.Slot) string
}

// Coordinator holds the authoritative ownership record of every supported
// live slot. It runs on exactly one peer per session (the host); all writes
// go through it, which is the whole concurrency story — there is no merge or
// retry logic because there is never a second writer. Every write fans out to
// subscribers as a Change.
type Coordinator struct {
	mu        sync.Mutex
	log       *slog.Logger
	metrics   *metrics.Metrics
	supported []pipeline.Slot
	records   map[pipeline.Slot]Record
	sessions  func(slot pipeline.Slot) string
	events    *hub
	ready     bool
}

// NewCoordinator returns a coordinator with every supported record in its
// inactive shape. The coordinator starts not ready; the transport layer
// flips readiness once the network session is up.
func NewCoordinator(cfg Config) *Coordinator {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	supported := cfg.SupportedSlots
	if len(supported) == 0 {
		supported = pipeline.LiveSlots()
	}
	sessions := cfg.SessionIDs
	if sessions == nil {
		sessions = func(slot pipeline.Slot) string { return id.NewSessionToken(string(slot)) }
	}

	records := make(map[pipeline.Slot]Record, len(supported))
	for _, slot := range supported {
		records[slot] = inactiveRecord(slot)
	}
	return &Coordinator{
		log:       log,
		metrics:   cfg.Metrics,
		supported: supported,
		records:   records,
		sessions:  sessions,
		events:    newHub(log),
	}
}

// SetReady flips the network-ready gate supplied by the transport layer.
func (c *Coordinator) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

// Ready reports whether control requests are currently accepted.
func (c *Coordinator) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// RequestControl grants ownership of a live slot to the requesting peer. If
// the record is currently active the handoff is two-phase: the existing
// record is first written deactivated so every receiver tears down the
// outgoing session, and only after that change has been handed to all
// subscribers is the new record written with a fresh session token. The two
// writes are not atomic across the network; a receiver may observe the
// deactivated record as a terminal state if the activation never lands.
//
// Rejections are diagnostics, not failures: the record is untouched and the
// next request simply re-issues the intent.
func (c *Coordinator) RequestControl(slot pipeline.Slot, sourceID, requesterID string) error {
	if c.metrics != nil {
		c.metrics.IncControlRequests()
	}
	if err := c.validateRequest(slot, sourceID, requesterID); err != nil {
		if c.metrics != nil {
			c.metrics.IncControlRejected()
		}
		c.log.Warn("control request rejected",
			slog.String("slot", string(slot)),
			slog.String("source_id", sourceID),
			slog.String("requester_id", requesterID),
			slog.String("error", err.Error()))
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.records[slot]
	takeover := cur.Active && cur.OwnerID != requesterID

	if cur.Active {
		deactivated := cur
		deactivated.Active = false
		c.writeLocked(cur, deactivated)
		cur = deactivated
	}

	next := Record{
		Slot:      slot,
		OwnerID:   requesterID,
		SourceID:  sourceID,
		SessionID: c.sessions(slot),
		Active:    true,
	}
	c.writeLocked(cur, next)

	if takeover && c.metrics != nil {
		c.metrics.IncTakeovers()
	}
	c.log.Info("control granted",
		slog.String("slot", string(slot)),
		slog.String("owner_id", requesterID),
		slog.String("source_id", sourceID),
		slog.String("session_id", next.SessionID))
	return nil
}

// ReleaseControl returns a slot to its inactive shape. It succeeds only when
// the requester owns the active record; anything else is silently ignored and
// the record is left unchanged. The return reports whether the record
// changed.
func (c *Coordinator) ReleaseControl(slot pipeline.Slot, requesterID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.records[slot]
	if !ok || !cur.Active || requesterID == "" || cur.OwnerID != requesterID {
		c.log.Debug("release ignored",
			slog.String("slot", string(slot)),
			slog.String("requester_id", requesterID))
		return false
	}

	c.writeLocked(cur, inactiveRecord(slot))
	if c.metrics != nil {
		c.metrics.IncReleases()
	}
	c.log.Info("control released",
		slog.String("slot", string(slot)),
		slog.String("owner_id", requesterID))
	return true
}

// ForceRelease is the operator override for records whose owner is gone: it
// deactivates the slot regardless of ownership. The return reports whether
// the record changed.
func (c *Coordinator) ForceRelease(slot pipeline.Slot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.records[slot]
	if !ok || !cur.Active {
		return false
	}

	c.writeLocked(cur, inactiveRecord(slot))
	if c.metrics != nil {
		c.metrics.IncForcedReleases()
	}
	c.log.Warn("control force-released",
		slog.String("slot", string(slot)),
		slog.String("owner_id", cur.OwnerID))
	return true
}

// PeerDisconnected releases every slot the peer still owns. The transport
// layer calls this when a peer's last event connection goes away, so a
// crashed director does not pin a broadcast output forever. Returns the
// number of slots released.
func (c *Coordinator) PeerDisconnected(peerID string) int {
	if peerID == "" {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	released := 0
	for _, slot := range c.supported {
		cur := c.records[slot]
		if !cur.Active || cur.OwnerID != peerID {
			continue
		}
		c.writeLocked(cur, inactiveRecord(slot))
		if c.metrics != nil {
			c.metrics.IncForcedReleases()
		}
		released++
	}
	if released > 0 {
		c.log.Warn("owner disconnected, slots released",
			slog.String("peer_id", peerID),
			slog.Int("slots", released))
	}
	return released
}

// Subscribe registers a change consumer. With replay, one synthesized
// transition from the inactive sentinel to the stored record is delivered for
// every currently active slot before any live change, so a late joiner
// reaches the same state a peer present throughout would have. buffer <= 0
// selects the default depth.
func (c *Coordinator) Subscribe(buffer int, replay bool) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub := c.events.subscribe(buffer)
	if replay {
		for _, slot := range c.supported {
			rec := c.records[slot]
			if !rec.Active {
				continue
			}
			sentinel := inactiveRecord(slot)
			change := Change{
				Slot:        slot,
				Previous:    sentinel,
				Current:     rec,
				Description: describeChange(sentinel, rec),
				Replayed:    true,
			}
			select {
			case sub.ch <- change:
			default:
				c.log.Warn("replay dropped, subscriber buffer full", slog.String("slot", string(slot)))
			}
		}
	}
	return sub
}

// Records returns a snapshot of every supported record in stable order.
func (c *Coordinator) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, 0, len(c.supported))
	for _, slot := range c.supported {
		out = append(out, c.records[slot])
	}
	return out
}

// Record returns the stored record for a slot; ok is false for unsupported
// slots.
func (c *Coordinator) Record(slot pipeline.Slot) (Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[slot]
	return rec, ok
}

// ActiveSlotCount returns the number of active records. Used for metrics.
func (c *Coordinator) ActiveSlotCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, rec := range c.records {
		if rec.Active {
			n++
		}
	}
	return n
}

// SubscriberCount returns the number of attached subscriptions. Used for
// metrics.
func (c *Coordinator) SubscriberCount() int {
	return c.events.count()
}

// Close detaches all subscribers and closes their channels.
func (c *Coordinator) Close() {
	c.events.close()
}

// validateRequest applies the request taxonomy: unsupported slot, not ready,
// missing identity. All are local no-ops for the record.
func (c *Coordinator) validateRequest(slot pipeline.Slot, sourceID, requesterID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.records[slot]; !ok {
		return ErrUnsupportedSlot
	}
	if !c.ready {
		return ErrNotReady
	}
	if sourceID == "" {
		return ErrMissingSource
	}
	if requesterID == "" {
		return ErrMissingRequester
	}
	return nil
}

// writeLocked stores the new record and fans the change out to every
// subscriber before returning. Caller must hold c.mu.
func (c *Coordinator) writeLocked(prev, cur Record) {
	c.records[cur.Slot] = cur
	c.events.publish(Change{
		Slot:        cur.Slot,
		Previous:    prev,
		Current:     cur,
		Description: describeChange(prev, cur),
	})
}
