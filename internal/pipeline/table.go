package pipeline

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
)

var (
	// ErrUnknownSlot is returned when a slot outside the closed set is named.
	ErrUnknownSlot = errors.New("unknown pipeline slot")

	// ErrNotAssigned is returned when a valid slot has no assigned source.
	ErrNotAssigned = errors.New("slot has no assigned source")

	// ErrNotEligible is returned when assigning a source that is not
	// registered with the source registry.
	ErrNotEligible = errors.New("source is not registered")
)

// ControlRequester asks the authority for ownership of a live slot. The
// request only takes effect once it round-trips through the authority and
// comes back as a record change.
type ControlRequester interface {
	RequestControl(slot Slot, sourceID, requesterID string) error
}

// OwnershipView answers whether a live slot is currently owned by another
// peer. Slots owned remotely are excluded from local conflict state.
type OwnershipView interface {
	RemotelyOwned(slot Slot) bool
}

// TableConfig carries the dependencies of a Table.
type TableConfig struct {
	Registry  *Registry
	Requester ControlRequester // nil disables live-slot control requests
	Ownership OwnershipView    // nil means no slot is remotely owned
	PeerID    string
	Log       *slog.Logger
}

// Table is the local, per-peer assignment of sources to pipeline slots. Each
// slot holds at most one source; assigning overwrites whatever was there.
// Mutations come from local user actions and from ownership-change feedback,
// which arrives asynchronously, so every entry point takes the table lock and
// side effects run outside it.
type Table struct {
	mu           sync.Mutex
	log          *slog.Logger
	registry     *Registry
	requester    ControlRequester
	ownership    OwnershipView
	peerID       string
	assignments  map[Slot]Source
	destinations map[Slot][]Destination
	highlights   []HighlightSink
	filters      []FilterSink
}

// NewTable returns an empty assignment table.
func NewTable(cfg TableConfig) *Table {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Table{
		log:          log,
		registry:     cfg.Registry,
		requester:    cfg.Requester,
		ownership:    cfg.Ownership,
		peerID:       cfg.PeerID,
		assignments:  make(map[Slot]Source),
		destinations: make(map[Slot][]Destination),
	}
}

// RegisterDestination adds a destination for a slot. Multiple destinations
// per slot are allowed; each receives the routed source identifier.
func (t *Table) RegisterDestination(slot Slot, d Destination) {
	if d == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.destinations[slot] = append(t.destinations[slot], d)
}

// RegisterHighlightSink adds a consumer of per-source conflict state.
func (t *Table) RegisterHighlightSink(h HighlightSink) {
	if h == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.highlights = append(t.highlights, h)
}

// RegisterFilterSink adds a consumer of the assigned-source identifier set.
func (t *Table) RegisterFilterSink(f FilterSink) {
	if f == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.filters = append(t.filters, f)
}

// Assign overwrites the slot with the given source and runs the side-effect
// chain: assigned-ID set, conflict state for every registered source, then
// destination routing for the slot. The chain runs after every assignment so
// consumers never observe stale conflict state.
func (t *Table) Assign(src Source, slot Slot) error {
	if _, ok := ParseSlot(string(slot)); !ok {
		t.log.Warn("assign rejected", slog.String("slot", string(slot)), slog.String("error", ErrUnknownSlot.Error()))
		return ErrUnknownSlot
	}
	if src == nil || src.Identifier() == "" {
		t.log.Warn("assign rejected, source has no identifier", slog.String("slot", string(slot)))
		return ErrNotEligible
	}
	if t.registry != nil && !t.registry.Eligible(src.Identifier()) {
		t.log.Warn("assign rejected, source not registered",
			slog.String("slot", string(slot)),
			slog.String("source_id", src.Identifier()))
		return ErrNotEligible
	}

	t.mu.Lock()
	t.assignments[slot] = src
	fx := t.effectsLocked(slot)
	t.mu.Unlock()

	t.log.Debug("source assigned",
		slog.String("slot", string(slot)),
		slog.String("source_id", src.Identifier()))
	t.deliver(fx)
	return nil
}

// ClickPreview assigns the source to the preview slot of the line,
// unconditionally overwriting whatever was there.
func (t *Table) ClickPreview(src Source, line Line) error {
	return t.Assign(src, line.Preview())
}

// Forward copies the source assigned to fromSlot into toSlot; fromSlot keeps
// its value. Forwarding from an empty slot is inert and reports false. When
// toSlot is a live slot the authority is asked for ownership on behalf of
// this peer; the outcome arrives later as a record change.
func (t *Table) Forward(fromSlot, toSlot Slot) bool {
	if _, ok := ParseSlot(string(fromSlot)); !ok {
		t.log.Warn("forward rejected", slog.String("from", string(fromSlot)), slog.String("error", ErrUnknownSlot.Error()))
		return false
	}
	if _, ok := ParseSlot(string(toSlot)); !ok {
		t.log.Warn("forward rejected", slog.String("to", string(toSlot)), slog.String("error", ErrUnknownSlot.Error()))
		return false
	}

	t.mu.Lock()
	src, ok := t.assignments[fromSlot]
	if !ok {
		t.mu.Unlock()
		t.log.Info("forward ignored, slot empty", slog.String("from", string(fromSlot)))
		return false
	}
	t.assignments[toSlot] = src
	fx := t.effectsLocked(toSlot)
	t.mu.Unlock()

	t.log.Info("content forwarded",
		slog.String("from", string(fromSlot)),
		slog.String("to", string(toSlot)),
		slog.String("source_id", src.Identifier()))
	t.deliver(fx)

	if toSlot.IsLive() && t.requester != nil {
		if err := t.requester.RequestControl(toSlot, src.Identifier(), t.peerID); err != nil {
			// A rejected request is self-healing: the record never changes,
			// the next click re-issues the intent.
			t.log.Warn("control request rejected",
				slog.String("slot", string(toSlot)),
				slog.String("source_id", src.Identifier()),
				slog.String("error", err.Error()))
		}
	}
	return true
}

// ActiveAssignment returns the source assigned to the slot. It is total over
// the closed slot set: a valid empty slot yields ErrNotAssigned.
func (t *Table) ActiveAssignment(slot Slot) (Source, error) {
	if _, ok := ParseSlot(string(slot)); !ok {
		return nil, ErrUnknownSlot
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	src, ok := t.assignments[slot]
	if !ok {
		return nil, ErrNotAssigned
	}
	return src, nil
}

// AssignedSourceIDs returns the distinct identifiers assigned anywhere in the
// pipeline, sorted.
func (t *Table) AssignedSourceIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.assignedIDsLocked()
}

// Snapshot returns the slot-to-identifier view of the table, with empty
// strings for unassigned slots.
func (t *Table) Snapshot() map[Slot]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[Slot]string, len(allSlots))
	for _, slot := range allSlots {
		if src, ok := t.assignments[slot]; ok {
			out[slot] = src.Identifier()
		} else {
			out[slot] = ""
		}
	}
	return out
}

// HandleOwnershipChange reacts to a replicated ownership change for a live
// slot. When another peer now owns the slot the local entry is forcibly
// cleared; conflict state is recomputed either way because the exclusion set
// changed.
func (t *Table) HandleOwnershipChange(slot Slot) {
	if !slot.IsLive() {
		return
	}
	remote := t.ownership != nil && t.ownership.RemotelyOwned(slot)

	t.mu.Lock()
	cleared := false
	if remote {
		if _, ok := t.assignments[slot]; ok {
			delete(t.assignments, slot)
			cleared = true
		}
	}
	var fx effects
	if cleared {
		fx = t.effectsLocked(slot)
	} else {
		fx = t.effectsLocked()
	}
	t.mu.Unlock()

	if cleared {
		t.log.Info("live slot cleared, taken over remotely", slog.String("slot", string(slot)))
	}
	t.deliver(fx)
}

// effects is a snapshot of the side-effect chain computed under the lock and
// delivered outside it, so sinks may re-enter the table.
type effects struct {
	filters      []FilterSink
	assignedIDs  []string
	highlights   []HighlightSink
	sourceStates []sourceState
	routes       []route
}

type sourceState struct {
	id          string
	conflicting bool
	occupied    []Slot
}

type route struct {
	dests []Destination
	id    string
}

// effectsLocked computes the side-effect chain for the given changed slots.
// Caller must hold t.mu.
func (t *Table) effectsLocked(changed ...Slot) effects {
	fx := effects{
		filters:     append([]FilterSink(nil), t.filters...),
		assignedIDs: t.assignedIDsLocked(),
		highlights:  append([]HighlightSink(nil), t.highlights...),
	}

	var registered []string
	if t.registry != nil {
		registered = t.registry.IDs()
		sort.Strings(registered)
	}
	for _, id := range registered {
		occupied := t.occupiedLocked(id)
		fx.sourceStates = append(fx.sourceStates, sourceState{
			id:          id,
			conflicting: Conflicting(occupied),
			occupied:    occupied,
		})
	}

	for _, slot := range changed {
		dests := t.destinations[slot]
		if len(dests) == 0 {
			continue
		}
		id := ""
		if src, ok := t.assignments[slot]; ok {
			id = src.Identifier()
		}
		fx.routes = append(fx.routes, route{
			dests: append([]Destination(nil), dests...),
			id:    id,
		})
	}
	return fx
}

// deliver runs the side-effect chain in order: filter set, conflict
// highlights, destination routing. Destinations always observe the
// post-assignment state.
func (t *Table) deliver(fx effects) {
	for _, f := range fx.filters {
		f.SetAssignedSources(fx.assignedIDs)
	}
	for _, h := range fx.highlights {
		for _, s := range fx.sourceStates {
			h.Highlight(s.id, s.conflicting, s.occupied)
		}
	}
	for _, r := range fx.routes {
		for _, d := range r.dests {
			d.RouteSource(r.id)
		}
	}
}

// assignedIDsLocked returns the sorted distinct assigned identifiers.
// Caller must hold t.mu.
func (t *Table) assignedIDsLocked() []string {
	set := make(map[string]struct{}, len(t.assignments))
	for _, src := range t.assignments {
		set[src.Identifier()] = struct{}{}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// occupiedLocked returns the slots the source occupies on this peer, in
// stable order, excluding live slots owned by another peer. Caller must hold
// t.mu.
func (t *Table) occupiedLocked(id string) []Slot {
	var occupied []Slot
	for _, slot := range allSlots {
		src, ok := t.assignments[slot]
		if !ok || src.Identifier() != id {
			continue
		}
		if slot.IsLive() && t.ownership != nil && t.ownership.RemotelyOwned(slot) {
			continue
		}
		occupied = append(occupied, slot)
	}
	return occupied
}
