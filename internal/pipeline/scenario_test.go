package pipeline_test

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"broadcast-director/internal/authority"
	"broadcast-director/internal/pipeline"
)

// conflictBoard records the latest highlight state per source, the way the
// director UI would.
type conflictBoard struct {
	mu       sync.Mutex
	conflict map[string]bool
	occupied map[string][]pipeline.Slot
}

func newConflictBoard() *conflictBoard {
	return &conflictBoard{
		conflict: make(map[string]bool),
		occupied: make(map[string][]pipeline.Slot),
	}
}

func (b *conflictBoard) Highlight(sourceID string, conflicting bool, occupied []pipeline.Slot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conflict[sourceID] = conflicting
	b.occupied[sourceID] = occupied
}

func (b *conflictBoard) conflicting(sourceID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conflict[sourceID]
}

func (b *conflictBoard) slots(sourceID string) []pipeline.Slot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.occupied[sourceID]
}

// peer wires a table, a mirror and a subscription against a shared
// coordinator, the way one running director instance is assembled.
type peer struct {
	id     string
	table  *pipeline.Table
	mirror *authority.Mirror
	sub    *authority.Subscription
	board  *conflictBoard
}

func newPeer(t *testing.T, id string, coord *authority.Coordinator, reg *pipeline.Registry) *peer {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mirror := authority.NewMirror(id, log)
	table := pipeline.NewTable(pipeline.TableConfig{
		Registry:  reg,
		Requester: coord,
		Ownership: mirror,
		PeerID:    id,
		Log:       log,
	})
	mirror.AddListener(func(c authority.Change) {
		table.HandleOwnershipChange(c.Slot)
	})
	sub := coord.Subscribe(0, true)
	t.Cleanup(sub.Cancel)

	board := newConflictBoard()
	table.RegisterHighlightSink(board)
	return &peer{id: id, table: table, mirror: mirror, sub: sub, board: board}
}

// sync applies every buffered change to the peer's mirror, simulating the
// event stream catching up.
func (p *peer) sync() {
	for {
		select {
		case c := <-p.sub.C:
			p.mirror.Apply(c)
		default:
			return
		}
	}
}

func newScenarioCoordinator(t *testing.T) *authority.Coordinator {
	t.Helper()
	c := authority.NewCoordinator(authority.Config{
		Log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	c.SetReady(true)
	t.Cleanup(c.Close)
	return c
}

// TestDirector_clickSequence walks the canonical operator session: preview
// clicks on both lines, both previews forwarded live, then a preview
// overwrite that puts one source on both lines at once.
func TestDirector_clickSequence(t *testing.T) {
	coord := newScenarioCoordinator(t)
	reg := pipeline.NewRegistry()
	p := newPeer(t, "director-1", coord, reg)

	s1 := pipeline.NDISource{Name: "S1"}
	s2 := pipeline.NDISource{Name: "S2"}
	reg.Register(s1)
	reg.Register(s2)

	if err := p.table.ClickPreview(s1, pipeline.LineTV); err != nil {
		t.Fatalf("click S1: %v", err)
	}
	if err := p.table.ClickPreview(s2, pipeline.LineStudio); err != nil {
		t.Fatalf("click S2: %v", err)
	}

	if !p.table.Forward(pipeline.SlotTVPreview, pipeline.SlotTVLive) {
		t.Fatal("forward tv_preview should move content")
	}
	p.sync()
	if !p.table.Forward(pipeline.SlotStudioPreview, pipeline.SlotStudioLive) {
		t.Fatal("forward studio_preview should move content")
	}
	p.sync()

	snap := p.table.Snapshot()
	want := map[pipeline.Slot]string{
		pipeline.SlotTVPreview:     "S1",
		pipeline.SlotTVLive:        "S1",
		pipeline.SlotStudioPreview: "S2",
		pipeline.SlotStudioLive:    "S2",
	}
	for slot, id := range want {
		if snap[slot] != id {
			t.Errorf("slot %s: expected %q, got %q", slot, id, snap[slot])
		}
	}

	// Forwarding requested control; this peer owns both live slots.
	if !p.mirror.OwnsLocally(pipeline.SlotTVLive) {
		t.Error("expected local ownership of tv_live")
	}
	if !p.mirror.OwnsLocally(pipeline.SlotStudioLive) {
		t.Error("expected local ownership of studio_live")
	}

	// Overwrite: S2 lands on tv_preview, occupying both preview slots plus
	// studio_live.
	if err := p.table.ClickPreview(s2, pipeline.LineTV); err != nil {
		t.Fatalf("overwrite click S2: %v", err)
	}

	if !p.board.conflicting("S2") {
		t.Errorf("S2 occupies %v and must conflict", p.board.slots("S2"))
	}
	if p.board.conflicting("S1") {
		t.Errorf("S1 occupies %v and must not conflict", p.board.slots("S1"))
	}

	if got := p.board.slots("S2"); len(got) != 3 {
		t.Errorf("expected S2 on three slots, got %v", got)
	}
	if got := p.board.slots("S1"); len(got) != 1 || got[0] != pipeline.SlotTVLive {
		t.Errorf("expected S1 only on tv_live, got %v", got)
	}
}

// TestDirector_remoteTakeover drives two peers against one coordinator and
// checks that losing a live slot clears it locally and removes it from
// conflict state.
func TestDirector_remoteTakeover(t *testing.T) {
	coord := newScenarioCoordinator(t)
	reg := pipeline.NewRegistry()
	p1 := newPeer(t, "director-1", coord, reg)
	p2 := newPeer(t, "director-2", coord, reg)

	s1 := pipeline.NDISource{Name: "S1"}
	s2 := pipeline.NDISource{Name: "S2"}
	reg.Register(s1)
	reg.Register(s2)

	// Peer 1 takes tv_live.
	if err := p1.table.ClickPreview(s1, pipeline.LineTV); err != nil {
		t.Fatalf("p1 click: %v", err)
	}
	p1.table.Forward(pipeline.SlotTVPreview, pipeline.SlotTVLive)
	p1.sync()
	p2.sync()

	if !p1.mirror.OwnsLocally(pipeline.SlotTVLive) {
		t.Fatal("p1 should own tv_live")
	}
	if !p2.mirror.RemotelyOwned(pipeline.SlotTVLive) {
		t.Fatal("p2 should see tv_live as remote")
	}

	// Peer 2 takes it over.
	if err := p2.table.ClickPreview(s2, pipeline.LineTV); err != nil {
		t.Fatalf("p2 click: %v", err)
	}
	p2.table.Forward(pipeline.SlotTVPreview, pipeline.SlotTVLive)
	p1.sync()
	p2.sync()

	if !p2.mirror.OwnsLocally(pipeline.SlotTVLive) {
		t.Fatal("p2 should own tv_live after takeover")
	}

	// Peer 1's local copy of the lost slot is forcibly cleared.
	if _, err := p1.table.ActiveAssignment(pipeline.SlotTVLive); err == nil {
		t.Error("p1 tv_live assignment should be cleared after remote takeover")
	}
	if got := p1.table.Snapshot()[pipeline.SlotTVPreview]; got != "S1" {
		t.Errorf("p1 preview must survive the takeover, got %q", got)
	}

	// S1 keeps its preview occupancy only; no conflict either side.
	if p1.board.conflicting("S1") {
		t.Error("S1 must not conflict after losing tv_live")
	}
	if got := p1.board.slots("S1"); len(got) != 1 || got[0] != pipeline.SlotTVPreview {
		t.Errorf("expected S1 only on tv_preview, got %v", got)
	}
}
