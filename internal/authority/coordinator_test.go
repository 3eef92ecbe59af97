package authority

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"broadcast-director/internal/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sequentialSessions returns a deterministic token generator for tests.
func sequentialSessions() func(pipeline.Slot) string {
	n := 0
	return func(slot pipeline.Slot) string {
		n++
		return fmt.Sprintf("%s-session-%d", slot, n)
	}
}

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	c := NewCoordinator(Config{
		Log:        testLogger(),
		SessionIDs: sequentialSessions(),
	})
	c.SetReady(true)
	return c
}

// drain reads exactly n buffered changes from the subscription.
func drain(t *testing.T, sub *Subscription, n int) []Change {
	t.Helper()
	out := make([]Change, 0, n)
	for i := 0; i < n; i++ {
		select {
		case c := <-sub.C:
			out = append(out, c)
		default:
			t.Fatalf("expected %d buffered changes, got %d", n, i)
		}
	}
	select {
	case c := <-sub.C:
		t.Fatalf("unexpected extra change: %+v", c)
	default:
	}
	return out
}

func TestRequestControl_notReady(t *testing.T) {
	c := NewCoordinator(Config{Log: testLogger()})

	err := c.RequestControl(pipeline.SlotTVLive, "camA", "director-1")
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if rec, _ := c.Record(pipeline.SlotTVLive); rec.Active {
		t.Error("rejected request must not touch the record")
	}
}

func TestRequestControl_validation(t *testing.T) {
	c := newTestCoordinator(t)

	tests := []struct {
		name      string
		slot      pipeline.Slot
		source    string
		requester string
		want      error
	}{
		{"preview slot", pipeline.SlotTVPreview, "camA", "director-1", ErrUnsupportedSlot},
		{"unknown slot", pipeline.Slot("backstage"), "camA", "director-1", ErrUnsupportedSlot},
		{"missing source", pipeline.SlotTVLive, "", "director-1", ErrMissingSource},
		{"missing requester", pipeline.SlotTVLive, "camA", "", ErrMissingRequester},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.RequestControl(tt.slot, tt.source, tt.requester); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRequestControl_activates(t *testing.T) {
	c := newTestCoordinator(t)

	if err := c.RequestControl(pipeline.SlotTVLive, "camA", "director-1"); err != nil {
		t.Fatalf("request control: %v", err)
	}

	rec, ok := c.Record(pipeline.SlotTVLive)
	if !ok {
		t.Fatal("expected a record for tv_live")
	}
	if !rec.Active || rec.OwnerID != "director-1" || rec.SourceID != "camA" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.SessionID == "" {
		t.Error("activation must carry a session token")
	}
}

func TestRequestControl_twoPhaseHandoff(t *testing.T) {
	c := newTestCoordinator(t)
	sub := c.Subscribe(0, false)
	defer sub.Cancel()

	if err := c.RequestControl(pipeline.SlotTVLive, "camA", "director-1"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	first := drain(t, sub, 1)[0]
	if !first.Current.Active || first.Current.OwnerID != "director-1" {
		t.Fatalf("unexpected first change: %+v", first)
	}
	session1 := first.Current.SessionID

	if err := c.RequestControl(pipeline.SlotTVLive, "camB", "director-2"); err != nil {
		t.Fatalf("takeover request: %v", err)
	}
	changes := drain(t, sub, 2)

	// Teardown of the old owner lands before the new activation.
	if changes[0].Current.Active {
		t.Errorf("expected deactivation first, got %+v", changes[0])
	}
	if changes[0].Current.OwnerID != "director-1" || changes[0].Current.SessionID != session1 {
		t.Errorf("deactivation must keep the outgoing record's identity: %+v", changes[0])
	}
	if !changes[1].Current.Active || changes[1].Current.OwnerID != "director-2" {
		t.Errorf("expected activation second, got %+v", changes[1])
	}
	if changes[1].Current.SessionID == session1 {
		t.Error("takeover must mint a fresh session token")
	}
}

func TestRequestControl_sameOwnerRefresh(t *testing.T) {
	c := newTestCoordinator(t)

	if err := c.RequestControl(pipeline.SlotTVLive, "camA", "director-1"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	s1 := must(c.Record(pipeline.SlotTVLive)).SessionID

	// Same owner switching source still cycles through deactivate/activate.
	if err := c.RequestControl(pipeline.SlotTVLive, "camB", "director-1"); err != nil {
		t.Fatalf("second request: %v", err)
	}
	rec := must(c.Record(pipeline.SlotTVLive))
	if rec.SourceID != "camB" || rec.SessionID == s1 {
		t.Errorf("expected new source and fresh session, got %+v", rec)
	}
}

func TestReleaseControl_ownerOnly(t *testing.T) {
	c := newTestCoordinator(t)
	if err := c.RequestControl(pipeline.SlotTVLive, "camA", "director-1"); err != nil {
		t.Fatalf("request control: %v", err)
	}

	if c.ReleaseControl(pipeline.SlotTVLive, "director-2") {
		t.Error("non-owner release must be ignored")
	}
	if rec := must(c.Record(pipeline.SlotTVLive)); !rec.Active {
		t.Error("ignored release must not touch the record")
	}

	if !c.ReleaseControl(pipeline.SlotTVLive, "director-1") {
		t.Error("owner release must succeed")
	}
	if rec := must(c.Record(pipeline.SlotTVLive)); rec.Active || rec.OwnerID != "" {
		t.Errorf("expected inactive record after release, got %+v", rec)
	}
}

func TestReleaseControl_inactive(t *testing.T) {
	c := newTestCoordinator(t)
	if c.ReleaseControl(pipeline.SlotTVLive, "director-1") {
		t.Error("releasing an inactive slot must be a no-op")
	}
}

func TestForceRelease(t *testing.T) {
	c := newTestCoordinator(t)
	if c.ForceRelease(pipeline.SlotTVLive) {
		t.Error("force release of an inactive slot must report false")
	}

	if err := c.RequestControl(pipeline.SlotTVLive, "camA", "director-1"); err != nil {
		t.Fatalf("request control: %v", err)
	}
	if !c.ForceRelease(pipeline.SlotTVLive) {
		t.Error("force release must succeed regardless of ownership")
	}
	if rec := must(c.Record(pipeline.SlotTVLive)); rec.Active {
		t.Errorf("expected inactive record, got %+v", rec)
	}
}

func TestPeerDisconnected(t *testing.T) {
	c := newTestCoordinator(t)
	if err := c.RequestControl(pipeline.SlotTVLive, "camA", "director-1"); err != nil {
		t.Fatalf("request tv_live: %v", err)
	}
	if err := c.RequestControl(pipeline.SlotStudioLive, "camB", "director-1"); err != nil {
		t.Fatalf("request studio_live: %v", err)
	}

	if n := c.PeerDisconnected("director-2"); n != 0 {
		t.Errorf("disconnect of a non-owner released %d slots", n)
	}
	if n := c.PeerDisconnected("director-1"); n != 2 {
		t.Errorf("expected 2 released slots, got %d", n)
	}
	if c.ActiveSlotCount() != 0 {
		t.Error("expected no active slots after owner disconnect")
	}
}

func TestSubscribe_replay(t *testing.T) {
	c := newTestCoordinator(t)
	if err := c.RequestControl(pipeline.SlotTVLive, "camA", "director-1"); err != nil {
		t.Fatalf("request control: %v", err)
	}

	sub := c.Subscribe(0, true)
	defer sub.Cancel()

	changes := drain(t, sub, 1)
	ch := changes[0]
	if !ch.Replayed {
		t.Error("late-joiner change must be marked replayed")
	}
	if ch.Previous.Active || ch.Previous.OwnerID != "" {
		t.Errorf("replay previous must be the inactive sentinel, got %+v", ch.Previous)
	}
	if ch.Current.OwnerID != "director-1" || !ch.Current.Active {
		t.Errorf("unexpected replayed record: %+v", ch.Current)
	}
}

func TestSubscribe_replayNothingWhenIdle(t *testing.T) {
	c := newTestCoordinator(t)
	sub := c.Subscribe(0, true)
	defer sub.Cancel()
	drain(t, sub, 0)
}

func TestSubscription_Cancel(t *testing.T) {
	c := newTestCoordinator(t)
	sub := c.Subscribe(0, false)
	if c.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", c.SubscriberCount())
	}
	sub.Cancel()
	if c.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after cancel, got %d", c.SubscriberCount())
	}
}

func TestDescribeChange(t *testing.T) {
	slot := pipeline.SlotTVLive
	active := Record{Slot: slot, OwnerID: "director-1", Active: true}

	if got := describeChange(inactiveRecord(slot), active); got != "tv_live started by director-1" {
		t.Errorf("unexpected description: %q", got)
	}
	if got := describeChange(active, inactiveRecord(slot)); got != "tv_live stopped" {
		t.Errorf("unexpected description: %q", got)
	}
	prev := Record{Slot: slot, OwnerID: "director-1", Active: false}
	next := Record{Slot: slot, OwnerID: "director-2", Active: true}
	if got := describeChange(prev, next); got != "tv_live taken over by director-2" {
		t.Errorf("unexpected description: %q", got)
	}
}

func must(rec Record, ok bool) Record {
	if !ok {
		panic("record for unsupported slot")
	}
	return rec
}
