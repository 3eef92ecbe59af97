package authority

import (
	"testing"

	"broadcast-director/internal/pipeline"
)

func TestHub_publishOrder(t *testing.T) {
	h := newHub(testLogger())
	sub := h.subscribe(4)

	for _, owner := range []string{"a", "b", "c"} {
		h.publish(Change{Slot: pipeline.SlotTVLive, Current: Record{OwnerID: owner}})
	}
	for _, want := range []string{"a", "b", "c"} {
		got := <-sub.C
		if got.Current.OwnerID != want {
			t.Fatalf("expected change from %q, got %q", want, got.Current.OwnerID)
		}
	}
}

func TestHub_dropsWhenFull(t *testing.T) {
	h := newHub(testLogger())
	sub := h.subscribe(1)

	h.publish(Change{Current: Record{OwnerID: "a"}})
	h.publish(Change{Current: Record{OwnerID: "b"}}) // buffer full, dropped

	if got := <-sub.C; got.Current.OwnerID != "a" {
		t.Fatalf("expected the first change, got %q", got.Current.OwnerID)
	}
	select {
	case got := <-sub.C:
		t.Fatalf("overflow change must be dropped, got %q", got.Current.OwnerID)
	default:
	}
}

func TestHub_cancelIsIdempotent(t *testing.T) {
	h := newHub(testLogger())
	sub := h.subscribe(0)
	sub.Cancel()
	sub.Cancel()
	if h.count() != 0 {
		t.Errorf("expected no subscribers, got %d", h.count())
	}

	// Publishing after close of all subscribers is a no-op.
	h.publish(Change{Current: Record{OwnerID: "a"}})
}

func TestHub_subscribeAfterClose(t *testing.T) {
	h := newHub(testLogger())
	h.close()
	sub := h.subscribe(0)
	if _, open := <-sub.C; open {
		t.Error("subscription after close must start closed")
	}
}
