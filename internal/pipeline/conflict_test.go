package pipeline

import "testing"

func TestConflicting_crossLinePairs(t *testing.T) {
	pairs := [][2]Slot{
		{SlotStudioPreview, SlotTVPreview},
		{SlotStudioLive, SlotTVLive},
		{SlotStudioPreview, SlotTVLive},
		{SlotStudioLive, SlotTVPreview},
	}
	for _, pair := range pairs {
		if !Conflicting([]Slot{pair[0], pair[1]}) {
			t.Errorf("expected conflict for %v", pair)
		}
	}
}

func TestConflicting_sameLineIsNotAConflict(t *testing.T) {
	if Conflicting([]Slot{SlotStudioPreview, SlotStudioLive}) {
		t.Error("studio preview+live is the normal forwarding case, not a conflict")
	}
	if Conflicting([]Slot{SlotTVPreview, SlotTVLive}) {
		t.Error("tv preview+live is the normal forwarding case, not a conflict")
	}
}

func TestConflicting_trivialSets(t *testing.T) {
	if Conflicting(nil) {
		t.Error("empty occupied set should not conflict")
	}
	if Conflicting([]Slot{SlotTVLive}) {
		t.Error("single slot should not conflict")
	}
}

func TestConflicting_supersetContainingPair(t *testing.T) {
	occupied := []Slot{SlotTVPreview, SlotStudioPreview, SlotStudioLive}
	if !Conflicting(occupied) {
		t.Error("set containing the studio/tv preview pair should conflict")
	}
}
