package pipeline

// Slot identifies one of the four fixed positions in the broadcast pipeline.
// The set is closed: two independent lines, each with a preview stage feeding
// a live stage.
type Slot string

const (
	SlotStudioPreview Slot = "studio_preview"
	SlotStudioLive    Slot = "studio_live"
	SlotTVPreview     Slot = "tv_preview"
	SlotTVLive        Slot = "tv_live"
)

// Line identifies one of the two broadcast lines.
type Line string

const (
	LineStudio Line = "studio"
	LineTV     Line = "tv"
)

// allSlots is the closed slot set in a stable order.
var allSlots = []Slot{SlotStudioPreview, SlotStudioLive, SlotTVPreview, SlotTVLive}

// Slots returns all pipeline slots in a stable order.
func Slots() []Slot {
	out := make([]Slot, len(allSlots))
	copy(out, allSlots)
	return out
}

// ParseSlot converts a wire string into a Slot. The ok return is false for
// anything outside the closed set.
func ParseSlot(s string) (Slot, bool) {
	switch Slot(s) {
	case SlotStudioPreview, SlotStudioLive, SlotTVPreview, SlotTVLive:
		return Slot(s), true
	}
	return "", false
}

// IsLive reports whether the slot feeds a broadcast output.
func (s Slot) IsLive() bool {
	return s == SlotStudioLive || s == SlotTVLive
}

// Line returns the broadcast line the slot belongs to.
func (s Slot) Line() Line {
	if s == SlotStudioPreview || s == SlotStudioLive {
		return LineStudio
	}
	return LineTV
}

// Preview returns the preview slot of the line.
func (l Line) Preview() Slot {
	if l == LineStudio {
		return SlotStudioPreview
	}
	return SlotTVPreview
}

// Live returns the live slot of the line.
func (l Line) Live() Slot {
	if l == LineStudio {
		return SlotStudioLive
	}
	return SlotTVLive
}

// LiveSlots returns the live slots in a stable order.
func LiveSlots() []Slot {
	return []Slot{SlotStudioLive, SlotTVLive}
}
