package pipeline

// conflictPairs lists the slot combinations a single source must not occupy
// at the same time. Any cross-line pairing is a production error; the
// same-line preview+live pairing is the normal forwarding case and is never
// flagged.
var conflictPairs = [][2]Slot{
	{SlotStudioPreview, SlotTVPreview},
	{SlotStudioLive, SlotTVLive},
	{SlotStudioPreview, SlotTVLive},
	{SlotStudioLive, SlotTVPreview},
}

// Conflicting reports whether a source occupying exactly the given slots sits
// on an incompatible slot pair. The occupied set must already exclude live
// slots owned by another peer; a remotely owned live slot is not this peer's
// assignment and must not contribute to local conflict state.
func Conflicting(occupied []Slot) bool {
	set := make(map[Slot]bool, len(occupied))
	for _, s := range occupied {
		set[s] = true
	}
	for _, pair := range conflictPairs {
		if set[pair[0]] && set[pair[1]] {
			return true
		}
	}
	return false
}
