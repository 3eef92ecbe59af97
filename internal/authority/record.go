package authority

import (
	"fmt"

	"broadcast-director/internal/pipeline"
)

// Record is the replicated, authority-owned ownership record of one live
// slot: which peer currently drives the output, with which source, under
// which session. Only the authority host mutates records; every peer observes
// them. The session identifier fences stale transitions: consumers that see
// events for a session they no longer hold must ignore them.
type Record struct {
	Slot      pipeline.Slot `json:"slot"`
	OwnerID   string        `json:"owner_id"`
	SourceID  string        `json:"source_id"`
	SessionID string        `json:"session_id"`
	Active    bool          `json:"active"`
}

// inactiveRecord is the empty shape a record returns to on release, and the
// sentinel previous state of a replayed change.
func inactiveRecord(slot pipeline.Slot) Record {
	return Record{Slot: slot}
}

// Change is the typed payload delivered to every subscriber when a record is
// written. Replayed marks transitions synthesized for a late joiner; they are
// identical in shape to live transitions.
type Change struct {
	Slot        pipeline.Slot `json:"slot"`
	Previous    Record        `json:"previous"`
	Current     Record        `json:"current"`
	Description string        `json:"description"`
	Replayed    bool          `json:"replayed,omitempty"`
}

// describeChange derives a human description purely from the record diff.
func describeChange(prev, cur Record) string {
	switch {
	case prev.Active && !cur.Active:
		return fmt.Sprintf("%s stopped", prev.Slot)
	case !prev.Active && cur.Active:
		if prev.OwnerID != "" && prev.OwnerID != cur.OwnerID {
			return fmt.Sprintf("%s taken over by %s", cur.Slot, cur.OwnerID)
		}
		return fmt.Sprintf("%s started by %s", cur.Slot, cur.OwnerID)
	case prev.Active && cur.Active:
		if prev.OwnerID != cur.OwnerID {
			return fmt.Sprintf("%s taken over by %s", cur.Slot, cur.OwnerID)
		}
		return fmt.Sprintf("%s updated", cur.Slot)
	default:
		return fmt.Sprintf("%s updated", cur.Slot)
	}
}
