package pipeline

// Destination receives the identifier of the source routed to a slot. The
// streaming layer registers one destination per output it drives; an empty
// identifier clears the output.
type Destination interface {
	RouteSource(id string)
}

// HighlightSink receives per-source conflict state after every assignment
// change. The occupied slice holds the slots the source currently occupies on
// this peer, excluding remotely owned live slots.
type HighlightSink interface {
	Highlight(sourceID string, conflicting bool, occupied []Slot)
}

// FilterSink receives the set of distinct source identifiers assigned
// anywhere in the pipeline. The capture layer uses it to narrow what it keeps
// warm.
type FilterSink interface {
	SetAssignedSources(ids []string)
}

// DestinationFunc adapts a function to the Destination interface.
type DestinationFunc func(id string)

// RouteSource implements Destination.
func (f DestinationFunc) RouteSource(id string) { f(id) }
