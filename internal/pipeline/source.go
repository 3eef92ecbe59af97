package pipeline

// Source is an assignable audio/video source. The identifier is the only
// capability the pipeline uses; it is the stable name the capture layer hands
// out and the only identity that crosses the network boundary. Concrete
// capture kinds (NDI feeds, rendered textures, static media) live behind this
// interface so the pipeline never branches on source type.
type Source interface {
	Identifier() string
}

// NDISource is a source backed by an NDI network feed.
type NDISource struct {
	Name string
}

// Identifier implements Source.
func (s NDISource) Identifier() string { return s.Name }

// TextureSource is a source backed by a locally rendered texture.
type TextureSource struct {
	Name string
}

// Identifier implements Source.
func (s TextureSource) Identifier() string { return s.Name }

// StaticSource is a source backed by static media (slates, stills).
type StaticSource struct {
	Name string
}

// Identifier implements Source.
func (s StaticSource) Identifier() string { return s.Name }
