package domain

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Size struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Node is one positioned visual element of a scene. Nodes reference their
// parent by id only; the owning scene keeps the arena.
type Node struct {
	ID            string         `json:"id"`
	PrimitiveType string         `json:"primitiveType"`
	Name          string         `json:"name"`
	Position      Point          `json:"position"`
	Size          Size           `json:"size"`
	Properties    map[string]any `json:"properties"`
	ParentID      string         `json:"parentId,omitempty"` // "" is a root node
	ZIndex        int            `json:"zIndex,omitempty"`
	Hidden        bool           `json:"hidden,omitempty"`
	Locked        bool           `json:"locked,omitempty"`

	// AutoWidth and AutoHeight are set when the persisted layout carried
	// no w or h; the primitive's default applies and that side is not
	// written back.
	AutoWidth  bool `json:"autoWidth,omitempty"`
	AutoHeight bool `json:"autoHeight,omitempty"`
	// ComponentRef is the backing component entity, when known from the
	// persisted layout or from a save.
	ComponentRef *EntityID `json:"componentRef,omitempty"`
}

// ComponentRecord is a component entity as read from the external store.
type ComponentRecord struct {
	ID            EntityID       `json:"id"`
	Name          string         `json:"name"`
	PrimitiveType string         `json:"primitiveType"`
	Properties    map[string]any `json:"properties"`
}
