package scene

import (
	"errors"

	"scenes/internal/domain"

	"github.com/jinzhu/copier"
)

var (
	ErrNodeNotFound     = errors.New("node not found")
	ErrDuplicateID      = errors.New("duplicate node id")
	ErrDuplicateName    = errors.New("duplicate node name")
	ErrCycle            = errors.New("parent chain would form a cycle")
	ErrBindingNotFound  = errors.New("binding not found")
	ErrNothingToUndo    = errors.New("nothing to undo")
	ErrNothingToRedo    = errors.New("nothing to redo")
	ErrEmptySelection   = errors.New("empty selection")
	ErrClipboardEmpty   = errors.New("clipboard is empty")
	ErrMissingComponent = errors.New("layout entry has no matching component")
	ErrDanglingParent   = errors.New("parent not found in layout")
)

// State is one immutable point in a scene's history. Nodes and bindings
// are shared between consecutive states; a mutation replaces the entries
// it touches with fresh copies and never writes through a published pointer.
type State struct {
	Nodes    []*domain.Node    `json:"nodes"`
	Bindings []*domain.Binding `json:"bindings"`
	Metadata domain.Metadata   `json:"metadata"`
	// Detached holds persisted bindings whose component is not in the
	// scene. They are written back unchanged on save.
	Detached []domain.BindingDefinition `json:"detached,omitempty"`
}

// next returns a shallow copy whose slices may be edited freely.
func (s *State) next() *State {
	return &State{
		Nodes:    append([]*domain.Node(nil), s.Nodes...),
		Bindings: append([]*domain.Binding(nil), s.Bindings...),
		Metadata: s.Metadata,
		Detached: s.Detached,
	}
}

func (s *State) indexOf(id string) int {
	for i, n := range s.Nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func (s *State) node(id string) *domain.Node {
	if i := s.indexOf(id); i >= 0 {
		return s.Nodes[i]
	}
	return nil
}

func (s *State) nodeByName(name string) *domain.Node {
	for _, n := range s.Nodes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// isAncestor reports whether anc is id itself or one of its ancestors.
func (s *State) isAncestor(anc, id string) bool {
	seen := map[string]bool{}
	for cur := id; cur != "" && !seen[cur]; {
		if cur == anc {
			return true
		}
		seen[cur] = true
		n := s.node(cur)
		if n == nil {
			return false
		}
		cur = n.ParentID
	}
	return false
}

// subtree returns ids of roots and all their descendants.
func (s *State) subtree(roots []string) map[string]bool {
	set := make(map[string]bool, len(roots))
	for _, id := range roots {
		set[id] = true
	}
	for changed := true; changed; {
		changed = false
		for _, n := range s.Nodes {
			if !set[n.ID] && n.ParentID != "" && set[n.ParentID] {
				set[n.ID] = true
				changed = true
			}
		}
	}
	return set
}

// Clone deep-copies the whole state.
func (s *State) Clone() *State {
	out := &State{Metadata: s.Metadata.Clone()}
	for _, n := range s.Nodes {
		out.Nodes = append(out.Nodes, cloneNode(n))
	}
	for _, b := range s.Bindings {
		out.Bindings = append(out.Bindings, cloneBinding(b))
	}
	for _, d := range s.Detached {
		d.Dependencies = append([]string(nil), d.Dependencies...)
		out.Detached = append(out.Detached, d)
	}
	return out
}

func deepCopy(dst, src any) {
	if err := copier.CopyWithOption(dst, src, copier.Option{CaseSensitive: true, DeepCopy: true}); err != nil {
		panic("scene: deep copy: " + err.Error())
	}
}

func cloneNode(n *domain.Node) *domain.Node {
	shallow := *n
	shallow.Properties = nil
	out := &domain.Node{}
	deepCopy(out, &shallow)
	out.Properties = cloneProps(n.Properties)
	return out
}

// cloneProps copies a JSON-shaped property bag; nested maps and slices
// are copied, never shared.
func cloneProps(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneAny(v)
	}
	return out
}

func cloneAny(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneProps(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneAny(e)
		}
		return out
	default:
		return v
	}
}

func cloneBinding(b *domain.Binding) *domain.Binding {
	out := &domain.Binding{}
	deepCopy(out, b)
	return out
}
