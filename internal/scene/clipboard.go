package scene

import (
	"fmt"
	"sync"

	"scenes/internal/domain"
)

// Clipboard holds a deep-copied selection. It belongs to an editor unless
// shared explicitly through WithClipboard.
type Clipboard struct {
	mu       sync.Mutex
	nodes    []*domain.Node
	bindings []*domain.Binding
	pastes   int
}

func NewClipboard() *Clipboard { return &Clipboard{} }

func (c *Clipboard) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.nodes) == 0
}

func (c *Clipboard) set(nodes []*domain.Node, bindings []*domain.Binding) {
	c.mu.Lock()
	c.nodes, c.bindings, c.pastes = nodes, bindings, 0
	c.mu.Unlock()
}

// take returns fresh copies of the contents and the number of earlier
// pastes since the last copy, then counts this paste.
func (c *Clipboard) take() ([]*domain.Node, []*domain.Binding, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	nodes := make([]*domain.Node, len(c.nodes))
	for i, n := range c.nodes {
		nodes[i] = cloneNode(n)
	}
	bindings := make([]*domain.Binding, len(c.bindings))
	for i, b := range c.bindings {
		bindings[i] = cloneBinding(b)
	}
	n := c.pastes
	c.pastes++
	return nodes, bindings, n
}

// CopySelection copies the nodes, their descendants and all bindings that
// target any of them. It does not touch history.
func (e *Editor) CopySelection(ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, ErrEmptySelection
	}
	e.mu.Lock()
	s := e.hist.current()
	for _, id := range ids {
		if s.indexOf(id) < 0 {
			e.mu.Unlock()
			return 0, fmt.Errorf("copy %q: %w", id, ErrNodeNotFound)
		}
	}
	set := s.subtree(ids)
	var nodes []*domain.Node
	for _, n := range s.Nodes {
		if set[n.ID] {
			nodes = append(nodes, cloneNode(n))
		}
	}
	var bindings []*domain.Binding
	for _, b := range s.Bindings {
		if set[b.ComponentID] {
			bindings = append(bindings, cloneBinding(b))
		}
	}
	e.mu.Unlock()
	e.clip.set(nodes, bindings)
	return len(nodes), nil
}

// PasteSelection inserts the clipboard contents with fresh ids. Each paste
// since the last copy is shifted one more offset step. Parent links inside
// the selection follow the new ids; a parent outside the selection is kept
// when it still exists, otherwise the node becomes a root. Clashing names
// get a " copy" suffix. It returns the new node ids in clipboard order.
func (e *Editor) PasteSelection() ([]string, error) {
	if e.clip.Empty() {
		return nil, ErrClipboardEmpty
	}
	nodes, bindings, n := e.clip.take()
	dx := e.offset.X * float64(n+1)
	dy := e.offset.Y * float64(n+1)

	var ids []string
	err := e.apply(fmt.Sprintf("paste %d node(s)", len(nodes)), func(s *State) error {
		remap := make(map[string]string, len(nodes))
		for _, nd := range nodes {
			id := e.newID()
			for s.indexOf(id) >= 0 {
				id = e.newID()
			}
			remap[nd.ID] = id
		}
		taken := make(map[string]bool, len(s.Nodes)+len(nodes))
		for _, nd := range s.Nodes {
			taken[nd.Name] = true
		}
		ids = ids[:0]
		for _, nd := range nodes {
			nd.ID = remap[nd.ID]
			if p, ok := remap[nd.ParentID]; ok {
				nd.ParentID = p
			} else if nd.ParentID != "" && s.node(nd.ParentID) == nil {
				nd.ParentID = ""
			}
			nd.Name = uniqueName(nd.Name, taken)
			taken[nd.Name] = true
			nd.Position.X += dx
			nd.Position.Y += dy
			nd.ComponentRef = nil
			s.Nodes = append(s.Nodes, nd)
			ids = append(ids, nd.ID)
		}
		for _, b := range bindings {
			b.ID = e.newID()
			b.ComponentID = remap[b.ComponentID]
			s.Bindings = append(s.Bindings, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func uniqueName(name string, taken map[string]bool) string {
	if !taken[name] {
		return name
	}
	candidate := name + " copy"
	for i := 2; taken[candidate]; i++ {
		candidate = fmt.Sprintf("%s copy %d", name, i)
	}
	return candidate
}
