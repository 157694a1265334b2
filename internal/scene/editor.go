package scene

import (
	"fmt"
	"sort"
	"sync"

	"scenes/internal/domain"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Schema supplies per-primitive validation and default sizes.
type Schema interface {
	Validate(primitive string, props map[string]any) error
	DefaultSize(primitive string) domain.Size
}

// Header carries document fields that are not part of undo history.
type Header struct {
	SceneID              string
	Name                 string
	Components           []domain.EntityID
	ScriptModules        map[string]string
	NotificationChannels []string
}

func (h Header) clone() Header {
	out := h
	out.Components = append([]domain.EntityID(nil), h.Components...)
	out.NotificationChannels = append([]string(nil), h.NotificationChannels...)
	if h.ScriptModules != nil {
		out.ScriptModules = make(map[string]string, len(h.ScriptModules))
		for k, v := range h.ScriptModules {
			out.ScriptModules[k] = v
		}
	}
	return out
}

// DefaultPasteOffset is the visual delta applied to every paste.
var DefaultPasteOffset = domain.Point{X: 20, Y: 20}

type Option func(*Editor)

// WithHistoryLimit keeps at most n snapshots, the current one included. A
// limit of 1 disables undo; n < 1 keeps DefaultHistoryLimit.
func WithHistoryLimit(n int) Option {
	return func(e *Editor) {
		if n >= 1 {
			e.limit = n
		}
	}
}

// WithClipboard shares a clipboard between editors so selections can be
// pasted across scenes.
func WithClipboard(c *Clipboard) Option { return func(e *Editor) { e.clip = c } }

func WithPasteOffset(p domain.Point) Option { return func(e *Editor) { e.offset = p } }

func WithIDGenerator(fn func() string) Option { return func(e *Editor) { e.newID = fn } }

func WithSchema(s Schema) Option { return func(e *Editor) { e.schema = s } }

// Editor owns one scene: its node arena, bindings, history and clipboard.
// Every mutation builds the next State and pushes it under one lock, so no
// caller ever observes a change without its history entry.
type Editor struct {
	mu     sync.Mutex
	header Header
	hist   *History
	limit  int
	clip   *Clipboard
	offset domain.Point
	newID  func() string
	schema Schema
}

// New returns an editor for an empty scene.
func New(header Header, opts ...Option) *Editor {
	return newEditor(header, &State{}, "new", opts...)
}

func newEditor(header Header, initial *State, label string, opts ...Option) *Editor {
	e := &Editor{
		header: header.clone(),
		limit:  DefaultHistoryLimit,
		offset: DefaultPasteOffset,
		newID:  func() string { return uuid.New().String() },
	}
	for _, o := range opts {
		o(e)
	}
	if e.clip == nil {
		e.clip = NewClipboard()
	}
	e.hist = newHistory(initial, e.limit)
	e.hist.entries[0].Label = label
	return e
}

// apply runs fn on a copy of the current state and pushes the result.
func (e *Editor) apply(label string, fn func(s *State) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := e.hist.current().next()
	if err := fn(next); err != nil {
		return err
	}
	e.hist.push(label, next)
	return nil
}

// ── Read access ─────────────────────────────────────────────

func (e *Editor) Header() Header {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.header.clone()
}

func (e *Editor) SetHeader(h Header) {
	e.mu.Lock()
	e.header = h.clone()
	e.mu.Unlock()
}

// State returns a deep copy of the current state.
func (e *Editor) State() *State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hist.current().Clone()
}

func (e *Editor) Nodes() []*domain.Node {
	return e.State().Nodes
}

func (e *Editor) Node(id string) (*domain.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.hist.current().node(id)
	if n == nil {
		return nil, fmt.Errorf("node %q: %w", id, ErrNodeNotFound)
	}
	return cloneNode(n), nil
}

func (e *Editor) NodeByName(name string) (*domain.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.hist.current().nodeByName(name)
	if n == nil {
		return nil, fmt.Errorf("node named %q: %w", name, ErrNodeNotFound)
	}
	return cloneNode(n), nil
}

func (e *Editor) Bindings() []*domain.Binding {
	return e.State().Bindings
}

// Definitions projects the bindings onto component names, the shape the
// binding engine evaluates. Detached bindings are not included.
func (e *Editor) Definitions() []domain.BindingDefinition {
	e.mu.Lock()
	defer e.mu.Unlock()
	return definitions(e.hist.current())
}

func definitions(s *State) []domain.BindingDefinition {
	out := make([]domain.BindingDefinition, 0, len(s.Bindings))
	for _, b := range s.Bindings {
		n := s.node(b.ComponentID)
		if n == nil {
			continue
		}
		out = append(out, domain.BindingDefinition{
			Component:    n.Name,
			Property:     b.Property,
			Expression:   b.Expression,
			Mode:         b.Mode,
			Transform:    b.Transform,
			Dependencies: append([]string(nil), b.Dependencies...),
			Description:  b.Description,
		})
	}
	return out
}

// ── Nodes ───────────────────────────────────────────────────

// AddNode inserts n. An empty ID is generated; a zero size marks the node
// auto-sized and takes the primitive's default when a schema is set.
func (e *Editor) AddNode(n domain.Node) (*domain.Node, error) {
	n = *cloneNode(&n)
	if n.ID == "" {
		n.ID = e.newID()
	}
	if n.Name == "" {
		n.Name = n.ID
	}
	if n.Size == (domain.Size{}) {
		n.AutoWidth, n.AutoHeight = true, true
		if e.schema != nil {
			n.Size = e.schema.DefaultSize(n.PrimitiveType)
		}
	}
	err := e.apply("add "+n.Name, func(s *State) error {
		if s.indexOf(n.ID) >= 0 {
			return fmt.Errorf("add node %q: %w", n.ID, ErrDuplicateID)
		}
		if s.nodeByName(n.Name) != nil {
			return fmt.Errorf("add node %q: %w", n.Name, ErrDuplicateName)
		}
		if n.ParentID != "" && s.node(n.ParentID) == nil {
			return fmt.Errorf("add node %q: parent %q: %w", n.ID, n.ParentID, ErrNodeNotFound)
		}
		s.Nodes = append(s.Nodes, &n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cloneNode(&n), nil
}

// NodePatch lists the fields UpdateNode changes. Nil fields are left alone;
// a nil value in Properties deletes that key.
type NodePatch struct {
	Name          *string
	PrimitiveType *string
	Position      *domain.Point
	Size          *domain.Size
	Properties    map[string]any
	ZIndex        *int
	Hidden        *bool
	Locked        *bool
}

func (e *Editor) UpdateNode(id string, p NodePatch) (*domain.Node, error) {
	var out *domain.Node
	err := e.apply("update "+id, func(s *State) error {
		i := s.indexOf(id)
		if i < 0 {
			return fmt.Errorf("update node %q: %w", id, ErrNodeNotFound)
		}
		n := cloneNode(s.Nodes[i])
		if p.Name != nil && *p.Name != n.Name {
			if *p.Name == "" {
				return fmt.Errorf("update node %q: empty name", id)
			}
			if s.nodeByName(*p.Name) != nil {
				return fmt.Errorf("update node %q: %q: %w", id, *p.Name, ErrDuplicateName)
			}
			n.Name = *p.Name
		}
		if p.PrimitiveType != nil {
			n.PrimitiveType = *p.PrimitiveType
		}
		if p.Position != nil {
			n.Position = *p.Position
		}
		if p.Size != nil {
			n.Size = *p.Size
			n.AutoWidth, n.AutoHeight = false, false
		}
		for k, v := range p.Properties {
			if v == nil {
				delete(n.Properties, k)
			} else {
				n.Properties[k] = v
			}
		}
		if p.ZIndex != nil {
			n.ZIndex = *p.ZIndex
		}
		if p.Hidden != nil {
			n.Hidden = *p.Hidden
		}
		if p.Locked != nil {
			n.Locked = *p.Locked
		}
		s.Nodes[i] = n
		out = cloneNode(n)
		return nil
	})
	return out, err
}

// DeleteNodes removes the nodes, their descendants and every binding that
// targets one of them.
func (e *Editor) DeleteNodes(ids ...string) error {
	if len(ids) == 0 {
		return ErrEmptySelection
	}
	return e.apply(fmt.Sprintf("delete %d node(s)", len(ids)), func(s *State) error {
		for _, id := range ids {
			if s.indexOf(id) < 0 {
				return fmt.Errorf("delete node %q: %w", id, ErrNodeNotFound)
			}
		}
		gone := s.subtree(ids)
		s.Nodes = lo.Reject(s.Nodes, func(n *domain.Node, _ int) bool { return gone[n.ID] })
		s.Bindings = lo.Reject(s.Bindings, func(b *domain.Binding, _ int) bool { return gone[b.ComponentID] })
		return nil
	})
}

// Reparent moves id under parentID; an empty parentID makes it a root.
func (e *Editor) Reparent(id, parentID string) error {
	return e.apply("reparent "+id, func(s *State) error {
		i := s.indexOf(id)
		if i < 0 {
			return fmt.Errorf("reparent %q: %w", id, ErrNodeNotFound)
		}
		if parentID != "" {
			if s.node(parentID) == nil {
				return fmt.Errorf("reparent %q: parent %q: %w", id, parentID, ErrNodeNotFound)
			}
			if s.isAncestor(id, parentID) {
				return fmt.Errorf("reparent %q under %q: %w", id, parentID, ErrCycle)
			}
		}
		n := cloneNode(s.Nodes[i])
		n.ParentID = parentID
		s.Nodes[i] = n
		return nil
	})
}

// Reorder moves id to position index among its siblings, ordered by
// z-index then insertion order, and renumbers the siblings' z-indexes.
// Out-of-range indexes clamp.
func (e *Editor) Reorder(id string, index int) error {
	return e.apply(fmt.Sprintf("reorder %s to %d", id, index), func(s *State) error {
		return reorder(s, id, index)
	})
}

func (e *Editor) BringToFront(id string) error {
	return e.apply("bring to front "+id, func(s *State) error { return reorder(s, id, -1) })
}

func (e *Editor) SendToBack(id string) error {
	return e.apply("send to back "+id, func(s *State) error { return reorder(s, id, 0) })
}

// Siblings returns the nodes sharing parentID in paint order.
func (e *Editor) Siblings(parentID string) []*domain.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	return lo.Map(siblings(e.hist.current(), parentID), func(i int, _ int) *domain.Node {
		return cloneNode(e.hist.current().Nodes[i])
	})
}

// siblings returns indexes into s.Nodes in paint order.
func siblings(s *State, parentID string) []int {
	var idx []int
	for i, n := range s.Nodes {
		if n.ParentID == parentID {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return s.Nodes[idx[a]].ZIndex < s.Nodes[idx[b]].ZIndex })
	return idx
}

func reorder(s *State, id string, index int) error {
	n := s.node(id)
	if n == nil {
		return fmt.Errorf("reorder %q: %w", id, ErrNodeNotFound)
	}
	sib := siblings(s, n.ParentID)
	from := lo.IndexOf(sib, s.indexOf(id))
	if index < 0 || index >= len(sib) {
		index = len(sib) - 1
	}
	moved := sib[from]
	sib = append(sib[:from], sib[from+1:]...)
	sib = append(sib[:index], append([]int{moved}, sib[index:]...)...)
	for z, i := range sib {
		if s.Nodes[i].ZIndex != z {
			c := cloneNode(s.Nodes[i])
			c.ZIndex = z
			s.Nodes[i] = c
		}
	}
	return nil
}

// ── Bindings ────────────────────────────────────────────────

// SetBinding installs b on its component. An existing binding for the same
// (ComponentID, Property) is replaced in place and keeps its ID.
func (e *Editor) SetBinding(b domain.Binding) (*domain.Binding, error) {
	b = *cloneBinding(&b)
	if b.ID == "" {
		b.ID = e.newID()
	}
	err := e.apply("bind "+b.ComponentID+"."+b.Property, func(s *State) error {
		if s.node(b.ComponentID) == nil {
			return fmt.Errorf("set binding %s: %w", b.Property, ErrNodeNotFound)
		}
		if b.Property == "" {
			return fmt.Errorf("set binding on %q: empty property", b.ComponentID)
		}
		for i, old := range s.Bindings {
			if old.ComponentID == b.ComponentID && old.Property == b.Property {
				b.ID = old.ID
				s.Bindings[i] = &b
				return nil
			}
		}
		s.Bindings = append(s.Bindings, &b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cloneBinding(&b), nil
}

func (e *Editor) RemoveBinding(componentID, property string) error {
	return e.apply("unbind "+componentID+"."+property, func(s *State) error {
		for i, b := range s.Bindings {
			if b.ComponentID == componentID && b.Property == property {
				s.Bindings = append(s.Bindings[:i], s.Bindings[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("remove binding %s.%s: %w", componentID, property, ErrBindingNotFound)
	})
}

func (e *Editor) SetViewport(vp domain.Viewport) error {
	return e.apply("viewport", func(s *State) error {
		s.Metadata = s.Metadata.Clone()
		s.Metadata.Viewport = &vp
		return nil
	})
}

// ── History ─────────────────────────────────────────────────

// Undo moves the history cursor back one step. Displayed binding values
// are not touched; callers re-evaluate.
func (e *Editor) Undo() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.hist.undo()
	return err
}

func (e *Editor) Redo() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.hist.redo()
	return err
}

func (e *Editor) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hist.canUndo()
}

func (e *Editor) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hist.canRedo()
}

// HistoryLabels lists action labels oldest first plus the cursor index.
func (e *Editor) HistoryLabels() ([]string, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hist.labels(), e.hist.cursor
}

// ExportHistory returns deep copies of every entry and the cursor.
func (e *Editor) ExportHistory() ([]Entry, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Entry, len(e.hist.entries))
	for i, en := range e.hist.entries {
		out[i] = Entry{Label: en.Label, State: en.State.Clone()}
	}
	return out, e.hist.cursor
}

// RestoreHistory replaces the history with entries, keeping at most the
// configured limit of the newest ones.
func (e *Editor) RestoreHistory(entries []Entry, cursor int) error {
	if len(entries) == 0 {
		return fmt.Errorf("restore history: no entries")
	}
	if cursor < 0 || cursor >= len(entries) {
		return fmt.Errorf("restore history: cursor %d out of range [0,%d)", cursor, len(entries))
	}
	h := &History{limit: e.limit}
	for _, en := range entries {
		if en.State == nil {
			return fmt.Errorf("restore history: entry %q has no state", en.Label)
		}
		h.entries = append(h.entries, Entry{Label: en.Label, State: en.State.Clone()})
	}
	if over := len(h.entries) - h.limit; over > 0 {
		h.entries = h.entries[over:]
		cursor = max(cursor-over, 0)
	}
	h.cursor = cursor
	e.mu.Lock()
	e.hist = h
	e.mu.Unlock()
	return nil
}

// AttachComponents records the backing component entity of nodes by id.
// It rewrites every history entry without adding one; shared nodes are
// copied once.
func (e *Editor) AttachComponents(refs map[string]domain.EntityID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	seen := map[*domain.Node]*domain.Node{}
	for i, en := range e.hist.entries {
		next := en.State.next()
		for j, n := range next.Nodes {
			ref, ok := refs[n.ID]
			if !ok || (n.ComponentRef != nil && *n.ComponentRef == ref) {
				continue
			}
			c, done := seen[n]
			if !done {
				c = cloneNode(n)
				c.ComponentRef = &ref
				seen[n] = c
			}
			next.Nodes[j] = c
		}
		e.hist.entries[i].State = next
	}
}
