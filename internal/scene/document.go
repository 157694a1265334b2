package scene

import (
	"errors"
	"fmt"

	"scenes/internal/domain"

	"github.com/samber/lo"
)

// MissingComponent decides what happens to a layout entry whose component
// record cannot be found, or whose component name an earlier entry already
// placed.
type MissingComponent string

const (
	MissingDrop MissingComponent = "drop"
	MissingFail MissingComponent = "fail"
)

// DanglingParent decides what happens to a node whose parent name does not
// resolve, or whose parent chain closes a cycle.
type DanglingParent string

const (
	DanglingOrphan DanglingParent = "orphan"
	DanglingDrop   DanglingParent = "drop"
	DanglingFail   DanglingParent = "fail"
)

// LoadPolicy is the structural-inconsistency policy for FromDocument. The
// zero value drops missing joins and orphans dangling parents.
type LoadPolicy struct {
	MissingComponent MissingComponent `json:"missingComponent" toml:"missing_component"`
	DanglingParent   DanglingParent   `json:"danglingParent" toml:"dangling_parent"`
}

func (p LoadPolicy) withDefaults() LoadPolicy {
	if p.MissingComponent == "" {
		p.MissingComponent = MissingDrop
	}
	if p.DanglingParent == "" {
		p.DanglingParent = DanglingOrphan
	}
	return p
}

// Validate rejects unknown policy names.
func (p LoadPolicy) Validate() error {
	p = p.withDefaults()
	switch p.MissingComponent {
	case MissingDrop, MissingFail:
	default:
		return fmt.Errorf("unknown missing_component policy %q", p.MissingComponent)
	}
	switch p.DanglingParent {
	case DanglingOrphan, DanglingDrop, DanglingFail:
	default:
		return fmt.Errorf("unknown dangling_parent policy %q", p.DanglingParent)
	}
	return nil
}

// Issue names a component and what was wrong with it.
type Issue struct {
	Component string `json:"component"`
	Reason    string `json:"reason"`
}

// LoadReport lists every structural repair FromDocument made.
type LoadReport struct {
	Dropped  []Issue  `json:"dropped,omitempty"`
	Orphaned []Issue  `json:"orphaned,omitempty"`
	Invalid  []Issue  `json:"invalid,omitempty"`
	Detached []string `json:"detached,omitempty"` // binding keys without a node
}

func (r *LoadReport) Clean() bool {
	return len(r.Dropped) == 0 && len(r.Orphaned) == 0 && len(r.Invalid) == 0 && len(r.Detached) == 0
}

// FromDocument builds an editor from a persisted document. Layout entries
// join to components by ComponentID when the entry carries one, otherwise
// by name; parent links are component names.
func FromDocument(doc domain.SceneDocument, components []domain.ComponentRecord, policy LoadPolicy, opts ...Option) (*Editor, *LoadReport, error) {
	policy = policy.withDefaults()
	if err := policy.Validate(); err != nil {
		return nil, nil, err
	}
	e := newEditor(Header{
		SceneID:              doc.ID,
		Name:                 doc.Name,
		Components:           doc.Components,
		ScriptModules:        doc.ScriptModules,
		NotificationChannels: doc.NotificationChannels,
	}, &State{}, "load", opts...)

	byID := lo.KeyBy(components, func(c domain.ComponentRecord) domain.EntityID { return c.ID })
	byName := map[string]domain.ComponentRecord{}
	for _, c := range components {
		if _, dup := byName[c.Name]; !dup {
			byName[c.Name] = c
		}
	}

	report := &LoadReport{}
	s := &State{Metadata: doc.Metadata.Clone()}
	parents := map[string]string{}
	loaded := map[string]bool{}

	for _, entry := range doc.Layout {
		if loaded[entry.Component] {
			if policy.MissingComponent == MissingFail {
				return nil, nil, fmt.Errorf("load %q: component %q: %w", doc.Name, entry.Component, ErrDuplicateName)
			}
			report.Dropped = append(report.Dropped, Issue{Component: entry.Component, Reason: ErrDuplicateName.Error()})
			continue
		}
		rec, ok := domain.ComponentRecord{}, false
		if entry.ComponentID != nil {
			rec, ok = byID[*entry.ComponentID]
		}
		if !ok {
			rec, ok = byName[entry.Component]
		}
		if !ok {
			if policy.MissingComponent == MissingFail {
				return nil, nil, fmt.Errorf("load %q: component %q: %w", doc.Name, entry.Component, ErrMissingComponent)
			}
			report.Dropped = append(report.Dropped, Issue{Component: entry.Component, Reason: ErrMissingComponent.Error()})
			continue
		}
		n := cloneNode(&domain.Node{
			ID:            e.newID(),
			PrimitiveType: rec.PrimitiveType,
			Name:          entry.Component,
			Position:      domain.Point{X: entry.X, Y: entry.Y},
			Properties:    rec.Properties,
			ZIndex:        entry.ZIndex,
			Hidden:        entry.Hidden,
			Locked:        entry.Locked,
		})
		if (entry.W == nil || entry.H == nil) && e.schema != nil {
			n.Size = e.schema.DefaultSize(n.PrimitiveType)
		}
		n.AutoWidth, n.AutoHeight = entry.W == nil, entry.H == nil
		if entry.W != nil {
			n.Size.W = *entry.W
		}
		if entry.H != nil {
			n.Size.H = *entry.H
		}
		if entry.ComponentID != nil {
			ref := rec.ID
			n.ComponentRef = &ref
		}
		if entry.ParentID != nil && *entry.ParentID != "" {
			parents[n.ID] = *entry.ParentID
		}
		loaded[entry.Component] = true
		s.Nodes = append(s.Nodes, n)
	}

	if err := linkParents(s, parents, policy.DanglingParent, report); err != nil {
		return nil, nil, fmt.Errorf("load %q: %w", doc.Name, err)
	}

	if e.schema != nil {
		for _, n := range s.Nodes {
			if err := e.schema.Validate(n.PrimitiveType, n.Properties); err != nil {
				report.Invalid = append(report.Invalid, Issue{Component: n.Name, Reason: err.Error()})
			}
		}
	}

	for _, def := range doc.Bindings {
		n := s.nodeByName(def.Component)
		if n == nil {
			d := def
			d.Dependencies = append([]string(nil), def.Dependencies...)
			s.Detached = append(s.Detached, d)
			report.Detached = append(report.Detached, def.Key())
			continue
		}
		b := &domain.Binding{
			ID:           e.newID(),
			ComponentID:  n.ID,
			Property:     def.Property,
			Expression:   def.Expression,
			Mode:         def.Mode,
			Transform:    def.Transform,
			Dependencies: append([]string(nil), def.Dependencies...),
			Description:  def.Description,
		}
		replaced := false
		for i, old := range s.Bindings {
			if old.ComponentID == b.ComponentID && old.Property == b.Property {
				b.ID = old.ID
				s.Bindings[i] = b
				replaced = true
				break
			}
		}
		if !replaced {
			s.Bindings = append(s.Bindings, b)
		}
	}

	e.hist.entries[0].State = s
	return e, report, nil
}

// linkParents resolves parent names to ids. Nodes whose parent is missing
// or would close a cycle are handled per policy; dropping a node can strand
// its children, so resolution repeats until nothing changes.
func linkParents(s *State, parents map[string]string, policy DanglingParent, report *LoadReport) error {
	for {
		for _, n := range s.Nodes {
			n.ParentID = ""
		}
		dropped := false
		for i := 0; i < len(s.Nodes); i++ {
			n := s.Nodes[i]
			name, ok := parents[n.ID]
			if !ok {
				continue
			}
			var problem error
			p := s.nodeByName(name)
			switch {
			case p == nil:
				problem = fmt.Errorf("parent %q: %w", name, ErrDanglingParent)
			case s.isAncestor(n.ID, p.ID):
				problem = fmt.Errorf("parent %q: %w", name, ErrCycle)
			default:
				n.ParentID = p.ID
				continue
			}
			switch policy {
			case DanglingFail:
				return fmt.Errorf("node %q: %w", n.Name, problem)
			case DanglingDrop:
				report.Dropped = append(report.Dropped, Issue{Component: n.Name, Reason: problem.Error()})
				delete(parents, n.ID)
				s.Nodes = append(s.Nodes[:i], s.Nodes[i+1:]...)
				dropped = true
			default:
				report.Orphaned = append(report.Orphaned, Issue{Component: n.Name, Reason: problem.Error()})
				delete(parents, n.ID)
			}
			if dropped {
				break
			}
		}
		if !dropped {
			return nil
		}
	}
}

// ToDocument projects the current state back onto the persisted format.
// A defaulted width or height is omitted and parents are written by name.
func (e *Editor) ToDocument() domain.SceneDocument {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.hist.current()
	h := e.header.clone()

	doc := domain.SceneDocument{
		ID:                   h.SceneID,
		Name:                 h.Name,
		Layout:               make([]domain.LayoutEntry, 0, len(s.Nodes)),
		Bindings:             definitions(s),
		Components:           h.Components,
		ScriptModules:        h.ScriptModules,
		NotificationChannels: h.NotificationChannels,
		Metadata:             s.Metadata.Clone(),
	}
	if doc.Components == nil {
		doc.Components = []domain.EntityID{}
	}
	if len(doc.NotificationChannels) == 0 {
		doc.NotificationChannels = nil
	}
	for _, n := range s.Nodes {
		entry := domain.LayoutEntry{
			Component: n.Name,
			X:         n.Position.X,
			Y:         n.Position.Y,
			ZIndex:    n.ZIndex,
			Hidden:    n.Hidden,
			Locked:    n.Locked,
		}
		if !n.AutoWidth {
			w := n.Size.W
			entry.W = &w
		}
		if !n.AutoHeight {
			h := n.Size.H
			entry.H = &h
		}
		if p := s.node(n.ParentID); p != nil {
			name := p.Name
			entry.ParentID = &name
		}
		if n.ComponentRef != nil {
			ref := *n.ComponentRef
			entry.ComponentID = &ref
		}
		doc.Layout = append(doc.Layout, entry)
	}
	for _, d := range s.Detached {
		d.Dependencies = append([]string(nil), d.Dependencies...)
		doc.Bindings = append(doc.Bindings, d)
	}
	return doc
}

// IsStructural reports whether err came from a load policy rejecting the
// document.
func IsStructural(err error) bool {
	return errors.Is(err, ErrMissingComponent) || errors.Is(err, ErrDanglingParent) ||
		errors.Is(err, ErrCycle) || errors.Is(err, ErrDuplicateName)
}
