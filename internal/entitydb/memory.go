package entitydb

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"scenes/internal/domain"
)

type memEntity struct {
	typ    int64
	parent *domain.EntityID
	name   string
	values map[int64]domain.Value
}

// MemoryStore keeps entities in process. It backs tests and the "memory"
// driver.
type MemoryStore struct {
	mu          sync.RWMutex
	fields      map[string]domain.FieldType
	entityTypes map[string]domain.EntityType
	entities    map[domain.EntityID]*memEntity
	nextEntity  int64
	nextType    int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		fields:      make(map[string]domain.FieldType),
		entityTypes: make(map[string]domain.EntityType),
		entities:    make(map[domain.EntityID]*memEntity),
	}
}

func (m *MemoryStore) DefineFieldType(_ context.Context, name string, kind domain.ValueKind) (domain.FieldType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ft, ok := m.fields[name]; ok {
		return ft, nil
	}
	m.nextType++
	ft := domain.FieldType{ID: m.nextType, Name: name, Kind: kind}
	m.fields[name] = ft
	return ft, nil
}

func (m *MemoryStore) DefineEntityType(_ context.Context, name string) (domain.EntityType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if et, ok := m.entityTypes[name]; ok {
		return et, nil
	}
	m.nextType++
	et := domain.EntityType{ID: m.nextType, Name: name}
	m.entityTypes[name] = et
	return et, nil
}

func (m *MemoryStore) GetFieldType(_ context.Context, name string) (domain.FieldType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ft, ok := m.fields[name]
	if !ok {
		return domain.FieldType{}, fmt.Errorf("%w: %s", domain.ErrUnknownField, name)
	}
	return ft, nil
}

func (m *MemoryStore) GetEntityType(_ context.Context, name string) (domain.EntityType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	et, ok := m.entityTypes[name]
	if !ok {
		return domain.EntityType{}, fmt.Errorf("%w: %s", domain.ErrUnknownEntityType, name)
	}
	return et, nil
}

func (m *MemoryStore) Read(_ context.Context, id domain.EntityID, fields []domain.FieldType) ([]*domain.Value, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrEntityNotFound, id)
	}
	out := make([]*domain.Value, len(fields))
	for i, f := range fields {
		if v, ok := e.values[f.ID]; ok {
			cp := v.Clone()
			out[i] = &cp
		}
	}
	return out, nil
}

func (m *MemoryStore) Write(_ context.Context, id domain.EntityID, fields []domain.FieldType, value domain.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[id]
	if !ok {
		return fmt.Errorf("%w: %d", domain.ErrEntityNotFound, id)
	}
	for _, f := range fields {
		e.values[f.ID] = value.Clone()
	}
	return nil
}

func (m *MemoryStore) CreateEntity(_ context.Context, typ domain.EntityType, parent *domain.EntityID, name string) (domain.EntityID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextEntity++
	id := domain.EntityID(m.nextEntity)
	var p *domain.EntityID
	if parent != nil {
		v := *parent
		p = &v
	}
	m.entities[id] = &memEntity{typ: typ.ID, parent: p, name: name, values: make(map[int64]domain.Value)}
	return id, nil
}

func (m *MemoryStore) DeleteEntity(_ context.Context, id domain.EntityID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entities[id]; !ok {
		return fmt.Errorf("%w: %d", domain.ErrEntityNotFound, id)
	}
	delete(m.entities, id)
	return nil
}

func (m *MemoryStore) FindEntities(_ context.Context, typ domain.EntityType, filter domain.Filter) ([]domain.EntityID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := []domain.EntityID{}
	for id, e := range m.entities {
		if e.typ != typ.ID {
			continue
		}
		if filter.Parent != nil && (e.parent == nil || *e.parent != *filter.Parent) {
			continue
		}
		if filter.Name != "" && e.name != filter.Name {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *MemoryStore) Close() error { return nil }
