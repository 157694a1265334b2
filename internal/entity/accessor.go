package entity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"scenes/internal/domain"
)

var (
	ErrUnknownField      = domain.ErrUnknownField
	ErrUnknownEntityType = domain.ErrUnknownEntityType
	ErrNullReference     = errors.New("null entity reference")
	ErrNotReference      = errors.New("not an entity reference")
)

// Accessor is the typed read/write layer over an EntityStore. Field and
// entity type lookups are memoized by name for the accessor's lifetime;
// renames in the backend need ClearCaches or a fresh Accessor.
type Accessor struct {
	store domain.EntityStore

	mu          sync.RWMutex
	fieldTypes  map[string]domain.FieldType
	entityTypes map[string]domain.EntityType
}

// NewAccessor wraps store.
func NewAccessor(store domain.EntityStore) *Accessor {
	return &Accessor{
		store:       store,
		fieldTypes:  make(map[string]domain.FieldType),
		entityTypes: make(map[string]domain.EntityType),
	}
}

// Store returns the wrapped backend.
func (a *Accessor) Store() domain.EntityStore { return a.store }

// FieldType resolves name, hitting the backend only on the first call.
func (a *Accessor) FieldType(ctx context.Context, name string) (domain.FieldType, error) {
	a.mu.RLock()
	ft, ok := a.fieldTypes[name]
	a.mu.RUnlock()
	if ok {
		return ft, nil
	}
	ft, err := a.store.GetFieldType(ctx, name)
	if err != nil {
		return domain.FieldType{}, fmt.Errorf("field type %q: %w", name, err)
	}
	a.mu.Lock()
	a.fieldTypes[name] = ft
	a.mu.Unlock()
	return ft, nil
}

// EntityType resolves name, hitting the backend only on the first call.
func (a *Accessor) EntityType(ctx context.Context, name string) (domain.EntityType, error) {
	a.mu.RLock()
	et, ok := a.entityTypes[name]
	a.mu.RUnlock()
	if ok {
		return et, nil
	}
	et, err := a.store.GetEntityType(ctx, name)
	if err != nil {
		return domain.EntityType{}, fmt.Errorf("entity type %q: %w", name, err)
	}
	a.mu.Lock()
	a.entityTypes[name] = et
	a.mu.Unlock()
	return et, nil
}

// ClearCaches drops every memoized type handle.
func (a *Accessor) ClearCaches() {
	a.mu.Lock()
	a.fieldTypes = make(map[string]domain.FieldType)
	a.entityTypes = make(map[string]domain.EntityType)
	a.mu.Unlock()
}

// Lookup reads one field strictly: unknown fields and backend errors are
// returned. A known field that was never written yields (nil, nil).
func (a *Accessor) Lookup(ctx context.Context, id domain.EntityID, field string) (*domain.Value, error) {
	ft, err := a.FieldType(ctx, field)
	if err != nil {
		return nil, err
	}
	vals, err := a.store.Read(ctx, id, []domain.FieldType{ft})
	if err != nil {
		return nil, fmt.Errorf("read %s of entity %d: %w", field, id, err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return vals[0], nil
}

// ReadValue is the fail-soft read: any error yields nil.
func (a *Accessor) ReadValue(ctx context.Context, id domain.EntityID, field string) *domain.Value {
	v, err := a.Lookup(ctx, id, field)
	if err != nil {
		return nil
	}
	return v
}

// ReadString reads field as text. Strings are returned as is; int, float,
// bool and choice values are formatted; anything else, including a failed
// read, yields "".
func (a *Accessor) ReadString(ctx context.Context, id domain.EntityID, field string) string {
	v := a.ReadValue(ctx, id, field)
	if v == nil {
		return ""
	}
	switch v.Kind {
	case domain.KindString:
		s, _ := v.AsString()
		return s
	case domain.KindInt:
		n, _ := v.AsInt()
		return strconv.FormatInt(n, 10)
	case domain.KindFloat:
		f, _ := v.AsFloat()
		return strconv.FormatFloat(f, 'f', -1, 64)
	case domain.KindBool:
		b, _ := v.AsBool()
		return strconv.FormatBool(b)
	case domain.KindChoice:
		c, _ := v.AsChoice()
		return strconv.Itoa(c)
	default:
		return ""
	}
}

// ReadEntityList reads field as a list of ids. A non-null reference is
// returned as a one-element list; anything else yields an empty list.
func (a *Accessor) ReadEntityList(ctx context.Context, id domain.EntityID, field string) []domain.EntityID {
	v := a.ReadValue(ctx, id, field)
	if v == nil {
		return []domain.EntityID{}
	}
	switch v.Kind {
	case domain.KindEntityList:
		ids, _ := v.AsEntityList()
		return ids
	case domain.KindEntityRef:
		if ref, _ := v.AsEntityRef(); ref != nil {
			return []domain.EntityID{*ref}
		}
	}
	return []domain.EntityID{}
}

// WriteValue infers the value tag from raw (see InferValue) and writes it.
// Write errors are returned to the caller; nothing is retried.
func (a *Accessor) WriteValue(ctx context.Context, id domain.EntityID, field string, raw any) error {
	ft, err := a.FieldType(ctx, field)
	if err != nil {
		return err
	}
	v, err := InferValue(raw)
	if err != nil {
		return fmt.Errorf("write %s: %w", field, err)
	}
	v = fitKind(v, ft.Kind)
	if err := a.store.Write(ctx, id, []domain.FieldType{ft}, v); err != nil {
		return fmt.Errorf("write %s of entity %d: %w", field, id, err)
	}
	return nil
}

// WriteTyped writes an already-tagged value.
func (a *Accessor) WriteTyped(ctx context.Context, id domain.EntityID, field string, v domain.Value) error {
	ft, err := a.FieldType(ctx, field)
	if err != nil {
		return err
	}
	if err := a.store.Write(ctx, id, []domain.FieldType{ft}, v); err != nil {
		return fmt.Errorf("write %s of entity %d: %w", field, id, err)
	}
	return nil
}
