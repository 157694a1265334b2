package domain

import "context"

// FieldType is the resolved handle for a named field.
type FieldType struct {
	ID   int64     `json:"id"`
	Name string    `json:"name"`
	Kind ValueKind `json:"kind"`
}

// EntityType is the resolved handle for a named entity type.
type EntityType struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Filter narrows FindEntities. Zero fields match everything.
type Filter struct {
	Parent *EntityID `json:"parent,omitempty"`
	Name   string    `json:"name,omitempty"`
}

// EntityStore is the boundary to the external data store. Implementations
// live in internal/entitydb. No transactional guarantee spans several calls.
type EntityStore interface {
	// GetFieldType resolves a field name. Unknown names return an error
	// wrapping ErrUnknownField.
	GetFieldType(ctx context.Context, name string) (FieldType, error)
	// GetEntityType resolves an entity type name.
	GetEntityType(ctx context.Context, name string) (EntityType, error)
	// Read returns one value per requested field; a field never written is nil.
	Read(ctx context.Context, entity EntityID, fields []FieldType) ([]*Value, error)
	// Write stores value into every listed field of entity.
	Write(ctx context.Context, entity EntityID, fields []FieldType, value Value) error
	CreateEntity(ctx context.Context, typ EntityType, parent *EntityID, name string) (EntityID, error)
	// DeleteEntity removes the entity and its field values. Children are not touched.
	DeleteEntity(ctx context.Context, id EntityID) error
	FindEntities(ctx context.Context, typ EntityType, filter Filter) ([]EntityID, error)
	Close() error
}

// Well-known names used to persist scenes through an EntityStore.
const (
	SceneEntityType     = "Schematic"
	ComponentEntityType = "Component"

	FieldName          = "Name"
	FieldDocument      = "Document"
	FieldPrimitiveType = "PrimitiveType"
	FieldProperties    = "Properties"
)
