package domain

import "errors"

// Sentinels returned by EntityStore implementations.
var (
	ErrUnknownField      = errors.New("unknown field")
	ErrUnknownEntityType = errors.New("unknown entity type")
	ErrEntityNotFound    = errors.New("entity not found")
)
