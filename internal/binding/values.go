package binding

import (
	"context"

	"scenes/internal/domain"
	"scenes/internal/entity"
	"scenes/internal/expr"
)

// plain turns a stored value into the runtime representation shared by the
// value maps and scripts: nil, string, int64, float64, bool or []any.
func plain(v *domain.Value) (any, error) {
	if v == nil {
		return nil, nil
	}
	s, err := v.Scalar()
	if err != nil {
		return nil, err
	}
	switch x := s.(type) {
	case int:
		return int64(x), nil
	case domain.EntityID:
		return int64(x), nil
	case []domain.EntityID:
		out := make([]any, len(x))
		for i, id := range x {
			out[i] = int64(id)
		}
		return out, nil
	}
	return s, nil
}

// fieldReader exposes an entity's fields to scripts through the accessor.
func fieldReader(acc *entity.Accessor, id domain.EntityID) expr.FieldReader {
	return expr.FieldReaderFunc(func(ctx context.Context, path string) (any, error) {
		v, err := acc.ReadPath(ctx, id, path)
		if err != nil {
			return nil, err
		}
		return plain(v)
	})
}
