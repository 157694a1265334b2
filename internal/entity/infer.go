package entity

import (
	"encoding/json"
	"fmt"
	"math"

	"scenes/internal/domain"
)

// InferValue tags a loosely typed value for writing:
//
//	bool                      -> Bool
//	integer, integral float   -> Int
//	other float               -> Float
//	string                    -> String
//	array of integers         -> EntityList
//	anything else             -> String holding its JSON encoding
//
// A domain.Value is passed through untouched.
func InferValue(raw any) (domain.Value, error) {
	switch v := raw.(type) {
	case domain.Value:
		return v, nil
	case *domain.Value:
		if v != nil {
			return *v, nil
		}
	case bool:
		return domain.BoolValue(v), nil
	case int:
		return domain.IntValue(int64(v)), nil
	case int32:
		return domain.IntValue(int64(v)), nil
	case int64:
		return domain.IntValue(v), nil
	case uint32:
		return domain.IntValue(int64(v)), nil
	case domain.EntityID:
		return domain.IntValue(int64(v)), nil
	case float32:
		return inferFloat(float64(v)), nil
	case float64:
		return inferFloat(v), nil
	case string:
		return domain.StringValue(v), nil
	case []domain.EntityID:
		return domain.ListValue(v), nil
	case []int64:
		ids := make([]domain.EntityID, len(v))
		for i, n := range v {
			ids[i] = domain.EntityID(n)
		}
		return domain.ListValue(ids), nil
	case []int:
		ids := make([]domain.EntityID, len(v))
		for i, n := range v {
			ids[i] = domain.EntityID(n)
		}
		return domain.ListValue(ids), nil
	case []any:
		if ids, ok := integerList(v); ok {
			return domain.ListValue(ids), nil
		}
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return domain.Value{}, fmt.Errorf("infer value from %T: %w", raw, err)
	}
	return domain.StringValue(string(b)), nil
}

func inferFloat(f float64) domain.Value {
	if !math.IsInf(f, 0) && !math.IsNaN(f) && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return domain.IntValue(int64(f))
	}
	return domain.FloatValue(f)
}

func integerList(items []any) ([]domain.EntityID, bool) {
	ids := make([]domain.EntityID, 0, len(items))
	for _, it := range items {
		var f float64
		switch n := it.(type) {
		case int:
			f = float64(n)
		case int64:
			f = float64(n)
		case float64:
			f = n
		default:
			return nil, false
		}
		if f != math.Trunc(f) {
			return nil, false
		}
		ids = append(ids, domain.EntityID(int64(f)))
	}
	return ids, true
}

// fitKind retags an inferred Int for fields declared float, choice or
// entity reference. Every other combination is written as inferred.
func fitKind(v domain.Value, want domain.ValueKind) domain.Value {
	if v.Kind != domain.KindInt {
		return v
	}
	n, _ := v.AsInt()
	switch want {
	case domain.KindFloat:
		return domain.FloatValue(float64(n))
	case domain.KindChoice:
		return domain.ChoiceValue(int(n))
	case domain.KindEntityRef:
		return domain.Ref(domain.EntityID(n))
	}
	return v
}
