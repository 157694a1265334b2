package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueKind tags which member of a Value is populated.
type ValueKind string

const (
	KindString     ValueKind = "string"
	KindInt        ValueKind = "int"
	KindFloat      ValueKind = "float"
	KindBool       ValueKind = "bool"
	KindChoice     ValueKind = "choice"
	KindEntityRef  ValueKind = "entityRef"
	KindEntityList ValueKind = "entityList"
)

// EntityID identifies a record in the external entity store.
type EntityID int64

func (id EntityID) String() string { return strconv.FormatInt(int64(id), 10) }

// Value is the tagged union read from and written to entity fields.
// Exactly one member is meaningful, selected by Kind.
type Value struct {
	Kind  ValueKind
	str   string
	num   int64
	float float64
	flag  bool
	ref   *EntityID
	list  []EntityID
}

func StringValue(s string) Value  { return Value{Kind: KindString, str: s} }
func IntValue(n int64) Value      { return Value{Kind: KindInt, num: n} }
func FloatValue(f float64) Value  { return Value{Kind: KindFloat, float: f} }
func BoolValue(b bool) Value      { return Value{Kind: KindBool, flag: b} }
func ChoiceValue(index int) Value { return Value{Kind: KindChoice, num: int64(index)} }

// RefValue builds an entity reference. A nil id is the null reference.
func RefValue(id *EntityID) Value {
	if id == nil {
		return Value{Kind: KindEntityRef}
	}
	v := *id
	return Value{Kind: KindEntityRef, ref: &v}
}

// ListValue builds an entity list. The slice is copied.
func ListValue(ids []EntityID) Value {
	return Value{Kind: KindEntityList, list: append([]EntityID{}, ids...)}
}

// Ref is a convenience for RefValue(&id).
func Ref(id EntityID) Value { return RefValue(&id) }

// ErrKindMismatch is returned by the typed extractors.
type ErrKindMismatch struct {
	Want, Got ValueKind
}

func (e *ErrKindMismatch) Error() string {
	return fmt.Sprintf("value is %s, not %s", e.Got, e.Want)
}

func (v Value) mismatch(want ValueKind) error { return &ErrKindMismatch{Want: want, Got: v.Kind} }

func (v Value) AsString() (string, error) {
	if v.Kind != KindString {
		return "", v.mismatch(KindString)
	}
	return v.str, nil
}

func (v Value) AsInt() (int64, error) {
	if v.Kind != KindInt {
		return 0, v.mismatch(KindInt)
	}
	return v.num, nil
}

func (v Value) AsFloat() (float64, error) {
	if v.Kind != KindFloat {
		return 0, v.mismatch(KindFloat)
	}
	return v.float, nil
}

func (v Value) AsBool() (bool, error) {
	if v.Kind != KindBool {
		return false, v.mismatch(KindBool)
	}
	return v.flag, nil
}

func (v Value) AsChoice() (int, error) {
	if v.Kind != KindChoice {
		return 0, v.mismatch(KindChoice)
	}
	return int(v.num), nil
}

// EntityRef returns the referenced id, or nil for a null reference.
func (v Value) AsEntityRef() (*EntityID, error) {
	if v.Kind != KindEntityRef {
		return nil, v.mismatch(KindEntityRef)
	}
	if v.ref == nil {
		return nil, nil
	}
	id := *v.ref
	return &id, nil
}

func (v Value) AsEntityList() ([]EntityID, error) {
	if v.Kind != KindEntityList {
		return nil, v.mismatch(KindEntityList)
	}
	return append([]EntityID{}, v.list...), nil
}

// Scalar returns the natural Go value for the populated member:
// string, int64, float64, bool, int (choice), EntityID or nil (reference),
// []EntityID (list). Unknown kinds are an error, never a coercion.
func (v Value) Scalar() (any, error) {
	switch v.Kind {
	case KindString:
		return v.str, nil
	case KindInt:
		return v.num, nil
	case KindFloat:
		return v.float, nil
	case KindBool:
		return v.flag, nil
	case KindChoice:
		return int(v.num), nil
	case KindEntityRef:
		if v.ref == nil {
			return nil, nil
		}
		return *v.ref, nil
	case KindEntityList:
		return append([]EntityID{}, v.list...), nil
	default:
		return nil, fmt.Errorf("unknown value kind %q", v.Kind)
	}
}

// Equal reports whether both values carry the same tag and payload.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindEntityRef:
		if v.ref == nil || o.ref == nil {
			return v.ref == nil && o.ref == nil
		}
		return *v.ref == *o.ref
	case KindEntityList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != o.list[i] {
				return false
			}
		}
		return true
	default:
		return v.str == o.str && v.num == o.num && v.float == o.float && v.flag == o.flag
	}
}

// wireValue is the storage encoding: {"kind":"float","value":72.5}.
type wireValue struct {
	Kind  ValueKind       `json:"kind"`
	Value json.RawMessage `json:"value"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	payload, err := v.Scalar()
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireValue{Kind: v.Kind, Value: raw})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var err error
	switch w.Kind {
	case KindString:
		var s string
		err = json.Unmarshal(w.Value, &s)
		*v = StringValue(s)
	case KindInt:
		var n int64
		err = json.Unmarshal(w.Value, &n)
		*v = IntValue(n)
	case KindFloat:
		var f float64
		err = json.Unmarshal(w.Value, &f)
		*v = FloatValue(f)
	case KindBool:
		var b bool
		err = json.Unmarshal(w.Value, &b)
		*v = BoolValue(b)
	case KindChoice:
		var c int
		err = json.Unmarshal(w.Value, &c)
		*v = ChoiceValue(c)
	case KindEntityRef:
		var id *EntityID
		err = json.Unmarshal(w.Value, &id)
		*v = RefValue(id)
	case KindEntityList:
		var ids []EntityID
		err = json.Unmarshal(w.Value, &ids)
		*v = ListValue(ids)
	default:
		return fmt.Errorf("unknown value kind %q", w.Kind)
	}
	if err != nil {
		return fmt.Errorf("decode %s value: %w", w.Kind, err)
	}
	return nil
}

// Clone returns a copy that shares no memory with v.
func (v Value) Clone() Value {
	c := v
	if v.ref != nil {
		r := *v.ref
		c.ref = &r
	}
	if v.list != nil {
		c.list = append([]EntityID{}, v.list...)
	}
	return c
}
