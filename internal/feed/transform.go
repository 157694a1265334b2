package feed

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"scenes/internal/expr"
)

// ── Transformer ────────────────────────────────────────────
// Transformers rewrite records between source and destination. Each one
// returns the (possibly modified) record and whether to keep it.

type Transformer interface {
	Transform(ctx context.Context, r Record) (Record, bool, error)
}

// TransformerFunc adapts a plain function to the Transformer interface.
type TransformerFunc func(ctx context.Context, r Record) (Record, bool, error)

func (f TransformerFunc) Transform(ctx context.Context, r Record) (Record, bool, error) {
	return f(ctx, r)
}

// TransformConfig is a declarative transform definition.
type TransformConfig struct {
	Type   string         `json:"type" toml:"type"` // filter | rename | select | dedupe | compute | limit | type_cast
	Config map[string]any `json:"config" toml:"config"`
}

// ── Built-in Transforms ────────────────────────────────────

// FilterTransform drops records whose field does not satisfy Op Value.
// Records without the field are dropped.
type FilterTransform struct {
	Field string
	Op    string // eq | neq | gt | gte | lt | lte | contains
	Value any
}

func (t *FilterTransform) Transform(_ context.Context, r Record) (Record, bool, error) {
	v, ok := r.Data[t.Field]
	if !ok {
		return r, false, nil
	}
	switch t.Op {
	case "eq":
		return r, cast.ToString(v) == cast.ToString(t.Value), nil
	case "neq":
		return r, cast.ToString(v) != cast.ToString(t.Value), nil
	case "contains":
		return r, strings.Contains(cast.ToString(v), cast.ToString(t.Value)), nil
	}
	a, errA := cast.ToFloat64E(v)
	b, errB := cast.ToFloat64E(t.Value)
	if errA != nil || errB != nil {
		return r, false, nil
	}
	switch t.Op {
	case "gt":
		return r, a > b, nil
	case "gte":
		return r, a >= b, nil
	case "lt":
		return r, a < b, nil
	case "lte":
		return r, a <= b, nil
	}
	return r, false, fmt.Errorf("filter %s: unknown op %q", t.Field, t.Op)
}

// RenameTransform renames columns, old name to new name.
type RenameTransform struct {
	Mapping map[string]string
}

func (t *RenameTransform) Transform(_ context.Context, r Record) (Record, bool, error) {
	out := r.clone()
	for from, to := range t.Mapping {
		if v, ok := r.Data[from]; ok {
			delete(out.Data, from)
			out.Data[to] = v
		}
	}
	return out, true, nil
}

// SelectTransform keeps only the listed columns.
type SelectTransform struct {
	Fields []string
}

func (t *SelectTransform) Transform(_ context.Context, r Record) (Record, bool, error) {
	filtered := make(map[string]any, len(t.Fields))
	for _, f := range t.Fields {
		if v, ok := r.Data[f]; ok {
			filtered[f] = v
		}
	}
	return Record{Data: filtered}, true, nil
}

// DedupeTransform keeps the first record for each value of Key.
type DedupeTransform struct {
	Key  string
	seen map[string]bool
}

func NewDedupeTransform(key string) *DedupeTransform {
	return &DedupeTransform{Key: key, seen: make(map[string]bool)}
}

func (t *DedupeTransform) Transform(_ context.Context, r Record) (Record, bool, error) {
	v := cast.ToString(r.Data[t.Key])
	if t.seen[v] {
		return r, false, nil
	}
	t.seen[v] = true
	return r, true, nil
}

// ComputeColumn sets Name to the result of a script. Bare identifiers in
// the script read the record's columns; a missing column is null.
type ComputeColumn struct {
	Name    string
	program *expr.Program
}

type ComputeTransform struct {
	Columns []ComputeColumn
}

// NewComputeTransform compiles every column script up front.
func NewComputeTransform(columns map[string]string) (*ComputeTransform, error) {
	t := &ComputeTransform{}
	for _, name := range sortedKeys(columns) {
		p, err := expr.Compile(columns[name])
		if err != nil {
			return nil, fmt.Errorf("compute %s: %w", name, err)
		}
		t.Columns = append(t.Columns, ComputeColumn{Name: name, program: p})
	}
	return t, nil
}

func (t *ComputeTransform) Transform(ctx context.Context, r Record) (Record, bool, error) {
	out := r.clone()
	fields := expr.FieldReaderFunc(func(_ context.Context, path string) (any, error) {
		return out.Data[path], nil
	})
	for _, col := range t.Columns {
		v, err := col.program.Eval(ctx, expr.Scope{Fields: fields})
		if err != nil {
			return r, false, fmt.Errorf("compute %s: %w", col.Name, err)
		}
		out.Data[col.Name] = v
	}
	return out, true, nil
}

// LimitTransform keeps the first Count records.
type LimitTransform struct {
	Count int
	seen  int
}

func NewLimitTransform(count int) *LimitTransform {
	return &LimitTransform{Count: count}
}

func (t *LimitTransform) Transform(_ context.Context, r Record) (Record, bool, error) {
	t.seen++
	return r, t.seen <= t.Count, nil
}

// TypeCastTransform converts one column to number, string or boolean.
type TypeCastTransform struct {
	Field    string
	CastType string
}

func (t *TypeCastTransform) Transform(_ context.Context, r Record) (Record, bool, error) {
	v, ok := r.Data[t.Field]
	if !ok || v == nil {
		return r, true, nil
	}
	var (
		out any
		err error
	)
	switch t.CastType {
	case "number":
		out, err = cast.ToFloat64E(v)
	case "string":
		out, err = cast.ToStringE(v)
	case "boolean":
		out, err = cast.ToBoolE(v)
	default:
		return r, false, fmt.Errorf("type_cast %s: unknown type %q", t.Field, t.CastType)
	}
	if err != nil {
		return r, false, fmt.Errorf("type_cast %s: %w", t.Field, err)
	}
	rec := r.clone()
	rec.Data[t.Field] = out
	return rec, true, nil
}

// ── Building ───────────────────────────────────────────────

// BuildTransformers turns declarative configs into a chain. Transformers
// carry state (dedupe, limit), so build a fresh chain per run.
func BuildTransformers(configs []TransformConfig) ([]Transformer, error) {
	var ts []Transformer
	for i, tc := range configs {
		c := tc.Config
		switch tc.Type {
		case "filter":
			field, op := cast.ToString(c["field"]), cast.ToString(c["op"])
			if field == "" || op == "" {
				return nil, fmt.Errorf("transform %d: filter needs field and op", i)
			}
			ts = append(ts, &FilterTransform{Field: field, Op: op, Value: c["value"]})
		case "rename":
			m, err := cast.ToStringMapStringE(c["mapping"])
			if err != nil || len(m) == 0 {
				return nil, fmt.Errorf("transform %d: rename needs a mapping", i)
			}
			ts = append(ts, &RenameTransform{Mapping: m})
		case "select":
			fields, err := cast.ToStringSliceE(c["fields"])
			if err != nil || len(fields) == 0 {
				return nil, fmt.Errorf("transform %d: select needs fields", i)
			}
			ts = append(ts, &SelectTransform{Fields: fields})
		case "dedupe":
			key := cast.ToString(c["key"])
			if key == "" {
				return nil, fmt.Errorf("transform %d: dedupe needs a key", i)
			}
			ts = append(ts, NewDedupeTransform(key))
		case "compute":
			cols, err := cast.ToStringMapStringE(c["columns"])
			if err != nil || len(cols) == 0 {
				return nil, fmt.Errorf("transform %d: compute needs columns", i)
			}
			t, err := NewComputeTransform(cols)
			if err != nil {
				return nil, fmt.Errorf("transform %d: %w", i, err)
			}
			ts = append(ts, t)
		case "limit":
			n, err := cast.ToIntE(c["count"])
			if err != nil || n < 1 {
				return nil, fmt.Errorf("transform %d: limit needs a positive count", i)
			}
			ts = append(ts, NewLimitTransform(n))
		case "type_cast":
			field, typ := cast.ToString(c["field"]), cast.ToString(c["castType"])
			if field == "" || typ == "" {
				return nil, fmt.Errorf("transform %d: type_cast needs field and castType", i)
			}
			ts = append(ts, &TypeCastTransform{Field: field, CastType: typ})
		default:
			return nil, fmt.Errorf("transform %d: unknown type %q", i, tc.Type)
		}
	}
	return ts, nil
}

// ApplyTransformers runs the chain on r, stopping at the first drop.
func ApplyTransformers(ctx context.Context, r Record, ts []Transformer) (Record, bool, error) {
	for _, t := range ts {
		var (
			keep bool
			err  error
		)
		r, keep, err = t.Transform(ctx, r)
		if err != nil || !keep {
			return r, false, err
		}
	}
	return r, true, nil
}
