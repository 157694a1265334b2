package feed

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cast"

	"scenes/internal/domain"
	"scenes/internal/entity"
)

// ── Destination ────────────────────────────────────────────

var ErrNoTarget = errors.New("record has no target entity")

// Target picks the entity a record is written to.
type Target struct {
	// Key names the column holding the entity id. The column itself is
	// not written.
	Key string
	// Entity receives every record when Key is empty.
	Entity domain.EntityID
}

func (t Target) resolve(r Record) (domain.EntityID, error) {
	if t.Key == "" {
		if t.Entity == 0 {
			return 0, ErrNoTarget
		}
		return t.Entity, nil
	}
	raw, ok := r.Data[t.Key]
	if !ok || raw == nil {
		return 0, fmt.Errorf("%w: column %q is empty", ErrNoTarget, t.Key)
	}
	id, err := cast.ToInt64E(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: column %q: %v", ErrNoTarget, t.Key, err)
	}
	return domain.EntityID(id), nil
}

// WriteResult summarizes one destination write.
type WriteResult struct {
	Written int `json:"written"`
	// Fields lists every field that received a value, sorted.
	Fields []string `json:"fields"`
	// Skipped lists columns with no matching field in the store, sorted.
	Skipped []string `json:"skipped,omitempty"`
}

// Destination writes records into a target system.
type Destination interface {
	Write(ctx context.Context, target Target, records []Record) (*WriteResult, error)
}

// EntityWriter writes record columns into entity fields of the same name.
// Null values are left alone.
type EntityWriter struct {
	Accessor *entity.Accessor
}

func (w *EntityWriter) Write(ctx context.Context, target Target, records []Record) (*WriteResult, error) {
	res := &WriteResult{Fields: []string{}}
	fields := map[string]bool{}
	skipped := map[string]bool{}

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		id, err := target.resolve(rec)
		if err != nil {
			return res, fmt.Errorf("record %d: %w", i, err)
		}
		for _, col := range rec.Columns() {
			v := rec.Data[col]
			if col == target.Key || v == nil {
				continue
			}
			err := w.Accessor.WriteValue(ctx, id, col, v)
			if errors.Is(err, domain.ErrUnknownField) {
				skipped[col] = true
				continue
			}
			if err != nil {
				return res, fmt.Errorf("record %d: %w", i, err)
			}
			fields[col] = true
		}
		res.Written++
	}

	res.Fields = sortedKeys(fields)
	if len(skipped) > 0 {
		res.Skipped = sortedKeys(skipped)
	}
	return res, nil
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
