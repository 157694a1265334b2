package expr

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// Function is a callable runtime value: an arrow function, a helper or a
// bound method.
type Function interface {
	Call(ctx context.Context, args []any) (any, error)
}

type builtin struct {
	name string
	fn   func(ctx context.Context, args []any) (any, error)
}

func (b *builtin) Call(ctx context.Context, args []any) (any, error) {
	v, err := b.fn(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.name, err)
	}
	return v, nil
}

func isNumber(v any) bool {
	switch v.(type) {
	case int64, float64:
		return true
	}
	return false
}

// normalize folds the Go numeric types a FieldReader may hand back into
// int64 and float64.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int8, int16, uint, uint8, uint16, uint32, uint64:
		return cast.ToInt64(n)
	case float32:
		return float64(n)
	case []string:
		out := make([]any, len(n))
		for i, s := range n {
			out[i] = s
		}
		return out
	}
	return v
}

// toNumber converts numbers, numeric strings and bools. Everything else is
// a type error.
func toNumber(v any) (any, error) {
	switch n := v.(type) {
	case int64, float64:
		return n, nil
	case bool:
		if n {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := cast.ToFloat64E(s)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", n)
		}
		return f, nil
	case nil:
		return nil, fmt.Errorf("null is not a number")
	default:
		return nil, fmt.Errorf("%s is not a number", typeName(v))
	}
}

func toFloat(v any) (float64, error) {
	n, err := toNumber(v)
	if err != nil {
		return 0, err
	}
	if i, ok := n.(int64); ok {
		return float64(i), nil
	}
	return n.(float64), nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0 && !math.IsNaN(x)
	case string:
		return x != ""
	default:
		return true
	}
}

// ToString formats a runtime value the way templates and concatenation do.
func ToString(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		switch {
		case math.IsNaN(x):
			return "NaN"
		case math.IsInf(x, 1):
			return "Infinity"
		case math.IsInf(x, -1):
			return "-Infinity"
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			if e != nil {
				parts[i] = ToString(e)
			}
		}
		return strings.Join(parts, ",")
	case map[string]any:
		return "[object Object]"
	case Function:
		return "function"
	case *Module:
		return "[module " + x.Name + "]"
	default:
		return cast.ToString(v)
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case int64, float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case Function:
		return "function"
	case *Module:
		return "module"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func strictEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if isNumber(a) && isNumber(b) {
		x, _ := toFloat(a)
		y, _ := toFloat(b)
		return x == y
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	return false
}

func looseEqual(a, b any) bool {
	if strictEqual(a, b) {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if isNumber(a) || isNumber(b) {
		x, errA := toFloat(a)
		y, errB := toFloat(b)
		return errA == nil && errB == nil && x == y
	}
	return false
}
