package expr

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

type method func(ctx context.Context, recv any, args []any) (any, error)

func bind(name string, m method, recv any) Function {
	return &builtin{name: name, fn: func(ctx context.Context, args []any) (any, error) {
		return m(ctx, recv, args)
	}}
}

func fn(name string, f func(ctx context.Context, args []any) (any, error)) *builtin {
	return &builtin{name: name, fn: f}
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func wantArgs(args []any, n int) error {
	if len(args) < n {
		return fmt.Errorf("want %d arguments, got %d", n, len(args))
	}
	return nil
}

// helpers is the fixed function set visible to every script.
var helpers = map[string]*builtin{
	"round": fn("round", func(_ context.Context, args []any) (any, error) {
		return roundTo(args, math.Round)
	}),
	"floor": fn("floor", func(_ context.Context, args []any) (any, error) {
		return roundTo(args, math.Floor)
	}),
	"ceil": fn("ceil", func(_ context.Context, args []any) (any, error) {
		return roundTo(args, math.Ceil)
	}),
	"abs": fn("abs", func(_ context.Context, args []any) (any, error) {
		if err := wantArgs(args, 1); err != nil {
			return nil, err
		}
		n, err := toNumber(args[0])
		if err != nil {
			return nil, err
		}
		if i, ok := n.(int64); ok {
			if i < 0 {
				return -i, nil
			}
			return i, nil
		}
		return math.Abs(n.(float64)), nil
	}),
	"min": fn("min", func(_ context.Context, args []any) (any, error) {
		return extreme(args, func(a, b float64) bool { return a < b })
	}),
	"max": fn("max", func(_ context.Context, args []any) (any, error) {
		return extreme(args, func(a, b float64) bool { return a > b })
	}),
	"clamp": fn("clamp", func(_ context.Context, args []any) (any, error) {
		if err := wantArgs(args, 3); err != nil {
			return nil, err
		}
		x, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		lo, err := toFloat(args[1])
		if err != nil {
			return nil, err
		}
		hi, err := toFloat(args[2])
		if err != nil {
			return nil, err
		}
		switch {
		case x < lo:
			return args[1], nil
		case x > hi:
			return args[2], nil
		}
		return args[0], nil
	}),
	"fixed": fn("fixed", func(ctx context.Context, args []any) (any, error) {
		if err := wantArgs(args, 1); err != nil {
			return nil, err
		}
		return helperFixed(ctx, args[0], args[1:])
	}),
	"upper": fn("upper", func(_ context.Context, args []any) (any, error) {
		return strings.ToUpper(ToString(arg(args, 0))), nil
	}),
	"lower": fn("lower", func(_ context.Context, args []any) (any, error) {
		return strings.ToLower(ToString(arg(args, 0))), nil
	}),
	"trim": fn("trim", func(_ context.Context, args []any) (any, error) {
		return strings.TrimSpace(ToString(arg(args, 0))), nil
	}),
	"len": fn("len", func(_ context.Context, args []any) (any, error) {
		switch v := arg(args, 0).(type) {
		case nil:
			return int64(0), nil
		case string:
			return int64(utf8.RuneCountInString(v)), nil
		case []any:
			return int64(len(v)), nil
		case map[string]any:
			return int64(len(v)), nil
		default:
			return nil, fmt.Errorf("%s has no length", typeName(v))
		}
	}),
	"concat": fn("concat", func(_ context.Context, args []any) (any, error) {
		var b strings.Builder
		for _, a := range args {
			if a != nil {
				b.WriteString(ToString(a))
			}
		}
		return b.String(), nil
	}),
	"str": fn("str", func(_ context.Context, args []any) (any, error) {
		return ToString(arg(args, 0)), nil
	}),
	"num": fn("num", func(_ context.Context, args []any) (any, error) {
		return toNumber(arg(args, 0))
	}),
	"bool": fn("bool", func(_ context.Context, args []any) (any, error) {
		return truthy(arg(args, 0)), nil
	}),
	"coalesce": fn("coalesce", func(_ context.Context, args []any) (any, error) {
		for _, a := range args {
			if a != nil {
				return a, nil
			}
		}
		return nil, nil
	}),
	"contains": fn("contains", func(ctx context.Context, args []any) (any, error) {
		if err := wantArgs(args, 2); err != nil {
			return nil, err
		}
		return includes(ctx, args[0], args[1:])
	}),
	"replace": fn("replace", func(_ context.Context, args []any) (any, error) {
		if err := wantArgs(args, 3); err != nil {
			return nil, err
		}
		return strings.ReplaceAll(ToString(args[0]), ToString(args[1]), ToString(args[2])), nil
	}),
	"pad": fn("pad", func(_ context.Context, args []any) (any, error) {
		if err := wantArgs(args, 2); err != nil {
			return nil, err
		}
		s := ToString(args[0])
		width, err := toNumber(args[1])
		if err != nil {
			return nil, err
		}
		w, ok := width.(int64)
		if !ok {
			return nil, fmt.Errorf("width must be an integer")
		}
		fill := " "
		if f := arg(args, 2); f != nil && ToString(f) != "" {
			fill = ToString(f)
		}
		for int64(utf8.RuneCountInString(s)) < w {
			s = fill + s
		}
		return s, nil
	}),
}

// HelperNames lists the helper functions in sorted order.
func HelperNames() []string {
	names := make([]string, 0, len(helpers))
	for n := range helpers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func roundTo(args []any, op func(float64) float64) (any, error) {
	if err := wantArgs(args, 1); err != nil {
		return nil, err
	}
	n, err := toNumber(args[0])
	if err != nil {
		return nil, err
	}
	digits := int64(0)
	if d := arg(args, 1); d != nil {
		dn, err := toNumber(d)
		if err != nil {
			return nil, err
		}
		digits, _ = dn.(int64)
	}
	if i, ok := n.(int64); ok && digits >= 0 {
		return i, nil
	}
	x, _ := toFloat(n)
	if digits <= 0 {
		return int64(op(x)), nil
	}
	scale := math.Pow(10, float64(digits))
	return op(x*scale) / scale, nil
}

func extreme(args []any, better func(a, b float64) bool) (any, error) {
	if len(args) == 1 {
		if list, ok := args[0].([]any); ok {
			args = list
		}
	}
	if len(args) == 0 {
		return nil, nil
	}
	best := args[0]
	bf, err := toFloat(best)
	if err != nil {
		return nil, err
	}
	for _, a := range args[1:] {
		f, err := toFloat(a)
		if err != nil {
			return nil, err
		}
		if better(f, bf) {
			best, bf = a, f
		}
	}
	return best, nil
}

func helperFixed(_ context.Context, recv any, args []any) (any, error) {
	x, err := toFloat(recv)
	if err != nil {
		return nil, err
	}
	digits := 0
	if d := arg(args, 0); d != nil {
		dn, err := toNumber(d)
		if err != nil {
			return nil, err
		}
		if i, ok := dn.(int64); ok {
			digits = int(i)
		}
	}
	if digits < 0 || digits > 20 {
		return nil, fmt.Errorf("digits out of range: %d", digits)
	}
	return strconv.FormatFloat(x, 'f', digits, 64), nil
}

func includes(_ context.Context, recv any, args []any) (any, error) {
	needle := arg(args, 0)
	switch h := recv.(type) {
	case string:
		return strings.Contains(h, ToString(needle)), nil
	case []any:
		for _, e := range h {
			if strictEqual(e, needle) {
				return true, nil
			}
		}
		return false, nil
	case nil:
		return false, nil
	}
	return nil, fmt.Errorf("cannot search %s", typeName(recv))
}

var stringMethods = map[string]method{
	"toUpperCase": func(_ context.Context, recv any, _ []any) (any, error) {
		return strings.ToUpper(recv.(string)), nil
	},
	"toLowerCase": func(_ context.Context, recv any, _ []any) (any, error) {
		return strings.ToLower(recv.(string)), nil
	},
	"trim": func(_ context.Context, recv any, _ []any) (any, error) {
		return strings.TrimSpace(recv.(string)), nil
	},
	"includes": includes,
	"startsWith": func(_ context.Context, recv any, args []any) (any, error) {
		return strings.HasPrefix(recv.(string), ToString(arg(args, 0))), nil
	},
	"endsWith": func(_ context.Context, recv any, args []any) (any, error) {
		return strings.HasSuffix(recv.(string), ToString(arg(args, 0))), nil
	},
	"split": func(_ context.Context, recv any, args []any) (any, error) {
		parts := strings.Split(recv.(string), ToString(arg(args, 0)))
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	},
}

var arrayMethods = map[string]method{
	"includes": includes,
	"join": func(_ context.Context, recv any, args []any) (any, error) {
		sep := ","
		if s := arg(args, 0); s != nil {
			sep = ToString(s)
		}
		items := recv.([]any)
		parts := make([]string, len(items))
		for i, e := range items {
			if e != nil {
				parts[i] = ToString(e)
			}
		}
		return strings.Join(parts, sep), nil
	},
	"map": func(ctx context.Context, recv any, args []any) (any, error) {
		f, ok := arg(args, 0).(Function)
		if !ok {
			return nil, ErrNotCallable
		}
		items := recv.([]any)
		out := make([]any, len(items))
		for i, e := range items {
			v, err := f.Call(ctx, []any{e, int64(i)})
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	},
	"filter": func(ctx context.Context, recv any, args []any) (any, error) {
		f, ok := arg(args, 0).(Function)
		if !ok {
			return nil, ErrNotCallable
		}
		out := []any{}
		for i, e := range recv.([]any) {
			v, err := f.Call(ctx, []any{e, int64(i)})
			if err != nil {
				return nil, err
			}
			if truthy(v) {
				out = append(out, e)
			}
		}
		return out, nil
	},
}
