package expr

import (
	"context"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

// FieldReader resolves a field name or A->B path against the current entity.
type FieldReader interface {
	ReadField(ctx context.Context, path string) (any, error)
}

// FieldReaderFunc adapts a function to FieldReader.
type FieldReaderFunc func(ctx context.Context, path string) (any, error)

func (f FieldReaderFunc) ReadField(ctx context.Context, path string) (any, error) { return f(ctx, path) }

// Scope is everything a script can see besides its own locals.
type Scope struct {
	EntityID int64
	SceneID  string
	// Value is the input of a transform; null for scripts.
	Value   any
	Fields  FieldReader
	Modules map[string]*Module
}

var (
	ErrUnknownIdentifier = errors.New("unknown identifier")
	ErrNotCallable       = errors.New("not callable")
	ErrDivisionByZero    = errors.New("division by zero")
)

// maxDepth bounds closure recursion.
const maxDepth = 256

type env struct {
	parent *env
	vars   map[string]any
}

func newEnv(parent *env) *env { return &env{parent: parent, vars: make(map[string]any)} }

func (e *env) lookup(name string) (any, bool) {
	for cur := e; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

type interp struct {
	scope *Scope
}

type depthKey struct{}

type closure struct {
	params []string
	body   Expr
	env    *env
	in     *interp
}

func (c *closure) Call(ctx context.Context, args []any) (any, error) {
	depth, _ := ctx.Value(depthKey{}).(int)
	if depth >= maxDepth {
		return nil, fmt.Errorf("call depth exceeded")
	}
	ctx = context.WithValue(ctx, depthKey{}, depth+1)
	local := newEnv(c.env)
	for i, p := range c.params {
		if i < len(args) {
			local.vars[p] = args[i]
		} else {
			local.vars[p] = nil
		}
	}
	return c.in.eval(ctx, c.body, local)
}

// run executes statements; the result is the first return value or the
// value of the last expression statement.
func (in *interp) run(ctx context.Context, stmts []Stmt, e *env) (any, error) {
	var last any
	for _, s := range stmts {
		switch st := s.(type) {
		case *LetStmt:
			v, err := in.eval(ctx, st.Value, e)
			if err != nil {
				return nil, err
			}
			e.vars[st.Name] = v
			last = nil
		case *ReturnStmt:
			return in.eval(ctx, st.Value, e)
		case *ExprStmt:
			v, err := in.eval(ctx, st.X, e)
			if err != nil {
				return nil, err
			}
			last = v
		}
	}
	return last, nil
}

func (in *interp) eval(ctx context.Context, x Expr, e *env) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch n := x.(type) {
	case *NumberLit:
		return n.Value, nil
	case *StringLit:
		return n.Value, nil
	case *BoolLit:
		return n.Value, nil
	case *NullLit:
		return nil, nil
	case *Ident:
		return in.resolve(ctx, n.Name, e)
	case *FieldRef:
		return in.readField(ctx, n.Path)
	case *Template:
		var out []byte
		for _, p := range n.Parts {
			v, err := in.eval(ctx, p, e)
			if err != nil {
				return nil, err
			}
			out = append(out, ToString(v)...)
		}
		return string(out), nil
	case *ArrayLit:
		items := make([]any, len(n.Elems))
		for i, el := range n.Elems {
			v, err := in.eval(ctx, el, e)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return items, nil
	case *Unary:
		v, err := in.eval(ctx, n.X, e)
		if err != nil {
			return nil, err
		}
		return unary(n.Op, v)
	case *Binary:
		return in.binary(ctx, n, e)
	case *Cond:
		t, err := in.eval(ctx, n.Test, e)
		if err != nil {
			return nil, err
		}
		if truthy(t) {
			return in.eval(ctx, n.Then, e)
		}
		return in.eval(ctx, n.Else, e)
	case *Member:
		obj, err := in.eval(ctx, n.X, e)
		if err != nil {
			return nil, err
		}
		if obj == nil && n.Optional {
			return nil, nil
		}
		return member(obj, n.Name)
	case *Index:
		obj, err := in.eval(ctx, n.X, e)
		if err != nil {
			return nil, err
		}
		idx, err := in.eval(ctx, n.Index, e)
		if err != nil {
			return nil, err
		}
		return index(obj, idx)
	case *Call:
		fn, err := in.eval(ctx, n.Fn, e)
		if err != nil {
			return nil, err
		}
		f, ok := fn.(Function)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotCallable, typeName(fn))
		}
		args := make([]any, len(n.Args))
		for i, a := range n.Args {
			v, err := in.eval(ctx, a, e)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return f.Call(ctx, args)
	case *Arrow:
		return &closure{params: n.Params, body: n.Body, env: e, in: in}, nil
	}
	return nil, fmt.Errorf("unsupported expression %T", x)
}

func (in *interp) resolve(ctx context.Context, name string, e *env) (any, error) {
	if v, ok := e.lookup(name); ok {
		return v, nil
	}
	switch name {
	case "value":
		return in.scope.Value, nil
	case "entityId":
		return in.scope.EntityID, nil
	case "sceneId":
		return in.scope.SceneID, nil
	}
	if h, ok := helpers[name]; ok {
		return h, nil
	}
	if m, ok := in.scope.Modules[name]; ok {
		return m, nil
	}
	if in.scope.Fields == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIdentifier, name)
	}
	return in.readField(ctx, name)
}

func (in *interp) readField(ctx context.Context, path string) (any, error) {
	if in.scope.Fields == nil {
		return nil, fmt.Errorf("field %s: no entity in scope", path)
	}
	v, err := in.scope.Fields.ReadField(ctx, path)
	if err != nil {
		return nil, err
	}
	return normalize(v), nil
}

func unary(op string, v any) (any, error) {
	switch op {
	case "!":
		return !truthy(v), nil
	case "+":
		return toNumber(v)
	case "-":
		n, err := toNumber(v)
		if err != nil {
			return nil, err
		}
		if i, ok := n.(int64); ok {
			return -i, nil
		}
		return -n.(float64), nil
	}
	return nil, fmt.Errorf("unknown operator %s", op)
}

func (in *interp) binary(ctx context.Context, n *Binary, e *env) (any, error) {
	l, err := in.eval(ctx, n.L, e)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "&&":
		if !truthy(l) {
			return l, nil
		}
		return in.eval(ctx, n.R, e)
	case "||":
		if truthy(l) {
			return l, nil
		}
		return in.eval(ctx, n.R, e)
	case "??":
		if l != nil {
			return l, nil
		}
		return in.eval(ctx, n.R, e)
	}
	r, err := in.eval(ctx, n.R, e)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "===":
		return strictEqual(l, r), nil
	case "!==":
		return !strictEqual(l, r), nil
	case "==":
		return looseEqual(l, r), nil
	case "!=":
		return !looseEqual(l, r), nil
	case "<", "<=", ">", ">=":
		return compare(n.Op, l, r)
	case "+":
		_, ls := l.(string)
		_, rs := r.(string)
		if ls || rs {
			return ToString(l) + ToString(r), nil
		}
	}
	return arith(n.Op, l, r)
}

func compare(op string, l, r any) (any, error) {
	ls, lok := l.(string)
	rs, rok := r.(string)
	if lok && rok {
		switch op {
		case "<":
			return ls < rs, nil
		case "<=":
			return ls <= rs, nil
		case ">":
			return ls > rs, nil
		default:
			return ls >= rs, nil
		}
	}
	x, err := toFloat(l)
	if err != nil {
		return nil, fmt.Errorf("compare: %w", err)
	}
	y, err := toFloat(r)
	if err != nil {
		return nil, fmt.Errorf("compare: %w", err)
	}
	switch op {
	case "<":
		return x < y, nil
	case "<=":
		return x <= y, nil
	case ">":
		return x > y, nil
	default:
		return x >= y, nil
	}
}

// arith keeps integers exact while both operands are integers and the
// result is representable; everything else is float64.
func arith(op string, l, r any) (any, error) {
	a, err := toNumber(l)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	b, err := toNumber(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ai, aInt := a.(int64)
	bi, bInt := b.(int64)
	if aInt && bInt {
		switch op {
		case "+":
			return ai + bi, nil
		case "-":
			return ai - bi, nil
		case "*":
			return ai * bi, nil
		case "%":
			if bi == 0 {
				return nil, ErrDivisionByZero
			}
			return ai % bi, nil
		case "/":
			if bi == 0 {
				return nil, ErrDivisionByZero
			}
			if ai%bi == 0 {
				return ai / bi, nil
			}
			return float64(ai) / float64(bi), nil
		}
	}
	x, _ := toFloat(a)
	y, _ := toFloat(b)
	switch op {
	case "+":
		return x + y, nil
	case "-":
		return x - y, nil
	case "*":
		return x * y, nil
	case "/":
		if y == 0 {
			return nil, ErrDivisionByZero
		}
		return x / y, nil
	case "%":
		if y == 0 {
			return nil, ErrDivisionByZero
		}
		return math.Mod(x, y), nil
	}
	return nil, fmt.Errorf("unknown operator %s", op)
}

func member(obj any, name string) (any, error) {
	switch o := obj.(type) {
	case nil:
		return nil, fmt.Errorf("cannot read %s of null", name)
	case map[string]any:
		return o[name], nil
	case *Module:
		v, ok := o.Export(name)
		if !ok {
			return nil, fmt.Errorf("module %s has no export %s", o.Name, name)
		}
		return v, nil
	case string:
		if name == "length" {
			return int64(utf8.RuneCountInString(o)), nil
		}
		if m, ok := stringMethods[name]; ok {
			return bind(name, m, o), nil
		}
	case []any:
		if name == "length" {
			return int64(len(o)), nil
		}
		if m, ok := arrayMethods[name]; ok {
			return bind(name, m, o), nil
		}
	case int64, float64:
		if name == "toFixed" {
			return bind(name, helperFixed, o), nil
		}
	}
	return nil, fmt.Errorf("%s has no property %s", typeName(obj), name)
}

func index(obj, idx any) (any, error) {
	switch o := obj.(type) {
	case []any:
		n, err := toNumber(idx)
		if err != nil {
			return nil, fmt.Errorf("index: %w", err)
		}
		i, ok := n.(int64)
		if !ok || i < 0 || i >= int64(len(o)) {
			return nil, nil
		}
		return o[i], nil
	case string:
		n, err := toNumber(idx)
		if err != nil {
			return nil, fmt.Errorf("index: %w", err)
		}
		runes := []rune(o)
		i, ok := n.(int64)
		if !ok || i < 0 || i >= int64(len(runes)) {
			return nil, nil
		}
		return string(runes[i]), nil
	case map[string]any, *Module:
		return member(o, ToString(idx))
	case nil:
		return nil, fmt.Errorf("cannot index null")
	}
	return nil, fmt.Errorf("cannot index %s", typeName(obj))
}
