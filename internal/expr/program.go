package expr

import (
	"context"
	"fmt"
	"sort"
)

// Program is a compiled script or transform. It is immutable and safe for
// concurrent evaluation.
type Program struct {
	src    string
	stmts  []Stmt
	fields []string
}

// Compile parses src once for repeated evaluation.
func Compile(src string) (*Program, error) {
	stmts, err := parseProgram(src)
	if err != nil {
		return nil, err
	}
	return &Program{src: src, stmts: stmts, fields: collectFields(stmts)}, nil
}

func (p *Program) Source() string { return p.src }

// Fields lists the field names and paths the program may read, in order of
// first appearance. Free identifiers are included; a caller that knows the
// module names should filter those out.
func (p *Program) Fields() []string { return append([]string(nil), p.fields...) }

// Eval runs the program as a script. A program that evaluates to a function
// is called with one argument, an object holding entityId, sceneId and value.
func (p *Program) Eval(ctx context.Context, scope Scope) (any, error) {
	in := &interp{scope: &scope}
	v, err := in.run(ctx, p.stmts, newEnv(nil))
	if err != nil {
		return nil, err
	}
	if f, ok := v.(Function); ok {
		return f.Call(ctx, []any{map[string]any{
			"entityId": scope.EntityID,
			"sceneId":  scope.SceneID,
			"value":    scope.Value,
		}})
	}
	return v, nil
}

// Apply runs the program as a transform of value. A program that evaluates
// to a function is called with value; otherwise its result is used as is,
// with value visible by name.
func (p *Program) Apply(ctx context.Context, scope Scope, value any) (any, error) {
	scope.Value = normalize(value)
	in := &interp{scope: &scope}
	v, err := in.run(ctx, p.stmts, newEnv(nil))
	if err != nil {
		return nil, err
	}
	if f, ok := v.(Function); ok {
		return f.Call(ctx, []any{scope.Value})
	}
	return v, nil
}

// Module is a named set of exports produced by evaluating `let` statements.
type Module struct {
	Name    string
	exports map[string]any
}

// CompileModule evaluates src with no entity in scope and keeps every
// top-level let as an export.
func CompileModule(ctx context.Context, name, src string) (*Module, error) {
	stmts, err := parseProgram(src)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", name, err)
	}
	in := &interp{scope: &Scope{}}
	e := newEnv(nil)
	if _, err := in.run(ctx, stmts, e); err != nil {
		return nil, fmt.Errorf("module %s: %w", name, err)
	}
	m := &Module{Name: name, exports: make(map[string]any)}
	for _, s := range stmts {
		if let, ok := s.(*LetStmt); ok {
			m.exports[let.Name] = e.vars[let.Name]
		}
	}
	return m, nil
}

func (m *Module) Export(name string) (any, bool) {
	v, ok := m.exports[name]
	return v, ok
}

// Exports lists export names in sorted order.
func (m *Module) Exports() []string {
	names := make([]string, 0, len(m.exports))
	for n := range m.exports {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ─────────────────────────────────────────────────────────────
// Dependency extraction
// ─────────────────────────────────────────────────────────────

var contextNames = map[string]bool{"value": true, "entityId": true, "sceneId": true}

type fieldCollector struct {
	seen   map[string]bool
	fields []string
}

func (c *fieldCollector) add(name string) {
	if !c.seen[name] {
		c.seen[name] = true
		c.fields = append(c.fields, name)
	}
}

func collectFields(stmts []Stmt) []string {
	c := &fieldCollector{seen: make(map[string]bool)}
	locals := map[string]bool{}
	for _, s := range stmts {
		switch st := s.(type) {
		case *LetStmt:
			c.walk(st.Value, locals)
			locals[st.Name] = true
		case *ReturnStmt:
			c.walk(st.Value, locals)
		case *ExprStmt:
			c.walk(st.X, locals)
		}
	}
	return c.fields
}

func (c *fieldCollector) walk(x Expr, locals map[string]bool) {
	switch n := x.(type) {
	case *Ident:
		if !locals[n.Name] && !contextNames[n.Name] && helpers[n.Name] == nil {
			c.add(n.Name)
		}
	case *FieldRef:
		c.add(n.Path)
	case *Template:
		for _, p := range n.Parts {
			c.walk(p, locals)
		}
	case *ArrayLit:
		for _, e := range n.Elems {
			c.walk(e, locals)
		}
	case *Unary:
		c.walk(n.X, locals)
	case *Binary:
		c.walk(n.L, locals)
		c.walk(n.R, locals)
	case *Cond:
		c.walk(n.Test, locals)
		c.walk(n.Then, locals)
		c.walk(n.Else, locals)
	case *Member:
		c.walk(n.X, locals)
	case *Index:
		c.walk(n.X, locals)
		c.walk(n.Index, locals)
	case *Call:
		c.walk(n.Fn, locals)
		for _, a := range n.Args {
			c.walk(a, locals)
		}
	case *Arrow:
		inner := make(map[string]bool, len(locals)+len(n.Params))
		for k := range locals {
			inner[k] = true
		}
		for _, p := range n.Params {
			inner[p] = true
		}
		c.walk(n.Body, inner)
	}
}
