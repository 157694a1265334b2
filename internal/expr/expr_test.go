package expr_test

import (
	"context"
	"errors"
	"testing"

	"scenes/internal/domain"
	"scenes/internal/expr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fields(values map[string]any) expr.FieldReader {
	return expr.FieldReaderFunc(func(_ context.Context, path string) (any, error) {
		v, ok := values[path]
		if !ok {
			return nil, errors.New("unknown field " + path)
		}
		return v, nil
	})
}

func eval(t *testing.T, src string, scope expr.Scope) any {
	t.Helper()
	p, err := expr.Compile(src)
	require.NoError(t, err, src)
	v, err := p.Eval(context.Background(), scope)
	require.NoError(t, err, src)
	return v
}

func TestEval_Arithmetic(t *testing.T) {
	cases := map[string]any{
		"1 + 2 * 3":     int64(7),
		"(1 + 2) * 3":   int64(9),
		"9 / 3":         int64(3),
		"9 / 5":         1.8,
		"7 % 4":         int64(3),
		"-2 + 0.5":      -1.5,
		`"5" * 2`:       int64(10),
		`"a" + 1`:       "a1",
		"1 < 2 && 3 >= 3": true,
		"null ?? 4":     int64(4),
		"0 || 'x'":      "x",
		"1 == '1'":      true,
		"1 === '1'":     false,
		"2 === 2.0":     true,
		"!0":            true,
		"true ? 'y' : 'n'": "y",
	}
	for src, want := range cases {
		assert.Equal(t, want, eval(t, src, expr.Scope{}), src)
	}
}

func TestEval_DivisionByZero(t *testing.T) {
	p, err := expr.Compile("1 / 0")
	require.NoError(t, err)
	_, err = p.Eval(context.Background(), expr.Scope{})
	assert.ErrorIs(t, err, expr.ErrDivisionByZero)
}

func TestEval_FieldsAndContext(t *testing.T) {
	scope := expr.Scope{
		EntityID: 42,
		SceneID:  "s1",
		Fields:   fields(map[string]any{"Temperature": 72.5, "Pump->Speed": int64(1450), "Label": "P-101"}),
	}
	assert.Equal(t, 145.0, eval(t, "{Temperature} * 2", scope))
	assert.Equal(t, 145.0, eval(t, "Temperature * 2", scope))
	assert.Equal(t, int64(1450), eval(t, "{Pump->Speed}", scope))
	assert.Equal(t, int64(42), eval(t, "entityId", scope))
	assert.Equal(t, "s1", eval(t, "sceneId", scope))
	assert.Equal(t, "P-101 @ 72.5", eval(t, "`${Label} @ ${ {Temperature} }`", scope))
	assert.Equal(t, int64(5), eval(t, "Label.length", scope))
	assert.Equal(t, "p-101", eval(t, "Label.toLowerCase()", scope))
}

func TestEval_UnknownFieldFails(t *testing.T) {
	p, err := expr.Compile("{Nope} + 1")
	require.NoError(t, err)
	_, err = p.Eval(context.Background(), expr.Scope{Fields: fields(nil)})
	assert.Error(t, err)

	p, err = expr.Compile("nope")
	require.NoError(t, err)
	_, err = p.Eval(context.Background(), expr.Scope{})
	assert.ErrorIs(t, err, expr.ErrUnknownIdentifier)
}

func TestEval_StatementsAndArrows(t *testing.T) {
	src := `
		let k = 9 / 5;
		let toF = c => c * k + 32;
		return toF(100);
	`
	assert.Equal(t, 212.0, eval(t, src, expr.Scope{}))

	src = `let fact = n => n <= 1 ? 1 : n * fact(n - 1); fact(5)`
	assert.Equal(t, int64(120), eval(t, src, expr.Scope{}))

	// a script that is a function gets called with the context object
	assert.Equal(t, int64(7), eval(t, "(ctx) => ctx.entityId", expr.Scope{EntityID: 7}))

	assert.Equal(t, []any{int64(2), int64(4)}, eval(t, "[1, 2, 3, 4].filter(x => x % 2 == 0)", expr.Scope{}))
	assert.Equal(t, "2-4", eval(t, "[1, 2].map(x => x * 2).join('-')", expr.Scope{}))
}

func TestEval_Helpers(t *testing.T) {
	cases := map[string]any{
		"round(2.5)":             int64(3),
		"round(3.14159, 2)":      3.14,
		"floor(2.7)":             int64(2),
		"ceil(2.1)":              int64(3),
		"abs(-4)":                int64(4),
		"min(3, 1, 2)":           int64(1),
		"max([3, 9, 2])":         int64(9),
		"clamp(120, 0, 100)":     int64(100),
		"fixed(72.456, 1)":       "72.5",
		"(1.5).toFixed(2)":       "1.50",
		"upper('ab')":            "AB",
		"lower('AB')":            "ab",
		"trim('  x ')":           "x",
		"len('abc')":             int64(3),
		"concat('a', 1, null)":   "a1",
		"str(2.50)":              "2.5",
		"num('12')":              int64(12),
		"bool('')":               false,
		"coalesce(null, 0, 1)":   int64(0),
		"contains('pump', 'um')": true,
		"contains([1, 2], 2)":    true,
		"replace('a-b-c', '-', '+')": "a+b+c",
		"pad(7, 3, '0')":         "007",
	}
	for src, want := range cases {
		assert.Equal(t, want, eval(t, src, expr.Scope{}), src)
	}
	assert.Contains(t, expr.HelperNames(), "clamp")
}

func TestProgram_Apply(t *testing.T) {
	p, err := expr.Compile("(value) => `${value}°`")
	require.NoError(t, err)
	v, err := p.Apply(context.Background(), expr.Scope{}, 72.5)
	require.NoError(t, err)
	assert.Equal(t, "72.5°", v)

	p, err = expr.Compile("value * 9/5 + 32")
	require.NoError(t, err)
	v, err = p.Apply(context.Background(), expr.Scope{}, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(212), v)
}

func TestProgram_Fields(t *testing.T) {
	p, err := expr.Compile("let x = {Pump->Speed}; x > Limit ? upper(Label) : value + y.z")
	require.NoError(t, err)
	assert.Equal(t, []string{"Pump->Speed", "Limit", "Label", "y"}, p.Fields())

	p, err = expr.Compile("v => v + Offset")
	require.NoError(t, err)
	assert.Equal(t, []string{"Offset"}, p.Fields())
}

func TestCompile_SyntaxErrors(t *testing.T) {
	for _, src := range []string{"", "1 +", "(1", "{Temp", "'open", "`x ${1`", "let = 2", "a ? b", "#"} {
		_, err := expr.Compile(src)
		assert.ErrorIs(t, err, expr.ErrSyntax, "source %q", src)
	}
}

func TestClassify(t *testing.T) {
	cases := map[string]domain.BindingMode{
		`"hello"`:            domain.ModeLiteral,
		`'x'`:                domain.ModeLiteral,
		"42":                 domain.ModeLiteral,
		"-3.5":               domain.ModeLiteral,
		"true":               domain.ModeLiteral,
		"null":               domain.ModeLiteral,
		"Temperature":        domain.ModeField,
		"Inlet Pressure":     domain.ModeField,
		"Sensor -> Reading":  domain.ModeField,
		"{Temperature} * 2":  domain.ModeScript,
		"value => value + 1": domain.ModeScript,
		`"a" + "b"`:          domain.ModeScript,
		"round":              domain.ModeScript,
	}
	for src, want := range cases {
		assert.Equal(t, want, expr.Classify(src), src)
	}

	v, ok := expr.ParseLiteral(`"say \"hi\""`)
	require.True(t, ok)
	assert.Equal(t, `say "hi"`, v)
	v, ok = expr.ParseLiteral("12")
	require.True(t, ok)
	assert.Equal(t, int64(12), v)
}

func TestModules(t *testing.T) {
	ev := expr.NewEvaluator(nil)
	err := ev.LoadModules(context.Background(), map[string]string{
		"units":  "let factor = 9 / 5; let toF = c => c * factor + 32;",
		"broken": "let x = ;",
	})
	require.Error(t, err)
	assert.Equal(t, []string{"units"}, ev.ModuleNames())
	assert.Equal(t, 1, ev.Recorder().Len())

	v, err := ev.Script(context.Background(), "Comp:text", "units.toF(Temperature)", expr.Scope{
		Fields: fields(map[string]any{"Temperature": int64(100)}),
	})
	require.NoError(t, err)
	assert.Equal(t, 212.0, v)

	mod := ev.Modules()["units"]
	assert.Equal(t, []string{"factor", "toF"}, mod.Exports())
}

func TestEvaluator_TransformFallsBack(t *testing.T) {
	ev := expr.NewEvaluator(nil)
	v, err := ev.Transform(context.Background(), "Comp:text", "value => value.nope()", expr.Scope{}, 72.5)
	assert.Error(t, err)
	assert.Equal(t, 72.5, v)

	recs := ev.Recorder().Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "transform", recs[0].Module)
	assert.Equal(t, "Comp:text", recs[0].Context)
	assert.NotEmpty(t, recs[0].Message)
	assert.False(t, recs[0].At.IsZero())
}

func TestEvaluator_CachesPrograms(t *testing.T) {
	ev := expr.NewEvaluator(nil)
	a, err := ev.Compile("1 + 1")
	require.NoError(t, err)
	b, err := ev.Compile("1 + 1")
	require.NoError(t, err)
	assert.Same(t, a, b)

	ev.ClearCache()
	c, err := ev.Compile("1 + 1")
	require.NoError(t, err)
	assert.NotSame(t, a, c)
}

func TestRecorder_Limit(t *testing.T) {
	r := expr.NewRecorder(2)
	r.Record("m", "a", errors.New("1"))
	r.Record("m", "b", errors.New("2"))
	r.Record("m", "c", errors.New("3"))
	recs := r.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, "b", recs[0].Context)
	r.Reset()
	assert.Equal(t, 0, r.Len())
}
