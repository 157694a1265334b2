package binding_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"scenes/internal/binding"
	"scenes/internal/domain"
	"scenes/internal/entity"
	"scenes/internal/entitydb"
	"scenes/internal/expr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type world struct {
	store  *entitydb.MemoryStore
	acc    *entity.Accessor
	engine *binding.Engine
	pump   domain.EntityID
	sensor domain.EntityID
}

func newWorld(t *testing.T, opts ...binding.Option) *world {
	t.Helper()
	ctx := context.Background()
	store := entitydb.NewMemoryStore()
	et, err := store.DefineEntityType(ctx, "Device")
	require.NoError(t, err)
	for name, kind := range map[string]domain.ValueKind{
		"Temperature": domain.KindFloat,
		"Label":       domain.KindString,
		"Sensor":      domain.KindEntityRef,
		"Reading":     domain.KindInt,
		"Setpoint":    domain.KindFloat,
	} {
		_, err := store.DefineFieldType(ctx, name, kind)
		require.NoError(t, err)
	}
	pump, err := store.CreateEntity(ctx, et, nil, "Pump")
	require.NoError(t, err)
	sensor, err := store.CreateEntity(ctx, et, &pump, "Sensor")
	require.NoError(t, err)

	acc := entity.NewAccessor(store)
	require.NoError(t, acc.WriteValue(ctx, pump, "Temperature", 72.5))
	require.NoError(t, acc.WriteValue(ctx, pump, "Label", "P-101"))
	require.NoError(t, acc.WriteValue(ctx, pump, "Sensor", int64(sensor)))
	require.NoError(t, acc.WriteValue(ctx, sensor, "Reading", 7))

	return &world{
		store:  store,
		acc:    acc,
		engine: binding.New(acc, expr.NewEvaluator(nil), opts...),
		pump:   pump,
		sensor: sensor,
	}
}

func def(property, expression string, mode domain.BindingMode) domain.BindingDefinition {
	return domain.BindingDefinition{Component: "Comp", Property: property, Expression: expression, Mode: mode}
}

func TestScenarioA_FieldBinding(t *testing.T) {
	w := newWorld(t)
	snap, err := w.engine.EvaluateBindings(context.Background(),
		[]domain.BindingDefinition{def("text", "Temperature", domain.ModeField)}, w.pump, "scene-1")
	require.NoError(t, err)
	assert.Equal(t, 72.5, snap.Values["Comp:text"])
	assert.Equal(t, 72.5, snap.Expressions["Comp:text"])
	assert.Equal(t, binding.Resolved, snap.States["Comp:text"])
}

func TestScenarioB_Transform(t *testing.T) {
	w := newWorld(t)
	d := def("text", "Temperature", domain.ModeField)
	d.Transform = "(value) => `${value}°`"
	_, err := w.engine.EvaluateBindings(context.Background(), []domain.BindingDefinition{d}, w.pump, "scene-1")
	require.NoError(t, err)

	v, ok := w.engine.BindingValue("Comp", "text")
	require.True(t, ok)
	assert.Equal(t, "72.5°", v)
	raw, _ := w.engine.ExpressionValue("Comp", "text")
	assert.Equal(t, 72.5, raw)
}

func TestScenarioC_FailureIsIsolated(t *testing.T) {
	w := newWorld(t)
	defs := []domain.BindingDefinition{
		def("text", "NoSuchField", domain.ModeField),
		def("fill", "{NoSuchField} * 2", domain.ModeScript),
		def("label", "Label", domain.ModeField),
	}
	snap, err := w.engine.EvaluateBindings(context.Background(), defs, w.pump, "scene-1")
	require.NoError(t, err)

	v, ok := snap.Values["Comp:text"]
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, binding.Failed, snap.States["Comp:text"])
	assert.Contains(t, snap.Errors["Comp:text"], "unknown field")
	assert.Nil(t, snap.Values["Comp:fill"])
	assert.Equal(t, binding.Failed, snap.States["Comp:fill"])

	assert.Equal(t, "P-101", snap.Values["Comp:label"])
	assert.Equal(t, binding.Resolved, snap.States["Comp:label"])
	assert.GreaterOrEqual(t, w.engine.Evaluator().Recorder().Len(), 2)
}

func TestScenarioD_IndirectPath(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	d := def("value", "Sensor->Reading", domain.ModeField)

	snap, err := w.engine.EvaluateBindings(ctx, []domain.BindingDefinition{d}, w.pump, "s")
	require.NoError(t, err)
	assert.Equal(t, int64(7), snap.Values["Comp:value"])

	require.NoError(t, w.acc.WriteValue(ctx, w.pump, "Sensor", domain.RefValue(nil)))
	snap, err = w.engine.EvaluateBindings(ctx, []domain.BindingDefinition{d}, w.pump, "s")
	require.NoError(t, err)
	assert.Nil(t, snap.Values["Comp:value"])
	assert.Equal(t, binding.Failed, snap.States["Comp:value"])
	assert.Contains(t, snap.Errors["Comp:value"], "null entity reference")
}

func TestEvaluate_Idempotent(t *testing.T) {
	w := newWorld(t)
	defs := []domain.BindingDefinition{
		def("a", "Temperature", domain.ModeField),
		def("b", "`${Label}: ${round({Temperature})}`", domain.ModeScript),
		def("c", `"static"`, domain.ModeLiteral),
		def("d", "Sensor->Reading", ""),
	}
	ctx := context.Background()
	first, err := w.engine.EvaluateBindings(ctx, defs, w.pump, "s")
	require.NoError(t, err)
	second, err := w.engine.EvaluateBindings(ctx, defs, w.pump, "s")
	require.NoError(t, err)

	assert.Equal(t, first.Values, second.Values)
	assert.Equal(t, first.Expressions, second.Expressions)
	assert.Equal(t, "P-101: 73", second.Values["Comp:b"])
	assert.Equal(t, "static", second.Values["Comp:c"])
	assert.Equal(t, int64(7), second.Values["Comp:d"])
	assert.Greater(t, second.Pass, first.Pass)
}

func TestEvaluate_TimestampsMoveOnlyOnChange(t *testing.T) {
	var tick atomic.Int64
	clock := func() time.Time { return time.Unix(tick.Add(1), 0) }
	w := newWorld(t, binding.WithClock(clock))
	ctx := context.Background()
	defs := []domain.BindingDefinition{
		def("temp", "Temperature", domain.ModeField),
		def("label", "Label", domain.ModeField),
	}

	_, err := w.engine.EvaluateBindings(ctx, defs, w.pump, "s")
	require.NoError(t, err)
	tTemp, _ := w.engine.UpdatedAt("Comp", "temp")
	tLabel, _ := w.engine.UpdatedAt("Comp", "label")

	require.NoError(t, w.acc.WriteValue(ctx, w.pump, "Temperature", 80.25))
	_, err = w.engine.EvaluateBindings(ctx, defs, w.pump, "s")
	require.NoError(t, err)

	tTemp2, _ := w.engine.UpdatedAt("Comp", "temp")
	tLabel2, _ := w.engine.UpdatedAt("Comp", "label")
	assert.True(t, tTemp2.After(tTemp))
	assert.Equal(t, tLabel, tLabel2)
}

func TestEvaluate_LastDefinitionPerKeyWins(t *testing.T) {
	w := newWorld(t)
	defs := []domain.BindingDefinition{
		def("text", "Label", domain.ModeField),
		def("text", "Temperature", domain.ModeField),
	}
	snap, err := w.engine.EvaluateBindings(context.Background(), defs, w.pump, "s")
	require.NoError(t, err)
	assert.Len(t, snap.Values, 1)
	assert.Equal(t, 72.5, snap.Values["Comp:text"])
}

func TestEvaluate_FullPassReplacesMaps(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	_, err := w.engine.EvaluateBindings(ctx, []domain.BindingDefinition{def("old", "Label", "")}, w.pump, "s")
	require.NoError(t, err)
	snap, err := w.engine.EvaluateBindings(ctx, []domain.BindingDefinition{def("new", "Label", "")}, w.pump, "s")
	require.NoError(t, err)
	_, hasOld := snap.Values["Comp:old"]
	assert.False(t, hasOld)
	assert.Equal(t, binding.Unevaluated, w.engine.State("Comp", "old"))
}

func TestEvaluate_CancelledContextCommitsNothing(t *testing.T) {
	w := newWorld(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := w.engine.EvaluateBindings(ctx, []domain.BindingDefinition{def("a", "Label", "")}, w.pump, "s")
	assert.ErrorIs(t, err, context.Canceled)
	_, ok := w.engine.BindingValue("Comp", "a")
	assert.False(t, ok)
	assert.Equal(t, binding.Unevaluated, w.engine.State("Comp", "a"))
	assert.Empty(t, w.engine.Snapshot().States)

	defs := []domain.BindingDefinition{def("a", "Label", domain.ModeField), def("b", "Missing", domain.ModeField)}
	_, err = w.engine.EvaluateBindings(context.Background(), defs, w.pump, "s")
	require.NoError(t, err)

	_, err = w.engine.EvaluateBindings(ctx, defs[:1], w.pump, "s")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, binding.Resolved, w.engine.State("Comp", "a"))
	assert.Equal(t, binding.Failed, w.engine.State("Comp", "b"))

	_, err = w.engine.EvaluateAffected(ctx, defs, []string{"Label"}, w.pump, "s")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, binding.Resolved, w.engine.State("Comp", "a"))
	v, _ := w.engine.BindingValue("Comp", "a")
	assert.Equal(t, "P-101", v)
}

// slowStore holds reads of one field until another field has been read.
type slowStore struct {
	*entitydb.MemoryStore
	fastRead chan struct{}
	once     atomic.Bool
}

func (s *slowStore) Read(ctx context.Context, id domain.EntityID, fields []domain.FieldType) ([]*domain.Value, error) {
	for _, f := range fields {
		switch f.Name {
		case "Label":
			if s.once.CompareAndSwap(false, true) {
				close(s.fastRead)
			}
		case "Temperature":
			select {
			case <-s.fastRead:
			case <-time.After(2 * time.Second):
				return nil, context.DeadlineExceeded
			}
		}
	}
	return s.MemoryStore.Read(ctx, id, fields)
}

func TestEvaluate_SlowReadDoesNotBlockSiblings(t *testing.T) {
	w := newWorld(t)
	slow := &slowStore{MemoryStore: w.store, fastRead: make(chan struct{})}
	engine := binding.New(entity.NewAccessor(slow), nil, binding.WithConcurrency(4))

	defs := []domain.BindingDefinition{
		def("slow", "Temperature", domain.ModeField),
		def("fast", "Label", domain.ModeField),
	}
	snap, err := engine.EvaluateBindings(context.Background(), defs, w.pump, "s")
	require.NoError(t, err)
	assert.Equal(t, binding.Resolved, snap.States["Comp:slow"])
	assert.Equal(t, 72.5, snap.Values["Comp:slow"])
	assert.Equal(t, "P-101", snap.Values["Comp:fast"])
}

func TestEvaluateAffected(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	defs := []domain.BindingDefinition{
		def("temp", "Temperature", domain.ModeField),
		def("reading", "Sensor->Reading", domain.ModeField),
		def("label", "upper(Label)", domain.ModeScript),
	}
	_, err := w.engine.EvaluateBindings(ctx, defs, w.pump, "s")
	require.NoError(t, err)

	require.NoError(t, w.acc.WriteValue(ctx, w.pump, "Temperature", 90.5))
	require.NoError(t, w.acc.WriteValue(ctx, w.sensor, "Reading", 8))
	require.NoError(t, w.acc.WriteValue(ctx, w.pump, "Label", "changed"))

	snap, err := w.engine.EvaluateAffected(ctx, defs, []string{"Reading"}, w.pump, "s")
	require.NoError(t, err)
	assert.Equal(t, int64(8), snap.Values["Comp:reading"])
	assert.Equal(t, 72.5, snap.Values["Comp:temp"])
	assert.Equal(t, "P-101", snap.Values["Comp:label"])

	snap, err = w.engine.EvaluateAffected(ctx, defs, []string{"Label"}, w.pump, "s")
	require.NoError(t, err)
	assert.Equal(t, "CHANGED", snap.Values["Comp:label"])
}

func TestWriteBack(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	d := def("value", "Sensor->Reading", domain.ModeTwoWay)
	require.NoError(t, w.engine.WriteBack(ctx, d, w.pump, 11))
	snap, err := w.engine.EvaluateBindings(ctx, []domain.BindingDefinition{d}, w.pump, "s")
	require.NoError(t, err)
	assert.Equal(t, int64(11), snap.Values["Comp:value"])

	err = w.engine.WriteBack(ctx, def("text", "Label", domain.ModeField), w.pump, "x")
	assert.ErrorIs(t, err, binding.ErrNotWritable)

	err = w.engine.WriteBack(ctx, def("text", "Missing", domain.ModeTwoWay), w.pump, "x")
	assert.ErrorIs(t, err, entity.ErrUnknownField)
}

func TestDependencies(t *testing.T) {
	assert.Equal(t, []string{"Sensor->Reading"}, binding.Dependencies(def("v", "Sensor->Reading", domain.ModeField), nil))
	assert.Nil(t, binding.Dependencies(def("v", "42", ""), nil))

	d := def("v", "units.toF(Temperature) + {Offset}", domain.ModeScript)
	d.Transform = "v => v * Gain"
	assert.Equal(t, []string{"Temperature", "Offset", "Gain"}, binding.Dependencies(d, []string{"units"}))

	d.Dependencies = []string{"Explicit"}
	assert.Equal(t, []string{"Explicit"}, binding.Dependencies(d, nil))
}

func TestMode_Inferred(t *testing.T) {
	assert.Equal(t, domain.ModeLiteral, binding.Mode(def("p", "12", "")))
	assert.Equal(t, domain.ModeField, binding.Mode(def("p", "Temperature", "")))
	assert.Equal(t, domain.ModeScript, binding.Mode(def("p", "Temperature * 2", "")))
	assert.Equal(t, domain.ModeTwoWay, binding.Mode(def("p", "Temperature", "two-way")))
}
