package entity_test

import (
	"context"
	"errors"
	"testing"

	"scenes/internal/domain"
	"scenes/internal/entity"
	"scenes/internal/entitydb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore counts type lookups to observe memoization.
type countingStore struct {
	*entitydb.MemoryStore
	fieldLookups int
	failReads    bool
}

func (c *countingStore) GetFieldType(ctx context.Context, name string) (domain.FieldType, error) {
	c.fieldLookups++
	return c.MemoryStore.GetFieldType(ctx, name)
}

func (c *countingStore) Read(ctx context.Context, id domain.EntityID, fields []domain.FieldType) ([]*domain.Value, error) {
	if c.failReads {
		return nil, errors.New("backend down")
	}
	return c.MemoryStore.Read(ctx, id, fields)
}

type fixture struct {
	store *countingStore
	acc   *entity.Accessor
	pump  domain.EntityID
	motor domain.EntityID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	mem := entitydb.NewMemoryStore()
	et, err := mem.DefineEntityType(ctx, "Device")
	require.NoError(t, err)
	for name, kind := range map[string]domain.ValueKind{
		"Temperature": domain.KindFloat,
		"Label":       domain.KindString,
		"Running":     domain.KindBool,
		"Motor":       domain.KindEntityRef,
		"Speed":       domain.KindInt,
		"Children":    domain.KindEntityList,
	} {
		_, err := mem.DefineFieldType(ctx, name, kind)
		require.NoError(t, err)
	}
	pump, err := mem.CreateEntity(ctx, et, nil, "Pump")
	require.NoError(t, err)
	motor, err := mem.CreateEntity(ctx, et, &pump, "Motor")
	require.NoError(t, err)

	cs := &countingStore{MemoryStore: mem}
	acc := entity.NewAccessor(cs)
	require.NoError(t, acc.WriteValue(ctx, pump, "Temperature", 72.5))
	require.NoError(t, acc.WriteValue(ctx, pump, "Label", "P-101"))
	require.NoError(t, acc.WriteValue(ctx, pump, "Motor", int64(motor)))
	require.NoError(t, acc.WriteValue(ctx, motor, "Speed", 1450))
	return fixture{store: cs, acc: acc, pump: pump, motor: motor}
}

func TestAccessor_MemoizesFieldTypes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.acc.ClearCaches()
	before := f.store.fieldLookups

	for i := 0; i < 5; i++ {
		f.acc.ReadValue(ctx, f.pump, "Temperature")
	}
	assert.Equal(t, before+1, f.store.fieldLookups)

	f.acc.ClearCaches()
	f.acc.ReadValue(ctx, f.pump, "Temperature")
	assert.Equal(t, before+2, f.store.fieldLookups)
}

func TestAccessor_ReadValueFailsSoft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Nil(t, f.acc.ReadValue(ctx, f.pump, "NoSuchField"))
	assert.Nil(t, f.acc.ReadValue(ctx, 9999, "Temperature"))

	f.store.failReads = true
	assert.Nil(t, f.acc.ReadValue(ctx, f.pump, "Temperature"))
	assert.Equal(t, "", f.acc.ReadString(ctx, f.pump, "Label"))
	assert.Equal(t, []domain.EntityID{}, f.acc.ReadEntityList(ctx, f.pump, "Children"))
}

func TestAccessor_ReadString(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assert.Equal(t, "P-101", f.acc.ReadString(ctx, f.pump, "Label"))
	assert.Equal(t, "72.5", f.acc.ReadString(ctx, f.pump, "Temperature"))
	assert.Equal(t, "", f.acc.ReadString(ctx, f.pump, "Motor"))
}

func TestAccessor_ReadEntityList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assert.Equal(t, []domain.EntityID{f.motor}, f.acc.ReadEntityList(ctx, f.pump, "Motor"))

	require.NoError(t, f.acc.WriteValue(ctx, f.pump, "Children", []any{float64(f.motor), float64(7)}))
	assert.Equal(t, []domain.EntityID{f.motor, 7}, f.acc.ReadEntityList(ctx, f.pump, "Children"))
}

func TestAccessor_WriteInference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.acc.WriteValue(ctx, f.pump, "Running", true))
	v := f.acc.ReadValue(ctx, f.pump, "Running")
	require.NotNil(t, v)
	assert.Equal(t, domain.KindBool, v.Kind)

	// integral number into a float field stays a float
	require.NoError(t, f.acc.WriteValue(ctx, f.pump, "Temperature", float64(80)))
	v = f.acc.ReadValue(ctx, f.pump, "Temperature")
	require.NotNil(t, v)
	assert.Equal(t, domain.KindFloat, v.Kind)

	require.NoError(t, f.acc.WriteValue(ctx, f.pump, "Label", map[string]any{"a": 1}))
	assert.Equal(t, `{"a":1}`, f.acc.ReadString(ctx, f.pump, "Label"))
}

func TestAccessor_WriteUnknownFieldFails(t *testing.T) {
	f := newFixture(t)
	err := f.acc.WriteValue(context.Background(), f.pump, "Nope", 1)
	assert.ErrorIs(t, err, entity.ErrUnknownField)
}

func TestAccessor_ReadPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.acc.ReadPath(ctx, f.pump, "Motor->Speed")
	require.NoError(t, err)
	n, err := v.AsInt()
	require.NoError(t, err)
	assert.Equal(t, int64(1450), n)

	_, err = f.acc.ReadPath(ctx, f.pump, "Label->Speed")
	assert.ErrorIs(t, err, entity.ErrNotReference)

	_, err = f.acc.ReadPath(ctx, f.motor, "Motor->Speed")
	var pe *entity.PathError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 0, pe.Index)
	assert.ErrorIs(t, err, entity.ErrNullReference)

	_, err = f.acc.ReadPath(ctx, f.pump, "Motor->Torque")
	assert.ErrorIs(t, err, entity.ErrUnknownField)
}

func TestAccessor_WritePath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.acc.WritePath(ctx, f.pump, "Motor -> Speed", 900))
	v, err := f.acc.ReadPath(ctx, f.pump, "Motor->Speed")
	require.NoError(t, err)
	n, _ := v.AsInt()
	assert.Equal(t, int64(900), n)
}

func TestParsePath(t *testing.T) {
	hops, err := entity.ParsePath(" A -> B->C ")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, hops)

	_, err = entity.ParsePath("A->->C")
	assert.Error(t, err)
	assert.True(t, entity.IsPath("A->B"))
	assert.False(t, entity.IsPath("A"))
}

func TestInferValue(t *testing.T) {
	cases := []struct {
		in   any
		kind domain.ValueKind
	}{
		{true, domain.KindBool},
		{3, domain.KindInt},
		{float64(3), domain.KindInt},
		{3.25, domain.KindFloat},
		{"x", domain.KindString},
		{[]any{float64(1), float64(2)}, domain.KindEntityList},
		{[]any{"a"}, domain.KindString},
		{nil, domain.KindString},
	}
	for _, c := range cases {
		v, err := entity.InferValue(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.kind, v.Kind, "input %#v", c.in)
	}
}
