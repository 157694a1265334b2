package entitydb_test

import (
	"context"
	"path/filepath"
	"testing"

	"scenes/internal/domain"
	"scenes/internal/entitydb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─────────────────────────────────────────────────────────────
// Shared behaviour every backend must honour
// ─────────────────────────────────────────────────────────────

func exerciseStore(t *testing.T, s entitydb.Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, entitydb.EnsureSchema(ctx, s))
	// declaring twice is harmless
	require.NoError(t, entitydb.EnsureSchema(ctx, s))

	speed, err := s.DefineFieldType(ctx, "Speed", domain.KindFloat)
	require.NoError(t, err)
	again, err := s.GetFieldType(ctx, "Speed")
	require.NoError(t, err)
	assert.Equal(t, speed, again)

	_, err = s.GetFieldType(ctx, "Missing")
	assert.ErrorIs(t, err, domain.ErrUnknownField)
	_, err = s.GetEntityType(ctx, "Missing")
	assert.ErrorIs(t, err, domain.ErrUnknownEntityType)

	scene, err := s.GetEntityType(ctx, domain.SceneEntityType)
	require.NoError(t, err)
	comp, err := s.GetEntityType(ctx, domain.ComponentEntityType)
	require.NoError(t, err)

	root, err := s.CreateEntity(ctx, scene, nil, "Main")
	require.NoError(t, err)
	c1, err := s.CreateEntity(ctx, comp, &root, "Pump")
	require.NoError(t, err)
	c2, err := s.CreateEntity(ctx, comp, &root, "Valve")
	require.NoError(t, err)

	ids, err := s.FindEntities(ctx, comp, domain.Filter{Parent: &root})
	require.NoError(t, err)
	assert.Equal(t, []domain.EntityID{c1, c2}, ids)

	ids, err = s.FindEntities(ctx, comp, domain.Filter{Name: "Valve"})
	require.NoError(t, err)
	assert.Equal(t, []domain.EntityID{c2}, ids)

	name, err := s.GetFieldType(ctx, domain.FieldName)
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, c1, []domain.FieldType{speed}, domain.FloatValue(12.5)))
	require.NoError(t, s.Write(ctx, c1, []domain.FieldType{name}, domain.StringValue("Pump")))
	require.NoError(t, s.Write(ctx, c1, []domain.FieldType{speed}, domain.FloatValue(13)))

	vals, err := s.Read(ctx, c1, []domain.FieldType{speed, name})
	require.NoError(t, err)
	require.Len(t, vals, 2)
	require.NotNil(t, vals[0])
	assert.True(t, vals[0].Equal(domain.FloatValue(13)))
	assert.True(t, vals[1].Equal(domain.StringValue("Pump")))

	vals, err = s.Read(ctx, c2, []domain.FieldType{speed})
	require.NoError(t, err)
	assert.Nil(t, vals[0])

	ref := domain.Ref(c2)
	require.NoError(t, s.Write(ctx, c1, []domain.FieldType{speed}, ref))
	vals, err = s.Read(ctx, c1, []domain.FieldType{speed})
	require.NoError(t, err)
	assert.True(t, vals[0].Equal(ref))

	require.NoError(t, s.DeleteEntity(ctx, c2))
	_, err = s.Read(ctx, c2, []domain.FieldType{speed})
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)
	assert.ErrorIs(t, s.Write(ctx, c2, []domain.FieldType{speed}, ref), domain.ErrEntityNotFound)
	assert.ErrorIs(t, s.DeleteEntity(ctx, c2), domain.ErrEntityNotFound)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, entitydb.NewMemoryStore())
}

func TestSQLStore_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entities.db")
	s, err := entitydb.OpenSQL(context.Background(), entitydb.DriverSQLite, path)
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLStore_SQLiteReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "entities.db")

	s, err := entitydb.OpenSQL(ctx, entitydb.DriverSQLite, path)
	require.NoError(t, err)
	require.NoError(t, entitydb.EnsureSchema(ctx, s))
	et, err := s.GetEntityType(ctx, domain.SceneEntityType)
	require.NoError(t, err)
	id, err := s.CreateEntity(ctx, et, nil, "Kept")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = entitydb.OpenSQL(ctx, entitydb.DriverSQLite, path)
	require.NoError(t, err)
	defer s.Close()
	ids, err := s.FindEntities(ctx, et, domain.Filter{Name: "Kept"})
	require.NoError(t, err)
	assert.Equal(t, []domain.EntityID{id}, ids)
}

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()

	s, err := entitydb.Open(ctx, entitydb.Config{Driver: entitydb.DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &entitydb.MemoryStore{}, s)

	_, err = entitydb.Open(ctx, entitydb.Config{Driver: "oracle"})
	assert.Error(t, err)

	_, err = entitydb.OpenSQL(ctx, "oracle", "")
	assert.Error(t, err)
}
