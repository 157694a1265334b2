package secret_test

import (
	"os"
	"path/filepath"
	"testing"

	"scenes/internal/secret"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_SetGetDelete(t *testing.T) {
	s := secret.FileStore{Dir: filepath.Join(t.TempDir(), "secrets")}

	v, err := s.Get("db")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.Set("db", []byte("hunter2\n")))
	info, err := os.Stat(filepath.Join(s.Dir, "db"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	v, err = s.Get("db")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(v))

	require.NoError(t, s.Delete("db"))
	require.NoError(t, s.Delete("db"))
	_, err = s.Get("../db")
	assert.Error(t, err)
}

func TestEnvStore_ReadOnly(t *testing.T) {
	t.Setenv("SCENES_TEST_SECRET", "s3cret")
	v, err := secret.EnvStore{}.Get("SCENES_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", string(v))
	assert.Error(t, secret.EnvStore{}.Set("X", nil))
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, secret.FileStore{Dir: dir}.Set("pg", []byte("filepw")))
	t.Setenv("SCENES_TEST_PW", "envpw")

	got, err := secret.Resolve("file:" + filepath.Join(dir, "pg"))
	require.NoError(t, err)
	assert.Equal(t, "filepw", got)

	got, err = secret.Resolve("env:SCENES_TEST_PW")
	require.NoError(t, err)
	assert.Equal(t, "envpw", got)

	_, err = secret.Resolve("env:SCENES_TEST_UNSET_PW")
	assert.ErrorIs(t, err, secret.ErrNotFound)

	assert.ErrorContains(t, secret.ParseRef("vault:db"), "unknown scheme")
	assert.ErrorContains(t, secret.ParseRef("hunter2"), "want scheme:key")
	assert.NoError(t, secret.ParseRef("keychain:prod-db"))
}
