// Package secret resolves credentials referenced from the configuration,
// so passwords never have to live in config.toml.
package secret

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ErrNotFound = errors.New("secret not found")

// SecretStore is a pluggable backend for sensitive values.
type SecretStore interface {
	// Set stores a secret value under the given key.
	Set(key string, value []byte) error

	// Get retrieves the secret value for the given key.
	// Returns empty slice and nil error if key does not exist.
	Get(key string) ([]byte, error)

	// Delete removes the secret for the given key.
	Delete(key string) error
}

// EnvStore reads secrets from environment variables. It is read-only.
type EnvStore struct{}

func (EnvStore) Get(key string) ([]byte, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}
	return []byte(v), nil
}

func (EnvStore) Set(string, []byte) error { return errors.New("environment secrets are read-only") }
func (EnvStore) Delete(string) error      { return errors.New("environment secrets are read-only") }

// FileStore keeps one secret per file under Dir, the layout container
// runtimes use for mounted secrets. Values are trimmed on read.
type FileStore struct {
	Dir string
}

func (f FileStore) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) {
		return "", fmt.Errorf("secret key %q: must be a plain file name", key)
	}
	return filepath.Join(f.Dir, key), nil
}

func (f FileStore) Get(key string) ([]byte, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read secret: %w", err)
	}
	return []byte(strings.TrimSpace(string(data))), nil
}

func (f FileStore) Set(key string, value []byte) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(f.Dir, 0o700); err != nil {
		return fmt.Errorf("create secret dir: %w", err)
	}
	if err := os.WriteFile(p, value, 0o600); err != nil {
		return fmt.Errorf("write secret: %w", err)
	}
	return nil
}

func (f FileStore) Delete(key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete secret: %w", err)
	}
	return nil
}

// ── References ─────────────────────────────────────────────

// Schemes lists the prefixes Resolve accepts, sorted.
func Schemes() []string {
	out := []string{"env", "file", "keychain"}
	sort.Strings(out)
	return out
}

// store maps a reference to its backend and key. file:/run/secrets/db
// reads db from /run/secrets.
func store(ref string) (SecretStore, string, error) {
	scheme, key, ok := strings.Cut(ref, ":")
	if !ok || key == "" {
		return nil, "", fmt.Errorf("secret reference %q: want scheme:key", ref)
	}
	switch scheme {
	case "env":
		return EnvStore{}, key, nil
	case "file":
		return FileStore{Dir: filepath.Dir(key)}, filepath.Base(key), nil
	case "keychain":
		return NewKeychainStore(), key, nil
	}
	return nil, "", fmt.Errorf("secret reference %q: unknown scheme %q (use %s)", ref, scheme, strings.Join(Schemes(), ", "))
}

// ParseRef checks that ref is well formed without reading it.
func ParseRef(ref string) error {
	_, _, err := store(ref)
	return err
}

// Resolve reads the secret ref points to. A missing or empty value is
// ErrNotFound.
func Resolve(ref string) (string, error) {
	s, key, err := store(ref)
	if err != nil {
		return "", err
	}
	v, err := s.Get(key)
	if err != nil {
		return "", err
	}
	if len(v) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return string(v), nil
}
