package entitydb

import (
	"context"
	"fmt"

	"scenes/internal/domain"
)

// Store is an EntityStore that can also declare its own schema.
type Store interface {
	domain.EntityStore
	// DefineFieldType registers name if it is not known yet and returns the
	// handle. An existing field keeps its kind.
	DefineFieldType(ctx context.Context, name string, kind domain.ValueKind) (domain.FieldType, error)
	DefineEntityType(ctx context.Context, name string) (domain.EntityType, error)
}

// Supported backend drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverMongo    = "mongo"
)

// Config selects and addresses a backend. DSN wins over the discrete
// connection fields when both are set.
type Config struct {
	Driver   string
	DSN      string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string
}

// Open connects to the configured backend and makes sure its tables or
// collections exist.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverSQLite:
		return OpenSQL(ctx, DriverSQLite, cfg.DSN)
	case DriverPostgres:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = buildPostgresDSN(cfg)
		}
		return OpenSQL(ctx, DriverPostgres, dsn)
	case DriverMySQL:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = buildMySQLDSN(cfg)
		}
		return OpenSQL(ctx, DriverMySQL, dsn)
	case DriverMongo:
		return OpenMongo(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported entity backend: %s", cfg.Driver)
	}
}

// EnsureSchema declares the field and entity types scenes are persisted with.
func EnsureSchema(ctx context.Context, s Store) error {
	fields := []struct {
		name string
		kind domain.ValueKind
	}{
		{domain.FieldName, domain.KindString},
		{domain.FieldDocument, domain.KindString},
		{domain.FieldPrimitiveType, domain.KindString},
		{domain.FieldProperties, domain.KindString},
	}
	for _, f := range fields {
		if _, err := s.DefineFieldType(ctx, f.name, f.kind); err != nil {
			return fmt.Errorf("define field %s: %w", f.name, err)
		}
	}
	for _, name := range []string{domain.SceneEntityType, domain.ComponentEntityType} {
		if _, err := s.DefineEntityType(ctx, name); err != nil {
			return fmt.Errorf("define entity type %s: %w", name, err)
		}
	}
	return nil
}
