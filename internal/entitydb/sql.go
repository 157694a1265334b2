package entitydb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"scenes/internal/domain"
)

// dialect captures the few places sqlite, postgres and mysql disagree.
type dialect struct {
	driver     string
	idColumn   string
	nameType   string
	textType   string
	insertOnce string // prefix for insert-if-absent
	onConflict string // suffix for insert-if-absent
	upsert     string // suffix for the value upsert
	returning  bool
}

var dialects = map[string]dialect{
	DriverSQLite: {
		driver:     "sqlite",
		idColumn:   "INTEGER PRIMARY KEY AUTOINCREMENT",
		nameType:   "TEXT",
		textType:   "TEXT",
		insertOnce: "INSERT INTO",
		onConflict: "ON CONFLICT(name) DO NOTHING",
		upsert:     "ON CONFLICT(entity_id, field_id) DO UPDATE SET value_json = excluded.value_json",
	},
	DriverPostgres: {
		driver:     "postgres",
		idColumn:   "BIGSERIAL PRIMARY KEY",
		nameType:   "VARCHAR(255)",
		textType:   "TEXT",
		insertOnce: "INSERT INTO",
		onConflict: "ON CONFLICT(name) DO NOTHING",
		upsert:     "ON CONFLICT(entity_id, field_id) DO UPDATE SET value_json = excluded.value_json",
		returning:  true,
	},
	DriverMySQL: {
		driver:     "mysql",
		idColumn:   "BIGINT AUTO_INCREMENT PRIMARY KEY",
		nameType:   "VARCHAR(255)",
		textType:   "LONGTEXT",
		insertOnce: "INSERT IGNORE INTO",
		upsert:     "ON DUPLICATE KEY UPDATE value_json = VALUES(value_json)",
	},
}

// rebind rewrites ? placeholders for drivers that number them.
func (d dialect) rebind(query string) string {
	if d.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore keeps entities in four tables of a relational database.
type SQLStore struct {
	db *sql.DB
	d  dialect
}

// OpenSQL opens driver (sqlite, postgres or mysql) at dsn and migrates.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported sql driver: %s", driver)
	}
	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(10 * time.Minute)
	}
	s := &SQLStore{db: db, d: d}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	d := s.d
	migrations := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS field_types (
			id %s,
			name %s NOT NULL UNIQUE,
			kind VARCHAR(32) NOT NULL DEFAULT ''
		)`, d.idColumn, d.nameType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS entity_types (
			id %s,
			name %s NOT NULL UNIQUE
		)`, d.idColumn, d.nameType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS entities (
			id %s,
			type_id BIGINT NOT NULL,
			parent_id BIGINT,
			name %s NOT NULL DEFAULT ''
		)`, d.idColumn, d.nameType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS field_values (
			entity_id BIGINT NOT NULL,
			field_id BIGINT NOT NULL,
			value_json %s NOT NULL,
			PRIMARY KEY (entity_id, field_id)
		)`, d.textType),
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %s: %w", strings.TrimSpace(m)[:40], err)
		}
	}
	return nil
}

func (s *SQLStore) DefineFieldType(ctx context.Context, name string, kind domain.ValueKind) (domain.FieldType, error) {
	q := fmt.Sprintf(`%s field_types (name, kind) VALUES (?, ?) %s`, s.d.insertOnce, s.d.onConflict)
	if _, err := s.db.ExecContext(ctx, s.d.rebind(q), name, string(kind)); err != nil {
		return domain.FieldType{}, fmt.Errorf("insert field type: %w", err)
	}
	return s.GetFieldType(ctx, name)
}

func (s *SQLStore) DefineEntityType(ctx context.Context, name string) (domain.EntityType, error) {
	q := fmt.Sprintf(`%s entity_types (name) VALUES (?) %s`, s.d.insertOnce, s.d.onConflict)
	if _, err := s.db.ExecContext(ctx, s.d.rebind(q), name); err != nil {
		return domain.EntityType{}, fmt.Errorf("insert entity type: %w", err)
	}
	return s.GetEntityType(ctx, name)
}

func (s *SQLStore) GetFieldType(ctx context.Context, name string) (domain.FieldType, error) {
	var ft domain.FieldType
	var kind string
	err := s.db.QueryRowContext(ctx, s.d.rebind(`SELECT id, name, kind FROM field_types WHERE name = ?`), name).
		Scan(&ft.ID, &ft.Name, &kind)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.FieldType{}, fmt.Errorf("%w: %s", domain.ErrUnknownField, name)
	}
	if err != nil {
		return domain.FieldType{}, fmt.Errorf("get field type: %w", err)
	}
	ft.Kind = domain.ValueKind(kind)
	return ft, nil
}

func (s *SQLStore) GetEntityType(ctx context.Context, name string) (domain.EntityType, error) {
	var et domain.EntityType
	err := s.db.QueryRowContext(ctx, s.d.rebind(`SELECT id, name FROM entity_types WHERE name = ?`), name).
		Scan(&et.ID, &et.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.EntityType{}, fmt.Errorf("%w: %s", domain.ErrUnknownEntityType, name)
	}
	if err != nil {
		return domain.EntityType{}, fmt.Errorf("get entity type: %w", err)
	}
	return et, nil
}

func (s *SQLStore) exists(ctx context.Context, id domain.EntityID) error {
	var one int
	err := s.db.QueryRowContext(ctx, s.d.rebind(`SELECT 1 FROM entities WHERE id = ?`), int64(id)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", domain.ErrEntityNotFound, id)
	}
	return err
}

func (s *SQLStore) Read(ctx context.Context, id domain.EntityID, fields []domain.FieldType) ([]*domain.Value, error) {
	if err := s.exists(ctx, id); err != nil {
		return nil, err
	}
	out := make([]*domain.Value, len(fields))
	q := s.d.rebind(`SELECT value_json FROM field_values WHERE entity_id = ? AND field_id = ?`)
	for i, f := range fields {
		var raw string
		err := s.db.QueryRowContext(ctx, q, int64(id), f.ID).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read field %s: %w", f.Name, err)
		}
		var v domain.Value
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decode field %s: %w", f.Name, err)
		}
		out[i] = &v
	}
	return out, nil
}

func (s *SQLStore) Write(ctx context.Context, id domain.EntityID, fields []domain.FieldType, value domain.Value) error {
	if err := s.exists(ctx, id); err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	q := s.d.rebind(`INSERT INTO field_values (entity_id, field_id, value_json) VALUES (?, ?, ?) ` + s.d.upsert)
	for _, f := range fields {
		if _, err := s.db.ExecContext(ctx, q, int64(id), f.ID, string(raw)); err != nil {
			return fmt.Errorf("write field %s: %w", f.Name, err)
		}
	}
	return nil
}

func (s *SQLStore) CreateEntity(ctx context.Context, typ domain.EntityType, parent *domain.EntityID, name string) (domain.EntityID, error) {
	var p sql.NullInt64
	if parent != nil {
		p = sql.NullInt64{Int64: int64(*parent), Valid: true}
	}
	q := `INSERT INTO entities (type_id, parent_id, name) VALUES (?, ?, ?)`
	if s.d.returning {
		var id int64
		if err := s.db.QueryRowContext(ctx, s.d.rebind(q+` RETURNING id`), typ.ID, p, name).Scan(&id); err != nil {
			return 0, fmt.Errorf("insert entity: %w", err)
		}
		return domain.EntityID(id), nil
	}
	res, err := s.db.ExecContext(ctx, s.d.rebind(q), typ.ID, p, name)
	if err != nil {
		return 0, fmt.Errorf("insert entity: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("entity id: %w", err)
	}
	return domain.EntityID(id), nil
}

func (s *SQLStore) DeleteEntity(ctx context.Context, id domain.EntityID) error {
	if err := s.exists(ctx, id); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.d.rebind(`DELETE FROM field_values WHERE entity_id = ?`), int64(id)); err != nil {
		return fmt.Errorf("delete values: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.d.rebind(`DELETE FROM entities WHERE id = ?`), int64(id)); err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	return nil
}

func (s *SQLStore) FindEntities(ctx context.Context, typ domain.EntityType, filter domain.Filter) ([]domain.EntityID, error) {
	q := `SELECT id FROM entities WHERE type_id = ?`
	args := []any{typ.ID}
	if filter.Parent != nil {
		q += ` AND parent_id = ?`
		args = append(args, int64(*filter.Parent))
	}
	if filter.Name != "" {
		q += ` AND name = ?`
		args = append(args, filter.Name)
	}
	q += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, s.d.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("find entities: %w", err)
	}
	defer rows.Close()

	ids := []domain.EntityID{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		ids = append(ids, domain.EntityID(id))
	}
	return ids, rows.Err()
}

func (s *SQLStore) Close() error { return s.db.Close() }
