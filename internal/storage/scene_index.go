package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"scenes/internal/domain"
)

var ErrSceneNotFound = errors.New("scene not found")

// SceneRecord maps a scene id onto its backing entity in the external store.
type SceneRecord struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	EntityID     domain.EntityID `json:"entityId"`
	DocumentPath string          `json:"documentPath,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// SceneIndex keeps the local index of known scenes.
type SceneIndex struct {
	db *DB
}

func NewSceneIndex(db *DB) *SceneIndex {
	return &SceneIndex{db: db}
}

// Upsert inserts r or updates its name, entity and document path.
func (s *SceneIndex) Upsert(r *SceneRecord) error {
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	_, err := s.db.Conn().Exec(
		`INSERT INTO scenes (id, name, entity_id, document_path, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, entity_id = excluded.entity_id,
		 document_path = excluded.document_path, updated_at = excluded.updated_at`,
		r.ID, r.Name, int64(r.EntityID), r.DocumentPath, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert scene: %w", err)
	}
	return nil
}

const sceneColumns = `id, name, entity_id, document_path, created_at, updated_at`

func scanScene(row interface{ Scan(...any) error }) (*SceneRecord, error) {
	r := &SceneRecord{}
	var entity int64
	if err := row.Scan(&r.ID, &r.Name, &entity, &r.DocumentPath, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.EntityID = domain.EntityID(entity)
	return r, nil
}

func (s *SceneIndex) Get(id string) (*SceneRecord, error) {
	r, err := scanScene(s.db.Conn().QueryRow(`SELECT `+sceneColumns+` FROM scenes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get scene %s: %w", id, ErrSceneNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get scene: %w", err)
	}
	return r, nil
}

// ByDocumentPath finds the scene exported to path.
func (s *SceneIndex) ByDocumentPath(path string) (*SceneRecord, error) {
	r, err := scanScene(s.db.Conn().QueryRow(`SELECT `+sceneColumns+` FROM scenes WHERE document_path = ? AND document_path != ''`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scene for %s: %w", path, ErrSceneNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get scene by path: %w", err)
	}
	return r, nil
}

func (s *SceneIndex) List() ([]SceneRecord, error) {
	rows, err := s.db.Conn().Query(`SELECT ` + sceneColumns + ` FROM scenes ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SceneRecord
	for rows.Next() {
		r, err := scanScene(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Delete removes the scene and its history.
func (s *SceneIndex) Delete(id string) error {
	tx, err := s.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM history_state WHERE scene_id = ?`,
		`DELETE FROM history_entries WHERE scene_id = ?`,
		`DELETE FROM scenes WHERE id = ?`,
	} {
		if _, err := tx.Exec(q, id); err != nil {
			return fmt.Errorf("delete scene %s: %w", id, err)
		}
	}
	return tx.Commit()
}
