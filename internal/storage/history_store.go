package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"scenes/internal/scene"

	"github.com/google/uuid"
)

// DefaultHistoryCap is the number of snapshots kept per scene on disk.
const DefaultHistoryCap = 40

// HistoryEntry is one persisted snapshot row.
type HistoryEntry struct {
	ID           string    `json:"id"`
	SceneID      string    `json:"sceneId"`
	Seq          int       `json:"seq"`
	Label        string    `json:"label"`
	SnapshotJSON string    `json:"snapshotJson"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HistoryStore persists scene undo history in SQLite.
type HistoryStore struct {
	db    *DB
	limit int
}

func NewHistoryStore(db *DB, limit int) *HistoryStore {
	if limit <= 0 {
		limit = DefaultHistoryCap
	}
	return &HistoryStore{db: db, limit: limit}
}

// Save atomically replaces the stored history of a scene. Only the newest
// entries up to the store's cap are written; the cursor is shifted to match.
func (s *HistoryStore) Save(sceneID string, entries []scene.Entry, cursor int) error {
	if over := len(entries) - s.limit; over > 0 {
		entries = entries[over:]
		cursor = max(cursor-over, 0)
	}

	tx, err := s.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM history_entries WHERE scene_id = ?`, sceneID); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	now := time.Now()
	for i, e := range entries {
		raw, err := json.Marshal(e.State)
		if err != nil {
			return fmt.Errorf("encode snapshot %q: %w", e.Label, err)
		}
		_, err = tx.Exec(
			`INSERT INTO history_entries (id, scene_id, seq, label, snapshot_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), sceneID, i, e.Label, string(raw), now,
		)
		if err != nil {
			return fmt.Errorf("insert history entry: %w", err)
		}
	}
	_, err = tx.Exec(
		`INSERT INTO history_state (scene_id, cursor) VALUES (?, ?)
		 ON CONFLICT(scene_id) DO UPDATE SET cursor = excluded.cursor`,
		sceneID, cursor,
	)
	if err != nil {
		return fmt.Errorf("update history state: %w", err)
	}
	return tx.Commit()
}

// Entries returns the raw rows of a scene's history in order.
func (s *HistoryStore) Entries(sceneID string) ([]HistoryEntry, error) {
	rows, err := s.db.Conn().Query(
		`SELECT id, scene_id, seq, label, snapshot_json, created_at
		 FROM history_entries WHERE scene_id = ? ORDER BY seq ASC`, sceneID,
	)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.SceneID, &e.Seq, &e.Label, &e.SnapshotJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Load decodes a scene's history. A scene without history returns nil
// entries and no error.
func (s *HistoryStore) Load(sceneID string) ([]scene.Entry, int, error) {
	rows, err := s.Entries(sceneID)
	if err != nil {
		return nil, 0, err
	}
	if len(rows) == 0 {
		return nil, 0, nil
	}

	entries := make([]scene.Entry, 0, len(rows))
	for _, r := range rows {
		st := &scene.State{}
		if err := json.Unmarshal([]byte(r.SnapshotJSON), st); err != nil {
			return nil, 0, fmt.Errorf("decode snapshot %s: %w", r.ID, err)
		}
		entries = append(entries, scene.Entry{Label: r.Label, State: st})
	}

	cursor := len(entries) - 1
	if err := s.db.Conn().QueryRow(`SELECT cursor FROM history_state WHERE scene_id = ?`, sceneID).Scan(&cursor); err != nil {
		cursor = len(entries) - 1 // Fallback
	}
	if cursor < 0 || cursor >= len(entries) {
		cursor = len(entries) - 1
	}
	return entries, cursor, nil
}

// Clear removes all history for a scene.
func (s *HistoryStore) Clear(sceneID string) error {
	_, _ = s.db.Conn().Exec(`DELETE FROM history_state WHERE scene_id = ?`, sceneID)
	_, err := s.db.Conn().Exec(`DELETE FROM history_entries WHERE scene_id = ?`, sceneID)
	return err
}
