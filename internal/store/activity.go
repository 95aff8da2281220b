package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Activity struct {
	ID        string
	Type      string
	TaskID    *string
	AgentID   *string
	MissionID *string
	Message   string
	Metadata  map[string]any
	CreatedAt time.Time
}

func (s *Store) LogActivity(a *Activity) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Metadata == nil {
		a.Metadata = map[string]any{}
	}
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("marshal activity metadata: %w", err)
	}
	ts := now()
	a.CreatedAt = parseTime(ts)
	_, err = s.db.Exec(`INSERT INTO activity (id, type, task_id, agent_id, mission_id, message, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Type, a.TaskID, a.AgentID, a.MissionID, a.Message, string(meta), ts)
	if err != nil {
		return fmt.Errorf("log activity: %w", err)
	}
	return nil
}

func (s *Store) ListActivity(limit int) ([]*Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT id, type, task_id, agent_id, mission_id, message, metadata, created_at
		FROM activity ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()
	var entries []*Activity
	for rows.Next() {
		a := &Activity{}
		var meta, createdAt string
		if err := rows.Scan(&a.ID, &a.Type, &a.TaskID, &a.AgentID, &a.MissionID, &a.Message, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &a.Metadata); err != nil {
			a.Metadata = map[string]any{}
		}
		a.CreatedAt = parseTime(createdAt)
		entries = append(entries, a)
	}
	return entries, rows.Err()
}
