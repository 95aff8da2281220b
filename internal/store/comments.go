package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Comment author types. Agent comments carry the agent's response text,
// system comments record dispatch/monitor milestones.
const (
	AuthorAgent  = "agent"
	AuthorUser   = "user"
	AuthorSystem = "system"
)

type Comment struct {
	ID         string
	TaskID     string
	AgentID    *string
	AuthorType string
	Content    string
	CreatedAt  time.Time
}

func (s *Store) AddComment(c *Comment) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	ts := now()
	c.CreatedAt = parseTime(ts)
	_, err := s.db.Exec(`INSERT INTO task_comments (id, task_id, agent_id, author_type, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.TaskID, c.AgentID, c.AuthorType, c.Content, ts)
	if err != nil {
		return fmt.Errorf("add comment: %w", err)
	}
	return nil
}

func (s *Store) ListComments(taskID string) ([]*Comment, error) {
	rows, err := s.db.Query(`SELECT id, task_id, agent_id, author_type, content, created_at
		FROM task_comments WHERE task_id = ? ORDER BY created_at ASC, rowid ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()
	var comments []*Comment
	for rows.Next() {
		c := &Comment{}
		var createdAt string
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AgentID, &c.AuthorType, &c.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.CreatedAt = parseTime(createdAt)
		comments = append(comments, c)
	}
	return comments, rows.Err()
}
