package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Task statuses mirror the Kanban columns. The monitor only ever moves a
// task from StatusInProgress to StatusReview.
const (
	StatusInbox      = "inbox"
	StatusAssigned   = "assigned"
	StatusInProgress = "in_progress"
	StatusReview     = "review"
	StatusDone       = "done"
)

type Task struct {
	ID              string
	Title           string
	Description     string
	Status          string
	Priority        string
	MissionID       *string
	AssignedAgentID *string
	SessionKey      *string
	SortOrder       int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TaskPatch is a partial update; nil fields are left untouched. Every
// applied patch also bumps updated_at.
type TaskPatch struct {
	Title           *string
	Description     *string
	Status          *string
	Priority        *string
	MissionID       *string
	AssignedAgentID *string
	SessionKey      *string
	SortOrder       *int
}

// TaskFilter narrows ListTasks; zero values match everything.
type TaskFilter struct {
	Status          string
	MissionID       string
	AssignedAgentID string
}

const taskCols = `id, title, description, status, priority, mission_id,
	assigned_agent_id, session_key, sort_order, created_at, updated_at`

func (s *Store) CreateTask(t *Task) error {
	if t.Status == "" {
		t.Status = StatusInbox
	}
	if t.Priority == "" {
		t.Priority = "medium"
	}
	ts := now()
	t.CreatedAt = parseTime(ts)
	t.UpdatedAt = t.CreatedAt
	_, err := s.db.Exec(`INSERT INTO tasks (`+taskCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, t.Status, t.Priority, t.MissionID,
		t.AssignedAgentID, t.SessionKey, t.SortOrder, ts, ts)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetTask returns nil, nil when no task with this id exists.
func (s *Store) GetTask(id string) (*Task, error) {
	row := s.db.QueryRow(`SELECT `+taskCols+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *Store) ListTasks(f TaskFilter) ([]*Task, error) {
	query := `SELECT ` + taskCols + ` FROM tasks`
	var conds []string
	var args []any
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.MissionID != "" {
		conds = append(conds, "mission_id = ?")
		args = append(args, f.MissionID)
	}
	if f.AssignedAgentID != "" {
		conds = append(conds, "assigned_agent_id = ?")
		args = append(args, f.AssignedAgentID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY sort_order ASC, created_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateTask applies a partial update and returns the updated task, or
// nil, nil when the task does not exist.
func (s *Store) UpdateTask(id string, patch TaskPatch) (*Task, error) {
	sets := []string{"updated_at = ?"}
	args := []any{now()}

	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.Priority != nil {
		add("priority", *patch.Priority)
	}
	if patch.MissionID != nil {
		add("mission_id", nullable(*patch.MissionID))
	}
	if patch.AssignedAgentID != nil {
		add("assigned_agent_id", nullable(*patch.AssignedAgentID))
	}
	if patch.SessionKey != nil {
		add("session_key", nullable(*patch.SessionKey))
	}
	if patch.SortOrder != nil {
		add("sort_order", *patch.SortOrder)
	}

	args = append(args, id)
	if _, err := s.db.Exec("UPDATE tasks SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return s.GetTask(id)
}

// UpdateTaskStatusIf moves a task from one status to another atomically and
// reports whether the row actually changed. A false return means the task
// was missing or already moved by someone else.
func (s *Store) UpdateTaskStatusIf(id, from, to string) (bool, error) {
	res, err := s.db.Exec(
		"UPDATE tasks SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		to, now(), id, from)
	if err != nil {
		return false, fmt.Errorf("update task status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) DeleteTask(id string) error {
	_, err := s.db.Exec("DELETE FROM tasks WHERE id = ?", id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	t := &Task{}
	var createdAt, updatedAt string
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&t.MissionID, &t.AssignedAgentID, &t.SessionKey, &t.SortOrder,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return t, nil
}

// nullable maps "" to NULL so clearing a reference works through a patch.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
