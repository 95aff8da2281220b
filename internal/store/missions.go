package store

import (
	"database/sql"
	"fmt"
	"time"
)

type Mission struct {
	ID          string
	Name        string
	Description string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (s *Store) CreateMission(m *Mission) error {
	if m.Status == "" {
		m.Status = "active"
	}
	ts := now()
	m.CreatedAt = parseTime(ts)
	m.UpdatedAt = m.CreatedAt
	_, err := s.db.Exec(`INSERT INTO missions (id, name, description, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.Description, m.Status, ts, ts)
	if err != nil {
		return fmt.Errorf("create mission: %w", err)
	}
	return nil
}

func (s *Store) GetMission(id string) (*Mission, error) {
	row := s.db.QueryRow(`SELECT id, name, description, status, created_at, updated_at
		FROM missions WHERE id = ?`, id)
	m, err := scanMission(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get mission: %w", err)
	}
	return m, nil
}

func (s *Store) ListMissions() ([]*Mission, error) {
	rows, err := s.db.Query(`SELECT id, name, description, status, created_at, updated_at
		FROM missions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	defer rows.Close()
	var missions []*Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mission: %w", err)
		}
		missions = append(missions, m)
	}
	return missions, rows.Err()
}

type MissionPatch struct {
	Name        *string
	Description *string
	Status      *string
}

func (s *Store) UpdateMission(id string, patch MissionPatch) (*Mission, error) {
	m, err := s.GetMission(id)
	if err != nil || m == nil {
		return m, err
	}
	if patch.Name != nil {
		m.Name = *patch.Name
	}
	if patch.Description != nil {
		m.Description = *patch.Description
	}
	if patch.Status != nil {
		m.Status = *patch.Status
	}
	ts := now()
	m.UpdatedAt = parseTime(ts)
	_, err = s.db.Exec(`UPDATE missions SET name = ?, description = ?, status = ?, updated_at = ?
		WHERE id = ?`, m.Name, m.Description, m.Status, ts, id)
	if err != nil {
		return nil, fmt.Errorf("update mission: %w", err)
	}
	return m, nil
}

func (s *Store) DeleteMission(id string) error {
	_, err := s.db.Exec("DELETE FROM missions WHERE id = ?", id)
	return err
}

func scanMission(row rowScanner) (*Mission, error) {
	m := &Mission{}
	var createdAt, updatedAt string
	if err := row.Scan(&m.ID, &m.Name, &m.Description, &m.Status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	return m, nil
}
