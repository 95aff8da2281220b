package server

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/missionloop/missiond/internal/store"
)

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.TaskFilter{
		Status:          q.Get("status"),
		MissionID:       q.Get("mission"),
		AssignedAgentID: q.Get("agent"),
	}
	tasks, err := s.store.ListTasks(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title           string `json:"title"`
		Description     string `json:"description"`
		Status          string `json:"status"`
		Priority        string `json:"priority"`
		MissionID       string `json:"missionId"`
		AssignedAgentID string `json:"assignedAgentId"`
		SortOrder       int    `json:"sortOrder"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	task := &store.Task{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		SortOrder:   req.SortOrder,
	}
	if req.MissionID != "" {
		task.MissionID = &req.MissionID
	}
	if req.AssignedAgentID != "" {
		task.AssignedAgentID = &req.AssignedAgentID
	}
	if err := s.store.CreateTask(task); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logActivity("task_created", task.ID, req.AssignedAgentID, req.MissionID,
		"Task created: "+task.Title, nil)
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.store.GetTask(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title           *string `json:"title"`
		Description     *string `json:"description"`
		Status          *string `json:"status"`
		Priority        *string `json:"priority"`
		MissionID       *string `json:"missionId"`
		AssignedAgentID *string `json:"assignedAgentId"`
		SessionKey      *string `json:"sessionKey"`
		SortOrder       *int    `json:"sortOrder"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if req.Status != nil && !validStatus(*req.Status) {
		writeError(w, http.StatusBadRequest, "invalid status: "+*req.Status)
		return
	}
	id := r.PathValue("id")
	task, err := s.store.UpdateTask(id, store.TaskPatch{
		Title:           req.Title,
		Description:     req.Description,
		Status:          req.Status,
		Priority:        req.Priority,
		MissionID:       req.MissionID,
		AssignedAgentID: req.AssignedAgentID,
		SessionKey:      req.SessionKey,
		SortOrder:       req.SortOrder,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	// Dragging a card out of in_progress cancels any completion watch
	// still attached to the old session.
	if req.Status != nil && *req.Status != store.StatusInProgress && task.SessionKey != nil {
		s.watcher.Stop(*task.SessionKey)
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	task, err := s.store.GetTask(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if task.SessionKey != nil {
		s.watcher.Stop(*task.SessionKey)
	}
	if err := s.store.DeleteTask(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := s.store.ListComments(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content    string `json:"content"`
		AuthorType string `json:"authorType"`
		AgentID    string `json:"agentId"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	id := r.PathValue("id")
	task, err := s.store.GetTask(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	authorType := req.AuthorType
	if authorType == "" {
		authorType = store.AuthorUser
	}
	comment := &store.Comment{
		TaskID:     id,
		AuthorType: authorType,
		Content:    req.Content,
	}
	if req.AgentID != "" {
		comment.AgentID = &req.AgentID
	}
	if err := s.store.AddComment(comment); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func validStatus(status string) bool {
	switch status {
	case store.StatusInbox, store.StatusAssigned, store.StatusInProgress,
		store.StatusReview, store.StatusDone:
		return true
	}
	return false
}

// logActivity records a feed entry, dropping failures after logging
// them. Activity is informational and never blocks the request.
func (s *Server) logActivity(kind, taskID, agentID, missionID, message string, metadata map[string]any) {
	a := &store.Activity{
		Type:     kind,
		Message:  message,
		Metadata: metadata,
	}
	if taskID != "" {
		a.TaskID = &taskID
	}
	if agentID != "" {
		a.AgentID = &agentID
	}
	if missionID != "" {
		a.MissionID = &missionID
	}
	if err := s.store.LogActivity(a); err != nil {
		slog.Warn("failed to record activity", "type", kind, "error", err)
	}
}
