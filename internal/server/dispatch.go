package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/missionloop/missiond/internal/gateway"
	"github.com/missionloop/missiond/internal/store"
)

// sessionKeyFor derives the deterministic chat session for a task, so a
// re-dispatch of the same task to the same agent reuses its session.
func sessionKeyFor(agentID, taskID string) string {
	short := taskID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("agent:%s:mission-control:%s:task-%s", agentID, agentID, short)
}

type dispatchRequest struct {
	TaskID   string `json:"taskId"`
	AgentID  string `json:"agentId"`
	Feedback string `json:"feedback"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// handleDispatch hands a task to an agent: it moves the task to
// in_progress, sends the built prompt over the gateway, and arms the
// completion watch. A failed send rolls the status back so the card
// does not sit in_progress with no agent working it.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.TaskID == "" || req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "taskId and agentId are required")
		return
	}
	task, err := s.store.GetTask(req.TaskID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	rework := req.Feedback != ""
	sessionKey := sessionKeyFor(req.AgentID, task.ID)
	if task.SessionKey != nil && *task.SessionKey != "" {
		sessionKey = *task.SessionKey
	}

	if req.Model != "" {
		patch := map[string]any{"model": req.Model}
		if req.Provider != "" {
			patch["model"] = req.Provider + "/" + req.Model
		}
		if err := s.gw.PatchSession(r.Context(), sessionKey, patch); err != nil {
			slog.Warn("failed to set session model", "session", sessionKey, "error", err)
		}
	}

	var prompt string
	if rework {
		comments, err := s.store.ListComments(task.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		prompt = buildReworkPrompt(task, req.Feedback, comments)
	} else {
		prompt = buildTaskPrompt(task)
	}

	prevStatus := task.Status
	inProgress := store.StatusInProgress
	task, err = s.store.UpdateTask(task.ID, store.TaskPatch{
		Status:          &inProgress,
		AssignedAgentID: &req.AgentID,
		SessionKey:      &sessionKey,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if rework {
		comment := &store.Comment{
			TaskID:     task.ID,
			AuthorType: store.AuthorSystem,
			Content:    "Rework requested: " + req.Feedback,
		}
		if err := s.store.AddComment(comment); err != nil {
			slog.Warn("failed to record rework comment", "task", task.ID, "error", err)
		}
		s.logActivity("task_rework", task.ID, req.AgentID, deref(task.MissionID),
			fmt.Sprintf("Task sent back for rework: %s", task.Title),
			map[string]any{"sessionKey": sessionKey})
	} else {
		s.logActivity("task_dispatched", task.ID, req.AgentID, deref(task.MissionID),
			fmt.Sprintf("Task dispatched to agent: %s", task.Title),
			map[string]any{"sessionKey": sessionKey})
	}

	if _, err := s.gw.SendMessage(r.Context(), sessionKey, prompt, ""); err != nil {
		// Roll back so the board reflects reality. Rework returns to
		// review, a fresh dispatch returns to where it came from.
		revert := prevStatus
		if rework {
			revert = store.StatusReview
		}
		if _, rbErr := s.store.UpdateTask(task.ID, store.TaskPatch{Status: &revert}); rbErr != nil {
			slog.Error("failed to revert task after send failure", "task", task.ID, "error", rbErr)
		}
		writeGatewayError(w, err)
		return
	}

	s.watcher.Start(task.ID, sessionKey, req.AgentID)
	writeJSON(w, http.StatusOK, map[string]any{
		"task":       task,
		"sessionKey": sessionKey,
	})
}

// handleCheckCompletion sweeps all in_progress tasks and moves any whose
// agent already responded into review. It backstops the live monitor
// after a daemon restart.
func (s *Server) handleCheckCompletion(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.ListTasks(store.TaskFilter{Status: store.StatusInProgress})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var completed []string
	checked := 0
	for _, task := range tasks {
		if task.SessionKey == nil || *task.SessionKey == "" || task.AssignedAgentID == nil {
			continue
		}
		checked++
		history, err := s.gw.ChatHistory(r.Context(), *task.SessionKey, 50)
		if err != nil {
			slog.Warn("completion sweep: history fetch failed",
				"task", task.ID, "session", *task.SessionKey, "error", err)
			continue
		}
		assistant := gateway.AssistantMessages(history)
		if len(assistant) == 0 {
			continue
		}

		moved, err := s.store.UpdateTaskStatusIf(task.ID, store.StatusInProgress, store.StatusReview)
		if err != nil {
			slog.Warn("completion sweep: status update failed", "task", task.ID, "error", err)
			continue
		}
		if !moved {
			continue
		}
		s.watcher.Stop(*task.SessionKey)

		if text := assistant[len(assistant)-1].Content.Text(); text != "" {
			comment := &store.Comment{
				TaskID:     task.ID,
				AgentID:    task.AssignedAgentID,
				AuthorType: store.AuthorAgent,
				Content:    text,
			}
			if err := s.store.AddComment(comment); err != nil {
				slog.Warn("completion sweep: comment failed", "task", task.ID, "error", err)
			}
		}
		s.logActivity("task_review", task.ID, deref(task.AssignedAgentID), deref(task.MissionID),
			fmt.Sprintf("Agent response detected. Task moved to review: %s", task.Title),
			map[string]any{"sessionKey": *task.SessionKey, "reason": "sweep"})
		completed = append(completed, task.ID)
	}

	if completed == nil {
		completed = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"checked":   checked,
		"completed": completed,
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
