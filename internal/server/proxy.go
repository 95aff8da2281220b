package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/missionloop/missiond/internal/gateway"
)

// The handlers below front gateway RPCs for the dashboard. They keep no
// state of their own; errors come back as 502/504 via writeGatewayError.

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.gw.ListAgents(r.Context())
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var params gateway.CreateAgentParams
	if !readJSON(w, r, &params) {
		return
	}
	if params.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	res, err := s.gw.CreateAgent(r.Context(), params)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeRaw(w, http.StatusCreated, res)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if !readJSON(w, r, &patch) {
		return
	}
	res, err := s.gw.UpdateAgent(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, res)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.gw.DeleteAgent(r.Context(), r.PathValue("id")); err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleGetAgentFile(w http.ResponseWriter, r *http.Request) {
	content, err := s.gw.GetAgentFile(r.Context(), r.PathValue("id"), r.PathValue("name"))
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": content})
}

func (s *Server) handleSetAgentFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if err := s.gw.SetAgentFile(r.Context(), r.PathValue("id"), r.PathValue("name"), req.Content); err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	sessionKey := r.URL.Query().Get("session")
	if sessionKey == "" {
		writeError(w, http.StatusBadRequest, "session is required")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	history, err := s.gw.ChatHistory(r.Context(), sessionKey, limit)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionKey     string `json:"sessionKey"`
		Message        string `json:"message"`
		IdempotencyKey string `json:"idempotencyKey"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if req.SessionKey == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "sessionKey and message are required")
		return
	}
	res, err := s.gw.SendMessage(r.Context(), req.SessionKey, req.Message, req.IdempotencyKey)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, res)
}

func (s *Server) handleChatAbort(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionKey string `json:"sessionKey"`
		RunID      string `json:"runId"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if req.SessionKey == "" {
		writeError(w, http.StatusBadRequest, "sessionKey is required")
		return
	}
	if err := s.gw.AbortChat(r.Context(), req.SessionKey, req.RunID); err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.gw.ListSessions(r.Context(), r.URL.Query().Get("agent"))
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handlePreviewSessions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keys []string `json:"keys"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	res, err := s.gw.PreviewSessions(r.Context(), req.Keys)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, res)
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	if err := s.gw.ResetSession(r.Context(), r.PathValue("key")); err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handlePatchSession(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if !readJSON(w, r, &patch) {
		return
	}
	if err := s.gw.PatchSession(r.Context(), r.PathValue("key"), patch); err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := s.gw.DeleteSession(r.Context(), key); err != nil {
		writeGatewayError(w, err)
		return
	}
	// Nothing should keep polling a session that no longer exists.
	s.watcher.Stop(key)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// writeRaw passes gateway payloads through untouched. A nil payload
// still needs a valid JSON body.
func writeRaw(w http.ResponseWriter, code int, raw json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if len(raw) == 0 {
		w.Write([]byte("null"))
		return
	}
	w.Write(raw)
}
