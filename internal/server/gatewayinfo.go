package server

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleGatewayStatus(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"connected": s.gw.IsConnected()}
	if health, err := s.gw.Health(r.Context()); err == nil {
		out["health"] = json.RawMessage(health)
	}
	if status, err := s.gw.Status(r.Context()); err == nil {
		out["status"] = json.RawMessage(status)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGatewayUsage(w http.ResponseWriter, r *http.Request) {
	res, err := s.gw.Usage(r.Context())
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, res)
}

func (s *Server) handleGatewayUsageCost(w http.ResponseWriter, r *http.Request) {
	res, err := s.gw.UsageCost(r.Context())
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, res)
}

func (s *Server) handleGatewayModels(w http.ResponseWriter, r *http.Request) {
	res, err := s.gw.ListModels(r.Context())
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, res)
}

func (s *Server) handleGatewayConfigGet(w http.ResponseWriter, r *http.Request) {
	res, err := s.gw.ConfigGet(r.Context())
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, res)
}

func (s *Server) handleGatewayConfigSchema(w http.ResponseWriter, r *http.Request) {
	res, err := s.gw.ConfigSchema(r.Context())
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, res)
}

func (s *Server) handleGatewayConfigPatch(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if !readJSON(w, r, &patch) {
		return
	}
	res, err := s.gw.ConfigPatch(r.Context(), patch)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, res)
}

func (s *Server) handleApprovals(w http.ResponseWriter, r *http.Request) {
	res, err := s.gw.ExecApprovals(r.Context())
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, res)
}

func (s *Server) handleSetApprovals(w http.ResponseWriter, r *http.Request) {
	var params map[string]any
	if !readJSON(w, r, &params) {
		return
	}
	res, err := s.gw.SetExecApprovals(r.Context(), params)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, res)
}

func (s *Server) handleResolveApproval(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Decision string `json:"decision"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	switch req.Decision {
	case "approve", "deny":
	default:
		writeError(w, http.StatusBadRequest, "decision must be approve or deny")
		return
	}
	if err := s.gw.ResolveExecApproval(r.Context(), r.PathValue("id"), req.Decision); err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleGatewayLogs(w http.ResponseWriter, r *http.Request) {
	res, err := s.gw.TailLogs(r.Context())
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, res)
}

func (s *Server) handleGatewayChannels(w http.ResponseWriter, r *http.Request) {
	res, err := s.gw.ChannelsStatus(r.Context())
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, res)
}

func (s *Server) handleGatewaySkills(w http.ResponseWriter, r *http.Request) {
	res, err := s.gw.SkillsStatus(r.Context())
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, res)
}
