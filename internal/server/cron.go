package server

import (
	"net/http"
	"time"

	"github.com/missionloop/missiond/internal/gateway"
	"github.com/missionloop/missiond/internal/schedule"
)

func (s *Server) handleListCron(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.gw.ListCronJobs(r.Context())
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleAddCron(w http.ResponseWriter, r *http.Request) {
	var params gateway.AddCronJobParams
	if !readJSON(w, r, &params) {
		return
	}
	if params.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	// Validate locally so a bad expression never reaches the gateway.
	sched, err := schedule.Parse(params.Schedule)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := s.gw.AddCronJob(r.Context(), params)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"job":     job,
		"nextRun": sched.Next(time.Now()),
	})
}

func (s *Server) handleUpdateCron(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if !readJSON(w, r, &patch) {
		return
	}
	if raw, ok := patch["schedule"].(string); ok {
		if _, err := schedule.Parse(raw); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	job, err := s.gw.UpdateCronJob(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleRemoveCron(w http.ResponseWriter, r *http.Request) {
	if err := s.gw.RemoveCronJob(r.Context(), r.PathValue("id")); err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleRunCron(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	// Body is optional; default mode applies.
	_ = readJSONOptional(r, &req)
	if err := s.gw.RunCronJob(r.Context(), r.PathValue("id"), req.Mode); err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleCronRuns(w http.ResponseWriter, r *http.Request) {
	res, err := s.gw.CronRuns(r.Context(), r.PathValue("id"))
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, res)
}

func (s *Server) handleCronStatus(w http.ResponseWriter, r *http.Request) {
	res, err := s.gw.CronStatus(r.Context())
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, res)
}
