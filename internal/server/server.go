package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/missionloop/missiond/internal/gateway"
	"github.com/missionloop/missiond/internal/monitor"
	"github.com/missionloop/missiond/internal/store"
)

// Gateway is the slice of the gateway client the API consumes. Declared
// here so handler tests can stub it.
type Gateway interface {
	IsConnected() bool

	ListAgents(ctx context.Context) ([]gateway.Agent, error)
	CreateAgent(ctx context.Context, params gateway.CreateAgentParams) (json.RawMessage, error)
	UpdateAgent(ctx context.Context, agentID string, patch map[string]any) (json.RawMessage, error)
	DeleteAgent(ctx context.Context, agentID string) error
	GetAgentFile(ctx context.Context, agentID, name string) (string, error)
	SetAgentFile(ctx context.Context, agentID, name, content string) error

	SendMessage(ctx context.Context, sessionKey, message, idempotencyKey string) (json.RawMessage, error)
	ChatHistory(ctx context.Context, sessionKey string, limit int) ([]gateway.ChatMessage, error)
	AbortChat(ctx context.Context, sessionKey, runID string) error

	ListSessions(ctx context.Context, agentID string) ([]gateway.Session, error)
	PreviewSessions(ctx context.Context, keys []string) (json.RawMessage, error)
	ResetSession(ctx context.Context, key string) error
	DeleteSession(ctx context.Context, key string) error
	PatchSession(ctx context.Context, key string, patch map[string]any) error

	ListCronJobs(ctx context.Context) ([]gateway.CronJob, error)
	AddCronJob(ctx context.Context, params gateway.AddCronJobParams) (*gateway.CronJob, error)
	UpdateCronJob(ctx context.Context, id string, patch map[string]any) (*gateway.CronJob, error)
	RemoveCronJob(ctx context.Context, id string) error
	RunCronJob(ctx context.Context, id, mode string) error
	CronRuns(ctx context.Context, id string) (json.RawMessage, error)
	CronStatus(ctx context.Context) (json.RawMessage, error)

	Health(ctx context.Context) (json.RawMessage, error)
	Status(ctx context.Context) (json.RawMessage, error)
	Usage(ctx context.Context) (json.RawMessage, error)
	UsageCost(ctx context.Context) (json.RawMessage, error)
	ListModels(ctx context.Context) (json.RawMessage, error)

	ConfigGet(ctx context.Context) (json.RawMessage, error)
	ConfigSchema(ctx context.Context) (json.RawMessage, error)
	ConfigPatch(ctx context.Context, patch map[string]any) (json.RawMessage, error)

	ExecApprovals(ctx context.Context) (json.RawMessage, error)
	SetExecApprovals(ctx context.Context, params map[string]any) (json.RawMessage, error)
	ResolveExecApproval(ctx context.Context, id, decision string) error

	TailLogs(ctx context.Context) (json.RawMessage, error)
	ChannelsStatus(ctx context.Context) (json.RawMessage, error)
	SkillsStatus(ctx context.Context) (json.RawMessage, error)
}

// Watcher is the slice of the completion monitor the API consumes.
type Watcher interface {
	Start(taskID, sessionKey, agentID string)
	Stop(sessionKey string)
	Active() []monitor.ActiveWatch
}

// Server is the dashboard HTTP API.
type Server struct {
	store   *store.Store
	gw      Gateway
	watcher Watcher
	auth    *authenticator
	mux     *http.ServeMux
	version string
}

func New(st *store.Store, gw Gateway, w Watcher, password, jwtSecret, version string) (*Server, error) {
	auth, err := newAuthenticator(password, jwtSecret)
	if err != nil {
		return nil, err
	}
	s := &Server{
		store:   st,
		gw:      gw,
		watcher: w,
		auth:    auth,
		mux:     http.NewServeMux(),
		version: version,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("POST /api/login", s.handleLogin)
	s.mux.HandleFunc("POST /api/logout", s.handleLogout)

	s.mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	s.mux.HandleFunc("POST /api/tasks", s.handleCreateTask)
	s.mux.HandleFunc("GET /api/tasks/check-completion", s.handleCheckCompletion)
	s.mux.HandleFunc("POST /api/tasks/dispatch", s.handleDispatch)
	s.mux.HandleFunc("GET /api/tasks/{id}", s.handleGetTask)
	s.mux.HandleFunc("PATCH /api/tasks/{id}", s.handleUpdateTask)
	s.mux.HandleFunc("DELETE /api/tasks/{id}", s.handleDeleteTask)
	s.mux.HandleFunc("GET /api/tasks/{id}/comments", s.handleListComments)
	s.mux.HandleFunc("POST /api/tasks/{id}/comments", s.handleAddComment)

	s.mux.HandleFunc("GET /api/missions", s.handleListMissions)
	s.mux.HandleFunc("POST /api/missions", s.handleCreateMission)
	s.mux.HandleFunc("PATCH /api/missions/{id}", s.handleUpdateMission)
	s.mux.HandleFunc("DELETE /api/missions/{id}", s.handleDeleteMission)

	s.mux.HandleFunc("GET /api/activity", s.handleActivity)
	s.mux.HandleFunc("GET /api/monitors", s.handleMonitors)

	s.mux.HandleFunc("GET /api/agents", s.handleListAgents)
	s.mux.HandleFunc("POST /api/agents", s.handleCreateAgent)
	s.mux.HandleFunc("PATCH /api/agents/{id}", s.handleUpdateAgent)
	s.mux.HandleFunc("DELETE /api/agents/{id}", s.handleDeleteAgent)
	s.mux.HandleFunc("GET /api/agents/{id}/files/{name}", s.handleGetAgentFile)
	s.mux.HandleFunc("PUT /api/agents/{id}/files/{name}", s.handleSetAgentFile)

	s.mux.HandleFunc("GET /api/chat", s.handleChatHistory)
	s.mux.HandleFunc("POST /api/chat", s.handleChatSend)
	s.mux.HandleFunc("POST /api/chat/abort", s.handleChatAbort)

	s.mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	s.mux.HandleFunc("POST /api/sessions/preview", s.handlePreviewSessions)
	s.mux.HandleFunc("POST /api/sessions/{key}/reset", s.handleResetSession)
	s.mux.HandleFunc("PATCH /api/sessions/{key}", s.handlePatchSession)
	s.mux.HandleFunc("DELETE /api/sessions/{key}", s.handleDeleteSession)

	s.mux.HandleFunc("GET /api/cron", s.handleListCron)
	s.mux.HandleFunc("POST /api/cron", s.handleAddCron)
	s.mux.HandleFunc("GET /api/cron/status", s.handleCronStatus)
	s.mux.HandleFunc("PATCH /api/cron/{id}", s.handleUpdateCron)
	s.mux.HandleFunc("DELETE /api/cron/{id}", s.handleRemoveCron)
	s.mux.HandleFunc("POST /api/cron/{id}/run", s.handleRunCron)
	s.mux.HandleFunc("GET /api/cron/{id}/runs", s.handleCronRuns)

	s.mux.HandleFunc("GET /api/gateway/status", s.handleGatewayStatus)
	s.mux.HandleFunc("GET /api/gateway/usage", s.handleGatewayUsage)
	s.mux.HandleFunc("GET /api/gateway/usage/cost", s.handleGatewayUsageCost)
	s.mux.HandleFunc("GET /api/gateway/models", s.handleGatewayModels)
	s.mux.HandleFunc("GET /api/gateway/config", s.handleGatewayConfigGet)
	s.mux.HandleFunc("PATCH /api/gateway/config", s.handleGatewayConfigPatch)
	s.mux.HandleFunc("GET /api/gateway/config/schema", s.handleGatewayConfigSchema)
	s.mux.HandleFunc("GET /api/gateway/approvals", s.handleApprovals)
	s.mux.HandleFunc("PUT /api/gateway/approvals", s.handleSetApprovals)
	s.mux.HandleFunc("POST /api/gateway/approvals/{id}", s.handleResolveApproval)
	s.mux.HandleFunc("GET /api/gateway/logs", s.handleGatewayLogs)
	s.mux.HandleFunc("GET /api/gateway/channels", s.handleGatewayChannels)
	s.mux.HandleFunc("GET /api/gateway/skills", s.handleGatewaySkills)
}

// ServeHTTP gates everything except health and login behind the session
// check, then dispatches to the mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/health", "/api/login":
	default:
		if !s.auth.authorized(r) {
			writeError(w, http.StatusUnauthorized, "not logged in")
			return
		}
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"version":  s.version,
		"gateway":  s.gw.IsConnected(),
		"monitors": len(s.watcher.Active()),
	})
}

func (s *Server) handleMonitors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.watcher.Active())
}
