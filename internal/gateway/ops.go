package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Typed wrappers over Call, one per gateway method the dashboard uses. Each
// unwraps the expected payload shape and defaults to an empty collection
// when the gateway omits a field.

// --- Agents ---

func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var out struct {
		Agents []Agent `json:"agents"`
	}
	if err := c.callInto(ctx, "agents.list", struct{}{}, &out); err != nil {
		return nil, err
	}
	if out.Agents == nil {
		out.Agents = []Agent{}
	}
	return out.Agents, nil
}

// CreateAgentParams names the fields the gateway expects for agents.create.
type CreateAgentParams struct {
	Name      string `json:"name"`
	Workspace string `json:"workspace"`
	Emoji     string `json:"emoji,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
}

func (c *Client) CreateAgent(ctx context.Context, params CreateAgentParams) (json.RawMessage, error) {
	return c.Call(ctx, "agents.create", params)
}

func (c *Client) UpdateAgent(ctx context.Context, agentID string, patch map[string]any) (json.RawMessage, error) {
	return c.Call(ctx, "agents.update", map[string]any{"agentId": agentID, "patch": patch})
}

func (c *Client) DeleteAgent(ctx context.Context, agentID string) error {
	_, err := c.Call(ctx, "agents.delete", map[string]string{"agentId": agentID})
	return err
}

func (c *Client) GetAgentFile(ctx context.Context, agentID, name string) (string, error) {
	var out struct {
		File struct {
			Content string `json:"content"`
		} `json:"file"`
	}
	if err := c.callInto(ctx, "agents.files.get", map[string]string{"agentId": agentID, "name": name}, &out); err != nil {
		return "", err
	}
	return out.File.Content, nil
}

func (c *Client) SetAgentFile(ctx context.Context, agentID, name, content string) error {
	_, err := c.Call(ctx, "agents.files.set", map[string]string{
		"agentId": agentID, "name": name, "content": content,
	})
	return err
}

// --- Chat ---

// SendMessage delivers one chat turn to a session. Every send carries an
// idempotency key so a retry at a lower layer cannot duplicate the turn;
// pass key == "" to have one generated.
func (c *Client) SendMessage(ctx context.Context, sessionKey, message, key string) (json.RawMessage, error) {
	if key == "" {
		key = uuid.NewString()
	}
	return c.Call(ctx, "chat.send", map[string]string{
		"sessionKey":     sessionKey,
		"message":        message,
		"idempotencyKey": key,
	})
}

// ChatHistory fetches a session's transcript. limit <= 0 means the gateway
// default.
func (c *Client) ChatHistory(ctx context.Context, sessionKey string, limit int) ([]ChatMessage, error) {
	params := map[string]any{"sessionKey": sessionKey}
	if limit > 0 {
		params["limit"] = limit
	}
	var out struct {
		Messages []ChatMessage `json:"messages"`
	}
	if err := c.callInto(ctx, "chat.history", params, &out); err != nil {
		return nil, err
	}
	if out.Messages == nil {
		out.Messages = []ChatMessage{}
	}
	return out.Messages, nil
}

func (c *Client) AbortChat(ctx context.Context, sessionKey, runID string) error {
	params := map[string]string{"sessionKey": sessionKey}
	if runID != "" {
		params["runId"] = runID
	}
	_, err := c.Call(ctx, "chat.abort", params)
	return err
}

// --- Sessions ---

func (c *Client) ListSessions(ctx context.Context, agentID string) ([]Session, error) {
	params := map[string]string{}
	if agentID != "" {
		params["agentId"] = agentID
	}
	var out struct {
		Sessions []Session `json:"sessions"`
	}
	if err := c.callInto(ctx, "sessions.list", params, &out); err != nil {
		return nil, err
	}
	if out.Sessions == nil {
		out.Sessions = []Session{}
	}
	return out.Sessions, nil
}

func (c *Client) PreviewSessions(ctx context.Context, keys []string) (json.RawMessage, error) {
	return c.Call(ctx, "sessions.preview", map[string]any{"keys": keys})
}

func (c *Client) ResetSession(ctx context.Context, key string) error {
	_, err := c.Call(ctx, "sessions.reset", map[string]string{"key": key})
	return err
}

func (c *Client) DeleteSession(ctx context.Context, key string) error {
	_, err := c.Call(ctx, "sessions.delete", map[string]string{"key": key})
	return err
}

// PatchSession updates session settings, e.g. {"model": "provider/model"}.
func (c *Client) PatchSession(ctx context.Context, key string, patch map[string]any) error {
	params := map[string]any{"key": key}
	for k, v := range patch {
		params[k] = v
	}
	_, err := c.Call(ctx, "sessions.patch", params)
	return err
}

// --- Cron ---

func (c *Client) ListCronJobs(ctx context.Context) ([]CronJob, error) {
	var out struct {
		Jobs []CronJob `json:"jobs"`
	}
	if err := c.callInto(ctx, "cron.list", map[string]bool{"includeDisabled": true}, &out); err != nil {
		return nil, err
	}
	if out.Jobs == nil {
		out.Jobs = []CronJob{}
	}
	return out.Jobs, nil
}

// AddCronJobParams names the fields for cron.add.
type AddCronJobParams struct {
	Prompt     string `json:"prompt"`
	Schedule   string `json:"schedule"`
	AgentID    string `json:"agentId,omitempty"`
	SessionKey string `json:"sessionKey,omitempty"`
	Enabled    *bool  `json:"enabled,omitempty"`
}

func (c *Client) AddCronJob(ctx context.Context, params AddCronJobParams) (*CronJob, error) {
	var job CronJob
	if err := c.callInto(ctx, "cron.add", params, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) UpdateCronJob(ctx context.Context, id string, patch map[string]any) (*CronJob, error) {
	var job CronJob
	if err := c.callInto(ctx, "cron.update", map[string]any{"id": id, "patch": patch}, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) RemoveCronJob(ctx context.Context, id string) error {
	_, err := c.Call(ctx, "cron.remove", map[string]string{"id": id})
	return err
}

// RunCronJob triggers a job now. mode is "due" or "force"; empty means force.
func (c *Client) RunCronJob(ctx context.Context, id, mode string) error {
	if mode == "" {
		mode = "force"
	}
	_, err := c.Call(ctx, "cron.run", map[string]string{"id": id, "mode": mode})
	return err
}

func (c *Client) CronRuns(ctx context.Context, id string) (json.RawMessage, error) {
	return c.Call(ctx, "cron.runs", map[string]string{"id": id})
}

func (c *Client) CronStatus(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, "cron.status", struct{}{})
}

// --- System ---

func (c *Client) Health(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, "health", struct{}{})
}

func (c *Client) Status(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, "status", struct{}{})
}

func (c *Client) Usage(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, "usage.status", struct{}{})
}

func (c *Client) UsageCost(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, "usage.cost", struct{}{})
}

func (c *Client) ListModels(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, "models.list", struct{}{})
}

// --- Config ---

func (c *Client) ConfigGet(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, "config.get", struct{}{})
}

func (c *Client) ConfigSchema(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, "config.schema", struct{}{})
}

func (c *Client) ConfigPatch(ctx context.Context, patch map[string]any) (json.RawMessage, error) {
	return c.Call(ctx, "config.patch", map[string]any{"patch": patch})
}

// --- Exec approvals ---

func (c *Client) ExecApprovals(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, "exec.approvals.get", struct{}{})
}

func (c *Client) SetExecApprovals(ctx context.Context, params map[string]any) (json.RawMessage, error) {
	return c.Call(ctx, "exec.approvals.set", params)
}

// ResolveExecApproval answers a pending approval; decision is "approve" or
// "deny".
func (c *Client) ResolveExecApproval(ctx context.Context, id, decision string) error {
	_, err := c.Call(ctx, "exec.approval.resolve", map[string]string{"id": id, "decision": decision})
	return err
}

// --- Logs, channels, skills ---

func (c *Client) TailLogs(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, "logs.tail", struct{}{})
}

func (c *Client) ChannelsStatus(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, "channels.status", struct{}{})
}

func (c *Client) SkillsStatus(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, "skills.status", struct{}{})
}

// callInto runs Call and decodes the payload into out. A missing payload
// leaves out at its zero value.
func (c *Client) callInto(ctx context.Context, method string, params, out any) error {
	payload, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", method, err)
	}
	return nil
}
