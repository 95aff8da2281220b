package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a running missiond over its HTTP API. The dashboard
// password rides along as a bearer token on every request.
type Client struct {
	baseURL  string
	password string
	http     *http.Client
}

func New(baseURL, password string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		password: password,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

type Task struct {
	ID              string
	Title           string
	Description     string
	Status          string
	Priority        string
	MissionID       *string
	AssignedAgentID *string
	SessionKey      *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Comment struct {
	ID         string
	AgentID    *string
	AuthorType string
	Content    string
	CreatedAt  time.Time
}

type Activity struct {
	Type      string
	Message   string
	CreatedAt time.Time
}

type Agent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type MonitorInfo struct {
	TaskID     string    `json:"taskId"`
	SessionKey string    `json:"sessionKey"`
	AgentID    string    `json:"agentId"`
	StartedAt  time.Time `json:"startedAt"`
}

type Health struct {
	OK       bool   `json:"ok"`
	Version  string `json:"version"`
	Gateway  bool   `json:"gateway"`
	Monitors int    `json:"monitors"`
}

func (c *Client) Health() (*Health, error) {
	var h Health
	if err := c.get("/api/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) ListTasks(status string) ([]Task, error) {
	path := "/api/tasks"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var tasks []Task
	if err := c.get(path, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *Client) GetTask(id string) (*Task, error) {
	var t Task
	if err := c.get("/api/tasks/"+id, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) CreateTask(title, description, priority, missionID string) (*Task, error) {
	req := map[string]string{
		"title":       title,
		"description": description,
		"priority":    priority,
	}
	if missionID != "" {
		req["missionId"] = missionID
	}
	var t Task
	if err := c.do(http.MethodPost, "/api/tasks", req, http.StatusCreated, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) MoveTask(id, status string) (*Task, error) {
	var t Task
	if err := c.do(http.MethodPatch, "/api/tasks/"+id, map[string]string{"status": status}, http.StatusOK, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) DeleteTask(id string) error {
	return c.do(http.MethodDelete, "/api/tasks/"+id, nil, http.StatusOK, nil)
}

func (c *Client) Comments(taskID string) ([]Comment, error) {
	var comments []Comment
	if err := c.get("/api/tasks/"+taskID+"/comments", &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

type DispatchResult struct {
	Task       Task   `json:"task"`
	SessionKey string `json:"sessionKey"`
}

func (c *Client) Dispatch(taskID, agentID, feedback string) (*DispatchResult, error) {
	req := map[string]string{"taskId": taskID, "agentId": agentID}
	if feedback != "" {
		req["feedback"] = feedback
	}
	var res DispatchResult
	if err := c.do(http.MethodPost, "/api/tasks/dispatch", req, http.StatusOK, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

type SweepResult struct {
	Checked   int      `json:"checked"`
	Completed []string `json:"completed"`
}

func (c *Client) CheckCompletion() (*SweepResult, error) {
	var res SweepResult
	if err := c.get("/api/tasks/check-completion", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ListAgents() ([]Agent, error) {
	var agents []Agent
	if err := c.get("/api/agents", &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

func (c *Client) Activity(limit int) ([]Activity, error) {
	path := "/api/activity"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var entries []Activity
	if err := c.get(path, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) Monitors() ([]MonitorInfo, error) {
	var monitors []MonitorInfo
	if err := c.get("/api/monitors", &monitors); err != nil {
		return nil, err
	}
	return monitors, nil
}

func (c *Client) get(path string, out any) error {
	return c.do(http.MethodGet, path, nil, http.StatusOK, out)
}

func (c *Client) do(method, path string, body any, expected int, out any) error {
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.password != "" {
		req.Header.Set("Authorization", "Bearer "+c.password)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, expected); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func checkStatus(resp *http.Response, expected int) error {
	if resp.StatusCode == expected {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, errResp.Error)
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
}
