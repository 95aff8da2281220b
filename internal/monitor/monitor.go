package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/missionloop/missiond/internal/gateway"
	"github.com/missionloop/missiond/internal/store"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultTimeout      = 5 * time.Minute
)

// HistoryFetcher is the slice of the gateway client the monitor needs.
type HistoryFetcher interface {
	ChatHistory(ctx context.Context, sessionKey string, limit int) ([]gateway.ChatMessage, error)
}

// TaskStore is the slice of the task store the monitor needs.
type TaskStore interface {
	GetTask(id string) (*store.Task, error)
	UpdateTaskStatusIf(id, from, to string) (bool, error)
	AddComment(c *store.Comment) error
	LogActivity(a *store.Activity) error
}

// Monitor watches dispatched tasks for agent completion. One watch per
// session key polls the session transcript; the first of {new assistant
// message, absolute timeout} moves the task to review, exactly once. A
// watch whose task leaves in_progress out-of-band is cancelled with no
// side effects.
type Monitor struct {
	gw    HistoryFetcher
	tasks TaskStore

	poll    time.Duration
	timeout time.Duration

	mu      sync.Mutex
	watches map[string]*watch // session key → active watch
}

// watch is the per-session state. stop is closed exactly once, always under
// Monitor.mu, when the watch is detached from the table.
type watch struct {
	taskID     string
	sessionKey string
	agentID    string
	startedAt  time.Time
	baseline   int
	stop       chan struct{}
}

// ActiveWatch is the read-only view exposed to the API.
type ActiveWatch struct {
	TaskID     string    `json:"taskId"`
	SessionKey string    `json:"sessionKey"`
	AgentID    string    `json:"agentId"`
	StartedAt  time.Time `json:"startedAt"`
}

// Option tweaks monitor timing; used by tests and config.
type Option func(*Monitor)

func WithPollInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.poll = d
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

func New(gw HistoryFetcher, tasks TaskStore, opts ...Option) *Monitor {
	m := &Monitor{
		gw:      gw,
		tasks:   tasks,
		poll:    defaultPollInterval,
		timeout: defaultTimeout,
		watches: make(map[string]*watch),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins watching a dispatched task. A watch already running for the
// same session key is superseded (cancelled without side effects) before
// the new one starts. The initial history fetch establishes the assistant
// message baseline; if it fails the baseline is zero and monitoring begins
// anyway.
func (m *Monitor) Start(taskID, sessionKey, agentID string) {
	m.Stop(sessionKey)

	baseline := 0
	ctx, cancel := context.WithTimeout(context.Background(), m.poll)
	history, err := m.gw.ChatHistory(ctx, sessionKey, 0)
	cancel()
	if err != nil {
		slog.Warn("monitor baseline fetch failed, starting from zero",
			"session", sessionKey, "err", err)
	} else {
		baseline = len(gateway.AssistantMessages(history))
	}

	w := &watch{
		taskID:     taskID,
		sessionKey: sessionKey,
		agentID:    agentID,
		startedAt:  time.Now(),
		baseline:   baseline,
		stop:       make(chan struct{}),
	}
	m.mu.Lock()
	m.watches[sessionKey] = w
	m.mu.Unlock()

	go m.run(w)
	slog.Info("monitoring started", "task", taskID, "session", sessionKey,
		"agent", agentID, "baseline", baseline)
}

// Stop cancels the watch for a session key. Safe to call when none exists.
func (m *Monitor) Stop(sessionKey string) {
	m.mu.Lock()
	w, ok := m.watches[sessionKey]
	if ok {
		delete(m.watches, sessionKey)
		close(w.stop)
	}
	m.mu.Unlock()
	if ok {
		slog.Info("monitoring stopped", "session", sessionKey)
	}
}

// StopAll cancels every watch; called on daemon shutdown.
func (m *Monitor) StopAll() {
	m.mu.Lock()
	for key, w := range m.watches {
		delete(m.watches, key)
		close(w.stop)
	}
	m.mu.Unlock()
}

// Active lists the currently running watches.
func (m *Monitor) Active() []ActiveWatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ActiveWatch, 0, len(m.watches))
	for _, w := range m.watches {
		out = append(out, ActiveWatch{
			TaskID:     w.taskID,
			SessionKey: w.sessionKey,
			AgentID:    w.agentID,
			StartedAt:  w.startedAt,
		})
	}
	return out
}

// detach removes w from the table if it is still the active watch for its
// session. The completion and timeout paths both go through it before any
// side effect, which is what makes the transition run at most once.
func (m *Monitor) detach(w *watch) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.watches[w.sessionKey]; ok && cur == w {
		delete(m.watches, w.sessionKey)
		close(w.stop)
		return true
	}
	return false
}

func (m *Monitor) run(w *watch) {
	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()
	deadline := time.NewTimer(m.timeout)
	defer deadline.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			if m.pollOnce(w) {
				return
			}
		case <-deadline.C:
			slog.Info("monitor timeout, forcing review", "task", w.taskID, "session", w.sessionKey)
			m.forceComplete(w)
			return
		}
	}
}

// pollOnce checks one tick; it reports whether the watch is finished.
// History fetch failures are transient and retried next tick; a task that
// is missing or no longer in_progress permanently ends the watch with no
// side effects.
func (m *Monitor) pollOnce(w *watch) bool {
	task, err := m.tasks.GetTask(w.taskID)
	if err != nil {
		slog.Warn("monitor poll: task lookup failed", "task", w.taskID, "err", err)
		return false
	}
	if task == nil || task.Status != store.StatusInProgress {
		// Moved by a human or deleted; not ours anymore.
		m.detach(w)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.poll)
	history, err := m.gw.ChatHistory(ctx, w.sessionKey, 0)
	cancel()
	if err != nil {
		slog.Warn("monitor poll: history fetch failed", "session", w.sessionKey, "err", err)
		return false
	}

	msgs := gateway.AssistantMessages(history)
	if len(msgs) > w.baseline {
		slog.Info("agent response detected", "task", w.taskID,
			"messages", len(msgs), "baseline", w.baseline)
		m.complete(w, msgs[len(msgs)-1].Content.Text())
		return true
	}
	return false
}

// complete moves the task to review after a detected agent response.
func (m *Monitor) complete(w *watch, responseText string) {
	if !m.detach(w) {
		return
	}
	m.finish(w, responseText, false)
}

// forceComplete is the timeout path: a best-effort final history fetch
// picks up a late response, then the task is moved to review regardless.
func (m *Monitor) forceComplete(w *watch) {
	responseText := ""
	ctx, cancel := context.WithTimeout(context.Background(), m.poll)
	if history, err := m.gw.ChatHistory(ctx, w.sessionKey, 0); err == nil {
		if msgs := gateway.AssistantMessages(history); len(msgs) > w.baseline {
			responseText = msgs[len(msgs)-1].Content.Text()
		}
	}
	cancel()

	if !m.detach(w) {
		return
	}
	m.finish(w, responseText, true)
}

// finish is the shared terminal transition. The watch is already detached;
// the conditional status update is the commit point guarding against
// concurrent human moves.
func (m *Monitor) finish(w *watch, responseText string, timedOut bool) {
	task, err := m.tasks.GetTask(w.taskID)
	if err != nil || task == nil || task.Status != store.StatusInProgress {
		// Another path already moved it; nothing to do.
		return
	}

	if responseText != "" {
		agentID := w.agentID
		if err := m.tasks.AddComment(&store.Comment{
			TaskID:     w.taskID,
			AgentID:    &agentID,
			AuthorType: store.AuthorAgent,
			Content:    responseText,
		}); err != nil {
			slog.Error("monitor: add agent comment failed", "task", w.taskID, "err", err)
		}
	}

	moved, err := m.tasks.UpdateTaskStatusIf(w.taskID, store.StatusInProgress, store.StatusReview)
	if err != nil {
		slog.Error("monitor: review transition failed", "task", w.taskID, "err", err)
		return
	}
	if !moved {
		return
	}

	elapsed := time.Since(w.startedAt).Round(time.Second)
	agentID := w.agentID
	taskID := w.taskID

	var systemNote, activityMsg string
	if timedOut {
		systemNote = fmt.Sprintf("Monitor timeout reached after %s. Task moved to review.", elapsed)
		activityMsg = fmt.Sprintf("Task %q moved to review (timeout)", task.Title)
	} else {
		systemNote = fmt.Sprintf("Agent completed in %s. Task moved to review.", elapsed)
		activityMsg = fmt.Sprintf("Agent %q completed work on %q in %s, moved to review", agentID, task.Title, elapsed)
	}

	if err := m.tasks.AddComment(&store.Comment{
		TaskID:     taskID,
		AuthorType: store.AuthorSystem,
		Content:    systemNote,
	}); err != nil {
		slog.Error("monitor: add system comment failed", "task", taskID, "err", err)
	}

	reason := "completed"
	if timedOut {
		reason = "timeout"
	}
	if err := m.tasks.LogActivity(&store.Activity{
		Type:    "task_review",
		TaskID:  &taskID,
		AgentID: &agentID,
		Message: activityMsg,
		Metadata: map[string]any{
			"durationSeconds": int(elapsed.Seconds()),
			"sessionKey":      w.sessionKey,
			"reason":          reason,
		},
	}); err != nil {
		slog.Error("monitor: log activity failed", "task", taskID, "err", err)
	}

	slog.Info("task moved to review", "task", taskID, "reason", reason, "elapsed", elapsed)
}
