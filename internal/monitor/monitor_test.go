package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/missionloop/missiond/internal/gateway"
	"github.com/missionloop/missiond/internal/store"
)

// fakeGateway serves a settable transcript per session key.
type fakeGateway struct {
	mu      sync.Mutex
	history map[string][]gateway.ChatMessage
	err     error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{history: make(map[string][]gateway.ChatMessage)}
}

func (f *fakeGateway) ChatHistory(ctx context.Context, sessionKey string, limit int) ([]gateway.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.history[sessionKey], nil
}

func (f *fakeGateway) setHistory(sessionKey string, msgs ...gateway.ChatMessage) {
	f.mu.Lock()
	f.history[sessionKey] = msgs
	f.mu.Unlock()
}

func (f *fakeGateway) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func assistant(text string) gateway.ChatMessage {
	return gateway.ChatMessage{Role: "assistant", Content: gateway.Text(text)}
}

func user(text string) gateway.ChatMessage {
	return gateway.ChatMessage{Role: "user", Content: gateway.Text(text)}
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createInProgressTask(t *testing.T, s *store.Store, id, sessionKey string) {
	t.Helper()
	agentID := "dev-agent"
	task := &store.Task{
		ID:              id,
		Title:           "build the widget",
		Status:          store.StatusInProgress,
		AssignedAgentID: &agentID,
		SessionKey:      &sessionKey,
	}
	if err := s.CreateTask(task); err != nil {
		t.Fatalf("create task: %v", err)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func taskStatus(t *testing.T, s *store.Store, id string) string {
	t.Helper()
	task, err := s.GetTask(id)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task == nil {
		t.Fatalf("task %s missing", id)
	}
	return task.Status
}

func TestAgentResponseMovesTaskToReview(t *testing.T) {
	s := openTestStore(t)
	gw := newFakeGateway()
	const session = "agent:dev:mission-control:dev:task-t1"
	createInProgressTask(t, s, "t1", session)

	// One assistant message already on the session when the watch starts:
	// only messages beyond this baseline count.
	gw.setHistory(session, user("do it"), assistant("starting now"))

	m := New(gw, s, WithPollInterval(10*time.Millisecond), WithTimeout(5*time.Second))
	defer m.StopAll()
	m.Start("t1", session, "dev-agent")

	gw.setHistory(session,
		user("do it"),
		assistant("starting now"),
		assistant("all done, widget built"),
	)

	waitFor(t, 2*time.Second, func() bool {
		return taskStatus(t, s, "t1") == store.StatusReview
	})

	if len(m.Active()) != 0 {
		t.Error("watch still active after completion")
	}

	comments, err := s.ListComments("t1")
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("comments = %d, want agent response + system note", len(comments))
	}
	if comments[0].AuthorType != store.AuthorAgent || comments[0].Content != "all done, widget built" {
		t.Errorf("agent comment = %+v", comments[0])
	}
	if comments[1].AuthorType != store.AuthorSystem {
		t.Errorf("system comment = %+v", comments[1])
	}

	entries, err := s.ListActivity(10)
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	if len(entries) != 1 || entries[0].Type != "task_review" {
		t.Fatalf("activity = %+v", entries)
	}
	if entries[0].Metadata["reason"] != "completed" {
		t.Errorf("reason = %v, want completed", entries[0].Metadata["reason"])
	}
}

func TestTimeoutForcesReview(t *testing.T) {
	s := openTestStore(t)
	gw := newFakeGateway()
	const session = "agent:dev:mission-control:dev:task-t2"
	createInProgressTask(t, s, "t2", session)
	gw.setHistory(session, user("do it"))

	m := New(gw, s, WithPollInterval(10*time.Millisecond), WithTimeout(60*time.Millisecond))
	defer m.StopAll()
	m.Start("t2", session, "dev-agent")

	waitFor(t, 2*time.Second, func() bool {
		return taskStatus(t, s, "t2") == store.StatusReview
	})

	entries, err := s.ListActivity(10)
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("activity = %+v", entries)
	}
	if entries[0].Metadata["reason"] != "timeout" {
		t.Errorf("reason = %v, want timeout", entries[0].Metadata["reason"])
	}

	// No agent response was ever seen, so the only comment is the system
	// note.
	comments, _ := s.ListComments("t2")
	if len(comments) != 1 || comments[0].AuthorType != store.AuthorSystem {
		t.Errorf("comments = %+v", comments)
	}
}

func TestExternalMoveCancelsWatch(t *testing.T) {
	s := openTestStore(t)
	gw := newFakeGateway()
	const session = "agent:dev:mission-control:dev:task-t3"
	createInProgressTask(t, s, "t3", session)
	gw.setHistory(session)

	m := New(gw, s, WithPollInterval(10*time.Millisecond), WithTimeout(5*time.Second))
	defer m.StopAll()
	m.Start("t3", session, "dev-agent")

	// A human drags the card to done while the watch runs.
	done := store.StatusDone
	if _, err := s.UpdateTask("t3", store.TaskPatch{Status: &done}); err != nil {
		t.Fatalf("update: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return len(m.Active()) == 0
	})

	// The watch ended without touching the task or its comments.
	if got := taskStatus(t, s, "t3"); got != store.StatusDone {
		t.Errorf("status = %q, want done", got)
	}
	comments, _ := s.ListComments("t3")
	if len(comments) != 0 {
		t.Errorf("comments = %+v, want none", comments)
	}
}

func TestStartSupersedesExistingWatch(t *testing.T) {
	s := openTestStore(t)
	gw := newFakeGateway()
	const session = "agent:dev:mission-control:dev:task-t4"
	createInProgressTask(t, s, "t4", session)

	m := New(gw, s, WithPollInterval(10*time.Millisecond), WithTimeout(5*time.Second))
	defer m.StopAll()
	m.Start("t4", session, "dev-agent")
	m.Start("t4", session, "dev-agent")

	if got := len(m.Active()); got != 1 {
		t.Errorf("active watches = %d, want 1", got)
	}
}

func TestStopPreventsTransition(t *testing.T) {
	s := openTestStore(t)
	gw := newFakeGateway()
	const session = "agent:dev:mission-control:dev:task-t5"
	createInProgressTask(t, s, "t5", session)
	gw.setHistory(session)

	m := New(gw, s, WithPollInterval(10*time.Millisecond), WithTimeout(100*time.Millisecond))
	defer m.StopAll()
	m.Start("t5", session, "dev-agent")
	m.Stop(session)

	// Even with a response arriving after Stop, nothing may happen.
	gw.setHistory(session, assistant("too late"))
	time.Sleep(200 * time.Millisecond)

	if got := taskStatus(t, s, "t5"); got != store.StatusInProgress {
		t.Errorf("status = %q, want in_progress untouched", got)
	}
	// Stopping an unknown session is a no-op.
	m.Stop("no-such-session")
}

func TestBaselineFetchFailureIsFailOpen(t *testing.T) {
	s := openTestStore(t)
	gw := newFakeGateway()
	const session = "agent:dev:mission-control:dev:task-t6"
	createInProgressTask(t, s, "t6", session)
	gw.setErr(errors.New("gateway down"))

	m := New(gw, s, WithPollInterval(10*time.Millisecond), WithTimeout(5*time.Second))
	defer m.StopAll()
	m.Start("t6", session, "dev-agent")

	if got := len(m.Active()); got != 1 {
		t.Fatalf("active watches = %d, want 1 despite baseline failure", got)
	}

	// Gateway recovers with one assistant message; against the zero
	// baseline that counts as a response.
	gw.setErr(nil)
	gw.setHistory(session, assistant("recovered and done"))

	waitFor(t, 2*time.Second, func() bool {
		return taskStatus(t, s, "t6") == store.StatusReview
	})
}
