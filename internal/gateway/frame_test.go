package gateway

import (
	"encoding/json"
	"testing"
)

func TestIsAcceptedAck(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    bool
	}{
		{"accepted", `{"status":"accepted"}`, true},
		{"accepted with extras", `{"status":"accepted","runId":"r1"}`, true},
		{"other status", `{"status":"done"}`, false},
		{"no status", `{"result":42}`, false},
		{"empty payload", ``, false},
		{"non-object", `"accepted"`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := isAcceptedAck(json.RawMessage(tc.payload))
			if got != tc.want {
				t.Errorf("isAcceptedAck(%s) = %v, want %v", tc.payload, got, tc.want)
			}
		})
	}
}

func TestMessageContentString(t *testing.T) {
	var m ChatMessage
	if err := json.Unmarshal([]byte(`{"role":"assistant","content":"done, see the PR"}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := m.Content.Text(); got != "done, see the PR" {
		t.Errorf("Text() = %q", got)
	}
}

func TestMessageContentBlocks(t *testing.T) {
	raw := `{"role":"assistant","content":[{"type":"text","text":"part one"},{"type":"tool_use","id":"t1"},{"type":"text","text":"part two"}]}`
	var m ChatMessage
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := m.Content.Text(); got != "part one\npart two" {
		t.Errorf("Text() = %q", got)
	}
}

func TestMessageContentUnknownShape(t *testing.T) {
	var m ChatMessage
	if err := json.Unmarshal([]byte(`{"role":"assistant","content":{"weird":true}}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := m.Content.Text(); got == "" {
		t.Error("unknown content shape should not decode to empty text")
	}
}

func TestAssistantMessages(t *testing.T) {
	history := []ChatMessage{
		{Role: "user", Content: Text("do the thing")},
		{Role: "assistant", Content: Text("on it")},
		{Role: "toolResult", Content: Text("ok")},
		{Role: "assistant", Content: Text("done")},
	}
	got := AssistantMessages(history)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[1].Content.Text() != "done" {
		t.Errorf("last assistant message = %q, want %q", got[1].Content.Text(), "done")
	}
}

func TestRemoteErrorFormat(t *testing.T) {
	err := remoteError(&ErrorBody{Message: "agent not found", Code: 404})
	want := "gateway error 404: agent not found"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	err = remoteError(nil)
	if err.Error() == "" {
		t.Error("nil body should still produce a message")
	}
}
