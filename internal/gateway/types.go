package gateway

import (
	"encoding/json"
	"strings"
)

// Agent describes one agent hosted by the gateway.
type Agent struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	Model      string `json:"model,omitempty"`
	Status     string `json:"status,omitempty"`
	SessionKey string `json:"sessionKey,omitempty"`
}

// Session describes one conversation session on the gateway.
type Session struct {
	Key          string `json:"key"`
	AgentID      string `json:"agentId,omitempty"`
	Model        string `json:"model,omitempty"`
	Provider     string `json:"provider,omitempty"`
	InputTokens  int64  `json:"inputTokens,omitempty"`
	OutputTokens int64  `json:"outputTokens,omitempty"`
	TotalTokens  int64  `json:"totalTokens,omitempty"`
	LastActivity string `json:"lastActivity,omitempty"`
}

// CronJob describes one scheduled job managed by the gateway.
type CronJob struct {
	ID       string `json:"id"`
	AgentID  string `json:"agentId,omitempty"`
	Schedule string `json:"schedule"`
	Enabled  bool   `json:"enabled"`
	LastRun  string `json:"lastRun,omitempty"`
	NextRun  string `json:"nextRun,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
}

// ChatMessage is one transcript entry in a session's history.
type ChatMessage struct {
	Role      string         `json:"role"`
	Content   MessageContent `json:"content"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// MessageContent is a chat message body. The gateway returns it either as a
// plain string or as an array of content blocks in the model-API style
// ([{type:"text",text:"..."}, ...]); both decode to their text.
type MessageContent struct {
	text string
}

func Text(s string) MessageContent { return MessageContent{text: s} }

func (c MessageContent) Text() string { return c.text }

func (c MessageContent) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.text)
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.text = s
		return nil
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &blocks); err == nil {
		var parts []string
		for _, b := range blocks {
			if b.Type == "text" && b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		c.text = strings.Join(parts, "\n")
		return nil
	}
	// Unknown object shape: keep the raw JSON so nothing is silently lost.
	c.text = string(data)
	return nil
}

// AssistantMessages filters a transcript down to assistant-authored entries.
func AssistantMessages(history []ChatMessage) []ChatMessage {
	var out []ChatMessage
	for _, m := range history {
		if m.Role == "assistant" {
			out = append(out, m)
		}
	}
	return out
}
