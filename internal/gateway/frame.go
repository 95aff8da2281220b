package gateway

import "encoding/json"

// The gateway speaks three frame kinds over one WebSocket. Every frame is a
// single JSON message with a "type" field used for routing.
const (
	FrameRequest  = "req"
	FrameResponse = "res"
	FrameEvent    = "event"
)

// EventChallenge is sent by the gateway immediately after the socket opens.
// The client must answer it with a "connect" request before any other call.
const EventChallenge = "connect.challenge"

// Envelope carries just enough of a frame to route it.
type Envelope struct {
	Type string `json:"type"`
}

// RequestFrame is a client → gateway RPC request.
type RequestFrame struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// ResponseFrame is the gateway's reply to a request, matched by ID.
type ResponseFrame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorBody      `json:"error,omitempty"`
}

// ErrorBody is the error detail on a failed response.
type ErrorBody struct {
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// EventFrame is an unsolicited gateway → client notification.
type EventFrame struct {
	Type    string          `json:"type"`
	Event   string          `json:"event"`
	Seq     int64           `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// challengePayload is the body of a connect.challenge event.
type challengePayload struct {
	Nonce string `json:"nonce,omitempty"`
}

// connectParams is the handshake request body. Field names and shapes are
// fixed by the gateway protocol; changing them breaks the handshake.
type connectParams struct {
	MinProtocol int           `json:"minProtocol"`
	MaxProtocol int           `json:"maxProtocol"`
	Client      connectClient `json:"client"`
	Caps        []string      `json:"caps"`
	Auth        *connectAuth  `json:"auth,omitempty"`
	Role        string        `json:"role"`
	Scopes      []string      `json:"scopes"`
}

type connectClient struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Version     string `json:"version"`
	Platform    string `json:"platform"`
	Mode        string `json:"mode"`
}

type connectAuth struct {
	Token string `json:"token"`
}

// isAcceptedAck reports whether a response payload is the gateway's
// provisional {status:"accepted"} acknowledgment for a long-running
// operation. Such a response must leave the request pending; the real
// terminal response arrives later under the same id.
func isAcceptedAck(payload json.RawMessage) bool {
	if len(payload) == 0 {
		return false
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return false
	}
	return body.Status == "accepted"
}
