package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// newGatewayServer runs handler against each accepted connection. The
// handler owns the connection for its lifetime.
func newGatewayServer(t *testing.T, handler func(ctx context.Context, conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Logf("accept: %v", err)
			return
		}
		handler(r.Context(), conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func sendFrame(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func readRequest(ctx context.Context, conn *websocket.Conn) (reqFrame, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return reqFrame{}, err
	}
	var req reqFrame
	err = json.Unmarshal(data, &req)
	return req, err
}

// reqFrame is the server-side view of a client request.
type reqFrame struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// acceptHandshake plays the gateway's side of the challenge/connect
// exchange and returns the decoded connect params. It runs on the server
// goroutine, so failures are reported with Errorf rather than Fatalf.
func acceptHandshake(ctx context.Context, t *testing.T, conn *websocket.Conn) connectParams {
	t.Helper()
	err := sendFrame(ctx, conn, map[string]any{
		"type":    "event",
		"event":   EventChallenge,
		"payload": map[string]string{"nonce": "abc"},
	})
	if err != nil {
		t.Errorf("send challenge: %v", err)
		return connectParams{}
	}
	req, err := readRequest(ctx, conn)
	if err != nil {
		t.Errorf("read connect: %v", err)
		return connectParams{}
	}
	if req.Method != "connect" {
		t.Errorf("first request method = %q, want connect", req.Method)
	}
	var params connectParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		t.Errorf("decode connect params: %v", err)
	}
	err = sendFrame(ctx, conn, map[string]any{
		"type":    "res",
		"id":      req.ID,
		"ok":      true,
		"payload": map[string]string{"status": "accepted"},
	})
	if err != nil {
		t.Errorf("send connect response: %v", err)
	}
	return params
}

func TestConnectHandshake(t *testing.T) {
	paramsCh := make(chan connectParams, 1)
	srv := newGatewayServer(t, func(ctx context.Context, conn *websocket.Conn) {
		paramsCh <- acceptHandshake(ctx, t, conn)
		// Hold the connection open until the test ends.
		conn.Read(ctx)
	})

	c := New(wsURL(srv), "secret-token", "1.0")
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !c.IsConnected() {
		t.Error("IsConnected = false after successful handshake")
	}

	params := <-paramsCh
	if params.MinProtocol != 3 || params.MaxProtocol != 3 {
		t.Errorf("protocol range = %d-%d, want 3-3", params.MinProtocol, params.MaxProtocol)
	}
	if params.Auth == nil || params.Auth.Token != "secret-token" {
		t.Error("connect params missing auth token")
	}
	if params.Role != "operator" {
		t.Errorf("role = %q, want operator", params.Role)
	}
}

func TestConnectAuthRejected(t *testing.T) {
	srv := newGatewayServer(t, func(ctx context.Context, conn *websocket.Conn) {
		sendFrame(ctx, conn, map[string]any{
			"type":  "event",
			"event": EventChallenge,
		})
		req, err := readRequest(ctx, conn)
		if err != nil {
			return
		}
		sendFrame(ctx, conn, map[string]any{
			"type":  "res",
			"id":    req.ID,
			"ok":    false,
			"error": map[string]any{"message": "invalid token", "code": 401},
		})
		conn.Read(ctx)
	})

	c := New(wsURL(srv), "wrong", "1.0")
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.Connect(ctx)
	if !errors.Is(err, ErrAuthRejected) {
		t.Fatalf("Connect error = %v, want ErrAuthRejected", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected = true after rejected handshake")
	}
}

func TestCallCorrelation(t *testing.T) {
	srv := newGatewayServer(t, func(ctx context.Context, conn *websocket.Conn) {
		acceptHandshake(ctx, t, conn)

		// Collect both requests, then answer them in reverse order with
		// payloads derived from their methods.
		first, err := readRequest(ctx, conn)
		if err != nil {
			return
		}
		second, err := readRequest(ctx, conn)
		if err != nil {
			return
		}
		for _, req := range []reqFrame{second, first} {
			sendFrame(ctx, conn, map[string]any{
				"type":    "res",
				"id":      req.ID,
				"ok":      true,
				"payload": map[string]string{"method": req.Method},
			})
		}
		conn.Read(ctx)
	})

	c := New(wsURL(srv), "", "1.0")
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	type result struct {
		method  string
		payload json.RawMessage
		err     error
	}
	results := make(chan result, 2)
	for _, method := range []string{"first.op", "second.op"} {
		method := method
		go func() {
			payload, err := c.Call(ctx, method, nil)
			results <- result{method, payload, err}
		}()
		// Keep request ordering deterministic for the server side.
		time.Sleep(50 * time.Millisecond)
	}

	for i := 0; i < 2; i++ {
		r := <-results
		if r.err != nil {
			t.Fatalf("Call(%s): %v", r.method, r.err)
		}
		var body struct {
			Method string `json:"method"`
		}
		if err := json.Unmarshal(r.payload, &body); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if body.Method != r.method {
			t.Errorf("call %s got payload for %s", r.method, body.Method)
		}
	}
	if n := c.PendingCalls(); n != 0 {
		t.Errorf("PendingCalls = %d, want 0", n)
	}
}

func TestCallAcceptedAckLeavesPending(t *testing.T) {
	srv := newGatewayServer(t, func(ctx context.Context, conn *websocket.Conn) {
		acceptHandshake(ctx, t, conn)
		req, err := readRequest(ctx, conn)
		if err != nil {
			return
		}
		// Provisional ack first, terminal response after a delay.
		sendFrame(ctx, conn, map[string]any{
			"type":    "res",
			"id":      req.ID,
			"ok":      true,
			"payload": map[string]string{"status": "accepted"},
		})
		time.Sleep(100 * time.Millisecond)
		sendFrame(ctx, conn, map[string]any{
			"type":    "res",
			"id":      req.ID,
			"ok":      true,
			"payload": map[string]string{"status": "done", "text": "final answer"},
		})
		conn.Read(ctx)
	})

	c := New(wsURL(srv), "", "1.0")
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	payload, err := c.Call(ctx, "chat.send", map[string]string{"message": "hi"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	var body struct {
		Status string `json:"status"`
		Text   string `json:"text"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if body.Status != "done" || body.Text != "final answer" {
		t.Errorf("payload = %+v, want the terminal response", body)
	}
	if n := c.PendingCalls(); n != 0 {
		t.Errorf("PendingCalls = %d, want 0", n)
	}
}

func TestCallTimeout(t *testing.T) {
	srv := newGatewayServer(t, func(ctx context.Context, conn *websocket.Conn) {
		acceptHandshake(ctx, t, conn)
		// Swallow requests without answering.
		for {
			if _, err := readRequest(ctx, conn); err != nil {
				return
			}
		}
	})

	c := New(wsURL(srv), "", "1.0")
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	_, err := c.CallTimeout(ctx, "slow.op", nil, 100*time.Millisecond)
	if !errors.Is(err, ErrRPCTimeout) {
		t.Fatalf("CallTimeout error = %v, want ErrRPCTimeout", err)
	}
	if n := c.PendingCalls(); n != 0 {
		t.Errorf("PendingCalls = %d after timeout, want 0", n)
	}
	// The connection survives an RPC timeout.
	if !c.IsConnected() {
		t.Error("IsConnected = false after call timeout")
	}
}

func TestCallRemoteError(t *testing.T) {
	srv := newGatewayServer(t, func(ctx context.Context, conn *websocket.Conn) {
		acceptHandshake(ctx, t, conn)
		req, err := readRequest(ctx, conn)
		if err != nil {
			return
		}
		sendFrame(ctx, conn, map[string]any{
			"type":  "res",
			"id":    req.ID,
			"ok":    false,
			"error": map[string]any{"message": "no such agent", "code": 404},
		})
		conn.Read(ctx)
	})

	c := New(wsURL(srv), "", "1.0")
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := c.Call(ctx, "agents.get", map[string]string{"id": "nope"})
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("Call error = %v, want *RemoteError", err)
	}
	if remote.Message != "no such agent" || remote.Code != 404 {
		t.Errorf("RemoteError = %+v", remote)
	}
}

func TestCallConnectsFirst(t *testing.T) {
	srv := newGatewayServer(t, func(ctx context.Context, conn *websocket.Conn) {
		acceptHandshake(ctx, t, conn)
		req, err := readRequest(ctx, conn)
		if err != nil {
			return
		}
		sendFrame(ctx, conn, map[string]any{
			"type":    "res",
			"id":      req.ID,
			"ok":      true,
			"payload": []any{},
		})
		conn.Read(ctx)
	})

	c := New(wsURL(srv), "", "1.0")
	defer c.Close()

	// No explicit Connect: the first call has to drive the handshake.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.Call(ctx, "agents.list", nil); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !c.IsConnected() {
		t.Error("IsConnected = false after implicit connect")
	}
}

func TestCloseRejectsFurtherUse(t *testing.T) {
	c := New("ws://127.0.0.1:0", "", "1.0")
	c.Close()
	if err := c.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Connect after Close = %v, want ErrClosed", err)
	}
}
