package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const (
	handshakeTimeout = 10 * time.Second
	reconnectDelay   = 3 * time.Second
	writeTimeout     = 10 * time.Second
	maxFrameBytes    = 25 * 1024 * 1024

	minProtocol = 3
	maxProtocol = 3
)

// Client is a persistent RPC client for the agent gateway. It owns one
// logical connection: it dials the WebSocket, drives the challenge/connect
// handshake, correlates responses to requests by id, fans events out to
// subscribers, and reconnects on its own after a drop.
//
// Construct one per process and pass it down explicitly; there is no
// package-level instance.
type Client struct {
	url     string
	token   string
	version string

	mu            sync.Mutex
	conn          *websocket.Conn
	connected     bool
	authenticated bool
	closed        bool
	attempt       *connectAttempt
	handshake     *time.Timer
	reconnect     *time.Timer

	pendingMu sync.Mutex
	pending   map[string]*pendingCall

	subsMu  sync.Mutex
	subs    map[string]map[uint64]EventHandler
	nextSub uint64
}

// connectAttempt is one in-flight handshake shared by every Connect caller
// that arrives while it runs.
type connectAttempt struct {
	done chan struct{}
	err  error
}

// New creates a client for the gateway at url. token may be empty when the
// gateway runs without auth. The client does not dial until Connect or the
// first Call.
func New(url, token, version string) *Client {
	if version == "" {
		version = "dev"
	}
	return &Client{
		url:     url,
		token:   token,
		version: version,
		pending: make(map[string]*pendingCall),
		subs:    make(map[string]map[uint64]EventHandler),
	}
}

// Connect dials the gateway and blocks until the handshake authenticates or
// fails. Calling it while already authenticated is a no-op; concurrent
// callers share one handshake.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.authenticated && c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	if c.attempt == nil {
		c.attempt = &connectAttempt{done: make(chan struct{})}
		go c.dial()
	}
	a := c.attempt
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-a.done:
		return a.err
	}
}

// IsConnected reports whether the transport is open and the handshake has
// completed.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.connected && c.authenticated
}

// Close tears down the connection and cancels any scheduled reconnection.
// The client cannot be reused afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	if c.handshake != nil {
		c.handshake.Stop()
		c.handshake = nil
	}
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.authenticated = false
	c.mu.Unlock()

	c.finishConnect(ErrClosed)
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "shutting down")
	}
	return nil
}

func (c *Client) dial() {
	ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		c.finishConnect(fmt.Errorf("dial gateway: %w", err))
		c.scheduleReconnect()
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	c.conn = conn
	c.connected = true
	// The gateway must deliver connect.challenge and accept our connect
	// request inside this window, or the socket is torn down.
	c.handshake = time.AfterFunc(handshakeTimeout, func() { c.abortHandshake(conn) })
	c.mu.Unlock()

	go c.readLoop(conn)
}

func (c *Client) abortHandshake(conn *websocket.Conn) {
	c.mu.Lock()
	stale := c.conn != conn || c.authenticated
	c.mu.Unlock()
	if stale {
		return
	}
	c.finishConnect(ErrHandshakeTimeout)
	conn.Close(websocket.StatusPolicyViolation, "handshake timeout")
}

// finishConnect settles the current connect attempt exactly once. err == nil
// marks the client authenticated.
func (c *Client) finishConnect(err error) {
	c.mu.Lock()
	a := c.attempt
	c.attempt = nil
	if c.handshake != nil {
		c.handshake.Stop()
		c.handshake = nil
	}
	if err == nil {
		c.authenticated = true
	}
	c.mu.Unlock()

	if a != nil {
		a.err = err
		close(a.done)
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			c.handleDisconnect(conn, err)
			return
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleDisconnect(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// A stale read loop from a previous socket.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connected = false
	c.authenticated = false
	closed := c.closed
	c.mu.Unlock()

	// In-flight calls are left to their own deadlines; connection loss is
	// recovered here, not surfaced to idle callers.
	c.finishConnect(fmt.Errorf("gateway connection lost: %w", err))
	if !closed {
		slog.Warn("gateway disconnected", "err", err)
		c.scheduleReconnect()
	}
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.reconnect != nil {
		c.reconnect.Stop()
	}
	c.reconnect = time.AfterFunc(reconnectDelay, func() {
		c.mu.Lock()
		c.reconnect = nil
		c.mu.Unlock()
		// Nobody waits on a scheduled retry; a failed attempt reschedules
		// itself through the same paths as the original drop.
		if err := c.Connect(context.Background()); err != nil && !errors.Is(err, ErrClosed) {
			slog.Debug("gateway reconnect failed", "err", err)
		}
	})
}

func (c *Client) handleFrame(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		slog.Debug("ignoring unparseable gateway frame", "err", err)
		return
	}
	switch env.Type {
	case FrameEvent:
		var ev EventFrame
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Debug("bad event frame", "err", err)
			return
		}
		if ev.Event == EventChallenge {
			var ch challengePayload
			if len(ev.Payload) > 0 {
				_ = json.Unmarshal(ev.Payload, &ch)
			}
			c.sendConnectRequest(ch.Nonce)
			return
		}
		c.dispatchEvent(ev)
	case FrameResponse:
		var res ResponseFrame
		if err := json.Unmarshal(data, &res); err != nil {
			slog.Debug("bad response frame", "err", err)
			return
		}
		c.resolveResponse(res)
	}
}

// sendConnectRequest answers a connect.challenge. The gateway's response to
// this request is the authentication decision.
func (c *Client) sendConnectRequest(nonce string) {
	params := connectParams{
		MinProtocol: minProtocol,
		MaxProtocol: maxProtocol,
		Client: connectClient{
			ID:          "mission-control",
			DisplayName: "Mission Control Dashboard",
			Version:     c.version,
			Platform:    runtime.GOOS,
			Mode:        "backend",
		},
		Caps:   []string{},
		Role:   "operator",
		Scopes: []string{"operator.admin"},
	}
	if c.token != "" {
		params.Auth = &connectAuth{Token: c.token}
	}
	if nonce != "" {
		slog.Debug("gateway challenge received", "nonce", nonce)
	}

	id := uuid.NewString()
	p := c.addPending(id, "connect", handshakeTimeout, true)

	go func() {
		r := <-p.done
		switch {
		case r.err == nil:
			c.finishConnect(nil)
			slog.Info("gateway connected", "url", c.url)
		case errors.Is(r.err, ErrRPCTimeout):
			c.finishConnect(ErrHandshakeTimeout)
		default:
			c.finishConnect(fmt.Errorf("%w: %v", ErrAuthRejected, r.err))
			c.closeConn(websocket.StatusPolicyViolation, "auth rejected")
		}
	}()

	frame := RequestFrame{Type: FrameRequest, ID: id, Method: "connect", Params: params}
	if err := c.writeFrame(context.Background(), frame); err != nil {
		if p := c.removePending(id); p != nil {
			p.done <- callResult{err: fmt.Errorf("send connect: %w", err)}
		}
	}
}

func (c *Client) closeConn(code websocket.StatusCode, reason string) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close(code, reason)
	}
}

func (c *Client) writeFrame(ctx context.Context, v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}
