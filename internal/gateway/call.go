package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultCallTimeout = 30 * time.Second

type callResult struct {
	payload json.RawMessage
	err     error
}

// pendingCall is one in-flight request. done is buffered so the settling
// side never blocks; connect marks the handshake request, which is the only
// one an {status:"accepted"} payload may resolve.
type pendingCall struct {
	done    chan callResult
	timer   *time.Timer
	connect bool
}

// Call sends a request and waits for its terminal response with the default
// 30s deadline. If the client is not connected it connects first; the
// request frame only goes out after authentication succeeds.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return c.CallTimeout(ctx, method, params, defaultCallTimeout)
}

// CallTimeout is Call with an explicit deadline. The error is ErrRPCTimeout
// (wrapped) when no response arrives in time, or a *RemoteError when the
// gateway reports ok:false.
func (c *Client) CallTimeout(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	if !c.IsConnected() {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}
	if params == nil {
		params = struct{}{}
	}

	id := uuid.NewString()
	p := c.addPending(id, method, timeout, false)
	frame := RequestFrame{Type: FrameRequest, ID: id, Method: method, Params: params}
	if err := c.writeFrame(ctx, frame); err != nil {
		c.removePending(id)
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.removePending(id)
		return nil, ctx.Err()
	case r := <-p.done:
		return r.payload, r.err
	}
}

func (c *Client) addPending(id, method string, timeout time.Duration, connect bool) *pendingCall {
	p := &pendingCall{done: make(chan callResult, 1), connect: connect}
	c.pendingMu.Lock()
	p.timer = time.AfterFunc(timeout, func() {
		if c.removePending(id) != nil {
			p.done <- callResult{err: fmt.Errorf("%w: %s", ErrRPCTimeout, method)}
		}
	})
	c.pending[id] = p
	c.pendingMu.Unlock()
	return p
}

// removePending is the only removal path for the pending table. Response,
// deadline, and caller cancellation all race through it, so exactly one of
// them settles any given call; the losers see nil and do nothing.
func (c *Client) removePending(id string) *pendingCall {
	c.pendingMu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
		p.timer.Stop()
	}
	c.pendingMu.Unlock()
	if !ok {
		return nil
	}
	return p
}

func (c *Client) resolveResponse(res ResponseFrame) {
	c.pendingMu.Lock()
	p, ok := c.pending[res.ID]
	if ok && res.OK && !p.connect && isAcceptedAck(res.Payload) {
		// Provisional ack for a long-running operation (e.g. chat.send);
		// leave the request pending for its real terminal response.
		c.pendingMu.Unlock()
		return
	}
	if ok {
		delete(c.pending, res.ID)
		p.timer.Stop()
	}
	c.pendingMu.Unlock()
	if !ok {
		return
	}

	if res.OK {
		p.done <- callResult{payload: res.Payload}
	} else {
		p.done <- callResult{err: remoteError(res.Error)}
	}
}

// PendingCalls reports the number of in-flight requests. Used by status
// reporting and tests.
func (c *Client) PendingCalls() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return len(c.pending)
}
