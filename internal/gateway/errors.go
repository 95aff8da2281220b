package gateway

import (
	"errors"
	"fmt"
)

// ErrAuthRejected is returned from Connect when the gateway refuses the
// supplied credentials.
var ErrAuthRejected = errors.New("gateway rejected authentication")

// ErrHandshakeTimeout is returned from Connect when the gateway does not
// complete the challenge/connect exchange within the handshake deadline.
var ErrHandshakeTimeout = errors.New("gateway handshake timeout")

// ErrRPCTimeout is wrapped into the error returned by Call when no response
// arrives within the call deadline. Other in-flight calls are unaffected.
var ErrRPCTimeout = errors.New("rpc timeout")

// ErrClosed is returned once Close has been called on the client.
var ErrClosed = errors.New("gateway client closed")

// RemoteError is a gateway-reported failure (ok:false response), surfaced
// verbatim to the caller of the failed request.
type RemoteError struct {
	Message string
	Code    int
}

func (e *RemoteError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("gateway error %d: %s", e.Code, e.Message)
	}
	return "gateway error: " + e.Message
}

func remoteError(body *ErrorBody) error {
	if body == nil || body.Message == "" {
		return &RemoteError{Message: "unknown gateway error", Code: codeOf(body)}
	}
	return &RemoteError{Message: body.Message, Code: body.Code}
}

func codeOf(body *ErrorBody) int {
	if body == nil {
		return 0
	}
	return body.Code
}
