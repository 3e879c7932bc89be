package upstream

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Session.Start and Session.Request, matching the taxonomy
// the downstream listener maps onto JSON-RPC -32000..-32099 proxy-internal error codes.
var (
	ErrHandshakeFailed = errors.New("handshake failed")
	ErrTimeout         = errors.New("request timed out")
	ErrSessionDown     = errors.New("session down")
)

// UpstreamError wraps a JSON-RPC error object returned by the upstream itself, as opposed to
// a proxy-internal failure.
type UpstreamError struct {
	Code    int
	Message string
	Data    []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error %d: %s", e.Code, e.Message)
}
