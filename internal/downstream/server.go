// Package downstream binds the Router to a downstream JSON-RPC peer, exposed simultaneously
// over stdio and streamable HTTP. It owns the MCP method dispatch table, the local
// `initialize` handshake, JSON-RPC grammar validation, and the /metrics exporter.
package downstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"atrax/internal/config"
	"atrax/internal/namespace"
	"atrax/internal/registry"
	"atrax/internal/transport"
	"atrax/internal/upstream"
	"atrax/pkg/logging"
)

// JSON-RPC 2.0 error codes, per the distilled spec's error code table. The -32000..-32099
// range is reserved for proxy-internal failures (Timeout, SessionDown, TransportUnavailable),
// each carrying structured `data` naming the upstream session involved.
const (
	codeParseError           = -32700
	codeInvalidRequest       = -32600
	codeMethodNotFound       = -32601
	codeInvalidParams        = -32602
	codeInternalError        = -32603
	codeUpstreamTimeout      = -32000
	codeSessionDown          = -32001
	codeTransportUnavailable = -32002
)

// errMethodNotFound is the sentinel for a downstream call naming a top-level RPC method atrax
// doesn't implement; errInvalidParams marks a params payload that failed to decode.
var (
	errMethodNotFound = errors.New("method not found")
	errInvalidParams  = errors.New("invalid params")
)

// Server binds one Router to downstream peers. It is transport-agnostic: Serve callers (the
// stdio and HTTP listeners) call HandleMessage for every inbound frame and get back the
// response to write, or nil for a notification that produces no reply.
type Server struct {
	router *registry.Router
	cfg    *config.Config
}

// New constructs a Server bound to router.
func New(router *registry.Router, cfg *config.Config) *Server {
	return &Server{router: router, cfg: cfg}
}

// HandleMessage validates and dispatches one inbound JSON-RPC message, returning the
// response to send back (nil for notifications, which never receive a reply).
func (s *Server) HandleMessage(ctx context.Context, msg *transport.Message) *transport.Message {
	if msg.JSONRPC != "2.0" {
		return errorResponse(msg.ID, codeInvalidRequest, "invalid request: jsonrpc must be \"2.0\"")
	}
	if msg.Method == "" {
		return errorResponse(msg.ID, codeInvalidRequest, "invalid request: missing method")
	}

	result, err := s.dispatch(ctx, msg)

	if !msg.HasID() {
		// Notification: the caller never receives a reply, success or failure.
		if err != nil {
			logging.Warn("Downstream", "notification %s failed: %v", msg.Method, err)
		}
		return nil
	}
	if err != nil {
		return s.errorForDispatch(msg.ID, err)
	}
	resp, marshalErr := transport.NewResponse(msg.ID, result)
	if marshalErr != nil {
		return errorResponse(msg.ID, codeInternalError, marshalErr.Error())
	}
	return resp
}

func (s *Server) dispatch(ctx context.Context, msg *transport.Message) (interface{}, error) {
	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg)
	case "notifications/initialized":
		return nil, nil
	case "tools/list":
		return mcp.ListToolsResult{Tools: s.router.ListTools()}, nil
	case "resources/list":
		return mcp.ListResourcesResult{Resources: s.router.ListResources()}, nil
	case "prompts/list":
		return mcp.ListPromptsResult{Prompts: s.router.ListPrompts()}, nil
	case "tools/call":
		return s.handleToolCall(ctx, msg)
	case "resources/read":
		return s.handleResourceRead(ctx, msg)
	case "prompts/get":
		return s.handlePromptGet(ctx, msg)
	default:
		return nil, fmt.Errorf("%w: %s", errMethodNotFound, msg.Method)
	}
}

// errorForDispatch maps a dispatch error onto the JSON-RPC error response to send downstream,
// per the error code table: unknown method/name becomes -32601, invalid params -32602, a
// RoutingError becomes either a passthrough of the upstream's own error or an allocated
// -32000..-32099 code carrying the session name as data, and anything else is -32603.
func (s *Server) errorForDispatch(id json.RawMessage, err error) *transport.Message {
	if errors.Is(err, errMethodNotFound) || errors.Is(err, registry.ErrUnknownName) {
		return errorResponse(id, codeMethodNotFound, err.Error())
	}
	if errors.Is(err, errInvalidParams) {
		return errorResponse(id, codeInvalidParams, err.Error())
	}

	var routingErr *registry.RoutingError
	if errors.As(err, &routingErr) {
		return proxyErrorResponse(id, routingErr)
	}

	return errorResponse(id, codeInternalError, err.Error())
}

// proxyErrorResponse renders a RoutingError: an *upstream.UpstreamError is passed through
// verbatim (it already carries the upstream's own code, message, and data), while the
// proxy-internal sentinels (Timeout, SessionDown, TransportUnavailable) are allocated a code in
// -32000..-32099 and given data naming the session involved.
func proxyErrorResponse(id json.RawMessage, re *registry.RoutingError) *transport.Message {
	var upstreamErr *upstream.UpstreamError
	if errors.As(re.Err, &upstreamErr) {
		return transport.NewErrorResponseWithData(id, upstreamErr.Code, upstreamErr.Message, upstreamErr.Data)
	}

	data := sessionErrorData(re.SessionName)
	switch {
	case errors.Is(re.Err, upstream.ErrTimeout):
		return transport.NewErrorResponseWithData(id, codeUpstreamTimeout,
			fmt.Sprintf("Timeout: session %s did not respond in time: %v", re.SessionName, re.Err), data)
	case errors.Is(re.Err, upstream.ErrSessionDown):
		return transport.NewErrorResponseWithData(id, codeSessionDown,
			fmt.Sprintf("SessionDown: session %s is not available: %v", re.SessionName, re.Err), data)
	case errors.Is(re.Err, transport.ErrTransportUnavailable):
		return transport.NewErrorResponseWithData(id, codeTransportUnavailable,
			fmt.Sprintf("TransportUnavailable: session %s transport unavailable: %v", re.SessionName, re.Err), data)
	default:
		return errorResponse(id, codeInternalError, re.Error())
	}
}

func sessionErrorData(sessionName string) json.RawMessage {
	data, err := json.Marshal(struct {
		Session string `json:"session"`
	}{Session: sessionName})
	if err != nil {
		return nil
	}
	return data
}

func (s *Server) handleInitialize(msg *transport.Message) (interface{}, error) {
	return mcp.InitializeResult{
		ProtocolVersion: "2024-11-05",
		Capabilities:    s.router.Capabilities(),
		ServerInfo:      mcp.Implementation{Name: "atrax", Version: "0.1.0"},
	}, nil
}

func (s *Server) handleToolCall(ctx context.Context, msg *transport.Message) (interface{}, error) {
	var params struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments,omitempty"`
	}
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	result, err := s.router.CallTool(ctx, params.Name, params.Arguments)
	if errors.Is(err, registry.ErrUnknownName) {
		return nil, fmt.Errorf("unknown tool %q: %w", params.Name, err)
	}
	return result, err
}

func (s *Server) handleResourceRead(ctx context.Context, msg *transport.Message) (interface{}, error) {
	var params struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	result, err := s.router.ReadResource(ctx, params.URI)
	if errors.Is(err, registry.ErrUnknownName) {
		return nil, fmt.Errorf("unknown resource %q: %w", params.URI, err)
	}
	return result, err
}

func (s *Server) handlePromptGet(ctx context.Context, msg *transport.Message) (interface{}, error) {
	var params struct {
		Name      string            `json:"name"`
		Arguments map[string]string `json:"arguments,omitempty"`
	}
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	result, err := s.router.GetPrompt(ctx, params.Name, params.Arguments)
	if errors.Is(err, registry.ErrUnknownName) {
		return nil, fmt.Errorf("unknown prompt %q: %w", params.Name, err)
	}
	return result, err
}

// ListChangedNotification builds the notification message to fan out to downstream peers
// when kind's published set changes.
func ListChangedNotification(kind namespace.Kind) (*transport.Message, error) {
	var method string
	switch kind {
	case namespace.KindTool:
		method = "notifications/tools/list_changed"
	case namespace.KindResource:
		method = "notifications/resources/list_changed"
	case namespace.KindPrompt:
		method = "notifications/prompts/list_changed"
	default:
		return nil, fmt.Errorf("unknown kind %v", kind)
	}
	return transport.NewNotification(method, nil)
}

func errorResponse(id json.RawMessage, code int, message string) *transport.Message {
	return transport.NewErrorResponse(id, code, message)
}
