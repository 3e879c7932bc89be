// Package transport implements the three upstream wire substrates atrax speaks: stdio
// (local child process), docker (containerized child process), and http (JSON-RPC POST
// with optional long-poll for server-initiated notifications). All three expose the same
// Transport interface so the layer above never needs to know which substrate it is driving.
package transport

import (
	"encoding/json"
	"fmt"
)

// Message is the raw JSON-RPC 2.0 envelope exchanged with an upstream. Params and Result
// are kept as raw JSON so this package never needs to know the MCP method schemas; decoding
// into mcp.* domain types happens one layer up, in the upstream session.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// HasID reports whether the message carries a non-null id field.
func (m *Message) HasID() bool {
	return len(m.ID) > 0 && string(m.ID) != "null"
}

// IntID decodes the id field as an integer, the only form atrax itself ever allocates.
func (m *Message) IntID() (int64, bool) {
	if !m.HasID() {
		return 0, false
	}
	var n int64
	if err := json.Unmarshal(m.ID, &n); err != nil {
		return 0, false
	}
	return n, true
}

// IsResponse reports whether the message is a response to a request this side issued:
// it carries an id and either a result or an error.
func (m *Message) IsResponse() bool {
	return m.HasID() && (m.Result != nil || m.Error != nil)
}

// IsUpstreamRequest reports whether the message is an upstream-originated request (it
// carries both an id and a method — rare in MCP, used for server-initiated sampling calls).
func (m *Message) IsUpstreamRequest() bool {
	return m.HasID() && m.Method != ""
}

// IsNotification reports whether the message is a notification: a method with no id.
func (m *Message) IsNotification() bool {
	return !m.HasID() && m.Method != ""
}

// NewRequest builds a request message with the given integer id.
func NewRequest(id int64, method string, params interface{}) (*Message, error) {
	idBytes, err := json.Marshal(id)
	if err != nil {
		return nil, err
	}
	paramBytes, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: "2.0", ID: idBytes, Method: method, Params: paramBytes}, nil
}

// NewNotification builds a fire-and-forget notification message.
func NewNotification(method string, params interface{}) (*Message, error) {
	paramBytes, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: "2.0", Method: method, Params: paramBytes}, nil
}

// NewResponse builds a successful response to the given request id.
func NewResponse(id json.RawMessage, result interface{}) (*Message, error) {
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: "2.0", ID: id, Result: resultBytes}, nil
}

// NewErrorResponse builds an error response to the given request id.
func NewErrorResponse(id json.RawMessage, code int, message string) *Message {
	return &Message{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
}

// NewErrorResponseWithData builds an error response carrying a structured data payload, used
// for proxy-internal errors (Timeout, SessionDown, TransportUnavailable) whose data identifies
// the upstream session involved, and for passing through an upstream's own error data verbatim.
func NewErrorResponseWithData(id json.RawMessage, code int, message string, data json.RawMessage) *Message {
	return &Message{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message, Data: data}}
}

func marshalParams(params interface{}) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	return b, nil
}
