package downstream

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atrax/internal/config"
	"atrax/internal/namespace"
	"atrax/internal/registry"
	"atrax/internal/transport"
	"atrax/internal/upstream"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{ConflictStrategy: config.PrefixWithServerName, MCPServers: map[string]config.ServerConfig{}}
	r := registry.New(cfg)
	return New(r, cfg)
}

func TestHandleMessage_InvalidJSONRPCVersion(t *testing.T) {
	s := testServer(t)
	msg := &transport.Message{JSONRPC: "1.0", ID: json.RawMessage("1"), Method: "tools/list"}
	resp := s.HandleMessage(context.Background(), msg)
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInvalidRequest, resp.Error.Code)
}

func TestHandleMessage_MissingMethod(t *testing.T) {
	s := testServer(t)
	msg := &transport.Message{JSONRPC: "2.0", ID: json.RawMessage("1")}
	resp := s.HandleMessage(context.Background(), msg)
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInvalidRequest, resp.Error.Code)
}

func TestHandleMessage_UnknownMethodReturnsError(t *testing.T) {
	s := testServer(t)
	msg := &transport.Message{JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "bogus/method"}
	resp := s.HandleMessage(context.Background(), msg)
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestHandleMessage_NotificationGetsNoReply(t *testing.T) {
	s := testServer(t)
	msg := &transport.Message{JSONRPC: "2.0", Method: "notifications/initialized"}
	resp := s.HandleMessage(context.Background(), msg)
	assert.Nil(t, resp)
}

func TestHandleMessage_InitializeReturnsServerInfo(t *testing.T) {
	s := testServer(t)
	msg := &transport.Message{JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "initialize"}
	resp := s.HandleMessage(context.Background(), msg)
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	var result mcp.InitializeResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "atrax", result.ServerInfo.Name)
}

func TestHandleMessage_ToolsListEmptyWhenNoSessions(t *testing.T) {
	s := testServer(t)
	msg := &transport.Message{JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "tools/list"}
	resp := s.HandleMessage(context.Background(), msg)
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	var result mcp.ListToolsResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Empty(t, result.Tools)
}

func TestHandleMessage_ToolCallUnknownNameReturnsError(t *testing.T) {
	s := testServer(t)
	params, _ := json.Marshal(map[string]interface{}{"name": "nope"})
	msg := &transport.Message{JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "tools/call", Params: params}
	resp := s.HandleMessage(context.Background(), msg)
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestHandleMessage_ToolCallInvalidParamsReturnsError(t *testing.T) {
	s := testServer(t)
	msg := &transport.Message{JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "tools/call", Params: json.RawMessage("not-json")}
	resp := s.HandleMessage(context.Background(), msg)
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestErrorForDispatch_SessionDownCarriesSessionNameInData(t *testing.T) {
	s := testServer(t)
	err := &registry.RoutingError{SessionName: "fs", Err: upstream.ErrSessionDown}
	resp := s.errorForDispatch(json.RawMessage("1"), err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeSessionDown, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "SessionDown")

	var data struct {
		Session string `json:"session"`
	}
	require.NoError(t, json.Unmarshal(resp.Error.Data, &data))
	assert.Equal(t, "fs", data.Session)
}

func TestErrorForDispatch_TimeoutMapsToProxyInternalRange(t *testing.T) {
	s := testServer(t)
	err := &registry.RoutingError{SessionName: "fs", Err: upstream.ErrTimeout}
	resp := s.errorForDispatch(json.RawMessage("1"), err)
	require.NotNil(t, resp.Error)
	assert.True(t, resp.Error.Code <= -32000 && resp.Error.Code >= -32099)
	assert.Contains(t, resp.Error.Message, "Timeout")
}

func TestErrorForDispatch_UpstreamErrorPassesThroughCodeAndData(t *testing.T) {
	s := testServer(t)
	upstreamErr := &upstream.UpstreamError{Code: -32010, Message: "custom upstream failure", Data: json.RawMessage(`{"foo":"bar"}`)}
	err := &registry.RoutingError{SessionName: "fs", Err: upstreamErr}
	resp := s.errorForDispatch(json.RawMessage("1"), err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32010, resp.Error.Code)
	assert.Equal(t, "custom upstream failure", resp.Error.Message)
	assert.JSONEq(t, `{"foo":"bar"}`, string(resp.Error.Data))
}

func TestListChangedNotification_MethodsByKind(t *testing.T) {
	notif, err := ListChangedNotification(namespace.KindTool)
	require.NoError(t, err)
	assert.Equal(t, "notifications/tools/list_changed", notif.Method)

	notif, err = ListChangedNotification(namespace.KindResource)
	require.NoError(t, err)
	assert.Equal(t, "notifications/resources/list_changed", notif.Method)

	notif, err = ListChangedNotification(namespace.KindPrompt)
	require.NoError(t, err)
	assert.Equal(t, "notifications/prompts/list_changed", notif.Method)
}
