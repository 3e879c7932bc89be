package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atrax/internal/transport"
)

func TestServeStdio_RespondsToRequestThenStopsOnEOF(t *testing.T) {
	s := testServer(t)

	req := &transport.Message{JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "tools/list"}
	line, _ := json.Marshal(req)
	in := bytes.NewReader(append(line, '\n'))
	var out bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.ServeStdio(ctx, in, &out))

	var resp transport.Message
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp))
	assert.Nil(t, resp.Error)
}

func TestServeStdio_MalformedLineGetsParseError(t *testing.T) {
	s := testServer(t)

	in := bytes.NewReader([]byte("not json\n"))
	var out bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.ServeStdio(ctx, in, &out))

	var resp transport.Message
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeParseError, resp.Error.Code)
}
