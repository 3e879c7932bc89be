package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A tiny shell script stands in for a real MCP server: it echoes every stdin line back to
// stdout unchanged, enough to exercise readLoop and writeLoop without depending on any real
// upstream binary. It writes nothing to stderr.
const echoScript = `while IFS= read -r line; do echo "$line"; done`

func newEchoStdio(t *testing.T) Transport {
	t.Helper()
	tr := NewStdio("echo", "sh", []string{"-c", echoScript}, nil)
	require.NoError(t, tr.Open(context.Background()))
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestStdio_RoundTrip(t *testing.T) {
	tr := newEchoStdio(t)

	req, err := NewRequest(1, "ping", nil)
	require.NoError(t, err)
	require.NoError(t, tr.Send(context.Background(), req))

	select {
	case msg := <-tr.Messages():
		id, ok := msg.IntID()
		require.True(t, ok)
		assert.Equal(t, int64(1), id)
		assert.Equal(t, "ping", msg.Method)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for echoed message")
	}
}

func TestStdio_OpenedEventEmitted(t *testing.T) {
	tr := newEchoStdio(t)

	select {
	case ev := <-tr.Events():
		assert.Equal(t, EventOpened, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected an opened event")
	}
}

func TestStdio_CloseEmitsClosedEvent(t *testing.T) {
	tr := newEchoStdio(t)
	<-tr.Events() // drain the opened event

	require.NoError(t, tr.Close())

	select {
	case ev := <-tr.Events():
		assert.Equal(t, EventClosed, ev.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for closed event")
	}
}

func TestStdio_SendAfterCloseFails(t *testing.T) {
	tr := newEchoStdio(t)
	require.NoError(t, tr.Close())
	time.Sleep(50 * time.Millisecond)

	req, err := NewRequest(2, "ping", nil)
	require.NoError(t, err)
	err = tr.Send(context.Background(), req)
	assert.ErrorIs(t, err, ErrTransportClosed)
}

func TestStdio_MalformedLineDropped(t *testing.T) {
	// A script that writes one invalid line followed by one valid one; readLoop must drop
	// the first and still deliver the second.
	tr := NewStdio("malformed", "sh", []string{"-c", `echo "not json"; echo '{"jsonrpc":"2.0","method":"ok"}'`}, nil)
	require.NoError(t, tr.Open(context.Background()))
	t.Cleanup(func() { tr.Close() })

	select {
	case msg := <-tr.Messages():
		assert.Equal(t, "ok", msg.Method)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the valid message past the malformed one")
	}
}

func TestStdio_BackpressureOnOversizedQueue(t *testing.T) {
	tr := newEchoStdio(t).(*processTransport)
	tr.queuedBytes = SendBufferCap

	req, err := NewRequest(3, "ping", nil)
	require.NoError(t, err)
	err = tr.Send(context.Background(), req)
	assert.ErrorIs(t, err, ErrWriteBackpressure)
}

func TestDocker_BuildsExpectedArgv(t *testing.T) {
	spec := DockerSpec{
		Image:   "example/mcp-server:latest",
		Args:    []string{"--flag"},
		Env:     map[string]string{"TOKEN": "secret"},
		Volumes: map[string]string{"/host": "/container"},
		Network: "bridge",
		Remove:  true,
	}
	tr := NewDocker("dockered", spec).(*processTransport)

	assert.Equal(t, "docker", tr.argv0)
	assert.Contains(t, tr.argv, "--rm")
	assert.Contains(t, tr.argv, "-e")
	assert.Contains(t, tr.argv, "TOKEN=secret")
	assert.Contains(t, tr.argv, "-v")
	assert.Contains(t, tr.argv, "/host:/container")
	assert.Contains(t, tr.argv, "--network")
	assert.Contains(t, tr.argv, "bridge")
	assert.Contains(t, tr.argv, "example/mcp-server:latest")
	assert.Contains(t, tr.argv, "--flag")
}
