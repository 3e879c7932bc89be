package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTP_RoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg Message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))

		resp, err := NewResponse(msg.ID, map[string]string{"ok": "true"})
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	tr := NewHTTP("http-upstream", HTTPSpec{URL: server.URL})
	require.NoError(t, tr.Open(context.Background()))
	defer tr.Close()

	req, err := NewRequest(1, "tools/list", nil)
	require.NoError(t, err)
	require.NoError(t, tr.Send(context.Background(), req))

	select {
	case msg := <-tr.Messages():
		id, ok := msg.IntID()
		require.True(t, ok)
		assert.Equal(t, int64(1), id)
		assert.NotNil(t, msg.Result)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for response")
	}
}

func TestHTTP_NotificationGetsNoReplyWait(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	tr := NewHTTP("http-upstream", HTTPSpec{URL: server.URL})
	require.NoError(t, tr.Open(context.Background()))
	defer tr.Close()

	notif, err := NewNotification("notifications/initialized", nil)
	require.NoError(t, err)
	require.NoError(t, tr.Send(context.Background(), notif))

	select {
	case msg := <-tr.Messages():
		t.Fatalf("unexpected message delivered for a notification: %+v", msg)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestHTTP_SendAfterCloseFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	tr := NewHTTP("http-upstream", HTTPSpec{URL: server.URL})
	require.NoError(t, tr.Open(context.Background()))
	require.NoError(t, tr.Close())

	req, err := NewRequest(2, "ping", nil)
	require.NoError(t, err)
	err = tr.Send(context.Background(), req)
	assert.ErrorIs(t, err, ErrTransportClosed)
}
