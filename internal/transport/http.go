package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"atrax/pkg/logging"
)

// httpTransport implements Transport over plain HTTP JSON-RPC POST requests, with an
// optional long-poll loop for server-initiated notifications on upstreams that advertise
// one. Unlike the process substrates there is no persistent pipe: each Send is its own
// request, and the response (or notification payload) is delivered asynchronously onto the
// same Messages() channel so callers never need to know which substrate they're driving.
type httpTransport struct {
	label   string
	url     string
	headers map[string]string
	client  *http.Client

	// notifyURL, when non-empty, is long-polled in a background loop for server-initiated
	// notifications (list_changed and friends). Upstreams that don't support this leave it
	// empty and simply never emit notifications outside of direct responses.
	notifyURL string

	mu     sync.Mutex
	open   bool
	closed chan struct{}

	messages chan *Message
	events   chan Event

	queuedBytes int64
}

// HTTPSpec carries the configuration needed to reach an HTTP-substrate upstream.
type HTTPSpec struct {
	URL       string
	NotifyURL string
	Headers   map[string]string
	Timeout   time.Duration
}

// NewHTTP creates a transport that speaks JSON-RPC over HTTP POST to spec.URL.
func NewHTTP(label string, spec HTTPSpec) Transport {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpTransport{
		label:     label,
		url:       spec.URL,
		notifyURL: spec.NotifyURL,
		headers:   spec.Headers,
		client:    &http.Client{Timeout: timeout},
		closed:    make(chan struct{}),
		messages:  make(chan *Message, 64),
		events:    make(chan Event, 8),
	}
}

func (h *httpTransport) Open(ctx context.Context) error {
	h.mu.Lock()
	if h.open {
		h.mu.Unlock()
		return nil
	}
	h.open = true
	h.mu.Unlock()

	if h.notifyURL != "" {
		go h.longPollLoop()
	}

	h.emit(Event{Kind: EventOpened})
	return nil
}

func (h *httpTransport) Send(ctx context.Context, msg *Message) error {
	h.mu.Lock()
	open := h.open
	h.mu.Unlock()
	if !open {
		return ErrTransportClosed
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if atomic.LoadInt64(&h.queuedBytes)+int64(len(body)) > SendBufferCap {
		return ErrWriteBackpressure
	}
	atomic.AddInt64(&h.queuedBytes, int64(len(body)))

	go h.roundTrip(ctx, body, msg.HasID())
	return nil
}

func (h *httpTransport) roundTrip(ctx context.Context, body []byte, expectsReply bool) {
	defer atomic.AddInt64(&h.queuedBytes, -int64(len(body)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		h.emit(Event{Kind: EventError, Reason: "build request", Err: err})
		return
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.emit(Event{Kind: EventError, Reason: fmt.Sprintf("request to %s failed", h.label), Err: err})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || !expectsReply {
		io.Copy(io.Discard, resp.Body)
		return
	}

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		logging.Warn("Transport", "%s returned status %d: %s", h.label, resp.StatusCode, string(data))
		return
	}

	var msg Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		logging.Warn("Transport", "dropping malformed response from %s: %v", h.label, err)
		return
	}
	h.deliver(&msg)
}

// longPollLoop repeatedly issues a long-poll GET against notifyURL, delivering whatever
// notification arrives and immediately reconnecting. A failed poll backs off briefly before
// retrying so a transient upstream outage doesn't spin the loop.
func (h *httpTransport) longPollLoop() {
	for {
		select {
		case <-h.closed:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.notifyURL, nil)
		if err != nil {
			cancel()
			return
		}
		for k, v := range h.headers {
			req.Header.Set(k, v)
		}

		resp, err := h.client.Do(req)
		if err != nil {
			cancel()
			select {
			case <-h.closed:
				return
			case <-time.After(2 * time.Second):
			}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			var msg Message
			if err := json.NewDecoder(resp.Body).Decode(&msg); err == nil {
				h.deliver(&msg)
			}
		}
		resp.Body.Close()
		cancel()
	}
}

func (h *httpTransport) deliver(msg *Message) {
	select {
	case h.messages <- msg:
	case <-h.closed:
	}
}

func (h *httpTransport) Messages() <-chan *Message { return h.messages }
func (h *httpTransport) Events() <-chan Event       { return h.events }

func (h *httpTransport) Close() error {
	h.mu.Lock()
	if !h.open {
		h.mu.Unlock()
		return nil
	}
	h.open = false
	h.mu.Unlock()

	close(h.closed)
	h.emit(Event{Kind: EventClosed, Reason: "closed"})
	close(h.messages)
	return nil
}

func (h *httpTransport) emit(e Event) {
	select {
	case h.events <- e:
	default:
	}
}
