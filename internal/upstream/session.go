// Package upstream implements the Upstream Session: the owner of one Transport, its
// request/response correlation, and its MCP handshake and capability-listing lifecycle.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"atrax/internal/config"
	"atrax/internal/transport"
	"atrax/pkg/logging"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultRequestTimeout   = 30 * time.Second
)

// Session is one Upstream Session: a ServerConfig bound to a live Transport, its pending
// request table, and the capability snapshot most recently fetched from the upstream.
type Session struct {
	Name string
	cfg  config.ServerConfig
	tr   transport.Transport

	nextID int64

	mu    sync.Mutex
	state State
	caps  Capabilities

	pending *pendingTable

	events            chan Event
	upstreamRequests  chan *transport.Message
	notifications     chan *transport.Message

	stopOnce sync.Once
	doneCh   chan struct{}
}

// New constructs a Session bound to tr but does not open it; call Start to do so.
func New(cfg config.ServerConfig, tr transport.Transport) *Session {
	return &Session{
		Name:             cfg.Name,
		cfg:              cfg,
		tr:               tr,
		pending:          newPendingTable(),
		events:           make(chan Event, 8),
		upstreamRequests: make(chan *transport.Message, 8),
		notifications:    make(chan *transport.Message, 32),
		doneCh:           make(chan struct{}),
		state:            Created,
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Capabilities returns the most recently published capability snapshot.
func (s *Session) Capabilities() Capabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps
}

// Events returns the session's lifecycle event stream: sessionReady, capabilitiesChanged,
// sessionLost.
func (s *Session) Events() <-chan Event { return s.events }

// UpstreamRequests returns the stream of upstream-originated requests (e.g. sampling) that
// must be forwarded to the downstream peer unmodified.
func (s *Session) UpstreamRequests() <-chan *transport.Message { return s.upstreamRequests }

// Notifications returns the stream of notifications that aren't list_changed (which the
// session handles internally) and must be forwarded to the downstream peer.
func (s *Session) Notifications() <-chan *transport.Message { return s.notifications }

func (s *Session) setState(state State, caps Capabilities) {
	s.mu.Lock()
	s.state = state
	s.caps = caps
	s.mu.Unlock()
}

// Start opens the Transport, performs the MCP initialize handshake, and fetches the initial
// tools/resources/prompts lists as supported by the declared capabilities. On success it
// transitions to Ready and emits EventSessionReady; on failure it transitions to Degraded and
// emits EventSessionLost, returning ErrHandshakeFailed.
func (s *Session) Start(ctx context.Context) error {
	s.setState(Starting, Capabilities{})

	if err := s.tr.Open(ctx); err != nil {
		s.fail(err)
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	go s.readLoop()

	s.setState(Initializing, Capabilities{})

	caps, err := s.handshake(ctx)
	if err != nil {
		s.fail(err)
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	s.setState(Ready, caps)
	logging.Info("Upstream", "session %s ready (tools=%d resources=%d prompts=%d)",
		s.Name, len(caps.Tools), len(caps.Resources), len(caps.Prompts))

	select {
	case s.events <- Event{Kind: EventSessionReady, SessionName: s.Name, Capabilities: caps}:
	case <-s.doneCh:
	}
	return nil
}

func (s *Session) handshake(ctx context.Context) (Capabilities, error) {
	hctx, cancel := context.WithTimeout(ctx, defaultHandshakeTimeout)
	defer cancel()

	initParams := struct {
		ProtocolVersion string                 `json:"protocolVersion"`
		Capabilities    mcp.ClientCapabilities `json:"capabilities"`
		ClientInfo      mcp.Implementation     `json:"clientInfo"`
	}{
		ProtocolVersion: "2024-11-05",
		Capabilities:    mcp.ClientCapabilities{},
		ClientInfo:      mcp.Implementation{Name: "atrax", Version: "0.1.0"},
	}

	result, err := s.request(hctx, "initialize", initParams, defaultHandshakeTimeout)
	if err != nil {
		return Capabilities{}, err
	}

	var initResult mcp.InitializeResult
	if err := json.Unmarshal(result, &initResult); err != nil {
		return Capabilities{}, fmt.Errorf("decoding initialize result: %w", err)
	}

	if err := s.notify("notifications/initialized", nil); err != nil {
		return Capabilities{}, err
	}

	caps := Capabilities{Server: initResult.Capabilities}

	if caps.supportsTools() {
		if caps.Tools, err = s.listTools(hctx); err != nil {
			return Capabilities{}, err
		}
	}
	if caps.supportsResources() {
		if caps.Resources, err = s.listResources(hctx); err != nil {
			return Capabilities{}, err
		}
	}
	if caps.supportsPrompts() {
		if caps.Prompts, err = s.listPrompts(hctx); err != nil {
			return Capabilities{}, err
		}
	}

	return caps, nil
}

func (s *Session) listTools(ctx context.Context) ([]mcp.Tool, error) {
	result, err := s.request(ctx, "tools/list", nil, defaultRequestTimeout)
	if err != nil {
		return nil, err
	}
	var listResult mcp.ListToolsResult
	if err := json.Unmarshal(result, &listResult); err != nil {
		return nil, fmt.Errorf("decoding tools/list result: %w", err)
	}
	return listResult.Tools, nil
}

func (s *Session) listResources(ctx context.Context) ([]mcp.Resource, error) {
	result, err := s.request(ctx, "resources/list", nil, defaultRequestTimeout)
	if err != nil {
		return nil, err
	}
	var listResult mcp.ListResourcesResult
	if err := json.Unmarshal(result, &listResult); err != nil {
		return nil, fmt.Errorf("decoding resources/list result: %w", err)
	}
	return listResult.Resources, nil
}

func (s *Session) listPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	result, err := s.request(ctx, "prompts/list", nil, defaultRequestTimeout)
	if err != nil {
		return nil, err
	}
	var listResult mcp.ListPromptsResult
	if err := json.Unmarshal(result, &listResult); err != nil {
		return nil, fmt.Errorf("decoding prompts/list result: %w", err)
	}
	return listResult.Prompts, nil
}

// Request issues method upstream with the given params, allocating a fresh session-local id,
// and blocks until the response arrives, the timeout elapses, or ctx is cancelled.
func (s *Session) Request(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	if s.State() != Ready {
		return nil, ErrSessionDown
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return s.request(ctx, method, params, timeout)
}

func (s *Session) request(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	id := atomic.AddInt64(&s.nextID, 1)
	deadline := time.Now().Add(timeout)
	resultCh := s.pending.Insert(id, method, deadline)

	msg, err := transport.NewRequest(id, method, params)
	if err != nil {
		s.pending.Cancel(id)
		return nil, err
	}
	if err := s.tr.Send(ctx, msg); err != nil {
		s.pending.Cancel(id)
		return nil, err
	}

	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, res.err
		}
		if res.msg.Error != nil {
			return nil, &UpstreamError{Code: res.msg.Error.Code, Message: res.msg.Error.Message, Data: res.msg.Error.Data}
		}
		return res.msg.Result, nil
	case <-ctx.Done():
		s.pending.Cancel(id)
		return nil, ctx.Err()
	case <-s.doneCh:
		return nil, ErrSessionDown
	}
}

// Notify sends a fire-and-forget notification upstream.
func (s *Session) Notify(method string, params interface{}) error {
	return s.notify(method, params)
}

func (s *Session) notify(method string, params interface{}) error {
	msg, err := transport.NewNotification(method, params)
	if err != nil {
		return err
	}
	return s.tr.Send(context.Background(), msg)
}

// Stop cancels all pending requests with ErrSessionDown, closes the Transport, and
// transitions to Stopped. Safe to call more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.setState(Stopped, Capabilities{})
		close(s.doneCh)
		s.pending.FailAll(ErrSessionDown)
		s.pending.Close()
		_ = s.tr.Close()
	})
}

// Degrade transitions the session to Degraded outside the normal transport-failure path, for
// example when the Merger rejects its capabilities as a namespace conflict. It fails pending
// requests and emits EventSessionLost the same way a transport failure does, so the session is
// relaunched under the Router's ordinary supervision (and eventually quarantined if the
// conflict recurs on every relaunch).
func (s *Session) Degrade(err error) {
	s.fail(err)
}

func (s *Session) fail(err error) {
	s.setState(Degraded, Capabilities{})
	s.pending.FailAll(ErrSessionDown)
	select {
	case s.events <- Event{Kind: EventSessionLost, SessionName: s.Name, Err: err}:
	default:
	}
}

// readLoop is the session's single reader: it classifies every inbound message and every
// transport lifecycle event, maintaining the ordering guarantee that messages are processed
// in the order the Transport delivers them.
func (s *Session) readLoop() {
	messages := s.tr.Messages()
	tevents := s.tr.Events()
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return
			}
			s.dispatch(msg)
		case ev, ok := <-tevents:
			if !ok {
				continue
			}
			if ev.Kind == transport.EventClosed && s.State() != Stopped {
				s.fail(ev.Err)
				return
			}
		case <-s.doneCh:
			return
		}
	}
}

func (s *Session) dispatch(msg *transport.Message) {
	switch {
	case msg.IsResponse():
		id, ok := msg.IntID()
		if !ok {
			return
		}
		if !s.pending.Resolve(id, msg) {
			logging.Debug("Upstream", "dropping response for unknown/expired id on session %s", s.Name)
		}
	case msg.IsUpstreamRequest():
		select {
		case s.upstreamRequests <- msg:
		default:
			logging.Warn("Upstream", "dropping upstream-originated request from %s: channel full", s.Name)
		}
	case msg.IsNotification():
		if strings.HasSuffix(msg.Method, "list_changed") {
			// The re-list awaits responses that only this read loop delivers, so it runs
			// off the loop.
			go s.handleNotification(msg)
			return
		}
		s.handleNotification(msg)
	}
}

func (s *Session) handleNotification(msg *transport.Message) {
	if !strings.HasSuffix(msg.Method, "list_changed") {
		select {
		case s.notifications <- msg:
		default:
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRequestTimeout)
	defer cancel()

	caps := s.Capabilities()
	var err error
	switch msg.Method {
	case "notifications/tools/list_changed":
		caps.Tools, err = s.listTools(ctx)
	case "notifications/resources/list_changed":
		caps.Resources, err = s.listResources(ctx)
	case "notifications/prompts/list_changed":
		caps.Prompts, err = s.listPrompts(ctx)
	default:
		return
	}
	if err != nil {
		logging.Warn("Upstream", "re-list after %s failed on session %s: %v", msg.Method, s.Name, err)
		return
	}

	s.setState(Ready, caps)
	select {
	case s.events <- Event{Kind: EventCapabilitiesChanged, SessionName: s.Name, Capabilities: caps}:
	case <-s.doneCh:
	}
}
