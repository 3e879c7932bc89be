// Package registry implements the Router: it owns every Upstream Session, drives their
// startup and supervision, and answers downstream calls by resolving public names through
// the Namespace Merger and forwarding to the owning session.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"atrax/internal/config"
	"atrax/internal/metrics"
	"atrax/internal/namespace"
	"atrax/internal/supervisor"
	"atrax/internal/transport"
	"atrax/internal/upstream"
	"atrax/pkg/logging"
)

// ErrUnknownName is returned when a downstream call references a public name the Merger
// does not have an entry for.
var ErrUnknownName = fmt.Errorf("unknown name")

// RoutingError wraps a failure that occurred while forwarding a call to a specific upstream
// session, so the Downstream MCP Server can report which session was involved (Timeout,
// SessionDown, TransportUnavailable all carry this) and can unwrap to inspect the underlying
// cause, including a passed-through *upstream.UpstreamError.
type RoutingError struct {
	SessionName string
	Err         error
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("session %s: %v", e.SessionName, e.Err)
}

func (e *RoutingError) Unwrap() error { return e.Err }

var sessionStateNames = []string{
	upstream.Created.String(), upstream.Starting.String(), upstream.Initializing.String(),
	upstream.Ready.String(), upstream.Degraded.String(), upstream.Stopped.String(),
}

// Router owns the full set of Upstream Sessions for one proxy instance, the Merger that
// unifies their exported capabilities, and the Supervisor that relaunches failed sessions.
type Router struct {
	cfg        *config.Config
	merger     *namespace.Merger
	supervisor *supervisor.Supervisor

	// newTransport builds the Transport for one session; overridable in tests so the
	// supervision loop can be exercised against an in-memory fake instead of a real process.
	newTransport func(name string, cfg config.ServerConfig) transport.Transport

	mu       sync.RWMutex
	sessions map[string]*upstream.Session

	listChanged chan namespace.Kind
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// New constructs a Router from a validated Config. Call Start to bring sessions up.
func New(cfg *config.Config) *Router {
	return &Router{
		cfg:          cfg,
		merger:       namespace.NewMerger(cfg.ConflictStrategy),
		supervisor:   supervisor.New(0),
		newTransport: newTransport,
		sessions:     make(map[string]*upstream.Session),
		listChanged:  make(chan namespace.Kind, 16),
		stopCh:       make(chan struct{}),
	}
}

// ListChanged is the stream of capability kinds that changed since the last read, which the
// Downstream MCP Server fans out as `notifications/{kind}/list_changed`.
func (r *Router) ListChanged() <-chan namespace.Kind { return r.listChanged }

// Start builds one Upstream Session per configured server and starts them concurrently via
// errgroup, with no limit on how many start at once. Completion does
// not wait for every session to reach Ready: a session that fails to start is left Degraded
// and supervised for restart, while Start returns as soon as the initial fan-out finishes.
func (r *Router) Start(ctx context.Context) error {
	names := make([]string, 0, len(r.cfg.MCPServers))
	for name := range r.cfg.MCPServers {
		names = append(names, name)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			r.launch(gctx, name, r.cfg.MCPServers[name])
			return nil
		})
	}
	return g.Wait()
}

// launch starts one session and, whatever the outcome, installs the supervision loop that
// keeps retrying it until Stop is called.
func (r *Router) launch(ctx context.Context, name string, cfg config.ServerConfig) {
	r.wg.Add(1)
	go r.supervise(ctx, name, cfg)
}

func (r *Router) supervise(ctx context.Context, name string, cfg config.ServerConfig) {
	defer r.wg.Done()

	firstAttempt := true
	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		if r.supervisor.IsQuarantined(name) {
			logging.Warn("Registry", "session %s is quarantined, not restarting", name)
			return
		}

		if !firstAttempt {
			metrics.RestartsTotal.WithLabelValues(name).Inc()
		}
		firstAttempt = false

		tr := r.newTransport(name, cfg)
		sess := upstream.New(cfg, tr)

		r.mu.Lock()
		r.sessions[name] = sess
		r.mu.Unlock()

		startCtx, cancel := context.WithCancel(ctx)
		err := sess.Start(startCtx)
		if err != nil {
			cancel()
			metrics.SetSessionState(name, upstream.Degraded.String(), sessionStateNames)
			quarantined := r.supervisor.RecordFailure(name)
			logging.Warn("Registry", "session %s failed to start: %v", name, err)
			if quarantined {
				return
			}
			if !r.sleepOrStop(r.supervisor.NextDelay(name)) {
				return
			}
			continue
		}

		r.supervisor.RecordSuccess(name)
		metrics.SetSessionState(name, upstream.Ready.String(), sessionStateNames)
		r.publish(sess)

		lost := r.watch(sess)
		cancel()
		if !lost {
			return // Stop() was called
		}

		r.merger.Evict(name)
		metrics.MergerRebuildsTotal.Inc()
		r.signalListChanged(namespace.KindTool, namespace.KindResource, namespace.KindPrompt)
		metrics.SetSessionState(name, upstream.Degraded.String(), sessionStateNames)

		quarantined := r.supervisor.RecordFailure(name)
		if quarantined {
			logging.Warn("Registry", "session %s quarantined after repeated failures", name)
			return
		}
		if !r.sleepOrStop(r.supervisor.NextDelay(name)) {
			return
		}
	}
}

// watch consumes sess's Events for as long as it stays alive, applying capability changes to
// the Merger; it does not read the session's UpstreamRequests or Notifications streams. It
// returns true if the session was lost (should be relaunched) and false if the Router is
// shutting down.
func (r *Router) watch(sess *upstream.Session) bool {
	for {
		select {
		case ev, ok := <-sess.Events():
			if !ok {
				return true
			}
			switch ev.Kind {
			case upstream.EventCapabilitiesChanged:
				r.publishCapabilities(sess.Name, ev.Capabilities)
			case upstream.EventSessionLost:
				logging.Warn("Registry", "session %s lost: %v", sess.Name, ev.Err)
				return true
			}
		case <-r.stopCh:
			sess.Stop()
			return false
		}
	}
}

func (r *Router) publish(sess *upstream.Session) {
	r.publishCapabilities(sess.Name, sess.Capabilities())
}

func (r *Router) publishCapabilities(name string, caps upstream.Capabilities) {
	conflicts, _ := r.merger.Publish(namespace.Snapshot{
		SessionName: name,
		Tools:       caps.Tools,
		Resources:   caps.Resources,
		Prompts:     caps.Prompts,
	})
	r.handleConflicts(conflicts)
	metrics.MergerRebuildsTotal.Inc()
	r.signalListChanged(namespace.KindTool, namespace.KindResource, namespace.KindPrompt)
}

// handleConflicts logs every namespace conflict the last Publish produced and, under the
// Reject strategy, degrades the shadowed session: its conflicting entries are already omitted
// from the namespace, and Degrade relaunches it under ordinary supervision so a transient
// misconfiguration (e.g. a server restarted with different tools) can recover, while a
// persistent one is eventually quarantined by the Supervisor's repeated-failure backoff.
func (r *Router) handleConflicts(conflicts []namespace.Conflict) {
	for _, c := range conflicts {
		if r.cfg.ConflictStrategy != config.Reject {
			logging.Warn("Registry", "namespace conflict: %s %q already owned by session %s, shadowed by %s",
				c.Kind, c.OriginalName, c.OwningSession, c.ShadowedSession)
			continue
		}

		logging.Warn("Registry", "namespace conflict: %s %q already owned by session %s, degrading session %s (reject strategy)",
			c.Kind, c.OriginalName, c.OwningSession, c.ShadowedSession)
		if sess, ok := r.sessionByName(c.ShadowedSession); ok {
			sess.Degrade(fmt.Errorf("namespace conflict: %s %q already claimed by session %s", c.Kind, c.OriginalName, c.OwningSession))
		}
		metrics.SetSessionState(c.ShadowedSession, upstream.Degraded.String(), sessionStateNames)
	}
}

func (r *Router) signalListChanged(kinds ...namespace.Kind) {
	for _, k := range kinds {
		select {
		case r.listChanged <- k:
		default:
		}
	}
}

func (r *Router) sleepOrStop(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-r.stopCh:
		return false
	}
}

// Stop cancels all sessions and waits for their supervision loops to exit.
func (r *Router) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.mu.RLock()
	sessions := make([]*upstream.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()
	for _, s := range sessions {
		s.Stop()
	}
	r.wg.Wait()
}

func (r *Router) sessionByName(name string) (*upstream.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[name]
	return s, ok
}

// ListTools returns the Merger's cached tool set with each Tool's Name rewritten to its
// public name.
func (r *Router) ListTools() []mcp.Tool {
	entries := r.merger.Current().ListAll(namespace.KindTool)
	out := make([]mcp.Tool, 0, len(entries))
	for _, e := range entries {
		sess, ok := r.sessionByName(e.SessionName)
		if !ok {
			continue
		}
		for _, t := range sess.Capabilities().Tools {
			if t.Name == e.OriginalName {
				t.Name = e.PublicName
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// ListResources returns the Merger's cached resource set with each Resource's URI rewritten
// to its public URI.
func (r *Router) ListResources() []mcp.Resource {
	entries := r.merger.Current().ListAll(namespace.KindResource)
	out := make([]mcp.Resource, 0, len(entries))
	for _, e := range entries {
		sess, ok := r.sessionByName(e.SessionName)
		if !ok {
			continue
		}
		for _, res := range sess.Capabilities().Resources {
			if res.URI == e.OriginalName {
				res.URI = e.PublicName
				out = append(out, res)
				break
			}
		}
	}
	return out
}

// ListPrompts returns the Merger's cached prompt set with each Prompt's Name rewritten to its
// public name.
func (r *Router) ListPrompts() []mcp.Prompt {
	entries := r.merger.Current().ListAll(namespace.KindPrompt)
	out := make([]mcp.Prompt, 0, len(entries))
	for _, e := range entries {
		sess, ok := r.sessionByName(e.SessionName)
		if !ok {
			continue
		}
		for _, p := range sess.Capabilities().Prompts {
			if p.Name == e.OriginalName {
				p.Name = e.PublicName
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// CallTool resolves publicName via the Merger, rewrites it back to the session's original
// name, and forwards the call.
func (r *Router) CallTool(ctx context.Context, publicName string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	sessionName, originalName, ok := r.merger.Current().Resolve(publicName, namespace.KindTool)
	if !ok {
		return nil, ErrUnknownName
	}
	sess, ok := r.sessionByName(sessionName)
	if !ok {
		return nil, &RoutingError{SessionName: sessionName, Err: upstream.ErrSessionDown}
	}

	params := struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments,omitempty"`
	}{Name: originalName, Arguments: args}

	metrics.RequestsInFlight.WithLabelValues(sessionName).Inc()
	defer metrics.RequestsInFlight.WithLabelValues(sessionName).Dec()

	raw, err := sess.Request(ctx, "tools/call", params, 0)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues(sessionName, "error").Inc()
		return nil, &RoutingError{SessionName: sessionName, Err: err}
	}
	var result mcp.CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		metrics.RequestsTotal.WithLabelValues(sessionName, "error").Inc()
		return nil, fmt.Errorf("decoding tools/call result: %w", err)
	}
	metrics.RequestsTotal.WithLabelValues(sessionName, "ok").Inc()
	return &result, nil
}

// GetPrompt resolves publicName via the Merger and forwards the call.
func (r *Router) GetPrompt(ctx context.Context, publicName string, args map[string]string) (*mcp.GetPromptResult, error) {
	sessionName, originalName, ok := r.merger.Current().Resolve(publicName, namespace.KindPrompt)
	if !ok {
		return nil, ErrUnknownName
	}
	sess, ok := r.sessionByName(sessionName)
	if !ok {
		return nil, &RoutingError{SessionName: sessionName, Err: upstream.ErrSessionDown}
	}

	params := struct {
		Name      string            `json:"name"`
		Arguments map[string]string `json:"arguments,omitempty"`
	}{Name: originalName, Arguments: args}

	metrics.RequestsInFlight.WithLabelValues(sessionName).Inc()
	defer metrics.RequestsInFlight.WithLabelValues(sessionName).Dec()

	raw, err := sess.Request(ctx, "prompts/get", params, 0)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues(sessionName, "error").Inc()
		return nil, &RoutingError{SessionName: sessionName, Err: err}
	}
	var result mcp.GetPromptResult
	if err := json.Unmarshal(raw, &result); err != nil {
		metrics.RequestsTotal.WithLabelValues(sessionName, "error").Inc()
		return nil, fmt.Errorf("decoding prompts/get result: %w", err)
	}
	metrics.RequestsTotal.WithLabelValues(sessionName, "ok").Inc()
	return &result, nil
}

// ReadResource resolves publicURI via the Merger, rewriting it back to the upstream's
// original URI before forwarding.
func (r *Router) ReadResource(ctx context.Context, publicURI string) (*mcp.ReadResourceResult, error) {
	sessionName, originalURI, ok := r.merger.Current().Resolve(publicURI, namespace.KindResource)
	if !ok {
		return nil, ErrUnknownName
	}
	sess, ok := r.sessionByName(sessionName)
	if !ok {
		return nil, &RoutingError{SessionName: sessionName, Err: upstream.ErrSessionDown}
	}

	params := struct {
		URI string `json:"uri"`
	}{URI: originalURI}

	metrics.RequestsInFlight.WithLabelValues(sessionName).Inc()
	defer metrics.RequestsInFlight.WithLabelValues(sessionName).Dec()

	raw, err := sess.Request(ctx, "resources/read", params, 0)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues(sessionName, "error").Inc()
		return nil, &RoutingError{SessionName: sessionName, Err: err}
	}
	var result mcp.ReadResourceResult
	if err := json.Unmarshal(raw, &result); err != nil {
		metrics.RequestsTotal.WithLabelValues(sessionName, "error").Inc()
		return nil, fmt.Errorf("decoding resources/read result: %w", err)
	}
	metrics.RequestsTotal.WithLabelValues(sessionName, "ok").Inc()
	return &result, nil
}

// Capabilities returns the union capability record: the proxy supports a kind iff at least
// one currently-Ready session does.
func (r *Router) Capabilities() mcp.ServerCapabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var caps mcp.ServerCapabilities
	for _, s := range r.sessions {
		if s.State() != upstream.Ready {
			continue
		}
		sc := s.Capabilities().Server
		if sc.Tools != nil {
			caps.Tools = sc.Tools
		}
		if sc.Resources != nil {
			caps.Resources = sc.Resources
		}
		if sc.Prompts != nil {
			caps.Prompts = sc.Prompts
		}
	}
	return caps
}

// Sessions returns a point-in-time snapshot of every session's name and state.
func (r *Router) Sessions() map[string]upstream.State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]upstream.State, len(r.sessions))
	for name, s := range r.sessions {
		out[name] = s.State()
	}
	return out
}
