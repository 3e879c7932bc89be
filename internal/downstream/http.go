package downstream

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"atrax/internal/transport"
	"atrax/pkg/logging"
)

// notificationPollTimeout bounds how long a downstream peer's long-poll GET against
// /notifications waits for a list_changed event before returning 204 No Content.
const notificationPollTimeout = 30 * time.Second

// NewHTTPHandler builds the mux serving /mcp (JSON-RPC POST), /notifications (long-poll
// GET for server-initiated notifications) and /metrics (Prometheus exposition).
func (s *Server) NewHTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/mcp", s.authMiddleware(http.HandlerFunc(s.handleMCP)))
	mux.Handle("/notifications", s.authMiddleware(http.HandlerFunc(s.handleNotifications)))
	return mux
}

// ListenAndServe starts the HTTP listener on cfg.Host:cfg.Port and blocks until ctx is
// cancelled, then shuts the server down with a grace period.
func (s *Server) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:    formatAddr(s.cfg.Host, s.cfg.Port),
		Handler: s.NewHTTPHandler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("Downstream", "HTTP listener starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	}
}

func formatAddr(host string, port int) string {
	if host == "" {
		host = "localhost"
	}
	return host + ":" + strconv.Itoa(port)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Auth == nil || s.cfg.Auth.BearerToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header || token != s.cfg.Auth.BearerToken {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var msg transport.Message
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&msg); err != nil {
		writeJSON(w, http.StatusOK, transport.NewErrorResponse(nil, codeParseError, "parse error: "+err.Error()))
		return
	}

	resp := s.HandleMessage(r.Context(), &msg)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), notificationPollTimeout)
	defer cancel()

	select {
	case kind, ok := <-s.router.ListChanged():
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		notif, err := ListChangedNotification(kind)
		if err != nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, notif)
	case <-ctx.Done():
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
