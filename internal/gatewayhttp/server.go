// Package gatewayhttp implements the HTTP/WS Gateway (C12): the one
// component that terminates inbound connections and wires the rest of the
// core (C1-C11) behind the HTTP surface spec §6 names. It is the single
// place credentials leave the vault, sessions get authenticated, and SSE/WS
// framing happens.
//
// Grounded on the teacher's internal/gateway package: a plain net/http
// ServeMux (no router library), one handler function per route, Prometheus
// metrics mounted alongside /healthz, and a goroutine-served *http.Server
// the caller starts and stops explicitly — the same shape as
// internal/gateway/http_server.go's startHTTPServer/stopHTTPServer.
package gatewayhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/riftlabs/vpsagent/internal/agent"
	"github.com/riftlabs/vpsagent/internal/auth"
	"github.com/riftlabs/vpsagent/internal/llm"
	"github.com/riftlabs/vpsagent/internal/observability"
	"github.com/riftlabs/vpsagent/internal/orchestrator"
	"github.com/riftlabs/vpsagent/internal/research"
	"github.com/riftlabs/vpsagent/internal/store"
	"github.com/riftlabs/vpsagent/internal/terminal"
	"github.com/riftlabs/vpsagent/internal/tools"
)

// Deps are the Server's dependencies, each built in C13's bootstrap from
// config and handed in whole. Research may be nil (no PERPLEXITY_API_KEY
// configured); every other field is required.
type Deps struct {
	Store        store.Store
	Resolver     *ServerResolver
	Provider     llm.Provider
	Catalog      agent.Catalog
	Dispatcher   *agent.Dispatcher
	Approvals    *agent.ApprovalStore
	Research     *research.Gateway
	Orchestrator *orchestrator.Orchestrator
	Relay        *terminal.Relay
	Auth         *auth.JWTService
	// BackupVault decrypts BackupConfig.EncryptedPassword for the
	// backup_get_password tool. Nil disables that tool (it reports a clear
	// error rather than panicking) for deployments without ENCRYPTION_KEY set.
	BackupVault tools.CredentialDecryptor
	// APIKeyVault decrypts GitHubIntegration.EncryptedToken before the
	// github_* tool family calls the GitHub API. Nil means GitHubToken's
	// return value is used as-is, which only works if it was never encrypted
	// in the first place (e.g. local dev against the in-memory Store).
	APIKeyVault tools.CredentialDecryptor
	// Tracer is optional; nil means the Loop and Orchestrator it's attached
	// to emit no spans, matching observability.Tracer's own nil-safe shape.
	Tracer *observability.Tracer
	Logger *slog.Logger
}

// Server owns the gateway's net/http.Server and routing table.
type Server struct {
	deps Deps
	mux  *http.ServeMux

	httpServer *http.Server
	listener   net.Listener
}

// New builds a Server and registers every route. Call ListenAndServe to
// start accepting connections.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{deps: deps, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler returns the gateway's composed http.Handler, for tests that want
// to drive it with httptest without a real listener.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) routes() {
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/healthz", s.handleHealthz)

	s.mux.Handle("/api/agent/chat", s.authenticated(http.HandlerFunc(s.handleChat)))
	s.mux.Handle("/api/agent/approve", s.authenticated(http.HandlerFunc(s.handleApprove)))
	s.mux.Handle("/api/agent/tools", s.authenticated(http.HandlerFunc(s.handleTools)))
	s.mux.Handle("/api/agent/monitor/", s.authenticated(http.HandlerFunc(s.handleMonitor)))

	s.mux.Handle("/api/agent/tasks/plan", s.authenticated(http.HandlerFunc(s.handleTasksPlan)))
	s.mux.Handle("/api/agent/tasks", s.authenticated(http.HandlerFunc(s.handleTasksCreate)))
	s.mux.Handle("/api/agent/tasks/", s.authenticated(http.HandlerFunc(s.handleTaskSubroute)))

	s.mux.Handle("/ws/terminal", s.authenticated(s.deps.Relay))
}

// ListenAndServe starts the HTTP server on addr and blocks until ctx is
// cancelled, mirroring startHTTPServer/stopHTTPServer's explicit
// listen-then-goroutine-serve-then-shutdown shape.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gatewayhttp: listen: %w", err)
	}
	s.listener = listener

	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	s.deps.Logger.Info("gatewayhttp: listening", "addr", addr)

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the server, giving in-flight requests (chiefly
// long-lived SSE/WS connections) a bounded window to finish.
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
