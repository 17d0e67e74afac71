// Package httpapi exposes the agent loop over HTTP: a streaming SSE
// endpoint, a synchronous variant, and a health check, behind session
// JWT auth.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/zalusdev/zalus/agent"
	"github.com/zalusdev/zalus/audit"
	"github.com/zalusdev/zalus/github"
	"github.com/zalusdev/zalus/llm"
	"github.com/zalusdev/zalus/vercel"
)

const maxRequestBodyBytes = 1 << 20

// Options carries the loop parameters the server applies per request.
type Options struct {
	Provider         string
	Model            string
	MaxTokens        int
	StreamIterations int
	SyncIterations   int
	RequestTimeout   time.Duration

	// VercelToken is a service-wide fallback used when the session
	// claims carry no per-user token.
	VercelToken  string
	VercelTeamID string
}

// Server handles agent requests. One Server serves concurrent
// requests; all run state is per-request.
type Server struct {
	llm     *llm.Client
	opts    Options
	secret  []byte
	logger  *slog.Logger
	catalog *agent.Catalog

	recorder  agent.ToolRecorder
	trail     AuditReader
	newRepo   func(token string) agent.RepoClient
	newDeploy func(token, teamID string) agent.DeployClient

	srv *http.Server
}

// AuditReader serves the read side of the audit trail.
type AuditReader interface {
	ListRuns(ctx context.Context, limit int) ([]*audit.Run, error)
	ListToolCalls(ctx context.Context, runID string) ([]*audit.ToolCall, error)
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithRecorder installs a tool-call audit recorder.
func WithRecorder(rec agent.ToolRecorder) ServerOption {
	return func(s *Server) { s.recorder = rec }
}

// WithAuditReader enables the run-history endpoints.
func WithAuditReader(trail AuditReader) ServerOption {
	return func(s *Server) { s.trail = trail }
}

// WithRepoFactory overrides how per-request GitHub clients are built.
// Used in tests.
func WithRepoFactory(f func(token string) agent.RepoClient) ServerOption {
	return func(s *Server) { s.newRepo = f }
}

// WithDeployFactory overrides how per-request Vercel clients are
// built. Used in tests.
func WithDeployFactory(f func(token, teamID string) agent.DeployClient) ServerOption {
	return func(s *Server) { s.newDeploy = f }
}

// NewServer builds the HTTP server.
func NewServer(addr string, llmClient *llm.Client, secret []byte, opts Options, logger *slog.Logger, srvOpts ...ServerOption) *Server {
	s := &Server{
		llm:     llmClient,
		opts:    opts,
		secret:  secret,
		logger:  logger,
		catalog: agent.NewCatalog(),
		newRepo: func(token string) agent.RepoClient {
			return github.NewClient(token)
		},
		newDeploy: func(token, teamID string) agent.DeployClient {
			return vercel.NewClient(token, vercel.WithTeamID(teamID))
		},
	}
	for _, opt := range srvOpts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /api/agent", s.withAuth(s.handleAgentStream))
	mux.HandleFunc("POST /api/agent/sync", s.withAuth(s.handleAgentSync))
	if s.trail != nil {
		mux.HandleFunc("GET /api/runs", s.withAuth(s.handleListRuns))
		mux.HandleFunc("GET /api/runs/{id}/tool_calls", s.withAuth(s.handleListToolCalls))
	}

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      withLogging(logger, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler exposes the routing stack for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) ListenAndServe() error {
	s.logger.Info("http server starting", "addr", s.srv.Addr)
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.srv.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// newLoop assembles the per-request loop from the session claims.
func (s *Server) newLoop(claims *SessionClaims, maxIterations int) *agent.Loop {
	var deploy agent.DeployClient
	vercelToken := claims.VercelToken
	teamID := claims.VercelTeamID
	if vercelToken == "" {
		vercelToken = s.opts.VercelToken
		teamID = s.opts.VercelTeamID
	}
	if vercelToken != "" {
		deploy = s.newDeploy(vercelToken, teamID)
	}

	return &agent.Loop{
		Client:        s.llm,
		Provider:      s.opts.Provider,
		Model:         s.opts.Model,
		MaxTokens:     s.opts.MaxTokens,
		MaxIterations: maxIterations,
		Repo:          s.newRepo(claims.GitHubToken),
		Deploy:        deploy,
		Catalog:       s.catalog,
		Recorder:      s.recorder,
		Logger:        s.logger,
	}
}

func (s *Server) decodeInput(w http.ResponseWriter, r *http.Request) (agent.Input, bool) {
	var in agent.Input
	if err := decodeJSONBody(w, r, &in); err != nil {
		// Malformed body on an authenticated request is a server-side
		// 500 in this API's contract.
		writeErr(w, http.StatusInternalServerError, "invalid request: "+err.Error())
		return in, false
	}
	if in.Message == "" || in.Owner == "" || in.Repo == "" {
		writeErr(w, http.StatusInternalServerError, "message, owner and repo are required")
		return in, false
	}
	return in, true
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.opts.RequestTimeout <= 0 {
		return r.Context(), func() {}
	}
	return context.WithTimeout(r.Context(), s.opts.RequestTimeout)
}

func (s *Server) handleAgentStream(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	in, ok := s.decodeInput(w, r)
	if !ok {
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	loop := s.newLoop(claims, s.opts.StreamIterations)
	emitter := agent.NewEventEmitter(uuid.New().String(), 0)
	go loop.Run(ctx, in, emitter)

	ew := newEventWriter(w)
	for ev := range emitter.Events() {
		if err := ew.write(ev); err != nil {
			// Caller went away; drain so the loop can finish emitting.
			for range emitter.Events() {
			}
			return
		}
	}
}

func (s *Server) handleAgentSync(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	in, ok := s.decodeInput(w, r)
	if !ok {
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	loop := s.newLoop(claims, s.opts.SyncIterations)
	result, err := loop.RunSync(ctx, in)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			writeErr(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	runs, err := s.trail.ListRuns(r.Context(), limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleListToolCalls(w http.ResponseWriter, r *http.Request) {
	calls, err := s.trail.ListToolCalls(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"toolCalls": calls})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", fmt.Sprintf("%dms", time.Since(start).Milliseconds()),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush passes through so SSE responses still stream behind the
// logging wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
