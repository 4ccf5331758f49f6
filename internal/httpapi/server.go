// Package httpapi exposes microfactory sessions over JSON and
// Server-Sent Events, using the same net/http.ServeMux-with-method-patterns
// routing and SSE technique as a pure JSON API with no dashboard
// templates.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/microfactory-run/microfactory/internal/ports"
	"github.com/microfactory-run/microfactory/internal/streaming"
	"github.com/microfactory-run/microfactory/pkg/schema"
)

// DefaultPollInterval is the `serve --poll-interval-ms` default used by
// GET /sessions/stream when the flag is not given.
const DefaultPollInterval = 2 * time.Second

// SessionRunner is the narrow slice of the flow runner the HTTP API needs.
// Satisfied by internal/runner.Runner; declared here (rather than imported)
// to avoid a runner -> httpapi -> runner import cycle.
type SessionRunner interface {
	Start(ctx context.Context, prompt, domain, provider, model string) (*schema.Context, error)
	Resume(ctx context.Context, sessionID string) (*schema.Context, error)
	Cancel(ctx context.Context, sessionID string) error
	Status(ctx context.Context, sessionID string) (*schema.Context, error)
}

// Deps holds the dependencies for the HTTP API server.
type Deps struct {
	Store  ports.SessionRepository
	Runner SessionRunner
	Hub    streaming.EventHub
	Logger *slog.Logger
	// PollInterval is the cadence GET /sessions/stream re-polls the
	// repository and re-emits each session's snapshot, distinct from the push-based per-event feed
	// on /sessions/{id}/events and /events.
	PollInterval time.Duration
	// ListLimit bounds how many sessions /sessions/stream polls each
	// tick.
	ListLimit int
}

// Server serves the JSON+SSE session API.
type Server struct {
	deps Deps
}

// New creates a Server with the given dependencies.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.PollInterval <= 0 {
		deps.PollInterval = DefaultPollInterval
	}
	if deps.ListLimit <= 0 {
		deps.ListLimit = 50
	}
	return &Server{deps: deps}
}

// Handler returns the HTTP handler for the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("POST /sessions", s.handleStartSession)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /sessions/{id}/resume", s.handleResumeSession)
	mux.HandleFunc("POST /sessions/{id}/cancel", s.handleCancelSession)
	mux.HandleFunc("GET /sessions/{id}/events", s.handleSSESession)
	mux.HandleFunc("GET /events", s.handleSSEGlobal)
	mux.HandleFunc("GET /sessions/stream", s.handleSessionsStream)

	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
