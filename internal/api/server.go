package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/pdfrag/internal/chat"
	"github.com/dgallion1/pdfrag/internal/config"
	"github.com/dgallion1/pdfrag/internal/llm"
	"github.com/dgallion1/pdfrag/internal/pipeline"
	"github.com/dgallion1/pdfrag/internal/rag"
	"github.com/dgallion1/pdfrag/internal/vectorstore"
)

// Deps are the components the API serves.
type Deps struct {
	Orchestrator *pipeline.Orchestrator
	Store        vectorstore.Store
	Engine       *rag.Engine
	Sessions     *chat.Store
	// LLMStats may be nil when no live Gemini client is wired.
	LLMStats   *llm.Stats
	EmbedModel string
	// Metrics serves /metrics; nil leaves the route unregistered.
	Metrics http.Handler
}

// Server is the HTTP API server for pdfrag.
type Server struct {
	router chi.Router
	deps   Deps
	log    *slog.Logger
	cfg    config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		deps: deps,
		log:  log,
		cfg:  cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics)
	}

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/documents", s.handleUpload)
		r.Get("/api/jobs/{jobID}", s.handleJobStatus)

		r.Get("/api/documents", s.handleListDocuments)
		r.Delete("/api/documents", s.handleResetLibrary)
		r.Delete("/api/documents/{docID}", s.handleDeleteDocument)

		r.Post("/api/sessions", s.handleCreateSession)
		r.Route("/api/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/messages", s.handleListMessages)
			r.Post("/messages", s.handleAsk)
			r.Delete("/messages", s.handleClearMessages)
			r.Get("/export", s.handleExport)
		})

		r.Get("/api/stats", s.handleStats)
		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
