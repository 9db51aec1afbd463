package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/docset/internal/config"
	"github.com/dgallion1/docset/internal/metrics"
	"github.com/dgallion1/docset/internal/pipeline"
	"github.com/dgallion1/docset/internal/questions"
	"github.com/dgallion1/docset/internal/source"
	"github.com/dgallion1/docset/internal/storage"
)

// ArticleStore is the read side of the article store.
type ArticleStore interface {
	List() ([]storage.Entry, error)
	ReadArticle(id string) (*storage.ArticleMeta, []storage.ChunkMeta, error)
	ReadDataset(id string) ([]questions.Question, error)
	DatasetMarkdown(id string) ([]byte, error)
}

// Deps are the backends the server exposes. LLMStats and Metrics may be nil.
type Deps struct {
	Orchestrator *pipeline.Orchestrator
	Uploads      *source.Uploads
	Articles     ArticleStore
	LLMStats     *questions.LLMStats
	Model        string
	Metrics      *metrics.Metrics
}

// Server is the HTTP API server for docset.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	uploads      *source.Uploads
	articles     ArticleStore
	llmStats     *questions.LLMStats
	model        string
	metrics      *metrics.Metrics
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: deps.Orchestrator,
		uploads:      deps.Uploads,
		articles:     deps.Articles,
		llmStats:     deps.LLMStats,
		model:        deps.Model,
		metrics:      deps.Metrics,
		log:          log,
		cfg:          cfg,
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
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/ingest", s.handleIngest)
		r.Post("/api/uploads", s.handleUpload)
		r.Get("/api/ingest/{runID}/status", s.handleIngestStatus)
		r.Get("/api/ingest/{runID}/stream", s.handleIngestStream)
		r.Post("/api/ingest/{runID}/cancel", s.handleIngestCancel)

		r.Get("/api/articles", s.handleListArticles)
		r.Get("/api/articles/{articleID}", s.handleGetArticle)
		r.Get("/api/articles/{articleID}/dataset", s.handleGetDataset)

		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
