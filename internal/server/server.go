package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"surveyboard/internal"
	"surveyboard/internal/config"
	"surveyboard/internal/pipeline"
	"surveyboard/internal/storage"
)

// Server exposes datasets and their aggregations over HTTP. Chart drawing
// is left to the client; every endpoint returns the numbers behind a chart.
type Server struct {
	router    *chi.Mux
	db        *storage.DB
	cfg       config.Config
	processor *pipeline.ProcessingService
}

func New(db *storage.DB, cfg config.Config, processor *pipeline.ProcessingService) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		db:        db,
		cfg:       cfg,
		processor: processor,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/config", s.handleSurveyConfig)
		r.Delete("/cache", s.handlePurgeCache)

		r.Post("/datasets", s.handleUpload)
		r.Get("/datasets", s.handleListDatasets)

		r.Route("/datasets/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetDataset)
			r.Get("/summary", s.handleSummary)
			r.Get("/columns", s.handleColumns)
			r.Get("/dictionary", s.handleDictionary)
			r.Get("/counts", s.handleCounts)
			r.Get("/compare", s.handleCompare)
			r.Get("/ages", s.handleAges)
			r.Get("/likert", s.handleLikert)
			r.Get("/split", s.handleSplit)
			r.Get("/report", s.handleReportHTML)
			r.Get("/report.json", s.handleReportJSON)
			r.Get("/report.xlsx", s.handleReportXLSX)
			r.Get("/export.csv", s.handleExportCSV)
			r.Get("/export.xlsx", s.handleExportXLSX)
		})
	})
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		internal.DefaultLogger.Info("http: listening on %s", s.cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
