package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/trafficcloak/internal/database"
	"github.com/nao1215/trafficcloak/internal/model"
)

const (
	// MaxListLimit caps the ?limit= query parameter.
	MaxListLimit = 500

	shutdownTimeout = 5 * time.Second
)

// Store is the part of the history database the API reads.
// *database.SessionDB implements it.
type Store interface {
	ListReports(ctx context.Context, kind model.Kind, limit int) ([]*model.Report, error)
	GetReport(ctx context.Context, id string) (*model.Report, error)
	CountByState(ctx context.Context) ([]database.StateCount, error)
}

// Server serves the status API.
type Server struct {
	store  Store
	engine *gin.Engine
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for request logs.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a Server over store.
func New(store Store, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		store:  store,
		engine: gin.New(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.getHealth)
	s.engine.GET("/sessions", s.listSessions)
	s.engine.GET("/sessions/:id", s.getSession)
	s.engine.GET("/stats", s.getStats)
}

// Handler returns the HTTP handler, for tests and custom listeners.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	s.logger.Info("status API shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(began))
	}
}

func (s *Server) getHealth(c *gin.Context) {
	if _, err := s.store.CountByState(c.Request.Context()); err != nil {
		s.logger.Error("history store unavailable", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listSessions(c *gin.Context) {
	kind := model.Kind(c.Query("kind"))
	switch kind {
	case "", model.KindSearch, model.KindCrawl, model.KindLookup:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be search, crawl or lookup"})
		return
	}

	limit := database.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, MaxListLimit)
	}

	reports, err := s.store.ListReports(c.Request.Context(), kind, limit)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": reports, "count": len(reports)})
}

func (s *Server) getSession(c *gin.Context) {
	report, err := s.store.GetReport(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrReportNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) getStats(c *gin.Context) {
	counts, err := s.store.CountByState(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}

	total := 0
	for _, sc := range counts {
		total += sc.Count
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "states": counts})
}

func (s *Server) internalError(c *gin.Context, err error) {
	s.logger.Error("request failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
