// Package httpapi exposes the document context engine over HTTP: upload
// and manage documents, query for assembled context, and report service
// health. JSON in, JSON out.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/smartctx/sdch/internal/assemble"
	"github.com/smartctx/sdch/internal/budget"
	sdcherrors "github.com/smartctx/sdch/internal/errors"
	"github.com/smartctx/sdch/internal/ingest"
	"github.com/smartctx/sdch/internal/store"
	"github.com/smartctx/sdch/internal/telemetry"
	"github.com/smartctx/sdch/pkg/version"
)

// ServiceName identifies the service in health responses.
const ServiceName = "sdch"

// DefaultListLimit caps the document listing.
const DefaultListLimit = 100

// shutdownTimeout is the drain window for graceful shutdown.
const shutdownTimeout = 30 * time.Second

// Dependency is one health-checked external dependency.
type Dependency struct {
	Name  string
	Check func(ctx context.Context) error
}

// Config carries the dependencies for a Server. Ingest, Store,
// Assembler, and Allocator are required.
type Config struct {
	Addr        string
	CORSOrigins []string

	Ingest    *ingest.Service
	Store     *store.Store
	Filenames *store.FilenameIndex
	Assembler *assemble.Assembler
	Allocator *budget.Allocator
	Metrics   *telemetry.Metrics

	// Dependencies are probed by the health endpoint.
	Dependencies []Dependency

	Logger *slog.Logger
}

// Server is the HTTP surface.
type Server struct {
	addr      string
	origins   []string
	ingest    *ingest.Service
	store     *store.Store
	filenames *store.FilenameIndex
	assembler *assemble.Assembler
	allocator *budget.Allocator
	metrics   *telemetry.Metrics
	deps      []Dependency
	logger    *slog.Logger
	engine    *gin.Engine
}

// New creates a Server from cfg.
func New(cfg Config) (*Server, error) {
	if cfg.Ingest == nil {
		return nil, fmt.Errorf("ingest service is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Assembler == nil {
		return nil, fmt.Errorf("assembler is required")
	}
	if cfg.Allocator == nil {
		return nil, fmt.Errorf("budget allocator is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewMetrics()
	}
	addr := cfg.Addr
	if addr == "" {
		addr = ":8000"
	}

	s := &Server{
		addr:      addr,
		origins:   cfg.CORSOrigins,
		ingest:    cfg.Ingest,
		store:     cfg.Store,
		filenames: cfg.Filenames,
		assembler: cfg.Assembler,
		allocator: cfg.Allocator,
		metrics:   metrics,
		deps:      cfg.Dependencies,
		logger:    logger,
	}
	s.engine = s.buildEngine()
	return s, nil
}

func (s *Server) buildEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.requestLogger())

	corsCfg := cors.DefaultConfig()
	if len(s.origins) == 1 && s.origins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else if len(s.origins) > 0 {
		corsCfg.AllowOrigins = s.origins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	engine.Use(cors.New(corsCfg))

	engine.MaxMultipartMemory = s.ingest.MaxBytes()

	api := engine.Group("/api")
	{
		docs := api.Group("/documents")
		{
			docs.POST("/upload", s.handleUpload)
			docs.GET("/", s.handleList)
			docs.GET("/search", s.handleSearch)
			docs.GET("/:id", s.handleGet)
			docs.DELETE("/:id", s.handleDelete)
		}
		api.POST("/query/", s.handleQuery)
		api.GET("/health", s.handleHealth)
	}
	return engine
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http_listening", "addr", s.addr, "version", version.Short())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("http_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// requestLogger logs one line per request with latency and status.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http_request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}

// errorBody is the uniform error response shape.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps a pipeline error onto an HTTP response. Unexpected
// errors come back as a generic 500 without internals.
func (s *Server) writeError(c *gin.Context, err error) {
	var status int
	var code, message string

	var svcErr *sdcherrors.ServiceError
	if errors.As(err, &svcErr) {
		status = svcErr.HTTPStatus()
		code = svcErr.Code
		message = svcErr.Message
	} else {
		status = http.StatusInternalServerError
		code = sdcherrors.ErrCodeInternal
		message = "internal error"
		s.logger.Error("unexpected_error", "path", c.Request.URL.Path, "error", err)
	}

	c.AbortWithStatusJSON(status, errorBody{Error: errorDetail{Code: code, Message: message}})
}
