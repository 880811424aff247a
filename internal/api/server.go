// Package api serves published route batches over HTTP.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"eve-arbitrage/internal/config"
	"eve-arbitrage/internal/pipeline"
	"eve-arbitrage/internal/ranking"
	"eve-arbitrage/internal/sde"
	"eve-arbitrage/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
)

// RunStatus reports the pipeline state.
type RunStatus interface {
	Running() bool
	LastRun() *pipeline.Status
}

// Triggerer queues a manual run. It returns false when one is already pending.
type Triggerer interface {
	Trigger() bool
}

// HealthChecker reports upstream reachability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) bool
}

// Deps are the collaborators of a Server. Runs, Trigger, Upstream and Metrics
// may be nil; the matching endpoints then report them as unavailable.
type Deps struct {
	Config   config.APIConfig
	Catalog  *sde.Data
	Store    store.Store
	Runs     RunStatus
	Trigger  Triggerer
	Upstream HealthChecker
	Metrics  http.Handler
	Now      func() time.Time
}

// Server is the query API over the result store.
type Server struct {
	deps Deps

	// Index of the latest batch, rebuilt when the run ID changes.
	mu      sync.Mutex
	indexID string
	index   *ranking.Index
}

// NewServer creates a Server.
func NewServer(d Deps) *Server {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Config.DefaultPageSize <= 0 {
		d.Config.DefaultPageSize = 20
	}
	if d.Config.MaxPageSize <= 0 || d.Config.MaxPageSize > ranking.MaxPageSize {
		d.Config.MaxPageSize = ranking.MaxPageSize
	}
	return &Server{deps: d}
}

// Handler returns the HTTP handler with all API routes and CORS applied.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestLogger(), recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}

	api := router.Group("/api")
	{
		api.GET("/routes", s.handleRoutes)
		api.GET("/status", s.handleStatus)
		api.GET("/categories", s.handleCategories)
		api.GET("/history", s.handleHistory)
		api.POST("/runs", s.handleTrigger)
	}
	router.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, CodeNotFound, "not found")
	})

	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(router)
}

// indexFor returns the ranking index of b, reusing the cached one for the same run.
func (s *Server) indexFor(b *store.ResultBatch) *ranking.Index {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index == nil || s.indexID != b.RunID {
		s.index = ranking.NewIndex(b.Routes)
		s.indexID = b.RunID
	}
	return s.index
}
