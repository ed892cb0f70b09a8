// Package api serves the operational HTTP surface: liveness, readiness,
// queue depths, and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/socrates-soc/socrates/pkg/queue"
)

// HealthCheck probes one backing dependency.
type HealthCheck func(ctx context.Context) error

// Server is the ops HTTP server. It carries no pipeline logic; everything
// it reports is read-only.
type Server struct {
	listenAddr string
	checks     map[string]HealthCheck
	queues     []*queue.Buffer
}

// NewServer creates an ops server reporting on the given dependency checks
// and queues.
func NewServer(listenAddr string, checks map[string]HealthCheck, queues []*queue.Buffer) *Server {
	return &Server{
		listenAddr: listenAddr,
		checks:     checks,
		queues:     queues,
	}
}

// Router builds the gin engine with all ops routes.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.Health)
	router.GET("/readyz", s.Ready)
	router.GET("/api/v1/queues", s.Queues)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}

// Health handles GET /healthz. It reports process liveness only.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles GET /readyz. Ready means every backing dependency answers.
func (s *Server) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	results := gin.H{}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = gin.H{"ok": false, "error": err.Error()}
			continue
		}
		results[name] = gin.H{"ok": true}
	}

	body := gin.H{"status": "ready", "checks": results}
	if status != http.StatusOK {
		body["status"] = "not ready"
	}
	c.JSON(status, body)
}

// Queues handles GET /api/v1/queues with the current depth of each queue.
func (s *Server) Queues(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	depths := make([]gin.H, 0, len(s.queues))
	for _, q := range s.queues {
		n, err := q.Len(ctx)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "queue": q.Key()})
			return
		}
		depths = append(depths, gin.H{"key": q.Key(), "depth": n})
	}
	c.JSON(http.StatusOK, gin.H{"queues": depths})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.listenAddr,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Ops server listening", "addr", s.listenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return ctx.Err()
}
