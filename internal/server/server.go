// Package server exposes the agent graphs over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/dshills/analyst-agent/internal/app"
)

// ServiceName is reported in traces.
const ServiceName = "analyst-agent"

// Server serves the HTTP API.
type Server struct {
	app    *app.App
	log    *zap.Logger
	router *gin.Engine
	newID  func() string
}

// New builds the routes for a.
func New(a *app.App) *Server {
	s := &Server{
		app:   a,
		log:   a.Logger.Named("http"),
		newID: uuid.NewString,
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())
	if a.Config.Telemetry.Tracing {
		r.Use(otelgin.Middleware(ServiceName))
	}

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))

	v1 := r.Group("/v1")
	v1.POST("/analysts", s.planAnalysts)
	v1.POST("/analysts/:run_id/resume", s.reviewAnalysts)
	v1.POST("/interviews", s.interview)
	v1.POST("/ask", s.ask)
	v1.POST("/market", s.market)
	v1.POST("/research", s.research)
	v1.GET("/runs/:run_id/events", s.events)

	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then drains open
// requests for up to ten seconds.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	cfg := s.app.Config.Server
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
