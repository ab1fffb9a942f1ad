// Package server exposes the refresh loop over HTTP: the latest snapshot,
// the alert history, a WebSocket push stream and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/luki/farmdash/internal/alert"
	"github.com/luki/farmdash/internal/config"
	"github.com/luki/farmdash/internal/metrics"
	"github.com/luki/farmdash/internal/refresh"
)

const (
	DefaultHistoryLimit = alert.HistoryRows
	MaxHistoryLimit     = 500
	shutdownTimeout     = 10 * time.Second
)

// Server holds the last snapshot and serves it.
type Server struct {
	cfg     config.ServerConfig
	metrics *metrics.Collector
	hub     *Hub
	log     zerolog.Logger

	mu   sync.RWMutex
	last *refresh.Snapshot
}

func New(cfg config.ServerConfig, m *metrics.Collector, log zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		metrics: m,
		hub:     NewHub(cfg.AllowedOrigins, log),
		log:     log,
	}
}

// Publish stores the snapshot and pushes it to WebSocket clients. It
// implements refresh.Sink.
func (s *Server) Publish(snap refresh.Snapshot) {
	s.mu.Lock()
	s.last = &snap
	s.mu.Unlock()
	s.hub.Broadcast(NewSnapshotView(snap))
}

// Last returns the most recent snapshot, if any.
func (s *Server) Last() (refresh.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return refresh.Snapshot{}, false
	}
	return *s.last, true
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(requestLogger(s.log))
	router.Use(gin.Recovery())

	corsConfig := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(s.cfg.AllowedOrigins) == 0 || slices.Contains(s.cfg.AllowedOrigins, "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.cfg.AllowedOrigins
	}
	router.Use(cors.New(corsConfig))

	router.GET("/healthz", s.health)
	api := router.Group("/api")
	{
		api.GET("/snapshot", s.snapshot)
		api.GET("/history", s.history)
	}
	router.GET("/ws", s.stream)
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	return router
}

func (s *Server) health(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if snap, ok := s.Last(); ok {
		resp["source"] = snap.Source
		resp["state"] = snap.State.String()
		resp["last_refresh"] = snap.Time
	}
	resp["websocket_clients"] = s.hub.Count()
	c.JSON(http.StatusOK, resp)
}

func (s *Server) snapshot(c *gin.Context) {
	snap, ok := s.Last()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no refresh has completed yet"})
		return
	}
	c.JSON(http.StatusOK, NewSnapshotView(snap))
}

func (s *Server) history(c *gin.Context) {
	limit := DefaultHistoryLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, MaxHistoryLimit)
	}

	snap, ok := s.Last()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no refresh has completed yet"})
		return
	}
	rows := snap.History(limit)
	c.JSON(http.StatusOK, gin.H{
		"source": snap.Source,
		"time":   snap.Time,
		"count":  len(rows),
		"rows":   historyView(rows),
	})
}

func (s *Server) stream(c *gin.Context) {
	var first any
	if snap, ok := s.Last(); ok {
		first = NewSnapshotView(snap)
	}
	s.hub.Handle(c, first)
}

// Run serves HTTP while r refreshes every interval, until ctx is done.
func (s *Server) Run(ctx context.Context, r *refresh.Refresher, interval time.Duration) error {
	r.AddSink(s)

	srv := &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	loopCtx, stopLoop := context.WithCancel(ctx)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		r.Run(loopCtx, interval, nil)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = err
	}

	s.log.Info().Msg("shutting down")
	stopLoop()
	<-loopDone
	s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error().Err(err).Msg("server forced to shutdown")
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		ev := log.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = log.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}
