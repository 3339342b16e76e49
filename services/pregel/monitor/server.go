// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianPregel/services/pregel/checkpoint"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const (
	// writeWait bounds a single websocket write.
	writeWait = 10 * time.Second

	// pingPeriod keeps idle websocket connections alive.
	pingPeriod = 30 * time.Second
)

// CheckpointLister is the read side of *checkpoint.Store used by the
// server.
type CheckpointLister interface {
	Runs(ctx context.Context) ([]string, error)
	List(ctx context.Context, runID string) ([]checkpoint.Info, error)
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithCheckpoints serves /runs/:id/checkpoints from store.
func WithCheckpoints(store CheckpointLister) ServerOption {
	return func(s *Server) { s.checkpoints = store }
}

// WithMetricsHandler serves /metrics from h.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) { s.metrics = h }
}

// WithLogger sets the server logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Server serves a Hub over HTTP.
type Server struct {
	hub         *Hub
	checkpoints CheckpointLister
	metrics     http.Handler
	logger      *slog.Logger
	router      *gin.Engine
	upgrader    websocket.Upgrader

	httpServer *http.Server
	listener   net.Listener
	serveErr   chan error
	done       chan struct{}
	closeOnce  sync.Once
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// NewServer builds the router for hub.
func NewServer(hub *Hub, opts ...ServerOption) *Server {
	s := &Server{
		hub:    hub,
		logger: slog.Default(),
		done:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "monitor"))
	s.initRouter()
	return s
}

func (s *Server) initRouter() {
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(otelgin.Middleware("pregel-monitor"))
	s.router.Use(s.requestLogger())

	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics))
	}
	s.router.GET("/runs", s.handleRuns)
	s.router.GET("/runs/:id", s.handleRun)
	s.router.GET("/runs/:id/checkpoints", s.handleCheckpoints)
	s.router.GET("/progress", s.handleProgress)
}

// requestLogger logs each request at Debug.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("monitor request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)))
	}
}

// Handler returns the HTTP handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleRuns(c *gin.Context) {
	runs := s.hub.Runs()
	if s.checkpoints != nil {
		stored, err := s.checkpoints.Runs(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		known := make(map[string]bool, len(runs))
		for _, r := range runs {
			known[r.RunID] = true
		}
		for _, id := range stored {
			if !known[id] {
				runs = append(runs, RunStatus{RunID: id})
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleRun(c *gin.Context) {
	status, ok := s.hub.Run(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleCheckpoints(c *gin.Context) {
	if s.checkpoints == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "checkpointing is not enabled"})
		return
	}
	infos, err := s.checkpoints.List(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, checkpoint.ErrInvalidRunID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		if infos == nil {
			infos = []checkpoint.Info{}
		}
		c.JSON(http.StatusOK, gin.H{"run_id": c.Param("id"), "checkpoints": infos})
	}
}

// handleProgress upgrades to a websocket and streams hub events until the
// client goes away. Clients may send nothing; reads only detect closure.
func (s *Server) handleProgress(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	events, unsubscribe := s.hub.Subscribe(DefaultSubscriberBuffer)
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case <-s.done:
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(ev); err != nil {
				s.logger.Debug("websocket write failed", slog.String("error", err.Error()))
				return
			}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// Start listens on addr and serves in the background. Use ":0" for an
// ephemeral port and Addr to find it.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("monitor listen %s: %w", addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.serveErr = make(chan error, 1)
	go func() {
		err := s.httpServer.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.serveErr <- err
	}()
	s.logger.Info("monitor listening", slog.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server, waiting for in-flight requests until ctx is
// done. Open websocket streams are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.done) })
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		_ = s.httpServer.Close()
		return fmt.Errorf("monitor shutdown: %w", err)
	}
	return <-s.serveErr
}
