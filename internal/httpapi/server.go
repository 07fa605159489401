// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi exposes account registration and session management over
// HTTP. Every non-skipped request gets its own transport; handlers commit it
// before writing a response.
package httpapi

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/holomush/gatekeep/internal/credential"
	"github.com/holomush/gatekeep/internal/observability"
	"github.com/holomush/gatekeep/internal/registry"
	"github.com/holomush/gatekeep/internal/session"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithSkipPaths sets glob patterns for paths that get no transport.
// Patterns use '/' as the separator, so "/healthz/*" matches one segment.
func WithSkipPaths(patterns ...string) Option {
	return func(s *Server) {
		s.skipPatterns = append(s.skipPatterns, patterns...)
	}
}

// WithMiddleware installs gin middleware ahead of the transport binding,
// e.g. the gin-contrib/sessions middleware GinTransports needs.
func WithMiddleware(mw ...gin.HandlerFunc) Option {
	return func(s *Server) {
		s.middleware = append(s.middleware, mw...)
	}
}

// WithMetrics counts requests on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithTLS serves HTTPS with cfg.
func WithTLS(cfg *tls.Config) Option {
	return func(s *Server) {
		s.tlsConfig = cfg
	}
}

// Server is the HTTP front end for a Registry.
type Server struct {
	registry   *registry.Registry
	engine     *session.Engine
	creds      *credential.Store
	transports TransportFactory

	logger       *slog.Logger
	metrics      *observability.Metrics
	middleware   []gin.HandlerFunc
	skipPatterns []string
	skip         []glob.Glob
	tlsConfig    *tls.Config

	router     *gin.Engine
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// New builds the router.
func New(reg *registry.Registry, creds *credential.Store, transports TransportFactory, opts ...Option) (*Server, error) {
	if reg == nil || creds == nil || transports == nil {
		return nil, oops.Code("HTTPAPI_INVALID_CONFIG").Errorf("registry, credential store and transport factory are required")
	}

	s := &Server{
		registry:   reg,
		engine:     reg.Engine(),
		creds:      creds,
		transports: transports,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, p := range s.skipPatterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, oops.Code("HTTPAPI_INVALID_SKIP_PATH").With("pattern", p).Wrap(err)
		}
		s.skip = append(s.skip, g)
	}

	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestID())
	if s.metrics != nil {
		r.Use(s.countRequests())
	}
	r.Use(s.middleware...)
	r.Use(s.bindTransport())

	r.POST("/accounts", s.register)
	r.PUT("/accounts/current/password", s.changePassword)
	r.POST("/accounts/current/forget", s.forget)
	r.POST("/sessions", s.login)
	r.GET("/sessions/current", s.current)
	r.DELETE("/sessions/current", s.logout)
	return r
}

// Handler returns the router without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving on addr. The returned channel receives a serve error,
// if any, and is closed when the server stops.
func (s *Server) Start(addr string) (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("HTTPAPI_ALREADY_RUNNING").Errorf("http server already running")
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("HTTPAPI_LISTEN_FAILED").With("addr", addr).Wrap(err)
	}
	if s.tlsConfig != nil {
		listener = tls.NewListener(listener, s.tlsConfig)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := s.httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("http server started", "addr", listener.Addr().String(), "tls", s.tlsConfig != nil)
	return errCh, nil
}

// Stop gracefully shuts the server down. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.Code("HTTPAPI_SHUTDOWN_FAILED").Wrap(err)
	}
	s.logger.Info("http server stopped")
	return nil
}

// Addr returns the listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
