// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/holomush/gatekeep/internal/transport"
)

const (
	loggerKey    = "gatekeep.logger"
	transportKey = "gatekeep.transport"
)

// requestID echoes or mints X-Request-ID and attaches a request logger.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Set(loggerKey, s.logger.With("request_id", id))
		c.Next()
	}
}

func (s *Server) countRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		class := strconv.Itoa(c.Writer.Status()/100) + "xx"
		s.metrics.RequestsTotal.WithLabelValues(route, class).Inc()
	}
}

// bindTransport gives every non-skipped request a transport and puts it on
// the request context.
func (s *Server) bindTransport() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, g := range s.skip {
			if g.Match(path) {
				c.Next()
				return
			}
		}

		t, err := s.transports(c)
		if err != nil {
			s.fail(c, "failed to bind transport", err)
			return
		}
		c.Set(transportKey, t)
		c.Request = c.Request.WithContext(transport.NewContext(c.Request.Context(), t))
		c.Next()

		// Handlers commit before rendering; this covers ones that wrote nothing.
		if !c.Writer.Written() {
			if err := t.Commit(c.Request.Context()); err != nil {
				s.log(c).WarnContext(c.Request.Context(), "failed to commit transport", "error", err)
			}
		}
	}
}

func (s *Server) log(c *gin.Context) *slog.Logger {
	if l, ok := c.Get(loggerKey); ok {
		if logger, ok := l.(*slog.Logger); ok {
			return logger
		}
	}
	return s.logger
}

func requestTransport(c *gin.Context) (RequestTransport, bool) {
	v, ok := c.Get(transportKey)
	if !ok {
		return nil, false
	}
	t, ok := v.(RequestTransport)
	return t, ok
}
