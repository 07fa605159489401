// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/holomush/gatekeep/internal/transport"
	"github.com/holomush/gatekeep/internal/transport/gintransport"
)

// RequestTransport is a transport that buffers slot writes until Commit.
type RequestTransport interface {
	transport.Transport
	transport.Committer
}

// TransportFactory binds a transport to one gin request.
type TransportFactory func(c *gin.Context) (RequestTransport, error)

// GinTransports keeps session slots in gin-contrib/sessions. The router must
// install the sessions middleware.
func GinTransports(opts transport.Options) TransportFactory {
	return func(c *gin.Context) (RequestTransport, error) {
		return gintransport.New(c, opts), nil
	}
}

// SlotTransports keeps session slots in a server-side slot store.
func SlotTransports(slots transport.SlotStore, opts transport.Options) TransportFactory {
	return func(c *gin.Context) (RequestTransport, error) {
		return transport.NewHTTP(c.Request.Context(), c.Writer, c.Request, slots, opts)
	}
}
