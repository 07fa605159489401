// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package gintransport_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/gatekeep/internal/transport"
	"github.com/holomush/gatekeep/internal/transport/gintransport"
)

func newRouter(handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(sessions.Sessions("gatekeep_session", cookie.NewStore([]byte("0123456789abcdef0123456789abcdef"))))
	r.GET("/", handler)
	return r
}

func TestTransport_SlotsPersistAcrossRequests(t *testing.T) {
	opts := transport.DefaultOptions()
	router := newRouter(func(c *gin.Context) {
		tr := gintransport.New(c, opts)
		if v, ok := tr.SessionValue("user_credentials"); ok {
			c.String(http.StatusOK, v)
			return
		}
		tr.SetSessionValue("user_credentials", "tok")
		v, _ := tr.SessionValue("user_credentials")
		if err := tr.Commit(c.Request.Context()); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusCreated, v)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "tok", rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok", rec.Body.String())
}

func TestTransport_Cookies(t *testing.T) {
	opts := transport.DefaultOptions()
	var seen []string
	router := newRouter(func(c *gin.Context) {
		tr := gintransport.New(c, opts)
		v, _ := tr.Cookie("user_credentials")
		seen = append(seen, v)

		tr.SetCookie("user_credentials", "fresh", time.Now().Add(time.Hour))
		v, _ = tr.Cookie("user_credentials")
		seen = append(seen, v)

		tr.DeleteCookie("user_credentials")
		_, ok := tr.Cookie("user_credentials")
		if ok {
			seen = append(seen, "still-present")
		}

		login, _, _ := tr.BasicAuth()
		seen = append(seen, login, tr.RequestOrigin())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	req.SetBasicAuth("alice", "pw")
	req.AddCookie(&http.Cookie{Name: "user_credentials", Value: "inbound"})
	router.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, []string{"inbound", "fresh", "alice", "203.0.113.5"}, seen)
}
