// Package server assembles the persistence backend: an HTTP server exposing
// the chat/message API over the store.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/pkg/errors"

	"github.com/uselocalchat/localchat/internal/profile"
	apiv1 "github.com/uselocalchat/localchat/server/router/api/v1"
	"github.com/uselocalchat/localchat/store"
)

// Server is the backend API process half of localchat.
type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	httpServer *http.Server
}

// NewServer builds the backend with its route table registered.
func NewServer(p *profile.Profile, st *store.Store) *Server {
	e := echo.New()
	apiv1.NewAPIV1Service(st).RegisterRoutes(e)

	return &Server{
		Profile:    p,
		Store:      st,
		echoServer: e,
		httpServer: &http.Server{
			Addr:              p.BackendAddr,
			Handler:           e,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start serves until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "backend server failed")
	}
	return nil
}

// Shutdown drains in-flight requests and closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "shutdown backend server")
	}
	return s.Store.Close()
}
