// Package v1 exposes the persistence backend's HTTP interface: chat record
// and message CRUD with the {success, data, message} envelope the worker's
// sync client consumes.
package v1

import (
	"github.com/labstack/echo/v5"

	"github.com/uselocalchat/localchat/store"
)

// APIV1Service carries the handlers' dependencies.
type APIV1Service struct {
	Store *store.Store
}

// NewAPIV1Service builds the v1 API over the given store.
func NewAPIV1Service(st *store.Store) *APIV1Service {
	return &APIV1Service{Store: st}
}

// RegisterRoutes installs the chat/message endpoints.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/chat", s.getChat)
	e.POST("/api/chat", s.createChat)
	e.POST("/api/message", s.appendMessages)
	e.DELETE("/api/message", s.deleteChat)
}
