package v1

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/uselocalchat/localchat/chat"
	"github.com/uselocalchat/localchat/store"
)

// sessionHeader carries the authenticated principal. The session system
// itself lives outside this service; it injects the header after
// authenticating the caller.
const sessionHeader = "X-User-Id"

type createChatRequest struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Title  string `json:"title"`
}

type appendMessagesRequest struct {
	Messages []chat.Message `json:"messages"`
}

func (s *APIV1Service) getChat(c *echo.Context) error {
	id := c.QueryParam("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Chat id is required"})
	}

	record, err := s.Store.GetChat(c.Request().Context(), &store.FindChat{ID: &id})
	if err != nil {
		slog.Error("get chat failed", "chat", id, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}

	var data *chat.Record
	if record != nil {
		data = record.Record()
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data":    data,
		"message": "Get chat successfully",
	})
}

func (s *APIV1Service) createChat(c *echo.Context) error {
	var req createChatRequest
	if err := c.Bind(&req); err != nil || req.ID == "" || req.UserID == "" || req.Title == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "id, userId, and title is required"})
	}

	if _, err := s.Store.CreateChat(c.Request().Context(), &store.Chat{
		ID:         req.ID,
		UserID:     req.UserID,
		Title:      req.Title,
		Visibility: string(chat.VisibilityPrivate),
	}); err != nil {
		slog.Error("create chat failed", "chat", req.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "Save chat successfully",
	})
}

func (s *APIV1Service) appendMessages(c *echo.Context) error {
	var req appendMessagesRequest
	if err := c.Bind(&req); err != nil || len(req.Messages) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "messages is required"})
	}

	creates := make([]*store.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		row, err := store.FromUIMessage(m)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid message payload"})
		}
		creates = append(creates, row)
	}

	if err := s.Store.CreateMessages(c.Request().Context(), creates); err != nil {
		slog.Error("append messages failed", "count", len(creates), "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "Message save successfully",
	})
}

// deleteChat removes a chat and its messages. Only the chat's owner may
// delete it.
func (s *APIV1Service) deleteChat(c *echo.Context) error {
	id := c.QueryParam("id")
	if id == "" {
		return c.String(http.StatusNotFound, "Not Found")
	}

	principal := c.Request().Header.Get(sessionHeader)
	if principal == "" {
		return c.String(http.StatusUnauthorized, "Unauthorized")
	}

	record, err := s.Store.GetChat(c.Request().Context(), &store.FindChat{ID: &id})
	if err != nil {
		slog.Error("delete chat lookup failed", "chat", id, "err", err)
		return c.String(http.StatusInternalServerError, "An error occurred while processing your request")
	}
	if record == nil {
		return c.String(http.StatusNotFound, "Not Found")
	}
	if record.UserID != principal {
		return c.String(http.StatusUnauthorized, "Unauthorized")
	}

	if err := s.Store.DeleteChat(c.Request().Context(), id); err != nil {
		slog.Error("delete chat failed", "chat", id, "err", err)
		return c.String(http.StatusInternalServerError, "An error occurred while processing your request")
	}
	return c.String(http.StatusOK, "Chat deleted")
}
