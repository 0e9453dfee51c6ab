package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"github.com/pkg/errors"

	"github.com/uselocalchat/localchat/chat"
	"github.com/uselocalchat/localchat/plugin/engine"
)

// turnRequest is the intercepted chat-turn body. It lives only for one
// orchestration call.
type turnRequest struct {
	ID       string         `json:"id"`
	Messages []chat.Message `json:"messages"`
	ModelID  string         `json:"modelId"`
	UserID   string         `json:"userId"`
}

// handleChatTurn is the orchestration core: resolve the conversation, settle
// its title, persist the inbound user message, and stream the generated
// reply back as an event stream.
//
// Persistence is issued before the stream is handed to the page and never
// awaited by it; its failures degrade the turn, they do not fail it.
func (w *Worker) handleChatTurn(c *echo.Context) error {
	registry := w.Registry()
	if registry == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "worker not activated")
	}

	var req turnRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ModelID == "" {
		req.ModelID = w.defaultModel
	}

	userMessage := chat.MostRecentUserMessage(req.Messages)
	if userMessage == nil {
		// Malformed request: terminal, not retryable, and the engine is
		// never touched.
		return echo.NewHTTPError(http.StatusBadRequest, "no user message found")
	}

	ctx := c.Request().Context()

	record, err := w.sync.GetChat(ctx, req.ID)
	if err != nil {
		slog.Warn("degraded: chat lookup failed, treating as new", "chat", req.ID, "err", err)
	}

	// Title settlement and user-message persistence race the stream on
	// purpose; each failure lands in the error sink below, never on the page.
	if record == nil {
		w.detach(ctx, "create chat", func(ctx context.Context) error {
			return w.settleNewChat(ctx, registry, req, *userMessage)
		})
	} else {
		w.detach(ctx, "persist user message", func(ctx context.Context) error {
			return w.persistUserMessage(ctx, req.ID, *userMessage)
		})
	}

	history := chat.SanitizeUIMessages(req.Messages)
	history = append(history, w.resolveToolCalls(ctx, registry, history)...)

	rw := c.Response()
	rw.Header().Set("Content-Type", "text/event-stream")
	rw.Header().Set("Cache-Control", "no-cache")
	rw.Header().Set("Connection", "keep-alive")
	rw.Header().Set("X-Accel-Buffering", "no")
	rw.WriteHeader(http.StatusOK)

	emit := func(eventType, payload string) {
		data, _ := json.Marshal(map[string]string{"type": eventType, "content": payload})
		fmt.Fprintf(rw, "data: %s\n\n", data)
		if f, ok := rw.(http.Flusher); ok {
			f.Flush()
		}
	}

	session, err := registry.Engines.Acquire(ctx, req.ModelID, func(p engine.Progress) {
		slog.Debug("engine: load progress", "model", req.ModelID, "status", p.Status,
			"completed", p.Completed, "total", p.Total)
	})
	if err != nil {
		slog.Error("engine unavailable", "model", req.ModelID, "err", err)
		emit("error", "model could not be loaded")
		emit("done", req.ID)
		return nil
	}

	chunks, err := session.Stream(ctx, history)
	if err != nil {
		slog.Error("stream setup failed", "model", req.ModelID, "err", err)
		emit("error", "generation failed")
		emit("done", req.ID)
		return nil
	}

	for chunk := range chunks {
		if ctx.Err() != nil {
			// Page aborted: tear down silently, no further frames.
			slog.Debug("turn aborted by caller", "chat", req.ID)
			return nil
		}
		if chunk.Err != nil {
			slog.Error("generation failed mid-stream", "chat", req.ID, "err", chunk.Err)
			emit("error", "generation failed")
			break
		}
		if chunk.Done {
			break
		}
		emit("token", chunk.Content)
	}
	if ctx.Err() != nil {
		return nil
	}

	// Always terminate the stream explicitly so the page's reader can not
	// hang, failed turns included.
	emit("done", req.ID)
	return nil
}

// detach runs fn on a background context with a dedicated error sink:
// completion is observable in the logs, never awaited by the response.
func (w *Worker) detach(ctx context.Context, op string, fn func(context.Context) error) {
	bg := context.WithoutCancel(ctx)
	go func() {
		if err := fn(bg); err != nil {
			slog.Warn("degraded: background persistence failed", "op", op, "err", err)
			return
		}
		slog.Debug("background persistence completed", "op", op)
	}()
}

// settleNewChat derives a title for a first-turn conversation, creates its
// record, then persists the inbound user message. Title derivation failure
// falls back to the default title and never aborts the turn.
func (w *Worker) settleNewChat(ctx context.Context, registry *Registry, req turnRequest, userMessage chat.Message) error {
	title := chat.DefaultTitle
	if session, err := registry.Engines.Acquire(ctx, req.ModelID, nil); err != nil {
		slog.Warn("degraded: no engine session for title derivation", "chat", req.ID, "err", err)
	} else if raw, err := session.GenerateTitle(ctx, userMessage.Content); err != nil {
		slog.Warn("degraded: title derivation failed", "chat", req.ID, "err", err)
	} else {
		title = chat.CleanTitle(raw)
	}

	if err := w.sync.CreateChat(ctx, req.ID, req.UserID, title); err != nil {
		return errors.WithMessage(err, "create chat record")
	}
	return w.persistUserMessage(ctx, req.ID, userMessage)
}

func (w *Worker) persistUserMessage(ctx context.Context, chatID string, m chat.Message) error {
	m.ID = uuid.NewString()
	m.CreatedAt = time.Now().UTC()
	m.ChatID = chatID
	if err := w.sync.AppendMessages(ctx, []chat.Message{m}); err != nil {
		return errors.WithMessage(err, "append user message")
	}
	return nil
}

// resolveToolCalls executes the history's pending tool invocations whose
// tools are registered and returns their result messages. A call transitions
// to "result" exactly once; tool errors become result text, not turn errors.
func (w *Worker) resolveToolCalls(ctx context.Context, registry *Registry, messages []chat.Message) []chat.Message {
	pending := chat.PendingToolCalls(messages)
	if len(pending) == 0 {
		return nil
	}

	var out []chat.Message
	for _, inv := range pending {
		tool, ok := registry.Tools[inv.ToolName]
		if !ok {
			continue
		}
		slog.Info("tool call", "tool", inv.ToolName, "id", inv.ToolCallID)
		result, err := tool.Call(ctx, string(inv.Args))
		if err != nil {
			result = "Error: " + err.Error()
		}
		raw, err := json.Marshal(result)
		if err != nil {
			continue
		}
		out = append(out, chat.Message{
			Role: chat.RoleTool,
			ToolInvocations: []chat.ToolInvocation{{
				State:      chat.ToolStateResult,
				ToolCallID: inv.ToolCallID,
				ToolName:   inv.ToolName,
				Args:       inv.Args,
				Result:     raw,
			}},
		})
	}
	return out
}
