package worker

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
)

// keepAlivePath is the well-known asset that keeps the worker warm.
const keepAlivePath = "/ping.txt"

// messageTimeout bounds how long the HTTP bridge waits for a protocol reply.
const messageTimeout = 5 * time.Second

// Gateway is the request interception router. It takes over response
// production for the chat-turn path; every other request falls through to
// the backend API or the upstream page application.
type Gateway struct {
	worker      *Worker
	upstreamURL *url.URL
	backend     *httputil.ReverseProxy
	upstream    *httputil.ReverseProxy
	httpc       *http.Client
}

// NewGateway builds the gateway routing to the given backend and upstream
// origins.
func NewGateway(w *Worker, backendURL, upstreamURL string) (*Gateway, error) {
	backend, err := url.Parse(backendURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parse backend URL %q", backendURL)
	}
	upstream, err := url.Parse(upstreamURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parse upstream URL %q", upstreamURL)
	}
	return &Gateway{
		worker:      w,
		upstreamURL: upstream,
		backend:     httputil.NewSingleHostReverseProxy(backend),
		upstream:    httputil.NewSingleHostReverseProxy(upstream),
		httpc:       &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Echo assembles the route table. Matching is exact-path route lookup with
// no side effects; only POST /api/chat is taken over.
func (g *Gateway) Echo() *echo.Echo {
	e := echo.New()

	e.POST("/api/chat", g.worker.handleChatTurn)
	e.GET(keepAlivePath, g.handleKeepAlive)
	e.POST("/worker/message", g.handleWorkerMessage)

	// The backend owns the rest of the chat CRUD surface.
	e.GET("/api/chat", g.proxy(g.backend))
	e.POST("/api/message", g.proxy(g.backend))
	e.DELETE("/api/message", g.proxy(g.backend))

	// Everything else is the page application's business.
	e.Any("/*", g.proxy(g.upstream))

	return e
}

func (g *Gateway) proxy(p *httputil.ReverseProxy) echo.HandlerFunc {
	return func(c *echo.Context) error {
		p.ServeHTTP(c.Response(), c.Request())
		return nil
	}
}

// handleKeepAlive serves the keep-alive asset cache-first: a fresh cached
// copy never touches the network and serving it refreshes its expiry.
func (g *Gateway) handleKeepAlive(c *echo.Context) error {
	if body, contentType, ok := g.worker.cache.Get(); ok {
		return c.Blob(http.StatusOK, contentType, body)
	}

	target := g.upstreamURL.JoinPath(keepAlivePath).String()
	req, err := http.NewRequestWithContext(c.Request().Context(), http.MethodGet, target, nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "keep-alive fetch failed")
	}
	resp, err := g.httpc.Do(req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "keep-alive fetch failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return echo.NewHTTPError(resp.StatusCode, "keep-alive fetch failed")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "keep-alive fetch failed")
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	g.worker.cache.Put(body, contentType)
	return c.Blob(http.StatusOK, contentType, body)
}

// handleWorkerMessage bridges the page onto the worker's message protocol.
// The reply echoes the caller's correlation id; a silent worker answers with
// a timeout instead of blocking forever.
func (g *Gateway) handleWorkerMessage(c *echo.Context) error {
	var msg Message
	if err := c.Bind(&msg); err != nil || msg.Kind == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "kind is required")
	}
	if msg.UUID == "" {
		msg.UUID = shortuuid.New()
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), messageTimeout)
	defer cancel()

	reply, err := g.worker.Send(ctx, msg)
	if err != nil {
		// The caller leaving is not a worker timeout; there is nobody left to
		// answer either way.
		if c.Request().Context().Err() != nil {
			slog.Debug("worker message abandoned by caller", "kind", msg.Kind, "uuid", msg.UUID)
			return nil
		}
		return echo.NewHTTPError(http.StatusGatewayTimeout, "no reply from worker")
	}
	return c.JSON(http.StatusOK, reply)
}
