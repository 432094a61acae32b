// Package handlers exposes the HTTP surface: webhook verification,
// event delivery, and the public storage directory.
package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/crmlat/wabot/internal/prune"
)

const maxBodyBytes int64 = 1 << 20 // 1 MiB

// EventRouter processes one raw webhook body.
type EventRouter interface {
	Route(ctx context.Context, raw []byte) error
}

type webhookResponse struct {
	Success bool   `json:"success"`
	Data    string `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// WebhookHandler receives Cloud API webhook callbacks.
type WebhookHandler struct {
	verifyToken string
	router      EventRouter
	logger      *slog.Logger
}

// NewWebhookHandler creates the webhook endpoint handler.
func NewWebhookHandler(log *slog.Logger, verifyToken string, router EventRouter) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		verifyToken: verifyToken,
		router:      router,
		logger:      log.With(slog.String("handler", "webhook")),
	}
}

// Register registers the webhook routes.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.GET("/webhook", h.Verify)
	e.POST("/webhook", h.Handle)
}

// Verify answers the platform's subscription handshake: echo the
// challenge when the mode and token match, refuse otherwise.
func (h *WebhookHandler) Verify(c echo.Context) error {
	mode := c.QueryParam("hub_mode")
	token := c.QueryParam("hub_verify_token")
	challenge := c.QueryParam("hub_challenge")

	if mode == "subscribe" && token != "" && token == h.verifyToken {
		return c.String(http.StatusOK, challenge)
	}

	h.logger.Warn("webhook verification refused", slog.String("mode", mode))
	return c.JSON(http.StatusForbidden, webhookResponse{Success: false, Error: "verification failed"})
}

// Handle processes one event delivery. Processing failures answer 500 so
// the platform redelivers; handled and intentionally-ignored shapes both
// answer 200.
func (h *WebhookHandler) Handle(c echo.Context) error {
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, webhookResponse{Success: false, Error: "read body: " + err.Error()})
	}

	if err := h.router.Route(c.Request().Context(), raw); err != nil {
		h.logger.Error("webhook processing failed",
			slog.Any("error", err),
			slog.String("payload", prune.Clip(string(raw), prune.DefaultMaxBytes)))
		return c.JSON(http.StatusInternalServerError, webhookResponse{Success: false, Error: err.Error()})
	}

	return c.JSON(http.StatusOK, webhookResponse{Success: true})
}
