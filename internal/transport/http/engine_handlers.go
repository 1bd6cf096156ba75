package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirecall/internal/callengine"
	"github.com/vovakirdan/wirecall/internal/callengine/livekit"
)

// Injector feeds notifications into a scriptable engine.
type Injector interface {
	Inject(n callengine.Notification)
}

// JoinRequest asks for LiveKit credentials for a call's room.
type JoinRequest struct {
	CallID   string `json:"call_id" binding:"required"`
	Identity string `json:"identity" binding:"required"`
	Name     string `json:"name"`
}

// EngineHandlers exposes engine-side helpers: notification injection for the
// loopback engine, LiveKit join credentials and LiveKit webhooks.
type EngineHandlers struct {
	injector Injector
	tokens   *livekit.TokenIssuer
	webhook  *livekit.WebhookReceiver
	roster   *livekit.Roster
	log      *zerolog.Logger
}

// NewEngineHandlers creates engine handlers. Any dependency may be nil.
func NewEngineHandlers(injector Injector, tokens *livekit.TokenIssuer, webhook *livekit.WebhookReceiver, roster *livekit.Roster, logger *zerolog.Logger) *EngineHandlers {
	return &EngineHandlers{injector: injector, tokens: tokens, webhook: webhook, roster: roster, log: logger}
}

// Notify injects one engine notification.
// POST /api/engine/notify
func (h *EngineHandlers) Notify(c *gin.Context) {
	if h.injector == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "engine does not accept injected notifications"})
		return
	}

	var n callengine.Notification
	if err := c.ShouldBindJSON(&n); err != nil || n.Kind == "" {
		h.log.Debug().Err(err).Msg("invalid notification")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	h.injector.Inject(n)
	h.log.Debug().Str("kind", string(n.Kind)).Str("call_id", string(n.CallID)).Msg("notification injected")
	c.Status(http.StatusAccepted)
}

// JoinInfo issues LiveKit credentials for a call's room.
// POST /api/livekit/join
func (h *EngineHandlers) JoinInfo(c *gin.Context) {
	if h.tokens == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "livekit is not enabled"})
		return
	}

	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	info, err := h.tokens.JoinInfo(callengine.CallID(req.CallID), req.Identity, req.Name)
	if err != nil {
		h.log.Error().Err(err).Str("call_id", req.CallID).Msg("failed to issue join info")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, info)
}

// Webhook folds a signed LiveKit webhook into engine notifications.
// POST /livekit/webhook
func (h *EngineHandlers) Webhook(c *gin.Context) {
	if h.webhook == nil || h.roster == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "livekit is not enabled"})
		return
	}
	if h.injector == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "engine does not accept injected notifications"})
		return
	}

	ev, err := h.webhook.Receive(c.Request)
	if err != nil {
		h.log.Warn().Err(err).Msg("rejected livekit webhook")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid webhook"})
		return
	}

	notes := h.roster.Apply(ev)
	for _, n := range notes {
		h.injector.Inject(n)
	}
	h.log.Debug().
		Str("event", ev.GetEvent()).
		Str("room", ev.GetRoom().GetName()).
		Int("notifications", len(notes)).
		Msg("livekit webhook applied")
	c.Status(http.StatusOK)
}
