package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirecall/internal/callengine"
	"github.com/vovakirdan/wirecall/internal/core"
	"github.com/vovakirdan/wirecall/internal/proto"
	"github.com/vovakirdan/wirecall/internal/service/calls"
	"github.com/vovakirdan/wirecall/internal/store"
)

// Phone is the call control surface the handlers drive.
type Phone interface {
	Register(ctx context.Context) (callengine.DeviceInfo, error)
	Deregister(ctx context.Context) error
	Dial(ctx context.Context, address string, media *callengine.MediaOption) (*core.Call, error)
	Answer(ctx context.Context, media *callengine.MediaOption) (*core.Call, error)
	Reject(ctx context.Context) (*core.Call, error)
	Hangup(ctx context.Context) (*core.Call, error)
	SendDTMF(ctx context.Context, digits string) error
	ResolveVideoActivation(ctx context.Context, accept bool) (*core.Call, error)
	UpdateMediaOption(ctx context.Context, media *callengine.MediaOption) (*core.Call, error)
	SetSendingAudio(ctx context.Context, on bool) error
	SetSendingVideo(ctx context.Context, on bool) error
	SetReceivingAudio(ctx context.Context, on bool) error
	SetReceivingVideo(ctx context.Context, on bool) error
	SetReceivingShare(ctx context.Context, on bool) error
	SubscribeAuxVideo(ctx context.Context, view callengine.ViewHandle) error
	UnsubscribeAuxVideo(ctx context.Context, view callengine.ViewHandle) error
	Current(ctx context.Context) (*core.Call, error)
}

var _ Phone = (*core.Phone)(nil)

// History serves finished calls.
type History interface {
	History(ctx context.Context, limit int) ([]*store.CallRecord, error)
	Get(ctx context.Context, id string) (*store.CallRecord, error)
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	// Call is set when the error concerns an existing call.
	Call *proto.Call `json:"call,omitempty"`
}

// CallResponse wraps the call a command acted on.
type CallResponse struct {
	Call *proto.Call `json:"call"`
}

// CallsHandlers provides HTTP handlers for call control endpoints.
type CallsHandlers struct {
	phone   Phone
	history History
	log     *zerolog.Logger
}

// NewCallsHandlers creates a new calls handlers instance.
func NewCallsHandlers(phone Phone, history History, logger *zerolog.Logger) *CallsHandlers {
	return &CallsHandlers{
		phone:   phone,
		history: history,
		log:     logger,
	}
}

// statusFor maps call errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrIllegalOperation), errors.Is(err, core.ErrInvalidDTMF):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnregistered):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrRequireVideoCapability):
		return http.StatusForbidden
	case errors.Is(err, core.ErrIllegalStatus):
		return http.StatusConflict
	case errors.Is(err, core.ErrUnsupportedDTMF):
		return http.StatusNotImplemented
	case errors.Is(err, core.ErrPhoneStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *CallsHandlers) writeError(c *gin.Context, op string, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}

	var callErr *core.CallError
	if errors.As(err, &callErr) {
		resp.Code = callErr.Code
		if callErr.Call != nil {
			pc := callToProto(callErr.Call)
			resp.Call = &pc
		}
	}
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("op", op).Msg("call command failed")
		resp.Error = "internal server error"
	} else {
		h.log.Debug().Err(err).Str("op", op).Msg("call command rejected")
	}
	c.JSON(status, resp)
}

func (h *CallsHandlers) writeCall(c *gin.Context, status int, call *core.Call) {
	var pc *proto.Call
	if call != nil {
		v := callToProto(call)
		pc = &v
	}
	c.JSON(status, CallResponse{Call: pc})
}

// Register handles phone registration.
// POST /api/phone/register
func (h *CallsHandlers) Register(c *gin.Context) {
	info, err := h.phone.Register(c.Request.Context())
	if err != nil {
		h.writeError(c, "register", err)
		return
	}
	c.JSON(http.StatusOK, proto.Device{DeviceURL: info.DeviceURL, PersonID: info.PersonID})
}

// Deregister handles phone deregistration.
// POST /api/phone/deregister
func (h *CallsHandlers) Deregister(c *gin.Context) {
	if err := h.phone.Deregister(c.Request.Context()); err != nil {
		h.writeError(c, "deregister", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Dial places an outgoing call.
// POST /api/calls/dial
func (h *CallsHandlers) Dial(c *gin.Context) {
	var req proto.DialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid dial request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	call, err := h.phone.Dial(c.Request.Context(), req.Address, mediaOption(req.Video, req.Share, req.LocalView, req.RemoteView))
	if err != nil {
		h.writeError(c, "dial", err)
		return
	}

	h.log.Info().Str("call_id", string(call.ID)).Str("address", req.Address).Msg("call dialed")
	h.writeCall(c, http.StatusCreated, call)
}

// Answer joins the incoming call.
// POST /api/calls/answer
func (h *CallsHandlers) Answer(c *gin.Context) {
	var req proto.AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid answer request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	call, err := h.phone.Answer(c.Request.Context(), mediaOption(req.Video, false, req.LocalView, req.RemoteView))
	if err != nil {
		h.writeError(c, "answer", err)
		return
	}
	h.writeCall(c, http.StatusOK, call)
}

// Reject declines the incoming call.
// POST /api/calls/reject
func (h *CallsHandlers) Reject(c *gin.Context) {
	call, err := h.phone.Reject(c.Request.Context())
	if err != nil {
		h.writeError(c, "reject", err)
		return
	}
	h.writeCall(c, http.StatusOK, call)
}

// Hangup ends or cancels the active call.
// POST /api/calls/hangup
func (h *CallsHandlers) Hangup(c *gin.Context) {
	call, err := h.phone.Hangup(c.Request.Context())
	if err != nil {
		h.writeError(c, "hangup", err)
		return
	}
	h.writeCall(c, http.StatusOK, call)
}

// SendDTMF sends tones on the connected call.
// POST /api/calls/dtmf
func (h *CallsHandlers) SendDTMF(c *gin.Context) {
	var req proto.DTMFRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if err := h.phone.SendDTMF(c.Request.Context(), req.Digits); err != nil {
		h.writeError(c, "dtmf", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ResolveActivation accepts or declines the pending video license prompt.
// POST /api/calls/activation
func (h *CallsHandlers) ResolveActivation(c *gin.Context) {
	var req proto.ActivationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	call, err := h.phone.ResolveVideoActivation(c.Request.Context(), req.Accept)
	if err != nil {
		h.writeError(c, "activation", err)
		return
	}
	h.writeCall(c, http.StatusOK, call)
}

// SubscribeAux opens an aux stream.
// POST /api/calls/aux
func (h *CallsHandlers) SubscribeAux(c *gin.Context) {
	var req proto.AuxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if err := h.phone.SubscribeAuxVideo(c.Request.Context(), callengine.ViewHandle(req.View)); err != nil {
		h.writeError(c, "subscribe_aux", err)
		return
	}
	c.Status(http.StatusAccepted)
}

// UnsubscribeAux closes an aux stream; an empty view closes the latest one.
// DELETE /api/calls/aux
func (h *CallsHandlers) UnsubscribeAux(c *gin.Context) {
	var req proto.AuxRequest
	// The body is optional.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
	}
	if err := h.phone.UnsubscribeAuxVideo(c.Request.Context(), callengine.ViewHandle(req.View)); err != nil {
		h.writeError(c, "unsubscribe_aux", err)
		return
	}
	c.Status(http.StatusAccepted)
}

// SetMedia toggles local and receive media.
// POST /api/calls/media
func (h *CallsHandlers) SetMedia(c *gin.Context) {
	var req proto.MediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	toggles := []struct {
		name string
		val  *bool
		fn   func(context.Context, bool) error
	}{
		{"audio", req.Audio, h.phone.SetSendingAudio},
		{"video", req.Video, h.phone.SetSendingVideo},
		{"receive_audio", req.ReceiveAudio, h.phone.SetReceivingAudio},
		{"receive_video", req.ReceiveVideo, h.phone.SetReceivingVideo},
		{"receive_share", req.ReceiveShare, h.phone.SetReceivingShare},
	}
	for _, t := range toggles {
		if t.val == nil {
			continue
		}
		if err := t.fn(ctx, *t.val); err != nil {
			h.writeError(c, "media_"+t.name, err)
			return
		}
	}
	c.Status(http.StatusAccepted)
}

// SetMediaOption renegotiates the media of the active call.
// PUT /api/calls/media_option
func (h *CallsHandlers) SetMediaOption(c *gin.Context) {
	var req proto.MediaOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	call, err := h.phone.UpdateMediaOption(c.Request.Context(), mediaOption(req.Video, req.Share, req.LocalView, req.RemoteView))
	if err != nil {
		h.writeError(c, "media_option", err)
		return
	}
	h.writeCall(c, http.StatusOK, call)
}

// Current returns the active call.
// GET /api/calls/current
func (h *CallsHandlers) Current(c *gin.Context) {
	call, err := h.phone.Current(c.Request.Context())
	if err != nil {
		h.writeError(c, "current", err)
		return
	}
	if call == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no call in use"})
		return
	}
	h.writeCall(c, http.StatusOK, call)
}

// ListHistory returns finished calls.
// GET /api/calls/history?limit=
func (h *CallsHandlers) ListHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	records, err := h.history.History(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list call history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	out := make([]proto.CallRecord, 0, len(records))
	for _, r := range records {
		out = append(out, recordToProto(r))
	}
	c.JSON(http.StatusOK, gin.H{"calls": out})
}

// GetHistory returns one finished call.
// GET /api/calls/history/:id
func (h *CallsHandlers) GetHistory(c *gin.Context) {
	rec, err := h.history.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, calls.ErrCallNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "call not found"})
			return
		}
		h.log.Error().Err(err).Msg("failed to get call record")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, recordToProto(rec))
}
