package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirecall/internal/auth"
	"github.com/vovakirdan/wirecall/internal/callengine"
	"github.com/vovakirdan/wirecall/internal/proto"
)

const handshakeTimeout = 10 * time.Second

var (
	errUnauthorized       = errors.New("unauthorized")
	errUnsupportedVersion = errors.New("unsupported protocol version")
)

// WSHandler upgrades HTTP connections and streams bridge events to them.
// When jwt is set the first message must be a hello carrying a valid token.
type WSHandler struct {
	bridge    *Bridge
	jwt       *auth.JWTConfig
	rateLimit int
	log       *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler. rateLimit caps inbound
// messages per client per minute.
func NewWSHandler(bridge *Bridge, jwt *auth.JWTConfig, rateLimit int, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{bridge: bridge, jwt: jwt, rateLimit: rateLimit, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if h.jwt != nil {
		if err := h.handshake(ctx, conn); err != nil {
			h.log.Debug().Err(err).Msg("ws handshake failed")
			conn.Close(websocket.StatusPolicyViolation, err.Error())
			return
		}
	}

	client := h.bridge.subscribe()
	defer h.bridge.unsubscribe(client)

	if err := wsjson.Write(ctx, conn, proto.Outbound{
		Type: proto.OutboundTypeReady,
		Data: proto.Ready{ClientID: client.id, Protocol: proto.ProtocolVersion},
	}); err != nil {
		h.log.Warn().Err(err).Str("client_id", client.id).Msg("write ready")
		return
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// handshake waits for the hello and validates its token.
func (h *WSHandler) handshake(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	var inbound proto.Inbound
	if err := wsjson.Read(ctx, conn, &inbound); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}

	var hello proto.HelloData
	if inbound.Type != proto.InboundTypeHello || json.Unmarshal(inbound.Data, &hello) != nil {
		h.writeError(ctx, conn, "unauthorized", "hello required")
		return errUnauthorized
	}
	if err := h.checkProtocol(ctx, conn, hello); err != nil {
		return err
	}
	claims, err := auth.ValidateToken(h.jwt, hello.Token)
	if err != nil {
		h.writeError(ctx, conn, "unauthorized", "invalid token")
		return fmt.Errorf("%w: %v", errUnauthorized, err)
	}
	h.log.Debug().Str("subject", claims.Subject).Msg("ws client authenticated")
	return nil
}

func (h *WSHandler) checkProtocol(ctx context.Context, conn *websocket.Conn, hello proto.HelloData) error {
	if hello.Protocol != 0 && hello.Protocol != proto.ProtocolVersion {
		h.writeError(ctx, conn, "unsupported_version", fmt.Sprintf("protocol %d is not supported", hello.Protocol))
		return errUnsupportedVersion
	}
	return nil
}

func (h *WSHandler) writeError(ctx context.Context, conn *websocket.Conn, code, msg string) {
	if err := wsjson.Write(ctx, conn, proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: &proto.Error{Code: code, Msg: msg},
	}); err != nil {
		h.log.Debug().Err(err).Msg("write ws error")
	}
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *wsClient) error {
	limiter := newRateLimiter(h.rateLimit)
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			h.log.Debug().Err(err).Str("client_id", client.id).Msg("read ws inbound")
			return err
		}
		if !limiter.allow() {
			h.writeError(ctx, conn, "rate_limited", "too many messages")
			continue
		}

		switch inbound.Type {
		case proto.InboundTypeHello:
			var hello proto.HelloData
			if err := json.Unmarshal(inbound.Data, &hello); err != nil {
				h.writeError(ctx, conn, "bad_request", "invalid hello")
				continue
			}
			// A late hello only negotiates the protocol.
			_ = h.checkProtocol(ctx, conn, hello)
		case proto.InboundTypeAux:
			var aux proto.AuxViewData
			if err := json.Unmarshal(inbound.Data, &aux); err != nil || aux.View == "" {
				h.writeError(ctx, conn, "bad_request", "view is required")
				continue
			}
			h.bridge.OfferView(callengine.ViewHandle(aux.View))
		default:
			h.writeError(ctx, conn, "invalid_message", "unknown message type")
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *wsClient) error {
	for {
		select {
		case out, ok := <-client.events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, out); err != nil {
				h.log.Error().Err(err).Str("client_id", client.id).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
