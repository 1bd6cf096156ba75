package http

import (
	"fmt"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirecall/internal/auth"
	"github.com/vovakirdan/wirecall/internal/callengine/livekit"
	"github.com/vovakirdan/wirecall/internal/config"
)

// Option configures optional server routes.
type Option func(*serverOptions)

type serverOptions struct {
	injector Injector
	tokens   *livekit.TokenIssuer
	webhook  *livekit.WebhookReceiver
	roster   *livekit.Roster
	metrics  stdhttp.Handler
}

// WithInjector enables POST /api/engine/notify.
func WithInjector(inj Injector) Option {
	return func(o *serverOptions) { o.injector = inj }
}

// WithTokenIssuer enables POST /api/livekit/join.
func WithTokenIssuer(t *livekit.TokenIssuer) Option {
	return func(o *serverOptions) { o.tokens = t }
}

// WithWebhook enables POST /livekit/webhook. Verified events are folded by
// roster and injected into the engine.
func WithWebhook(recv *livekit.WebhookReceiver, roster *livekit.Roster) Option {
	return func(o *serverOptions) {
		o.webhook = recv
		o.roster = roster
	}
}

// WithMetrics serves h on GET /metrics.
func WithMetrics(h stdhttp.Handler) Option {
	return func(o *serverOptions) { o.metrics = h }
}

// JWTConfigFrom builds the token settings from configuration.
func JWTConfigFrom(cfg *config.Config) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
}

// NewServer builds the HTTP server exposing the phone to applications.
func NewServer(phone Phone, bridge *Bridge, history History, cfg *config.Config, logger *zerolog.Logger, opts ...Option) *stdhttp.Server {
	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	var jwtConfig *auth.JWTConfig
	if cfg.JWTRequired {
		jwtConfig = JWTConfigFrom(cfg)
	}

	router.GET("/health", healthHandler)
	router.GET("/ws", gin.WrapH(NewWSHandler(bridge, jwtConfig, cfg.WSRateLimit, logger)))
	if o.metrics != nil {
		router.GET("/metrics", gin.WrapH(o.metrics))
	}

	callsHandlers := NewCallsHandlers(phone, history, logger)
	engineHandlers := NewEngineHandlers(o.injector, o.tokens, o.webhook, o.roster, logger)

	// LiveKit signs its webhooks itself; they bypass the bridge token.
	router.POST("/livekit/webhook", engineHandlers.Webhook)

	api := router.Group("/api")
	if jwtConfig != nil {
		api.Use(AuthMiddleware(jwtConfig, logger))
	}

	api.POST("/phone/register", callsHandlers.Register)
	api.POST("/phone/deregister", callsHandlers.Deregister)

	api.POST("/calls/dial", callsHandlers.Dial)
	api.POST("/calls/answer", callsHandlers.Answer)
	api.POST("/calls/reject", callsHandlers.Reject)
	api.POST("/calls/hangup", callsHandlers.Hangup)
	api.POST("/calls/dtmf", callsHandlers.SendDTMF)
	api.POST("/calls/activation", callsHandlers.ResolveActivation)
	api.POST("/calls/aux", callsHandlers.SubscribeAux)
	api.DELETE("/calls/aux", callsHandlers.UnsubscribeAux)
	api.POST("/calls/media", callsHandlers.SetMedia)
	api.PUT("/calls/media_option", callsHandlers.SetMediaOption)
	api.GET("/calls/current", callsHandlers.Current)
	api.GET("/calls/history", callsHandlers.ListHistory)
	api.GET("/calls/history/:id", callsHandlers.GetHistory)

	api.POST("/engine/notify", engineHandlers.Notify)
	api.POST("/livekit/join", engineHandlers.JoinInfo)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	_, _ = fmt.Fprint(c.Writer, "ok")
}
