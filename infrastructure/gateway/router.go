// Package gateway exposes the chat services over HTTP: JSON endpoints for
// requests and WebSockets for the live streams.
package gateway

import (
	"chat-relay/auth"
	"chat-relay/services"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	defaultPingInterval         = 30 * time.Second
	defaultConnectionBufferSize = 64
)

type Config struct {
	PingInterval         time.Duration
	ConnectionBufferSize int
}

type Handler struct {
	log            *slog.Logger
	authenticator  auth.Authenticator
	accountService services.IAccountService
	chatService    services.IChatService
	cfg            Config
}

// NewRouter mounts every route under /v1.
func NewRouter(log *slog.Logger, authenticator auth.Authenticator,
	accountService services.IAccountService, chatService services.IChatService, cfg Config) *gin.Engine {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.ConnectionBufferSize <= 0 {
		cfg.ConnectionBufferSize = defaultConnectionBufferSize
	}
	h := &Handler{
		log:            log,
		authenticator:  authenticator,
		accountService: accountService,
		chatService:    chatService,
		cfg:            cfg,
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))
	r.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })

	v1 := r.Group("/v1")
	v1.POST("/register", h.register)
	v1.POST("/authenticate", h.authenticate)

	private := v1.Group("", h.requireIdentity)
	private.POST("/logout", h.logout)
	private.GET("/accounts/me", h.getMe)
	private.PATCH("/accounts/me", h.updateProfile)
	private.GET("/accounts", h.listOtherAccounts)
	private.GET("/conversations", h.listConversations)
	private.GET("/conversations/:key/messages", h.listMessages)
	private.POST("/messages", h.sendMessage)
	private.GET("/search", h.searchMessages)
	private.GET("/ws/conversations", h.streamSummaries)
	private.GET("/ws/conversations/:key", h.streamMessages)
	return r
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("HTTP request",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// requireIdentity reads the bearer token from the Authorization header.
// Browsers cannot set headers on a WebSocket handshake, so the
// access_token query parameter is accepted too.
func (h *Handler) requireIdentity(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if token := c.Query("access_token"); token != "" {
			header = "Bearer " + token
		}
	}
	identity, err := h.authenticator.Authenticate(c.Request.Context(), header)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), identity))
	c.Next()
}
