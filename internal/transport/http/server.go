package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/duochat/duochat-server/internal/auth"
	"github.com/duochat/duochat-server/internal/config"
	"github.com/duochat/duochat-server/internal/core"
	"github.com/duochat/duochat-server/internal/store"
)

// NewServer builds the HTTP server: REST API, WebSocket endpoint, health.
func NewServer(gw *core.Gateway, authService *auth.Service, st store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	authHandlers := NewAuthHandlers(authService, logger)
	userHandlers := NewUserHandlers(st, logger)
	chatHandlers := NewChatHandlers(st, logger)

	api := router.Group("/api")
	api.POST("/auth/signup", authHandlers.Signup)
	api.POST("/auth/signin", authHandlers.Signin)

	authed := api.Group("", AuthMiddleware(authService, logger))
	authed.GET("/users", userHandlers.ListUsers)
	authed.POST("/chat/session", chatHandlers.CreateSession)
	authed.GET("/chat/:room_id/messages", chatHandlers.ListRoomMessages)

	router.GET("/ws", gin.WrapH(NewWSHandler(gw, cfg.WSRateLimitPerMinute, logger)))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
