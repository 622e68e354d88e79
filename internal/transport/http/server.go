package http

import (
	stdhttp "net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirecall-server/internal/auth"
	"github.com/vovakirdan/wirecall-server/internal/config"
	"github.com/vovakirdan/wirecall-server/internal/core"
	"github.com/vovakirdan/wirecall-server/internal/store"
)

// NewServer builds the HTTP server: REST API, health check and websocket endpoint.
func NewServer(hub *core.Hub, authService *auth.Service, users store.UserStore, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(hub, authService, users, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewHandler mounts the websocket endpoint next to the gin router. /ws stays
// on the plain mux because gin's writer cannot be hijacked once it has
// written a status.
func NewHandler(hub *core.Hub, authService *auth.Service, users store.UserStore, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, authService, cfg, logger))
	mux.Handle("/", NewRouter(hub, authService, users, cfg, logger))
	return mux
}

// NewRouter builds the gin engine with the health check and REST routes.
func NewRouter(hub *core.Hub, authService *auth.Service, users store.UserStore, cfg *config.Config, logger *zerolog.Logger) *gin.Engine {
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler(hub))

	apiHandlers := NewAPIHandlers(authService, users, logger)
	messageHandlers := NewMessageHandlers(hub, cfg, logger)
	callHandlers := NewCallHandlers(hub, logger)

	api := router.Group("/api")
	api.POST("/auth/register", apiHandlers.Register)
	api.POST("/auth/login", apiHandlers.Login)

	protected := api.Group("")
	protected.Use(AuthMiddleware(authService, logger))
	protected.GET("/auth/me", apiHandlers.Me)
	protected.PUT("/auth/avatar", apiHandlers.UpdateAvatar)
	protected.POST("/auth/avatar", apiHandlers.UpdateAvatar)
	protected.GET("/messages", messageHandlers.ListMessages)
	protected.POST("/messages", messageHandlers.PostMessage)
	protected.POST("/calls", callHandlers.StartCall)

	return router
}

func healthHandler(hub *core.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessions, rooms := hub.Registry().Stats()
		c.Header("X-Sessions", strconv.Itoa(sessions))
		c.Header("X-Rooms", strconv.Itoa(rooms))
		c.String(stdhttp.StatusOK, "ok")
	}
}
