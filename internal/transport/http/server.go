package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/watchparty-server/internal/auth"
	"github.com/vovakirdan/watchparty-server/internal/config"
	"github.com/vovakirdan/watchparty-server/internal/core"
	"github.com/vovakirdan/watchparty-server/internal/service/library"
)

// Deps are the services the HTTP surface exposes.
type Deps struct {
	Hub     *core.Hub
	Auth    *auth.Service
	Library *library.Service
}

// NewServer builds the HTTP server: health, the room websocket, accounts,
// room lookup and the shared library.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(deps, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewHandler mounts the websocket on a plain mux and everything else on
// gin. The upgrade has to hijack a writer gin has not touched.
func NewHandler(deps Deps, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(deps.Hub, deps.Auth, WSOptions{
		MaxMessageBytes:    cfg.MaxMessageBytes,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		SendQueueSize:      cfg.SendQueueSize,
	}, logger))
	mux.Handle("/", NewRouter(deps, logger))
	return mux
}

// NewRouter builds the gin engine for the REST routes.
func NewRouter(deps Deps, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), LoggerMiddleware(logger))

	r.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	api := r.Group("/api")
	api.GET("/rooms/:code", NewRoomHandlers(deps.Hub, logger).GetRoom)

	if deps.Auth != nil {
		accounts := NewAPIHandlers(deps.Auth, logger)
		api.POST("/register", accounts.Register)
		api.POST("/login", accounts.Login)
		api.POST("/guest", accounts.GuestLogin)

		if deps.Library != nil {
			lib := NewLibraryHandlers(deps.Library, logger)
			authed := api.Group("", AuthMiddleware(deps.Auth, logger))
			authed.GET("/library", lib.ListLibrary)
			authed.POST("/library", lib.AddToLibrary)
			authed.GET("/watches", lib.ListWatches)
		}
	}

	return r
}
