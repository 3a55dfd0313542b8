package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/roomcast/roomcast-server/internal/auth"
	"github.com/roomcast/roomcast-server/internal/chat"
	"github.com/roomcast/roomcast-server/internal/config"
)

// NewServer builds the HTTP server: REST history reads, the realtime
// WebSocket endpoint and a health check.
func NewServer(sessions *chat.SessionHandler, history *chat.HistoryService, peers *PeerTable, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	verifier := auth.NewVerifier(cfg.JWTSecret)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	api := router.Group("/api")
	api.Use(AuthMiddleware(verifier, logger))
	{
		historyHandlers := NewHistoryHandlers(history, logger)
		api.GET("/rooms/:roomId/messages", historyHandlers.GetMessages)
	}

	// The WebSocket endpoint carries its token in the query string because
	// browsers cannot set headers on WebSocket dials.
	wsHandler := NewWSHandler(sessions, peers, verifier, cfg.MessageRateLimit, logger)
	router.GET("/ws", gin.WrapH(wsHandler))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
