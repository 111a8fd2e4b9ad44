package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/NoteTaker/internal/adapters/events"
	"github.com/dkeye/NoteTaker/internal/adapters/ingest"
	"github.com/dkeye/NoteTaker/internal/app"
	"github.com/dkeye/NoteTaker/internal/config"
)

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, manager *app.Manager, hub *ingest.Hub) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("NoteTakerSessions", store))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	log.Info().Str("module", "adapters.http").Msg("router setup")

	h := &handlers{manager: manager}
	api := r.Group("/api")

	api.POST("/sessions", h.startSession)
	api.GET("/sessions", h.listSessions)
	api.GET("/sessions/:id", h.getSession)
	api.DELETE("/sessions/:id", h.endSession)

	api.POST("/sessions/:id/recording/start", h.startRecording)
	api.POST("/sessions/:id/recording/stop", h.stopRecording)

	api.POST("/sessions/:id/participants", h.addParticipant)
	api.DELETE("/sessions/:id/participants/:pid", h.removeParticipant)

	api.POST("/sessions/:id/transcripts", h.addTranscript)
	api.POST("/sessions/:id/export", h.exportSession)

	api.GET("/rooms/:room/recording", h.recordingStatus)

	api.GET("/ws/ingest/:room", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws ingest endpoint hit")
		hub.HandleConn(ctx, c)
	})

	evCtl := events.NewController(manager.Emitter())
	api.GET("/ws/events", func(c *gin.Context) {
		evCtl.HandleStream(ctx, c)
	})

	return r
}
