package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callroom/internal/adapters/signal"
	"github.com/dkeye/callroom/internal/app/orch"
	"github.com/dkeye/callroom/internal/config"
)

const clientTokenKey = "client_token"

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware keeps a stable per-browser token in the session so
// reconnects from the same client can be correlated in logs.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token == "" {
			token = genClientToken()
			session.Set(clientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

// SetupRouter wires the REST, metrics and websocket endpoints. gatherer may
// be nil, in which case /metrics is not exposed.
func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, ctrl *signal.SignalWSController, gatherer prometheus.Gatherer) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	origins := NewOriginPolicy(cfg.AllowedOrigins)
	r.Use(origins.Middleware())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("CallroomSessions", store))
	r.Use(ClientTokenMiddleware())

	h := &handlers{orch: o, iceServers: cfg.WebRTCServers(), maxRoomLen: cfg.MaxRoomLen}
	r.GET("/", h.index)
	r.GET("/health", h.health)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	api.GET("/ice-servers", h.ice)
	api.GET("/rooms", h.listRooms)
	api.GET("/rooms/:id/members", h.roomMembers)
	if cfg.AdminAPI {
		api.DELETE("/rooms/:id", h.evictRoom)
	}
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("client", c.GetString(clientTokenKey)).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Bool("admin_api", cfg.AdminAPI).Int("origins", len(cfg.AllowedOrigins)).Msg("router setup")
	return r
}
