package http

import (
	"context"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/adapters/signal"
	"github.com/dkeye/Meet/internal/adapters/stream"
	"github.com/dkeye/Meet/internal/app/relay"
	"github.com/dkeye/Meet/internal/catalog"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/logger"
	"github.com/dkeye/Meet/internal/metrics"
	"github.com/dkeye/Meet/internal/storage"
)

const (
	sessionName    = "MeetSessions"
	clientTokenKey = "client_token"
	fileURLTTL     = time.Hour
)

type PeerLister interface {
	Snapshot() []relay.Peer
}

type RecordingStore interface {
	List(ctx context.Context, roomID string) ([]catalog.Recording, error)
	Get(ctx context.Context, id uint) (*catalog.Recording, error)
}

// Deps are the services the admin API exposes. Nil members disable their routes.
type Deps struct {
	Hub        stream.Hub
	Rooms      core.RoomManager
	Relay      PeerLister
	Recordings RecordingStore
	Storage    storage.Storage
	Metrics    *metrics.Metrics
}

// ClientTokenMiddleware gives every browser a stable token kept in the session cookie.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		token, _ := sess.Get(clientTokenKey).(string)
		if token == "" {
			token = uuid.NewString()
			sess.Set(clientTokenKey, token)
			if err := sess.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.GinMiddleware())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())

	h := &handlers{deps: d, contentRoot: cfg.Recorder.ContentRoot}

	r.GET("/healthz", h.health)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}
	if cfg.Storage.Type == "" || cfg.Storage.Type == "local" {
		r.Static("/files", cfg.Recorder.ContentRoot)
	}

	api := r.Group("/api")
	api.GET("/rooms", h.rooms)
	api.GET("/relay/peers", h.relayPeers)
	api.GET("/recordings", h.listRecordings)
	api.GET("/recordings/:id", h.getRecording)

	if d.Hub != nil {
		ctrl := signal.NewSignalWSController(d.Hub)
		if cfg.ReadLimit > 0 {
			ctrl.ReadLimit = cfg.ReadLimit
		}
		ctrl.PingPeriod = cfg.PingPeriod
		api.GET("/ws", func(c *gin.Context) {
			ctrl.HandleSignal(ctx, c)
		})
	}

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
