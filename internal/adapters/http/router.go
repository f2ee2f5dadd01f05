// Package http sets up the gin router: client-token cookies, the websocket
// chat endpoint and a small read-only REST surface.
package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/textworld/internal/adapters/signal"
	"github.com/dkeye/textworld/internal/app"
	"github.com/dkeye/textworld/internal/config"
)

// ClientTokenMiddleware assigns each browser a stable token used as both
// player identity and reply address.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, ctl *signal.Controller, reg *app.Registry) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("TextworldSessions", store))
	r.Use(ClientTokenMiddleware())

	log.Info().Str("module", "adapters.http").Msg("router setup")

	api := r.Group("/api")

	api.GET("/ws", func(c *gin.Context) {
		ctl.HandleWS(ctx, c)
	})

	api.GET("/rooms", func(c *gin.Context) {
		rooms := reg.List()
		out := make([]roomDTO, 0, len(rooms))
		for _, room := range rooms {
			out = append(out, roomDTO{
				ID:      string(room.ID),
				Name:    room.Name,
				Phase:   room.Phase.String(),
				Players: room.PlayerCount,
				Round:   room.Round,
			})
		}
		c.JSON(http.StatusOK, out)
	})

	return r
}

type roomDTO struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phase   string `json:"phase"`
	Players int    `json:"players"`
	Round   int    `json:"round"`
}
