package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/jimdaga/givethnotes/internal/apierr"
	"github.com/jimdaga/givethnotes/internal/auth"
	"github.com/jimdaga/givethnotes/internal/blocks"
	"github.com/jimdaga/givethnotes/internal/careerpaths"
	"github.com/jimdaga/givethnotes/internal/config"
	"github.com/jimdaga/givethnotes/internal/database"
	"github.com/jimdaga/givethnotes/internal/health"
	"github.com/jimdaga/givethnotes/internal/journal"
	"github.com/jimdaga/givethnotes/internal/metrics"
)

// Deps are the components the HTTP surface is built from.
type Deps struct {
	Config      *config.Config
	Logger      *slog.Logger
	DB          *gorm.DB
	Metrics     *metrics.Collector
	Verifier    *auth.Verifier
	Users       auth.UserResolver
	Journal     *journal.Service
	Blocks      *blocks.Store
	CareerPaths *careerpaths.Service
	Provisioner Provisioner
	Enqueuer    Enqueuer
}

// NewRouter builds the gin engine.
func NewRouter(d Deps) *gin.Engine {
	if d.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(d.Logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     d.Config.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", requestIDHeader},
		ExposeHeaders:    []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Public
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "GivethNotes API is running"})
	})
	r.GET("/health", gin.WrapF(health.Handler))
	r.GET("/ready", gin.WrapF(health.Ready(func(ctx context.Context) error {
		return database.Ping(ctx, d.DB)
	})))
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	// Protected
	api := r.Group("/api")
	api.Use(auth.RequireAuth(d.Verifier, d.Users))
	api.Use(ProvisionTrigger(d.Config.ProvisionOnRequest, d.Provisioner, d.Enqueuer, d.Logger))

	careerpaths.RegisterRoutes(api, d.CareerPaths)
	journal.RegisterRoutes(api, d.Journal)
	blocks.RegisterRoutes(api, d.Blocks)

	r.NoRoute(func(c *gin.Context) {
		apierr.Respond(c, apierr.New(http.StatusNotFound, "not_found", errRouteNotFound))
	})

	return r
}
