package app

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"ridebook/internal/handler"
	"ridebook/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	HistoryHandler *handler.HistoryHandler
	RedisClient    *redis.Client
	NewRelicApp    *newrelic.Application
	JWTSecret      string
	JWTIssuer      string
	IdempotencyTTL time.Duration
	AllowedOrigins []string
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.Use(cors.New(corsConfig(deps.AllowedOrigins)))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(deps.JWTSecret, deps.JWTIssuer))
	{
		history := v1.Group("/history")
		{
			history.GET("", deps.HistoryHandler.GetHistory)
			history.GET("/trips/:tripId/cancellable", deps.HistoryHandler.GetCancellable)

			cancellations := history.Group("/cancellations")
			if deps.RedisClient != nil {
				cancellations.Use(middleware.IdempotencyMiddleware(deps.RedisClient, deps.IdempotencyTTL))
			}
			cancellations.POST("", deps.HistoryHandler.CancelBookings)
		}
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key"},
		ExposeHeaders: []string{"Content-Length", "Idempotent-Replay"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
