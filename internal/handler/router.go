package handler

import (
	"net/http"
	"time"

	"bloodbank/internal/auth"
	"bloodbank/internal/middleware"
	"bloodbank/internal/service"
	"bloodbank/internal/websocket"
	"bloodbank/pkg/logger"
	pkgredis "bloodbank/pkg/redis"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// RouterDeps carries everything NewRouter wires together. Hub, Idempotency and
// Metrics are optional.
type RouterDeps struct {
	Services       *service.Services
	Signer         *auth.Signer
	Logger         *logger.Logger
	Hub            *websocket.Hub
	Idempotency    pkgredis.IdempotencyStore
	IdempotencyTTL time.Duration
	Metrics        http.Handler
	AllowedOrigins []string
	Swagger        bool
}

func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}

	router := gin.New()
	router.Use(
		middleware.Recovery(deps.Logger),
		middleware.RequestID(deps.Logger),
		middleware.Logging(deps.Logger),
	)

	if len(deps.AllowedOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = deps.AllowedOrigins
		corsConfig.AllowCredentials = true
		corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", middleware.IdempotencyHeader, middleware.RequestIDHeader}
		corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "OPTIONS"}
		router.Use(cors.New(corsConfig))
	}

	if deps.Swagger {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	if deps.Hub != nil {
		router.GET("/ws", func(c *gin.Context) {
			websocket.ServeWs(deps.Hub, c, deps.Signer)
		})
	}

	idempotent := middleware.Idempotency(deps.Idempotency, deps.IdempotencyTTL, deps.Logger)

	blood := router.Group("/blood")
	blood.Use(middleware.Authenticate(deps.Signer, deps.Logger))

	NewInventoryHandler(deps.Services.Inventory, deps.Services.Dashboard, deps.Logger).RegisterRoutes(blood)
	NewDonationHandler(deps.Services.Donations).RegisterRoutes(blood, idempotent)
	NewBloodRequestHandler(deps.Services.Requests).RegisterRoutes(blood, idempotent)
	NewAuditHandler(deps.Services.Audit).RegisterRoutes(blood)

	return router
}
