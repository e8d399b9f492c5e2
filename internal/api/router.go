package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DimaJoyti/contractfabric/internal/cache"
	"github.com/DimaJoyti/contractfabric/internal/common"
	"github.com/DimaJoyti/contractfabric/internal/lb"
	"github.com/DimaJoyti/contractfabric/pkg/config"
	"github.com/DimaJoyti/contractfabric/pkg/logger"
)

// NewRouter assembles the fabric-gateway's gin engine: middleware chain,
// health/metrics endpoints, and the load balancer's HTTP surface.
func NewRouter(cfg *config.Config, lbSvc *lb.Service, cacheInst *cache.Cache, log *logger.Logger) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(common.RequestIDMiddleware())
	router.Use(common.LoggerMiddleware(log))
	router.Use(common.ErrorMiddleware())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "X-Request-ID"}
	router.Use(cors.New(corsCfg))

	if cfg.LB.RateLimit.Enabled {
		router.Use(common.RateLimitMiddleware(cfg.LB.RateLimit))
	}

	h := NewHandler(lbSvc, cacheInst, log)

	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/instances", h.RegisterInstance)
		v1.DELETE("/instances/:id", h.RemoveInstance)
		v1.POST("/route", h.Route)
		v1.POST("/results", h.RecordResult)
		v1.POST("/algorithm", h.SetAlgorithm)
		v1.GET("/metrics/summary", h.Metrics)
	}

	return router
}
