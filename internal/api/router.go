package api

import (
	"fmt"
	"time"

	"recipe-pipeline/internal/api/handlers"
	"recipe-pipeline/internal/api/handlers/health"
	"recipe-pipeline/internal/api/handlers/pipeline"
	"recipe-pipeline/internal/api/middleware"
	"recipe-pipeline/internal/core/ai/service"
	"recipe-pipeline/internal/core/recipe"
	"recipe-pipeline/internal/core/reference"
	"recipe-pipeline/internal/core/refine"
	"recipe-pipeline/internal/infrastructure/config"
	"recipe-pipeline/internal/pkg/common"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Dependencies 路由所需的服務
//
// AIService 與 Gateway 可以為 nil，此時精煉功能停用，其他路由不受影響。
type Dependencies struct {
	Tables    *reference.Tables
	Processor *recipe.Processor
	AIService *service.Service
	Gateway   *refine.Gateway
}

// SetupRouter 設置路由
func SetupRouter(cfg *config.Config, deps Dependencies) (*gin.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Tables == nil || deps.Processor == nil {
		return nil, fmt.Errorf("reference tables and processor are required")
	}

	common.LogInfo("Starting router setup",
		zap.Bool("debug_mode", cfg.App.Debug),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Env),
	)

	if !cfg.App.Debug && gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true

	router.Use(middleware.Recovery())
	router.Use(requestid.New())
	router.Use(middleware.Logger())

	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}))

	router.Use(middleware.BodySizeLimit(cfg.App.MaxBodySize))
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window))
	}

	healthHandler := health.NewHandler(cfg, deps.Tables, deps.AIService)
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)
	router.GET("/live", healthHandler.LivenessCheck)

	pipelineHandler := pipeline.NewHandler(deps.Processor, deps.Tables, cfg.App.Debug)
	aiHandler := handlers.NewAIHandler(deps.AIService, deps.Gateway)

	api := router.Group("/api/v1")
	{
		pipelineGroup := api.Group("/pipeline")
		if cfg.DedupWindow > 0 {
			pipelineGroup.Use(middleware.Deduplication(cfg.DedupWindow))
		}
		pipelineGroup.POST("/normalize", pipelineHandler.Normalize)

		api.POST("/ingredients/parse", pipelineHandler.ParseIngredients)
		api.GET("/meals/type", pipelineHandler.MealType)
		api.GET("/ai/status", aiHandler.Status)
	}

	router.NoRoute(func(c *gin.Context) {
		common.RespondError(c, common.ErrNotFound, false)
	})
	router.NoMethod(func(c *gin.Context) {
		common.RespondError(c, common.ErrMethodNotAllowed, false)
	})

	common.LogInfo("Router setup completed successfully",
		zap.Bool("refinement", deps.Gateway.Enabled()),
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
		zap.Duration("request_timeout", cfg.Server.RequestTimeout),
		zap.Int64("max_body_size", cfg.App.MaxBodySize),
	)

	return router, nil
}
