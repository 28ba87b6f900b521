package app

import (
	"fmt"

	"recipe-pipeline/internal/core/ai/cache"
	"recipe-pipeline/internal/core/ai/openrouter"
	"recipe-pipeline/internal/core/ai/service"
	"recipe-pipeline/internal/core/recipe"
	"recipe-pipeline/internal/core/reference"
	"recipe-pipeline/internal/core/refine"
	"recipe-pipeline/internal/infrastructure/config"
	"recipe-pipeline/internal/pkg/common"

	"go.uber.org/zap"
)

// App 正規化流程與其依賴
type App struct {
	Tables    *reference.Tables
	AIService *service.Service
	Gateway   *refine.Gateway
	Processor *recipe.Processor
}

// New 依設定組裝參考資料、外部服務、精煉閘道與處理流程
//
// 精煉未啟用或缺少 API Key 時閘道為停用狀態，流程以純確定性模式運作。
func New(cfg *config.Config) (*App, error) {
	tables, err := reference.Load(cfg.Pipeline.TablesPath)
	if err != nil {
		return nil, err
	}

	a := &App{Tables: tables}

	var completer refine.Completer
	if cfg.RefinementAvailable() {
		store, err := cache.NewStore(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize cache: %w", err)
		}

		client := openrouter.NewClient(openrouter.ConfigFrom(cfg))
		a.AIService = service.NewService(cfg, client, store)
		completer = a.AIService

		common.LogInfo("語意精煉已啟用",
			zap.String("model", cfg.OpenRouter.Model),
			zap.String("masked_key", config.MaskAPIKey(cfg.OpenRouter.APIKey)),
			zap.Float64("threshold", cfg.Refinement.Threshold),
			zap.Bool("cache_enabled", store != nil),
			zap.String("cache_backend", cfg.Cache.Backend),
		)
	} else {
		common.LogInfo("語意精煉未啟用，使用確定性模式",
			zap.Bool("refinement_enabled", cfg.Refinement.Enabled),
			zap.Bool("openrouter_enabled", cfg.OpenRouter.Enabled),
		)
	}

	a.Gateway, err = refine.NewGateway(completer, refine.Config{
		Threshold: cfg.Refinement.Threshold,
		Timeout:   cfg.Refinement.Timeout,
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to initialize refinement gateway: %w", err)
	}

	a.Processor = recipe.NewProcessor(tables, a.Gateway, recipe.OptionsFrom(cfg))
	return a, nil
}

// Close 釋放外部服務資源
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	return a.AIService.Close()
}
