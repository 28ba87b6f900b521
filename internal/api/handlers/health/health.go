package health

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"recipe-pipeline/internal/core/ai/service"
	"recipe-pipeline/internal/core/reference"
	"recipe-pipeline/internal/infrastructure/config"
	"recipe-pipeline/internal/pkg/common"

	"github.com/gin-gonic/gin"
)

// HealthResponse 健康檢查響應
type HealthResponse struct {
	Status     string                 `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Version    string                 `json:"version"`
	Refinement bool                   `json:"refinement"`
	Runtime    map[string]interface{} `json:"runtime"`
	AI         *service.Status        `json:"ai,omitempty"`
}

// Handler 健康檢查處理器
type Handler struct {
	cfg       *config.Config
	tables    *reference.Tables
	aiService *service.Service
}

// NewHandler 創建健康檢查處理器
func NewHandler(cfg *config.Config, tables *reference.Tables, aiService *service.Service) *Handler {
	return &Handler{cfg: cfg, tables: tables, aiService: aiService}
}

// HealthCheck 健康檢查處理器
func (h *Handler) HealthCheck(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := HealthResponse{
		Status:     "ok",
		Timestamp:  time.Now(),
		Version:    h.cfg.App.Version,
		Refinement: h.cfg.RefinementAvailable(),
		Runtime: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]interface{}{
				"alloc":       m.Alloc,
				"total_alloc": m.TotalAlloc,
				"sys":         m.Sys,
				"num_gc":      m.NumGC,
			},
		},
	}
	if h.aiService.Available() {
		st := h.aiService.Status()
		response.AI = &st
	}

	c.JSON(http.StatusOK, response)
}

// ReadinessCheck 就緒檢查處理器：參考資料必須已載入
func (h *Handler) ReadinessCheck(c *gin.Context) {
	if h.tables == nil {
		common.RespondError(c, common.ErrServiceUnavailable.Wrap(fmt.Errorf("reference tables not loaded")), h.cfg.App.Debug)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"vocabulary": len(h.tables.Vocabulary()),
	})
}

// LivenessCheck 存活檢查處理器
func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}
