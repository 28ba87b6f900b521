package handlers

import (
	"net/http"

	"recipe-pipeline/internal/core/ai/service"
	"recipe-pipeline/internal/core/refine"

	"github.com/gin-gonic/gin"
)

// AIStatusResponse 精煉能力狀態
type AIStatusResponse struct {
	Enabled bool           `json:"enabled"`
	Service service.Status `json:"service"`
	Gateway refine.Stats   `json:"gateway"`
}

// AIHandler AI 處理器
type AIHandler struct {
	aiService *service.Service
	gateway   *refine.Gateway
}

// NewAIHandler 創建 AI 處理器；兩個參數都可以為 nil
func NewAIHandler(aiService *service.Service, gateway *refine.Gateway) *AIHandler {
	return &AIHandler{
		aiService: aiService,
		gateway:   gateway,
	}
}

// Status 返回外部服務、隊列、快取與閘道計數
func (h *AIHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, AIStatusResponse{
		Enabled: h.gateway.Enabled(),
		Service: h.aiService.Status(),
		Gateway: h.gateway.Stats(),
	})
}
