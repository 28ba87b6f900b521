package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"recipe-pipeline/internal/core/meal"
	"recipe-pipeline/internal/core/recipe"
	"recipe-pipeline/internal/core/reference"
	"recipe-pipeline/internal/core/sink"
	"recipe-pipeline/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 正規化結果的輸出格式
const (
	FormatResult = "result"
	FormatRows   = "rows"
	FormatXLSX   = "xlsx"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler 正規化流程的 HTTP 處理器
type Handler struct {
	processor *recipe.Processor
	tables    *reference.Tables
	debug     bool
}

// NewHandler 創建處理器
func NewHandler(processor *recipe.Processor, tables *reference.Tables, debug bool) *Handler {
	return &Handler{
		processor: processor,
		tables:    tables,
		debug:     debug,
	}
}

// ParseRequest 單行食材解析請求
type ParseRequest struct {
	Lines []string `json:"lines" binding:"required"`
}

// ParseResponse 單行食材解析結果
type ParseResponse struct {
	Results []recipe.LineResult `json:"results"`
}

// MealTypeResponse 餐別判斷結果
type MealTypeResponse struct {
	Name     string          `json:"name"`
	MealType common.MealType `json:"meal_type"`
}

// Normalize 處理一個食譜批次
//
// format=result（預設）返回正規化食譜與餐點，rows 返回五個輸出表，xlsx 返回活頁簿檔案。
func (h *Handler) Normalize(c *gin.Context) {
	format := strings.ToLower(c.DefaultQuery("format", FormatResult))
	if format != FormatResult && format != FormatRows && format != FormatXLSX {
		h.fail(c, common.ErrInvalidRequest.Wrap(fmt.Errorf("unknown format %q", format)))
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(c, common.ErrPayloadTooLarge.Wrap(err))
			return
		}
		h.fail(c, common.ErrInvalidRequest.Wrap(err))
		return
	}

	batch, err := recipe.DecodeBatch(body)
	if err != nil {
		h.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	result, err := h.processor.Run(ctx, batch)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = common.ErrGatewayTimeout.Wrap(err)
		}
		h.fail(c, err)
		return
	}

	common.LogInfo("批次正規化完成",
		zap.String("format", format),
		zap.Int("recipes", len(result.Recipes)),
		zap.Int("meals", len(result.Meals)),
	)

	if format == FormatResult {
		c.JSON(http.StatusOK, result)
		return
	}

	rows, err := sink.BuildRows(result, nil)
	if err != nil {
		h.fail(c, err)
		return
	}
	if format == FormatRows {
		c.JSON(http.StatusOK, rows)
		return
	}

	var buf bytes.Buffer
	if err := sink.WriteXLSX(&buf, rows); err != nil {
		h.fail(c, common.ErrInternalError.Wrap(err))
		return
	}
	c.Header("Content-Disposition", `attachment; filename="recipes.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// ParseIngredients 逐行解析食材文字
func (h *Handler) ParseIngredients(c *gin.Context) {
	var req ParseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, common.ErrInvalidRequest.Wrap(err))
		return
	}

	c.JSON(http.StatusOK, ParseResponse{
		Results: h.processor.ParseLines(c.Request.Context(), req.Lines),
	})
}

// MealType 依名稱判斷餐別
func (h *Handler) MealType(c *gin.Context) {
	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		h.fail(c, common.NewValidationError("name is required"))
		return
	}

	c.JSON(http.StatusOK, MealTypeResponse{
		Name:     name,
		MealType: meal.Classify(h.tables, name),
	})
}

func (h *Handler) fail(c *gin.Context, err error) {
	common.RespondError(c, err, h.debug)
}
