package common

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GenerateUUID 生成 UUID
func GenerateUUID() string {
	return uuid.New().String()
}

// RespondError 將錯誤轉為統一的 JSON 錯誤響應
func RespondError(c *gin.Context, err error, debug bool) {
	status := http.StatusInternalServerError
	resp := ErrorResponse{
		Code:    ErrCodeInternalError,
		Message: ErrInternalError.Message,
	}

	var custom *CustomError
	switch {
	case errors.As(err, &custom):
		status = custom.Status
		resp.Code = custom.Code
		resp.Message = custom.Message
	case IsValidationError(err):
		status = http.StatusBadRequest
		resp.Code = ErrCodeInvalidRequest
		resp.Message = err.Error()
	}

	if debug && err != nil {
		resp.Details = err.Error()
	}

	if status >= http.StatusInternalServerError {
		LogError("請求處理失敗",
			zap.Error(err),
			zap.String("path", c.Request.URL.Path),
		)
	}

	c.AbortWithStatusJSON(status, resp)
}
