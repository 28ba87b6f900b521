package openrouter

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"recipe-pipeline/internal/core/ai"
	"recipe-pipeline/internal/core/ai/provider"
	"recipe-pipeline/internal/infrastructure/config"
	"recipe-pipeline/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	maxLoggedBody  = 512
)

// Client OpenRouter API 客戶端
type Client struct {
	client *resty.Client
	config provider.Config
}

var _ provider.Provider = (*Client)(nil)

// ConfigFrom 由應用設定建立提供者設定
func ConfigFrom(cfg *config.Config) provider.Config {
	return provider.Config{
		APIKey:      cfg.OpenRouter.APIKey,
		Model:       cfg.OpenRouter.Model,
		BaseURL:     cfg.OpenRouter.BaseURL,
		Timeout:     cfg.OpenRouter.Timeout,
		MaxRetries:  1,
		MaxTokens:   cfg.OpenRouter.MaxTokens,
		Temperature: cfg.OpenRouter.Temperature,
	}
}

// NewClient 創建新的 OpenRouter 客戶端
func NewClient(cfg provider.Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(500*time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r != nil && (r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError)
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", fmt.Sprintf("Bearer %s", cfg.APIKey)).
		SetHeader("HTTP-Referer", "https://github.com/recipe-pipeline").
		SetHeader("X-Title", "Recipe Pipeline")

	return &Client{
		client: client,
		config: cfg,
	}
}

// Generate 生成回應
func (c *Client) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	body := ai.ChatRequest{
		Model:       c.config.Model,
		Messages:    make([]ai.ChatMessage, 0, len(req.Messages)),
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, ai.ChatMessage{Role: m.Role, Content: m.Content})
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		body.Temperature = req.Temperature
	}
	if req.JSONOnly {
		body.ResponseFormat = &ai.ResponseFormat{Type: "json_object"}
	}

	common.LogDebug("Sending request to OpenRouter",
		zap.String("task", req.Task),
		zap.String("model", body.Model),
		zap.Int("messages", len(body.Messages)),
	)

	var (
		result ai.ChatResponse
		apiErr ai.APIError
	)
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&apiErr).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("failed to send request to OpenRouter: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		message := apiErr.Error.Message
		if message == "" {
			message = truncate(resp.String())
		}
		common.LogError("AI service returned error status",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("model", body.Model),
			zap.String("response", message),
		)
		return nil, common.ErrAIServiceError.Wrap(fmt.Errorf("OpenRouter API error (status %d): %s", resp.StatusCode(), message))
	}

	if len(result.Choices) == 0 {
		return nil, common.ErrAIServiceError.Wrap(fmt.Errorf("no choices in OpenRouter response: %s", truncate(resp.String())))
	}
	content := strings.TrimSpace(result.Choices[0].Message.Content)
	if content == "" {
		return nil, common.ErrAIServiceError.Wrap(fmt.Errorf("empty content in OpenRouter response"))
	}

	out := &provider.Response{
		Content: content,
		Model:   result.Model,
	}
	out.Usage.PromptTokens = result.Usage.PromptTokens
	out.Usage.CompletionTokens = result.Usage.CompletionTokens
	out.Usage.TotalTokens = result.Usage.TotalTokens

	common.LogDebug("Successfully generated response from AI service",
		zap.String("task", req.Task),
		zap.String("model", body.Model),
		zap.Int("content_length", len(content)),
		zap.Int("total_tokens", out.Usage.TotalTokens),
	)
	return out, nil
}

// GetModel 獲取當前使用的模型名稱
func (c *Client) GetModel() string {
	return c.config.Model
}

// GetTimeout 獲取請求超時時間
func (c *Client) GetTimeout() time.Duration {
	return c.config.Timeout
}

// Close 關閉客戶端
func (c *Client) Close() error {
	c.client.GetClient().CloseIdleConnections()
	return nil
}

func truncate(s string) string {
	if len(s) <= maxLoggedBody {
		return s
	}
	return s[:maxLoggedBody] + "..."
}
