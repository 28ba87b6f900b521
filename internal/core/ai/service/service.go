package service

import (
	"context"
	"errors"
	"strings"

	"recipe-pipeline/internal/core/ai/cache"
	"recipe-pipeline/internal/core/ai/provider"
	"recipe-pipeline/internal/core/ai/queue"
	"recipe-pipeline/internal/infrastructure/config"
	"recipe-pipeline/internal/pkg/common"

	"go.uber.org/zap"
)

const systemPrompt = "You are a culinary data assistant that cleans scraped recipe data. Answer with a single compact JSON object and nothing else."

// Service AI 服務：快取、隊列與提供者的組合
type Service struct {
	provider provider.Provider
	cache    cache.Store
	queue    *queue.Manager
	cfg      *config.Config
}

// Status 服務狀態
type Status struct {
	Available bool                   `json:"available"`
	Model     string                 `json:"model,omitempty"`
	Queue     *queue.Status          `json:"queue,omitempty"`
	Cache     map[string]interface{} `json:"cache,omitempty"`
}

// NewService 創建 AI 服務；p 為 nil 時服務不可用，所有呼叫直接返回錯誤
func NewService(cfg *config.Config, p provider.Provider, store cache.Store) *Service {
	s := &Service{
		provider: p,
		cache:    store,
		cfg:      cfg,
	}
	if p != nil {
		s.queue = queue.NewManager(cfg, p)
	}
	return s
}

// Available 是否具備可用的提供者
func (s *Service) Available() bool {
	return s != nil && s.provider != nil
}

// Complete 執行一次精煉任務並返回模型輸出文字
func (s *Service) Complete(ctx context.Context, task, prompt string) (string, error) {
	if !s.Available() {
		return "", common.ErrRefinementUnavailable
	}

	// 統一空白，確保快取鍵一致
	prompt = strings.TrimSpace(prompt)
	key := cache.Key(task, s.provider.GetModel(), prompt)

	if s.cache != nil {
		if val, err := s.cache.Get(ctx, key); err == nil && val != "" {
			return val, nil
		} else if err != nil && !errors.Is(err, common.ErrCacheMiss) {
			common.LogWarn("快取讀取失敗", zap.String("task", task), zap.Error(err))
		}
	}

	resp, err := s.queue.Submit(ctx, &provider.Request{
		Task: task,
		Messages: []provider.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		JSONOnly: true,
	})
	if err != nil {
		return "", err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, resp.Content); err != nil {
			common.LogWarn("快取寫入失敗", zap.String("task", task), zap.Error(err))
		}
	}
	return resp.Content, nil
}

// Status 返回服務狀態
func (s *Service) Status() Status {
	if !s.Available() {
		return Status{}
	}
	st := Status{
		Available: true,
		Model:     s.provider.GetModel(),
		Queue:     s.queue.GetQueueStatus(),
	}
	if s.cache != nil {
		st.Cache = s.cache.GetStats()
	}
	return st
}

// Close 關閉隊列、快取與提供者
func (s *Service) Close() error {
	if s == nil {
		return nil
	}
	if s.queue != nil {
		s.queue.Close()
	}
	var errs []error
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	if s.provider != nil {
		errs = append(errs, s.provider.Close())
	}
	return errors.Join(errs...)
}
