package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"recipe-pipeline/internal/core/ai/provider"
	"recipe-pipeline/internal/infrastructure/config"
	"recipe-pipeline/internal/pkg/common"

	"go.uber.org/zap"
)

// Request 隊列請求
type Request struct {
	Context context.Context
	Request *provider.Request
	Result  chan Result
}

// Result 處理結果
type Result struct {
	Response *provider.Response
	Error    error
}

// Status 隊列狀態
type Status struct {
	QueueLength    int   `json:"queue_length"`
	ProcessedCount int64 `json:"processed_count"`
	FailedCount    int64 `json:"failed_count"`
	MaxQueueSize   int   `json:"max_queue_size"`
	Workers        int   `json:"workers"`
}

// Manager 隊列管理器，以固定數量的 worker 限制對外呼叫的並行度
type Manager struct {
	provider  provider.Provider
	maxSize   int
	workers   int
	queue     chan *Request
	done      chan struct{}
	wg        sync.WaitGroup
	once      sync.Once
	processed atomic.Int64
	failed    atomic.Int64
}

// NewManager 創建新的隊列管理器並啟動 worker
func NewManager(cfg *config.Config, p provider.Provider) *Manager {
	m := &Manager{
		provider: p,
		maxSize:  cfg.Queue.MaxSize,
		workers:  cfg.Queue.Workers,
		queue:    make(chan *Request, cfg.Queue.MaxSize),
		done:     make(chan struct{}),
	}

	for i := 0; i < m.workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}

	common.LogInfo("請求隊列已啟動",
		zap.Int("workers", m.workers),
		zap.Int("max_queue_size", m.maxSize),
	)
	return m
}

// Enqueue 將請求加入隊列
func (m *Manager) Enqueue(ctx context.Context, req *provider.Request) (chan Result, error) {
	select {
	case <-m.done:
		return nil, common.ErrQueueClosed
	default:
	}

	queueReq := &Request{
		Context: ctx,
		Request: req,
		Result:  make(chan Result, 1),
	}

	select {
	case m.queue <- queueReq:
		common.LogDebug("Request enqueued",
			zap.String("task", req.Task),
			zap.Int("queue_length", len(m.queue)),
			zap.Int("max_queue_size", m.maxSize),
		)
		return queueReq.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.done:
		return nil, common.ErrQueueClosed
	default:
		return nil, common.ErrQueueFull
	}
}

// Submit 加入隊列並等待結果
func (m *Manager) Submit(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	ch, err := m.Enqueue(ctx, req)
	if err != nil {
		return nil, err
	}

	select {
	case res := <-ch:
		return res.Response, res.Error
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) worker() {
	defer m.wg.Done()

	for {
		select {
		case req := <-m.queue:
			m.handle(req)
		case <-m.done:
			return
		}
	}
}

func (m *Manager) handle(req *Request) {
	if err := req.Context.Err(); err != nil {
		m.failed.Add(1)
		req.Result <- Result{Error: err}
		return
	}

	resp, err := m.provider.Generate(req.Context, req.Request)
	if err != nil {
		m.failed.Add(1)
	} else {
		m.processed.Add(1)
	}
	req.Result <- Result{Response: resp, Error: err}
}

// GetQueueStatus 獲取隊列狀態
func (m *Manager) GetQueueStatus() *Status {
	return &Status{
		QueueLength:    len(m.queue),
		ProcessedCount: m.processed.Load(),
		FailedCount:    m.failed.Load(),
		MaxQueueSize:   m.maxSize,
		Workers:        m.workers,
	}
}

// Close 停止 worker，尚在隊列中的請求直接返回 common.ErrQueueClosed
func (m *Manager) Close() {
	m.once.Do(func() {
		close(m.done)
		m.wg.Wait()

		for {
			select {
			case req := <-m.queue:
				req.Result <- Result{Error: common.ErrQueueClosed}
			default:
				return
			}
		}
	})
}
