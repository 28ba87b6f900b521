package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"recipe-pipeline/internal/core/ai/provider"
	"recipe-pipeline/internal/infrastructure/config"
	"recipe-pipeline/internal/pkg/common"
)

type stubProvider struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
	err      error
}

func (p *stubProvider) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(p.delay)
	if p.err != nil {
		return nil, p.err
	}
	return &provider.Response{Content: req.Task}, nil
}

func (p *stubProvider) GetModel() string          { return "stub" }
func (p *stubProvider) GetTimeout() time.Duration { return time.Second }
func (p *stubProvider) Close() error              { return nil }

func queueConfig(workers, size int) *config.Config {
	return &config.Config{Queue: config.QueueConfig{Workers: workers, MaxSize: size}}
}

func TestSubmit(t *testing.T) {
	p := &stubProvider{delay: 10 * time.Millisecond}
	m := NewManager(queueConfig(2, 20), p)
	defer m.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := m.Submit(context.Background(), &provider.Request{Task: "disambiguate"})
			if err != nil || resp.Content != "disambiguate" {
				t.Errorf("Submit() = %+v, %v", resp, err)
			}
		}()
	}
	wg.Wait()

	if peak := p.peak.Load(); peak > 2 {
		t.Errorf("peak concurrency = %d, want at most 2 workers", peak)
	}
	if s := m.GetQueueStatus(); s.ProcessedCount != 8 || s.Workers != 2 {
		t.Errorf("GetQueueStatus() = %+v", s)
	}
}

func TestSubmitProviderError(t *testing.T) {
	m := NewManager(queueConfig(1, 5), &stubProvider{err: errors.New("boom")})
	defer m.Close()

	if _, err := m.Submit(context.Background(), &provider.Request{}); err == nil {
		t.Error("Submit() should return the provider error")
	}
	if m.GetQueueStatus().FailedCount != 1 {
		t.Error("failure should be counted")
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	m := NewManager(queueConfig(1, 5), &stubProvider{})
	m.Close()
	m.Close()

	if _, err := m.Enqueue(context.Background(), &provider.Request{}); !errors.Is(err, common.ErrQueueClosed) {
		t.Errorf("Enqueue() error = %v, want queue closed", err)
	}
}
