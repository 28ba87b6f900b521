package refine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"recipe-pipeline/internal/pkg/common"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
)

// Completer 外部語意能力：輸入提示，返回模型文字輸出
type Completer interface {
	Complete(ctx context.Context, task, prompt string) (string, error)
}

// Config 閘道設定
type Config struct {
	// Threshold 信心分數必須嚴格大於此值才會取代確定性結果
	Threshold float64
	// Timeout 單次呼叫的逾時
	Timeout time.Duration
}

// Stats 閘道統計
type Stats struct {
	Calls     int64 `json:"calls"`
	Accepted  int64 `json:"accepted"`
	Rejected  int64 `json:"rejected"`
	Bypassed  int64 `json:"bypassed"`
	Malformed int64 `json:"malformed"`
}

// Gateway 語意精煉閘道
//
// nil 的 *Gateway 可以安全呼叫，所有任務都會直接略過，處理流程退回純確定性模式。
type Gateway struct {
	completer Completer
	threshold float64
	timeout   time.Duration
	schemas   map[string]*jsonschema.Schema

	calls     atomic.Int64
	accepted  atomic.Int64
	rejected  atomic.Int64
	bypassed  atomic.Int64
	malformed atomic.Int64
}

// scored 每個任務回應都帶有信心分數
type scored interface {
	score() float64
}

// NewGateway 創建新的語意精煉閘道；completer 為 nil 時返回停用的閘道（略過模式）
func NewGateway(completer Completer, cfg Config) (*Gateway, error) {
	if completer == nil {
		return &Gateway{threshold: cfg.Threshold, timeout: cfg.Timeout}, nil
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("refinement threshold must be in [0,1], got %v", cfg.Threshold)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}

	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}

	return &Gateway{
		completer: completer,
		threshold: cfg.Threshold,
		timeout:   cfg.Timeout,
		schemas:   schemas,
	}, nil
}

// Enabled 閘道是否可用
func (g *Gateway) Enabled() bool {
	return g != nil && g.completer != nil
}

// Stats 返回目前的統計
func (g *Gateway) Stats() Stats {
	if g == nil {
		return Stats{}
	}
	return Stats{
		Calls:     g.calls.Load(),
		Accepted:  g.accepted.Load(),
		Rejected:  g.rejected.Load(),
		Bypassed:  g.bypassed.Load(),
		Malformed: g.malformed.Load(),
	}
}

// call 呼叫外部能力、驗證回應並套用信心門檻
//
// 返回的錯誤一律代表略過：不可用、逾時、格式錯誤或信心不足。
func (g *Gateway) call(ctx context.Context, task, prompt string, out scored) error {
	if !g.Enabled() {
		return common.ErrRefinementUnavailable
	}
	g.calls.Add(1)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	content, err := g.completer.Complete(ctx, task, prompt)
	common.LogAICall(task, time.Since(start), err)
	if err != nil {
		g.bypassed.Add(1)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return common.ErrGatewayTimeout.Wrap(err)
		}
		return common.ErrRefinementUnavailable.Wrap(err)
	}

	var doc any
	if err := common.ParseLooseJSON(content, &doc); err != nil {
		g.malformed.Add(1)
		return common.ErrRefinementMalformed.Wrap(err)
	}
	if err := g.schemas[task].Validate(doc); err != nil {
		g.malformed.Add(1)
		return common.ErrRefinementMalformed.Wrap(err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		g.malformed.Add(1)
		return common.ErrRefinementMalformed.Wrap(err)
	}
	if err := common.ParseJSONBytes(data, out); err != nil {
		g.malformed.Add(1)
		return common.ErrRefinementMalformed.Wrap(err)
	}

	if out.score() <= g.threshold {
		g.rejected.Add(1)
		return common.ErrRefinementRejected.Wrap(fmt.Errorf("confidence %.2f not above %.2f", out.score(), g.threshold))
	}
	return nil
}

// accept 記錄接受結果
func (g *Gateway) accept(task string, confidence float64) {
	g.accepted.Add(1)
	common.LogDebug("採用語意精煉結果",
		zap.String("task", task),
		zap.Float64("confidence", confidence),
	)
}

// bypass 記錄略過原因，略過不是錯誤
func (g *Gateway) bypass(task string, err error) {
	switch {
	case errors.Is(err, common.ErrRefinementRejected):
		common.LogDebug("語意精煉信心不足，沿用確定性結果", zap.String("task", task), zap.Error(err))
	case errors.Is(err, common.ErrRefinementUnavailable) && !g.Enabled():
		// 略過模式不記錄
	default:
		common.LogWarn("語意精煉略過，沿用確定性結果", zap.String("task", task), zap.Error(err))
	}
}
