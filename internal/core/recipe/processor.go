package recipe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"recipe-pipeline/internal/core/fields"
	"recipe-pipeline/internal/core/ingredient"
	"recipe-pipeline/internal/core/meal"
	"recipe-pipeline/internal/core/reference"
	"recipe-pipeline/internal/core/refine"
	"recipe-pipeline/internal/infrastructure/config"
	"recipe-pipeline/internal/pkg/common"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const untitledRecipe = "Untitled Recipe"

// Options 處理流程參數
type Options struct {
	Workers            int
	LineWorkers        int
	CanonicalThreshold float64
	DefaultServings    int
	// DisambiguateBelow 名稱信心低於此值或為籠統名稱時請求消歧
	DisambiguateBelow float64
	ScalePolicy       string
	TargetServings    int
}

// OptionsFrom 由應用設定建立處理參數
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		Workers:            cfg.Pipeline.Workers,
		LineWorkers:        cfg.Pipeline.LineWorkers,
		CanonicalThreshold: cfg.Pipeline.CanonicalThreshold,
		DefaultServings:    cfg.Pipeline.DefaultServings,
		DisambiguateBelow:  cfg.Refinement.DisambiguateBelow,
		ScalePolicy:        cfg.Meal.ScalePolicy,
		TargetServings:     cfg.Meal.TargetServings,
	}
}

// Result 一個批次的輸出
type Result struct {
	Recipes []*common.Recipe `json:"recipes"`
	Meals   []*common.Meal   `json:"meals"`
}

// Processor 食譜正規化流程
//
// 參考資料在建立後只讀，Processor 可以被多個 goroutine 同時使用。
type Processor struct {
	tables     *reference.Tables
	gateway    *refine.Gateway
	parser     *ingredient.Parser
	steps      *fields.StepSplitter
	aggregator *meal.Aggregator
	opts       Options
}

// NewProcessor 創建新的處理流程；gateway 可以為 nil（純確定性模式）
func NewProcessor(tables *reference.Tables, gateway *refine.Gateway, opts Options) *Processor {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.LineWorkers <= 0 {
		opts.LineWorkers = 4
	}
	if opts.CanonicalThreshold <= 0 {
		opts.CanonicalThreshold = 0.85
	}
	return &Processor{
		tables:     tables,
		gateway:    gateway,
		parser:     ingredient.NewParser(tables, opts.CanonicalThreshold),
		steps:      fields.NewStepSplitter(tables),
		aggregator: meal.NewAggregator(tables, opts.ScalePolicy, opts.TargetServings),
		opts:       opts,
	}
}

// Run 處理整個批次並彙總餐點
//
// 餐點彙總在所有食譜完成後才開始；無法組成的餐點記錄後略過。
func (p *Processor) Run(ctx context.Context, batch *Batch) (*Result, error) {
	if batch == nil {
		return nil, common.ErrInvalidBatch.Wrap(fmt.Errorf("nil batch"))
	}
	start := time.Now()

	recipes, err := p.ProcessBatch(ctx, batch.Recipes)
	if err != nil {
		return nil, err
	}

	plans := batch.Meals
	if len(plans) == 0 {
		plans = meal.DefaultPlans(recipes)
	}

	meals := make([]*common.Meal, 0, len(plans))
	for _, plan := range plans {
		m, err := p.aggregator.Build(plan, recipes)
		if err != nil {
			common.LogWarn("餐點無法組成，已略過", zap.String("meal", plan.Name), zap.Error(err))
			continue
		}
		meals = append(meals, m)
	}

	common.LogInfo("批次處理完成",
		zap.Int("recipes", len(recipes)),
		zap.Int("meals", len(meals)),
		zap.Bool("refinement", p.gateway.Enabled()),
		zap.Duration("duration", time.Since(start)),
	)
	return &Result{Recipes: recipes, Meals: meals}, nil
}

// ProcessBatch 並行處理多筆食譜，輸出順序與輸入相同
//
// 只有 ctx 取消時返回錯誤；個別記錄的問題只會降級處理。
func (p *Processor) ProcessBatch(ctx context.Context, raws []common.RawRecipe) ([]*common.Recipe, error) {
	out := make([]*common.Recipe, len(raws))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i := range raws {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = p.Process(gctx, raws[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Process 將一筆原始記錄轉成正規化食譜
func (p *Processor) Process(ctx context.Context, raw common.RawRecipe) *common.Recipe {
	var overrides []string

	if raw.SourceFormat == common.SourceUnrecognized && p.gateway.Enabled() {
		if mapping, ok := p.gateway.MapSchema(ctx, raw.Fields); ok {
			raw = ApplyMapping(raw.Fields, mapping.Mapping)
			overrides = append(overrides, "schema")
		}
	}
	if raw.SourceFormat == "" {
		raw.SourceFormat = common.SourceStandard
	}

	name := strings.TrimSpace(raw.Name)
	if name == "" {
		name = untitledRecipe
	}

	r := &common.Recipe{
		Name:        name,
		Description: strings.TrimSpace(raw.Description),
		Tags:        make([]string, 0),
		Metadata: common.RecipeMetadata{
			SourceFormat: raw.SourceFormat,
		},
	}

	results := p.parseLines(ctx, raw.Ingredients, ingredient.LineContext{RecipeName: strings.TrimSpace(raw.Name)})
	parsed := make([]common.ParsedIngredient, 0, len(results))
	matches := make([]*ingredient.Match, 0, len(results))
	for _, res := range results {
		switch res.Classification.Kind {
		case ingredient.KindNoise:
			r.Metadata.DroppedNoise++
		case ingredient.KindInstruction:
			r.Metadata.MisplacedInstructions = append(r.Metadata.MisplacedInstructions, ingredient.CleanLine(res.Line))
		default:
			parsed = append(parsed, *res.Ingredient)
			matches = append(matches, res.Match)
		}
	}

	if p.disambiguate(ctx, name, parsed, matches) {
		overrides = append(overrides, "ingredient_names")
	}
	r.Ingredients = ingredient.Deduplicate(parsed)

	times := fields.NormalizeTimes(raw.PrepTime, raw.CookTime, raw.TotalTime)
	r.PrepTimeMinutes, r.CookTimeMinutes, r.TotalTimeMinutes = times.Prep, times.Cook, times.Total

	steps, stepsOverridden := p.splitSteps(ctx, name, raw)
	if stepsOverridden {
		overrides = append(overrides, "steps")
	}
	r.PrepSteps, r.CookSteps, r.Summary = steps.Prep, steps.Cook, steps.Summary
	r.Metadata.DroppedNoise += steps.Dropped

	r.Servings = fields.InferServings(raw.Servings, name, r.Description, p.opts.DefaultServings)
	md := fields.InferMetadata(p.tables, name, r.Description, len(r.Ingredients))
	r.DifficultyLevel, r.Tags = md.Difficulty, md.Tags

	if p.gateway.Enabled() {
		overrides = append(overrides, p.refineMetadata(ctx, r, raw)...)
	}

	r.Metadata.GatewayOverrides = overrides
	r.Metadata.AIAssisted = len(overrides) > 0

	common.LogDebug("食譜處理完成",
		zap.String("recipe", r.Name),
		zap.Int("ingredients", len(r.Ingredients)),
		zap.Int("misplaced", len(r.Metadata.MisplacedInstructions)),
		zap.Int("dropped_noise", r.Metadata.DroppedNoise),
		zap.Strings("gateway_overrides", overrides),
	)
	return r
}

// LineResult 單行處理結果與原文
type LineResult struct {
	Line string `json:"line"`
	ingredient.LineResult
}

// ParseLines 並行處理食材行，輸出順序與輸入相同
func (p *Processor) ParseLines(ctx context.Context, lines []string) []LineResult {
	return p.parseLines(ctx, lines, ingredient.LineContext{})
}

func (p *Processor) parseLines(_ context.Context, lines []string, lc ingredient.LineContext) []LineResult {
	out := make([]LineResult, len(lines))

	var g errgroup.Group
	g.SetLimit(p.opts.LineWorkers)
	for i := range lines {
		i := i
		g.Go(func() error {
			out[i] = LineResult{Line: lines[i], LineResult: p.parser.ParseLineInContext(lines[i], i, lc)}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// disambiguate 籠統或低信心的名稱交給閘道判斷，返回是否有名稱被取代
func (p *Processor) disambiguate(ctx context.Context, recipeName string, parsed []common.ParsedIngredient, matches []*ingredient.Match) bool {
	if !p.gateway.Enabled() {
		return false
	}

	names := make([]string, 0, len(parsed))
	for _, ing := range parsed {
		names = append(names, ing.Name)
	}

	changed := false
	for i := range parsed {
		generic := matches[i] != nil && matches[i].Generic
		if !generic && parsed[i].Confidence >= p.opts.DisambiguateBelow {
			continue
		}
		if ctx.Err() != nil {
			return changed
		}

		suggestion, ok := p.gateway.Disambiguate(ctx, refine.DisambiguationRequest{
			Name:        parsed[i].Name,
			RawText:     parsed[i].RawText,
			RecipeName:  recipeName,
			Ingredients: names,
			Vocabulary:  p.tables.Vocabulary(),
		})
		if !ok {
			continue
		}
		parsed[i].Name = suggestion.Name
		parsed[i].Confidence = common.Round2(suggestion.Confidence)
		changed = true
	}
	return changed
}

// splitSteps 依規則切分步驟；沒有明確階段時可由閘道重新分類
func (p *Processor) splitSteps(ctx context.Context, name string, raw common.RawRecipe) (fields.Steps, bool) {
	steps := p.steps.Split(fields.StepInput{
		Steps:      raw.Steps,
		PrepSteps:  raw.PrepSteps,
		CookSteps:  raw.CookSteps,
		QuickSteps: raw.QuickSteps,
	})

	if !p.gateway.Enabled() || len(raw.PrepSteps) > 0 || len(raw.CookSteps) > 0 {
		return steps, false
	}
	cleaned, _ := p.steps.Filter(raw.Steps)
	if len(cleaned) == 0 {
		return steps, false
	}

	cls, ok := p.gateway.ClassifySteps(ctx, name, cleaned)
	if !ok {
		return steps, false
	}
	quick, _ := p.steps.Filter(raw.QuickSteps)
	return fields.Assemble(cls.Prep, cls.Cook, quick, steps.Dropped+len(cls.Noise)), true
}

// refineMetadata 以閘道結果取代規則推論的難易度與標籤；原始資料沒有份數時才採用推論份數
func (p *Processor) refineMetadata(ctx context.Context, r *common.Recipe, raw common.RawRecipe) []string {
	names := make([]string, 0, len(r.Ingredients))
	for _, ing := range r.Ingredients {
		names = append(names, ing.Name)
	}

	md, ok := p.gateway.InferMetadata(ctx, refine.MetadataRequest{
		Name:        r.Name,
		Description: r.Description,
		Ingredients: names,
		Steps:       append(append([]string{}, r.PrepSteps...), r.CookSteps...),
	})
	if !ok {
		return nil
	}

	overrides := []string{"difficulty_level", "tags"}
	r.DifficultyLevel = md.Difficulty
	r.Tags = md.Tags
	if md.Servings != nil && fields.ParseServings(raw.Servings) == nil {
		r.Servings = common.IntPtr(*md.Servings)
		overrides = append(overrides, "servings")
	}
	return overrides
}
