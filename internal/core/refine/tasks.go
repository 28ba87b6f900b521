package refine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"recipe-pipeline/internal/pkg/common"
)

// CanonicalFields 欄位對應可使用的標準欄位
var CanonicalFields = []string{
	"name", "description", "ingredients", "steps", "prep_steps", "cook_steps",
	"quick_steps", "prep_time", "cook_time", "total_time", "servings",
}

// DisambiguationRequest 籠統名稱的判斷上下文
type DisambiguationRequest struct {
	Name        string
	RawText     string
	RecipeName  string
	Ingredients []string
	Vocabulary  []string
}

// Suggestion 名稱判斷結果
type Suggestion struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

func (s *Suggestion) score() float64 { return s.Confidence }

// StepClassification 步驟分類結果
type StepClassification struct {
	Prep       []string `json:"prep_steps"`
	Cook       []string `json:"cook_steps"`
	Noise      []string `json:"noise"`
	Confidence float64  `json:"confidence"`
}

func (s *StepClassification) score() float64 { return s.Confidence }

// MetadataRequest 推論食譜資訊的上下文
type MetadataRequest struct {
	Name        string
	Description string
	Ingredients []string
	Steps       []string
}

// MetadataSuggestion 食譜資訊推論結果
type MetadataSuggestion struct {
	Difficulty common.Difficulty `json:"difficulty_level"`
	Tags       []string          `json:"tags"`
	Servings   *int              `json:"servings"`
	Confidence float64           `json:"confidence"`
}

func (m *MetadataSuggestion) score() float64 { return m.Confidence }

// FieldMapping 原始鍵名到標準欄位的對應
type FieldMapping struct {
	Mapping    map[string]string `json:"mapping"`
	Confidence float64           `json:"confidence"`
}

func (f *FieldMapping) score() float64 { return f.Confidence }

// Disambiguate 依食譜上下文將籠統名稱對應到參考詞彙
//
// 結果必須是參考詞彙中的名稱才會採用。
func (g *Gateway) Disambiguate(ctx context.Context, req DisambiguationRequest) (Suggestion, bool) {
	if !g.Enabled() {
		return Suggestion{}, false
	}

	prompt := fmt.Sprintf(`An ingredient line from the recipe %q reads %q and was parsed as %q, which is too generic.
Other ingredients in the recipe: %s.
Pick the single most likely specific ingredient from this vocabulary: %s.
Reply with compact JSON only: {"name": "<vocabulary entry>", "confidence": <0..1>}`,
		req.RecipeName, req.RawText, req.Name,
		common.StringSliceToString(req.Ingredients),
		common.StringSliceToString(req.Vocabulary))

	var out Suggestion
	if err := g.call(ctx, TaskDisambiguate, prompt, &out); err != nil {
		g.bypass(TaskDisambiguate, err)
		return Suggestion{}, false
	}

	out.Name = strings.ToLower(strings.TrimSpace(out.Name))
	if !contains(req.Vocabulary, out.Name) {
		g.reject(TaskDisambiguate, fmt.Errorf("suggestion %q is not a vocabulary entry", out.Name))
		return Suggestion{}, false
	}

	g.accept(TaskDisambiguate, out.Confidence)
	return out, true
}

// ClassifySteps 將步驟分成準備、烹調與非食譜雜訊
//
// 回應只能使用輸入中的步驟，且每一個輸入步驟都必須出現在結果中。
func (g *Gateway) ClassifySteps(ctx context.Context, recipeName string, steps []string) (StepClassification, bool) {
	if !g.Enabled() || len(steps) == 0 {
		return StepClassification{}, false
	}

	var b strings.Builder
	for i, s := range steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}
	prompt := fmt.Sprintf(`Classify every step of the recipe %q as preparation, cooking, or non-recipe noise (ads, links, commentary).
Copy each step verbatim into exactly one list and keep the original order.
Steps:
%s
Reply with compact JSON only: {"prep_steps": [], "cook_steps": [], "noise": [], "confidence": <0..1>}`,
		recipeName, b.String())

	var out StepClassification
	if err := g.call(ctx, TaskClassifySteps, prompt, &out); err != nil {
		g.bypass(TaskClassifySteps, err)
		return StepClassification{}, false
	}

	if err := coversExactly(steps, out.Prep, out.Cook, out.Noise); err != nil {
		g.reject(TaskClassifySteps, err)
		return StepClassification{}, false
	}

	g.accept(TaskClassifySteps, out.Confidence)
	return out, true
}

// InferMetadata 推論難易度、標籤與份數
func (g *Gateway) InferMetadata(ctx context.Context, req MetadataRequest) (MetadataSuggestion, bool) {
	if !g.Enabled() {
		return MetadataSuggestion{}, false
	}

	prompt := fmt.Sprintf(`Infer metadata for the recipe %q.
Description: %s
Ingredients: %s
Steps: %s
Reply with compact JSON only: {"difficulty_level": "easy|medium|hard", "tags": ["lowercase tag"], "servings": <integer or null>, "confidence": <0..1>}`,
		req.Name, req.Description,
		common.StringSliceToString(req.Ingredients),
		strings.Join(req.Steps, " "))

	var out MetadataSuggestion
	if err := g.call(ctx, TaskMetadata, prompt, &out); err != nil {
		g.bypass(TaskMetadata, err)
		return MetadataSuggestion{}, false
	}

	tags := make([]string, 0, len(out.Tags))
	for _, t := range out.Tags {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" && !contains(tags, t) {
			tags = append(tags, t)
		}
	}
	out.Tags = tags

	g.accept(TaskMetadata, out.Confidence)
	return out, true
}

// MapSchema 為無法辨識的記錄建立鍵名對應
//
// 對應中的鍵必須存在於記錄中，且至少要對應到名稱或食材。
func (g *Gateway) MapSchema(ctx context.Context, record map[string]any) (FieldMapping, bool) {
	if !g.Enabled() || len(record) == 0 {
		return FieldMapping{}, false
	}

	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sample, err := common.ToJSON(record)
	if err != nil {
		g.bypass(TaskMapSchema, err)
		return FieldMapping{}, false
	}
	if len(sample) > 2000 {
		sample = sample[:2000]
	}

	prompt := fmt.Sprintf(`A recipe record uses unknown keys: %s.
Sample: %s
Map each key that holds recipe data to one of these fields: %s. Leave other keys out.
Reply with compact JSON only: {"mapping": {"<key>": "<field>"}, "confidence": <0..1>}`,
		strings.Join(keys, ", "), sample, strings.Join(CanonicalFields, ", "))

	var out FieldMapping
	if err := g.call(ctx, TaskMapSchema, prompt, &out); err != nil {
		g.bypass(TaskMapSchema, err)
		return FieldMapping{}, false
	}

	covers := false
	for key, field := range out.Mapping {
		if _, ok := record[key]; !ok {
			g.reject(TaskMapSchema, fmt.Errorf("mapping references unknown key %q", key))
			return FieldMapping{}, false
		}
		if field == "name" || field == "ingredients" {
			covers = true
		}
	}
	if !covers {
		g.reject(TaskMapSchema, fmt.Errorf("mapping has neither a name nor an ingredient field"))
		return FieldMapping{}, false
	}

	g.accept(TaskMapSchema, out.Confidence)
	return out, true
}

// reject 回應通過結構描述但內容不可用
func (g *Gateway) reject(task string, err error) {
	g.rejected.Add(1)
	g.bypass(task, common.ErrRefinementRejected.Wrap(err))
}

// coversExactly 回應中的步驟必須與輸入步驟一一對應
func coversExactly(input []string, groups ...[]string) error {
	remaining := make(map[string]int, len(input))
	for _, s := range input {
		remaining[s]++
	}
	for _, group := range groups {
		for _, s := range group {
			if remaining[s] == 0 {
				return fmt.Errorf("step %q is not part of the input", s)
			}
			remaining[s]--
		}
	}
	for s, n := range remaining {
		if n > 0 {
			return fmt.Errorf("step %q is missing from the response", s)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
