package recipe

import (
	"encoding/json"
	"fmt"
	"strings"

	"recipe-pipeline/internal/core/meal"
	"recipe-pipeline/internal/pkg/common"
)

// 各欄位可接受的鍵名，依優先順序排列
var (
	nameKeys        = []string{"recipe_name", "name", "title"}
	descriptionKeys = []string{"description"}
	ingredientKeys  = []string{"ingredients", "raw_ingredients", "ingredients_json", "ingredient_lines"}
	stepKeys        = []string{"steps", "instructions", "directions", "method"}
	prepStepKeys    = []string{"prep_steps"}
	cookStepKeys    = []string{"cook_steps"}
	quickStepKeys   = []string{"quick_steps"}
	prepTimeKeys    = []string{"prep_time_min", "prep_time", "preptime", "prep_time_minutes"}
	cookTimeKeys    = []string{"cook_time_min", "cook_time", "cooktime", "cook_time_minutes"}
	totalTimeKeys   = []string{"total_time_min", "total_time", "totaltime", "total_time_minutes"}
	servingsKeys    = []string{"servings", "serves", "yield"}
)

// Batch 一次處理的輸入
type Batch struct {
	Recipes []common.RawRecipe `json:"recipes"`
	// Meals 明確的餐點組成；為空時每道食譜各自成為一個餐點
	Meals []meal.Plan `json:"meals,omitempty"`
}

// DecodeBatch 解析輸入批次
//
// 接受食譜物件陣列，或 {"recipes": [...], "meals": [...]} 物件。
// 陣列中任何非物件的元素都會讓整個批次無效；個別記錄的欄位缺漏只會降級處理。
func DecodeBatch(data []byte) (*Batch, error) {
	var doc any
	if err := common.ParseJSONBytes(data, &doc); err != nil {
		return nil, common.ErrInvalidBatch.Wrap(err)
	}

	var (
		items []any
		batch Batch
	)
	switch v := doc.(type) {
	case []any:
		items = v
	case map[string]any:
		list, ok := v["recipes"].([]any)
		if !ok {
			return nil, common.ErrInvalidBatch.Wrap(fmt.Errorf(`object input requires a "recipes" array`))
		}
		items = list
		if plans, exists := v["meals"]; exists && plans != nil {
			raw, err := json.Marshal(plans)
			if err != nil {
				return nil, common.ErrInvalidBatch.Wrap(err)
			}
			if err := common.ParseJSONBytes(raw, &batch.Meals); err != nil {
				return nil, common.ErrInvalidBatch.Wrap(fmt.Errorf("invalid meals: %w", err))
			}
		}
	default:
		return nil, common.ErrInvalidBatch.Wrap(fmt.Errorf("input is a %T, not a list of recipes", doc))
	}

	batch.Recipes = make([]common.RawRecipe, 0, len(items))
	for i, item := range items {
		record, ok := item.(map[string]any)
		if !ok {
			return nil, common.ErrInvalidBatch.Wrap(fmt.Errorf("element %d is a %T, not an object", i, item))
		}
		batch.Recipes = append(batch.Recipes, DecodeRecord(record))
	}
	return &batch, nil
}

// DecodeRecord 依已知鍵名取出欄位
//
// 找不到任何名稱或食材鍵時標記為 common.SourceUnrecognized，原始記錄保留在 Fields 供欄位對應使用。
func DecodeRecord(record map[string]any) common.RawRecipe {
	raw := common.RawRecipe{
		Name:         lookupString(record, nameKeys),
		Description:  lookupString(record, descriptionKeys),
		Ingredients:  ingredientLines(lookup(record, ingredientKeys)),
		Steps:        lines(lookup(record, stepKeys)),
		PrepSteps:    lines(lookup(record, prepStepKeys)),
		CookSteps:    lines(lookup(record, cookStepKeys)),
		QuickSteps:   lines(lookup(record, quickStepKeys)),
		PrepTime:     lookup(record, prepTimeKeys),
		CookTime:     lookup(record, cookTimeKeys),
		TotalTime:    lookup(record, totalTimeKeys),
		Servings:     lookup(record, servingsKeys),
		SourceFormat: common.SourceStandard,
		Fields:       record,
	}
	if !hasAny(record, nameKeys) && !hasAny(record, ingredientKeys) {
		raw.SourceFormat = common.SourceUnrecognized
	}
	return raw
}

// ApplyMapping 依欄位對應改寫記錄後重新解析
func ApplyMapping(record map[string]any, mapping map[string]string) common.RawRecipe {
	mapped := make(map[string]any, len(mapping))
	for key, field := range mapping {
		if v, ok := record[key]; ok {
			mapped[field] = v
		}
	}
	raw := DecodeRecord(mapped)
	raw.SourceFormat = common.SourceAdaptiveMapped
	raw.Fields = record
	return raw
}

func hasAny(record map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := record[k]; ok {
			return true
		}
	}
	return false
}

func lookup(record map[string]any, keys []string) any {
	for _, k := range keys {
		if v, ok := record[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func lookupString(record map[string]any, keys []string) string {
	switch v := lookup(record, keys).(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// lines 接受字串陣列、以 JSON 編碼的陣列字串或多行文字
func lines(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s := itemText(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return val
	case string:
		trimmed := strings.TrimSpace(val)
		if strings.HasPrefix(trimmed, "[") {
			var decoded []any
			if err := common.ParseJSON(trimmed, &decoded); err == nil {
				return lines(decoded)
			}
		}
		var out []string
		for _, line := range strings.Split(trimmed, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out = append(out, line)
			}
		}
		return out
	default:
		if s := itemText(val); s != "" {
			return []string{s}
		}
		return nil
	}
}

// ingredientLines 同 lines，另外把 {name, quantity, unit} 物件組回 "quantity unit name"
func ingredientLines(v any) []string {
	if s, ok := v.(string); ok {
		trimmed := strings.TrimSpace(s)
		if strings.HasPrefix(trimmed, "[") {
			var decoded []any
			if err := common.ParseJSON(trimmed, &decoded); err == nil {
				return ingredientLines(decoded)
			}
		}
		return lines(s)
	}

	list, ok := v.([]any)
	if !ok {
		return lines(v)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if obj, ok := item.(map[string]any); ok {
			if line := joinIngredientObject(obj); line != "" {
				out = append(out, line)
			}
			continue
		}
		if s := itemText(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func joinIngredientObject(obj map[string]any) string {
	name := lookupString(obj, []string{"name", "ingredient", "item"})
	if name == "" {
		return lookupString(obj, []string{"text", "line", "raw"})
	}
	parts := make([]string, 0, 3)
	for _, keys := range [][]string{{"quantity", "qty", "amount"}, {"unit", "units"}} {
		if s := lookupString(obj, keys); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(append(parts, name), " ")
}

func itemText(item any) string {
	switch val := item.(type) {
	case string:
		return strings.TrimSpace(val)
	case nil:
		return ""
	case map[string]any:
		return lookupString(val, []string{"text", "step", "instruction", "description"})
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}
