package common

import (
	"encoding/json"
	"math"
)

// Unit 正規化後的單位代碼，空字串代表無單位（計數）
type Unit string

const (
	UnitNone       Unit = ""
	UnitGram       Unit = "g"
	UnitMilliliter Unit = "ml"
)

// MarshalJSON 無單位時輸出 null
func (u Unit) MarshalJSON() ([]byte, error) {
	if u == UnitNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(u))
}

// UnmarshalJSON 接受 null 或字串
func (u *Unit) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*u = UnitNone
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*u = Unit(s)
	return nil
}

// MealType 餐別
type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
)

// Difficulty 難易度
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// 來源格式
const (
	SourceStandard       = "standard"
	SourceAdaptiveMapped = "adaptive_mapped"
	SourceUnrecognized   = "unrecognized"
)

// RawRecipe 原始食譜記錄，處理過程中不會被修改
type RawRecipe struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Ingredients []string `json:"ingredients"`
	Steps       []string `json:"steps,omitempty"`
	PrepSteps   []string `json:"prep_steps,omitempty"`
	CookSteps   []string `json:"cook_steps,omitempty"`
	QuickSteps  []string `json:"quick_steps,omitempty"`
	PrepTime    any      `json:"prep_time,omitempty"`
	CookTime    any      `json:"cook_time,omitempty"`
	TotalTime   any      `json:"total_time,omitempty"`
	Servings    any      `json:"servings,omitempty"`

	// SourceFormat 標記欄位是否由已知鍵名取得
	SourceFormat string `json:"source_format"`
	// Fields 保留原始記錄，供無法辨識的格式做欄位對應
	Fields map[string]any `json:"-"`
}

// ParsedIngredient 食譜內的單一食材
//
// RawUnit 為單位是 null 時保留的原始量詞（sprig、bunch），合併時只比對相同量詞。
type ParsedIngredient struct {
	Name       string   `json:"name"`
	RawText    string   `json:"raw_text"`
	Quantity   *float64 `json:"quantity"`
	Unit       Unit     `json:"unit"`
	RawUnit    string   `json:"raw_unit,omitempty"`
	PrepNotes  string   `json:"prep_notes,omitempty"`
	IsOptional bool     `json:"is_optional"`
	Confidence float64  `json:"confidence"`
	OrderIndex int      `json:"order_index"`
}

// Recipe 正規化後的食譜
type Recipe struct {
	Name             string             `json:"name"`
	Description      string             `json:"description,omitempty"`
	PrepTimeMinutes  *int               `json:"prep_time_minutes"`
	CookTimeMinutes  *int               `json:"cook_time_minutes"`
	TotalTimeMinutes *int               `json:"total_time_minutes"`
	Servings         *int               `json:"servings"`
	DifficultyLevel  Difficulty         `json:"difficulty_level"`
	Tags             []string           `json:"tags"`
	Ingredients      []ParsedIngredient `json:"ingredients"`
	PrepSteps        []string           `json:"prep_steps"`
	CookSteps        []string           `json:"cook_steps"`
	Summary          string             `json:"summary,omitempty"`
	Metadata         RecipeMetadata     `json:"metadata"`
}

// RecipeMetadata 處理過程的稽核資訊
type RecipeMetadata struct {
	SourceFormat          string   `json:"source_format"`
	AIAssisted            bool     `json:"ai_assisted"`
	GatewayOverrides      []string `json:"gateway_overrides,omitempty"`
	MisplacedInstructions []string `json:"misplaced_instructions,omitempty"`
	DroppedNoise          int      `json:"dropped_noise"`
}

// Meal 由一或多道食譜組成的餐點
type Meal struct {
	Name             string           `json:"name"`
	MealType         MealType         `json:"meal_type"`
	TotalTimeMinutes *int             `json:"total_time_minutes"`
	EstimatedCost    *float64         `json:"estimated_cost"`
	Recipes          []MealRecipe     `json:"recipes"`
	Ingredients      []MealIngredient `json:"ingredients"`
}

// MealRecipe 餐點中的食譜
type MealRecipe struct {
	RecipeIndex int    `json:"recipe_index"`
	RecipeName  string `json:"recipe_name"`
	OrderIndex  int    `json:"order_index"`
	IsMainDish  bool   `json:"is_main_dish"`
	IsOptional  bool   `json:"is_optional"`
}

// MealIngredient 餐點彙總後的食材
type MealIngredient struct {
	Name       string   `json:"name"`
	Quantity   *float64 `json:"quantity"`
	Unit       Unit     `json:"unit"`
	RawUnit    string   `json:"raw_unit,omitempty"`
	IsOptional bool     `json:"is_optional"`
	OrderIndex int      `json:"order_index"`
}

// Round2 四捨五入到小數第二位
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Float64Ptr 返回浮點數指標
func Float64Ptr(v float64) *float64 {
	return &v
}

// IntPtr 返回整數指標
func IntPtr(v int) *int {
	return &v
}
