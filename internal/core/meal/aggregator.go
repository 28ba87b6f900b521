package meal

import (
	"fmt"
	"strings"

	"recipe-pipeline/internal/core/ingredient"
	"recipe-pipeline/internal/core/reference"
	"recipe-pipeline/internal/infrastructure/config"
	"recipe-pipeline/internal/pkg/common"

	"go.uber.org/zap"
)

// Plan 餐點組成
type Plan struct {
	Name          string          `json:"name"`
	MealType      common.MealType `json:"meal_type,omitempty"`
	EstimatedCost *float64        `json:"estimated_cost,omitempty"`
	Recipes       []PlanEntry     `json:"recipes"`
}

// PlanEntry 餐點中的一道食譜，RecipeIndex 優先於 RecipeName
type PlanEntry struct {
	RecipeIndex *int   `json:"recipe_index,omitempty"`
	RecipeName  string `json:"recipe_name"`
	IsMainDish  bool   `json:"is_main_dish"`
	IsOptional  bool   `json:"is_optional"`
}

// Aggregator 彙總餐點的食材與時間
type Aggregator struct {
	tables         *reference.Tables
	policy         string
	targetServings int
}

// NewAggregator 創建新的餐點彙總器
//
// policy 為 config.ScalePolicyServings 時，每道食譜的數量會依 targetServings / servings 縮放。
func NewAggregator(tables *reference.Tables, policy string, targetServings int) *Aggregator {
	if policy == "" {
		policy = config.ScalePolicyNone
	}
	return &Aggregator{
		tables:         tables,
		policy:         policy,
		targetServings: targetServings,
	}
}

// DefaultPlans 每道食譜各自成為一個以自己為主菜的餐點
func DefaultPlans(recipes []*common.Recipe) []Plan {
	plans := make([]Plan, 0, len(recipes))
	for i, r := range recipes {
		idx := i
		plans = append(plans, Plan{
			Name: r.Name + " Meal",
			Recipes: []PlanEntry{{
				RecipeIndex: &idx,
				RecipeName:  r.Name,
				IsMainDish:  true,
			}},
		})
	}
	return plans
}

// Build 依餐點組成彙總食譜
//
// 總時間取各食譜的最大值；食材依名稱、單位合併，單位不同時分列。
// 選用的食譜只提供選用食材，合併後只有每個來源都是選用時才是選用。
func (a *Aggregator) Build(plan Plan, recipes []*common.Recipe) (*common.Meal, error) {
	if len(plan.Recipes) == 0 {
		return nil, common.ErrInvalidRequest.Wrap(fmt.Errorf("meal %q has no recipes", plan.Name))
	}

	byName := make(map[string]int, len(recipes))
	for i, r := range recipes {
		key := strings.ToLower(strings.TrimSpace(r.Name))
		if _, exists := byName[key]; !exists {
			byName[key] = i
		}
	}

	meal := &common.Meal{
		Name:          plan.Name,
		EstimatedCost: plan.EstimatedCost,
		Recipes:       make([]common.MealRecipe, 0, len(plan.Recipes)),
	}

	var (
		pooled   []common.ParsedIngredient
		mainName string
	)

	for order, entry := range plan.Recipes {
		idx, err := resolve(entry, byName, len(recipes))
		if err != nil {
			return nil, err
		}
		r := recipes[idx]

		meal.Recipes = append(meal.Recipes, common.MealRecipe{
			RecipeIndex: idx,
			RecipeName:  r.Name,
			OrderIndex:  order,
			IsMainDish:  entry.IsMainDish,
			IsOptional:  entry.IsOptional,
		})
		if entry.IsMainDish && mainName == "" {
			mainName = r.Name
		}

		if r.TotalTimeMinutes != nil && (meal.TotalTimeMinutes == nil || *r.TotalTimeMinutes > *meal.TotalTimeMinutes) {
			meal.TotalTimeMinutes = common.IntPtr(*r.TotalTimeMinutes)
		}

		factor := a.scaleFactor(r)
		for _, ing := range r.Ingredients {
			scaled := ing
			if ing.Quantity != nil {
				scaled.Quantity = common.Float64Ptr(common.Round2(*ing.Quantity * factor))
			}
			scaled.IsOptional = ing.IsOptional || entry.IsOptional
			pooled = append(pooled, scaled)
		}
	}

	if mainName == "" {
		mainName = meal.Recipes[0].RecipeName
	}
	meal.MealType = plan.MealType
	if meal.MealType == "" {
		meal.MealType = Classify(a.tables, mainName)
	}

	merged := ingredient.Deduplicate(pooled)
	meal.Ingredients = make([]common.MealIngredient, 0, len(merged))
	for _, ing := range merged {
		meal.Ingredients = append(meal.Ingredients, common.MealIngredient{
			Name:       ing.Name,
			Quantity:   ing.Quantity,
			Unit:       ing.Unit,
			RawUnit:    ing.RawUnit,
			IsOptional: ing.IsOptional,
			OrderIndex: ing.OrderIndex,
		})
	}

	common.LogDebug("餐點彙總完成",
		zap.String("meal", meal.Name),
		zap.String("meal_type", string(meal.MealType)),
		zap.Int("recipes", len(meal.Recipes)),
		zap.Int("ingredients", len(meal.Ingredients)),
	)
	return meal, nil
}

// scaleFactor 依份數縮放的倍數，資訊不足時為 1
func (a *Aggregator) scaleFactor(r *common.Recipe) float64 {
	if a.policy != config.ScalePolicyServings || a.targetServings <= 0 {
		return 1
	}
	if r.Servings == nil || *r.Servings <= 0 {
		return 1
	}
	return float64(a.targetServings) / float64(*r.Servings)
}

func resolve(entry PlanEntry, byName map[string]int, n int) (int, error) {
	if entry.RecipeIndex != nil {
		if *entry.RecipeIndex < 0 || *entry.RecipeIndex >= n {
			return 0, common.ErrNotFound.Wrap(fmt.Errorf("recipe index %d out of range", *entry.RecipeIndex))
		}
		return *entry.RecipeIndex, nil
	}
	idx, ok := byName[strings.ToLower(strings.TrimSpace(entry.RecipeName))]
	if !ok {
		return 0, common.ErrNotFound.Wrap(fmt.Errorf("recipe %q not found", entry.RecipeName))
	}
	return idx, nil
}
