package sink

import (
	"encoding/json"
	"fmt"

	"recipe-pipeline/internal/core/recipe"
	"recipe-pipeline/internal/pkg/common"
)

// RecipeRow recipes 表
type RecipeRow struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Description      string            `json:"description"`
	Instructions     string            `json:"instructions"`
	PrepTimeMinutes  *int              `json:"prep_time_minutes"`
	CookTimeMinutes  *int              `json:"cook_time_minutes"`
	TotalTimeMinutes *int              `json:"total_time_minutes"`
	Servings         *int              `json:"servings"`
	DifficultyLevel  common.Difficulty `json:"difficulty_level"`
	Tags             []string          `json:"tags"`
	Metadata         json.RawMessage   `json:"metadata"`
}

// RecipeIngredientRow recipe_ingredients 表
type RecipeIngredientRow struct {
	RecipeID       string          `json:"recipe_id"`
	IngredientName string          `json:"ingredient_name"`
	IngredientInfo json.RawMessage `json:"ingredient_info"`
	GroceryMapping json.RawMessage `json:"grocery_mapping"`
	IsOptional     bool            `json:"is_optional"`
	OrderIndex     int             `json:"order_index"`
}

// MealRow meals 表
type MealRow struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	MealType         common.MealType `json:"meal_type"`
	TotalTimeMinutes *int            `json:"total_time_minutes"`
	EstimatedCost    *float64        `json:"estimated_cost"`
}

// MealRecipeRow meal_recipes 表
type MealRecipeRow struct {
	MealID     string `json:"meal_id"`
	RecipeID   string `json:"recipe_id"`
	RecipeName string `json:"recipe_name"`
	OrderIndex int    `json:"order_index"`
	IsMainDish bool   `json:"is_main_dish"`
	IsOptional bool   `json:"is_optional"`
}

// MealIngredientRow meal_ingredients 表
type MealIngredientRow struct {
	MealID         string      `json:"meal_id"`
	IngredientName string      `json:"ingredient_name"`
	Quantity       *float64    `json:"quantity"`
	Unit           common.Unit `json:"unit"`
	IsOptional     bool        `json:"is_optional"`
	OrderIndex     int         `json:"order_index"`
}

// Rows 五個輸出表的記錄
type Rows struct {
	Recipes           []RecipeRow           `json:"recipes"`
	RecipeIngredients []RecipeIngredientRow `json:"recipe_ingredients"`
	Meals             []MealRow             `json:"meals"`
	MealRecipes       []MealRecipeRow       `json:"meal_recipes"`
	MealIngredients   []MealIngredientRow   `json:"meal_ingredients"`
}

// ingredientInfo recipe_ingredients.ingredient_info 的內容
type ingredientInfo struct {
	RawText    string      `json:"raw_text"`
	Quantity   *float64    `json:"quantity"`
	Unit       common.Unit `json:"unit"`
	PrepNotes  string      `json:"prep_notes,omitempty"`
	Confidence float64     `json:"confidence"`
}

// groceryMapping recipe_ingredients.grocery_mapping 的內容
type groceryMapping struct {
	CanonicalName string      `json:"canonical_name"`
	Quantity      *float64    `json:"quantity"`
	Unit          common.Unit `json:"unit"`
}

// BuildRows 將處理結果轉成輸出表記錄；newID 為 nil 時使用 UUID
func BuildRows(result *recipe.Result, newID func() string) (*Rows, error) {
	if result == nil {
		return nil, common.ErrInvalidRequest.Wrap(fmt.Errorf("nil result"))
	}
	if newID == nil {
		newID = common.GenerateUUID
	}

	rows := &Rows{
		Recipes:           make([]RecipeRow, 0, len(result.Recipes)),
		RecipeIngredients: make([]RecipeIngredientRow, 0),
		Meals:             make([]MealRow, 0, len(result.Meals)),
		MealRecipes:       make([]MealRecipeRow, 0),
		MealIngredients:   make([]MealIngredientRow, 0),
	}

	recipeIDs := make([]string, len(result.Recipes))
	for i, r := range result.Recipes {
		id := newID()
		recipeIDs[i] = id

		metadata, err := json.Marshal(r.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata of %q: %w", r.Name, err)
		}
		rows.Recipes = append(rows.Recipes, RecipeRow{
			ID:               id,
			Name:             r.Name,
			Description:      r.Description,
			Instructions:     r.Summary,
			PrepTimeMinutes:  r.PrepTimeMinutes,
			CookTimeMinutes:  r.CookTimeMinutes,
			TotalTimeMinutes: r.TotalTimeMinutes,
			Servings:         r.Servings,
			DifficultyLevel:  r.DifficultyLevel,
			Tags:             r.Tags,
			Metadata:         metadata,
		})

		for _, ing := range r.Ingredients {
			info, err := json.Marshal(ingredientInfo{
				RawText:    ing.RawText,
				Quantity:   ing.Quantity,
				Unit:       ing.Unit,
				PrepNotes:  ing.PrepNotes,
				Confidence: ing.Confidence,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to encode ingredient info: %w", err)
			}
			grocery, err := json.Marshal(groceryMapping{
				CanonicalName: ing.Name,
				Quantity:      ing.Quantity,
				Unit:          ing.Unit,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to encode grocery mapping: %w", err)
			}
			rows.RecipeIngredients = append(rows.RecipeIngredients, RecipeIngredientRow{
				RecipeID:       id,
				IngredientName: ing.Name,
				IngredientInfo: info,
				GroceryMapping: grocery,
				IsOptional:     ing.IsOptional,
				OrderIndex:     ing.OrderIndex,
			})
		}
	}

	for _, m := range result.Meals {
		id := newID()
		rows.Meals = append(rows.Meals, MealRow{
			ID:               id,
			Name:             m.Name,
			MealType:         m.MealType,
			TotalTimeMinutes: m.TotalTimeMinutes,
			EstimatedCost:    m.EstimatedCost,
		})
		for _, mr := range m.Recipes {
			if mr.RecipeIndex < 0 || mr.RecipeIndex >= len(recipeIDs) {
				return nil, common.ErrInternalError.Wrap(fmt.Errorf("meal %q references recipe %d", m.Name, mr.RecipeIndex))
			}
			rows.MealRecipes = append(rows.MealRecipes, MealRecipeRow{
				MealID:     id,
				RecipeID:   recipeIDs[mr.RecipeIndex],
				RecipeName: mr.RecipeName,
				OrderIndex: mr.OrderIndex,
				IsMainDish: mr.IsMainDish,
				IsOptional: mr.IsOptional,
			})
		}
		for _, mi := range m.Ingredients {
			rows.MealIngredients = append(rows.MealIngredients, MealIngredientRow{
				MealID:         id,
				IngredientName: mi.Name,
				Quantity:       mi.Quantity,
				Unit:           mi.Unit,
				IsOptional:     mi.IsOptional,
				OrderIndex:     mi.OrderIndex,
			})
		}
	}
	return rows, nil
}
