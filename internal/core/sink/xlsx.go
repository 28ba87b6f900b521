package sink

import (
	"fmt"
	"io"
	"strings"

	"recipe-pipeline/internal/pkg/common"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// 工作表名稱與輸出表同名
const (
	SheetRecipes           = "recipes"
	SheetRecipeIngredients = "recipe_ingredients"
	SheetMeals             = "meals"
	SheetMealRecipes       = "meal_recipes"
	SheetMealIngredients   = "meal_ingredients"
)

type sheet struct {
	name    string
	headers []string
	rows    [][]any
	widths  map[string]float64
}

// WriteXLSX 將五個輸出表寫成一個活頁簿，每個表一個工作表
func WriteXLSX(w io.Writer, rows *Rows) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			common.LogWarn("關閉活頁簿失敗", zap.Error(err))
		}
	}()

	sheets := buildSheets(rows)
	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), s.name); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return fmt.Errorf("create sheet %s: %w", s.name, err)
		}

		for col, h := range s.headers {
			cell, _ := excelize.CoordinatesToCellName(col+1, 1)
			if err := f.SetCellValue(s.name, cell, h); err != nil {
				return err
			}
		}
		for r, values := range s.rows {
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, r+2)
				if err := f.SetCellValue(s.name, cell, v); err != nil {
					return err
				}
			}
		}
		for col, width := range s.widths {
			_ = f.SetColWidth(s.name, col, col, width)
		}
	}

	if index, err := f.GetSheetIndex(SheetRecipes); err == nil && index >= 0 {
		f.SetActiveSheet(index)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func buildSheets(rows *Rows) []sheet {
	recipes := sheet{
		name: SheetRecipes,
		headers: []string{"id", "name", "description", "instructions", "prep_time_minutes", "cook_time_minutes",
			"total_time_minutes", "servings", "difficulty_level", "tags", "metadata"},
		widths: map[string]float64{"A": 38, "B": 28, "D": 60, "K": 48},
	}
	for _, r := range rows.Recipes {
		recipes.rows = append(recipes.rows, []any{
			r.ID, r.Name, r.Description, r.Instructions, intCell(r.PrepTimeMinutes), intCell(r.CookTimeMinutes),
			intCell(r.TotalTimeMinutes), intCell(r.Servings), string(r.DifficultyLevel), strings.Join(r.Tags, ", "), string(r.Metadata),
		})
	}

	ingredients := sheet{
		name:    SheetRecipeIngredients,
		headers: []string{"recipe_id", "ingredient_name", "ingredient_info", "grocery_mapping", "is_optional", "order_index"},
		widths:  map[string]float64{"A": 38, "B": 24, "C": 60, "D": 48},
	}
	for _, r := range rows.RecipeIngredients {
		ingredients.rows = append(ingredients.rows, []any{
			r.RecipeID, r.IngredientName, string(r.IngredientInfo), string(r.GroceryMapping), r.IsOptional, r.OrderIndex,
		})
	}

	meals := sheet{
		name:    SheetMeals,
		headers: []string{"id", "name", "meal_type", "total_time_minutes", "estimated_cost"},
		widths:  map[string]float64{"A": 38, "B": 28},
	}
	for _, m := range rows.Meals {
		meals.rows = append(meals.rows, []any{m.ID, m.Name, string(m.MealType), intCell(m.TotalTimeMinutes), floatCell(m.EstimatedCost)})
	}

	mealRecipes := sheet{
		name:    SheetMealRecipes,
		headers: []string{"meal_id", "recipe_id", "recipe_name", "order_index", "is_main_dish", "is_optional"},
		widths:  map[string]float64{"A": 38, "B": 38, "C": 28},
	}
	for _, m := range rows.MealRecipes {
		mealRecipes.rows = append(mealRecipes.rows, []any{m.MealID, m.RecipeID, m.RecipeName, m.OrderIndex, m.IsMainDish, m.IsOptional})
	}

	mealIngredients := sheet{
		name:    SheetMealIngredients,
		headers: []string{"meal_id", "ingredient_name", "quantity", "unit", "is_optional", "order_index"},
		widths:  map[string]float64{"A": 38, "B": 24},
	}
	for _, m := range rows.MealIngredients {
		mealIngredients.rows = append(mealIngredients.rows, []any{m.MealID, m.IngredientName, floatCell(m.Quantity), string(m.Unit), m.IsOptional, m.OrderIndex})
	}

	return []sheet{recipes, ingredients, meals, mealRecipes, mealIngredients}
}

func intCell(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}

func floatCell(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}
