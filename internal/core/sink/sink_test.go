package sink

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"recipe-pipeline/internal/core/recipe"
	"recipe-pipeline/internal/pkg/common"

	"github.com/xuri/excelize/v2"
)

func testResult() *recipe.Result {
	return &recipe.Result{
		Recipes: []*common.Recipe{
			{
				Name:             "Masala Dosa",
				PrepTimeMinutes:  common.IntPtr(10),
				CookTimeMinutes:  common.IntPtr(20),
				TotalTimeMinutes: common.IntPtr(30),
				Servings:         common.IntPtr(4),
				DifficultyLevel:  common.DifficultyMedium,
				Tags:             []string{"south indian", "breakfast"},
				Ingredients: []common.ParsedIngredient{
					{Name: "milk", RawText: "2 cups milk", Quantity: common.Float64Ptr(480), Unit: common.UnitMilliliter, Confidence: 1},
					{Name: "salt", RawText: "salt to taste", IsOptional: true, Confidence: 1, OrderIndex: 1},
				},
				Summary:  "Prep: Soak rice. Cook: Spread the batter.",
				Metadata: common.RecipeMetadata{SourceFormat: common.SourceStandard, DroppedNoise: 1},
			},
			{Name: "Coconut Chutney", Tags: []string{}},
		},
		Meals: []*common.Meal{
			{
				Name:             "Masala Dosa Meal",
				MealType:         common.MealBreakfast,
				TotalTimeMinutes: common.IntPtr(30),
				Recipes: []common.MealRecipe{
					{RecipeIndex: 0, RecipeName: "Masala Dosa", IsMainDish: true},
					{RecipeIndex: 1, RecipeName: "Coconut Chutney", OrderIndex: 1, IsOptional: true},
				},
				Ingredients: []common.MealIngredient{
					{Name: "milk", Quantity: common.Float64Ptr(480), Unit: common.UnitMilliliter},
				},
			},
		},
	}
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func TestBuildRows(t *testing.T) {
	rows, err := BuildRows(testResult(), sequentialIDs())
	if err != nil {
		t.Fatalf("BuildRows() error = %v", err)
	}

	if len(rows.Recipes) != 2 || rows.Recipes[0].ID != "id-1" || rows.Recipes[1].ID != "id-2" {
		t.Fatalf("Recipes = %+v", rows.Recipes)
	}
	if rows.Recipes[0].Instructions != "Prep: Soak rice. Cook: Spread the batter." {
		t.Errorf("Instructions = %q", rows.Recipes[0].Instructions)
	}

	var md common.RecipeMetadata
	if err := json.Unmarshal(rows.Recipes[0].Metadata, &md); err != nil || md.DroppedNoise != 1 {
		t.Errorf("metadata = %s, %v", rows.Recipes[0].Metadata, err)
	}

	if len(rows.RecipeIngredients) != 2 {
		t.Fatalf("RecipeIngredients = %+v", rows.RecipeIngredients)
	}
	salt := rows.RecipeIngredients[1]
	if salt.RecipeID != "id-1" || !salt.IsOptional || salt.OrderIndex != 1 {
		t.Errorf("salt = %+v", salt)
	}
	var info struct {
		RawText  string   `json:"raw_text"`
		Quantity *float64 `json:"quantity"`
		Unit     string   `json:"unit"`
	}
	if err := json.Unmarshal(rows.RecipeIngredients[0].IngredientInfo, &info); err != nil {
		t.Fatal(err)
	}
	if info.RawText != "2 cups milk" || *info.Quantity != 480 || info.Unit != "ml" {
		t.Errorf("ingredient_info = %+v", info)
	}

	if len(rows.Meals) != 1 || rows.Meals[0].ID != "id-3" || rows.Meals[0].MealType != common.MealBreakfast {
		t.Fatalf("Meals = %+v", rows.Meals)
	}
	if len(rows.MealRecipes) != 2 {
		t.Fatalf("MealRecipes = %+v", rows.MealRecipes)
	}
	if rows.MealRecipes[1].RecipeID != "id-2" || rows.MealRecipes[1].MealID != "id-3" || !rows.MealRecipes[1].IsOptional {
		t.Errorf("meal recipe = %+v", rows.MealRecipes[1])
	}
	if len(rows.MealIngredients) != 1 || rows.MealIngredients[0].MealID != "id-3" {
		t.Errorf("MealIngredients = %+v", rows.MealIngredients)
	}
}

func TestBuildRowsDefaultIDs(t *testing.T) {
	rows, err := BuildRows(testResult(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows.Recipes[0].ID) != 36 || rows.Recipes[0].ID == rows.Recipes[1].ID {
		t.Errorf("ids = %q, %q", rows.Recipes[0].ID, rows.Recipes[1].ID)
	}
}

func TestBuildRowsErrors(t *testing.T) {
	if _, err := BuildRows(nil, nil); !errors.Is(err, common.ErrInvalidRequest) {
		t.Errorf("nil result error = %v", err)
	}

	res := testResult()
	res.Meals[0].Recipes[1].RecipeIndex = 5
	if _, err := BuildRows(res, nil); err == nil {
		t.Error("dangling recipe index should fail")
	}
}

func TestWriteXLSX(t *testing.T) {
	rows, err := BuildRows(testResult(), sequentialIDs())
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := WriteXLSX(&buf, rows); err != nil {
		t.Fatalf("WriteXLSX() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	want := []string{SheetRecipes, SheetRecipeIngredients, SheetMeals, SheetMealRecipes, SheetMealIngredients}
	got := f.GetSheetList()
	if len(got) != len(want) {
		t.Fatalf("sheets = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sheet %d = %q, want %q", i, got[i], want[i])
		}
	}

	tests := []struct {
		sheet string
		rows  int
		cell  string
		want  string
	}{
		{SheetRecipes, 3, "B2", "Masala Dosa"},
		{SheetRecipes, 3, "H2", "4"},
		{SheetRecipeIngredients, 3, "B3", "salt"},
		{SheetMeals, 2, "C2", "breakfast"},
		{SheetMealRecipes, 3, "B3", "id-2"},
		{SheetMealIngredients, 2, "D2", "ml"},
	}
	for _, tt := range tests {
		t.Run(tt.sheet+"/"+tt.cell, func(t *testing.T) {
			all, err := f.GetRows(tt.sheet)
			if err != nil {
				t.Fatal(err)
			}
			if len(all) != tt.rows {
				t.Errorf("rows = %d, want %d", len(all), tt.rows)
			}
			v, err := f.GetCellValue(tt.sheet, tt.cell)
			if err != nil || v != tt.want {
				t.Errorf("%s = %q, %v; want %q", tt.cell, v, err, tt.want)
			}
		})
	}

	if v, _ := f.GetCellValue(SheetRecipes, "E3"); v != "" {
		t.Errorf("missing prep time should be blank, got %q", v)
	}
}
