package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"recipe-pipeline/internal/core/recipe"
	"recipe-pipeline/internal/core/reference"
	"recipe-pipeline/internal/infrastructure/config"
	"recipe-pipeline/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

const batchBody = `[
	{"recipe_name": "Masala Dosa", "ingredients": ["2 cups milk", "Add milk to saucepan", "1 tsp salt"], "prep_time": "10", "cook_time": "20"},
	{"title": "Jeera Rice", "ingredients": ["1 cup rice"]}
]`

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		App:      config.AppConfig{Version: "test", MaxBodySize: 1 << 20},
		Server:   config.ServerConfig{RequestTimeout: 5 * time.Second},
		Pipeline: config.PipelineConfig{Workers: 2, LineWorkers: 2, CanonicalThreshold: 0.85, DefaultServings: 2},
		Meal:     config.MealConfig{ScalePolicy: config.ScalePolicyNone},
	}
}

func newTestRouter(t *testing.T, cfg *config.Config) *gin.Engine {
	t.Helper()
	tables := reference.Default()
	router, err := SetupRouter(cfg, Dependencies{
		Tables:    tables,
		Processor: recipe.NewProcessor(tables, nil, recipe.OptionsFrom(cfg)),
	})
	if err != nil {
		t.Fatalf("SetupRouter() error = %v", err)
	}
	return router
}

func do(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp common.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error body %q: %v", w.Body.String(), err)
	}
	return resp.Code
}

func TestSetupRouterRequiresDependencies(t *testing.T) {
	if _, err := SetupRouter(testConfig(), Dependencies{}); err == nil {
		t.Error("expected an error without tables and processor")
	}
	if _, err := SetupRouter(nil, Dependencies{}); err == nil {
		t.Error("expected an error without config")
	}
}

func TestHealthRoutes(t *testing.T) {
	router := newTestRouter(t, testConfig())

	tests := []struct {
		path   string
		status string
	}{
		{"/health", "ok"},
		{"/ready", "ready"},
		{"/live", "alive"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := do(router, http.MethodGet, tt.path, "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body["status"] != tt.status {
				t.Errorf("status = %v, want %s", body["status"], tt.status)
			}
		})
	}
}

func TestNormalizeResult(t *testing.T) {
	router := newTestRouter(t, testConfig())

	w := do(router, http.MethodPost, "/api/v1/pipeline/normalize", batchBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var res recipe.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Recipes) != 2 || len(res.Meals) != 2 {
		t.Fatalf("got %d recipes, %d meals", len(res.Recipes), len(res.Meals))
	}
	dosa := res.Recipes[0]
	if dosa.Ingredients[0].Name != "milk" || *dosa.Ingredients[0].Quantity != 480 || dosa.Ingredients[0].Unit != common.UnitMilliliter {
		t.Errorf("milk = %+v", dosa.Ingredients[0])
	}
	if len(dosa.Metadata.MisplacedInstructions) != 1 {
		t.Errorf("MisplacedInstructions = %q", dosa.Metadata.MisplacedInstructions)
	}
	if *dosa.TotalTimeMinutes != 30 {
		t.Errorf("TotalTimeMinutes = %d", *dosa.TotalTimeMinutes)
	}
}

func TestNormalizeRows(t *testing.T) {
	router := newTestRouter(t, testConfig())

	w := do(router, http.MethodPost, "/api/v1/pipeline/normalize?format=rows", batchBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var rows struct {
		Recipes           []map[string]any `json:"recipes"`
		RecipeIngredients []map[string]any `json:"recipe_ingredients"`
		Meals             []map[string]any `json:"meals"`
		MealRecipes       []map[string]any `json:"meal_recipes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows.Recipes) != 2 || len(rows.RecipeIngredients) != 3 || len(rows.Meals) != 2 || len(rows.MealRecipes) != 2 {
		t.Errorf("rows = %+v", rows)
	}
	if rows.MealRecipes[0]["recipe_id"] != rows.Recipes[0]["id"] {
		t.Errorf("meal recipe %v does not reference recipe %v", rows.MealRecipes[0]["recipe_id"], rows.Recipes[0]["id"])
	}
}

func TestNormalizeXLSX(t *testing.T) {
	router := newTestRouter(t, testConfig())

	w := do(router, http.MethodPost, "/api/v1/pipeline/normalize?format=xlsx", batchBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("Content-Type = %q", ct)
	}

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()
	if got := len(f.GetSheetList()); got != 5 {
		t.Errorf("sheets = %d, want 5", got)
	}
	if v, _ := f.GetCellValue("recipes", "B3"); v != "Jeera Rice" {
		t.Errorf("recipes!B3 = %q", v)
	}
}

func TestNormalizeErrors(t *testing.T) {
	router := newTestRouter(t, testConfig())

	tests := []struct {
		name   string
		target string
		body   string
		status int
		code   string
	}{
		{"unknown format", "/api/v1/pipeline/normalize?format=csv", batchBody, http.StatusBadRequest, common.ErrCodeInvalidRequest},
		{"object without recipes", "/api/v1/pipeline/normalize", `{"name": "Dal"}`, http.StatusBadRequest, common.ErrCodeInvalidBatch},
		{"scalar element", "/api/v1/pipeline/normalize", `[1, 2]`, http.StatusBadRequest, common.ErrCodeInvalidBatch},
		{"not json", "/api/v1/pipeline/normalize", `recipes`, http.StatusBadRequest, common.ErrCodeInvalidBatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, http.MethodPost, tt.target, tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if code := errorCode(t, w); code != tt.code {
				t.Errorf("code = %s, want %s", code, tt.code)
			}
		})
	}
}

func TestBodySizeLimit(t *testing.T) {
	cfg := testConfig()
	cfg.App.MaxBodySize = 16
	router := newTestRouter(t, cfg)

	w := do(router, http.MethodPost, "/api/v1/pipeline/normalize", batchBody)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", w.Code)
	}
}

func TestParseIngredients(t *testing.T) {
	router := newTestRouter(t, testConfig())

	w := do(router, http.MethodPost, "/api/v1/ingredients/parse", `{"lines": ["2 cups milk", "Advertisement", "stir in the onions"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Results []struct {
			Line           string `json:"line"`
			Classification struct {
				Kind string `json:"kind"`
			} `json:"classification"`
			Ingredient *common.ParsedIngredient `json:"ingredient"`
		} `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("results = %+v", resp.Results)
	}
	kinds := []string{"ingredient", "noise", "instruction"}
	for i, r := range resp.Results {
		if r.Classification.Kind != kinds[i] {
			t.Errorf("line %q kind = %s, want %s", r.Line, r.Classification.Kind, kinds[i])
		}
	}
	if resp.Results[0].Ingredient == nil || resp.Results[0].Ingredient.Name != "milk" {
		t.Errorf("ingredient = %+v", resp.Results[0].Ingredient)
	}

	if w := do(router, http.MethodPost, "/api/v1/ingredients/parse", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing lines status = %d", w.Code)
	}
}

func TestMealType(t *testing.T) {
	router := newTestRouter(t, testConfig())

	tests := []struct {
		name string
		want common.MealType
	}{
		{"Masala Dosa", common.MealBreakfast},
		{"Jeera Rice", common.MealLunch},
		{"Paneer Tikka", common.MealDinner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/meals/type", nil)
			q := req.URL.Query()
			q.Set("name", tt.name)
			req.URL.RawQuery = q.Encode()
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			var resp struct {
				MealType common.MealType `json:"meal_type"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.MealType != tt.want {
				t.Errorf("meal_type = %s, want %s", resp.MealType, tt.want)
			}
		})
	}

	if w := do(router, http.MethodGet, "/api/v1/meals/type", ""); w.Code != http.StatusBadRequest {
		t.Errorf("missing name status = %d", w.Code)
	}
}

func TestAIStatusWithoutRefinement(t *testing.T) {
	router := newTestRouter(t, testConfig())

	w := do(router, http.MethodGet, "/api/v1/ai/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Enabled bool `json:"enabled"`
		Service struct {
			Available bool `json:"available"`
		} `json:"service"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Enabled || resp.Service.Available {
		t.Errorf("resp = %+v", resp)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, Requests: 1, Window: time.Minute}
	router := newTestRouter(t, cfg)

	if w := do(router, http.MethodGet, "/live", ""); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d", w.Code)
	}
	w := do(router, http.MethodGet, "/live", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q", w.Header().Get("Retry-After"))
	}
}

func TestDeduplication(t *testing.T) {
	cfg := testConfig()
	cfg.DedupWindow = time.Minute
	router := newTestRouter(t, cfg)

	if w := do(router, http.MethodPost, "/api/v1/pipeline/normalize", batchBody); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d", w.Code)
	}
	if w := do(router, http.MethodPost, "/api/v1/pipeline/normalize", batchBody); w.Code != http.StatusTooManyRequests {
		t.Errorf("duplicate status = %d, want 429", w.Code)
	}
	if w := do(router, http.MethodPost, "/api/v1/pipeline/normalize", `[]`); w.Code != http.StatusOK {
		t.Errorf("different body status = %d", w.Code)
	}
}

func TestNoRoute(t *testing.T) {
	router := newTestRouter(t, testConfig())

	w := do(router, http.MethodGet, "/api/v1/recipe/generate", "")
	if w.Code != http.StatusNotFound || errorCode(t, w) != common.ErrCodeNotFound {
		t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestNoMethod(t *testing.T) {
	router := newTestRouter(t, testConfig())

	w := do(router, http.MethodGet, "/api/v1/pipeline/normalize", "")
	if w.Code != http.StatusMethodNotAllowed || errorCode(t, w) != common.ErrCodeMethodNotAllowed {
		t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
	}
}
