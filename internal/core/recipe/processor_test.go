package recipe

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"recipe-pipeline/internal/core/reference"
	"recipe-pipeline/internal/core/refine"
	"recipe-pipeline/internal/pkg/common"
)

const testBatch = `[
	{
		"recipe_name": "Masala Dosa",
		"ingredients": ["1 cup milk", "1 cup milk", "Add milk to saucepan", "1 tsp masala", "Advertisement"],
		"instructions": ["Soak rice for 4 hours.", "Heat the tawa and spread the batter.", "Subscribe to our channel"],
		"prep_time": "10",
		"cook_time": 20.9,
		"servings": "Serves 4-6"
	},
	{
		"title": "Plain Rice",
		"ingredients_json": "[{\"name\": \"rice\", \"quantity\": 1, \"unit\": \"cup\"}]",
		"cook_time_min": "PT15M"
	},
	{"dish": "Upma", "items": ["1 cup rava"]}
]`

type stubCompleter struct {
	replies map[string]string
	err     error
}

func (s *stubCompleter) Complete(ctx context.Context, task, prompt string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.replies[task], nil
}

func newGateway(t *testing.T, c refine.Completer) *refine.Gateway {
	t.Helper()
	g, err := refine.NewGateway(c, refine.Config{Threshold: 0.8, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	return g
}

func testOptions() Options {
	return Options{Workers: 2, LineWorkers: 2, CanonicalThreshold: 0.85, DefaultServings: 2, DisambiguateBelow: 0.6}
}

func decodeTestBatch(t *testing.T) *Batch {
	t.Helper()
	batch, err := DecodeBatch([]byte(testBatch))
	if err != nil {
		t.Fatalf("DecodeBatch() error = %v", err)
	}
	return batch
}

func TestRunDeterministic(t *testing.T) {
	p := NewProcessor(reference.Default(), nil, testOptions())

	res, err := p.Run(context.Background(), decodeTestBatch(t))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Recipes) != 3 || len(res.Meals) != 3 {
		t.Fatalf("got %d recipes and %d meals", len(res.Recipes), len(res.Meals))
	}

	dosa := res.Recipes[0]
	if dosa.Name != "Masala Dosa" {
		t.Errorf("Name = %q", dosa.Name)
	}
	if len(dosa.Ingredients) != 2 {
		t.Fatalf("Ingredients = %+v", dosa.Ingredients)
	}
	milk := dosa.Ingredients[0]
	if milk.Name != "milk" || milk.Unit != common.UnitMilliliter || *milk.Quantity != 480 {
		t.Errorf("milk = %+v", milk)
	}
	if dosa.Ingredients[1].Name != "masala" {
		t.Errorf("generic name should stay as written, got %q", dosa.Ingredients[1].Name)
	}
	if !reflect.DeepEqual(dosa.Metadata.MisplacedInstructions, []string{"Add milk to saucepan"}) {
		t.Errorf("MisplacedInstructions = %q", dosa.Metadata.MisplacedInstructions)
	}
	if dosa.Metadata.DroppedNoise != 2 {
		t.Errorf("DroppedNoise = %d, want 2", dosa.Metadata.DroppedNoise)
	}
	if *dosa.PrepTimeMinutes != 10 || *dosa.CookTimeMinutes != 20 || *dosa.TotalTimeMinutes != 30 {
		t.Errorf("times = %d/%d/%d", *dosa.PrepTimeMinutes, *dosa.CookTimeMinutes, *dosa.TotalTimeMinutes)
	}
	if *dosa.Servings != 4 {
		t.Errorf("Servings = %d, want 4", *dosa.Servings)
	}
	if !reflect.DeepEqual(dosa.PrepSteps, []string{"Soak rice for 4 hours."}) ||
		!reflect.DeepEqual(dosa.CookSteps, []string{"Heat the tawa and spread the batter."}) {
		t.Errorf("steps = %q / %q", dosa.PrepSteps, dosa.CookSteps)
	}
	if dosa.Metadata.AIAssisted || dosa.Metadata.GatewayOverrides != nil {
		t.Errorf("deterministic run should not be AI assisted: %+v", dosa.Metadata)
	}

	rice := res.Recipes[1]
	if rice.Name != "Plain Rice" || len(rice.Ingredients) != 1 || rice.Ingredients[0].Name != "rice" {
		t.Errorf("rice = %+v", rice)
	}
	if *rice.CookTimeMinutes != 15 || rice.PrepTimeMinutes != nil || rice.TotalTimeMinutes != nil {
		t.Errorf("rice times = %v/%v/%v", rice.PrepTimeMinutes, rice.CookTimeMinutes, rice.TotalTimeMinutes)
	}
	if *rice.Servings != 2 {
		t.Errorf("default servings = %d", *rice.Servings)
	}

	unknown := res.Recipes[2]
	if unknown.Metadata.SourceFormat != common.SourceUnrecognized || unknown.Name != untitledRecipe {
		t.Errorf("unrecognized record = %+v", unknown)
	}

	if res.Meals[0].MealType != common.MealBreakfast || res.Meals[1].MealType != common.MealLunch {
		t.Errorf("meal types = %s, %s", res.Meals[0].MealType, res.Meals[1].MealType)
	}
	if res.Meals[0].Name != "Masala Dosa Meal" || *res.Meals[0].TotalTimeMinutes != 30 {
		t.Errorf("meal = %+v", res.Meals[0])
	}
}

func TestRunBypassMatchesDeterministic(t *testing.T) {
	deterministic := NewProcessor(reference.Default(), nil, testOptions())
	failing := NewProcessor(reference.Default(), newGateway(t, &stubCompleter{err: errors.New("no route to host")}), testOptions())
	garbage := NewProcessor(reference.Default(), newGateway(t, &stubCompleter{replies: map[string]string{
		refine.TaskDisambiguate:  `{"name": "garam masala", "confidence": 0.2}`,
		refine.TaskClassifySteps: `not json at all`,
		refine.TaskMetadata:      `{"difficulty_level": "impossible", "tags": [], "confidence": 0.99}`,
		refine.TaskMapSchema:     `{"mapping": {"nope": "name"}, "confidence": 0.99}`,
	}}), testOptions())

	want, err := deterministic.Run(context.Background(), decodeTestBatch(t))
	if err != nil {
		t.Fatal(err)
	}
	for name, p := range map[string]*Processor{"unavailable": failing, "rejected": garbage} {
		got, err := p.Run(context.Background(), decodeTestBatch(t))
		if err != nil {
			t.Fatalf("%s: Run() error = %v", name, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%s: output differs from the deterministic run", name)
		}
	}
}

func TestRunWithRefinement(t *testing.T) {
	gw := newGateway(t, &stubCompleter{replies: map[string]string{
		refine.TaskDisambiguate:  `{"name": "garam masala", "confidence": 0.95}`,
		refine.TaskClassifySteps: `{"prep_steps": [], "cook_steps": ["Soak rice for 4 hours.", "Heat the tawa and spread the batter."], "noise": [], "confidence": 0.9}`,
		refine.TaskMetadata:      `{"difficulty_level": "hard", "tags": ["South Indian"], "servings": 3, "confidence": 0.9}`,
	}})
	p := NewProcessor(reference.Default(), gw, testOptions())

	batch := decodeTestBatch(t)
	dosa := p.Process(context.Background(), batch.Recipes[0])

	if dosa.Ingredients[1].Name != "garam masala" || dosa.Ingredients[1].Confidence != 0.95 {
		t.Errorf("disambiguated ingredient = %+v", dosa.Ingredients[1])
	}
	if len(dosa.PrepSteps) != 0 || len(dosa.CookSteps) != 2 {
		t.Errorf("steps = %q / %q", dosa.PrepSteps, dosa.CookSteps)
	}
	if dosa.DifficultyLevel != common.DifficultyHard || !reflect.DeepEqual(dosa.Tags, []string{"south indian"}) {
		t.Errorf("metadata = %s %v", dosa.DifficultyLevel, dosa.Tags)
	}
	if *dosa.Servings != 4 {
		t.Errorf("explicit servings must win, got %d", *dosa.Servings)
	}
	want := []string{"ingredient_names", "steps", "difficulty_level", "tags"}
	if !dosa.Metadata.AIAssisted || !reflect.DeepEqual(dosa.Metadata.GatewayOverrides, want) {
		t.Errorf("metadata = %+v", dosa.Metadata)
	}
}

func TestProcessAdaptiveMapping(t *testing.T) {
	gw := newGateway(t, &stubCompleter{replies: map[string]string{
		refine.TaskMapSchema: `{"mapping": {"dish": "name", "items": "ingredients"}, "confidence": 0.9}`,
	}})
	p := NewProcessor(reference.Default(), gw, testOptions())

	batch := decodeTestBatch(t)
	upma := p.Process(context.Background(), batch.Recipes[2])

	if upma.Name != "Upma" || len(upma.Ingredients) != 1 {
		t.Errorf("upma = %+v", upma)
	}
	if upma.Metadata.SourceFormat != common.SourceAdaptiveMapped || upma.Metadata.GatewayOverrides[0] != "schema" {
		t.Errorf("metadata = %+v", upma.Metadata)
	}
}

func TestRunExplicitMeals(t *testing.T) {
	p := NewProcessor(reference.Default(), nil, testOptions())
	batch, err := DecodeBatch([]byte(`{
		"recipes": [
			{"name": "Jeera Rice", "ingredients": ["1 cup milk"]},
			{"name": "Dal", "ingredients": ["1 cup milk", "salt to taste"]}
		],
		"meals": [
			{"name": "Thali", "recipes": [{"recipe_name": "Jeera Rice", "is_main_dish": true}, {"recipe_name": "Dal"}]},
			{"name": "Ghost", "recipes": [{"recipe_name": "Missing"}]}
		]
	}`))
	if err != nil {
		t.Fatal(err)
	}

	res, err := p.Run(context.Background(), batch)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Meals) != 1 {
		t.Fatalf("meals = %+v, the unresolvable meal should be skipped", res.Meals)
	}
	thali := res.Meals[0]
	if thali.MealType != common.MealLunch || len(thali.Recipes) != 2 {
		t.Errorf("thali = %+v", thali)
	}
	if thali.Ingredients[0].Name != "milk" || *thali.Ingredients[0].Quantity != 480 {
		t.Errorf("milk = %+v", thali.Ingredients[0])
	}
}

func TestProcessBatchCancelled(t *testing.T) {
	p := NewProcessor(reference.Default(), nil, testOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.ProcessBatch(ctx, decodeTestBatch(t).Recipes); !errors.Is(err, context.Canceled) {
		t.Errorf("ProcessBatch() error = %v, want context.Canceled", err)
	}
}

func TestParseLines(t *testing.T) {
	p := NewProcessor(reference.Default(), nil, testOptions())
	lines := []string{"2 cups milk", "add milk to saucepan", "", "to onion"}

	res := p.ParseLines(context.Background(), lines)
	if len(res) != len(lines) {
		t.Fatalf("len = %d", len(res))
	}
	kinds := []string{"ingredient", "instruction", "noise", "ingredient"}
	for i, r := range res {
		if string(r.Classification.Kind) != kinds[i] || r.Line != lines[i] {
			t.Errorf("line %d = %+v, want %s", i, r, kinds[i])
		}
	}
	if res[3].Ingredient.Name != "onion" {
		t.Errorf("name = %q, want onion", res[3].Ingredient.Name)
	}
}

func TestProcessDropsRepeatedTitle(t *testing.T) {
	p := NewProcessor(reference.Default(), nil, testOptions())

	r := p.Process(context.Background(), common.RawRecipe{
		Name:        "Masala Dosa",
		Ingredients: []string{"For the Masala Dosa:", "1 cup rice", "masala dosa"},
	})
	if len(r.Ingredients) != 1 || r.Ingredients[0].Name != "rice" {
		t.Errorf("Ingredients = %+v, want only rice", r.Ingredients)
	}
	if r.Metadata.DroppedNoise != 2 {
		t.Errorf("DroppedNoise = %d, want 2", r.Metadata.DroppedNoise)
	}

	lines := p.ParseLines(context.Background(), []string{"masala dosa"})
	if lines[0].Classification.Kind != "ingredient" {
		t.Errorf("without a recipe name the line is %s", lines[0].Classification.Kind)
	}
}
