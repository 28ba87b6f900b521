package refine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"recipe-pipeline/internal/pkg/common"
)

type fakeCompleter struct {
	mu      sync.Mutex
	replies map[string]string
	err     error
	delay   time.Duration
	tasks   []string
}

func (f *fakeCompleter) Complete(ctx context.Context, task, prompt string) (string, error) {
	f.mu.Lock()
	f.tasks = append(f.tasks, task)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.replies[task], nil
}

func newTestGateway(t *testing.T, c Completer) *Gateway {
	t.Helper()
	g, err := NewGateway(c, Config{Threshold: 0.8, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	return g
}

func TestNewGateway(t *testing.T) {
	g, err := NewGateway(nil, Config{Threshold: 0.8})
	if err != nil || g == nil {
		t.Fatalf("NewGateway(nil) = %v, %v", g, err)
	}
	if g.Enabled() {
		t.Error("gateway without a completer should be disabled")
	}

	if _, err := NewGateway(&fakeCompleter{}, Config{Threshold: 1.5}); err == nil {
		t.Error("threshold outside [0,1] should fail")
	}

	g = newTestGateway(t, &fakeCompleter{})
	if !g.Enabled() || g.timeout != time.Second {
		t.Errorf("gateway = %+v", g)
	}
	if len(g.schemas) != len(taskSchemas) {
		t.Errorf("compiled %d schemas, want %d", len(g.schemas), len(taskSchemas))
	}
}

func TestNilGatewayBypasses(t *testing.T) {
	var g *Gateway
	ctx := context.Background()

	if _, ok := g.Disambiguate(ctx, DisambiguationRequest{Name: "oil"}); ok {
		t.Error("Disambiguate on nil gateway should bypass")
	}
	if _, ok := g.ClassifySteps(ctx, "Dal", []string{"Boil dal"}); ok {
		t.Error("ClassifySteps on nil gateway should bypass")
	}
	if _, ok := g.InferMetadata(ctx, MetadataRequest{Name: "Dal"}); ok {
		t.Error("InferMetadata on nil gateway should bypass")
	}
	if _, ok := g.MapSchema(ctx, map[string]any{"title": "Dal"}); ok {
		t.Error("MapSchema on nil gateway should bypass")
	}
	if g.Stats() != (Stats{}) {
		t.Error("nil gateway stats should be zero")
	}
}

func TestDisambiguate(t *testing.T) {
	vocab := []string{"coconut oil", "mustard oil", "sesame oil"}

	tests := []struct {
		name   string
		reply  string
		want   string
		wantOK bool
	}{
		{"accepted", `{"name": "Coconut Oil", "confidence": 0.92}`, "coconut oil", true},
		{"at threshold", `{"name": "coconut oil", "confidence": 0.8}`, "", false},
		{"below threshold", `{"name": "coconut oil", "confidence": 0.4}`, "", false},
		{"outside vocabulary", `{"name": "olive oil", "confidence": 0.95}`, "", false},
		{"fenced output", "```json\n{name: \"sesame oil\", confidence: 0.9}\n```", "sesame oil", true},
		{"not json", `I think it is coconut oil`, "", false},
		{"schema mismatch", `{"name": "coconut oil", "confidence": "high"}`, "", false},
		{"confidence out of range", `{"name": "coconut oil", "confidence": 3}`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(t, &fakeCompleter{replies: map[string]string{TaskDisambiguate: tt.reply}})
			got, ok := g.Disambiguate(context.Background(), DisambiguationRequest{
				Name:       "oil",
				RawText:    "2 tbsp oil",
				RecipeName: "Avial",
				Vocabulary: vocab,
			})
			if ok != tt.wantOK || got.Name != tt.want {
				t.Errorf("Disambiguate() = %+v, %v; want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestClassifySteps(t *testing.T) {
	steps := []string{"Soak rice for 1 hour", "Cook rice in boiling water", "Subscribe to our channel"}

	tests := []struct {
		name   string
		reply  string
		wantOK bool
	}{
		{
			"full coverage",
			`{"prep_steps": ["Soak rice for 1 hour"], "cook_steps": ["Cook rice in boiling water"], "noise": ["Subscribe to our channel"], "confidence": 0.9}`,
			true,
		},
		{
			"missing step",
			`{"prep_steps": ["Soak rice for 1 hour"], "cook_steps": ["Cook rice in boiling water"], "confidence": 0.9}`,
			false,
		},
		{
			"invented step",
			`{"prep_steps": ["Soak rice for 1 hour", "Wash rice"], "cook_steps": ["Cook rice in boiling water"], "noise": ["Subscribe to our channel"], "confidence": 0.9}`,
			false,
		},
		{
			"duplicated step",
			`{"prep_steps": ["Soak rice for 1 hour"], "cook_steps": ["Soak rice for 1 hour", "Cook rice in boiling water"], "noise": ["Subscribe to our channel"], "confidence": 0.9}`,
			false,
		},
		{
			"missing required list",
			`{"prep_steps": [], "confidence": 0.9}`,
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(t, &fakeCompleter{replies: map[string]string{TaskClassifySteps: tt.reply}})
			got, ok := g.ClassifySteps(context.Background(), "Plain Rice", steps)
			if ok != tt.wantOK {
				t.Fatalf("ClassifySteps() ok = %v, want %v (%+v)", ok, tt.wantOK, got)
			}
			if ok && (len(got.Prep) != 1 || len(got.Cook) != 1 || len(got.Noise) != 1) {
				t.Errorf("ClassifySteps() = %+v", got)
			}
		})
	}
}

func TestInferMetadata(t *testing.T) {
	reply := `{"difficulty_level": "medium", "tags": ["Vegetarian", "vegetarian", " south indian "], "servings": 4, "confidence": 0.85}`
	g := newTestGateway(t, &fakeCompleter{replies: map[string]string{TaskMetadata: reply}})

	got, ok := g.InferMetadata(context.Background(), MetadataRequest{Name: "Sambar"})
	if !ok {
		t.Fatal("InferMetadata() should accept")
	}
	if got.Difficulty != common.DifficultyMedium {
		t.Errorf("Difficulty = %s", got.Difficulty)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "vegetarian" || got.Tags[1] != "south indian" {
		t.Errorf("Tags = %v", got.Tags)
	}
	if got.Servings == nil || *got.Servings != 4 {
		t.Errorf("Servings = %v", got.Servings)
	}

	bad := newTestGateway(t, &fakeCompleter{replies: map[string]string{
		TaskMetadata: `{"difficulty_level": "extreme", "tags": [], "confidence": 0.99}`,
	}})
	if _, ok := bad.InferMetadata(context.Background(), MetadataRequest{Name: "Sambar"}); ok {
		t.Error("unknown difficulty should be rejected by the schema")
	}
	if bad.Stats().Malformed != 1 {
		t.Errorf("Malformed = %d, want 1", bad.Stats().Malformed)
	}
}

func TestMapSchema(t *testing.T) {
	record := map[string]any{
		"title":      "Upma",
		"components": []any{"1 cup rava"},
		"blurb":      "Quick breakfast",
	}

	tests := []struct {
		name   string
		reply  string
		wantOK bool
	}{
		{"valid", `{"mapping": {"title": "name", "components": "ingredients", "blurb": "description"}, "confidence": 0.9}`, true},
		{"unknown key", `{"mapping": {"heading": "name"}, "confidence": 0.9}`, false},
		{"no name or ingredients", `{"mapping": {"blurb": "description"}, "confidence": 0.9}`, false},
		{"unknown field", `{"mapping": {"title": "headline"}, "confidence": 0.9}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(t, &fakeCompleter{replies: map[string]string{TaskMapSchema: tt.reply}})
			got, ok := g.MapSchema(context.Background(), record)
			if ok != tt.wantOK {
				t.Fatalf("MapSchema() ok = %v, want %v (%+v)", ok, tt.wantOK, got)
			}
			if ok && got.Mapping["title"] != "name" {
				t.Errorf("Mapping = %v", got.Mapping)
			}
		})
	}
}

func TestCompleterFailures(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		g := newTestGateway(t, &fakeCompleter{err: errors.New("connection refused")})
		if _, ok := g.InferMetadata(context.Background(), MetadataRequest{Name: "Dal"}); ok {
			t.Error("completer error should bypass")
		}
		if s := g.Stats(); s.Calls != 1 || s.Bypassed != 1 {
			t.Errorf("Stats() = %+v", s)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		g, err := NewGateway(&fakeCompleter{delay: time.Second}, Config{Threshold: 0.5, Timeout: 20 * time.Millisecond})
		if err != nil {
			t.Fatal(err)
		}

		var out Suggestion
		err = g.call(context.Background(), TaskDisambiguate, "prompt", &out)
		if !errors.Is(err, common.ErrGatewayTimeout) {
			t.Errorf("call() error = %v, want gateway timeout", err)
		}
	})

	t.Run("rejection is counted", func(t *testing.T) {
		g := newTestGateway(t, &fakeCompleter{replies: map[string]string{
			TaskDisambiguate: `{"name": "ghee", "confidence": 0.1}`,
		}})
		var out Suggestion
		err := g.call(context.Background(), TaskDisambiguate, "prompt", &out)
		if !errors.Is(err, common.ErrRefinementRejected) {
			t.Errorf("call() error = %v", err)
		}
		if g.Stats().Rejected != 1 || g.Stats().Accepted != 0 {
			t.Errorf("Stats() = %+v", g.Stats())
		}
	})
}
