package refine

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// 任務名稱
const (
	TaskDisambiguate  = "disambiguate"
	TaskClassifySteps = "classify_steps"
	TaskMetadata      = "infer_metadata"
	TaskMapSchema     = "map_schema"
)

var taskSchemas = map[string]string{
	TaskDisambiguate: `{
		"type": "object",
		"required": ["name", "confidence"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"confidence": {"type": "number", "minimum": 0, "maximum": 1}
		}
	}`,
	TaskClassifySteps: `{
		"type": "object",
		"required": ["prep_steps", "cook_steps", "confidence"],
		"properties": {
			"prep_steps": {"type": "array", "items": {"type": "string"}},
			"cook_steps": {"type": "array", "items": {"type": "string"}},
			"noise": {"type": "array", "items": {"type": "string"}},
			"confidence": {"type": "number", "minimum": 0, "maximum": 1}
		}
	}`,
	TaskMetadata: `{
		"type": "object",
		"required": ["difficulty_level", "tags", "confidence"],
		"properties": {
			"difficulty_level": {"enum": ["easy", "medium", "hard"]},
			"tags": {"type": "array", "items": {"type": "string", "minLength": 1}},
			"servings": {"type": ["integer", "null"], "minimum": 1},
			"confidence": {"type": "number", "minimum": 0, "maximum": 1}
		}
	}`,
	TaskMapSchema: `{
		"type": "object",
		"required": ["mapping", "confidence"],
		"properties": {
			"mapping": {
				"type": "object",
				"additionalProperties": {"enum": [` + quotedFields() + `]}
			},
			"confidence": {"type": "number", "minimum": 0, "maximum": 1}
		}
	}`,
}

// compileSchemas 每個任務編譯一次回應結構描述
func compileSchemas() (map[string]*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	for task, schema := range taskSchemas {
		if err := compiler.AddResource(task+".json", strings.NewReader(schema)); err != nil {
			return nil, fmt.Errorf("failed to add schema for %s: %w", task, err)
		}
	}

	compiled := make(map[string]*jsonschema.Schema, len(taskSchemas))
	for task := range taskSchemas {
		schema, err := compiler.Compile(task + ".json")
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema for %s: %w", task, err)
		}
		compiled[task] = schema
	}
	return compiled, nil
}

func quotedFields() string {
	quoted := make([]string, 0, len(CanonicalFields))
	for _, f := range CanonicalFields {
		quoted = append(quoted, `"`+f+`"`)
	}
	return strings.Join(quoted, ", ")
}
