package fields

import (
	"recipe-pipeline/internal/core/reference"
	"recipe-pipeline/internal/pkg/common"
)

// Metadata 由規則推論的食譜資訊
type Metadata struct {
	Difficulty common.Difficulty `json:"difficulty_level"`
	Tags       []string          `json:"tags"`
}

// InferMetadata 依食材數量推論難易度，依名稱與描述推論標籤
//
// 超過 12 項食材為 hard，超過 6 項為 medium，其餘為 easy。
func InferMetadata(tables *reference.Tables, name, description string, ingredientCount int) Metadata {
	md := Metadata{Difficulty: Difficulty(ingredientCount), Tags: make([]string, 0)}

	text := name + " " + description
	for _, rule := range tables.TagKeywords() {
		if hasAnyKeyword(text, rule.Keywords) {
			md.Tags = append(md.Tags, rule.Tag)
		}
	}
	return md
}

// Difficulty 依食材數量決定難易度
func Difficulty(ingredientCount int) common.Difficulty {
	switch {
	case ingredientCount > 12:
		return common.DifficultyHard
	case ingredientCount > 6:
		return common.DifficultyMedium
	default:
		return common.DifficultyEasy
	}
}
