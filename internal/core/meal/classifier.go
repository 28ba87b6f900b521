package meal

import (
	"strings"

	"recipe-pipeline/internal/core/reference"
	"recipe-pipeline/internal/pkg/common"
)

// Classify 依食譜名稱關鍵字判斷餐別
//
// 不分大小寫的子字串比對，早餐優先於午餐，都不符合時為晚餐。
func Classify(tables *reference.Tables, name string) common.MealType {
	lower := strings.ToLower(name)
	keywords := tables.MealKeywords()

	for _, kw := range keywords.Breakfast {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return common.MealBreakfast
		}
	}
	for _, kw := range keywords.Lunch {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return common.MealLunch
		}
	}
	return common.MealDinner
}
