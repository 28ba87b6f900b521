package ingredient

import (
	"strings"

	"recipe-pipeline/internal/pkg/common"
)

// BucketKey 合併用的分組鍵：名稱、單位、原始量詞、是否有數量
//
// g 與 ml 不合併，有數量與無數量的項目也分開。單位為 null 時，
// 只有原始量詞相同（或都沒有量詞）的項目才合併，"3 sprigs" 與 "1 bunch" 保持分列。
func BucketKey(item common.ParsedIngredient) string {
	hasQty := "n"
	if item.Quantity != nil {
		hasQty = "q"
	}
	rawUnit := ""
	if item.Unit == common.UnitNone {
		rawUnit = strings.ToLower(strings.TrimSpace(item.RawUnit))
	}
	return strings.ToLower(strings.TrimSpace(item.Name)) + "|" + string(item.Unit) + "|" + rawUnit + "|" + hasQty
}

// Deduplicate 合併同一食譜中重複的食材
//
// 同名且單位相容的項目加總數量；只有在每一筆都是選用時合併結果才是選用。
// 單位不相容的同名項目保持分開，但排在一起。結果的 OrderIndex 重新編號。
func Deduplicate(items []common.ParsedIngredient) []common.ParsedIngredient {
	if len(items) == 0 {
		return items
	}

	var nameOrder []string
	bucketsByName := make(map[string][]string)
	merged := make(map[string]*common.ParsedIngredient)

	for _, item := range items {
		nameKey := strings.ToLower(strings.TrimSpace(item.Name))
		key := BucketKey(item)

		existing, ok := merged[key]
		if !ok {
			if _, seen := bucketsByName[nameKey]; !seen {
				nameOrder = append(nameOrder, nameKey)
			}
			bucketsByName[nameKey] = append(bucketsByName[nameKey], key)
			copied := item
			if item.Quantity != nil {
				copied.Quantity = common.Float64Ptr(*item.Quantity)
			}
			merged[key] = &copied
			continue
		}

		if existing.Quantity != nil && item.Quantity != nil {
			*existing.Quantity = common.Round2(*existing.Quantity + *item.Quantity)
		}
		existing.IsOptional = existing.IsOptional && item.IsOptional
		if item.Confidence < existing.Confidence {
			existing.Confidence = item.Confidence
		}
		if item.RawText != "" {
			existing.RawText = strings.TrimPrefix(existing.RawText+"; "+item.RawText, "; ")
		}
		existing.PrepNotes = joinDistinct(existing.PrepNotes, item.PrepNotes, "; ")
	}

	out := make([]common.ParsedIngredient, 0, len(merged))
	for _, nameKey := range nameOrder {
		for _, key := range bucketsByName[nameKey] {
			entry := *merged[key]
			entry.OrderIndex = len(out)
			out = append(out, entry)
		}
	}
	return out
}

// joinDistinct 串接兩段文字，略過空字串與已存在的片段
func joinDistinct(a, b, sep string) string {
	switch {
	case b == "":
		return a
	case a == "":
		return b
	}
	for _, part := range strings.Split(a, sep) {
		if part == b {
			return a
		}
	}
	return a + sep + b
}
