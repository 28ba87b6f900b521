package ingredient

import (
	"fmt"
	"strconv"
	"strings"

	"recipe-pipeline/internal/core/reference"
	"recipe-pipeline/internal/pkg/common"
)

// Measure 正規化後的數量與單位，Notes 為需要保留的原始資訊
//
// RawUnit 只在單位為 null 且原本帶有量詞或未知單位時有值，量詞取單數。
type Measure struct {
	Quantity *float64    `json:"quantity"`
	Unit     common.Unit `json:"unit"`
	RawUnit  string      `json:"raw_unit,omitempty"`
	Notes    string      `json:"notes,omitempty"`
}

// UnitNormalizer 將數量換算成公制（g、ml）或保留為計數
type UnitNormalizer struct {
	tables *reference.Tables
}

// NewUnitNormalizer 創建新的單位換算器
func NewUnitNormalizer(tables *reference.Tables) *UnitNormalizer {
	return &UnitNormalizer{tables: tables}
}

// Normalize 換算數量
//
// 液體換成 ml，固體換成 g；跨類型換算以 1 ml ≈ 1 g 近似並加註。
// 無單位的計數若有平均重量則換成 g，否則保留為計數。
// 未知單位保留數量、單位設為空，並把原始字詞放入 Notes。
// names 依序嘗試查詢平均重量與液體表，通常先給正規化名稱再給原始名稱。
func (n *UnitNormalizer) Normalize(qty *float64, unitToken string, names ...string) Measure {
	if qty == nil {
		return Measure{Notes: unitToken}
	}
	value := *qty

	if unitToken == "" {
		for _, name := range names {
			if w, ok := n.tables.AverageWeight(name); ok {
				return Measure{
					Quantity: common.Float64Ptr(common.Round2(value * w)),
					Unit:     common.UnitGram,
					Notes:    formatQuantity(value) + " pcs",
				}
			}
		}
		return Measure{Quantity: common.Float64Ptr(common.Round2(value))}
	}

	def, ok := n.tables.LookupUnit(unitToken)
	if !ok {
		return Measure{
			Quantity: common.Float64Ptr(common.Round2(value)),
			RawUnit:  n.rawUnitKey(unitToken),
			Notes:    unitToken,
		}
	}

	if def.Kind == reference.KindCount {
		return Measure{Quantity: common.Float64Ptr(common.Round2(value))}
	}

	target := common.UnitGram
	for _, name := range names {
		if n.tables.IsLiquid(name) {
			target = common.UnitMilliliter
			break
		}
	}

	converted := common.Round2(value * def.Factor)
	m := Measure{Quantity: &converted, Unit: target}

	crossKind := (def.Kind == reference.KindVolume && target == common.UnitGram) ||
		(def.Kind == reference.KindMass && target == common.UnitMilliliter)
	if crossKind {
		m.Notes = fmt.Sprintf("approx %s %s", formatQuantity(value), def.Code)
	}
	return m
}

// rawUnitKey 未知單位的比對鍵：量詞取單數，其他字詞轉小寫
func (n *UnitNormalizer) rawUnitKey(token string) string {
	if word, ok := n.tables.MeasureWord(token); ok {
		return word
	}
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(token)), ".")
}

// formatQuantity 去除多餘小數位
func formatQuantity(v float64) string {
	return strconv.FormatFloat(common.Round2(v), 'f', -1, 64)
}
