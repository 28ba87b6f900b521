package ingredient

import (
	"strings"

	"recipe-pipeline/internal/core/reference"
	"recipe-pipeline/internal/pkg/common"
)

// unresolvedConfidence 無法分離出名稱時的信心分數
const unresolvedConfidence = 0.2

// Parser 串接分類、解析、單位換算與名稱正規化
type Parser struct {
	Classifier    *Classifier
	Extractor     *Extractor
	Units         *UnitNormalizer
	Canonicalizer *Canonicalizer
}

// NewParser 創建新的食材行處理器
func NewParser(tables *reference.Tables, canonicalThreshold float64) *Parser {
	return &Parser{
		Classifier:    NewClassifier(tables),
		Extractor:     NewExtractor(tables),
		Units:         NewUnitNormalizer(tables),
		Canonicalizer: NewCanonicalizer(tables, canonicalThreshold),
	}
}

// LineResult 單行處理結果
type LineResult struct {
	Classification Classification           `json:"classification"`
	Extraction     *Extraction              `json:"extraction,omitempty"`
	Match          *Match                   `json:"match,omitempty"`
	Ingredient     *common.ParsedIngredient `json:"ingredient,omitempty"`
}

// ParseLine 處理一行食材文字；非食材行只返回分類
func (p *Parser) ParseLine(line string, index int) LineResult {
	return p.ParseLineInContext(line, index, LineContext{})
}

// ParseLineInContext 與 ParseLine 相同，分類時另外參考食譜資訊
func (p *Parser) ParseLineInContext(line string, index int, lc LineContext) LineResult {
	class := p.Classifier.ClassifyInContext(line, lc)
	if class.Kind != KindIngredient {
		return LineResult{Classification: class}
	}

	ext := p.Extractor.Extract(line)

	// 平均重量與液體表先查正規化名稱，"green chillies" 與 "green chili" 才會換算成同一單位
	match := p.Canonicalizer.Canonicalize(ext.Name)
	measure := p.Units.Normalize(ext.Quantity, ext.Unit, match.Name, ext.Name)

	confidence := match.Confidence
	if !ext.Resolved {
		match = Match{Name: ext.Name, Confidence: unresolvedConfidence, Method: MethodUnmatched}
		confidence = unresolvedConfidence
	}

	parsed := &common.ParsedIngredient{
		Name:       match.Name,
		RawText:    strings.TrimSpace(line),
		Quantity:   measure.Quantity,
		Unit:       measure.Unit,
		RawUnit:    measure.RawUnit,
		PrepNotes:  joinNotes(ext.Notes, measure.Notes),
		IsOptional: ext.Optional,
		Confidence: confidence,
		OrderIndex: index,
	}

	return LineResult{
		Classification: class,
		Extraction:     &ext,
		Match:          &match,
		Ingredient:     parsed,
	}
}

// joinNotes 合併多段備註
func joinNotes(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}
