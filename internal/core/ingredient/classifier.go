package ingredient

import (
	"regexp"
	"strings"
	"unicode"

	"recipe-pipeline/internal/core/reference"
)

// LineKind 行的分類結果
type LineKind string

const (
	KindNoise       LineKind = "noise"
	KindIngredient  LineKind = "ingredient"
	KindInstruction LineKind = "instruction"
)

// maxIngredientWords 超過此字數且含多個動詞的行視為步驟
const maxIngredientWords = 8

// Classification 分類結果與信心分數
type Classification struct {
	Kind       LineKind `json:"kind"`
	Confidence float64  `json:"confidence"`
	Reason     string   `json:"reason"`
}

var (
	bulletRe    = regexp.MustCompile(`^[\s▢☐□•·▪◦●○\*\-–—>]+`)
	numberingRe = regexp.MustCompile(`^(?:step\s*)?\d{1,2}[.)]\s+`)
	spacesRe    = regexp.MustCompile(`\s+`)
)

// CleanLine 去除項目符號、編號與多餘空白
func CleanLine(line string) string {
	line = strings.TrimSpace(line)
	line = bulletRe.ReplaceAllString(line, "")
	if loc := numberingRe.FindStringIndex(strings.ToLower(line)); loc != nil {
		line = line[loc[1]:]
	}
	line = spacesRe.ReplaceAllString(line, " ")
	return strings.TrimSpace(line)
}

// hasContent 是否包含字母或數字
func hasContent(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// Classifier 行分類器
type Classifier struct {
	tables *reference.Tables
}

// NewClassifier 創建新的行分類器
func NewClassifier(tables *reference.Tables) *Classifier {
	return &Classifier{tables: tables}
}

// LineContext 行所屬食譜的資訊，零值表示沒有上下文
type LineContext struct {
	RecipeName string
}

// Classify 判斷一行文字是食材、步驟或雜訊
func (c *Classifier) Classify(line string) Classification {
	return c.ClassifyInContext(line, LineContext{})
}

// ClassifyInContext 與 Classify 相同，另外把重複的食譜名稱標題視為雜訊
func (c *Classifier) ClassifyInContext(line string, lc LineContext) Classification {
	cleaned := CleanLine(line)
	if cleaned == "" {
		return Classification{Kind: KindNoise, Confidence: 1, Reason: "empty line"}
	}
	if !hasContent(cleaned) {
		return Classification{Kind: KindNoise, Confidence: 1, Reason: "punctuation only"}
	}
	if c.tables.IsNoise(cleaned) {
		return Classification{Kind: KindNoise, Confidence: 0.95, Reason: "boilerplate"}
	}
	if isTitle(cleaned, lc.RecipeName) {
		return Classification{Kind: KindNoise, Confidence: 0.9, Reason: "recipe title"}
	}

	lower := strings.ToLower(ExpandFractions(cleaned))
	words := wordsOf(lower)

	// 動詞前可以有數量，例如 "2 add the onions"
	rest := lower
	if _, after, ok := ParseLeadingQuantity(lower); ok {
		rest = after
	}
	if first := wordsOf(rest); len(first) > 0 && c.tables.IsInstructionVerb(first[0]) {
		return Classification{Kind: KindInstruction, Confidence: 0.95, Reason: "instruction verb at start"}
	}

	if len(words) > maxIngredientWords {
		verbs := 0
		for _, w := range words {
			if c.tables.IsInstructionVerb(w) {
				verbs++
			}
		}
		if verbs >= 2 {
			return Classification{Kind: KindInstruction, Confidence: 0.8, Reason: "long line with several verbs"}
		}
	}

	if startsWithQuantity(cleaned) {
		return Classification{Kind: KindIngredient, Confidence: 0.9, Reason: "leading quantity"}
	}
	return Classification{Kind: KindIngredient, Confidence: 0.7, Reason: "noun phrase"}
}

// isTitle 行內容是否只是食譜名稱，可帶 "for" 與結尾冒號（"For the Masala Dosa:"）
func isTitle(line, recipeName string) bool {
	name := strings.TrimSpace(recipeName)
	if name == "" {
		return false
	}
	line = strings.TrimSpace(strings.TrimRight(line, ": "))
	if len(line) > 4 && strings.EqualFold(line[:4], "for ") {
		line = strings.TrimSpace(line[4:])
		if len(line) > 4 && strings.EqualFold(line[:4], "the ") {
			line = strings.TrimSpace(line[4:])
		}
	}
	return strings.EqualFold(line, name)
}

// wordsOf 切出單字並去除標點
func wordsOf(s string) []string {
	fields := strings.Fields(s)
	out := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
