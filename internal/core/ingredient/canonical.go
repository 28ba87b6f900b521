package ingredient

import (
	"strings"
	"unicode"

	"recipe-pipeline/internal/core/reference"

	"github.com/agext/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// 比對方式
const (
	MethodMisspelling = "misspelling"
	MethodExact       = "exact"
	MethodFuzzy       = "fuzzy"
	MethodGeneric     = "generic"
	MethodUnmatched   = "unmatched"
	MethodEmpty       = "empty"
)

// 各比對方式的信心分數
const (
	unmatchedConfidence = 0.5
	genericConfidence   = 0.3
)

// Match 名稱正規化結果
type Match struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
	// Generic 表示名稱過於籠統（masala、powder），需要食譜上下文才能判斷
	Generic bool `json:"generic"`
}

// Canonicalizer 以參考詞彙正規化食材名稱
type Canonicalizer struct {
	tables    *reference.Tables
	threshold float64
	params    *levenshtein.Params
}

// NewCanonicalizer 創建新的名稱正規化器，threshold 為模糊比對的接受門檻
func NewCanonicalizer(tables *reference.Tables, threshold float64) *Canonicalizer {
	return &Canonicalizer{
		tables:    tables,
		threshold: threshold,
		params:    levenshtein.NewParams(),
	}
}

// Threshold 模糊比對門檻
func (c *Canonicalizer) Threshold() float64 {
	return c.threshold
}

// Canonicalize 將名稱對應到參考詞彙
//
// 順序：完全相符（含單數形式）、拼寫錯誤表、籠統名稱、模糊比對。
// 模糊比對分數必須高於門檻，平手時取編輯距離較短者，再依字典序。
func (c *Canonicalizer) Canonicalize(name string) Match {
	original := strings.TrimSpace(name)
	key := ComparisonKey(original)
	if key == "" {
		return Match{Name: original, Confidence: 0, Method: MethodEmpty}
	}

	candidates := phraseSingulars(key)
	for _, cand := range candidates {
		if c.tables.IsVocabulary(cand) {
			return Match{Name: cand, Confidence: 1, Method: MethodExact}
		}
	}
	for _, cand := range candidates {
		if fixed, ok := c.tables.Misspelling(cand); ok {
			return Match{Name: fixed, Confidence: 1, Method: MethodMisspelling}
		}
	}

	if c.tables.IsGeneric(key) {
		return Match{Name: original, Confidence: genericConfidence, Method: MethodGeneric, Generic: true}
	}

	best, bestScore, bestDist := "", -1.0, 0
	for _, cand := range candidates {
		for _, entry := range c.tables.Vocabulary() {
			score := levenshtein.Similarity(cand, entry, c.params)
			dist := levenshtein.Distance(cand, entry, c.params)
			if score > bestScore ||
				(score == bestScore && dist < bestDist) ||
				(score == bestScore && dist == bestDist && entry < best) {
				best, bestScore, bestDist = entry, score, dist
			}
		}
	}

	if bestScore > c.threshold {
		return Match{Name: best, Confidence: roundScore(bestScore), Method: MethodFuzzy}
	}
	return Match{Name: original, Confidence: unmatchedConfidence, Method: MethodUnmatched}
}

// ComparisonKey 比對用的鍵：小寫、去除變音符號與標點、收斂空白
func ComparisonKey(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(r)
			space = false
			continue
		}
		space = true
	}
	return b.String()
}

// phraseSingulars 片語本身與最後一個單字的單數形式
func phraseSingulars(key string) []string {
	head, last := "", key
	if i := strings.LastIndexByte(key, ' '); i >= 0 {
		head, last = key[:i+1], key[i+1:]
	}
	forms := reference.Singulars(last)
	out := make([]string, 0, len(forms))
	for _, f := range forms {
		out = append(out, head+f)
	}
	return out
}

func roundScore(v float64) float64 {
	return float64(int(v*1000+0.5)) / 1000
}
