package ingredient

import (
	"regexp"
	"strings"

	"recipe-pipeline/internal/core/reference"
)

// Extraction 從食材行取出的結構化欄位，Unit 為原始單位字詞
type Extraction struct {
	Quantity *float64 `json:"quantity"`
	Unit     string   `json:"unit,omitempty"`
	Name     string   `json:"name"`
	Notes    string   `json:"notes,omitempty"`
	Optional bool     `json:"optional"`
	// Resolved 為 false 表示無法分離出名稱，Name 為清理後的原始行
	Resolved bool `json:"resolved"`
}

var (
	parenRe       = regexp.MustCompile(`\(([^()]*)(?:\)|$)`)
	inchPieceRe   = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?(?:\s*(?:-|to)\s*\d+(?:\.\d+)?)?)\s*-?\s*inch(?:es)?\b\s*(?:long\s+)?(?:pieces?\b)?\s*(?:of\s+)?`)
	forClauseRe   = regexp.MustCompile(`^for\s+(?:the\s+)?(topping|toppings|serving|garnish|garnishing|tempering|decoration|dressing|marinade|seasoning)\b[:,\s-]*`)
	forTailRe     = regexp.MustCompile(`\s+for\s+.+$`)
	orTailRe      = regexp.MustCompile(`\s+or\s+.+$`)
	leadingJunkRe = regexp.MustCompile(`^[\s/\-,.;:+&]+`)
	trailJunkRe   = regexp.MustCompile(`[\s/\-,.;:+&]+$`)
	digitsRe      = regexp.MustCompile(`\d`)
)

// helperWords 名稱前方要去除的虛詞
var helperWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "to": true, "and": true, "some": true,
}

// Extractor 食材行解析器
type Extractor struct {
	tables *reference.Tables
}

// NewExtractor 創建新的食材行解析器
func NewExtractor(tables *reference.Tables) *Extractor {
	return &Extractor{tables: tables}
}

// notes 依序收集備註並去除重複
type notes []string

func (n *notes) add(s string) {
	s = strings.TrimSpace(trailJunkRe.ReplaceAllString(leadingJunkRe.ReplaceAllString(s, ""), ""))
	if s == "" {
		return
	}
	for _, existing := range *n {
		if existing == s {
			return
		}
	}
	*n = append(*n, s)
}

func (n notes) String() string {
	return strings.Join(n, ", ")
}

// Extract 將食材行拆成數量、單位、名稱、備註與是否選用
func (e *Extractor) Extract(line string) Extraction {
	cleaned := CleanLine(line)
	text := strings.ToLower(ExpandFractions(cleaned))

	var result Extraction
	var collected notes

	// 括號內容：選用標記或備註，未閉合的括號也一併處理
	text = parenRe.ReplaceAllStringFunc(text, func(m string) string {
		inner := strings.TrimSpace(parenRe.FindStringSubmatch(m)[1])
		if marker := e.matchOptional(inner); marker != "" {
			result.Optional = true
			inner = strings.TrimSpace(strings.Replace(inner, marker, "", 1))
		}
		collected.add(inner)
		return " "
	})

	text = e.stripOptionalMarkers(text, &result)

	for _, phrase := range e.tables.TastePhrases() {
		if idx := indexWord(text, phrase); idx >= 0 {
			collected.add(phrase)
			text = text[:idx] + " " + text[idx+len(phrase):]
		}
	}

	// 冒號前為分類標題，冒號後才是食材
	if before, after, ok := strings.Cut(text, ":"); ok {
		before, after = strings.TrimSpace(before), strings.TrimSpace(after)
		switch {
		case after == "":
			text = before
		case !digitsRe.MatchString(before):
			collected.add(before)
			text = after
		default:
			collected.add(after)
			text = before
		}
	}

	if m := forClauseRe.FindStringSubmatch(strings.TrimSpace(text)); m != nil {
		collected.add("for " + m[1])
		text = strings.TrimSpace(text)[len(m[0]):]
	}

	text = e.stripLeading(text, &collected)

	// 數量無法計算時整行視為無法解析，不把 "1/0" 當成名稱的一部分
	if hasZeroDenominator(text) {
		result.Name = strings.TrimSpace(cleaned)
		result.Notes = collected.String()
		return result
	}

	if m := inchPieceRe.FindStringSubmatch(text); m != nil {
		collected.add(m[1] + " inch piece")
		text = text[len(m[0]):]
	} else if qty, rest, ok := ParseLeadingQuantity(text); ok {
		q := qty
		result.Quantity = &q
		text = rest
		// "2 1-inch pieces ginger"
		if m := inchPieceRe.FindStringSubmatch(text); m != nil {
			collected.add(m[1] + " inch piece")
			text = text[len(m[0]):]
		} else {
			text = e.takeUnit(text, &result)
		}
	} else {
		text = e.takeArticleUnit(text, &result)
	}

	text = e.stripLeading(text, &collected)

	if m := forClauseRe.FindStringSubmatch(text); m != nil {
		collected.add("for " + m[1])
		text = text[len(m[0]):]
	}
	if loc := forTailRe.FindStringIndex(text); loc != nil {
		collected.add(text[loc[0]:loc[1]])
		text = text[:loc[0]]
	}

	for _, prep := range e.tables.PrepWords() {
		for {
			idx := indexWord(text, prep)
			if idx < 0 {
				break
			}
			collected.add(prep)
			text = text[:idx] + " " + text[idx+len(prep):]
		}
	}

	if loc := orTailRe.FindStringIndex(text); loc != nil {
		collected.add(text[loc[0]:loc[1]])
		text = text[:loc[0]]
	}

	if head, tail, ok := strings.Cut(text, ","); ok {
		collected.add(tail)
		text = head
	}

	text = e.stripSizeWords(text, &collected)
	name := cleanName(text)

	// 只剩下量詞時，量詞本身就是名稱（"4 cloves"）
	if name == "" && result.Unit != "" && e.tables.IsMeasureWord(result.Unit) {
		name = result.Unit
		result.Unit = ""
	}

	if name == "" {
		result.Name = strings.TrimSpace(cleaned)
		result.Resolved = false
	} else {
		result.Name = name
		result.Resolved = true
	}
	if result.Quantity == nil {
		result.Unit = ""
	}
	result.Notes = collected.String()
	return result
}

// matchOptional 返回文字中出現的選用標記
func (e *Extractor) matchOptional(s string) string {
	for _, marker := range e.tables.OptionalMarkers() {
		if indexWord(s, marker) >= 0 {
			return marker
		}
	}
	return ""
}

// stripOptionalMarkers 去除括號外的選用標記
func (e *Extractor) stripOptionalMarkers(text string, result *Extraction) string {
	for {
		marker := e.matchOptional(text)
		if marker == "" {
			return text
		}
		result.Optional = true
		idx := indexWord(text, marker)
		text = text[:idx] + " " + text[idx+len(marker):]
	}
}

// stripLeading 去除行首的符號、虛詞與填充詞，填充詞記入備註
func (e *Extractor) stripLeading(text string, collected *notes) string {
	for {
		before := text
		text = leadingJunkRe.ReplaceAllString(text, "")

		for _, phrase := range e.tables.FillerPhrases() {
			if hasWordPrefix(text, phrase) {
				collected.add(strings.TrimSuffix(phrase, " of"))
				text = text[len(phrase):]
				break
			}
		}

		if word, rest, _ := strings.Cut(text, " "); helperWords[word] && rest != "" && !e.articleBeforeUnit(word, rest) {
			text = rest
		}

		if text == before {
			return text
		}
	}
}

// takeUnit 讀取數量後的單位字詞，支援 "500g" 這類黏著寫法
func (e *Extractor) takeUnit(text string, result *Extraction) string {
	trimmed := strings.TrimLeft(text, " ")
	word, rest, _ := strings.Cut(trimmed, " ")
	token := strings.TrimRight(word, ".,;")
	if token == "" || !e.tables.IsUnitToken(token) {
		return text
	}
	result.Unit = token
	rest = strings.TrimLeft(rest, " ")
	if strings.HasPrefix(rest, "of ") {
		rest = rest[3:]
	}
	return rest
}

// articleBeforeUnit 冠詞後接單位時保留，交給 takeArticleUnit 處理
func (e *Extractor) articleBeforeUnit(word, rest string) bool {
	if word != "a" && word != "an" {
		return false
	}
	next, _, _ := strings.Cut(strings.TrimLeft(rest, " "), " ")
	return e.tables.IsUnitToken(strings.TrimRight(next, ".,;"))
}

// takeArticleUnit 處理 "a cup of"、"one tbsp" 這類以冠詞代表 1 的寫法
func (e *Extractor) takeArticleUnit(text string, result *Extraction) string {
	word, rest, ok := strings.Cut(strings.TrimLeft(text, " "), " ")
	if !ok || !e.articleBeforeUnit(word, rest) {
		return text
	}
	one := 1.0
	result.Quantity = &one
	return e.takeUnit(rest, result)
}

// stripSizeWords 尺寸詞移入備註
func (e *Extractor) stripSizeWords(text string, collected *notes) string {
	words := strings.Fields(text)
	kept := words[:0]
	for _, w := range words {
		if e.tables.IsSizeWord(strings.Trim(w, ",.;")) {
			collected.add(strings.Trim(w, ",.;"))
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// cleanName 收斂空白並去除頭尾的符號與虛詞
func cleanName(text string) string {
	text = spacesRe.ReplaceAllString(text, " ")
	text = trailJunkRe.ReplaceAllString(leadingJunkRe.ReplaceAllString(text, ""), "")
	words := strings.Fields(text)
	for len(words) > 0 && helperWords[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	for len(words) > 0 && helperWords[words[0]] {
		words = words[1:]
	}
	return strings.Join(words, " ")
}

// indexWord 找出以單字邊界出現的片語位置
func indexWord(text, phrase string) int {
	offset := 0
	for {
		idx := strings.Index(text[offset:], phrase)
		if idx < 0 {
			return -1
		}
		start := offset + idx
		end := start + len(phrase)
		if isBoundary(text, start-1) && isBoundary(text, end) {
			return start
		}
		offset = start + 1
	}
}

// hasWordPrefix 文字是否以完整片語開頭
func hasWordPrefix(text, phrase string) bool {
	return strings.HasPrefix(text, phrase) && isBoundary(text, len(phrase))
}

func isBoundary(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	c := text[i]
	return !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c >= 0x80)
}
