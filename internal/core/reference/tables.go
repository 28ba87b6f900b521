package reference

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"recipe-pipeline/internal/pkg/common"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var defaultTables []byte

// UnitKind 單位的物理類型
type UnitKind string

const (
	KindVolume UnitKind = "volume"
	KindMass   UnitKind = "mass"
	KindCount  UnitKind = "count"
)

// UnitDef 單位定義，Factor 為換算成 ml（volume）或 g（mass）的倍數
type UnitDef struct {
	Code      string   `yaml:"code"`
	Kind      UnitKind `yaml:"kind"`
	Factor    float64  `yaml:"factor"`
	Spellings []string `yaml:"spellings"`
}

// TagRule 標籤推論規則
type TagRule struct {
	Tag      string   `yaml:"tag"`
	Keywords []string `yaml:"keywords"`
}

// MealKeywords 餐別關鍵字，依宣告順序比對
type MealKeywords struct {
	Breakfast []string `yaml:"breakfast"`
	Lunch     []string `yaml:"lunch"`
}

// document tables.yaml 的結構
type document struct {
	Units            []UnitDef          `yaml:"units"`
	MeasureWords     []string           `yaml:"measure_words"`
	AverageWeights   map[string]float64 `yaml:"average_weights"`
	LiquidKeywords   []string           `yaml:"liquid_keywords"`
	Vocabulary       []string           `yaml:"vocabulary"`
	Misspellings     map[string]string  `yaml:"misspellings"`
	GenericTokens    []string           `yaml:"generic_tokens"`
	InstructionVerbs []string           `yaml:"instruction_verbs"`
	PrepWords        []string           `yaml:"prep_words"`
	SizeWords        []string           `yaml:"size_words"`
	FillerPhrases    []string           `yaml:"filler_phrases"`
	TastePhrases     []string           `yaml:"taste_phrases"`
	OptionalMarkers  []string           `yaml:"optional_markers"`
	NoisePatterns    []string           `yaml:"noise_patterns"`
	PrepStepWords    []string           `yaml:"prep_step_keywords"`
	CookStepWords    []string           `yaml:"cook_step_keywords"`
	Meals            MealKeywords       `yaml:"meal_keywords"`
	Tags             []TagRule          `yaml:"tag_keywords"`
}

// Tables 載入後不可變的參考資料，可在多個 goroutine 間共用
type Tables struct {
	doc           document
	units         map[string]UnitDef
	measureWords  map[string]bool
	liquid        map[string]bool
	vocabulary    map[string]bool
	vocabList     []string
	generic       map[string]bool
	verbs         map[string]bool
	sizeWords     map[string]bool
	noise         []*regexp.Regexp
	fillerPhrases []string
	prepWords     []string
}

var (
	defaultOnce   sync.Once
	defaultLoaded *Tables
)

// Default 返回內嵌的預設參考資料
func Default() *Tables {
	defaultOnce.Do(func() {
		t, err := Parse(defaultTables)
		if err != nil {
			panic(fmt.Sprintf("embedded reference tables are invalid: %v", err))
		}
		defaultLoaded = t
	})
	return defaultLoaded
}

// Load 讀取參考資料；path 為空時使用內嵌版本
func Load(path string) (*Tables, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference tables: %w", err)
	}

	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid reference tables %s: %w", path, err)
	}

	common.LogInfo("參考資料已載入",
		zap.String("path", path),
		zap.Int("units", len(t.units)),
		zap.Int("vocabulary", len(t.vocabList)),
	)
	return t, nil
}

// Parse 解析 YAML 格式的參考資料
func Parse(data []byte) (*Tables, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	if err := validate(&doc); err != nil {
		return nil, err
	}

	t := &Tables{
		doc:           doc,
		units:         make(map[string]UnitDef),
		measureWords:  toSet(doc.MeasureWords),
		liquid:        toSet(doc.LiquidKeywords),
		vocabulary:    toSet(doc.Vocabulary),
		generic:       toSet(doc.GenericTokens),
		verbs:         toSet(doc.InstructionVerbs),
		sizeWords:     toSet(doc.SizeWords),
		fillerPhrases: longestFirst(doc.FillerPhrases),
		prepWords:     longestFirst(doc.PrepWords),
	}

	for _, u := range doc.Units {
		u.Code = strings.ToLower(u.Code)
		for _, s := range append([]string{u.Code}, u.Spellings...) {
			t.units[strings.ToLower(s)] = u
		}
	}

	for word := range t.vocabulary {
		t.vocabList = append(t.vocabList, word)
	}
	sort.Strings(t.vocabList)

	for _, p := range doc.NoisePatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid noise pattern %q: %w", p, err)
		}
		t.noise = append(t.noise, re)
	}

	lowered := make(map[string]string, len(doc.Misspellings))
	for k, v := range doc.Misspellings {
		lowered[strings.ToLower(k)] = strings.ToLower(v)
	}
	t.doc.Misspellings = lowered

	avg := make(map[string]float64, len(doc.AverageWeights))
	for k, v := range doc.AverageWeights {
		avg[strings.ToLower(k)] = v
	}
	t.doc.AverageWeights = avg

	return t, nil
}

// validate 檢查必要的表格與數值
func validate(doc *document) error {
	if len(doc.Units) == 0 {
		return fmt.Errorf("unit table is empty")
	}
	for _, u := range doc.Units {
		if u.Code == "" {
			return fmt.Errorf("unit without code")
		}
		switch u.Kind {
		case KindVolume, KindMass, KindCount:
		default:
			return fmt.Errorf("unit %s has unknown kind %q", u.Code, u.Kind)
		}
		if u.Factor <= 0 {
			return fmt.Errorf("unit %s has non-positive factor", u.Code)
		}
	}
	if len(doc.Vocabulary) == 0 {
		return fmt.Errorf("reference vocabulary is empty")
	}
	if len(doc.InstructionVerbs) == 0 {
		return fmt.Errorf("instruction verb table is empty")
	}
	for name, w := range doc.AverageWeights {
		if w <= 0 {
			return fmt.Errorf("average weight for %s must be positive", name)
		}
	}
	return nil
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.ToLower(strings.TrimSpace(w))] = true
	}
	return set
}

func longestFirst(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		out = append(out, strings.ToLower(strings.TrimSpace(w)))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i]) > len(out[j])
	})
	return out
}

// normalizeUnitToken 去除大小寫、結尾句點
func normalizeUnitToken(token string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(token)), ".")
}

// LookupUnit 以拼寫查詢單位，忽略大小寫、複數與結尾句點
func (t *Tables) LookupUnit(token string) (UnitDef, bool) {
	token = normalizeUnitToken(token)
	if token == "" {
		return UnitDef{}, false
	}
	for _, candidate := range Singulars(token) {
		if u, ok := t.units[candidate]; ok {
			return u, true
		}
	}
	return UnitDef{}, false
}

// IsMeasureWord 是否為沒有公制換算的量詞（sprig、bunch…）
func (t *Tables) IsMeasureWord(token string) bool {
	_, ok := t.MeasureWord(token)
	return ok
}

// MeasureWord 返回量詞的單數形式
func (t *Tables) MeasureWord(token string) (string, bool) {
	token = normalizeUnitToken(token)
	for _, candidate := range Singulars(token) {
		if t.measureWords[candidate] {
			return candidate, true
		}
	}
	return "", false
}

// IsUnitToken 是否可作為數量後的單位詞
func (t *Tables) IsUnitToken(token string) bool {
	if _, ok := t.LookupUnit(token); ok {
		return true
	}
	return t.IsMeasureWord(token)
}

// AverageWeight 單顆食材的平均重量（g）
func (t *Tables) AverageWeight(name string) (float64, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, candidate := range Singulars(name) {
		if w, ok := t.doc.AverageWeights[candidate]; ok {
			return w, true
		}
	}
	return 0, false
}

// IsLiquid 以單字比對液體關鍵字
func (t *Tables) IsLiquid(name string) bool {
	for _, word := range strings.Fields(strings.ToLower(name)) {
		word = strings.Trim(word, ",.;:()")
		for _, candidate := range Singulars(word) {
			if t.liquid[candidate] {
				return true
			}
		}
	}
	return false
}

// Misspelling 查詢已知拼寫錯誤
func (t *Tables) Misspelling(key string) (string, bool) {
	fixed, ok := t.doc.Misspellings[key]
	return fixed, ok
}

// Vocabulary 排序後的標準食材名稱
func (t *Tables) Vocabulary() []string {
	return t.vocabList
}

// IsVocabulary 是否為標準食材名稱
func (t *Tables) IsVocabulary(name string) bool {
	return t.vocabulary[name]
}

// IsGeneric 名稱是否只由泛稱組成（powder、masala…）
func (t *Tables) IsGeneric(name string) bool {
	words := strings.Fields(name)
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if !t.generic[w] {
			return false
		}
	}
	return true
}

// IsInstructionVerb 是否為指令動詞
func (t *Tables) IsInstructionVerb(word string) bool {
	return t.verbs[strings.ToLower(word)]
}

// IsSizeWord 是否為尺寸或描述詞
func (t *Tables) IsSizeWord(word string) bool {
	return t.sizeWords[strings.ToLower(word)]
}

// IsNoise 是否符合雜訊模式（廣告、網址、標題列）
func (t *Tables) IsNoise(line string) bool {
	for _, re := range t.noise {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// FillerPhrases 填充詞，長的在前
func (t *Tables) FillerPhrases() []string { return t.fillerPhrases }

// PrepWords 處理方式詞彙，長的在前
func (t *Tables) PrepWords() []string { return t.prepWords }

// TastePhrases 調味用語
func (t *Tables) TastePhrases() []string { return t.doc.TastePhrases }

// OptionalMarkers 選用標記
func (t *Tables) OptionalMarkers() []string { return t.doc.OptionalMarkers }

// PrepStepWords 準備步驟關鍵字
func (t *Tables) PrepStepWords() []string { return t.doc.PrepStepWords }

// CookStepWords 烹調步驟關鍵字
func (t *Tables) CookStepWords() []string { return t.doc.CookStepWords }

// MealKeywords 餐別關鍵字
func (t *Tables) MealKeywords() MealKeywords { return t.doc.Meals }

// TagKeywords 標籤規則
func (t *Tables) TagKeywords() []TagRule { return t.doc.Tags }

// Singulars 返回單字本身與可能的單數形式（tomatoes → tomatoe, tomato）
func Singulars(word string) []string {
	out := []string{word}
	switch {
	case strings.HasSuffix(word, "ies") && len(word) > 4:
		out = append(out, word[:len(word)-1], word[:len(word)-3]+"y")
	case strings.HasSuffix(word, "oes") && len(word) > 4:
		out = append(out, word[:len(word)-1], word[:len(word)-2])
	case strings.HasSuffix(word, "es") && len(word) > 3:
		out = append(out, word[:len(word)-1], word[:len(word)-2])
	case strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss") && len(word) > 2:
		out = append(out, word[:len(word)-1])
	}
	return out
}
