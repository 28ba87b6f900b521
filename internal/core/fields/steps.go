package fields

import (
	"strings"
	"unicode"

	"recipe-pipeline/internal/core/ingredient"
	"recipe-pipeline/internal/core/reference"
)

// StepInput 原始步驟欄位
type StepInput struct {
	Steps      []string
	PrepSteps  []string
	CookSteps  []string
	QuickSteps []string
}

// Steps 整理後的步驟
type Steps struct {
	Prep    []string `json:"prep_steps"`
	Cook    []string `json:"cook_steps"`
	Summary string   `json:"summary"`
	// Dropped 被判定為雜訊而移除的行數
	Dropped int `json:"dropped"`
}

// StepSplitter 清理步驟並分成準備與烹調兩個階段
type StepSplitter struct {
	tables     *reference.Tables
	classifier *ingredient.Classifier
}

// NewStepSplitter 創建新的步驟整理器
func NewStepSplitter(tables *reference.Tables) *StepSplitter {
	return &StepSplitter{
		tables:     tables,
		classifier: ingredient.NewClassifier(tables),
	}
}

// Split 整理步驟
//
// 有明確的準備或烹調步驟時直接使用，通用步驟併入烹調；否則依關鍵字切分：
// 開頭只含準備動詞、不含烹調動詞的步驟屬於準備，其餘屬於烹調。
// 快速步驟併入烹調並略過重複。
func (s *StepSplitter) Split(in StepInput) Steps {
	var out Steps

	prep := s.clean(in.PrepSteps, &out.Dropped)
	cook := s.clean(in.CookSteps, &out.Dropped)
	generic := s.clean(in.Steps, &out.Dropped)

	if len(prep) == 0 && len(cook) == 0 {
		prep, cook = s.splitByKeywords(generic)
	} else {
		cook = appendDistinct(cook, generic)
	}
	cook = appendDistinct(cook, s.clean(in.QuickSteps, &out.Dropped))

	out.Prep = prep
	out.Cook = cook
	out.Summary = Summary(prep, cook)
	return out
}

// Assemble 由已分類的步驟組成結果，快速步驟併入烹調
func Assemble(prep, cook, quick []string, dropped int) Steps {
	cook = appendDistinct(append(make([]string, 0, len(cook)), cook...), quick)
	if prep == nil {
		prep = make([]string, 0)
	}
	return Steps{
		Prep:    prep,
		Cook:    cook,
		Summary: Summary(prep, cook),
		Dropped: dropped,
	}
}

// Filter 清理步驟並移除雜訊，不做切分
func (s *StepSplitter) Filter(steps []string) ([]string, int) {
	dropped := 0
	return s.clean(steps, &dropped), dropped
}

func (s *StepSplitter) clean(steps []string, dropped *int) []string {
	out := make([]string, 0, len(steps))
	for _, step := range steps {
		if s.classifier.Classify(step).Kind == ingredient.KindNoise {
			*dropped++
			continue
		}
		out = append(out, ingredient.CleanLine(step))
	}
	return out
}

func (s *StepSplitter) splitByKeywords(steps []string) ([]string, []string) {
	prep := make([]string, 0)
	i := 0
	for ; i < len(steps); i++ {
		if !hasAnyKeyword(steps[i], s.tables.PrepStepWords()) || hasAnyKeyword(steps[i], s.tables.CookStepWords()) {
			break
		}
		prep = append(prep, steps[i])
	}
	cook := append(make([]string, 0, len(steps)-i), steps[i:]...)
	return prep, cook
}

// Summary 組成 "Preparation:" 與 "Cooking:" 兩段摘要
func Summary(prep, cook []string) string {
	var parts []string
	if len(prep) > 0 {
		parts = append(parts, "Preparation:\n- "+strings.Join(prep, "\n- "))
	}
	if len(cook) > 0 {
		parts = append(parts, "Cooking:\n- "+strings.Join(cook, "\n- "))
	}
	return strings.Join(parts, "\n\n")
}

func appendDistinct(base, extra []string) []string {
	seen := make(map[string]bool, len(base))
	for _, s := range base {
		seen[s] = true
	}
	for _, s := range extra {
		if !seen[s] {
			base = append(base, s)
			seen[s] = true
		}
	}
	return base
}

// hasAnyKeyword 以單字邊界比對關鍵字，支援多字片語
func hasAnyKeyword(text string, keywords []string) bool {
	padded := " " + strings.Join(strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ") + " "
	for _, kw := range keywords {
		if strings.Contains(padded, " "+strings.ToLower(kw)+" ") {
			return true
		}
	}
	return false
}
