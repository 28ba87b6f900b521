package fields

import (
	"encoding/json"
	"regexp"
	"strconv"
)

var (
	servingsRangeRe = regexp.MustCompile(`(\d+)(?:\s*(?:-|–|to)\s*(\d+))?`)
	servingsTextRe  = regexp.MustCompile(`(?i)(\d+)\s*servings?\b`)
)

// ParseServings 解析份數，範圍取下限（"Serves 4-6" 為 4），非正數返回 nil
func ParseServings(v any) *int {
	var n int
	switch val := v.(type) {
	case nil:
		return nil
	case int:
		n = val
	case int64:
		if val > maxMinutes {
			return nil
		}
		n = int(val)
	case float64:
		if val > maxMinutes {
			return nil
		}
		n = int(val)
	case json.Number:
		return ParseServings(val.String())
	case string:
		m := servingsRangeRe.FindStringSubmatch(val)
		if m == nil {
			return nil
		}
		n, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			if upper, err := strconv.Atoi(m[2]); err == nil && upper < n {
				n = upper
			}
		}
	default:
		return nil
	}
	if n <= 0 {
		return nil
	}
	return &n
}

// InferServings 依序使用原始欄位、名稱與描述中的 "N servings"、預設值
//
// defaultServings 為 0 時不套用預設值。
func InferServings(raw any, name, description string, defaultServings int) *int {
	if s := ParseServings(raw); s != nil {
		return s
	}
	for _, text := range []string{name, description} {
		if m := servingsTextRe.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				return &n
			}
		}
	}
	if defaultServings > 0 {
		n := defaultServings
		return &n
	}
	return nil
}
