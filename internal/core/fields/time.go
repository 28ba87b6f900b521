package fields

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Times 正規化後的時間欄位（分鐘），無法解析時為 nil
type Times struct {
	Prep  *int `json:"prep_time_minutes"`
	Cook  *int `json:"cook_time_minutes"`
	Total *int `json:"total_time_minutes"`
}

var (
	isoDurationRe = regexp.MustCompile(`(?i)^P(?:(\d+(?:\.\d+)?)D)?(?:T(?:(\d+(?:\.\d+)?)H)?(?:(\d+(?:\.\d+)?)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)
	durationRe    = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(hours?|hrs?|h|minutes?|mins?|m)\b`)
)

// ParseMinutes 將時間欄位轉成分鐘數
//
// 數字與數字字串無條件捨去（"30.9" 為 30），負數與無法解析的內容返回 nil。
// 另外接受 "1 hour 30 mins"、"1h 30m" 與 ISO-8601 的 "PT1H30M"。
func ParseMinutes(v any) *int {
	switch val := v.(type) {
	case nil:
		return nil
	case int:
		return truncate(float64(val))
	case int32:
		return truncate(float64(val))
	case int64:
		return truncate(float64(val))
	case float32:
		return truncate(float64(val))
	case float64:
		return truncate(val)
	case json.Number:
		return parseMinutesString(val.String())
	case string:
		return parseMinutesString(val)
	case *int:
		if val == nil {
			return nil
		}
		return truncate(float64(*val))
	default:
		return nil
	}
}

func parseMinutesString(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return truncate(f)
	}

	if m := isoDurationRe.FindStringSubmatch(s); m != nil && len(s) > 1 && !strings.EqualFold(s, "PT") {
		total := parseFloat(m[1])*24*60 + parseFloat(m[2])*60 + parseFloat(m[3]) + parseFloat(m[4])/60
		return truncate(total)
	}

	matches := durationRe.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil
	}
	total := 0.0
	for _, m := range matches {
		n := parseFloat(m[1])
		if strings.HasPrefix(strings.ToLower(m[2]), "h") {
			n *= 60
		}
		total += n
	}
	return truncate(total)
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// maxMinutes 分鐘數上限，超過時視為無法解析
const maxMinutes = math.MaxInt32

// truncate 向零捨去，負數、非有限數與超過上限的值返回 nil
func truncate(f float64) *int {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > maxMinutes {
		return nil
	}
	n := int(math.Trunc(f))
	return &n
}

// NormalizeTimes 解析準備、烹調與總時間
//
// 總時間缺少且準備與烹調皆存在時，總時間為兩者相加，相加超過上限時維持 nil；不做反向推算。
func NormalizeTimes(prep, cook, total any) Times {
	t := Times{
		Prep:  ParseMinutes(prep),
		Cook:  ParseMinutes(cook),
		Total: ParseMinutes(total),
	}
	if t.Total == nil && t.Prep != nil && t.Cook != nil {
		if sum := int64(*t.Prep) + int64(*t.Cook); sum <= maxMinutes {
			total := int(sum)
			t.Total = &total
		}
	}
	return t
}
