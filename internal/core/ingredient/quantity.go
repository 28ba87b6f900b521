package ingredient

import (
	"regexp"
	"strconv"
	"strings"
)

// vulgarFractions Unicode 分數字元改寫成斜線分數
var vulgarFractions = map[rune]string{
	'½': "1/2",
	'¼': "1/4",
	'¾': "3/4",
	'⅓': "1/3",
	'⅔': "2/3",
	'⅛': "1/8",
	'⅜': "3/8",
	'⅝': "5/8",
	'⅞': "7/8",
	'⅕': "1/5",
}

// numberWords 可作為數量的英文數字
var numberWords = map[string]float64{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
	"half": 0.5, "dozen": 12,
}

var (
	numberRe   = regexp.MustCompile(`^(\d+(?:\.\d+)?)(?:\s*/\s*(\d+(?:\.\d+)?))?`)
	mixedRe    = regexp.MustCompile(`^\s+(\d+)\s*/\s*(\d+)`)
	rangeSepRe = regexp.MustCompile(`^\s*(?:-|–|—|to)\s*`)
	plusSepRe  = regexp.MustCompile(`^\s*\+\s*`)
	// "1/0"、"1 1/0" 之類分母為零的分數
	zeroFractionRe = regexp.MustCompile(`^\s*(?:\d+\s+)?\d+(?:\.\d+)?\s*/\s*0+(?:\.0*)?(?:\s|$)`)
)

// ExpandFractions 將 Unicode 分數改寫成 "1/2" 形式，"1½" 變成 "1 1/2"
func ExpandFractions(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	var prev rune
	for _, r := range s {
		if frac, ok := vulgarFractions[r]; ok {
			if prev != 0 && prev != ' ' {
				b.WriteByte(' ')
			}
			b.WriteString(frac)
			prev = '0'
			continue
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

// parseNumber 解析單一數字或分數，返回剩餘字串
func parseNumber(s string) (float64, string, bool) {
	m := numberRe.FindStringSubmatch(s)
	if m == nil {
		return 0, s, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, s, false
	}
	if m[2] != "" {
		d, err := strconv.ParseFloat(m[2], 64)
		if err != nil || d == 0 {
			return 0, s, false
		}
		v /= d
	}
	return v, s[len(m[0]):], true
}

// parseAmount 解析帶分數、分數與小數
func parseAmount(s string) (float64, string, bool) {
	v, rest, ok := parseNumber(s)
	if !ok {
		return 0, s, false
	}
	// 1 1/2
	if m := mixedRe.FindStringSubmatch(rest); m != nil && !strings.Contains(s[:len(s)-len(rest)], "/") {
		n, _ := strconv.ParseFloat(m[1], 64)
		d, _ := strconv.ParseFloat(m[2], 64)
		if d != 0 {
			v += n / d
			rest = rest[len(m[0]):]
		}
	}
	return v, rest, true
}

// ParseLeadingQuantity 解析行首數量
//
// 範圍（2-3、2 to 3）取下限，加法（1+2）取總和。返回剩餘字串。
func ParseLeadingQuantity(s string) (float64, string, bool) {
	s = strings.TrimLeft(s, " ")

	v, rest, ok := parseAmount(s)
	if !ok {
		word, tail, _ := strings.Cut(s, " ")
		n, isWord := numberWords[strings.ToLower(word)]
		if !isWord {
			return 0, s, false
		}
		v, rest = n, " "+tail
	}

	for {
		if m := rangeSepRe.FindString(rest); m != "" {
			if upper, after, ok := parseAmount(rest[len(m):]); ok {
				if upper < v {
					v = upper
				}
				rest = after
				continue
			}
		}
		if m := plusSepRe.FindString(rest); m != "" {
			if more, after, ok := parseAmount(rest[len(m):]); ok {
				v += more
				rest = after
				continue
			}
		}
		break
	}

	return v, rest, true
}

// hasZeroDenominator 行首是否為分母為零的分數
func hasZeroDenominator(s string) bool {
	return zeroFractionRe.MatchString(s)
}

// startsWithQuantity 行首是否為數量
func startsWithQuantity(s string) bool {
	_, _, ok := ParseLeadingQuantity(ExpandFractions(strings.TrimSpace(s)))
	return ok
}
