package utils

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	ALL_CODES = "all"
)

var (
	areaCode = regexp.MustCompile(`^[A-Z][0-9]{8}$`)
)

// 区域代码格式：一位大写字母 + 8位数字，如E07000004
func IsAreaCode(s string) bool {
	return areaCode.MatchString(s)
}

// 是否为"all"哨兵值
func IsAllCodes(codes []string) bool {
	return len(codes) == 1 && strings.EqualFold(codes[0], ALL_CODES)
}

// 去重并去除首尾空白，保持原有顺序
func NormalizeCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	ret := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		ret = append(ret, c)
	}
	return ret
}

func JoinCodes(codes []string) string {
	if IsAllCodes(codes) {
		return ALL_CODES
	}
	return TrimTailCommas(strings.Join(codes, ","))
}

func TrimTailCommas(s string) string {
	return strings.TrimRight(s, ",")
}

// 解析逗号分隔的浮点数，如bbox参数"0,0,200,200"
func StrToFloats(s, sep string) (rets []float64, err error) {
	parts := strings.Split(s, sep)
	rets = make([]float64, 0, len(parts))
	var f float64
	for _, p := range parts {
		if f, err = strconv.ParseFloat(strings.TrimSpace(p), 64); err != nil {
			return
		}
		rets = append(rets, f)
	}
	return
}
