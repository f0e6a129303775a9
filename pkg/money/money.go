package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale 金额统一保留 4 位小数
const Scale int32 = 4

// Zero 零值金额
var Zero = decimal.Zero

// Round 按 4 位小数四舍五入（远离零）
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Parse 解析金额字符串，超过 4 位小数视为非法，不做静默截断
// Parse("1.80") => 1.8000
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, fmt.Errorf("money: empty")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("money: bad %q: %w", s, err)
	}
	if d.Exponent() < -Scale && !d.Equal(Round(d)) {
		return Zero, fmt.Errorf("money: %q has more than %d decimal places", s, Scale)
	}
	return Round(d), nil
}

// MustParse 用于常量和测试
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Format 固定 4 位小数输出
func Format(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}
