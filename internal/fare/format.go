package fare

import (
	"strconv"
	"strings"
)

// FormatAmount 按千位逗号格式化整数金额，如 10560 → "10,560"。
func FormatAmount(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
		if len(digits) > lead {
			b.WriteByte(',')
		}
	}
	for i := lead; i < len(digits); i += 3 {
		b.WriteString(digits[i : i+3])
		if i+3 < len(digits) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

// FormatPrice 渲染展示价格，如 ("ZAR", 10560) → "ZAR 10,560"。
func (r Record) FormatPrice() string {
	return r.CurrencyCode + " " + FormatAmount(r.AmountMinor)
}

// FormatSignedAmount 带符号格式化差值，如 +1,234 / -567。
func FormatSignedAmount(delta int64) string {
	if delta >= 0 {
		return "+" + FormatAmount(delta)
	}
	return FormatAmount(delta)
}

// parseAmount 去掉千位分隔逗号后按十进制整数解析。
func parseAmount(raw string) (int64, bool) {
	cleaned := strings.ReplaceAll(raw, ",", "")
	if cleaned == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
