package text

import "strings"

func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// Excerpt 压缩空白后截断，用于把整页可见文本喂给 LLM 或写日志。
func Excerpt(s string, max int) string {
	return Truncate(CollapseSpace(s), max)
}

// CollapseSpace 把连续空白（含换行）折叠成单个空格。
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
