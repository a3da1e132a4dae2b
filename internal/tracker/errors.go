package tracker

import "fmt"

// ParseEmptyError agent 会话正常结束，但报告里解析不出任何票价。
// 原文留在 RawMessage 里，方便事后排查提示词或解析规则哪边出了问题。
type ParseEmptyError struct {
	RunID      string
	RawMessage string
}

func (e *ParseEmptyError) Error() string {
	return fmt.Sprintf("未能从 agent 报告解析出票价 (run=%s message_len=%d)", e.RunID, len(e.RawMessage))
}
