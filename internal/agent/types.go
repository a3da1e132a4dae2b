package agent

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Task 描述一次完整的 agent 任务：从哪个页面开始、要做什么、预算多少步。
type Task struct {
	Instruction string
	StartURL    string
	MaxSteps    int
	Timeout     time.Duration
}

// StepRecord 是一步的留痕，随 Result 返回给调用方落档。
type StepRecord struct {
	Step       int    `json:"step"`
	PageURL    string `json:"page_url"`
	PageTitle  string `json:"page_title"`
	ActionJSON string `json:"action_json"`
	Error      string `json:"error,omitempty"`
}

// Result 是 agent 跑完后的产物；Message 是 finish 动作里的自由文本报告。
type Result struct {
	RunID     string       `json:"run_id"`
	Message   string       `json:"message"`
	StepsUsed int          `json:"steps_used"`
	Steps     []StepRecord `json:"steps"`
}

// Browser 是执行器需要的浏览器动作面；由 internal/browser.Session 实现。
type Browser interface {
	Navigate(url string) error
	Location() (string, error)
	Title() (string, error)
	VisibleText() (string, error)
	Click(selector string) error
	Type(selector, value string, submit bool) error
	WaitVisible(selector string, timeout time.Duration) error
	Sleep(d time.Duration) error
}

// StepExchange 一步的完整交互（提示词 + 回复 + 动作），交给 observer 落盘。
type StepExchange struct {
	RunID      string
	Step       int
	PageURL    string
	PageTitle  string
	Prompt     string
	RawReply   string
	ActionJSON string
	Error      string
	Timestamp  int64
}

// StepObserver 在每步之后收到交互留痕；实现方不允许阻塞主循环太久。
type StepObserver interface {
	AfterStep(ctx context.Context, ex StepExchange)
}

// ErrStepBudgetExhausted agent 用完步数预算仍未 finish。
var ErrStepBudgetExhausted = errors.New("step budget exhausted without finish")

// SessionError agent 会话层面的失败：浏览器断了、模型调不通、超时。
// 与"跑完了但报告解析不出价格"是两类错误，调用方分开处理。
type SessionError struct {
	RunID string
	Stage string
	Err   error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("agent session failed (run=%s stage=%s): %v", e.RunID, e.Stage, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }
