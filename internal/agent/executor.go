package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/gateway/provider"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/logger"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/pkg/jsonutil"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/pkg/text"
)

// 中文说明：
// Executor 驱动"观察 → 提示 → 模型 → 动作"的主循环，直到模型 finish 或预算用尽。
// 动作解析失败不中断会话：错误原样回灌给模型，消耗一步，让它自己纠正。

const defaultMaxSteps = 25

// 默认观察窗口较小，省 token；模型发 extract 动作时下一轮给全量文本。
const briefTextLen = 2500

const actionSystemPrompt = `You control a web browser step by step. Each turn you receive the current page URL, title, and visible text, plus your task.

Reply with EXACTLY ONE JSON object and nothing else, choosing one action:
{"action":"navigate","url":"https://..."}
{"action":"click","selector":"<css selector>"}
{"action":"type","selector":"<css selector>","text":"...","submit":true}
{"action":"wait","seconds":3}
{"action":"wait","selector":"<css selector>","seconds":10}
{"action":"extract"}
{"action":"finish","message":"<your final report>"}

Rules:
- Selectors are CSS selectors for elements on the current page.
- Use "wait" after searches while results load; use "extract" to re-read the full page text.
- When the task is complete (or no further progress is possible), use "finish" with the report format the task asks for.`

type Executor struct {
	provider provider.ModelProvider
	observer StepObserver
}

// NewExecutor 组装执行器；observer 可为 nil。
func NewExecutor(p provider.ModelProvider, observer StepObserver) *Executor {
	return &Executor{provider: p, observer: observer}
}

// Run 执行一次完整任务。浏览器/模型层面的失败返回 *SessionError；
// 正常 finish 时 Result.Message 即模型的最终报告，内容好坏由上层解析判断。
func (e *Executor) Run(ctx context.Context, b Browser, task Task) (Result, error) {
	runID := uuid.NewString()
	result := Result{RunID: runID}
	if e == nil || e.provider == nil {
		return result, &SessionError{RunID: runID, Stage: "setup", Err: fmt.Errorf("executor 未初始化")}
	}
	if b == nil {
		return result, &SessionError{RunID: runID, Stage: "setup", Err: fmt.Errorf("browser 不能为空")}
	}
	maxSteps := task.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	if url := strings.TrimSpace(task.StartURL); url != "" {
		if err := b.Navigate(url); err != nil {
			return result, &SessionError{RunID: runID, Stage: "navigate", Err: err}
		}
	}

	logger.Infof("agent 开始执行: run=%s max_steps=%d provider=%s", runID, maxSteps, e.provider.ID())

	var lastActionErr string
	fullTextNext := false
	for step := 1; step <= maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			result.StepsUsed = step - 1
			return result, &SessionError{RunID: runID, Stage: "deadline", Err: err}
		}

		obs, err := e.observe(b, fullTextNext)
		if err != nil {
			result.StepsUsed = step - 1
			return result, &SessionError{RunID: runID, Stage: "observe", Err: err}
		}
		fullTextNext = false
		logger.LogAgentObservation(fmt.Sprintf("step-%d", step), obs.url, obs.title, text.Excerpt(obs.pageText, 400))

		userPrompt := buildStepPrompt(task.Instruction, obs, step, maxSteps, lastActionErr)
		logger.LogAgentRequest(e.provider.ID(), fmt.Sprintf("step-%d", step), actionSystemPrompt, userPrompt, "")

		reply, err := e.provider.Call(ctx, actionSystemPrompt, userPrompt)
		if err != nil {
			result.StepsUsed = step - 1
			return result, &SessionError{RunID: runID, Stage: "llm", Err: err}
		}
		logger.LogAgentReply(e.provider.ID(), fmt.Sprintf("step-%d", step), reply)

		record := StepRecord{Step: step, PageURL: obs.url, PageTitle: obs.title}
		exchange := StepExchange{
			RunID:     runID,
			Step:      step,
			PageURL:   obs.url,
			PageTitle: obs.title,
			Prompt:    userPrompt,
			RawReply:  reply,
			Timestamp: time.Now().UnixMilli(),
		}

		actionJSON, ok := jsonutil.ExtractObject(reply)
		if !ok {
			lastActionErr = "your reply contained no JSON action object"
			record.Error = lastActionErr
			exchange.Error = lastActionErr
			result.Steps = append(result.Steps, record)
			e.notify(ctx, exchange)
			logger.Warnf("agent 回复未找到动作 JSON: run=%s step=%d", runID, step)
			continue
		}
		record.ActionJSON = actionJSON
		exchange.ActionJSON = actionJSON

		act, err := parseAction(actionJSON)
		if err != nil {
			lastActionErr = err.Error()
			record.Error = lastActionErr
			exchange.Error = lastActionErr
			result.Steps = append(result.Steps, record)
			e.notify(ctx, exchange)
			logger.Warnf("agent 动作非法: run=%s step=%d err=%v", runID, step, err)
			continue
		}

		if act.Name == actionFinish {
			result.Message = act.Message
			result.StepsUsed = step
			result.Steps = append(result.Steps, record)
			e.notify(ctx, exchange)
			logger.Infof("agent 完成: run=%s steps=%d message_len=%d", runID, step, len(act.Message))
			return result, nil
		}

		if act.Name == actionExtract {
			fullTextNext = true
		}
		if err := apply(b, act); err != nil {
			// 动作执行失败同样回灌，让模型换路径
			lastActionErr = fmt.Sprintf("action %s failed: %v", act.Name, err)
			record.Error = lastActionErr
			logger.Warnf("agent 动作执行失败: run=%s step=%d action=%s err=%v", runID, step, act.Name, err)
		} else {
			lastActionErr = ""
		}
		exchange.Error = record.Error
		result.Steps = append(result.Steps, record)
		e.notify(ctx, exchange)
	}

	result.StepsUsed = maxSteps
	return result, &SessionError{RunID: runID, Stage: "budget", Err: ErrStepBudgetExhausted}
}

func (e *Executor) notify(ctx context.Context, ex StepExchange) {
	if e.observer == nil {
		return
	}
	e.observer.AfterStep(ctx, ex)
}

type observation struct {
	url      string
	title    string
	pageText string
}

func (e *Executor) observe(b Browser, fullText bool) (observation, error) {
	var obs observation
	url, err := b.Location()
	if err != nil {
		return obs, fmt.Errorf("read location: %w", err)
	}
	title, err := b.Title()
	if err != nil {
		return obs, fmt.Errorf("read title: %w", err)
	}
	pageText, err := b.VisibleText()
	if err != nil {
		return obs, fmt.Errorf("read page text: %w", err)
	}
	if !fullText {
		pageText = text.Truncate(pageText, briefTextLen)
	}
	obs.url = url
	obs.title = title
	obs.pageText = pageText
	return obs, nil
}

func buildStepPrompt(instruction string, obs observation, step, maxSteps int, lastActionErr string) string {
	var b strings.Builder
	b.WriteString("TASK:\n")
	b.WriteString(strings.TrimSpace(instruction))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "STEP %d of %d\n\n", step, maxSteps)
	if lastActionErr != "" {
		fmt.Fprintf(&b, "PREVIOUS ACTION PROBLEM: %s\nCorrect it in this step.\n\n", lastActionErr)
	}
	fmt.Fprintf(&b, "CURRENT PAGE:\nURL: %s\nTitle: %s\n\nVISIBLE TEXT:\n%s\n", obs.url, obs.title, obs.pageText)
	return b.String()
}
