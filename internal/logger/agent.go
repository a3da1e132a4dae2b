package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

var (
	agentMu          sync.Mutex
	agentLog         *log.Logger
	agentDumpPayload bool
)

// SetAgentWriter 设置 agent 会话转录的输出（与运行日志分开，默认不落盘）。
func SetAgentWriter(w io.Writer) {
	agentMu.Lock()
	defer agentMu.Unlock()
	if w == nil {
		agentLog = nil
		return
	}
	agentLog = log.New(w, "", log.LstdFlags)
}

// EnableAgentPayloadDump 控制是否把完整 HTTP payload 一并写入转录。
func EnableAgentPayloadDump(enabled bool) {
	agentMu.Lock()
	agentDumpPayload = enabled
	agentMu.Unlock()
}

type agentSection struct {
	Title string
	Body  string
}

func logAgent(kind, provider, stage string, sections []agentSection) {
	agentMu.Lock()
	logger := agentLog
	agentMu.Unlock()
	if logger == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[AGENT]")
	if kind != "" {
		b.WriteString("[")
		b.WriteString(kind)
		b.WriteString("]")
	}
	if provider != "" {
		b.WriteString("[")
		b.WriteString(provider)
		b.WriteString("]")
	}
	if stage != "" {
		b.WriteString("[")
		b.WriteString(stage)
		b.WriteString("]")
	}
	b.WriteString("\n")
	for _, sec := range sections {
		t := strings.TrimSpace(sec.Title)
		if t == "" {
			t = "CONTENT"
		}
		b.WriteString("--- ")
		b.WriteString(t)
		b.WriteString(" ---\n")
		body := sec.Body
		b.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	logger.Print(b.String())
}

// LogAgentRequest 记录一次 LLM 调用的提示词；stage 形如 "step-3"。
func LogAgentRequest(provider, stage, systemPrompt, userPrompt, payload string) {
	sections := []agentSection{
		{Title: "SYSTEM", Body: systemPrompt},
		{Title: "USER", Body: userPrompt},
	}
	agentMu.Lock()
	dump := agentDumpPayload
	agentMu.Unlock()
	if dump && strings.TrimSpace(payload) != "" {
		sections = append(sections, agentSection{Title: "PAYLOAD", Body: payload})
	}
	logAgent("request", provider, stage, sections)
}

// LogAgentReply 记录 LLM 的原始回复。
func LogAgentReply(provider, stage, raw string) {
	logAgent("reply", provider, stage, []agentSection{{Title: "RAW", Body: raw}})
}

// LogAgentObservation 记录一步执行后的页面观察摘要。
func LogAgentObservation(stage, url, title, excerpt string) {
	sections := []agentSection{
		{Title: "URL", Body: url},
		{Title: "TITLE", Body: title},
		{Title: "TEXT", Body: excerpt},
	}
	logAgent("observation", "", stage, sections)
}
