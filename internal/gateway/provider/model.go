package provider

import "context"

// ModelProvider 聊天模型的最小抽象：给系统/用户提示词，拿回原始文本回复。
type ModelProvider interface {
	ID() string
	Call(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
