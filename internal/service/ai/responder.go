package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/zhouzirui/kbchat/internal/config"
	"github.com/zhouzirui/kbchat/internal/model/chat"
	"github.com/zhouzirui/kbchat/internal/model/knowledgebase"
)

// Responder produces an answer to a question about a knowledge base.
type Responder interface {
	Model() string
	Answer(ctx context.Context, kb knowledgebase.KnowledgeBase, history []chat.Message, question string) (string, error)
}

// NewResponder picks the responder implementation configured by AI_PROVIDER.
func NewResponder(ctx context.Context, cfg config.AIConfig) (Responder, error) {
	switch provider := cfg.ResolvedProvider(); provider {
	case config.ProviderArk:
		chatModel, err := cfg.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		return NewChainResponder(ctx, chatModel, cfg.Model, cfg.HistoryLimit)
	case config.ProviderOpenAI:
		return NewOpenAIResponder(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.HistoryLimit), nil
	case config.ProviderMock:
		return NewKeywordResponder(), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q", provider)
	}
}

// trimHistory keeps the most recent limit user/assistant turns.
func trimHistory(messages []chat.Message, limit int) []chat.Message {
	if limit <= 0 || len(messages) == 0 {
		return nil
	}
	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages
}

func buildHistoryMessages(messages []chat.Message, limit int) []*schema.Message {
	trimmed := trimHistory(messages, limit)
	if len(trimmed) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(trimmed))
	for _, msg := range trimmed {
		switch msg.Sender {
		case chat.SenderUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.SenderAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}
