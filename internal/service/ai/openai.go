package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/zhouzirui/kbchat/internal/logging"
	"github.com/zhouzirui/kbchat/internal/model/chat"
	"github.com/zhouzirui/kbchat/internal/model/knowledgebase"
)

var errEmptyChoices = errors.New("openai returned no choices")

// OpenAIResponder answers through the OpenAI chat completions API.
type OpenAIResponder struct {
	client       *openai.Client
	model        string
	historyLimit int
	logger       zerolog.Logger
}

// NewOpenAIResponder builds a responder; baseURL may point at any compatible endpoint.
func NewOpenAIResponder(apiKey, baseURL, model string, historyLimit int) *OpenAIResponder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}

	return &OpenAIResponder{
		client:       openai.NewClientWithConfig(cfg),
		model:        model,
		historyLimit: historyLimit,
		logger:       logging.Component("ai"),
	}
}

func (r *OpenAIResponder) Model() string { return r.model }

func (r *OpenAIResponder) Answer(ctx context.Context, kb knowledgebase.KnowledgeBase, history []chat.Message, question string) (string, error) {
	trimmed := trimHistory(history, r.historyLimit)

	msgs := make([]openai.ChatCompletionMessage, 0, len(trimmed)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: BuildSystemPrompt(kb),
	})
	for _, m := range trimmed {
		role := openai.ChatMessageRoleUser
		if m.Sender == chat.SenderAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: question,
	})

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    r.model,
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		r.logger.Warn().Str("kb", kb.ID).Msg("empty choices")
		return "", errEmptyChoices
	}

	answer := resp.Choices[0].Message.Content
	r.logger.Debug().Str("kb", kb.ID).Int("length", len(answer)).Msg("generated answer")
	return answer, nil
}
