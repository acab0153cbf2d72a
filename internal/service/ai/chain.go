package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/zhouzirui/kbchat/internal/logging"
	"github.com/zhouzirui/kbchat/internal/model/chat"
	"github.com/zhouzirui/kbchat/internal/model/knowledgebase"
)

// ChainResponder answers through an eino prompt → chat model chain (Ark in production).
type ChainResponder struct {
	modelName    string
	historyLimit int
	chain        compose.Runnable[map[string]any, *schema.Message]
	logger       zerolog.Logger
}

// NewChainResponder compiles the answer chain around chatModel.
func NewChainResponder(ctx context.Context, chatModel model.BaseChatModel, modelName string, historyLimit int) (*ChainResponder, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &ChainResponder{
		modelName:    modelName,
		historyLimit: historyLimit,
		chain:        runnable,
		logger:       logging.Component("ai"),
	}, nil
}

func (r *ChainResponder) Model() string { return r.modelName }

// Answer runs the chain for one question.
func (r *ChainResponder) Answer(ctx context.Context, kb knowledgebase.KnowledgeBase, history []chat.Message, question string) (string, error) {
	input := map[string]any{
		"system":  BuildSystemPrompt(kb),
		"history": buildHistoryMessages(history, r.historyLimit),
		"query":   question,
	}

	response, err := r.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	r.logger.Debug().Str("kb", kb.ID).Int("length", len(response.Content)).Msg("generated answer")
	return response.Content, nil
}
